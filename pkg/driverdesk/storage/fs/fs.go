// Package fs implements driverdesk.BlobStore on the local filesystem for
// development without an object store. It cannot issue presigned PUT grants;
// direct-to-store upload needs a real S3-compatible backend.
package fs

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
)

// Backend is a filesystem implementation of the driverdesk.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // base directory for stored files
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Backend{baseDir: config.BaseDir}, nil
}

// SignPutURL is unsupported on the filesystem backend.
func (b *Backend) SignPutURL(ctx context.Context, objectKey string, params driverdesk.PutSignParams) (*driverdesk.UploadGrant, error) {
	return nil, errors.New("presigned uploads require an S3-compatible backend")
}

// Upload writes content to disk.
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader, mimeType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	filePath, err := b.resolve(objectKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Download streams the object's bytes.
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	filePath, err := b.resolve(objectKey)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, driverdesk.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// GetObjectMeta retrieves metadata for an object on disk.
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*driverdesk.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	filePath, err := b.resolve(objectKey)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, driverdesk.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	contentType := "application/octet-stream"
	etag := ""
	if data, err := os.ReadFile(filePath); err == nil {
		if len(data) > 0 {
			contentType = http.DetectContentType(data)
		}
		sum := md5.Sum(data)
		etag = fmt.Sprintf("%x", sum)
	}

	return &driverdesk.ObjectMeta{
		Key:         objectKey,
		Size:        info.Size(),
		ContentType: contentType,
		ETag:        etag,
		UpdatedAt:   info.ModTime(),
	}, nil
}

// Delete removes an object. Deleting an absent key is not an error.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	filePath, err := b.resolve(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// ListKeys returns all keys under prefix.
func (b *Backend) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	err := filepath.WalkDir(b.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(b.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk storage directory: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// resolve maps an object key onto the base directory and rejects traversal.
func (b *Backend) resolve(objectKey string) (string, error) {
	if objectKey == "" {
		return "", errors.New("object key is required")
	}
	cleaned := filepath.Clean(filepath.FromSlash(objectKey))
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid object key: %s", objectKey)
	}
	return filepath.Join(b.baseDir, cleaned), nil
}
