// Package memory provides an in-memory BlobStore used by tests and local
// development. It mimics the store-side integrity contract: a Put against an
// outstanding grant is rejected when the bytes' MD5 does not match what was
// declared at signing time.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
)

type object struct {
	data      []byte
	mimeType  string
	updatedAt time.Time
}

// Backend is an in-memory implementation of the driverdesk.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	grants  map[string]driverdesk.PutSignParams // key -> declared params
	signTTL time.Duration
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]object),
		grants:  make(map[string]driverdesk.PutSignParams),
		signTTL: time.Hour,
	}
}

// SignPutURL records the declared params for the key and returns a synthetic
// grant. The URL is not routable; tests complete the upload through Put.
func (b *Backend) SignPutURL(ctx context.Context, objectKey string, params driverdesk.PutSignParams) (*driverdesk.UploadGrant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.grants[objectKey] = params
	return &driverdesk.UploadGrant{
		URL:       "memory://bucket/" + objectKey,
		Key:       objectKey,
		ExpiresAt: time.Now().Add(b.signTTL),
	}, nil
}

// Put simulates the client's direct-to-store PUT against a grant. The store
// enforces the MD5 declared at signing time; on mismatch the object is not
// written.
func (b *Backend) Put(objectKey string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	params, ok := b.grants[objectKey]
	if !ok {
		return fmt.Errorf("no upload grant for key %s", objectKey)
	}
	sum := md5.Sum(data)
	if got := base64.StdEncoding.EncodeToString(sum[:]); got != params.ContentMD5 {
		return fmt.Errorf("content MD5 mismatch for key %s", objectKey)
	}
	delete(b.grants, objectKey)
	b.objects[objectKey] = object{data: data, mimeType: params.MimeType, updatedAt: time.Now()}
	return nil
}

// Upload writes content server-side, bypassing the grant flow.
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader, mimeType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[objectKey] = object{data: data, mimeType: mimeType, updatedAt: time.Now()}
	return nil
}

// Download streams the object's bytes.
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, driverdesk.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// GetObjectMeta retrieves metadata for an object.
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*driverdesk.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, driverdesk.ErrObjectNotFound
	}
	sum := md5.Sum(obj.data)
	return &driverdesk.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(obj.data)),
		ContentType: obj.mimeType,
		ETag:        fmt.Sprintf("%x", sum),
		UpdatedAt:   obj.updatedAt,
	}, nil
}

// Delete removes an object. Deleting an absent key is not an error.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, objectKey)
	return nil
}

// ListKeys returns all keys under prefix, sorted.
func (b *Backend) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len reports how many objects the backend holds.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
