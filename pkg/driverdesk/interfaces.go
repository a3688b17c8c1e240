package driverdesk

import (
	"context"
	"io"
	"time"
)

// PutSignParams binds an upload grant to one exact object. The store enforces
// the MD5 match at PUT time; the application never re-hashes the bytes.
type PutSignParams struct {
	MimeType   string
	Size       int64
	ContentMD5 string // base64
}

// ObjectMeta contains metadata about an object in storage.
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
	UpdatedAt   time.Time
}

// BlobStore defines the interface for R2/S3-compatible storage backends.
type BlobStore interface {
	// SignPutURL returns a time-bounded presigned PUT URL for one object,
	// bound to the declared MD5 and content type.
	SignPutURL(ctx context.Context, objectKey string, params PutSignParams) (*UploadGrant, error)

	// Upload writes content server-side, bypassing the grant flow. Used for
	// generated artifacts such as contract PDFs.
	Upload(ctx context.Context, objectKey string, reader io.Reader, mimeType string) error

	// Download streams the object's bytes. Returns ErrObjectNotFound when the
	// key is absent.
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// GetObjectMeta retrieves metadata for one object.
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)

	// Delete removes an object. Deleting an absent key is not an error.
	Delete(ctx context.Context, objectKey string) error

	// ListKeys returns all keys under prefix. Used by the orphan sweep.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Repository defines persistence for applications, daily reports, and staff
// accounts.
type Repository interface {
	// Application operations. SaveApplication upserts the full manifest.
	SaveApplication(ctx context.Context, app *Application) error
	GetApplication(ctx context.Context, id string) (*Application, error)
	ListApplications(ctx context.Context, filters ApplicationFilters) ([]*Application, error)
	SetApplicationStatus(ctx context.Context, id string, status VerificationStatus, note string) error

	// SetDocument writes ref into the named slot and returns the FileRef the
	// slot previously held, if any. The write is strict; disposing of the
	// replaced object is the caller's (best-effort) concern.
	SetDocument(ctx context.Context, appID, slot string, ref FileRef) (*FileRef, error)

	// Daily report operations. SetReportSlot with a nil ref clears the slot.
	GetDailyReport(ctx context.Context, employeeID, date string) (*DailyReport, error)
	SaveDailyReport(ctx context.Context, report *DailyReport) error
	SetReportSlot(ctx context.Context, employeeID, date, slotID string, ref *FileRef) (*FileRef, error)

	// Staff account operations.
	CreateStaffUser(ctx context.Context, user *StaffUser) error
	GetStaffUserByUsername(ctx context.Context, username string) (*StaffUser, error)

	// ListReferencedObjectKeys returns every object key any manifest or
	// report slot currently points at. Used by the orphan sweep.
	ListReferencedObjectKeys(ctx context.Context) ([]string, error)
}

// ContractRenderer produces the signed-contract PDF for an approved
// application. The rendering engine itself is an external service.
type ContractRenderer interface {
	RenderContract(ctx context.Context, app *Application) ([]byte, error)
}
