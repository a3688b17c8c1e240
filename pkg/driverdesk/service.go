package driverdesk

import (
	"context"
	"io"
)

// Service defines the main interface for the driverdesk intake library.
type Service interface {
	// Upload signing
	SignUpload(ctx context.Context, req SignUploadRequest) (*UploadGrant, error)

	// Application operations
	SaveApplication(ctx context.Context, req SaveApplicationRequest) (*Application, error)
	GetApplication(ctx context.Context, id string) (*Application, error)
	ListApplications(ctx context.Context, filters ApplicationFilters) ([]*Application, error)
	SubmitApplication(ctx context.Context, id string) (*Application, error)
	AttachDocument(ctx context.Context, req AttachDocumentRequest) (*Application, error)
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*Application, error)
	GenerateContract(ctx context.Context, id string) (*Application, error)

	// Daily report operations
	GetDailyReport(ctx context.Context, employeeID, date string) (*DailyReport, error)
	AttachReportPhoto(ctx context.Context, req AttachReportPhotoRequest) (*DailyReport, error)
	ClearReportSlot(ctx context.Context, employeeID, date, slotID string) (*DailyReport, error)

	// File access for the signed-read proxy
	OpenFile(ctx context.Context, objectKey string) (io.ReadCloser, *ObjectMeta, error)

	// SweepOrphans deletes stored objects no manifest references and returns
	// how many were removed.
	SweepOrphans(ctx context.Context) (int, error)
}
