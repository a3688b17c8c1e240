package driverdesk

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/driverdesk/driverdesk/pkg/driverdesk/objectkey"
)

// service implements the Service interface
type service struct {
	repository Repository
	blobStore  BlobStore
	renderer   ContractRenderer
	logger     *slog.Logger
	now        func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithContractRenderer sets the contract PDF renderer
func WithContractRenderer(r ContractRenderer) Option {
	return func(s *service) {
		s.renderer = r
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source (tests)
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}

	return s, nil
}

// Upload signing

func (s *service) SignUpload(ctx context.Context, req SignUploadRequest) (*UploadGrant, error) {
	if req.EntityID == "" {
		return nil, &ValidationError{Field: "entity_id", Msg: "must not be empty"}
	}
	if req.MimeType == "" {
		return nil, &ValidationError{Field: "mime_type", Msg: "must not be empty"}
	}
	if req.Size <= 0 {
		return nil, &ValidationError{Field: "size", Msg: "must be positive"}
	}
	if req.MD5 == "" {
		return nil, &ValidationError{Field: "md5", Msg: "must not be empty"}
	}
	if _, err := base64.StdEncoding.DecodeString(req.MD5); err != nil {
		return nil, &ValidationError{Field: "md5", Msg: "must be base64"}
	}

	key, err := s.deriveKey(req)
	if err != nil {
		return nil, err
	}

	grant, err := s.blobStore.SignPutURL(ctx, key, PutSignParams{
		MimeType:   req.MimeType,
		Size:       req.Size,
		ContentMD5: req.MD5,
	})
	if err != nil {
		return nil, &StorageError{Key: key, Op: "sign_put", Err: fmt.Errorf("%w: %v", ErrSigningUnavailable, err)}
	}

	s.logger.Info("upload grant issued",
		"key", key, "entity", req.EntityID, "doc_type", req.DocType, "size", req.Size)
	return grant, nil
}

func (s *service) deriveKey(req SignUploadRequest) (string, error) {
	switch req.EntityKind {
	case EntityApplication:
		if !KnownDocumentSlot(req.DocType) {
			return "", fmt.Errorf("%w: %s", ErrUnknownDocumentSlot, req.DocType)
		}
		return objectkey.ForDocument(req.EntityID, req.DocType, req.FileName)
	case EntityReport:
		if !KnownReportSlot(req.DocType) {
			return "", fmt.Errorf("%w: %s", ErrUnknownReportSlot, req.DocType)
		}
		if req.Date == "" {
			return "", &ValidationError{Field: "date", Msg: "required for report uploads"}
		}
		return objectkey.ForReportSlot(req.EntityID, req.Date, req.DocType, req.FileName)
	default:
		return "", &ValidationError{Field: "entity_kind", Msg: fmt.Sprintf("unknown kind %q", req.EntityKind)}
	}
}

// Application operations

func (s *service) SaveApplication(ctx context.Context, req SaveApplicationRequest) (*Application, error) {
	if req.ID == "" {
		return nil, &ValidationError{Field: "id", Msg: "must not be empty"}
	}

	now := s.now()
	app, err := s.repository.GetApplication(ctx, req.ID)
	switch {
	case err == nil:
		// Upsert keeps attached documents, status and submission time.
		app.Applicant = req.Applicant
		app.Guarantor = req.Guarantor
		app.Vehicle = req.Vehicle
		app.UpdatedAt = now
	case errors.Is(err, ErrApplicationNotFound):
		app = &Application{
			ID:        req.ID,
			Applicant: req.Applicant,
			Guarantor: req.Guarantor,
			Vehicle:   req.Vehicle,
			Documents: map[string]FileRef{},
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
	default:
		return nil, &ApplicationError{ApplicationID: req.ID, Op: "save", Err: err}
	}

	if err := s.repository.SaveApplication(ctx, app); err != nil {
		return nil, &ApplicationError{ApplicationID: req.ID, Op: "save", Err: err}
	}
	return app, nil
}

func (s *service) GetApplication(ctx context.Context, id string) (*Application, error) {
	return s.repository.GetApplication(ctx, id)
}

func (s *service) ListApplications(ctx context.Context, filters ApplicationFilters) ([]*Application, error) {
	return s.repository.ListApplications(ctx, filters)
}

func (s *service) SubmitApplication(ctx context.Context, id string) (*Application, error) {
	app, err := s.repository.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.SubmittedAt == nil {
		now := s.now()
		app.SubmittedAt = &now
		app.UpdatedAt = now
		if err := s.repository.SaveApplication(ctx, app); err != nil {
			return nil, &ApplicationError{ApplicationID: id, Op: "submit", Err: err}
		}
	}
	return app, nil
}

func (s *service) AttachDocument(ctx context.Context, req AttachDocumentRequest) (*Application, error) {
	if !KnownDocumentSlot(req.Slot) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocumentSlot, req.Slot)
	}
	if req.Ref.ObjectKey == "" {
		return nil, &ValidationError{Field: "object_key", Msg: "must not be empty"}
	}
	ref := req.Ref
	if ref.UploadedAt.IsZero() {
		ref.UploadedAt = s.now()
	}

	previous, err := s.repository.SetDocument(ctx, req.ApplicationID, req.Slot, ref)
	if err != nil {
		return nil, &ApplicationError{ApplicationID: req.ApplicationID, Op: "attach_document", Err: err}
	}

	// The manifest write is strict; disposing of the replaced object is
	// advisory. A failed delete leaves a stale orphan, never a failed attach.
	if previous != nil && previous.ObjectKey != ref.ObjectKey {
		s.cleanupObject(ctx, previous.ObjectKey)
	}

	return s.repository.GetApplication(ctx, req.ApplicationID)
}

func (s *service) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*Application, error) {
	if !ValidStatus(req.Status) {
		return nil, &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", req.Status)}
	}

	app, err := s.repository.GetApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}

	if _, err := canTransitionStatus(app.Status, req.Status); err != nil {
		return nil, err
	}

	if err := s.repository.SetApplicationStatus(ctx, req.ApplicationID, req.Status, req.Note); err != nil {
		return nil, &ApplicationError{ApplicationID: req.ApplicationID, Op: "update_status", Err: err}
	}

	s.logger.Info("application status changed",
		"application_id", req.ApplicationID, "from", app.Status, "to", req.Status)
	return s.repository.GetApplication(ctx, req.ApplicationID)
}

func (s *service) GenerateContract(ctx context.Context, id string) (*Application, error) {
	if s.renderer == nil {
		return nil, fmt.Errorf("contract renderer is not configured")
	}

	app, err := s.repository.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusApproved {
		return nil, fmt.Errorf("%w (status: %s)", ErrContractNotReady, app.Status)
	}

	pdf, err := s.renderer.RenderContract(ctx, app)
	if err != nil {
		return nil, &ApplicationError{ApplicationID: id, Op: "render_contract", Err: err}
	}

	key, err := objectkey.ForDocument(app.ID, DocContract, "contract.pdf")
	if err != nil {
		return nil, err
	}
	if err := s.blobStore.Upload(ctx, key, bytes.NewReader(pdf), "application/pdf"); err != nil {
		return nil, &StorageError{Key: key, Op: "upload", Err: err}
	}

	sum := md5.Sum(pdf)
	return s.AttachDocument(ctx, AttachDocumentRequest{
		ApplicationID: id,
		Slot:          DocContract,
		Ref: FileRef{
			ObjectKey: key,
			FileName:  "contract.pdf",
			MimeType:  "application/pdf",
			Size:      int64(len(pdf)),
			MD5:       base64.StdEncoding.EncodeToString(sum[:]),
		},
	})
}

// Daily report operations

func (s *service) GetDailyReport(ctx context.Context, employeeID, date string) (*DailyReport, error) {
	if employeeID == "" {
		return nil, &ValidationError{Field: "employee_id", Msg: "must not be empty"}
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, &ValidationError{Field: "date", Msg: "must be YYYY-MM-DD"}
	}

	report, err := s.repository.GetDailyReport(ctx, employeeID, date)
	if errors.Is(err, ErrReportNotFound) {
		// First access for this date creates the empty slot catalog.
		report = NewDailyReport(employeeID, date, s.now())
		if err := s.repository.SaveDailyReport(ctx, report); err != nil {
			return nil, &ReportError{EmployeeID: employeeID, Date: date, Op: "create", Err: err}
		}
		return report, nil
	}
	return report, err
}

func (s *service) AttachReportPhoto(ctx context.Context, req AttachReportPhotoRequest) (*DailyReport, error) {
	if !KnownReportSlot(req.SlotID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReportSlot, req.SlotID)
	}
	if req.Ref.ObjectKey == "" {
		return nil, &ValidationError{Field: "object_key", Msg: "must not be empty"}
	}

	if _, err := s.GetDailyReport(ctx, req.EmployeeID, req.Date); err != nil {
		return nil, err
	}

	ref := req.Ref
	if ref.UploadedAt.IsZero() {
		ref.UploadedAt = s.now()
	}

	previous, err := s.repository.SetReportSlot(ctx, req.EmployeeID, req.Date, req.SlotID, &ref)
	if err != nil {
		return nil, &ReportError{EmployeeID: req.EmployeeID, Date: req.Date, Op: "attach_photo", Err: err}
	}
	if previous != nil && previous.ObjectKey != ref.ObjectKey {
		s.cleanupObject(ctx, previous.ObjectKey)
	}

	return s.repository.GetDailyReport(ctx, req.EmployeeID, req.Date)
}

func (s *service) ClearReportSlot(ctx context.Context, employeeID, date, slotID string) (*DailyReport, error) {
	if !KnownReportSlot(slotID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReportSlot, slotID)
	}

	previous, err := s.repository.SetReportSlot(ctx, employeeID, date, slotID, nil)
	if err != nil {
		return nil, &ReportError{EmployeeID: employeeID, Date: date, Op: "clear_slot", Err: err}
	}
	if previous != nil {
		s.cleanupObject(ctx, previous.ObjectKey)
	}

	return s.repository.GetDailyReport(ctx, employeeID, date)
}

// File access

func (s *service) OpenFile(ctx context.Context, objectKey string) (io.ReadCloser, *ObjectMeta, error) {
	rc, err := s.blobStore.Download(ctx, objectKey)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, &StorageError{Key: objectKey, Op: "download", Err: err}
	}

	meta, err := s.blobStore.GetObjectMeta(ctx, objectKey)
	if err != nil {
		// Metadata is advisory for the stream; fall back to the key alone.
		meta = &ObjectMeta{Key: objectKey, ContentType: "application/octet-stream"}
	}
	return rc, meta, nil
}

// Maintenance

func (s *service) SweepOrphans(ctx context.Context) (int, error) {
	referenced, err := s.repository.ListReferencedObjectKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list referenced keys: %w", err)
	}
	refSet := make(map[string]struct{}, len(referenced))
	for _, k := range referenced {
		refSet[k] = struct{}{}
	}

	removed := 0
	for _, prefix := range []string{"applications/", "reports/"} {
		keys, err := s.blobStore.ListKeys(ctx, prefix)
		if err != nil {
			return removed, &StorageError{Key: prefix, Op: "list", Err: err}
		}
		for _, key := range keys {
			if _, ok := refSet[key]; ok {
				continue
			}
			if err := s.blobStore.Delete(ctx, key); err != nil {
				s.logger.Warn("orphan delete failed", "key", key, "error", err)
				continue
			}
			removed++
		}
	}

	s.logger.Info("orphan sweep finished", "removed", removed)
	return removed, nil
}

// cleanupObject deletes a replaced object. Failures are reported and
// swallowed: stale orphans are acceptable collateral, an inconsistent
// manifest is not.
func (s *service) cleanupObject(ctx context.Context, key string) {
	if err := s.blobStore.Delete(ctx, key); err != nil {
		s.logger.Warn("cleanup of replaced object failed", "key", key, "error", err)
	}
}
