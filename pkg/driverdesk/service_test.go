package driverdesk_test

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
	repomemory "github.com/driverdesk/driverdesk/pkg/driverdesk/repo/memory"
	memorystorage "github.com/driverdesk/driverdesk/pkg/driverdesk/storage/memory"
)

func newTestService(t *testing.T, opts ...driverdesk.Option) (driverdesk.Service, *memorystorage.Backend) {
	t.Helper()
	store := memorystorage.New()
	all := append([]driverdesk.Option{
		driverdesk.WithRepository(repomemory.New()),
		driverdesk.WithBlobStore(store),
	}, opts...)
	svc, err := driverdesk.New(all...)
	require.NoError(t, err)
	return svc, store
}

func md5b64(data []byte) string {
	sum := md5.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func bytesReader(s string) io.Reader { return strings.NewReader(s) }

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []driverdesk.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []driverdesk.Option{},
			expectError: true,
		},
		{
			name: "repository alone should fail",
			options: []driverdesk.Option{
				driverdesk.WithRepository(repomemory.New()),
			},
			expectError: true,
		},
		{
			name: "repository and blob store should succeed",
			options: []driverdesk.Option{
				driverdesk.WithRepository(repomemory.New()),
				driverdesk.WithBlobStore(memorystorage.New()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := driverdesk.New(tt.options...)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestSignUploadDerivesDeterministicKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := driverdesk.SignUploadRequest{
		EntityID:   "app-1",
		EntityKind: driverdesk.EntityApplication,
		DocType:    driverdesk.DocCitizenID,
		FileName:   "photo.jpg",
		MimeType:   "image/jpeg",
		Size:       1024,
		MD5:        md5b64([]byte("photo bytes")),
	}

	grant, err := svc.SignUpload(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "applications/app-1/doc-citizen-id.jpg", grant.Key)

	// A retry with a different filename lands on the same key: the slot
	// names the object, the filename only contributes the extension.
	req.FileName = "retry-photo.jpg"
	again, err := svc.SignUpload(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, grant.Key, again.Key)
}

func TestSignUploadValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	valid := driverdesk.SignUploadRequest{
		EntityID:   "app-1",
		EntityKind: driverdesk.EntityApplication,
		DocType:    driverdesk.DocCitizenID,
		FileName:   "photo.jpg",
		MimeType:   "image/jpeg",
		Size:       1024,
		MD5:        md5b64([]byte("x")),
	}

	tests := []struct {
		name   string
		mutate func(*driverdesk.SignUploadRequest)
		check  func(t *testing.T, err error)
	}{
		{
			name:   "empty entity id",
			mutate: func(r *driverdesk.SignUploadRequest) { r.EntityID = "" },
			check: func(t *testing.T, err error) {
				var verr *driverdesk.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "entity_id", verr.Field)
			},
		},
		{
			name:   "zero size",
			mutate: func(r *driverdesk.SignUploadRequest) { r.Size = 0 },
			check: func(t *testing.T, err error) {
				var verr *driverdesk.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "size", verr.Field)
			},
		},
		{
			name:   "non-base64 md5",
			mutate: func(r *driverdesk.SignUploadRequest) { r.MD5 = "not!!base64" },
			check: func(t *testing.T, err error) {
				var verr *driverdesk.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "md5", verr.Field)
			},
		},
		{
			name:   "unknown document slot",
			mutate: func(r *driverdesk.SignUploadRequest) { r.DocType = "doc-unheard-of" },
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, driverdesk.ErrUnknownDocumentSlot)
			},
		},
		{
			name: "report upload without date",
			mutate: func(r *driverdesk.SignUploadRequest) {
				r.EntityKind = driverdesk.EntityReport
				r.DocType = "slot-odometer-start"
				r.Date = ""
			},
			check: func(t *testing.T, err error) {
				var verr *driverdesk.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "date", verr.Field)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := svc.SignUpload(ctx, req)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestUploadRoundTrip(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.SaveApplication(ctx, driverdesk.SaveApplicationRequest{
		ID:        "app-1",
		Applicant: driverdesk.Applicant{FullName: "Somchai P.", NationalID: "1100200300400", Phone: "0812345678"},
	})
	require.NoError(t, err)

	data := []byte("citizen id scan")
	grant, err := svc.SignUpload(ctx, driverdesk.SignUploadRequest{
		EntityID:   "app-1",
		EntityKind: driverdesk.EntityApplication,
		DocType:    driverdesk.DocCitizenID,
		FileName:   "id.jpg",
		MimeType:   "image/jpeg",
		Size:       int64(len(data)),
		MD5:        md5b64(data),
	})
	require.NoError(t, err)

	// Client PUTs directly against the grant; the store checks the MD5.
	require.NoError(t, store.Put(grant.Key, data))

	app, err := svc.AttachDocument(ctx, driverdesk.AttachDocumentRequest{
		ApplicationID: "app-1",
		Slot:          driverdesk.DocCitizenID,
		Ref: driverdesk.FileRef{
			ObjectKey: grant.Key,
			FileName:  "id.jpg",
			MimeType:  "image/jpeg",
			Size:      int64(len(data)),
			MD5:       md5b64(data),
		},
	})
	require.NoError(t, err)
	require.Contains(t, app.Documents, driverdesk.DocCitizenID)

	rc, meta, err := svc.OpenFile(ctx, grant.Key)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "image/jpeg", meta.ContentType)
}

func TestUploadRejectedOnMD5Mismatch(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	grant, err := svc.SignUpload(ctx, driverdesk.SignUploadRequest{
		EntityID:   "app-1",
		EntityKind: driverdesk.EntityApplication,
		DocType:    driverdesk.DocCitizenID,
		FileName:   "id.jpg",
		MimeType:   "image/jpeg",
		Size:       10,
		MD5:        md5b64([]byte("declared bytes")),
	})
	require.NoError(t, err)

	err = store.Put(grant.Key, []byte("different bytes"))
	require.Error(t, err)

	// Nothing was written under the key.
	_, err = store.Download(ctx, grant.Key)
	assert.ErrorIs(t, err, driverdesk.ErrObjectNotFound)
}

func TestSaveApplicationUpsertPreservesDocuments(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SaveApplication(ctx, driverdesk.SaveApplicationRequest{
		ID:        "app-1",
		Applicant: driverdesk.Applicant{FullName: "Somchai P."},
	})
	require.NoError(t, err)

	_, err = svc.AttachDocument(ctx, driverdesk.AttachDocumentRequest{
		ApplicationID: "app-1",
		Slot:          driverdesk.DocDriverLicense,
		Ref:           driverdesk.FileRef{ObjectKey: "applications/app-1/doc-driver-license.jpg", MimeType: "image/jpeg", Size: 4},
	})
	require.NoError(t, err)

	// Re-saving the form sections must not drop the attached document.
	app, err := svc.SaveApplication(ctx, driverdesk.SaveApplicationRequest{
		ID:        "app-1",
		Applicant: driverdesk.Applicant{FullName: "Somchai Prasert"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Somchai Prasert", app.Applicant.FullName)
	assert.Contains(t, app.Documents, driverdesk.DocDriverLicense)
	assert.Equal(t, driverdesk.StatusPending, app.Status)
}

func TestSubmitApplicationIsIdempotent(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := fixed
	svc, _ := newTestService(t, driverdesk.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	_, err := svc.SaveApplication(ctx, driverdesk.SaveApplicationRequest{ID: "app-1"})
	require.NoError(t, err)

	first, err := svc.SubmitApplication(ctx, "app-1")
	require.NoError(t, err)
	require.NotNil(t, first.SubmittedAt)
	assert.Equal(t, fixed, *first.SubmittedAt)

	clock = fixed.Add(time.Hour)
	second, err := svc.SubmitApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, fixed, *second.SubmittedAt)
}

func TestAttachDocumentReplacementDeletesOldObject(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.SaveApplication(ctx, driverdesk.SaveApplicationRequest{ID: "app-1"})
	require.NoError(t, err)

	oldKey := "applications/app-1/doc-citizen-id.jpg"
	newKey := "applications/app-1/doc-citizen-id.png"
	require.NoError(t, store.Upload(ctx, oldKey, bytesReader("old"), "image/jpeg"))
	require.NoError(t, store.Upload(ctx, newKey, bytesReader("new"), "image/png"))

	_, err = svc.AttachDocument(ctx, driverdesk.AttachDocumentRequest{
		ApplicationID: "app-1",
		Slot:          driverdesk.DocCitizenID,
		Ref:           driverdesk.FileRef{ObjectKey: oldKey, MimeType: "image/jpeg", Size: 3},
	})
	require.NoError(t, err)

	_, err = svc.AttachDocument(ctx, driverdesk.AttachDocumentRequest{
		ApplicationID: "app-1",
		Slot:          driverdesk.DocCitizenID,
		Ref:           driverdesk.FileRef{ObjectKey: newKey, MimeType: "image/png", Size: 3},
	})
	require.NoError(t, err)

	_, err = store.Download(ctx, oldKey)
	assert.ErrorIs(t, err, driverdesk.ErrObjectNotFound, "replaced object should be cleaned up")
	_, err = store.Download(ctx, newKey)
	assert.NoError(t, err)
}

func TestAttachDocumentUnknownApplication(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AttachDocument(context.Background(), driverdesk.AttachDocumentRequest{
		ApplicationID: "missing",
		Slot:          driverdesk.DocCitizenID,
		Ref:           driverdesk.FileRef{ObjectKey: "applications/missing/doc-citizen-id.jpg"},
	})
	assert.ErrorIs(t, err, driverdesk.ErrApplicationNotFound)
}

func TestUpdateStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []driverdesk.VerificationStatus
		wantErr bool
	}{
		{name: "pending to approved", path: []driverdesk.VerificationStatus{driverdesk.StatusApproved}},
		{name: "pending to rejected", path: []driverdesk.VerificationStatus{driverdesk.StatusRejected}},
		{name: "rejected back to pending", path: []driverdesk.VerificationStatus{driverdesk.StatusRejected, driverdesk.StatusPending}},
		{name: "approved to terminated", path: []driverdesk.VerificationStatus{driverdesk.StatusApproved, driverdesk.StatusTerminated}},
		{name: "pending to terminated", path: []driverdesk.VerificationStatus{driverdesk.StatusTerminated}, wantErr: true},
		{name: "approved to rejected", path: []driverdesk.VerificationStatus{driverdesk.StatusApproved, driverdesk.StatusRejected}, wantErr: true},
		{name: "terminated is terminal", path: []driverdesk.VerificationStatus{driverdesk.StatusApproved, driverdesk.StatusTerminated, driverdesk.StatusPending}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			ctx := context.Background()
			_, err := svc.SaveApplication(ctx, driverdesk.SaveApplicationRequest{ID: "app-1"})
			require.NoError(t, err)

			var lastErr error
			for _, status := range tt.path {
				_, lastErr = svc.UpdateStatus(ctx, driverdesk.UpdateStatusRequest{
					ApplicationID: "app-1",
					Status:        status,
				})
				if lastErr != nil {
					break
				}
			}
			if tt.wantErr {
				assert.ErrorIs(t, lastErr, driverdesk.ErrInvalidStatusTransition)
			} else {
				assert.NoError(t, lastErr)
			}
		})
	}
}

type stubRenderer struct {
	pdf []byte
	err error
}

func (r *stubRenderer) RenderContract(ctx context.Context, app *driverdesk.Application) ([]byte, error) {
	return r.pdf, r.err
}

func TestGenerateContract(t *testing.T) {
	renderer := &stubRenderer{pdf: []byte("%PDF-1.4 fake contract")}
	svc, store := newTestService(t, driverdesk.WithContractRenderer(renderer))
	ctx := context.Background()

	_, err := svc.SaveApplication(ctx, driverdesk.SaveApplicationRequest{ID: "app-1"})
	require.NoError(t, err)

	// Not approved yet.
	_, err = svc.GenerateContract(ctx, "app-1")
	assert.ErrorIs(t, err, driverdesk.ErrContractNotReady)

	_, err = svc.UpdateStatus(ctx, driverdesk.UpdateStatusRequest{ApplicationID: "app-1", Status: driverdesk.StatusApproved})
	require.NoError(t, err)

	app, err := svc.GenerateContract(ctx, "app-1")
	require.NoError(t, err)

	ref, ok := app.Documents[driverdesk.DocContract]
	require.True(t, ok)
	assert.Equal(t, "applications/app-1/doc-contract.pdf", ref.ObjectKey)
	assert.Equal(t, "application/pdf", ref.MimeType)

	rc, _, err := svc.OpenFile(ctx, ref.ObjectKey)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, renderer.pdf, got)
	_ = store
}

func TestDailyReportLifecycle(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// First access creates the empty slot catalog.
	report, err := svc.GetDailyReport(ctx, "emp-7", "2025-06-01")
	require.NoError(t, err)
	require.NotEmpty(t, report.Slots)
	for _, slot := range report.Slots {
		assert.Nil(t, slot.File)
	}

	_, err = svc.GetDailyReport(ctx, "emp-7", "June 1st")
	var verr *driverdesk.ValidationError
	assert.ErrorAs(t, err, &verr)

	key := "reports/emp-7/2025-06-01/slot-odometer-start.jpg"
	require.NoError(t, store.Upload(ctx, key, bytesReader("odometer"), "image/jpeg"))

	report, err = svc.AttachReportPhoto(ctx, driverdesk.AttachReportPhotoRequest{
		EmployeeID: "emp-7",
		Date:       "2025-06-01",
		SlotID:     "slot-odometer-start",
		Ref:        driverdesk.FileRef{ObjectKey: key, MimeType: "image/jpeg", Size: 8},
	})
	require.NoError(t, err)
	slot := report.Slot("slot-odometer-start")
	require.NotNil(t, slot)
	require.NotNil(t, slot.File)
	assert.Equal(t, key, slot.File.ObjectKey)

	// Unknown slots are rejected; the catalog is fixed.
	_, err = svc.AttachReportPhoto(ctx, driverdesk.AttachReportPhotoRequest{
		EmployeeID: "emp-7",
		Date:       "2025-06-01",
		SlotID:     "slot-sunset-selfie",
		Ref:        driverdesk.FileRef{ObjectKey: key},
	})
	assert.ErrorIs(t, err, driverdesk.ErrUnknownReportSlot)

	report, err = svc.ClearReportSlot(ctx, "emp-7", "2025-06-01", "slot-odometer-start")
	require.NoError(t, err)
	slot = report.Slot("slot-odometer-start")
	require.NotNil(t, slot)
	assert.Nil(t, slot.File)

	// Clearing disposed of the stored photo.
	_, err = store.Download(ctx, key)
	assert.ErrorIs(t, err, driverdesk.ErrObjectNotFound)
}

func TestSweepOrphans(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.SaveApplication(ctx, driverdesk.SaveApplicationRequest{ID: "app-1"})
	require.NoError(t, err)

	kept := "applications/app-1/doc-citizen-id.jpg"
	orphan := "applications/app-9/doc-citizen-id.jpg"
	require.NoError(t, store.Upload(ctx, kept, bytesReader("kept"), "image/jpeg"))
	require.NoError(t, store.Upload(ctx, orphan, bytesReader("orphan"), "image/jpeg"))

	_, err = svc.AttachDocument(ctx, driverdesk.AttachDocumentRequest{
		ApplicationID: "app-1",
		Slot:          driverdesk.DocCitizenID,
		Ref:           driverdesk.FileRef{ObjectKey: kept, MimeType: "image/jpeg", Size: 4},
	})
	require.NoError(t, err)

	removed, err := svc.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Download(ctx, kept)
	assert.NoError(t, err)
	_, err = store.Download(ctx, orphan)
	assert.ErrorIs(t, err, driverdesk.ErrObjectNotFound)
}
