package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/repo/memory"
)

func newApplication(id string) *driverdesk.Application {
	now := time.Now().UTC()
	return &driverdesk.Application{
		ID:        id,
		Applicant: driverdesk.Applicant{FullName: "Somchai P."},
		Documents: map[string]driverdesk.FileRef{},
		Status:    driverdesk.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSaveAndGetApplication(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	require.NoError(t, repo.SaveApplication(ctx, newApplication("app-1")))

	got, err := repo.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, "app-1", got.ID)

	_, err = repo.GetApplication(ctx, "missing")
	assert.ErrorIs(t, err, driverdesk.ErrApplicationNotFound)
}

func TestGetApplicationReturnsCopy(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.SaveApplication(ctx, newApplication("app-1")))

	got, err := repo.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	got.Applicant.FullName = "Mutated"
	got.Documents["doc-citizen-id"] = driverdesk.FileRef{ObjectKey: "sneaky"}

	fresh, err := repo.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, "Somchai P.", fresh.Applicant.FullName)
	assert.Empty(t, fresh.Documents)
}

func TestSetDocumentReturnsPrevious(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.SaveApplication(ctx, newApplication("app-1")))

	previous, err := repo.SetDocument(ctx, "app-1", driverdesk.DocCitizenID, driverdesk.FileRef{ObjectKey: "k1"})
	require.NoError(t, err)
	assert.Nil(t, previous)

	previous, err = repo.SetDocument(ctx, "app-1", driverdesk.DocCitizenID, driverdesk.FileRef{ObjectKey: "k2"})
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, "k1", previous.ObjectKey)

	_, err = repo.SetDocument(ctx, "missing", driverdesk.DocCitizenID, driverdesk.FileRef{ObjectKey: "k"})
	assert.ErrorIs(t, err, driverdesk.ErrApplicationNotFound)
}

func TestListApplicationsFilters(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	a := newApplication("app-1")
	b := newApplication("app-2")
	b.Status = driverdesk.StatusApproved
	require.NoError(t, repo.SaveApplication(ctx, a))
	require.NoError(t, repo.SaveApplication(ctx, b))

	approved := driverdesk.StatusApproved
	got, err := repo.ListApplications(ctx, driverdesk.ApplicationFilters{Status: &approved})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "app-2", got[0].ID)

	all, err := repo.ListApplications(ctx, driverdesk.ApplicationFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	limit := 1
	limited, err := repo.ListApplications(ctx, driverdesk.ApplicationFilters{Limit: &limit})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSetApplicationStatus(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.SaveApplication(ctx, newApplication("app-1")))

	require.NoError(t, repo.SetApplicationStatus(ctx, "app-1", driverdesk.StatusApproved, "looks good"))
	got, err := repo.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, driverdesk.StatusApproved, got.Status)
	assert.Equal(t, "looks good", got.Note)

	err = repo.SetApplicationStatus(ctx, "missing", driverdesk.StatusApproved, "")
	assert.ErrorIs(t, err, driverdesk.ErrApplicationNotFound)
}

func TestReportSlots(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	_, err := repo.GetDailyReport(ctx, "emp-7", "2025-06-01")
	assert.ErrorIs(t, err, driverdesk.ErrReportNotFound)

	report := driverdesk.NewDailyReport("emp-7", "2025-06-01", time.Now().UTC())
	require.NoError(t, repo.SaveDailyReport(ctx, report))

	ref := &driverdesk.FileRef{ObjectKey: "reports/emp-7/2025-06-01/slot-odometer-start.jpg"}
	previous, err := repo.SetReportSlot(ctx, "emp-7", "2025-06-01", "slot-odometer-start", ref)
	require.NoError(t, err)
	assert.Nil(t, previous)

	// Clearing returns what was there.
	previous, err = repo.SetReportSlot(ctx, "emp-7", "2025-06-01", "slot-odometer-start", nil)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, ref.ObjectKey, previous.ObjectKey)

	_, err = repo.SetReportSlot(ctx, "emp-7", "2025-06-01", "slot-nope", ref)
	assert.ErrorIs(t, err, driverdesk.ErrUnknownReportSlot)

	_, err = repo.SetReportSlot(ctx, "emp-9", "2025-06-01", "slot-odometer-start", ref)
	assert.ErrorIs(t, err, driverdesk.ErrReportNotFound)
}

func TestStaffUsers(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	user := &driverdesk.StaffUser{
		ID:           uuid.New(),
		Username:     "reviewer",
		PasswordHash: []byte{1, 2, 3},
		PasswordSalt: []byte{4, 5, 6},
		Role:         "staff",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.CreateStaffUser(ctx, user))

	got, err := repo.GetStaffUserByUsername(ctx, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = repo.GetStaffUserByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, driverdesk.ErrUserNotFound)
}

func TestListReferencedObjectKeys(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	app := newApplication("app-1")
	app.Documents[driverdesk.DocCitizenID] = driverdesk.FileRef{ObjectKey: "applications/app-1/doc-citizen-id.jpg"}
	require.NoError(t, repo.SaveApplication(ctx, app))

	report := driverdesk.NewDailyReport("emp-7", "2025-06-01", time.Now().UTC())
	require.NoError(t, repo.SaveDailyReport(ctx, report))
	_, err := repo.SetReportSlot(ctx, "emp-7", "2025-06-01", "slot-odometer-start",
		&driverdesk.FileRef{ObjectKey: "reports/emp-7/2025-06-01/slot-odometer-start.jpg"})
	require.NoError(t, err)

	keys, err := repo.ListReferencedObjectKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"applications/app-1/doc-citizen-id.jpg",
		"reports/emp-7/2025-06-01/slot-odometer-start.jpg",
	}, keys)
}
