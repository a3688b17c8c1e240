package driverdesk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mustTime(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
}

func TestCanTransitionStatus(t *testing.T) {
	allowed := []struct{ from, to VerificationStatus }{
		{StatusPending, StatusApproved},
		{StatusPending, StatusRejected},
		{StatusRejected, StatusPending},
		{StatusApproved, StatusTerminated},
	}
	for _, tt := range allowed {
		ok, err := canTransitionStatus(tt.from, tt.to)
		assert.True(t, ok, "%s -> %s", tt.from, tt.to)
		assert.NoError(t, err)
	}

	denied := []struct{ from, to VerificationStatus }{
		{StatusPending, StatusTerminated},
		{StatusApproved, StatusPending},
		{StatusApproved, StatusRejected},
		{StatusRejected, StatusApproved},
		{StatusRejected, StatusTerminated},
		{StatusTerminated, StatusPending},
		{StatusTerminated, StatusApproved},
		{StatusTerminated, StatusRejected},
	}
	for _, tt := range denied {
		ok, err := canTransitionStatus(tt.from, tt.to)
		assert.False(t, ok, "%s -> %s", tt.from, tt.to)
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []VerificationStatus{StatusPending, StatusApproved, StatusRejected, StatusTerminated} {
		assert.True(t, ValidStatus(s))
	}
	assert.False(t, ValidStatus("archived"))
}

func TestNewDailyReportSlotCatalog(t *testing.T) {
	report := NewDailyReport("emp-7", "2025-06-01", mustTime(t))

	assert.Equal(t, "emp-7", report.EmployeeID)
	assert.Equal(t, "2025-06-01", report.Date)
	assert.NotEmpty(t, report.Slots)

	for _, slot := range report.Slots {
		assert.True(t, KnownReportSlot(slot.ID))
		assert.Nil(t, slot.File)
		assert.NotEmpty(t, slot.Label)
	}

	assert.NotNil(t, report.Slot("slot-odometer-start"))
	assert.Nil(t, report.Slot("slot-unknown"))
}

func TestKnownDocumentSlot(t *testing.T) {
	for _, slot := range ApplicationDocumentSlots {
		assert.True(t, KnownDocumentSlot(slot))
	}
	assert.False(t, KnownDocumentSlot("doc-horoscope"))
}
