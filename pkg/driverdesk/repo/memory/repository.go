// Package memory provides an in-memory Repository used by tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
)

// Repository implements driverdesk.Repository using in-memory storage
type Repository struct {
	mu           sync.RWMutex
	applications map[string]*driverdesk.Application
	reports      map[string]*driverdesk.DailyReport // "employee|date"
	users        map[string]*driverdesk.StaffUser   // by username
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		applications: make(map[string]*driverdesk.Application),
		reports:      make(map[string]*driverdesk.DailyReport),
		users:        make(map[string]*driverdesk.StaffUser),
	}
}

func reportKey(employeeID, date string) string {
	return employeeID + "|" + date
}

// Application operations

func (r *Repository) SaveApplication(ctx context.Context, app *driverdesk.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to avoid external modifications.
	appCopy := copyApplication(app)
	r.applications[app.ID] = appCopy
	return nil
}

func (r *Repository) GetApplication(ctx context.Context, id string) (*driverdesk.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, exists := r.applications[id]
	if !exists {
		return nil, driverdesk.ErrApplicationNotFound
	}
	return copyApplication(app), nil
}

func (r *Repository) ListApplications(ctx context.Context, filters driverdesk.ApplicationFilters) ([]*driverdesk.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*driverdesk.Application
	for _, app := range r.applications {
		if !matchFilters(app, filters) {
			continue
		}
		result = append(result, copyApplication(app))
	}

	// Sort by created_at descending
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filters.Offset != nil && *filters.Offset > 0 {
		if *filters.Offset >= len(result) {
			return []*driverdesk.Application{}, nil
		}
		result = result[*filters.Offset:]
	}
	if filters.Limit != nil && *filters.Limit > 0 && *filters.Limit < len(result) {
		result = result[:*filters.Limit]
	}
	return result, nil
}

func (r *Repository) SetApplicationStatus(ctx context.Context, id string, status driverdesk.VerificationStatus, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, exists := r.applications[id]
	if !exists {
		return driverdesk.ErrApplicationNotFound
	}
	app.Status = status
	if note != "" {
		app.Note = note
	}
	app.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) SetDocument(ctx context.Context, appID, slot string, ref driverdesk.FileRef) (*driverdesk.FileRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, exists := r.applications[appID]
	if !exists {
		return nil, driverdesk.ErrApplicationNotFound
	}
	if app.Documents == nil {
		app.Documents = map[string]driverdesk.FileRef{}
	}

	var previous *driverdesk.FileRef
	if prev, ok := app.Documents[slot]; ok {
		prevCopy := prev
		previous = &prevCopy
	}
	app.Documents[slot] = ref
	app.UpdatedAt = time.Now().UTC()
	return previous, nil
}

// Daily report operations

func (r *Repository) GetDailyReport(ctx context.Context, employeeID, date string) (*driverdesk.DailyReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report, exists := r.reports[reportKey(employeeID, date)]
	if !exists {
		return nil, driverdesk.ErrReportNotFound
	}
	return copyReport(report), nil
}

func (r *Repository) SaveDailyReport(ctx context.Context, report *driverdesk.DailyReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports[reportKey(report.EmployeeID, report.Date)] = copyReport(report)
	return nil
}

func (r *Repository) SetReportSlot(ctx context.Context, employeeID, date, slotID string, ref *driverdesk.FileRef) (*driverdesk.FileRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report, exists := r.reports[reportKey(employeeID, date)]
	if !exists {
		return nil, driverdesk.ErrReportNotFound
	}
	slot := report.Slot(slotID)
	if slot == nil {
		return nil, driverdesk.ErrUnknownReportSlot
	}

	previous := slot.File
	if ref != nil {
		refCopy := *ref
		slot.File = &refCopy
	} else {
		slot.File = nil
	}
	report.UpdatedAt = time.Now().UTC()
	return previous, nil
}

// Staff account operations

func (r *Repository) CreateStaffUser(ctx context.Context, user *driverdesk.StaffUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.Username]; exists {
		return fmt.Errorf("staff user %s already exists", user.Username)
	}
	userCopy := *user
	r.users[user.Username] = &userCopy
	return nil
}

func (r *Repository) GetStaffUserByUsername(ctx context.Context, username string) (*driverdesk.StaffUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[username]
	if !exists {
		return nil, driverdesk.ErrUserNotFound
	}
	userCopy := *user
	return &userCopy, nil
}

func (r *Repository) ListReferencedObjectKeys(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []string
	for _, app := range r.applications {
		for _, ref := range app.Documents {
			keys = append(keys, ref.ObjectKey)
		}
	}
	for _, report := range r.reports {
		for _, slot := range report.Slots {
			if slot.File != nil {
				keys = append(keys, slot.File.ObjectKey)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func matchFilters(app *driverdesk.Application, filters driverdesk.ApplicationFilters) bool {
	if filters.Status != nil && app.Status != *filters.Status {
		return false
	}
	if len(filters.Statuses) > 0 {
		found := false
		for _, s := range filters.Statuses {
			if app.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filters.CreatedAfter != nil && !app.CreatedAt.After(*filters.CreatedAfter) {
		return false
	}
	if filters.CreatedBefore != nil && !app.CreatedAt.Before(*filters.CreatedBefore) {
		return false
	}
	return true
}

func copyApplication(app *driverdesk.Application) *driverdesk.Application {
	appCopy := *app
	appCopy.Documents = make(map[string]driverdesk.FileRef, len(app.Documents))
	for k, v := range app.Documents {
		appCopy.Documents[k] = v
	}
	if app.SubmittedAt != nil {
		t := *app.SubmittedAt
		appCopy.SubmittedAt = &t
	}
	return &appCopy
}

func copyReport(report *driverdesk.DailyReport) *driverdesk.DailyReport {
	reportCopy := *report
	reportCopy.Slots = make([]driverdesk.ReportSlot, len(report.Slots))
	copy(reportCopy.Slots, report.Slots)
	for i := range reportCopy.Slots {
		if reportCopy.Slots[i].File != nil {
			ref := *reportCopy.Slots[i].File
			reportCopy.Slots[i].File = &ref
		}
	}
	return &reportCopy
}
