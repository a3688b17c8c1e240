// Package sqlite implements driverdesk.Repository on SQLite. It serves
// single-node deployments and keeps parity with the D1-compatible schema the
// hosted edge tier uses.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
)

// Repository implements driverdesk.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path and returns a repository
// bound to it.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; more connections only produce
	// SQLITE_BUSY under contention.
	db.SetMaxOpenConns(1)
	return &Repository{db: db}, nil
}

// New wraps an already-open database handle.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle, mainly for migrations.
func (r *Repository) DB() *sql.DB { return r.db }

// Close closes the underlying database handle.
func (r *Repository) Close() error { return r.db.Close() }

// Application operations

func (r *Repository) SaveApplication(ctx context.Context, app *driverdesk.Application) error {
	applicant, err := json.Marshal(app.Applicant)
	if err != nil {
		return fmt.Errorf("encode applicant: %w", err)
	}
	guarantor, err := json.Marshal(app.Guarantor)
	if err != nil {
		return fmt.Errorf("encode guarantor: %w", err)
	}
	vehicle, err := json.Marshal(app.Vehicle)
	if err != nil {
		return fmt.Errorf("encode vehicle: %w", err)
	}
	docs := app.Documents
	if docs == nil {
		docs = map[string]driverdesk.FileRef{}
	}
	documents, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}

	query := `
		INSERT INTO applications (
			id, applicant, guarantor, vehicle, documents,
			status, note, submitted_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			applicant = excluded.applicant,
			guarantor = excluded.guarantor,
			vehicle = excluded.vehicle,
			documents = excluded.documents,
			status = excluded.status,
			note = excluded.note,
			submitted_at = excluded.submitted_at,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		app.ID, string(applicant), string(guarantor), string(vehicle), string(documents),
		string(app.Status), app.Note, app.SubmittedAt, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save application: %w", err)
	}
	return nil
}

func (r *Repository) GetApplication(ctx context.Context, id string) (*driverdesk.Application, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, applicant, guarantor, vehicle, documents,
		       status, note, submitted_at, created_at, updated_at
		FROM applications WHERE id = ?`, id)
	return scanApplication(row)
}

func (r *Repository) ListApplications(ctx context.Context, filters driverdesk.ApplicationFilters) ([]*driverdesk.Application, error) {
	query := `
		SELECT id, applicant, guarantor, vehicle, documents,
		       status, note, submitted_at, created_at, updated_at
		FROM applications`

	var conds []string
	var args []interface{}

	if filters.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filters.Status))
	}
	if len(filters.Statuses) > 0 {
		placeholders := make([]string, len(filters.Statuses))
		for i, s := range filters.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filters.CreatedAfter != nil {
		conds = append(conds, "created_at > ?")
		args = append(args, *filters.CreatedAfter)
	}
	if filters.CreatedBefore != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, *filters.CreatedBefore)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit != nil && *filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, *filters.Limit)
	}
	if filters.Offset != nil && *filters.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, *filters.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var result []*driverdesk.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, app)
	}
	return result, rows.Err()
}

func (r *Repository) SetApplicationStatus(ctx context.Context, id string, status driverdesk.VerificationStatus, note string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE applications
		SET status = ?,
		    note = CASE WHEN ? = '' THEN note ELSE ? END,
		    updated_at = ?
		WHERE id = ?`,
		string(status), note, note, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set application status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set application status: %w", err)
	}
	if affected == 0 {
		return driverdesk.ErrApplicationNotFound
	}
	return nil
}

func (r *Repository) SetDocument(ctx context.Context, appID, slot string, ref driverdesk.FileRef) (*driverdesk.FileRef, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("set document: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT documents FROM applications WHERE id = ?`, appID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, driverdesk.ErrApplicationNotFound
		}
		return nil, fmt.Errorf("set document: %w", err)
	}

	documents := map[string]driverdesk.FileRef{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &documents); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
	}

	var previous *driverdesk.FileRef
	if prev, ok := documents[slot]; ok {
		prevCopy := prev
		previous = &prevCopy
	}
	documents[slot] = ref

	updated, err := json.Marshal(documents)
	if err != nil {
		return nil, fmt.Errorf("encode documents: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE applications SET documents = ?, updated_at = ? WHERE id = ?`,
		string(updated), time.Now().UTC(), appID)
	if err != nil {
		return nil, fmt.Errorf("set document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("set document: %w", err)
	}
	return previous, nil
}

// Daily report operations

func (r *Repository) GetDailyReport(ctx context.Context, employeeID, date string) (*driverdesk.DailyReport, error) {
	var report driverdesk.DailyReport
	var raw string
	err := r.db.QueryRowContext(ctx, `
		SELECT employee_id, report_date, slots, created_at, updated_at
		FROM daily_reports WHERE employee_id = ? AND report_date = ?`,
		employeeID, date).Scan(
		&report.EmployeeID, &report.Date, &raw, &report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, driverdesk.ErrReportNotFound
		}
		return nil, fmt.Errorf("get daily report: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &report.Slots); err != nil {
		return nil, fmt.Errorf("decode report slots: %w", err)
	}
	return &report, nil
}

func (r *Repository) SaveDailyReport(ctx context.Context, report *driverdesk.DailyReport) error {
	slots, err := json.Marshal(report.Slots)
	if err != nil {
		return fmt.Errorf("encode report slots: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO daily_reports (employee_id, report_date, slots, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (employee_id, report_date) DO UPDATE SET
			slots = excluded.slots,
			updated_at = excluded.updated_at`,
		report.EmployeeID, report.Date, string(slots), report.CreatedAt, report.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save daily report: %w", err)
	}
	return nil
}

func (r *Repository) SetReportSlot(ctx context.Context, employeeID, date, slotID string, ref *driverdesk.FileRef) (*driverdesk.FileRef, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("set report slot: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT slots FROM daily_reports WHERE employee_id = ? AND report_date = ?`,
		employeeID, date).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, driverdesk.ErrReportNotFound
		}
		return nil, fmt.Errorf("set report slot: %w", err)
	}

	var slots []driverdesk.ReportSlot
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		return nil, fmt.Errorf("decode report slots: %w", err)
	}

	var previous *driverdesk.FileRef
	found := false
	for i := range slots {
		if slots[i].ID == slotID {
			previous = slots[i].File
			slots[i].File = ref
			found = true
			break
		}
	}
	if !found {
		return nil, driverdesk.ErrUnknownReportSlot
	}

	updated, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("encode report slots: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE daily_reports SET slots = ?, updated_at = ? WHERE employee_id = ? AND report_date = ?`,
		string(updated), time.Now().UTC(), employeeID, date)
	if err != nil {
		return nil, fmt.Errorf("set report slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("set report slot: %w", err)
	}
	return previous, nil
}

// Staff account operations

func (r *Repository) CreateStaffUser(ctx context.Context, user *driverdesk.StaffUser) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO staff_users (id, username, password_hash, password_salt, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID.String(), user.Username, user.PasswordHash, user.PasswordSalt, user.Role, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create staff user: %w", err)
	}
	return nil
}

func (r *Repository) GetStaffUserByUsername(ctx context.Context, username string) (*driverdesk.StaffUser, error) {
	var user driverdesk.StaffUser
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, password_salt, role, created_at
		FROM staff_users WHERE username = ?`, username).Scan(
		&id, &user.Username, &user.PasswordHash, &user.PasswordSalt, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, driverdesk.ErrUserNotFound
		}
		return nil, fmt.Errorf("get staff user: %w", err)
	}
	if user.ID, err = parseUserID(id); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) ListReferencedObjectKeys(ctx context.Context) ([]string, error) {
	var keys []string

	rows, err := r.db.QueryContext(ctx, `SELECT documents FROM applications`)
	if err != nil {
		return nil, fmt.Errorf("list referenced keys: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		documents := map[string]driverdesk.FileRef{}
		if err := json.Unmarshal([]byte(raw), &documents); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
		for _, ref := range documents {
			if ref.ObjectKey != "" {
				keys = append(keys, ref.ObjectKey)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx, `SELECT slots FROM daily_reports`)
	if err != nil {
		return nil, fmt.Errorf("list referenced keys: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var slots []driverdesk.ReportSlot
		if err := json.Unmarshal([]byte(raw), &slots); err != nil {
			return nil, fmt.Errorf("decode report slots: %w", err)
		}
		for _, slot := range slots {
			if slot.File != nil && slot.File.ObjectKey != "" {
				keys = append(keys, slot.File.ObjectKey)
			}
		}
	}
	return keys, rows.Err()
}

// Helpers

func parseUserID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse staff user id %q: %w", id, err)
	}
	return parsed, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*driverdesk.Application, error) {
	var app driverdesk.Application
	var applicant, guarantor, vehicle, documents string
	var status string

	err := row.Scan(&app.ID, &applicant, &guarantor, &vehicle, &documents,
		&status, &app.Note, &app.SubmittedAt, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, driverdesk.ErrApplicationNotFound
		}
		return nil, err
	}

	app.Status = driverdesk.VerificationStatus(status)
	if err := json.Unmarshal([]byte(applicant), &app.Applicant); err != nil {
		return nil, fmt.Errorf("decode applicant: %w", err)
	}
	if err := json.Unmarshal([]byte(guarantor), &app.Guarantor); err != nil {
		return nil, fmt.Errorf("decode guarantor: %w", err)
	}
	if err := json.Unmarshal([]byte(vehicle), &app.Vehicle); err != nil {
		return nil, fmt.Errorf("decode vehicle: %w", err)
	}
	app.Documents = map[string]driverdesk.FileRef{}
	if documents != "" {
		if err := json.Unmarshal([]byte(documents), &app.Documents); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
	}
	return &app, nil
}
