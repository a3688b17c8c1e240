// Package postgres implements driverdesk.Repository on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
)

// DBTX is an interface that allows us to use either a connection pool or a
// transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements driverdesk.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// NewWithPool creates a new PostgreSQL repository with a connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "staff_users") {
				return fmt.Errorf("staff user already exists")
			}
			return fmt.Errorf("duplicate entry")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Application operations

func (r *Repository) SaveApplication(ctx context.Context, app *driverdesk.Application) error {
	applicant, guarantor, vehicle, documents, err := marshalSections(app)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO applications (
			id, applicant, guarantor, vehicle, documents,
			status, note, submitted_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			applicant = EXCLUDED.applicant,
			guarantor = EXCLUDED.guarantor,
			vehicle = EXCLUDED.vehicle,
			documents = EXCLUDED.documents,
			status = EXCLUDED.status,
			note = EXCLUDED.note,
			submitted_at = EXCLUDED.submitted_at,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		app.ID, applicant, guarantor, vehicle, documents,
		string(app.Status), app.Note, app.SubmittedAt, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("save application", err)
	}
	return nil
}

func (r *Repository) GetApplication(ctx context.Context, id string) (*driverdesk.Application, error) {
	query := `
		SELECT id, applicant, guarantor, vehicle, documents,
		       status, note, submitted_at, created_at, updated_at
		FROM applications WHERE id = $1`

	return scanApplication(r.db.QueryRow(ctx, query, id))
}

func (r *Repository) ListApplications(ctx context.Context, filters driverdesk.ApplicationFilters) ([]*driverdesk.Application, error) {
	query := `
		SELECT id, applicant, guarantor, vehicle, documents,
		       status, note, submitted_at, created_at, updated_at
		FROM applications`

	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Status != nil {
		conds = append(conds, "status = "+arg(string(*filters.Status)))
	}
	if len(filters.Statuses) > 0 {
		statuses := make([]string, len(filters.Statuses))
		for i, s := range filters.Statuses {
			statuses[i] = string(s)
		}
		conds = append(conds, "status = ANY("+arg(statuses)+")")
	}
	if filters.CreatedAfter != nil {
		conds = append(conds, "created_at > "+arg(*filters.CreatedAfter))
	}
	if filters.CreatedBefore != nil {
		conds = append(conds, "created_at < "+arg(*filters.CreatedBefore))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit != nil && *filters.Limit > 0 {
		query += " LIMIT " + arg(*filters.Limit)
	}
	if filters.Offset != nil && *filters.Offset > 0 {
		query += " OFFSET " + arg(*filters.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list applications", err)
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
	query := `
		UPDATE applications
		SET status = $2,
		    note = CASE WHEN $3 = '' THEN note ELSE $3 END,
		    updated_at = $4
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, string(status), note, time.Now().UTC())
	if err != nil {
		return r.handlePostgresError("set application status", err)
	}
	if tag.RowsAffected() == 0 {
		return driverdesk.ErrApplicationNotFound
	}
	return nil
}

func (r *Repository) SetDocument(ctx context.Context, appID, slot string, ref driverdesk.FileRef) (*driverdesk.FileRef, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, r.handlePostgresError("set document", err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT documents FROM applications WHERE id = $1 FOR UPDATE`, appID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, driverdesk.ErrApplicationNotFound
		}
		return nil, r.handlePostgresError("set document", err)
	}

	documents := map[string]driverdesk.FileRef{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &documents); err != nil {
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
	_, err = tx.Exec(ctx,
		`UPDATE applications SET documents = $2, updated_at = $3 WHERE id = $1`,
		appID, updated, time.Now().UTC())
	if err != nil {
		return nil, r.handlePostgresError("set document", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, r.handlePostgresError("set document", err)
	}
	return previous, nil
}

// Daily report operations

func (r *Repository) GetDailyReport(ctx context.Context, employeeID, date string) (*driverdesk.DailyReport, error) {
	query := `
		SELECT employee_id, report_date, slots, created_at, updated_at
		FROM daily_reports WHERE employee_id = $1 AND report_date = $2`

	var report driverdesk.DailyReport
	var raw []byte
	err := r.db.QueryRow(ctx, query, employeeID, date).Scan(
		&report.EmployeeID, &report.Date, &raw, &report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, driverdesk.ErrReportNotFound
		}
		return nil, r.handlePostgresError("get daily report", err)
	}
	if err := json.Unmarshal(raw, &report.Slots); err != nil {
		return nil, fmt.Errorf("decode report slots: %w", err)
	}
	return &report, nil
}

func (r *Repository) SaveDailyReport(ctx context.Context, report *driverdesk.DailyReport) error {
	slots, err := json.Marshal(report.Slots)
	if err != nil {
		return fmt.Errorf("encode report slots: %w", err)
	}

	query := `
		INSERT INTO daily_reports (employee_id, report_date, slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (employee_id, report_date) DO UPDATE SET
			slots = EXCLUDED.slots,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		report.EmployeeID, report.Date, slots, report.CreatedAt, report.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("save daily report", err)
	}
	return nil
}

func (r *Repository) SetReportSlot(ctx context.Context, employeeID, date, slotID string, ref *driverdesk.FileRef) (*driverdesk.FileRef, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, r.handlePostgresError("set report slot", err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT slots FROM daily_reports WHERE employee_id = $1 AND report_date = $2 FOR UPDATE`,
		employeeID, date).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, driverdesk.ErrReportNotFound
		}
		return nil, r.handlePostgresError("set report slot", err)
	}

	var slots []driverdesk.ReportSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
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
	_, err = tx.Exec(ctx,
		`UPDATE daily_reports SET slots = $3, updated_at = $4 WHERE employee_id = $1 AND report_date = $2`,
		employeeID, date, updated, time.Now().UTC())
	if err != nil {
		return nil, r.handlePostgresError("set report slot", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, r.handlePostgresError("set report slot", err)
	}
	return previous, nil
}

// Staff account operations

func (r *Repository) CreateStaffUser(ctx context.Context, user *driverdesk.StaffUser) error {
	query := `
		INSERT INTO staff_users (id, username, password_hash, password_salt, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		user.ID, user.Username, user.PasswordHash, user.PasswordSalt, user.Role, user.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create staff user", err)
	}
	return nil
}

func (r *Repository) GetStaffUserByUsername(ctx context.Context, username string) (*driverdesk.StaffUser, error) {
	query := `
		SELECT id, username, password_hash, password_salt, role, created_at
		FROM staff_users WHERE username = $1`

	var user driverdesk.StaffUser
	err := r.db.QueryRow(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.PasswordSalt, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, driverdesk.ErrUserNotFound
		}
		return nil, r.handlePostgresError("get staff user", err)
	}
	return &user, nil
}

func (r *Repository) ListReferencedObjectKeys(ctx context.Context) ([]string, error) {
	var keys []string

	rows, err := r.db.Query(ctx, `
		SELECT d.value->>'object_key'
		FROM applications a, jsonb_each(a.documents) d`)
	if err != nil {
		return nil, r.handlePostgresError("list referenced keys", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key *string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if key != nil && *key != "" {
			keys = append(keys, *key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Query(ctx, `
		SELECT s->'file'->>'object_key'
		FROM daily_reports r, jsonb_array_elements(r.slots) s
		WHERE s->'file' IS NOT NULL AND s->'file' != 'null'::jsonb`)
	if err != nil {
		return nil, r.handlePostgresError("list referenced keys", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key *string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if key != nil && *key != "" {
			keys = append(keys, *key)
		}
	}
	return keys, rows.Err()
}

// Helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*driverdesk.Application, error) {
	var app driverdesk.Application
	var applicant, guarantor, vehicle, documents []byte
	var status string

	err := row.Scan(&app.ID, &applicant, &guarantor, &vehicle, &documents,
		&status, &app.Note, &app.SubmittedAt, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, driverdesk.ErrApplicationNotFound
		}
		return nil, err
	}

	app.Status = driverdesk.VerificationStatus(status)
	if err := json.Unmarshal(applicant, &app.Applicant); err != nil {
		return nil, fmt.Errorf("decode applicant: %w", err)
	}
	if err := json.Unmarshal(guarantor, &app.Guarantor); err != nil {
		return nil, fmt.Errorf("decode guarantor: %w", err)
	}
	if err := json.Unmarshal(vehicle, &app.Vehicle); err != nil {
		return nil, fmt.Errorf("decode vehicle: %w", err)
	}
	app.Documents = map[string]driverdesk.FileRef{}
	if len(documents) > 0 {
		if err := json.Unmarshal(documents, &app.Documents); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
	}
	return &app, nil
}

func marshalSections(app *driverdesk.Application) (applicant, guarantor, vehicle, documents []byte, err error) {
	if applicant, err = json.Marshal(app.Applicant); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode applicant: %w", err)
	}
	if guarantor, err = json.Marshal(app.Guarantor); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode guarantor: %w", err)
	}
	if vehicle, err = json.Marshal(app.Vehicle); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode vehicle: %w", err)
	}
	docs := app.Documents
	if docs == nil {
		docs = map[string]driverdesk.FileRef{}
	}
	if documents, err = json.Marshal(docs); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode documents: %w", err)
	}
	return applicant, guarantor, vehicle, documents, nil
}
