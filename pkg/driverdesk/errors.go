package driverdesk

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrApplicationNotFound indicates an application was not found
	ErrApplicationNotFound = errors.New("application not found")

	// ErrReportNotFound indicates a daily report was not found
	ErrReportNotFound = errors.New("daily report not found")

	// ErrObjectNotFound indicates an object was not found in the blob store
	ErrObjectNotFound = errors.New("object not found")

	// ErrUserNotFound indicates a staff user was not found
	ErrUserNotFound = errors.New("staff user not found")

	// ErrUnknownDocumentSlot indicates a document slot outside the catalog
	ErrUnknownDocumentSlot = errors.New("unknown document slot")

	// ErrUnknownReportSlot indicates a report slot outside the catalog
	ErrUnknownReportSlot = errors.New("unknown report slot")

	// ErrInvalidStatusTransition indicates a disallowed verification status change
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrInvalidCredentials indicates a failed staff login
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrContractNotReady indicates contract generation on a non-approved application
	ErrContractNotReady = errors.New("application not approved for contract generation")

	// ErrSigningUnavailable indicates the blob store could not issue an upload grant
	ErrSigningUnavailable = errors.New("upload signing unavailable")
)

// ValidationError reports a bad or missing request field. It maps to a 400 at
// the API layer.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// ApplicationError wraps an error from an application operation.
type ApplicationError struct {
	ApplicationID string
	Op            string
	Err           error
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("application operation %s failed for %s: %v", e.Op, e.ApplicationID, e.Err)
}

func (e *ApplicationError) Unwrap() error {
	return e.Err
}

// ReportError wraps an error from a daily-report operation.
type ReportError struct {
	EmployeeID string
	Date       string
	Op         string
	Err        error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("report operation %s failed for %s/%s: %v", e.Op, e.EmployeeID, e.Date, e.Err)
}

func (e *ReportError) Unwrap() error {
	return e.Err
}

// StorageError wraps an error from a blob store operation.
type StorageError struct {
	Key string
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
