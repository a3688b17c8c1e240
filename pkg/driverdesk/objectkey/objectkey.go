// Package objectkey derives storage keys for uploaded documents and report
// photos. Keys are deterministic per (entity, slot) so a retried or repeated
// upload overwrites the previous object instead of orphaning it. The
// user-supplied filename contributes only its extension; the slot id names
// the object.
package objectkey

import (
	"fmt"
	"path"
	"strings"
)

const (
	applicationPrefix = "applications"
	reportPrefix      = "reports"
)

// ForDocument returns the storage key for an application document slot,
// e.g. "applications/app-1/doc-citizen-id.jpg".
func ForDocument(applicationID, slot, fileName string) (string, error) {
	if err := validateComponent("application id", applicationID); err != nil {
		return "", err
	}
	if err := validateComponent("document slot", slot); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s%s",
		applicationPrefix,
		sanitize(applicationID),
		sanitize(slot),
		extension(fileName)), nil
}

// ForReportSlot returns the storage key for a daily-report photo slot,
// e.g. "reports/emp-7/2026-08-30/slot-odometer-start.jpg".
func ForReportSlot(employeeID, date, slotID, fileName string) (string, error) {
	if err := validateComponent("employee id", employeeID); err != nil {
		return "", err
	}
	if err := validateComponent("date", date); err != nil {
		return "", err
	}
	if err := validateComponent("report slot", slotID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s/%s%s",
		reportPrefix,
		sanitize(employeeID),
		sanitize(date),
		sanitize(slotID),
		extension(fileName)), nil
}

// ApplicationPrefix returns the key prefix holding all documents of one
// application.
func ApplicationPrefix(applicationID string) string {
	return applicationPrefix + "/" + sanitize(applicationID) + "/"
}

func validateComponent(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must not be empty", name)
	}
	return nil
}

// extension returns a sanitized, lowercased extension including the dot, or
// an empty string when the filename has none.
func extension(fileName string) string {
	ext := strings.ToLower(path.Ext(path.Base(fileName)))
	if ext == "." || ext == "" {
		return ""
	}
	return "." + sanitize(ext[1:])
}

var keyReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "_",
	"#", "_",
	"%", "_",
)

func sanitize(component string) string {
	return keyReplacer.Replace(component)
}
