package driverdesk

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the domain type for application lifecycle states.
type VerificationStatus string

// Application status constants (typed).
const (
	StatusPending    VerificationStatus = "pending"
	StatusApproved   VerificationStatus = "approved"
	StatusRejected   VerificationStatus = "rejected"
	StatusTerminated VerificationStatus = "terminated"
)

// EntityKind identifies which aggregate an uploaded object belongs to.
type EntityKind string

const (
	EntityApplication EntityKind = "application"
	EntityReport      EntityKind = "report"
)

// Document slot identifiers for the application manifest. Object keys are
// derived from these rather than from user-supplied filenames, so the slot id
// doubles as the stable storage name of the document.
const (
	DocCitizenID           = "doc-citizen-id"
	DocDriverLicense       = "doc-driver-license"
	DocVehicleRegistration = "doc-vehicle-registration"
	DocCriminalRecord      = "doc-criminal-record"
	DocBankBook            = "doc-bank-book"
	DocSignature           = "doc-signature"
	DocGuarantorCitizenID  = "doc-guarantor-citizen-id"
	DocContract            = "doc-contract"
)

// ApplicationDocumentSlots is the fixed set of document slots an application
// manifest may hold, in display order.
var ApplicationDocumentSlots = []string{
	DocCitizenID,
	DocDriverLicense,
	DocVehicleRegistration,
	DocCriminalRecord,
	DocBankBook,
	DocSignature,
	DocGuarantorCitizenID,
	DocContract,
}

// FileRef points at one object in the blob store. Immutable once written; a
// replacement produces a new FileRef and the old object's key is queued for
// best-effort deletion.
type FileRef struct {
	ObjectKey  string    `json:"object_key"`
	FileName   string    `json:"file_name,omitempty"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	MD5        string    `json:"md5,omitempty"` // base64, as declared at signing time
	UploadedAt time.Time `json:"uploaded_at"`
}

// Applicant holds the personal section of an application manifest.
type Applicant struct {
	FullName   string `json:"full_name"`
	NationalID string `json:"national_id"`
	BirthDate  string `json:"birth_date,omitempty"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
	Address    string `json:"address,omitempty"`
}

// Guarantor holds the guarantor section of an application manifest.
type Guarantor struct {
	FullName   string `json:"full_name"`
	NationalID string `json:"national_id"`
	Phone      string `json:"phone"`
	Address    string `json:"address,omitempty"`
	Relation   string `json:"relation,omitempty"`
}

// Vehicle holds the vehicle section of an application manifest.
type Vehicle struct {
	PlateNumber    string `json:"plate_number"`
	Brand          string `json:"brand,omitempty"`
	Model          string `json:"model,omitempty"`
	Year           string `json:"year,omitempty"`
	RegistrationID string `json:"registration_id,omitempty"`
}

// Application is the aggregate root for one job application: the applicant,
// guarantor, and vehicle sections plus a map of named document slots and a
// verification status. The ID is the externally supplied application id.
type Application struct {
	ID          string             `json:"id"`
	Applicant   Applicant          `json:"applicant"`
	Guarantor   Guarantor          `json:"guarantor"`
	Vehicle     Vehicle            `json:"vehicle"`
	Documents   map[string]FileRef `json:"documents"`
	Status      VerificationStatus `json:"status"`
	Note        string             `json:"note,omitempty"`
	SubmittedAt *time.Time         `json:"submitted_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ReportSlot is one named, fixed-cardinality position for a photo within a
// daily report. Slots are never removed, only cleared (File unset).
type ReportSlot struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Group string   `json:"group"`
	File  *FileRef `json:"file,omitempty"`
}

// DailyReport holds the photo evidence for one (employee, date) delivery
// shift. Created with the full empty slot catalog at first access.
type DailyReport struct {
	EmployeeID string       `json:"employee_id"`
	Date       string       `json:"date"` // YYYY-MM-DD
	Slots      []ReportSlot `json:"slots"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Slot returns a pointer into the report's slot list, or nil if the id is not
// part of the catalog.
func (r *DailyReport) Slot(slotID string) *ReportSlot {
	for i := range r.Slots {
		if r.Slots[i].ID == slotID {
			return &r.Slots[i]
		}
	}
	return nil
}

// reportSlotDef is one entry of the fixed per-day slot catalog.
type reportSlotDef struct {
	ID    string
	Label string
	Group string
}

var reportSlotCatalog = []reportSlotDef{
	{ID: "slot-odometer-start", Label: "Odometer at shift start", Group: "start"},
	{ID: "slot-parcel-load", Label: "Loaded parcels", Group: "start"},
	{ID: "slot-delivery-proof", Label: "Delivery round proof", Group: "shift"},
	{ID: "slot-fuel-receipt", Label: "Fuel receipt", Group: "shift"},
	{ID: "slot-odometer-end", Label: "Odometer at shift end", Group: "end"},
	{ID: "slot-vehicle-return", Label: "Vehicle return condition", Group: "end"},
}

// NewDailyReport returns an empty report for the given employee and date with
// every catalog slot present and unfilled.
func NewDailyReport(employeeID, date string, now time.Time) *DailyReport {
	slots := make([]ReportSlot, len(reportSlotCatalog))
	for i, def := range reportSlotCatalog {
		slots[i] = ReportSlot{ID: def.ID, Label: def.Label, Group: def.Group}
	}
	return &DailyReport{
		EmployeeID: employeeID,
		Date:       date,
		Slots:      slots,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// KnownReportSlot reports whether slotID is part of the daily report catalog.
func KnownReportSlot(slotID string) bool {
	for _, def := range reportSlotCatalog {
		if def.ID == slotID {
			return true
		}
	}
	return false
}

// KnownDocumentSlot reports whether slot is part of the application document
// catalog.
func KnownDocumentSlot(slot string) bool {
	for _, s := range ApplicationDocumentSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// StaffUser is a staff account allowed to review applications.
type StaffUser struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"-"`
	PasswordSalt []byte    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// UploadGrant is a time-bounded authorization to PUT exactly one object.
// Ephemeral; never persisted.
type UploadGrant struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ApplicationFilters defines filtering options for staff application listings.
type ApplicationFilters struct {
	Status        *VerificationStatus
	Statuses      []VerificationStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         *int
	Offset        *int
}
