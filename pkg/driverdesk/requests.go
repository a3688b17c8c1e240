package driverdesk

// Request DTOs

// SignUploadRequest contains parameters for issuing an upload grant.
type SignUploadRequest struct {
	EntityID   string
	EntityKind EntityKind
	DocType    string // document slot or report slot id
	Date       string // report uploads only, YYYY-MM-DD
	FileName   string
	MimeType   string
	Size       int64
	MD5        string // base64
}

// SaveApplicationRequest upserts an application manifest. Documents already
// attached are preserved; the request carries only the form sections.
type SaveApplicationRequest struct {
	ID        string
	Applicant Applicant
	Guarantor Guarantor
	Vehicle   Vehicle
}

// AttachDocumentRequest attaches a confirmed upload to an application slot.
type AttachDocumentRequest struct {
	ApplicationID string
	Slot          string
	Ref           FileRef
}

// AttachReportPhotoRequest attaches a confirmed upload to a report slot.
type AttachReportPhotoRequest struct {
	EmployeeID string
	Date       string
	SlotID     string
	Ref        FileRef
}

// UpdateStatusRequest transitions an application's verification status.
type UpdateStatusRequest struct {
	ApplicationID string
	Status        VerificationStatus
	Note          string
}
