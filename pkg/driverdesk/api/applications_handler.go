package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/readsign"
)

// ApplicationsHandler handles application manifest endpoints.
type ApplicationsHandler struct {
	service driverdesk.Service
	signer  *readsign.Signer
	staff   func(http.Handler) http.Handler
}

// NewApplicationsHandler builds the handler. staff is the middleware that
// guards staff-only routes.
func NewApplicationsHandler(service driverdesk.Service, signer *readsign.Signer, staff func(http.Handler) http.Handler) *ApplicationsHandler {
	return &ApplicationsHandler{service: service, signer: signer, staff: staff}
}

// Routes returns the router for application endpoints
func (h *ApplicationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.SaveApplication)
	r.Get("/{id}", h.GetApplication)
	r.Post("/{id}/submit", h.SubmitApplication)
	r.Post("/{id}/documents", h.AttachDocument)

	r.Group(func(r chi.Router) {
		r.Use(h.staff)
		r.Get("/", h.ListApplications)
		r.Post("/{id}/status", h.UpdateStatus)
		r.Post("/{id}/contract", h.GenerateContract)
	})
	return r
}

// SaveApplicationRequest is the request body for upserting a manifest.
type SaveApplicationRequest struct {
	ID        string               `json:"id"`
	Applicant driverdesk.Applicant `json:"applicant"`
	Guarantor driverdesk.Guarantor `json:"guarantor"`
	Vehicle   driverdesk.Vehicle   `json:"vehicle"`
}

// DocumentResponse is a document slot with a signed read URL.
type DocumentResponse struct {
	ObjectKey  string    `json:"object_key"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ApplicationResponse is the response body for an application.
type ApplicationResponse struct {
	ID          string                      `json:"id"`
	Applicant   driverdesk.Applicant        `json:"applicant"`
	Guarantor   driverdesk.Guarantor        `json:"guarantor"`
	Vehicle     driverdesk.Vehicle          `json:"vehicle"`
	Documents   map[string]DocumentResponse `json:"documents"`
	Status      string                      `json:"status"`
	Note        string                      `json:"note,omitempty"`
	SubmittedAt *time.Time                  `json:"submitted_at,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// AttachDocumentRequest is the request body to attach a confirmed upload.
type AttachDocumentRequest struct {
	Slot     string `json:"slot"`
	Key      string `json:"key"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	MD5      string `json:"md5"`
}

// UpdateStatusRequest is the request body for a status transition.
type UpdateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// SaveApplication upserts the form sections of a manifest. Already attached
// documents survive the write.
func (h *ApplicationsHandler) SaveApplication(w http.ResponseWriter, r *http.Request) {
	var req SaveApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "invalid request body"})
		return
	}

	app, err := h.service.SaveApplication(r.Context(), driverdesk.SaveApplicationRequest{
		ID:        req.ID,
		Applicant: req.Applicant,
		Guarantor: req.Guarantor,
		Vehicle:   req.Vehicle,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, h.toResponse(app))
}

// GetApplication retrieves an application by ID
func (h *ApplicationsHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.GetApplication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, h.toResponse(app))
}

// ListApplications lists applications with optional filters (staff only).
func (h *ApplicationsHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	var filters driverdesk.ApplicationFilters
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		status := driverdesk.VerificationStatus(s)
		if !driverdesk.ValidStatus(status) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: "unknown status", Field: "status"})
			return
		}
		filters.Status = &status
	}
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			filters.Limit = &n
		}
	}
	if s := q.Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			filters.Offset = &n
		}
	}

	apps, err := h.service.ListApplications(r.Context(), filters)
	if err != nil {
		renderError(w, r, err)
		return
	}

	resp := make([]ApplicationResponse, 0, len(apps))
	for _, app := range apps {
		resp = append(resp, h.toResponse(app))
	}
	render.JSON(w, r, resp)
}

// SubmitApplication marks a draft manifest as submitted for review.
func (h *ApplicationsHandler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.SubmitApplication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, h.toResponse(app))
}

// AttachDocument records a confirmed upload in a document slot.
func (h *ApplicationsHandler) AttachDocument(w http.ResponseWriter, r *http.Request) {
	var req AttachDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "invalid request body"})
		return
	}

	app, err := h.service.AttachDocument(r.Context(), driverdesk.AttachDocumentRequest{
		ApplicationID: chi.URLParam(r, "id"),
		Slot:          req.Slot,
		Ref: driverdesk.FileRef{
			ObjectKey: req.Key,
			FileName:  req.FileName,
			MimeType:  req.MimeType,
			Size:      req.Size,
			MD5:       req.MD5,
		},
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, h.toResponse(app))
}

// UpdateStatus transitions an application's verification status (staff only).
func (h *ApplicationsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "invalid request body"})
		return
	}

	app, err := h.service.UpdateStatus(r.Context(), driverdesk.UpdateStatusRequest{
		ApplicationID: chi.URLParam(r, "id"),
		Status:        driverdesk.VerificationStatus(req.Status),
		Note:          req.Note,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, h.toResponse(app))
}

// GenerateContract renders the contract PDF for an approved application and
// stores it in the contract slot (staff only).
func (h *ApplicationsHandler) GenerateContract(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.GenerateContract(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, h.toResponse(app))
}

func (h *ApplicationsHandler) toResponse(app *driverdesk.Application) ApplicationResponse {
	docs := make(map[string]DocumentResponse, len(app.Documents))
	for slot, ref := range app.Documents {
		docs[slot] = DocumentResponse{
			ObjectKey:  ref.ObjectKey,
			FileName:   ref.FileName,
			MimeType:   ref.MimeType,
			Size:       ref.Size,
			URL:        signedFileURL(h.signer, ref.ObjectKey),
			UploadedAt: ref.UploadedAt,
		}
	}
	return ApplicationResponse{
		ID:          app.ID,
		Applicant:   app.Applicant,
		Guarantor:   app.Guarantor,
		Vehicle:     app.Vehicle,
		Documents:   docs,
		Status:      string(app.Status),
		Note:        app.Note,
		SubmittedAt: app.SubmittedAt,
		CreatedAt:   app.CreatedAt,
		UpdatedAt:   app.UpdatedAt,
	}
}

// signedFileURL builds the proxy path for an object key. The signature covers
// the decoded key; the path carries the encoded form.
func signedFileURL(signer *readsign.Signer, key string) string {
	if key == "" {
		return ""
	}
	return "/files/" + url.PathEscape(key) + "?signature=" + signer.Sign(key)
}
