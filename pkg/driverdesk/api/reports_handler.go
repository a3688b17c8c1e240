package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/readsign"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/reportcache"
)

// Report reads repeat heavily during a shift; a small bounded cache keeps the
// hot day out of the repository. Writes invalidate their entry.
const reportCacheSize = 256

// ReportsHandler handles daily delivery-report endpoints.
type ReportsHandler struct {
	service driverdesk.Service
	signer  *readsign.Signer
	cache   *reportcache.Cache[string, *driverdesk.DailyReport]
}

func NewReportsHandler(service driverdesk.Service, signer *readsign.Signer) *ReportsHandler {
	return &ReportsHandler{
		service: service,
		signer:  signer,
		cache:   reportcache.New[string, *driverdesk.DailyReport](reportCacheSize),
	}
}

// Routes returns the router for report endpoints
func (h *ReportsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{employeeID}/{date}", h.GetReport)
	r.Post("/{employeeID}/{date}/slots/{slotID}", h.AttachPhoto)
	r.Delete("/{employeeID}/{date}/slots/{slotID}", h.ClearSlot)
	return r
}

// ReportSlotResponse is one photo slot with a signed read URL when filled.
type ReportSlotResponse struct {
	ID    string            `json:"id"`
	Label string            `json:"label"`
	Group string            `json:"group"`
	File  *DocumentResponse `json:"file,omitempty"`
}

// ReportResponse is the response body for a daily report.
type ReportResponse struct {
	EmployeeID string               `json:"employee_id"`
	Date       string               `json:"date"`
	Slots      []ReportSlotResponse `json:"slots"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// AttachPhotoRequest is the request body to attach a confirmed upload.
type AttachPhotoRequest struct {
	Key      string `json:"key"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	MD5      string `json:"md5"`
}

// GetReport returns the report for one employee and date, creating the empty
// slot set on first access.
func (h *ReportsHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")
	date := chi.URLParam(r, "date")

	if report, ok := h.cache.Get(cacheKey(employeeID, date)); ok {
		render.JSON(w, r, h.toResponse(report))
		return
	}

	report, err := h.service.GetDailyReport(r.Context(), employeeID, date)
	if err != nil {
		renderError(w, r, err)
		return
	}
	h.cache.Put(cacheKey(employeeID, date), report)
	render.JSON(w, r, h.toResponse(report))
}

// AttachPhoto records a confirmed upload in a report slot.
func (h *ReportsHandler) AttachPhoto(w http.ResponseWriter, r *http.Request) {
	var req AttachPhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "invalid request body"})
		return
	}

	employeeID := chi.URLParam(r, "employeeID")
	date := chi.URLParam(r, "date")

	report, err := h.service.AttachReportPhoto(r.Context(), driverdesk.AttachReportPhotoRequest{
		EmployeeID: employeeID,
		Date:       date,
		SlotID:     chi.URLParam(r, "slotID"),
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
	h.cache.Delete(cacheKey(employeeID, date))
	render.JSON(w, r, h.toResponse(report))
}

// ClearSlot empties a report slot.
func (h *ReportsHandler) ClearSlot(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")
	date := chi.URLParam(r, "date")

	report, err := h.service.ClearReportSlot(r.Context(), employeeID, date, chi.URLParam(r, "slotID"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	h.cache.Delete(cacheKey(employeeID, date))
	render.JSON(w, r, h.toResponse(report))
}

func (h *ReportsHandler) toResponse(report *driverdesk.DailyReport) ReportResponse {
	slots := make([]ReportSlotResponse, 0, len(report.Slots))
	for _, slot := range report.Slots {
		out := ReportSlotResponse{ID: slot.ID, Label: slot.Label, Group: slot.Group}
		if slot.File != nil {
			out.File = &DocumentResponse{
				ObjectKey:  slot.File.ObjectKey,
				FileName:   slot.File.FileName,
				MimeType:   slot.File.MimeType,
				Size:       slot.File.Size,
				URL:        signedFileURL(h.signer, slot.File.ObjectKey),
				UploadedAt: slot.File.UploadedAt,
			}
		}
		slots = append(slots, out)
	}
	return ReportResponse{
		EmployeeID: report.EmployeeID,
		Date:       report.Date,
		Slots:      slots,
		CreatedAt:  report.CreatedAt,
		UpdatedAt:  report.UpdatedAt,
	}
}

func cacheKey(employeeID, date string) string {
	return employeeID + "|" + date
}
