package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
)

// UploadsHandler issues presigned upload grants.
type UploadsHandler struct {
	service driverdesk.Service
}

func NewUploadsHandler(service driverdesk.Service) *UploadsHandler {
	return &UploadsHandler{service: service}
}

// Routes returns the router for upload endpoints
func (h *UploadsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sign", h.SignUpload)
	return r
}

// SignUploadRequest is the request body for an upload grant.
type SignUploadRequest struct {
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	DocType    string `json:"doc_type"`
	Date       string `json:"date,omitempty"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	MD5        string `json:"md5"`
}

// SignUploadResponse carries the grant back to the client.
type SignUploadResponse struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SignUpload validates the declared upload and returns a presigned PUT URL
// bound to the derived object key, content type, and MD5.
func (h *UploadsHandler) SignUpload(w http.ResponseWriter, r *http.Request) {
	var req SignUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "invalid request body"})
		return
	}

	grant, err := h.service.SignUpload(r.Context(), driverdesk.SignUploadRequest{
		EntityID:   req.EntityID,
		EntityKind: driverdesk.EntityKind(req.EntityKind),
		DocType:    req.DocType,
		Date:       req.Date,
		FileName:   req.FileName,
		MimeType:   req.MimeType,
		Size:       req.Size,
		MD5:        req.MD5,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, SignUploadResponse{
		URL:       grant.URL,
		Key:       grant.Key,
		ExpiresAt: grant.ExpiresAt,
	})
}
