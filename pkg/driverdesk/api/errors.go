// Package api exposes the intake service over HTTP using chi.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
)

// ErrorResponse is the JSON body returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// renderError maps a service error onto an HTTP status and writes the JSON
// body. Unknown errors become 500 with a generic message so internals do not
// leak to callers.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *driverdesk.ValidationError
	if errors.As(err, &verr) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: verr.Msg, Field: verr.Field})
		return
	}

	switch {
	case errors.Is(err, driverdesk.ErrApplicationNotFound),
		errors.Is(err, driverdesk.ErrReportNotFound),
		errors.Is(err, driverdesk.ErrObjectNotFound),
		errors.Is(err, driverdesk.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
	case errors.Is(err, driverdesk.ErrUnknownDocumentSlot),
		errors.Is(err, driverdesk.ErrUnknownReportSlot):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
	case errors.Is(err, driverdesk.ErrInvalidStatusTransition),
		errors.Is(err, driverdesk.ErrContractNotReady):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
	case errors.Is(err, driverdesk.ErrInvalidCredentials):
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
	case errors.Is(err, driverdesk.ErrSigningUnavailable):
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "internal server error"})
	}
}
