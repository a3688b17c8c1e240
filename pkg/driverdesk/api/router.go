package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/auth"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/readsign"
)

// NewRouter assembles all HTTP endpoints. The caller attaches middleware and
// serves it.
func NewRouter(service driverdesk.Service, signer *readsign.Signer, authService *auth.Service, issuer *auth.TokenIssuer) chi.Router {
	authHandler := NewAuthHandler(authService, issuer)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/uploads", NewUploadsHandler(service).Routes())
		r.Mount("/applications", NewApplicationsHandler(service, signer, authHandler.RequireStaff).Routes())
		r.Mount("/reports", NewReportsHandler(service, signer).Routes())
		r.Mount("/auth", authHandler.Routes())
	})

	r.Mount("/files", NewProxyHandler(service, signer).Routes())
	return r
}
