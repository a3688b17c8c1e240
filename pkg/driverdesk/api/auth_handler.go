package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/driverdesk/driverdesk/pkg/driverdesk/auth"
)

type claimsContextKey struct{}

// AuthHandler handles staff login and guards staff-only routes.
type AuthHandler struct {
	auth   *auth.Service
	issuer *auth.TokenIssuer
}

func NewAuthHandler(authService *auth.Service, issuer *auth.TokenIssuer) *AuthHandler {
	return &AuthHandler{auth: authService, issuer: issuer}
}

// Routes returns the router for auth endpoints
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	return r
}

// LoginRequest is the request body for staff login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the access token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login authenticates a staff user and returns a signed access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, expiresAt, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, LoginResponse{Token: token, ExpiresAt: expiresAt})
}

// RequireStaff rejects requests without a valid bearer token.
func (h *AuthHandler) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, ErrorResponse{Error: "missing bearer token"})
			return
		}

		claims, err := h.issuer.Verify(token)
		if err != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, ErrorResponse{Error: "invalid token"})
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StaffClaims returns the verified token claims stored by RequireStaff.
func StaffClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return claims, ok
}
