package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/readsign"
)

// ProxyHandler serves stored files through signature-verified URLs. The
// backing bucket stays private; this is the only read path.
type ProxyHandler struct {
	service driverdesk.Service
	signer  *readsign.Signer
}

func NewProxyHandler(service driverdesk.Service, signer *readsign.Signer) *ProxyHandler {
	return &ProxyHandler{service: service, signer: signer}
}

// Routes returns the router for the file proxy. Mount under /files.
func (h *ProxyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/*", h.ServeFile)
	r.Head("/*", h.ServeFile)
	r.Options("/*", h.preflight)
	return r
}

func (h *ProxyHandler) preflight(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	w.WriteHeader(http.StatusNoContent)
}

// ServeFile verifies the URL signature and streams the object. The signature
// is checked before the store is touched at all.
func (h *ProxyHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)

	// The HMAC binds the decoded key, so undo the path encoding the client
	// applied when it built the URL.
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || key == "" {
		http.Error(w, "invalid file key", http.StatusBadRequest)
		return
	}

	sig := r.URL.Query().Get("signature")
	if err := h.signer.Verify(key, sig); err != nil {
		if errors.Is(err, readsign.ErrMissingSignature) {
			http.Error(w, "missing signature", http.StatusUnauthorized)
			return
		}
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	body, meta, err := h.service.OpenFile(r.Context(), key)
	if err != nil {
		if errors.Is(err, driverdesk.ErrObjectNotFound) {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		slog.Error("file proxy fetch failed", "key", key, "error", err)
		http.Error(w, "upstream storage error", http.StatusBadGateway)
		return
	}
	defer body.Close()

	if meta != nil {
		if meta.ContentType != "" {
			w.Header().Set("Content-Type", meta.ContentType)
		}
		if meta.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
		}
		if meta.ETag != "" {
			w.Header().Set("ETag", meta.ETag)
		}
	}
	// Keys name immutable objects; replacements get fresh signatures anyway.
	w.Header().Set("Cache-Control", "public, max-age=31536000")

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("file proxy stream interrupted", "key", key, "error", err)
	}
}

func writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "*")
}
