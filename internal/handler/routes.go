package handler

import (
	"net/http"
	"strings"

	"mt5-command-server/internal/models"
	"mt5-command-server/internal/rest"
)

// Routes registers the endpoints on router. limit wraps the endpoints that start processes.
func Routes(router *http.ServeMux, h *Handler, limit func(http.HandlerFunc) http.HandlerFunc) {
	if limit == nil {
		limit = func(next http.HandlerFunc) http.HandlerFunc { return next }
	}

	router.HandleFunc("GET /health", h.HandleHealth)
	router.HandleFunc("POST /upload-script", limit(h.HandleUploadScript))
	router.HandleFunc("POST /execute-script", limit(h.HandleExecuteScript))
	router.HandleFunc("GET /get-logs", h.HandleGetLogs)
}

// WithErrorEnvelope serves router, replacing the plain text 404 and 405 replies for unmatched
// requests with the error envelope. Headers such as Allow are kept.
func WithErrorEnvelope(router *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := router.Handler(r); pattern != "" {
			router.ServeHTTP(w, r)
			return
		}
		router.ServeHTTP(&envelopeWriter{ResponseWriter: w, r: r}, r)
	})
}

type envelopeWriter struct {
	http.ResponseWriter
	r        *http.Request
	replaced bool
}

func (e *envelopeWriter) WriteHeader(status int) {
	if status < http.StatusBadRequest {
		e.ResponseWriter.WriteHeader(status)
		return
	}

	e.replaced = true
	e.Header().Del("Content-Type")
	e.Header().Del("X-Content-Type-Options")
	rest.WriteResponse(status, e.ResponseWriter, e.r, models.NewErrorResponse(strings.ToLower(http.StatusText(status))))
}

func (e *envelopeWriter) Write(p []byte) (int, error) {
	if e.replaced {
		return len(p), nil
	}
	return e.ResponseWriter.Write(p)
}
