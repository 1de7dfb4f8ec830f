package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"mt5-command-server/internal/models"
	"mt5-command-server/internal/rest"

	"github.com/rs/zerolog"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// AccessLog writes one line per request and turns handler panics into a 500 error envelope.
// It expects to run inside RequestID so the logger carries the request ID.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		logger := zerolog.Ctx(r.Context())

		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}

				logger.Error().
					Str("panic", fmt.Sprint(p)).
					Bytes("stack", debug.Stack()).
					Msg("handler panic")

				if rec.status == 0 {
					rest.WriteResponse(http.StatusInternalServerError, rec, r, models.NewErrorResponse("internal server error"))
				}
			}

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Int("bytes", rec.bytes).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("request")
		}()

		next.ServeHTTP(rec, r)
	})
}
