package handler

import (
	"errors"
	"net/http"
	"time"

	"mt5-command-server/internal/logs"
	"mt5-command-server/internal/models"
	"mt5-command-server/internal/rest"
	"mt5-command-server/internal/scripts"
	"mt5-command-server/internal/terminal"

	"github.com/rs/zerolog"
)

const healthMessage = "MT5 command server running"

// Handler serves the command endpoints. It holds no per-request state.
type Handler struct {
	terminal *terminal.Terminal
	logs     *logs.Reader
	now      func() time.Time
}

func New(term *terminal.Terminal, logReader *logs.Reader) *Handler {
	return &Handler{
		terminal: term,
		logs:     logReader,
		now:      time.Now,
	}
}

func (h *Handler) timestamp() string {
	return h.now().Format(time.RFC3339Nano)
}

// HandleHealth reports that the server is up
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	rest.WriteResponse(http.StatusOK, w, r, models.HealthResponse{
		Status:    models.StatusHealthy,
		Timestamp: h.timestamp(),
		Message:   healthMessage,
	})
}

// HandleUploadScript stores a script and compiles it. A failed compile still returns success.
func (h *Handler) HandleUploadScript(w http.ResponseWriter, r *http.Request) {
	var req models.UploadRequest
	if err := rest.DecodeRequestBody(w, r, &req); err != nil {
		sendErrorResponse(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		sendErrorResponse(w, r, err)
		return
	}

	logger := zerolog.Ctx(r.Context()).With().Str("account", string(req.Account)).Str("filename", req.Filename).Logger()
	logger.Info().Int("size", len(req.Script)).Msg("uploading script")

	compiled, err := h.terminal.Upload(logger.WithContext(r.Context()), req.Filename, req.Script)
	if err != nil {
		logger.Error().Err(err).Msg("upload failed")
		sendErrorResponse(w, r, err)
		return
	}

	rest.WriteResponse(http.StatusOK, w, r, models.UploadResponse{
		Status:   models.StatusSuccess,
		Message:  "Script uploaded and compiled for account #" + string(req.Account),
		Filename: req.Filename,
		Compiled: compiled,
	})
}

// HandleExecuteScript runs a compiled script on the terminal
func (h *Handler) HandleExecuteScript(w http.ResponseWriter, r *http.Request) {
	var req models.ExecuteRequest
	if err := rest.DecodeRequestBody(w, r, &req); err != nil {
		sendErrorResponse(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		sendErrorResponse(w, r, err)
		return
	}

	logger := zerolog.Ctx(r.Context())
	logger.Info().Str("account", string(req.Account)).Str("script", req.ScriptName).Msg("executing script")

	ok, err := h.terminal.Execute(r.Context(), req.ScriptName, string(req.Account))
	if err != nil {
		logger.Error().Err(err).Msg("execution failed")
		sendErrorResponse(w, r, err)
		return
	}

	status := models.StatusSuccess
	if !ok {
		status = models.StatusFailed
	}

	rest.WriteResponse(http.StatusOK, w, r, models.ExecuteResponse{
		Status:  status,
		Message: "Script executed for account #" + string(req.Account),
		Script:  req.ScriptName,
		Result:  ok,
	})
}

// HandleGetLogs returns the tail of the newest terminal log
func (h *Handler) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	content, err := h.logs.Tail()
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("reading logs failed")
		sendErrorResponse(w, r, err)
		return
	}

	rest.WriteResponse(http.StatusOK, w, r, models.LogsResponse{
		Status:    models.StatusSuccess,
		Logs:      content,
		Timestamp: h.timestamp(),
	})
}

// sendErrorResponse maps an error onto the error envelope and a status code
func sendErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rest.ErrUnsupportedContentType):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, rest.ErrBodyTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, terminal.ErrScriptBusy):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "5")
	case errors.Is(err, rest.ErrMalformedBody),
		errors.Is(err, models.ErrInvalidRequest),
		errors.Is(err, scripts.ErrInvalidName):
		status = http.StatusBadRequest
	}

	rest.WriteResponse(status, w, r, models.NewErrorResponse(err.Error()))
}
