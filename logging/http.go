package logging

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Request bodies longer than this are cut when logged at debug level.
const maxLoggedBody = 512

type loggingHandler struct {
	httpHandler http.Handler
	log         *slog.Logger
}

// NewHTTPHandler logs one line per request with its response status. Request
// bodies are included at debug level.
func NewHTTPHandler(h http.Handler, logger *slog.Logger) http.Handler {
	return &loggingHandler{
		httpHandler: h,
		log:         logger,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if (r.Method == http.MethodPost || r.Method == http.MethodPut) && h.log.Enabled(r.Context(), slog.LevelDebug) {
		// Read the body and replace it on request
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "can't read body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		logged := bodyBytes
		if len(logged) > maxLoggedBody {
			logged = logged[:maxLoggedBody]
		}
		h.log.Debug("request body", "path", r.URL.Path, "bytes", len(bodyBytes), "body", string(logged))
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.httpHandler.ServeHTTP(rec, r)
	h.log.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
}
