package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"cio-dashboard/internal/logger"
)

// errorResponse is the body of every 4xx/5xx reply.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Path      string `json:"path,omitempty"`
	Method    string `json:"method,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// serverError logs err and replies 500. The underlying error text is only
// sent in development.
func serverError(w http.ResponseWriter, r *http.Request, msg string, err error, dev bool) {
	logger.Error(msg, err,
		zap.String("rid", RequestIDFromContext(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)

	body := errorResponse{Error: msg, Timestamp: timestamp()}
	if dev && err != nil {
		body.Message = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{
		Error:     "Not Found",
		Path:      r.URL.Path,
		Method:    r.Method,
		Timestamp: timestamp(),
	})
}
