package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"quiz-live-service/internal/domain"
	xlog "quiz-live-service/internal/log"
)

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a domain error kind to an HTTP status.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorised:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindInvalidState, domain.KindInvalidAction, domain.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{
		Error:     "Internal",
		Message:   "internal error",
		RequestID: xlog.RequestIDFromContext(r.Context()),
	}
	if de, ok := asDomain(err); ok {
		body.Error = de.Code
		body.Message = de.Error()
	}
	if status == http.StatusInternalServerError {
		xlog.FromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, body)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error:     "BadRequest",
		Message:   msg,
		RequestID: xlog.RequestIDFromContext(r.Context()),
	})
}

func asDomain(err error) (*domain.Error, bool) {
	var de *domain.Error
	ok := errors.As(err, &de)
	return de, ok
}
