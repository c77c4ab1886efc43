package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"scorm-quiz-service/internal/domain"
	"scorm-quiz-service/internal/scorm"
)

const internalMessage = "Internal server error"

type errorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as the flat {error, message} body. Caller mistakes
// keep their message; anything else is logged and hidden behind a generic one.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status, message := classify(err)
	if status == http.StatusInternalServerError && message == internalMessage {
		log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: true, Message: message})
}

// writeFailure is writeError for the submit and result endpoints, which report
// every failure as a 500.
func writeFailure(w http.ResponseWriter, log *zap.Logger, err error) {
	_, message := classify(err)
	if message == internalMessage {
		log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: true, Message: message})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, scorm.ErrMediaName),
		errors.Is(err, scorm.ErrMediaConflict):
		return http.StatusInternalServerError, err.Error()
	default:
		return http.StatusInternalServerError, internalMessage
	}
}
