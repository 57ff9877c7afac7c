package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"code-quizzer/internal/domain"
)

type errorPayload struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[http] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Printf("[http] %v", err)
	}
	writeJSON(w, status, errorPayload{Message: messageOf(err)})
}

func statusOf(err error) int {
	var (
		authErr  *domain.AuthError
		storeErr *domain.StoreError
	)
	switch {
	case errors.Is(err, domain.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.As(err, &storeErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &authErr), errors.Is(err, domain.ErrPlayerNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrTopicNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoActiveQuiz),
		errors.Is(err, domain.ErrInputLocked),
		errors.Is(err, domain.ErrNotLocked),
		errors.Is(err, domain.ErrQuizFinished),
		errors.Is(err, domain.ErrNotCompleted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// messageOf hides internal failure details from clients.
func messageOf(err error) string {
	var authErr *domain.AuthError
	switch {
	case errors.As(err, &authErr):
		var storeErr *domain.StoreError
		if errors.As(err, &storeErr) {
			return "Authentication is temporarily unavailable. Please try again."
		}
		return authErr.Err.Error()
	case statusOf(err) == http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again."
	case statusOf(err) == http.StatusInternalServerError:
		return "Internal server error"
	default:
		return err.Error()
	}
}
