package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/lock-access-monitor/backend/internal/api/middleware"
	"github.com/lock-access-monitor/backend/internal/lock"
)

// writeDomainError maps lock errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var denied *lock.AccessDeniedError
	switch {
	case errors.As(err, &denied):
		middleware.WriteErrorWithDetails(w, http.StatusForbidden, middleware.ErrForbidden, err.Error(),
			map[string]string{"reason": string(denied.Reason)})
	case errors.Is(err, lock.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, err.Error())
	case errors.Is(err, lock.ErrInvalidToken):
		middleware.WriteError(w, http.StatusForbidden, middleware.ErrInvalidToken, err.Error())
	case errors.Is(err, lock.ErrAlreadyExists):
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrConflict, err.Error())
	case errors.Is(err, lock.ErrInvalidArgument):
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
	default:
		log.Printf("Unhandled API error: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "An unexpected error occurred")
	}
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}
