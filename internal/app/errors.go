package app

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"qero/api/internal/dedupe"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// fromDedupe translates engine error kinds into HTTP domain errors.
func fromDedupe(err error) *DomainError {
	var engineErr *dedupe.Error
	message := err.Error()
	if errors.As(err, &engineErr) && engineErr.Err != nil {
		message = engineErr.Err.Error()
	}
	switch {
	case errors.Is(err, dedupe.ErrValidation):
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
	case errors.Is(err, dedupe.ErrAuthorization):
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	case errors.Is(err, dedupe.ErrNotFound):
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	case errors.Is(err, dedupe.ErrConflict):
		return domainError(http.StatusConflict, "CONFLICT", message, nil)
	default:
		log.Printf("dedupe operation failed: %v", err)
		return domainError(http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
	}
}
