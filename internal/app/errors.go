package app

import (
	"fmt"
	"net/http"

	"folio/api/internal/policy"
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

func errForbidden(action policy.Action) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": action})
}

func errContentNotFound(contentID string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Content not found", map[string]any{"contentId": contentID})
}

func errInvalidTransition(action policy.Action, from policy.State) *DomainError {
	return domainError(http.StatusConflict, "INVALID_TRANSITION",
		fmt.Sprintf("%s is not possible from %s", action, from),
		map[string]any{"action": action, "state": from})
}

func errValidation(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}
