package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// NewPolicyNotFound signals that no active SLA policy covers the pair.
// Callers treat this as "not monitored", never as "compliant".
func NewPolicyNotFound(applicationID, priority string) error {
	return NewDomainError("POLICY_NOT_FOUND", "no active sla policy for application/priority",
		http.StatusNotFound, map[string]any{
			"application_id": applicationID,
			"priority":       priority,
		})
}

// IsPolicyNotFound reports whether err carries the POLICY_NOT_FOUND code.
func IsPolicyNotFound(err error) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == "POLICY_NOT_FOUND"
}

// NewEscalationConflict signals a lost race on escalation level assignment;
// the caller should re-read the current level and retry.
func NewEscalationConflict(ticketID string, level int) error {
	return NewDomainError("ESCALATION_CONFLICT", "escalation level already taken",
		http.StatusConflict, map[string]any{
			"ticket_id": ticketID,
			"level":     level,
		})
}

// IsEscalationConflict reports whether err carries the ESCALATION_CONFLICT code.
func IsEscalationConflict(err error) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == "ESCALATION_CONFLICT"
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
