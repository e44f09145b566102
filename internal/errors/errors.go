package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

const (
	ErrNotFound     = "NOT_FOUND"
	ErrValidation   = "VALIDATION"
	ErrStore        = "STORE"
	ErrProtocol     = "PROTOCOL"
	ErrConflict     = "CONFLICT"
	ErrUnauthorized = "UNAUTHORIZED"
	ErrForbidden    = "FORBIDDEN"
	ErrInternal     = "INTERNAL"
)

type DomainError struct {
	Code    string
	Message string
	// Fields names the offending payload fields of a VALIDATION error.
	Fields []string
	Err    error
}

func (e *DomainError) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		msg = fmt.Sprintf("%s (fields: %s)", msg, strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func Wrap(code, msg string, err error) *DomainError {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// IsCode reports whether any DomainError in err's chain carries code.
func IsCode(err error, code string) bool {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Code == code
	}
	return false
}

func IsNotFound(err error) bool {
	return IsCode(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return IsCode(err, ErrValidation)
}

// --- Generic ---

func NewNotFound(entity, id string) *DomainError {
	return &DomainError{Code: ErrNotFound, Message: fmt.Sprintf("%s with id %s not found", entity, id)}
}

func NewValidation(msg string) *DomainError {
	return &DomainError{Code: ErrValidation, Message: msg}
}

func NewValidationFields(msg string, fields []string) *DomainError {
	return &DomainError{Code: ErrValidation, Message: msg, Fields: fields}
}

func NewStore(msg string, err error) *DomainError {
	return &DomainError{Code: ErrStore, Message: msg, Err: err}
}

func NewConflict(msg string) *DomainError {
	return &DomainError{Code: ErrConflict, Message: msg}
}

func NewUnauthorized(msg string) *DomainError {
	return &DomainError{Code: ErrUnauthorized, Message: msg}
}

func NewInternal(msg string, err error) *DomainError {
	return &DomainError{Code: ErrInternal, Message: msg, Err: err}
}

// --- Drone ---

func DroneNotFound(id string) *DomainError {
	return NewNotFound("drone", id)
}

func DroneNotConnected(id string) *DomainError {
	return &DomainError{Code: ErrNotFound, Message: fmt.Sprintf("drone %s has no live session", id)}
}

// --- Mission ---

func MissionNotFound(id string) *DomainError {
	return NewNotFound("mission", id)
}

func NoActiveMission(droneID string) *DomainError {
	return &DomainError{Code: ErrNotFound, Message: fmt.Sprintf("drone %s is not attached to an active mission", droneID)}
}

// --- Report ---

func ReportNotFound(missionID string) *DomainError {
	return &DomainError{Code: ErrNotFound, Message: fmt.Sprintf("report for mission %s not found", missionID)}
}
