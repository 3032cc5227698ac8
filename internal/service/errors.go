// Package service provides business logic for the expense ledger.
package service

import (
	"errors"
	"sort"
	"strings"
)

// Service errors. ErrNotFound and ErrNotOwned are deliberately distinct
// kinds: a caller must be able to render "does not exist" and "exists but is
// not yours" differently without the transport layer leaking which one it
// was to someone probing other users' ids.
var (
	ErrNotFound           = errors.New("expense not found")
	ErrNotOwned           = errors.New("expense belongs to another user")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError collects field-tagged input violations. It is always
// recoverable: the caller re-prompts with the offending input echoed back.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records a violation for a field. The first message per field wins.
func (e *ValidationError) Add(field, message string) {
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}

	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, field := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(field)
		b.WriteString(": ")
		b.WriteString(e.Fields[field])
	}
	return b.String()
}

// AsValidation unwraps err into a ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
