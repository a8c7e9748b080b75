package errors

import (
	"errors"
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryRuntime Category = "runtime"
	CategoryUsage   Category = "usage"
	CategoryQuery   Category = "query"
	CategoryConfig  Category = "config"
	CategoryCLI     Category = "cli"
)

// DeriveError is a structured error with a code, the store it concerns and a fix hint.
type DeriveError struct {
	// Code is a unique error identifier (e.g., "E001").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Store is the name of the store the error concerns, if any.
	Store string

	// Value holds a recovered panic value when the error wraps a panic.
	Value any

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *DeriveError) Error() string {
	msg := e.Message
	if e.Store != "" {
		msg = fmt.Sprintf("%s (store %q)", msg, e.Store)
	}
	if e.Wrapped != nil {
		msg = msg + ": " + e.Wrapped.Error()
	} else if e.Value != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Value)
	}
	if e.Code != "" {
		return e.Code + ": " + msg
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *DeriveError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is a DeriveError with the same code.
func (e *DeriveError) Is(target error) bool {
	t, ok := target.(*DeriveError)
	if !ok || t.Code == "" {
		return false
	}
	return t.Code == e.Code
}

// WithStore records the store the error concerns.
func (e *DeriveError) WithStore(name string) *DeriveError {
	e.Store = name
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *DeriveError) WithSuggestion(s string) *DeriveError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *DeriveError) WithDetail(d string) *DeriveError {
	e.Detail = d
	return e
}

// WithValue attaches a recovered panic value.
func (e *DeriveError) WithValue(v any) *DeriveError {
	e.Value = v
	if err, ok := v.(error); ok && e.Wrapped == nil {
		e.Wrapped = err
	}
	return e
}

// Wrap wraps another error.
func (e *DeriveError) Wrap(err error) *DeriveError {
	e.Wrapped = err
	return e
}

// New creates a DeriveError from a registered error code.
func New(code string) *DeriveError {
	template, ok := registry[code]
	if !ok {
		return &DeriveError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &DeriveError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
		DocURL:     template.DocURL,
	}
}

// Newf creates a new DeriveError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *DeriveError {
	return &DeriveError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a DeriveError.
// A DeriveError passed in is returned unchanged.
func FromError(err error, code string) *DeriveError {
	if err == nil {
		return nil
	}
	var de *DeriveError
	if errors.As(err, &de) {
		return de
	}
	return New(code).Wrap(err)
}

// Code returns the code of the first DeriveError in err's chain, or "".
func Code(err error) string {
	var de *DeriveError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
