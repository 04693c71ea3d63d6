package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError reports malformed input or a collision on a unique field.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldError is a shortcut for a ValidationError on a single field.
func NewFieldError(field, msg string) error {
	return &ValidationError{errors.New(msg), []FieldError{{Field: field, Error: msg}}}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "validation failed"
	}
	return err.Err.Error()
}

// NotFoundError reports a referenced id or code that does not exist.
type NotFoundError struct {
	Resource string
	Key      string
}

func NewNotFoundError(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

func (err NotFoundError) Error() string {
	if err.Key == "" {
		return err.Resource + " not found"
	}
	return fmt.Sprintf("%s %q not found", err.Resource, err.Key)
}

// ConflictError reports a write that would violate a uniqueness invariant.
type ConflictError struct {
	msg string
}

func NewConflictError(format string, args ...interface{}) error {
	return &ConflictError{msg: fmt.Sprintf(format, args...)}
}

func (err ConflictError) Error() string { return err.msg }

// ExpiredError reports a time-limited resource used past its validity.
type ExpiredError struct {
	msg string
}

func NewExpiredError(msg string) error {
	return &ExpiredError{msg: msg}
}

func (err ExpiredError) Error() string { return err.msg }

// RangeError reports a numeric value outside of its inclusive bounds.
type RangeError struct {
	Field    string
	Value    float64
	Min, Max float64
}

func NewRangeError(field string, value, min, max float64) error {
	return &RangeError{Field: field, Value: value, Min: min, Max: max}
}

func (err RangeError) Error() string {
	return fmt.Sprintf("%s must be between %g and %g (got %g)", err.Field, err.Min, err.Max, err.Value)
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

func IsExpired(err error) bool {
	var e *ExpiredError
	return errors.As(err, &e)
}

func IsRange(err error) bool {
	var e *RangeError
	return errors.As(err, &e)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
