package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingField is returned when a required key is absent.
	ErrMissingField = errors.New("MissingField")
	// ErrUnknownType is returned when a payload type tag is not recognised.
	ErrUnknownType = errors.New("UnknownType")
	// ErrInvalidValue is returned for values of the wrong type or out of range.
	ErrInvalidValue = errors.New("InvalidValue")
)

// ValidationError carries the failing fields of a rejected input. It unwraps to one of
// ErrMissingField, ErrUnknownType or ErrInvalidValue.
type ValidationError struct {
	Err    error
	Fields []string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *ValidationError) Unwrap() error { return e.Err }

func missingFields(fields ...string) *ValidationError {
	return &ValidationError{Err: ErrMissingField, Fields: fields, Detail: strings.Join(fields, ", ")}
}

func unknownType(tag interface{}, valid []string) *ValidationError {
	return &ValidationError{
		Err:    ErrUnknownType,
		Fields: []string{"type"},
		Detail: fmt.Sprintf("'%v'. Valid types: %s", tag, strings.Join(valid, ", ")),
	}
}

func invalidValue(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Err:    ErrInvalidValue,
		Fields: []string{field},
		Detail: fmt.Sprintf(format, args...),
	}
}
