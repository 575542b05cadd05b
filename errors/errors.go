// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package errors wraps pkg/errors and includes some custom features such as
// error codes.
package errors

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Code is an error code which can be used to check against a given error. For
// example, see the Is() method.
type Code string

const (
	ErrUncoded Code = "Uncoded"

	// ErrConfiguration is returned when a schema file is missing or
	// invalid, or when a component is built without the collaborators it
	// needs.
	ErrConfiguration Code = "ConfigurationError"

	// ErrParse is returned for a malformed offset log line or a
	// non-numeric explicit offset.
	ErrParse Code = "ParseError"

	// ErrDecode is returned when a payload does not match its schema.
	ErrDecode Code = "DecodeError"

	// ErrNetwork is returned when a remote service cannot be reached or
	// answers with something unusable.
	ErrNetwork Code = "NetworkError"

	// ErrDataShape is returned when the shape of some data (row counts,
	// key uniqueness) breaks an assumption the caller relies on.
	ErrDataShape Code = "DataShapeError"
)

func New(code Code, message string) error {
	return errors.WithStack(&codedError{
		Code:    code,
		Message: message,
	})
}

// Newf is like New, but formats its message.
func Newf(code Code, format string, args ...interface{}) error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithCode annotates err with a code and a message. The original error
// remains reachable through Unwrap and Cause.
func WithCode(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&codedError{
		Code:    code,
		Message: message + ": " + err.Error(),
		cause:   err,
	})
}

// WithCodef is like WithCode, but formats its message.
func WithCodef(err error, code Code, format string, args ...interface{}) error {
	return WithCode(err, code, fmt.Sprintf(format, args...))
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Cause(err error) error {
	return errors.Cause(err)
}

func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Is is a fork of the Is() method from `pkg/errors` which takes as its target
// an error Code instead of an error.
func Is(err error, target Code) bool {
	return errors.Is(err, &codedError{Code: target})
}

// CodeOf returns the code of the outermost coded error in err's chain, or
// the empty code if there is none.
func CodeOf(err error) Code {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func WithMessage(err error, message string) error {
	return errors.WithMessage(err, message)
}

func WithMessagef(err error, format string, args ...interface{}) error {
	return errors.WithMessagef(err, format, args...)
}

func WithStack(err error) error {
	return errors.WithStack(err)
}

func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, fmt string, args ...interface{}) error {
	return errors.Wrapf(err, fmt, args...)
}

// codedError is the fundamental type used by this package to provide coded
// errors. It is always handled by pointer so that comparing two of them
// never has to compare their causes.
type codedError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Wrapped string `json:"wrapped,omitempty"`

	cause error
}

func (ce *codedError) Error() string {
	if ce.Wrapped != "" {
		return ce.Wrapped
	}
	return ce.Message
}

func (ce *codedError) Is(err error) bool {
	if e, ok := err.(*codedError); ok && ce.Code == e.Code {
		return true
	}
	return false
}

func (ce *codedError) Unwrap() error {
	return ce.cause
}

// MarshalJSON returns the provided error as a json object (as a string)
// representing a codedError. If err is not already a codedError, the json
// object will still represent a codedError but its `code` value will be empty.
func MarshalJSON(err error) string {
	var out *codedError

	var ce *codedError
	if errors.As(err, &ce) {
		cp := *ce
		cp.Wrapped = err.Error()
		out = &cp
	} else {
		cause := Cause(err)
		out = &codedError{
			Message: cause.Error(),
			Wrapped: err.Error(),
		}
	}

	j, jerr := json.Marshal(out)
	if jerr != nil {
		return out.Error()
	}

	return string(j)
}

// UnmarshalJSON converts the byte slice into a codedError. If the bytes can't
// unmarshal to a codedError, a normal error will be returned containing the
// string value of the byte slice.
func UnmarshalJSON(r io.Reader) error {
	b, _ := io.ReadAll(r)

	out := &codedError{}
	if err := json.Unmarshal(b, out); err != nil {
		return errors.New(string(b))
	}
	return out
}
