// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package errors wraps pkg/errors and includes some custom features such as
// error codes.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is an error code which can be used to check against a given error. For
// example, see the Is() method.
type Code string

// Error codes used throughout nvdstore. Every failure surfaced by the
// storage adapters, selectors and cursors carries one of these so that
// callers can branch on the class of failure rather than on message text.
const (
	ErrUncoded Code = "Uncoded"

	// ErrConfiguration covers invalid wiring: missing storage paths,
	// cursors constructed over both or neither data source, bad sizes.
	ErrConfiguration Code = "ConfigurationError"

	// ErrValidation covers invalid input data: documents without an id,
	// sample sizes exceeding the stored total, non-positive limits.
	ErrValidation Code = "ValidationError"

	// ErrFormat covers malformed encoded values such as a year bitmask
	// that is not a hexadecimal string.
	ErrFormat Code = "FormatError"

	// ErrTypeMismatch is raised by selectors at type check level 2 when a
	// pattern cannot be compared against an attribute value.
	ErrTypeMismatch Code = "TypeMismatchError"

	// ErrLocked indicates another process holds the advisory lock on a
	// storage or feed file.
	ErrLocked Code = "LockedError"

	// ErrCursorDone signals normal end of iteration on a cursor.
	ErrCursorDone Code = "CursorDone"
)

func New(code Code, message string) error {
	return errors.WithStack(codedError{
		Code:    code,
		Message: message,
	})
}

// Newf is like New with fmt.Sprintf semantics for the message.
func Newf(code Code, format string, args ...interface{}) error {
	return errors.WithStack(codedError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
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
	match := codedError{
		Code: target,
	}
	return errors.Is(err, match)
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
// errors.
type codedError struct {
	Code    Code
	Message string
}

func (ce codedError) Error() string {
	return ce.Message
}

func (ce codedError) Is(err error) bool {
	if e, ok := err.(codedError); ok && ce.Code == e.Code {
		return true
	}
	return false
}
