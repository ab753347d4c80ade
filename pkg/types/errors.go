// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies failures surfaced by the map pipeline.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindAuthentication      ErrorKind = "authentication"
	KindRateLimitExceeded   ErrorKind = "rate_limit_exceeded"
	KindUnsupportedLanguage ErrorKind = "unsupported_language"
	KindParse               ErrorKind = "parse_error"
	KindTimeout             ErrorKind = "timeout"
)

// Error is a classified failure. Two errors match under errors.Is when their
// kinds are equal, so callers test against the sentinels below.
type Error struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration // set for KindRateLimitExceeded
	Err        error
}

// Sentinels for errors.Is.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrAuthentication      = &Error{Kind: KindAuthentication}
	ErrRateLimitExceeded   = &Error{Kind: KindRateLimitExceeded}
	ErrUnsupportedLanguage = &Error{Kind: KindUnsupportedLanguage}
	ErrParse               = &Error{Kind: KindParse}
	ErrTimeout             = &Error{Kind: KindTimeout}
)

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Kind == KindRateLimitExceeded && e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter.Round(time.Second))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError builds a classified error.
func NewError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// RateLimited builds a KindRateLimitExceeded error.
func RateLimited(retryAfter time.Duration, format string, args ...any) *Error {
	return &Error{
		Kind:       KindRateLimitExceeded,
		Message:    fmt.Sprintf(format, args...),
		RetryAfter: retryAfter,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err is not classified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
