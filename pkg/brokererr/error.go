// Package brokererr defines the broker's structured, consumer-safe
// error type (spec §7): a human-readable message paired with a
// machine-readable code, so failure handling across the broker can use
// errors.Is/errors.As instead of string matching, while still producing
// exactly the shape a consumer is allowed to see.
package brokererr

import (
	"fmt"

	"github.com/sessionbroker/broker/pkg/types"
)

// Code is the closed-ish set of machine-readable failure codes named by
// spec.md's error taxonomy (§7).
type Code string

const (
	CodeValidation         Code = "validation_failure"
	CodeAuthFailed         Code = "auth_failure"
	CodeRateLimited        Code = "rate_limit_exceeded"
	CodeBackendUnavailable Code = "backend_unavailable"
	CodeSpawnFailure       Code = "spawn_failure"
	CodeResumeFailure      Code = "resume_failure"
	CodeCapabilitiesTimeout Code = "capabilities_timeout"
	CodeStorageFailure     Code = "storage_failure"
	CodeUnsupported        Code = "unsupported"
)

// Error is the broker's structured error: Message is safe to show a
// consumer verbatim, Code lets callers branch on failure kind, and
// wrapped carries the underlying cause for logs without ever reaching
// the wire.
type Error struct {
	Code    Code
	Message string
	wrapped error
}

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error that wraps cause; cause is available to
// errors.As/errors.Unwrap for logging but Error() never includes its
// text automatically, so a careless %v never leaks internals.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, wrapped: cause}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// ToConsumer renders the consumer-visible shape (spec §7): a human
// string and a machine-readable code, never the wrapped cause.
func (e *Error) ToConsumer() types.ErrorMessage {
	return types.ErrorMessage{Message: e.Message, Code: string(e.Code)}
}
