// Package apperr defines the error kinds shared by the ledger, the generation
// flow and the HTTP layer. Lower layers return *Error values; the API maps a
// Kind to a status code exactly once.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind classifies an error for propagation and presentation.
type Kind string

const (
	KindInvalidRequest      Kind = "INVALID_REQUEST"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindGenerationFailed    Kind = "GENERATION_FAILED"
	KindStorageUnavailable  Kind = "STORAGE_UNAVAILABLE"
	KindNotFound            Kind = "NOT_FOUND"
	KindConflict            Kind = "CONFLICT"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindRateLimited         Kind = "RATE_LIMIT_EXCEEDED"
	KindInternal            Kind = "INTERNAL_SERVER_ERROR"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string // field -> problem, for KindInvalidRequest
	Err     error             // underlying cause, never shown to clients

	// Set for KindInsufficientBalance.
	Required decimal.Decimal
	Current  decimal.Decimal
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " [%s: %s]", k, e.Fields[k])
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err,
// apperr.ErrInsufficientBalance) works without comparing amounts.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidRequest      = &Error{Kind: KindInvalidRequest}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrGenerationFailed    = &Error{Kind: KindGenerationFailed}
	ErrStorageUnavailable  = &Error{Kind: KindStorageUnavailable}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrConflict            = &Error{Kind: KindConflict}
)

// KindOf returns the kind of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Invalid builds an InvalidRequest error for a single field.
func Invalid(field, problem string) *Error {
	return &Error{
		Kind:    KindInvalidRequest,
		Message: "request validation failed",
		Fields:  map[string]string{field: problem},
	}
}

// InvalidFields builds an InvalidRequest error from collected field problems.
func InvalidFields(fields map[string]string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: "request validation failed", Fields: fields}
}

// Insufficient reports that required exceeds the current balance.
func Insufficient(required, current decimal.Decimal) *Error {
	return &Error{
		Kind:     KindInsufficientBalance,
		Message:  fmt.Sprintf("insufficient wallet balance: required %s, current %s", required.StringFixed(2), current.StringFixed(2)),
		Required: required,
		Current:  current,
	}
}

// GenerationFailed wraps a failure of the image generator.
func GenerationFailed(err error) *Error {
	return &Error{Kind: KindGenerationFailed, Message: "image generation failed", Err: err}
}

// Storage wraps an infrastructure failure. A context deadline is reported the
// same way: the caller sees StorageUnavailable and nothing was applied.
func Storage(op string, err error) *Error {
	msg := op + " failed"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = op + " timed out"
	}
	return &Error{Kind: KindStorageUnavailable, Message: msg, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

// Conflict reports a state transition that is no longer allowed.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}
