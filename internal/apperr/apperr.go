// Package apperr implements the typed error taxonomy surfaced to guests.
//
// A guest-visible error always carries a discriminant (Kind), a short code,
// and a human description. Host-side invariant violations (a resource
// handle whose concrete type does not match its declared interface, a
// decode failure in the engine) are never represented as *Error — those
// trap the guest instead, per spec.md §7.
package apperr

import (
	"fmt"
	"net/http"
	"strings"
)

// Kind discriminates the error taxonomy of spec.md §7.
type Kind int

const (
	// KindBadRequest maps to HTTP 400. Guest or caller supplied invalid input.
	KindBadRequest Kind = iota
	// KindNotFound maps to HTTP 404.
	KindNotFound
	// KindBadGateway maps to HTTP 502. A host capability's backend failed.
	KindBadGateway
	// KindServerError maps to HTTP 500. A host or guest invariant failed.
	KindServerError
)

// String returns the wire name of the kind, matching the Rust enum variant names.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "BadRequest"
	case KindNotFound:
		return "NotFound"
	case KindBadGateway:
		return "BadGateway"
	case KindServerError:
		return "ServerError"
	default:
		return "ServerError"
	}
}

// Status returns the HTTP status code spec.md §7 maps this kind to.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed application error crossing the guest/host trust boundary.
//
// It round-trips the discriminant, code, and description without loss —
// the structured wire projection spec.md §9's design notes call for,
// rather than an opaque string.
type Error struct {
	Kind        Kind
	Code        string
	Description string
}

// New constructs an Error of the given kind.
func New(kind Kind, code, description string) *Error {
	return &Error{Kind: kind, Code: code, Description: description}
}

// BadRequest constructs a KindBadRequest error.
func BadRequest(code, description string) *Error { return New(KindBadRequest, code, description) }

// NotFound constructs a KindNotFound error.
func NotFound(code, description string) *Error { return New(KindNotFound, code, description) }

// BadGateway constructs a KindBadGateway error.
func BadGateway(code, description string) *Error { return New(KindBadGateway, code, description) }

// ServerError constructs a KindServerError error.
func ServerError(code, description string) *Error { return New(KindServerError, code, description) }

// Error implements the error interface. Its format is exactly what spec.md
// §8 (Testable Property 7) requires: "a body equal to E's formatted string".
func (e *Error) Error() string {
	return e.Description
}

// Status returns the HTTP status code for this error.
func (e *Error) Status() int {
	return e.Kind.Status()
}

// Wrap chains additional context onto an error, preserving its Kind and
// Code. The resulting description is the colon-joined chain, top-most cause
// first, matching spec.md §7's "outer: middle: inner" propagation policy.
func Wrap(context string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if e, ok := err.(*Error); ok {
		ae = e
	}
	if ae != nil {
		return &Error{
			Kind:        ae.Kind,
			Code:        ae.Code,
			Description: fmt.Sprintf("%s: %s", context, ae.Description),
		}
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Chain renders a colon-joined description from a set of context strings
// and a terminal error, top-most cause first.
func Chain(err error, parts ...string) string {
	all := append(append([]string{}, parts...), err.Error())
	return strings.Join(all, ": ")
}
