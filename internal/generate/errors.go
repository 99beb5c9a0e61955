package generate

import (
	"fmt"
	"net/http"
)

// Kind classifies every way a generation request can fail. The set is
// closed and each kind has one HTTP status, so failures are matched
// exhaustively instead of being caught ad hoc.
type Kind int

const (
	KindValidation Kind = iota
	KindAuth
	KindInsufficientCredits
	KindDuplicate
	KindPayloadTooLarge
	KindRateLimited
	KindProviderTimeout
	KindProviderUnavailable
	KindInternal
)

// Error is the sanitized failure surfaced to callers. Details carries
// extra context safe to show (e.g. the credit shortfall); provider
// internals stay in logs.
type Error struct {
	Kind    Kind
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// HTTPStatus maps the error kind to its response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindInsufficientCredits:
		return http.StatusPaymentRequired
	case KindDuplicate:
		return http.StatusConflict
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindProviderTimeout:
		return http.StatusRequestTimeout
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errValidation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func errInternal(msg string) *Error {
	return &Error{Kind: KindInternal, Message: msg}
}
