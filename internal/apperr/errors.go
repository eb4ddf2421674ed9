package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the category of a failure.
type Kind string

const (
	// KindRateLimited means the upstream provider throttled the call. Retryable.
	KindRateLimited Kind = "rate_limited"
	// KindAuthFailure means credentials were rejected. Not retryable.
	KindAuthFailure Kind = "auth_failure"
	// KindMalformedPayload means a single upstream fragment could not be decoded.
	KindMalformedPayload Kind = "malformed_upstream_payload"
	// KindDependencyUnavailable means an optional backend (the graph) is down or slow.
	KindDependencyUnavailable Kind = "dependency_unavailable"
	// KindPermissionDenied means the caller may not read the requested scope.
	KindPermissionDenied Kind = "permission_denied"
	// KindNotFound means a record does not exist.
	KindNotFound Kind = "not_found"
	// KindInvalid means the caller supplied an unusable argument.
	KindInvalid Kind = "invalid"
	// KindUpstream is any other provider failure.
	KindUpstream Kind = "upstream"
)

// BaseError carries the kind, a message and the wrapped cause.
type BaseError struct {
	Kind      Kind
	Message   string
	Retryable bool
	Timestamp time.Time
	Err       error
}

func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *BaseError) Unwrap() error {
	return e.Err
}

// Is matches any *BaseError of the same kind, so sentinel comparisons work with errors.Is.
func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

func newError(kind Kind, retryable bool, message string, err error) *BaseError {
	return &BaseError{
		Kind:      kind,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Sentinels for errors.Is checks. They carry no message so they match every error of their kind.
var (
	ErrRateLimited           = &BaseError{Kind: KindRateLimited}
	ErrAuthFailure           = &BaseError{Kind: KindAuthFailure}
	ErrMalformedPayload      = &BaseError{Kind: KindMalformedPayload}
	ErrDependencyUnavailable = &BaseError{Kind: KindDependencyUnavailable}
	ErrPermissionDenied      = &BaseError{Kind: KindPermissionDenied}
	ErrNotFound              = &BaseError{Kind: KindNotFound}
	ErrInvalid               = &BaseError{Kind: KindInvalid}
)

func RateLimited(provider string, err error) *BaseError {
	return newError(KindRateLimited, true, fmt.Sprintf("%s rate limited", provider), err)
}

func AuthFailure(provider string, err error) *BaseError {
	return newError(KindAuthFailure, false, fmt.Sprintf("%s rejected credentials", provider), err)
}

func MalformedPayload(provider string, err error) *BaseError {
	return newError(KindMalformedPayload, false, fmt.Sprintf("%s sent an undecodable fragment", provider), err)
}

func DependencyUnavailable(dependency string, err error) *BaseError {
	return newError(KindDependencyUnavailable, false, fmt.Sprintf("%s unavailable", dependency), err)
}

// PermissionDenied reports that userID may not read legacyID.
func PermissionDenied(userID, legacyID string) *BaseError {
	return newError(KindPermissionDenied, false, fmt.Sprintf("user %s is not an active member of legacy %s", userID, legacyID), nil)
}

func NotFound(what string) *BaseError {
	return newError(KindNotFound, false, what+" not found", nil)
}

func Invalid(message string) *BaseError {
	return newError(KindInvalid, false, message, nil)
}

func Upstream(provider string, err error) *BaseError {
	return newError(KindUpstream, false, fmt.Sprintf("%s call failed", provider), err)
}

// KindOf returns the kind of the first BaseError in the chain, or "" if there is none.
func KindOf(err error) Kind {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the failure may succeed on a later attempt.
func IsRetryable(err error) bool {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}
