package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNetwork
	KindRateLimit
	KindContentPolicy
	KindTokenLimitExceeded
	KindSchemaMismatch
	KindProviderUnavailable
	KindAuth
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "Network"
	case KindRateLimit:
		return "RateLimit"
	case KindContentPolicy:
		return "ContentPolicy"
	case KindTokenLimitExceeded:
		return "TokenLimitExceeded"
	case KindSchemaMismatch:
		return "SchemaMismatch"
	case KindProviderUnavailable:
		return "ProviderUnavailable"
	case KindAuth:
		return "Auth"
	default:
		return "Unknown"
	}
}

// Transient reports whether an automatic retry of the same request may succeed.
func (k ErrorKind) Transient() bool {
	return k == KindNetwork || k == KindRateLimit
}

// ErrTokenCountUnsupported is returned by CountTokens when the backend has
// no token counting endpoint.
var ErrTokenCountUnsupported = errors.New("token counting not supported")

// Error is a classified backend failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	// RetryAfter is the delay the provider asked for, if any.
	RetryAfter time.Duration
	Cause      error
}

func NewError(kind ErrorKind, provider, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message}
}

func WrapError(err error, kind ErrorKind, provider, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Cause: err}
}

// Mismatch reports a response whose parsed entry count differs from the
// number of entries sent.
func Mismatch(provider string, expected, parsed int) *Error {
	return NewError(KindSchemaMismatch, provider, fmt.Sprintf("expected %d entries, parsed %d", expected, parsed))
}

func (e *Error) Error() string {
	var parts []string
	if e.Provider != "" {
		parts = append(parts, fmt.Sprintf("[%s/%s] %s", e.Provider, e.Kind, e.Message))
	} else {
		parts = append(parts, fmt.Sprintf("[%s] %s", e.Kind, e.Message))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}
	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorKind lets KindOf classify e.
func (e *Error) ErrorKind() ErrorKind {
	return e.Kind
}

// kinded is implemented by errors that carry their own classification.
type kinded interface {
	ErrorKind() ErrorKind
}

// KindOf classifies err. Unclassified timeouts and connection failures are
// Network errors; context cancellation is Unknown so it is never retried.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindUnknown
}

// IsTransient reports whether err is worth an automatic retry.
func IsTransient(err error) bool {
	return KindOf(err).Transient()
}

// RetryAfterOf returns the provider requested delay carried by err.
func RetryAfterOf(err error) time.Duration {
	var be *Error
	if errors.As(err, &be) {
		return be.RetryAfter
	}
	return 0
}
