package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies why a provider call failed.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindMalformed   ErrorKind = "malformed"
	KindUnavailable ErrorKind = "unavailable"
	KindUnsupported ErrorKind = "unsupported"
)

// Error is the failure type every provider returns.
type Error struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(provider string, kind ErrorKind, status int, err error) *Error {
	return &Error{Provider: provider, Kind: kind, StatusCode: status, Err: err}
}

// Classify wraps an arbitrary error from a provider call into *Error.
func Classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(provider, KindTimeout, 0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(provider, KindTimeout, 0, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return newError(provider, KindMalformed, 0, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "rate limit"):
		return newError(provider, KindRateLimited, 429, err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return newError(provider, KindTimeout, 0, err)
	}
	return newError(provider, KindUnavailable, 0, err)
}
