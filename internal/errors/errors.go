package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types for the session client
var (
	// Transport errors
	ErrNetwork      = errors.New("network error")
	ErrUnauthorized = errors.New("unauthorized")

	// Session errors
	ErrSessionExpired = errors.New("session expired")
	ErrNoSession      = errors.New("no active session")

	// Login flow errors
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidSecondFactor = errors.New("invalid second factor code")
	ErrEmailNotVerified    = errors.New("email not verified")
	ErrProfileFetch        = errors.New("profile fetch failed")
	ErrInvalidState        = errors.New("invalid state for operation")
	ErrEmailInUse          = errors.New("email already registered")

	// Chat errors
	ErrNotConnected = errors.New("chat not connected")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrUnsupported = errors.New("unsupported operation")
)

// SecondFactorRequiredDetail is the backend's literal signal that a one-time code must accompany the login.
const SecondFactorRequiredDetail = "2FA_REQUIRED"

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status int
	Detail string // The "detail" field of the error body, if it was a string
	Body   []byte
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

// Is lets errors.Is(err, ErrUnauthorized) match a 401 response.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// NetworkError means no response was received.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// Kind classifies an outcome for retry decisions.
type Kind int

const (
	KindNone Kind = iota
	KindNetwork
	KindUnauthorized
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "other"
	}
}

// KindOf returns the Kind of err. A nil error is KindNone.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	default:
		return KindOther
	}
}

// Detail returns the backend detail string carried by err, if any.
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need only one errors import.
func New(text string) error {
	return errors.New(text)
}
