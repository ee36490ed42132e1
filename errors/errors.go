// Package errors is the single error package used across crosspost.
//
// It re-exports github.com/cockroachdb/errors so every layer gets stack
// traces, wrapping and safe details from one import, and it defines the
// sentinels the publishing engine classifies on:
//
//	if errors.Is(err, errors.ErrPlatformNotConnected) {
//	    // fatal: the user has to connect the platform first
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	"strings"

	crdb "github.com/cockroachdb/errors"
)

// Creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// Hints and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
	Join           = crdb.Join
)

// Generic sentinels. Wrap them to add context; check them with Is.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrUnauthorized indicates missing or rejected credentials
	ErrUnauthorized = New("unauthorized")

	// ErrForbidden indicates the credentials lack permission
	ErrForbidden = New("forbidden")

	// ErrServiceUnavailable indicates a required service is not available
	ErrServiceUnavailable = New("service unavailable")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")
)

// Publishing sentinels.
var (
	// ErrPlatformNotConnected means the job names a platform the user has no integration for
	ErrPlatformNotConnected = New("platform not connected")

	// ErrUnsupportedPlatform means no publisher is registered for the platform
	ErrUnsupportedPlatform = New("unsupported platform")

	// ErrRateLimited means the platform quota for the current window is used up
	ErrRateLimited = New("rate limit exceeded")

	// ErrUnconfirmed means the platform accepted a post but its answer could
	// not be read, so the post may exist without a known id
	ErrUnconfirmed = New("publish unconfirmed")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsAuthError reports whether err carries ErrUnauthorized or ErrForbidden.
// Matching is mark-based: an error created with errors.New and the same
// message as a sentinel is equivalent to it.
func IsAuthError(err error) bool {
	return err != nil && IsAny(err, ErrUnauthorized, ErrForbidden)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}

// NewNotConnectedError names the platforms that lack an integration.
func NewNotConnectedError(platforms []string) error {
	return Wrapf(ErrPlatformNotConnected, "missing integrations for %s", strings.Join(platforms, ", "))
}
