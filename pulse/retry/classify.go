package retry

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/teranos/crosspost/errors"
)

// ErrorCode is the persisted classification of a publish failure
type ErrorCode string

const (
	CodeNetwork       ErrorCode = "network"
	CodeTimeout       ErrorCode = "timeout"
	CodeRateLimited   ErrorCode = "rate_limited"
	CodeServerError   ErrorCode = "server_error"
	CodeValidation    ErrorCode = "validation"
	CodeAuth          ErrorCode = "auth"
	CodeNotFound      ErrorCode = "not_found"
	CodeConfiguration ErrorCode = "configuration"
	CodeUnconfirmed   ErrorCode = "unconfirmed"
	CodeUnknown       ErrorCode = "unknown"
)

// Classification says what went wrong and whether trying again can help.
type Classification struct {
	Code      ErrorCode
	Retryable bool
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Classifier is implemented by errors that already know their class, such
// as aggregated per-platform failures.
type Classifier interface {
	Classification() Classification
}

var (
	rateLimitPatterns = []string{"too many requests", "rate limit", "ratelimit", "quota exceeded"}
	timeoutPatterns   = []string{"timeout", "timed out", "deadline exceeded"}
	serverPatterns    = []string{"internal server error", "bad gateway", "service unavailable", "gateway timeout"}
	networkPatterns   = []string{
		"connection reset", "connection refused", "connection aborted", "broken pipe",
		"no such host", "network is unreachable", "unexpected eof", "tls handshake",
		"temporary failure", "network error",
	}

	status429Pattern = regexp.MustCompile(`\b429\b`)
	status5xxPattern = regexp.MustCompile(`(?i)\b(?:status|http|code)\b[^0-9]{0,8}5\d\d\b`)
)

// Classify decides whether err is worth retrying. Retryable means a network
// problem, a timeout, HTTP 429 or HTTP 5xx. Typed signals are checked before
// message patterns; anything unrecognised is fatal.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Code: CodeUnknown}
	}

	var self Classifier
	if errors.As(err, &self) {
		return self.Classification()
	}

	switch {
	case errors.Is(err, errors.ErrUnconfirmed):
		// The post may exist; retrying could publish it twice.
		return Classification{Code: CodeUnconfirmed}
	case errors.Is(err, errors.ErrRateLimited):
		return Classification{Code: CodeRateLimited, Retryable: true}
	case errors.Is(err, errors.ErrNotFound):
		return Classification{Code: CodeNotFound}
	case errors.Is(err, errors.ErrInvalidRequest):
		return Classification{Code: CodeValidation}
	case errors.IsAuthError(err):
		return Classification{Code: CodeAuth}
	case errors.IsAny(err, errors.ErrPlatformNotConnected, errors.ErrUnsupportedPlatform):
		return Classification{Code: CodeConfiguration}
	case errors.IsAny(err, context.DeadlineExceeded, context.Canceled, errors.ErrTimeout):
		// Cancellation only happens when the trigger is shutting down; the
		// attempt was interrupted, not rejected.
		return Classification{Code: CodeTimeout, Retryable: true}
	case errors.Is(err, errors.ErrServiceUnavailable):
		return Classification{Code: CodeServerError, Retryable: true}
	case errors.IsAny(err, io.ErrUnexpectedEOF, io.EOF):
		return Classification{Code: CodeNetwork, Retryable: true}
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.StatusCode())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Classification{Code: CodeTimeout, Retryable: true}
		}
		return Classification{Code: CodeNetwork, Retryable: true}
	}

	return classifyMessage(err.Error())
}

// IsRetryable is shorthand for Classify(err).Retryable.
func IsRetryable(err error) bool {
	return Classify(err).Retryable
}

func classifyStatus(code int) Classification {
	switch {
	case code == http.StatusTooManyRequests:
		return Classification{Code: CodeRateLimited, Retryable: true}
	case code >= 500:
		return Classification{Code: CodeServerError, Retryable: true}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return Classification{Code: CodeAuth}
	case code == http.StatusNotFound:
		return Classification{Code: CodeNotFound}
	case code >= 400:
		return Classification{Code: CodeValidation}
	default:
		return Classification{Code: CodeUnknown}
	}
}

func classifyMessage(msg string) Classification {
	lower := strings.ToLower(msg)

	switch {
	case containsAny(lower, rateLimitPatterns) || status429Pattern.MatchString(lower):
		return Classification{Code: CodeRateLimited, Retryable: true}
	case containsAny(lower, serverPatterns) || status5xxPattern.MatchString(lower):
		return Classification{Code: CodeServerError, Retryable: true}
	case containsAny(lower, timeoutPatterns):
		return Classification{Code: CodeTimeout, Retryable: true}
	case containsAny(lower, networkPatterns):
		return Classification{Code: CodeNetwork, Retryable: true}
	default:
		return Classification{Code: CodeUnknown}
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
