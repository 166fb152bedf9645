// Package errhandling provides error types and classification for item fetches.
// Classification is used to enrich structured logs; the message shown to the
// UI layer is always the failure's own text (see Describe).
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// GenericFetchMessage is reported when a failure carries no usable message.
const GenericFetchMessage = "failed to fetch items"

// ErrorCategory represents the type/category of an error.
type ErrorCategory string

// Error categories for classification.
const (
	// CategoryNetwork represents network-related errors (timeout, connection refused, DNS).
	CategoryNetwork ErrorCategory = "network"

	// CategoryAuthentication represents authentication errors (401, 403).
	CategoryAuthentication ErrorCategory = "authentication"

	// CategoryValidation represents client-side request errors (400, 422, other 4xx).
	CategoryValidation ErrorCategory = "validation"

	// CategoryRateLimit represents rate limiting errors (429).
	CategoryRateLimit ErrorCategory = "rate_limit"

	// CategoryServer represents server errors (5xx).
	CategoryServer ErrorCategory = "server"

	// CategoryNotFound represents not found errors (404).
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryDecode represents a response body that could not be decoded.
	CategoryDecode ErrorCategory = "decode"

	// CategoryConfig represents a failure to resolve the endpoint from configuration.
	CategoryConfig ErrorCategory = "config"

	// CategoryUnknown represents unclassified errors.
	CategoryUnknown ErrorCategory = "unknown"
)

// Sentinel errors that callers wrap with %w so ClassifyError can recognise them.
var (
	ErrDecode   = errors.New("failed to decode response body")
	ErrEndpoint = errors.New("failed to resolve endpoint")
	ErrPanic    = errors.New("fetch panicked")
)

// ClassifiedError wraps an error with classification metadata.
type ClassifiedError struct {
	// Category is the error classification category.
	Category ErrorCategory

	// StatusCode is the HTTP status code (0 if not an HTTP error).
	StatusCode int

	// Message is a short description of the category.
	Message string

	// OriginalErr is the underlying error that was classified.
	OriginalErr error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Category, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Category, e.Message)
}

// Unwrap returns the original error for use with errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.OriginalErr
}

// StatusCoder is implemented by errors that carry an HTTP status code,
// such as input.HTTPError.
type StatusCoder interface {
	HTTPStatusCode() int
}

// ClassifyHTTPStatus classifies an HTTP error based on status code.
//
// Classification rules:
//   - 401, 403: Authentication
//   - 404: Not found
//   - 429: Rate limit
//   - 5xx: Server
//   - Other 4xx: Validation
//   - Anything else (including 1xx/3xx reaching the caller): Unknown
func ClassifyHTTPStatus(statusCode int, message string) *ClassifiedError {
	ce := &ClassifiedError{StatusCode: statusCode}
	switch {
	case statusCode == 401:
		ce.Category, ce.Message = CategoryAuthentication, "unauthorized"
	case statusCode == 403:
		ce.Category, ce.Message = CategoryAuthentication, "forbidden"
	case statusCode == 404:
		ce.Category, ce.Message = CategoryNotFound, "not found"
	case statusCode == 429:
		ce.Category, ce.Message = CategoryRateLimit, "rate limited"
	case statusCode == 500:
		ce.Category, ce.Message = CategoryServer, "internal server error"
	case statusCode == 502:
		ce.Category, ce.Message = CategoryServer, "bad gateway"
	case statusCode == 503:
		ce.Category, ce.Message = CategoryServer, "service unavailable"
	case statusCode == 504:
		ce.Category, ce.Message = CategoryServer, "gateway timeout"
	case statusCode >= 500:
		ce.Category, ce.Message = CategoryServer, "server error"
	case statusCode >= 400:
		ce.Category, ce.Message = CategoryValidation, "client error"
	default:
		ce.Category, ce.Message = CategoryUnknown, message
	}
	return ce
}

// ClassifyNetworkError classifies a network-related error.
// Timeouts, connection refused, DNS and URL errors are all CategoryNetwork.
func ClassifyNetworkError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{Category: CategoryUnknown, Message: "nil error"}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{Category: CategoryNetwork, Message: "request timeout", OriginalErr: err}
	}
	if errors.Is(err, context.Canceled) {
		return &ClassifiedError{Category: CategoryNetwork, Message: "context canceled", OriginalErr: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &ClassifiedError{
			Category:    CategoryNetwork,
			Message:     fmt.Sprintf("network error: %s %s", opErr.Op, opErr.Net),
			OriginalErr: err,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &ClassifiedError{
			Category:    CategoryNetwork,
			Message:     fmt.Sprintf("DNS error: %s", dnsErr.Name),
			OriginalErr: err,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &ClassifiedError{
			Category:    CategoryNetwork,
			Message:     fmt.Sprintf("URL error: %s %s", urlErr.Op, urlErr.URL),
			OriginalErr: err,
		}
	}

	type timeoutError interface {
		Timeout() bool
	}
	var timeoutErr timeoutError
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return &ClassifiedError{Category: CategoryNetwork, Message: "timeout", OriginalErr: err}
	}

	return &ClassifiedError{Category: CategoryUnknown, Message: err.Error(), OriginalErr: err}
}

// ClassifyError classifies any fetch failure into a ClassifiedError.
// Order matters: decode and endpoint sentinels are checked before the
// transport checks because a decode failure may also wrap an io error.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{Category: CategoryUnknown, Message: "nil error"}
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, ErrDecode) {
		return &ClassifiedError{Category: CategoryDecode, Message: "invalid response body", OriginalErr: err}
	}
	if errors.Is(err, ErrEndpoint) {
		return &ClassifiedError{Category: CategoryConfig, Message: "endpoint unavailable", OriginalErr: err}
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		ce := ClassifyHTTPStatus(sc.HTTPStatusCode(), err.Error())
		ce.OriginalErr = err
		return ce
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &urlErr) {
		return ClassifyNetworkError(err)
	}

	return &ClassifiedError{Category: CategoryUnknown, Message: err.Error(), OriginalErr: err}
}

// GetErrorCategory returns the category of err, classifying it if needed.
// Returns CategoryUnknown for nil.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	return ClassifyError(err).Category
}

// IsFatal reports whether err points at a problem that repeating the same
// request cannot fix (authentication, validation, not found, config).
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch GetErrorCategory(err) {
	case CategoryAuthentication, CategoryValidation, CategoryNotFound, CategoryConfig:
		return true
	default:
		return false
	}
}

// Describe returns the human-readable message stored in the fetch state.
// It is the error's own text; GenericFetchMessage is used when that is empty.
func Describe(err error) string {
	if err == nil {
		return GenericFetchMessage
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return GenericFetchMessage
}

// PanicError converts a recovered panic value into an error.
func PanicError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("%w: %w", ErrPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrPanic, recovered)
}
