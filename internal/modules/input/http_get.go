package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"

	"github.com/canectors/itemstore/internal/errhandling"
	"github.com/canectors/itemstore/internal/logger"
	"github.com/canectors/itemstore/pkg/itemstore"
)

// Default configuration values
const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Itemstore/1.0"

	// maxErrorBodySnippet bounds how much of an error response body is kept.
	maxErrorBodySnippet = 500
)

// Error types for the HTTP GET module
var (
	ErrMissingEndpoint = errors.New("endpoint is required")
	ErrHTTPRequest     = errors.New("http request failed")
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Status     string
	Endpoint   string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http error %d (%s) from %s", e.StatusCode, e.Status, e.Endpoint)
	}
	return fmt.Sprintf("http error %d (%s) from %s: %s", e.StatusCode, e.Status, e.Endpoint, e.Message)
}

// HTTPStatusCode lets errhandling classify the error by status.
func (e *HTTPError) HTTPStatusCode() int {
	return e.StatusCode
}

var _ errhandling.StatusCoder = (*HTTPError)(nil)

// HTTPGetOptions configures an HTTPGet module.
type HTTPGetOptions struct {
	// Timeout applies to the whole request (default 30s). Ignored when Client is set.
	Timeout time.Duration
	// UserAgent overrides DefaultUserAgent.
	UserAgent string
	// Client replaces the default *http.Client.
	Client *http.Client
}

// HTTPGet issues a single GET and decodes the JSON body without validating its shape.
type HTTPGet struct {
	client    *http.Client
	userAgent string
}

// NewHTTPGet creates an HTTPGet module.
func NewHTTPGet(opts HTTPGetOptions) *HTTPGet {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	logger.Debug("http get module created",
		"timeout", client.Timeout.String(),
		"user_agent", userAgent,
	)

	return &HTTPGet{client: client, userAgent: userAgent}
}

// Fetch executes one HTTP GET against endpoint and decodes the body.
// The endpoint is used verbatim; a malformed URL surfaces as a request creation error.
func (h *HTTPGet) Fetch(ctx context.Context, endpoint string) (*itemstore.Response, error) {
	if endpoint == "" {
		return nil, ErrMissingEndpoint
	}

	requestStart := time.Now()

	logger.Debug("http request started",
		"endpoint", endpoint,
		"method", http.MethodGet,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating http request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	requestDuration := time.Since(requestStart)
	if err != nil {
		logger.Debug("http request failed",
			"endpoint", endpoint,
			"duration", requestDuration,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("%w: %w", ErrHTTPRequest, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body",
				"endpoint", endpoint,
				"error", closeErr.Error(),
			)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		snippet := truncateSnippet(body, maxErrorBodySnippet)
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Endpoint:   endpoint,
			Message:    snippet,
		}
	}

	var payload any
	if err := jsonAPI.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", errhandling.ErrDecode, err)
	}

	logger.Debug("http request completed",
		"endpoint", endpoint,
		"status_code", resp.StatusCode,
		"duration", requestDuration,
		"response_size", len(body),
	)

	return &itemstore.Response{
		Payload:    payload,
		StatusCode: resp.StatusCode,
		Size:       len(body),
	}, nil
}

// truncateSnippet cuts body to at most limit bytes without splitting a rune.
func truncateSnippet(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}

var _ Module = (*HTTPGet)(nil)
