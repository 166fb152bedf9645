// Package config provides functionality for parsing and validating
// item store configuration files (JSON/YAML).
package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseResult contains the result of parsing a configuration file.
type ParseResult struct {
	// Data contains the parsed configuration as a map
	Data map[string]any
	// Errors contains any parsing errors encountered
	Errors []ParseError
	// FilePath is the path to the parsed file (empty if parsed from string)
	FilePath string
	// Format indicates the detected format (json, yaml)
	Format string
}

// IsValid returns true if no parsing errors occurred.
func (r *ParseResult) IsValid() bool {
	return len(r.Errors) == 0
}

// ParseError represents a parsing error with location information.
type ParseError struct {
	// Path is the file path where the error occurred
	Path string
	// Line is the line number (1-based, 0 if unknown)
	Line int
	// Column is the column number (1-based, 0 if unknown)
	Column int
	// Offset is the byte offset in the file (0 if unknown)
	Offset int64
	// Message is the error message
	Message string
	// Type categorizes the error (syntax, io, format)
	Type string
}

// Error implements the error interface.
func (e ParseError) Error() string {
	var sb strings.Builder
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteString(": ")
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, "line %d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(&sb, ", column %d", e.Column)
		}
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

// ValidationResult contains the result of validating a configuration.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError represents a schema validation error.
type ValidationError struct {
	// Path is the JSON path where the error occurred (e.g., "/store/apiUrl")
	Path string
	// Type is the error type (required, type, pattern, enum, etc.)
	Type string
	// Message is the error message
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Result contains the combined result of parsing and validation.
type Result struct {
	Data             map[string]any
	ParseErrors      []ParseError
	ValidationErrors []ValidationError
	FilePath         string
	Format           string
}

// IsValid returns true if no errors occurred.
func (r *Result) IsValid() bool {
	return len(r.ParseErrors) == 0 && len(r.ValidationErrors) == 0
}

// AllErrors returns all errors (parsing and validation) as a single slice.
func (r *Result) AllErrors() []error {
	errs := make([]error, 0, len(r.ParseErrors)+len(r.ValidationErrors))
	for _, e := range r.ParseErrors {
		errs = append(errs, e)
	}
	for _, e := range r.ValidationErrors {
		errs = append(errs, e)
	}
	return errs
}

// FormatErrorType constants for categorizing parse errors.
const (
	ErrorTypeIO     = "io"
	ErrorTypeSyntax = "syntax"
	ErrorTypeFormat = "format"
)

// ============================================================================
// Store configuration
// ============================================================================

// EndpointMode controls how the configured base URL becomes the request URL.
type EndpointMode string

const (
	// EndpointAppend appends Path to the base URL after trimming trailing slashes.
	EndpointAppend EndpointMode = "append"
	// EndpointVerbatim uses the configured URL unchanged.
	EndpointVerbatim EndpointMode = "verbatim"
)

// Defaults applied by the converter.
const (
	DefaultItemsPath     = "/items"
	DefaultAPIURLEnv     = "ITEMSTORE_API_URL"
	DefaultWatchInterval = 5 * time.Second
	DefaultRedisChannel  = "itemstore:state"
)

// StoreConfig is the typed form of a validated configuration file.
type StoreConfig struct {
	Name         string
	Description  string
	APIURL       string
	APIURLEnv    string
	Path         string
	EndpointMode EndpointMode
	TimeoutMs    int
	UserAgent    string
	Watch        WatchConfig
	Notify       NotifyConfig
}

// GetTimeout returns the HTTP client timeout, zero meaning the client default.
func (c *StoreConfig) GetTimeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// WatchConfig configures repeated fetching.
type WatchConfig struct {
	IntervalMs int
	// Until is an expression over the store state that stops the watch when true.
	Until string
	// MaxFetches stops the watch after that many fetches (0 = unlimited).
	MaxFetches int
}

// GetInterval returns the polling interval, falling back to DefaultWatchInterval.
func (w WatchConfig) GetInterval() time.Duration {
	if w.IntervalMs <= 0 {
		return DefaultWatchInterval
	}
	return time.Duration(w.IntervalMs) * time.Millisecond
}

// NotifyConfig configures where state transitions are published.
type NotifyConfig struct {
	Log   bool
	Redis *RedisNotifyConfig
}

// RedisNotifyConfig configures the Redis publisher.
type RedisNotifyConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}
