// Package itemstore provides public types and the state container that
// fetches a list of items from an HTTP endpoint.
// This package is intended to be importable by UI layers that render
// the loading, error and item fields.
package itemstore

import (
	"context"
)

// State is a snapshot of the store.
// Values returned by the store are copies; mutating them does not affect the store.
type State struct {
	// Items is the decoded body of the last successful fetch, kept opaque.
	// It starts as an empty []any and may hold any JSON shape the endpoint returned.
	Items any `json:"items"`

	// Loading is true while the newest fetch is in flight.
	Loading bool `json:"loading"`

	// Error is the message of the last failed fetch, empty otherwise.
	Error string `json:"error"`
}

// Status is the phase of the fetch cycle.
type Status string

const (
	// StatusIdle means no fetch has settled or started yet.
	StatusIdle Status = "idle"
	// StatusLoading means a fetch is in flight.
	StatusLoading Status = "loading"
	// StatusSuccess means the last settled fetch replaced the items.
	StatusSuccess Status = "success"
	// StatusError means the last settled fetch failed.
	StatusError Status = "error"
)

// Response is what a Fetcher returns for a successful read.
type Response struct {
	// Payload is the decoded response body.
	Payload any
	// StatusCode is the HTTP status code.
	StatusCode int
	// Size is the body size in bytes.
	Size int
}

// Fetcher performs exactly one read against endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, endpoint string) (*Response, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, endpoint string) (*Response, error) {
	return f(ctx, endpoint)
}

// EndpointSource yields the URL for the next fetch. It is consulted on every call.
type EndpointSource interface {
	Endpoint() (string, error)
}

// Listener receives a snapshot after every state transition.
type Listener func(State)
