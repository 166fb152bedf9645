// Package input provides implementations for input modules.
// Input modules are responsible for reading the item collection from a source system.
package input

import (
	"context"

	"github.com/canectors/itemstore/pkg/itemstore"
)

// Module represents an input module that reads items from a source.
// Every Module is usable as an itemstore.Fetcher.
type Module interface {
	// Fetch performs exactly one read against endpoint.
	// The context carries the caller's deadline; the module never retries.
	Fetch(ctx context.Context, endpoint string) (*itemstore.Response, error)
}

var _ itemstore.Fetcher = Module(nil)
