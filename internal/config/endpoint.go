package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/canectors/itemstore/pkg/itemstore"
)

// ErrNoEndpoint is returned when no base URL is available.
var ErrNoEndpoint = errors.New("no endpoint configured")

// EndpointSource is the store's endpoint interface; the sources below implement it.
type EndpointSource = itemstore.EndpointSource

// JoinItemsPath builds the request URL for the given mode.
// In append mode trailing slashes are trimmed from base before path is added;
// in verbatim mode base is returned unchanged. The result is never validated.
func JoinItemsPath(base, path string, mode EndpointMode) string {
	if mode == EndpointVerbatim {
		return base
	}
	if path == "" {
		path = DefaultItemsPath
	}
	return strings.TrimRight(base, "/") + path
}

// StaticEndpoint is a fixed URL.
type StaticEndpoint struct {
	Base string
	Path string
	Mode EndpointMode
}

// Endpoint implements EndpointSource.
func (s StaticEndpoint) Endpoint() (string, error) {
	if s.Base == "" {
		return "", ErrNoEndpoint
	}
	return JoinItemsPath(s.Base, s.Path, s.Mode), nil
}

// EnvEndpoint reads the base URL from an environment variable on every call.
type EnvEndpoint struct {
	// Var is the variable name; DefaultAPIURLEnv when empty.
	Var string
	// Fallback is used when the variable is unset or empty.
	Fallback string
	Path     string
	Mode     EndpointMode

	// lookup replaces os.LookupEnv in tests.
	lookup func(string) (string, bool)
}

// Endpoint implements EndpointSource.
func (e EnvEndpoint) Endpoint() (string, error) {
	name := e.Var
	if name == "" {
		name = DefaultAPIURLEnv
	}
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	base, ok := lookup(name)
	if !ok || base == "" {
		base = e.Fallback
	}
	if base == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrNoEndpoint, name)
	}
	return JoinItemsPath(base, e.Path, e.Mode), nil
}

// FileEndpoint re-reads the configuration file on every call so edits take
// effect on the next fetch.
type FileEndpoint struct {
	Path string
}

// Endpoint implements EndpointSource.
func (f FileEndpoint) Endpoint() (string, error) {
	cfg, err := LoadStoreConfig(f.Path)
	if err != nil {
		return "", err
	}
	return cfg.EndpointSource().Endpoint()
}

// EndpointSource returns the source described by the configuration: the
// environment variable named by apiUrlEnv when set, else the static apiUrl.
func (c *StoreConfig) EndpointSource() EndpointSource {
	if c.APIURLEnv != "" {
		return EnvEndpoint{
			Var:      c.APIURLEnv,
			Fallback: c.APIURL,
			Path:     c.Path,
			Mode:     c.EndpointMode,
		}
	}
	return StaticEndpoint{Base: c.APIURL, Path: c.Path, Mode: c.EndpointMode}
}

var (
	_ EndpointSource = StaticEndpoint{}
	_ EndpointSource = EnvEndpoint{}
	_ EndpointSource = FileEndpoint{}
)
