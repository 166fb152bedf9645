package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/canectors/itemstore/pkg/itemstore"
)

func TestJoinItemsPath(t *testing.T) {
	tests := []struct {
		base     string
		path     string
		mode     EndpointMode
		expected string
	}{
		{"http://api.local", "/items", EndpointAppend, "http://api.local/items"},
		{"http://api.local/", "/items", EndpointAppend, "http://api.local/items"},
		{"http://api.local///", "/items", EndpointAppend, "http://api.local/items"},
		{"http://api.local/v2", "", EndpointAppend, "http://api.local/v2/items"},
		{"http://api.local/v2", "/objects", "", "http://api.local/v2/objects"},
		{"http://api.local/list?page=1", "/items", EndpointVerbatim, "http://api.local/list?page=1"},
		{"not a url", "/items", EndpointAppend, "not a url/items"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := JoinItemsPath(tt.base, tt.path, tt.mode); got != tt.expected {
				t.Errorf("JoinItemsPath(%q, %q, %q) = %q, want %q", tt.base, tt.path, tt.mode, got, tt.expected)
			}
		})
	}
}

func TestStaticEndpoint(t *testing.T) {
	got, err := StaticEndpoint{Base: "http://api.local/", Path: "/items"}.Endpoint()
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}
	if got != "http://api.local/items" {
		t.Errorf("expected appended path, got %q", got)
	}

	if _, err := (StaticEndpoint{}).Endpoint(); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("expected ErrNoEndpoint, got %v", err)
	}
}

func TestEnvEndpoint_ReadEachCall(t *testing.T) {
	env := map[string]string{}
	src := EnvEndpoint{
		Fallback: "http://fallback.local",
		lookup: func(name string) (string, bool) {
			v, ok := env[name]
			return v, ok
		},
	}

	got, err := src.Endpoint()
	if err != nil || got != "http://fallback.local/items" {
		t.Fatalf("expected fallback, got %q (%v)", got, err)
	}

	env[DefaultAPIURLEnv] = "http://first.local"
	got, _ = src.Endpoint()
	if got != "http://first.local/items" {
		t.Errorf("expected first value, got %q", got)
	}

	env[DefaultAPIURLEnv] = "http://second.local/"
	got, _ = src.Endpoint()
	if got != "http://second.local/items" {
		t.Errorf("expected change to be picked up, got %q", got)
	}
}

func TestEnvEndpoint_ProcessEnvironment(t *testing.T) {
	t.Setenv("CATALOGUE_API_URL", "http://env.local")

	got, err := EnvEndpoint{Var: "CATALOGUE_API_URL", Mode: EndpointVerbatim}.Endpoint()
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}
	if got != "http://env.local" {
		t.Errorf("expected verbatim env value, got %q", got)
	}

	t.Setenv("CATALOGUE_API_URL", "")
	if _, err := (EnvEndpoint{Var: "CATALOGUE_API_URL"}).Endpoint(); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("expected ErrNoEndpoint when unset and no fallback, got %v", err)
	}
}

func TestFileEndpoint_ReparsedEachCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	write := func(url string) {
		t.Helper()
		content := "schemaVersion: \"1.0.0\"\nstore:\n  name: objects\n  apiUrl: " + url + "\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
	}

	src := FileEndpoint{Path: path}

	write("http://one.local")
	got, err := src.Endpoint()
	if err != nil || got != "http://one.local/items" {
		t.Fatalf("expected first URL, got %q (%v)", got, err)
	}

	write("http://two.local")
	got, err = src.Endpoint()
	if err != nil || got != "http://two.local/items" {
		t.Fatalf("expected edited URL, got %q (%v)", got, err)
	}

	if err := os.WriteFile(path, []byte("store: ["), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := src.Endpoint(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for broken file, got %v", err)
	}
}

func TestStoreConfig_EndpointSource(t *testing.T) {
	static := (&StoreConfig{APIURL: "http://api.local", Path: "/items", EndpointMode: EndpointAppend}).EndpointSource()
	if _, ok := static.(StaticEndpoint); !ok {
		t.Errorf("expected StaticEndpoint, got %T", static)
	}

	env := (&StoreConfig{APIURL: "http://api.local", APIURLEnv: "X_URL"}).EndpointSource()
	envSrc, ok := env.(EnvEndpoint)
	if !ok {
		t.Fatalf("expected EnvEndpoint, got %T", env)
	}
	if envSrc.Var != "X_URL" || envSrc.Fallback != "http://api.local" {
		t.Errorf("unexpected env source: %+v", envSrc)
	}
}

func TestStoreConfig_EndpointSourceDrivesStore(t *testing.T) {
	cfg := &StoreConfig{Name: "objects", APIURL: "http://api.local/", Path: DefaultItemsPath, EndpointMode: EndpointAppend}

	var requested string
	store := itemstore.New(cfg.Name, cfg.EndpointSource(), itemstore.FetcherFunc(
		func(_ context.Context, endpoint string) (*itemstore.Response, error) {
			requested = endpoint
			return &itemstore.Response{Payload: []any{}}, nil
		}))
	store.FetchItems(context.Background())

	if requested != "http://api.local/items" {
		t.Errorf("expected request to http://api.local/items, got %q", requested)
	}
}
