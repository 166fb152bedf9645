package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

// binaryPath is the CLI built once by TestMain.
var binaryPath string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "itemstore-cli")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(dir, "itemstore")
	build := exec.Command("go", "build", "-o", binaryPath, ".")
	if out, err := build.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to build CLI: %v\n%s", err, out)
		_ = os.RemoveAll(dir)
		os.Exit(1)
	}

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// testFixturePath returns the path to test fixtures
func testFixturePath(filename string) string {
	return filepath.Join("..", "..", "internal", "config", "testdata", filename)
}

// runCLI runs the CLI binary and returns stdout, stderr, and exit code
func runCLI(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			t.Fatalf("failed to run CLI: %v", err)
		}
	}

	return stdout, stderr, exitCode
}

// writeStoreConfig writes a YAML config pointing at baseURL and returns its path.
func writeStoreConfig(t *testing.T, baseURL, extra string) string {
	t.Helper()
	content := fmt.Sprintf(`schemaVersion: "1.0.0"
store:
  name: objects
  apiUrl: %s
  timeoutMs: 2000
%s`, baseURL, extra)
	path := filepath.Join(t.TempDir(), "store.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// itemsServer serves body with status on /items and counts requests.
func itemsServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// =============================================================================
// Help and version
// =============================================================================

func TestCLI_Help(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "--help")

	if exitCode != 0 {
		t.Errorf("expected exit code 0, got %d", exitCode)
	}

	for _, want := range []string{"itemstore", "validate", "fetch", "watch"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected help to contain %q", want)
		}
	}
}

func TestCLI_Version(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "version")

	if exitCode != 0 {
		t.Errorf("expected exit code 0, got %d", exitCode)
	}
	if !strings.Contains(stdout, "Version: dev") {
		t.Errorf("unexpected version output: %q", stdout)
	}
}

func TestCLI_UnknownLogFormat(t *testing.T) {
	_, stderr, exitCode := runCLI(t, "--log-format", "xml", "version")

	if exitCode != 3 {
		t.Errorf("expected exit code 3, got %d", exitCode)
	}
	if !strings.Contains(stderr, "unknown log format") {
		t.Errorf("expected log format error, got %q", stderr)
	}
}

// =============================================================================
// validate
// =============================================================================

func TestCLI_Validate(t *testing.T) {
	tests := []struct {
		name     string
		fixture  string
		wantCode int
		wantText string
	}{
		{"valid json", "valid-config.json", 0, "Configuration is valid"},
		{"valid yaml", "valid-config.yaml", 0, "format: yaml"},
		{"parse error", "invalid-json.json", 2, "Parse errors"},
		{"schema violation", "invalid-schema-missing-required.json", 1, "Validation errors"},
		{"bad enum", "invalid-schema-bad-enum.yaml", 1, "Validation errors"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, exitCode := runCLI(t, "validate", testFixturePath(tt.fixture))

			if exitCode != tt.wantCode {
				t.Errorf("expected exit code %d, got %d (stderr: %s)", tt.wantCode, exitCode, stderr)
			}
			if !strings.Contains(stdout+stderr, tt.wantText) {
				t.Errorf("expected output to contain %q\nstdout: %s\nstderr: %s", tt.wantText, stdout, stderr)
			}
		})
	}
}

func TestCLI_ValidateVerboseSummary(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "validate", "--verbose", testFixturePath("minimal.yaml"))

	if exitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", exitCode)
	}
	if !strings.Contains(stdout, "Store: objects") || !strings.Contains(stdout, "Mode: verbatim") {
		t.Errorf("expected config summary, got:\n%s", stdout)
	}
}

func TestCLI_ValidateMissingFile(t *testing.T) {
	_, stderr, exitCode := runCLI(t, "validate", "does-not-exist.yaml")

	if exitCode != 2 {
		t.Errorf("expected exit code 2, got %d", exitCode)
	}
	if stderr == "" {
		t.Error("expected error output")
	}
}

// =============================================================================
// fetch
// =============================================================================

func TestCLI_FetchSuccess(t *testing.T) {
	srv, hits := itemsServer(t, http.StatusOK, `[{"id":1},{"id":2}]`)
	cfgPath := writeStoreConfig(t, srv.URL, "")

	stdout, stderr, exitCode := runCLI(t, "fetch", cfgPath)

	if exitCode != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr: %s)", exitCode, stderr)
	}
	if !strings.Contains(stdout, "Items: 2") {
		t.Errorf("expected item count in output:\n%s", stdout)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("expected exactly one request, got %d", atomic.LoadInt32(hits))
	}
}

func TestCLI_FetchJSON(t *testing.T) {
	srv, _ := itemsServer(t, http.StatusOK, `{}`)
	cfgPath := writeStoreConfig(t, srv.URL+"/", "")

	stdout, stderr, exitCode := runCLI(t, "--quiet", "fetch", "--json", cfgPath)

	if exitCode != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr: %s)", exitCode, stderr)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if out["status"] != "success" || out["loading"] != false || out["error"] != "" {
		t.Errorf("unexpected state: %v", out)
	}
	if items, ok := out["items"].(map[string]any); !ok || len(items) != 0 {
		t.Errorf("expected empty object items, got %v", out["items"])
	}
}

func TestCLI_FetchServerError(t *testing.T) {
	srv, _ := itemsServer(t, http.StatusInternalServerError, `boom`)
	cfgPath := writeStoreConfig(t, srv.URL, "")

	_, stderr, exitCode := runCLI(t, "fetch", cfgPath)

	if exitCode != 4 {
		t.Errorf("expected exit code 4, got %d", exitCode)
	}
	if !strings.Contains(stderr, "Fetch failed") || !strings.Contains(stderr, "500") {
		t.Errorf("expected fetch failure with status, got:\n%s", stderr)
	}
}

func TestCLI_FetchEndpointFromEnv(t *testing.T) {
	srv, hits := itemsServer(t, http.StatusOK, `[]`)
	cfgPath := writeStoreConfig(t, "http://127.0.0.1:1", "  apiUrlEnv: CATALOGUE_TEST_API_URL\n")

	cmd := exec.Command(binaryPath, "--quiet", "fetch", cfgPath)
	cmd.Env = append(os.Environ(), "CATALOGUE_TEST_API_URL="+srv.URL)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("fetch failed: %v\n%s", err, out)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("expected the request on the env endpoint, got %d hits", atomic.LoadInt32(hits))
	}
}

// =============================================================================
// watch
// =============================================================================

func TestCLI_WatchMaxFetches(t *testing.T) {
	srv, hits := itemsServer(t, http.StatusOK, `[1]`)
	cfgPath := writeStoreConfig(t, srv.URL, "")

	stdout, stderr, exitCode := runCLI(t, "watch", "--interval", "20ms", "--max-fetches", "3", cfgPath)

	if exitCode != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr: %s)", exitCode, stderr)
	}
	if atomic.LoadInt32(hits) != 3 {
		t.Errorf("expected 3 requests, got %d", atomic.LoadInt32(hits))
	}
	if !strings.Contains(stdout, "#3 ✓ 1 item(s)") || !strings.Contains(stdout, "3 fetch(es) (max_fetches)") {
		t.Errorf("unexpected watch output:\n%s", stdout)
	}
}

func TestCLI_WatchUntilFromConfig(t *testing.T) {
	srv, _ := itemsServer(t, http.StatusOK, `[1,2]`)
	cfgPath := writeStoreConfig(t, srv.URL, "  watch:\n    intervalMs: 100\n    until: count == 2\n    maxFetches: 10\n  notify:\n    log: true\n")

	stdout, stderr, exitCode := runCLI(t, "watch", cfgPath)

	if exitCode != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr: %s)", exitCode, stderr)
	}
	if !strings.Contains(stdout, "1 fetch(es) (condition)") {
		t.Errorf("expected stop on condition, got:\n%s", stdout)
	}
	if !strings.Contains(stderr, "store state changed") {
		t.Errorf("expected log notifications on stderr, got:\n%s", stderr)
	}
}

func TestCLI_WatchInvalidCondition(t *testing.T) {
	srv, hits := itemsServer(t, http.StatusOK, `[]`)
	cfgPath := writeStoreConfig(t, srv.URL, "")

	_, stderr, exitCode := runCLI(t, "watch", "--until", "count >>", cfgPath)

	if exitCode != 1 {
		t.Errorf("expected exit code 1, got %d", exitCode)
	}
	if !strings.Contains(stderr, "invalid stop condition") {
		t.Errorf("expected condition error, got %q", stderr)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Error("no fetch should run with an invalid condition")
	}
}

func TestCLI_WatchLastFetchFailed(t *testing.T) {
	srv, _ := itemsServer(t, http.StatusServiceUnavailable, `down`)
	cfgPath := writeStoreConfig(t, srv.URL, "")

	stdout, _, exitCode := runCLI(t, "watch", "--interval", "10ms", "--until", `status == "error"`, cfgPath)

	if exitCode != 4 {
		t.Errorf("expected exit code 4, got %d", exitCode)
	}
	if !strings.Contains(stdout, "Last error:") {
		t.Errorf("expected last error in summary, got:\n%s", stdout)
	}
}
