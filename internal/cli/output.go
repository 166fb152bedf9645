package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/canectors/itemstore/internal/config"
	"github.com/canectors/itemstore/pkg/itemstore"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// OutputOptions configures CLI output behavior.
type OutputOptions struct {
	Verbose bool
	Quiet   bool
	JSON    bool
}

// stateOutput is the --json form of a fetch.
type stateOutput struct {
	Store    string           `json:"store"`
	Status   itemstore.Status `json:"status"`
	Items    any              `json:"items"`
	Loading  bool             `json:"loading"`
	Error    string           `json:"error"`
	Duration string           `json:"duration,omitempty"`
}

// PrintState displays a settled store state.
// Failures go to errW, everything else to w.
func PrintState(w, errW io.Writer, name string, state itemstore.State, status itemstore.Status, elapsed time.Duration, opts OutputOptions) error {
	if opts.JSON {
		out := stateOutput{
			Store:   name,
			Status:  status,
			Items:   state.Items,
			Loading: state.Loading,
			Error:   state.Error,
		}
		if opts.Verbose {
			out.Duration = elapsed.String()
		}
		data, err := jsonAPI.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding state: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if state.Error != "" {
		fmt.Fprintf(errW, "✗ Fetch failed for store %q\n", name)
		fmt.Fprintf(errW, "  Error: %s\n", state.Error)
		return nil
	}

	if opts.Quiet {
		return nil
	}

	fmt.Fprintf(w, "✓ Fetched items for store %q\n", name)
	if n, ok := itemstore.ItemCount(state.Items); ok {
		fmt.Fprintf(w, "  Items: %d\n", n)
	} else {
		fmt.Fprintf(w, "  Items: %s (not an array)\n", jsonKind(state.Items))
	}
	if opts.Verbose {
		fmt.Fprintf(w, "  Duration: %v\n", elapsed)
	}
	return printItemsPreview(w, state.Items, opts.Verbose)
}

// printItemsPreview displays the items as indented JSON, truncated unless verbose.
func printItemsPreview(w io.Writer, items any, verbose bool) error {
	const maxLinesCompact = 10

	data, err := jsonAPI.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding items: %w", err)
	}
	body := string(data)

	if verbose || countLines(body) <= maxLinesCompact {
		fmt.Fprintln(w, "  Body:")
		printIndentedBody(w, body, "    ", -1)
		return nil
	}

	fmt.Fprintln(w, "  Body (truncated, use --verbose for full):")
	printIndentedBody(w, body, "    ", maxLinesCompact)
	return nil
}

// printIndentedBody prints up to maxLines lines (all when negative) with indentation.
func printIndentedBody(w io.Writer, body, indent string, maxLines int) {
	lines := splitLines(body)
	for i, line := range lines {
		if maxLines >= 0 && i == maxLines {
			fmt.Fprintf(w, "%s... (%d more lines)\n", indent, len(lines)-maxLines)
			return
		}
		fmt.Fprintf(w, "%s%s\n", indent, line)
	}
}

func countLines(s string) int {
	return strings.Count(s, "\n") + 1
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// PrintConfigSummary prints the store name and resolved endpoint.
func PrintConfigSummary(w io.Writer, cfg *config.StoreConfig) {
	if cfg == nil {
		return
	}
	fmt.Fprintf(w, "  Store: %s\n", cfg.Name)
	if endpoint, err := cfg.EndpointSource().Endpoint(); err == nil {
		fmt.Fprintf(w, "  Endpoint: %s\n", endpoint)
	}
	fmt.Fprintf(w, "  Mode: %s\n", cfg.EndpointMode)
}

// PrintWatchSummary prints the outcome of a watch.
func PrintWatchSummary(w io.Writer, fetches int, reason string, last itemstore.State) {
	fmt.Fprintf(w, "✓ Watch finished after %d fetch(es) (%s)\n", fetches, reason)
	if last.Error != "" {
		fmt.Fprintf(w, "  Last error: %s\n", last.Error)
	} else if n, ok := itemstore.ItemCount(last.Items); ok {
		fmt.Fprintf(w, "  Last item count: %d\n", n)
	}
}

// PrintWatchTick prints one line per fetch during a watch.
func PrintWatchTick(w io.Writer, n int, state itemstore.State) {
	if state.Error != "" {
		fmt.Fprintf(w, "  #%d ✗ %s\n", n, state.Error)
		return
	}
	if count, ok := itemstore.ItemCount(state.Items); ok {
		fmt.Fprintf(w, "  #%d ✓ %d item(s)\n", n, count)
		return
	}
	fmt.Fprintf(w, "  #%d ✓ %s\n", n, jsonKind(state.Items))
}

// jsonKind names the JSON type of a decoded value.
func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64, jsoniter.Number:
		return "number"
	default:
		return "value"
	}
}
