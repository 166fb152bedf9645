// Package main provides the CLI entry point for the item store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/canectors/itemstore/internal/cli"
	"github.com/canectors/itemstore/internal/config"
	"github.com/canectors/itemstore/internal/logger"
	"github.com/canectors/itemstore/internal/modules/input"
	"github.com/canectors/itemstore/internal/notify"
	"github.com/canectors/itemstore/internal/scheduler"
	"github.com/canectors/itemstore/pkg/itemstore"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitParseError      = 2
	ExitRuntimeError    = 3
	ExitFetchError      = 4
)

// stopTimeout bounds how long a watch waits for its in-flight fetch after a signal.
const stopTimeout = 30 * time.Second

var (
	// Global flags
	verbose   bool
	quiet     bool
	logFormat string
	logFile   string

	// Fetch command flags
	jsonOutput bool

	// Watch command flags
	until       string
	interval    time.Duration
	maxFetches  int
	reloadEvery bool

	// Build information (set via ldflags during build)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		exit(ExitRuntimeError)
	}
}

// exit flushes the log file before leaving.
func exit(code int) {
	logger.CloseLogFile()
	os.Exit(code)
}

var rootCmd = &cobra.Command{
	Use:   "itemstore",
	Short: "itemstore - Fetch and watch remote item collections",
	Long: `itemstore loads a store configuration (JSON/YAML), fetches the item
collection from the configured endpoint and reports the resulting
items, loading and error state.

Examples:
  # Validate a configuration file
  itemstore validate store.yaml

  # Fetch the items once
  itemstore fetch store.yaml

  # Poll every 2s until at least 10 items are present
  itemstore watch --interval 2s --until "count >= 10" store.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		} else if quiet {
			level = slog.LevelError
		}

		format, err := logger.ParseFormat(logFormat)
		if err != nil {
			return err
		}

		if logFile != "" {
			return logger.SetLogFile(logFile, level, format)
		}
		logger.SetLevelAndFormat(level, format)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <config-file>",
	Short: "Validate a store configuration file",
	Long: `Validate a store configuration file against the schema.

Supports both JSON and YAML formats. The format is auto-detected
based on file extension (.json, .yaml, .yml) or content.

Exit codes:
  0 - Configuration is valid
  1 - Validation errors (schema violations)
  2 - Parse errors (invalid JSON/YAML syntax)

Examples:
  itemstore validate store.json
  itemstore validate --verbose store.yaml`,
	Args: cobra.ExactArgs(1),
	Run:  runValidate,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <config-file>",
	Short: "Fetch the items once and print the store state",
	Long: `Fetch the item collection once and print the settled store state.

The endpoint is resolved when the fetch starts: from the environment
variable named by apiUrlEnv when it is set, else from apiUrl.

Exit codes:
  0 - Items fetched
  1 - Validation errors
  2 - Parse errors
  3 - Runtime errors
  4 - The fetch failed (the state carries an error)

Examples:
  itemstore fetch store.yaml
  itemstore fetch --json store.yaml`,
	Args: cobra.ExactArgs(1),
	Run:  runFetch,
}

var watchCmd = &cobra.Command{
	Use:   "watch <config-file>",
	Short: "Fetch the items repeatedly at a fixed interval",
	Long: `Fetch the item collection repeatedly, at most once per interval.

The watch stops on SIGINT/SIGTERM (after the in-flight fetch settles),
after --max-fetches fetches, or when the --until expression holds.
Expressions can use items, count, loading, error and status, e.g.
  count >= 10
  status == "error" && error contains "404"

State transitions are published to the sinks configured under notify.

Examples:
  itemstore watch store.yaml
  itemstore watch --interval 500ms --max-fetches 20 store.yaml
  itemstore watch --reload --until 'count > 0' store.yaml`,
	Args: cobra.ExactArgs(1),
	Run:  runWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version, commit hash, and build date information.",
	Run:   runVersion,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Console log format (json or human)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")

	fetchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the state as JSON")

	watchCmd.Flags().StringVar(&until, "until", "", "Stop when this expression over the state is true")
	watchCmd.Flags().DurationVar(&interval, "interval", 0, "Minimum time between fetches (default from config)")
	watchCmd.Flags().IntVar(&maxFetches, "max-fetches", 0, "Stop after this many fetches (default from config, 0 = unlimited)")
	watchCmd.Flags().BoolVar(&reloadEvery, "reload", false, "Re-read the endpoint from the config file before every fetch")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func runValidate(_ *cobra.Command, args []string) {
	configPath := args[0]

	if !quiet {
		fmt.Printf("Validating configuration: %s\n", configPath)
	}

	result := config.ParseConfig(configPath)

	if len(result.ParseErrors) > 0 {
		cli.PrintParseErrors(os.Stderr, result.ParseErrors, verbose)
		exit(ExitParseError)
	}

	if len(result.ValidationErrors) > 0 {
		cli.PrintValidationErrors(os.Stderr, result.ValidationErrors, verbose, quiet)
		exit(ExitValidationError)
	}

	if !quiet {
		fmt.Printf("✓ Configuration is valid (format: %s)\n", result.Format)

		if verbose {
			if cfg, err := config.ConvertToStoreConfig(result.Data); err == nil {
				cli.PrintConfigSummary(os.Stdout, cfg)
			}
		}
	}

	exit(ExitSuccess)
}

// loadConfig parses, validates and converts the config file, exiting on failure.
func loadConfig(configPath string) *config.StoreConfig {
	result := config.ParseConfig(configPath)

	if len(result.ParseErrors) > 0 {
		cli.PrintParseErrors(os.Stderr, result.ParseErrors, verbose)
		exit(ExitParseError)
	}

	if len(result.ValidationErrors) > 0 {
		cli.PrintValidationErrors(os.Stderr, result.ValidationErrors, verbose, quiet)
		exit(ExitValidationError)
	}

	cfg, err := config.ConvertToStoreConfig(result.Data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Failed to convert configuration: %v\n", err)
		exit(ExitRuntimeError)
	}
	return cfg
}

// newStore wires the HTTP fetcher and endpoint source for cfg.
func newStore(cfg *config.StoreConfig, source itemstore.EndpointSource) *itemstore.Store {
	fetcher := input.NewHTTPGet(input.HTTPGetOptions{
		Timeout:   cfg.GetTimeout(),
		UserAgent: cfg.UserAgent,
	})
	return itemstore.New(cfg.Name, source, fetcher)
}

func runFetch(_ *cobra.Command, args []string) {
	exit(fetchOnce(args[0]))
}

func fetchOnce(configPath string) int {
	cfg := loadConfig(configPath)
	store := newStore(cfg, cfg.EndpointSource())

	if verbose && !jsonOutput {
		cli.PrintConfigSummary(os.Stdout, cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	store.FetchItems(ctx)
	elapsed := time.Since(started)

	state := store.State()
	opts := cli.OutputOptions{Verbose: verbose, Quiet: quiet, JSON: jsonOutput}
	if err := cli.PrintState(os.Stdout, os.Stderr, cfg.Name, state, store.Status(), elapsed, opts); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		return ExitRuntimeError
	}

	if state.Error != "" {
		return ExitFetchError
	}
	return ExitSuccess
}

func runWatch(cmd *cobra.Command, args []string) {
	exit(watch(cmd, args[0]))
}

func watch(cmd *cobra.Command, configPath string) int {
	cfg := loadConfig(configPath)

	opts, code := watchOptions(cmd, cfg)
	if code != ExitSuccess {
		return code
	}

	var source itemstore.EndpointSource = cfg.EndpointSource()
	if reloadEvery {
		source = config.FileEndpoint{Path: configPath}
	}
	store := newStore(cfg, source)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, err := buildPublisher(sigCtx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		return ExitRuntimeError
	}
	if publisher != nil {
		detach := notify.Attach(context.Background(), store, publisher)
		defer func() {
			detach()
			if err := publisher.Close(); err != nil {
				logger.Warn("closing notifiers failed", slog.String("error", err.Error()))
			}
		}()
	}

	if !quiet {
		fetches := 0
		opts.OnFetch = func(state itemstore.State) {
			fetches++
			cli.PrintWatchTick(os.Stdout, fetches, state)
		}
		fmt.Printf("Watching store %q every %v\n", cfg.Name, opts.Interval)
	}

	watcher, err := scheduler.New(store, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		return ExitRuntimeError
	}

	go func() {
		<-sigCtx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := watcher.Stop(stopCtx); err != nil {
			logger.Warn("watch did not stop in time", slog.String("error", err.Error()))
		}
	}()

	result, err := watcher.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		return ExitRuntimeError
	}

	if !quiet {
		cli.PrintWatchSummary(os.Stdout, result.Fetches, string(result.Reason), result.Last)
	}
	if result.Last.Error != "" {
		return ExitFetchError
	}
	return ExitSuccess
}

// watchOptions merges the watch section of cfg with the command flags.
func watchOptions(cmd *cobra.Command, cfg *config.StoreConfig) (scheduler.Options, int) {
	opts := scheduler.Options{
		Interval:   cfg.Watch.GetInterval(),
		MaxFetches: cfg.Watch.MaxFetches,
	}
	if cmd.Flags().Changed("interval") {
		opts.Interval = interval
	}
	if cmd.Flags().Changed("max-fetches") {
		opts.MaxFetches = maxFetches
	}

	expression := cfg.Watch.Until
	if cmd.Flags().Changed("until") {
		expression = until
	}
	if expression != "" {
		cond, err := scheduler.CompileCondition(expression)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
			return opts, ExitValidationError
		}
		opts.Until = cond
	}
	return opts, ExitSuccess
}

// buildPublisher returns the configured notification sinks, or nil when none are.
func buildPublisher(ctx context.Context, cfg *config.StoreConfig) (notify.Publisher, error) {
	var sinks notify.Multi

	if cfg.Notify.Log {
		sinks = append(sinks, notify.NewLogPublisher(logger.WithStore(cfg.Name)))
	}

	if r := cfg.Notify.Redis; r != nil {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rdb, err := notify.DialRedis(dialCtx, r.Addr, r.Password, r.DB)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, notify.NewRedisPublisher(rdb, notify.WithChannel(r.Channel)))
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	return sinks, nil
}

func runVersion(_ *cobra.Command, _ []string) {
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Commit: %s\n", commit)
	fmt.Printf("Build Date: %s\n", buildDate)
}
