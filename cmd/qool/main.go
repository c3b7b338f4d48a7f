package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/qool/internal/observability"
	"github.com/user/qool/pkg/qool"
)

var (
	logLevel     string
	dataDir      string
	storeBackend string
	noSync       bool
	otelEnabled  bool
	otelEndpoint string
	outputJSON   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "qool",
	Short: "qool — embedded persistent FIFO work queue",
	Long:  "Inspect and drive a qool queue stored in a local pebble, badger, bolt or sqlite database.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "data", "Directory for queue data files")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", "pebble", "Storage backend: pebble, badger, bolt, or sqlite")
	rootCmd.PersistentFlags().BoolVar(&noSync, "no-sync", false, "Skip fsync on commit (faster, loses recent writes on power failure)")
	rootCmd.PersistentFlags().BoolVar(&otelEnabled, "otel-enabled", false, "Enable OpenTelemetry tracing")
	rootCmd.PersistentFlags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP HTTP endpoint (host:port) for traces; if empty uses stderr exporter")
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// withQueue opens the queue (and tracing, when enabled), runs fn and closes
// everything again.
func withQueue(opts qool.Options, fn func(ctx context.Context, q *qool.Queue) error) error {
	shutdown, err := observability.InitTracer(otelEnabled, "qool", otelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()

	if opts.Dir == "" && !opts.InMemory {
		opts.Dir = dataDir
	}
	if opts.Backend == "" {
		opts.Backend = storeBackend
	}
	opts.NoSync = opts.NoSync || noSync
	opts.Logger = slog.Default()

	q, err := qool.Open(opts)
	if err != nil {
		return err
	}
	slog.Debug("queue opened", "dir", opts.Dir, "store", opts.Backend, "in_memory", opts.InMemory)

	runErr := fn(context.Background(), q)
	if err := q.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
