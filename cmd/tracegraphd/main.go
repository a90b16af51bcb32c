// Command tracegraphd is the main entry point for the tracegraph server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tracegraph/tracegraph/internal/app"
	"github.com/tracegraph/tracegraph/internal/config"
	"github.com/tracegraph/tracegraph/internal/observe"
	"github.com/tracegraph/tracegraph/pkg/provider/embeddings"
	"github.com/tracegraph/tracegraph/pkg/provider/embeddings/ollama"
	"github.com/tracegraph/tracegraph/pkg/provider/embeddings/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tracegraphd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tracegraphd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("tracegraphd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "tracegraph",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown error", "err", err)
		}
	}()

	// ── Embeddings provider registry ───────────────────────────────────────────
	registry := config.NewRegistry()
	registerBuiltinEmbeddingProviders(registry)

	printStartupSummary(cfg)

	// ── Application wiring ──────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, app.WithRegistry(registry))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinEmbeddingProviders names the embedding backends that ship with
// tracegraph, for startup logging.
var builtinEmbeddingProviders = []string{"openai", "ollama"}

// registerBuiltinEmbeddingProviders registers the factory functions for
// every embeddings provider tracegraphd ships with.
func registerBuiltinEmbeddingProviders(reg *config.Registry) {
	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollama.New(entry.BaseURL, entry.Model)
	})

	for _, name := range builtinEmbeddingProviders {
		slog.Debug("registered embeddings provider", "name", name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║            tracegraph — startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════════════╣")
	printField("Listen addr", cfg.Server.ListenAddr)
	printField("Graph store", cfg.GraphStore.Endpoint)
	printField("Vector store", fmt.Sprintf("%s:%d", cfg.VectorStore.Host, cfg.VectorStore.Port))
	printField("Embeddings primary", cfg.Embeddings.Primary.Name)
	if cfg.Embeddings.Fallback != nil {
		printField("Embeddings fallback", cfg.Embeddings.Fallback.Name)
	}
	printField("Schema", cfg.Schema.Path)
	fmt.Println("╚═══════════════════════════════════════════════╝")
}

func printField(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 31 {
		value = value[:28] + "…"
	}
	fmt.Printf("║  %-19s: %-27s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
