// Statlg is a statistical natural language generation daemon. It loads LG
// templates, trains or loads their phrase models and renders phrases over
// HTTP and gRPC.
//
// Usage:
//
//	statlg [flags]
//	statlg --config /path/to/statlg.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nadzzz/statlg/internal/app"
	"github.com/nadzzz/statlg/internal/config"
	"github.com/nadzzz/statlg/internal/dispatch"
	"github.com/nadzzz/statlg/internal/health"
	"github.com/nadzzz/statlg/internal/locale"
	"github.com/nadzzz/statlg/internal/transport"
	grpctransport "github.com/nadzzz/statlg/internal/transport/grpc"
	httptransport "github.com/nadzzz/statlg/internal/transport/http"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/statlg.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("statlg %s\n", version)
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging.
	config.SetupLogging(cfg.Logging)
	slog.Info("statlg starting", "version", version)

	defaultLocale, err := locale.Parse(cfg.Render.DefaultLocale)
	if err != nil {
		slog.Error("invalid render.default_locale", "error", err)
		os.Exit(1)
	}

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Start the health server first so probes see not_ready while templates load.
	var stats health.StatsFunc
	healthServer := health.New(cfg.Server.HealthPort, func() any {
		if stats == nil {
			return nil
		}
		return stats()
	})
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	// Load templates and train or load the phrase models.
	eng, err := app.NewEngine(ctx, cfg, app.FileSystem(cfg.Engine), slog.Default())
	if err != nil {
		slog.Error("failed to initialize LG engine", "error", err)
		os.Exit(1)
	}
	stats = func() any { return eng.Stats() }

	// Initialize enabled transports.
	var transports []transport.Transport

	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC.Port))
	}
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP.Port, eng.GetAllPatternNames, cfg.Render.ClientToken))
	}

	if len(transports) == 0 {
		slog.Error("no transports enabled, enable at least one in config")
		os.Exit(1)
	}

	// Create the dispatcher.
	dispatcher := dispatch.New(eng, dispatch.Options{
		SanitizeSubstitutions: cfg.Render.SanitizeSubstitutions,
		DefaultLocale:         defaultLocale,
	}, slog.Default().With("component", "dispatch"))

	// Start all transports.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, dispatcher.Handle); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	// Mark as ready once the engine is loaded and all transports are started.
	healthServer.SetReady(true)
	slog.Info("statlg ready",
		"transports", len(transports),
		"patterns", len(eng.GetAllPatternNames()),
		"health_port", cfg.Server.HealthPort)

	// Block until shutdown signal.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")

	// Close all transports gracefully.
	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("statlg stopped")
}
