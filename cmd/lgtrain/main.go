// Lgtrain trains the phrase models of every configured LG template ahead of
// time so the daemon starts from a warm cache. It can also print the learned
// lattices, or the lattice stored in a single cache file, as YAML.
//
// Usage:
//
//	lgtrain [--config statlg.yaml] [--dump]
//	lgtrain --inspect "cache/en-US/default Greeting.lg"
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/nadzzz/statlg/internal/app"
	"github.com/nadzzz/statlg/internal/config"
	"github.com/nadzzz/statlg/internal/nlp/english"
	"github.com/nadzzz/statlg/internal/phrase"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/statlg.yaml)")
	dump := flag.Bool("dump", false, "print every trained lattice as YAML")
	inspectFile := flag.String("inspect", "", "print the lattice stored in a cache file as YAML and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("lgtrain %s\n", version)
		os.Exit(0)
	}

	if *inspectFile != "" {
		if err := inspect(afero.NewOsFs(), *inspectFile, os.Stdout); err != nil {
			slog.Error("inspect failed", "file", *inspectFile, "error", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	// Logs go to stderr so a dump on stdout stays parseable.
	slog.SetDefault(slog.New(config.NewHandler(cfg.Logging, os.Stderr)))

	if !cfg.Engine.Cache.Enabled {
		slog.Warn("engine.cache.enabled is false, trained models will not be kept")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, err := app.NewEngine(ctx, cfg, app.FileSystem(cfg.Engine), slog.Default())
	if err != nil {
		slog.Error("training failed", "error", err)
		os.Exit(1)
	}

	stats := eng.Stats()
	slog.Info("training complete",
		"templates", stats.Templates,
		"models", stats.Models,
		"trained", stats.ModelsTrained,
		"from_cache", stats.ModelsFromCache)

	if *dump {
		if err := dumpModels(os.Stdout, eng.Models()); err != nil {
			slog.Error("dump failed", "error", err)
			os.Exit(1)
		}
	}
}

// dumpModels writes one YAML document per model.
func dumpModels(w io.Writer, models []*phrase.Phrase) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, m := range models {
		if err := enc.Encode(m.Dump()); err != nil {
			return fmt.Errorf("encoding %s: %w", m.Name(), err)
		}
	}
	return enc.Close()
}

// inspect decodes a cache file without training data and dumps it.
func inspect(fsys afero.Fs, file string, w io.Writer) error {
	f, err := fsys.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	p, err := phrase.Decode(f, english.NewFeatureExtractor(), phrase.DecodeOptions{Force: true})
	if err != nil {
		return err
	}
	return dumpModels(w, []*phrase.Phrase{p})
}
