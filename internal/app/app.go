// Package app assembles an engine from the daemon configuration. It is shared
// by the statlg daemon and the lgtrain tool.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/nadzzz/statlg/internal/config"
	"github.com/nadzzz/statlg/internal/engine"
	"github.com/nadzzz/statlg/internal/locale"
	"github.com/nadzzz/statlg/internal/maxent"
	"github.com/nadzzz/statlg/internal/nlp"
	"github.com/nadzzz/statlg/internal/nlp/english"
	"github.com/nadzzz/statlg/internal/script"
	"github.com/nadzzz/statlg/internal/script/celscript"
)

// FileSystem returns the file system templates and the cache live on. A
// configured root confines both to that directory.
func FileSystem(cfg config.EngineConfig) afero.Fs {
	fsys := afero.NewOsFs()
	if cfg.Root != "" {
		return afero.NewBasePathFs(fsys, cfg.Root)
	}
	return fsys
}

// Tools registers the built-in English tools for every configured locale.
func Tools(cfg config.NLPConfig) (*nlp.Collection, error) {
	tools := nlp.NewCollection()
	for _, s := range cfg.Locales {
		tag, err := locale.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("nlp.locales: %w", err)
		}
		if locale.IsNone(tag) {
			continue
		}
		tools.Add(tag, english.Tools())
	}
	return tools, nil
}

// Compiler returns the configured script compiler.
func Compiler(name string) (script.Compiler, error) {
	switch name {
	case "cel":
		c, err := celscript.New()
		if err != nil {
			return nil, fmt.Errorf("creating cel script compiler: %w", err)
		}
		return c, nil
	case "none":
		return script.None{}, nil
	default:
		return nil, fmt.Errorf("unknown script compiler %q", name)
	}
}

// NewEngine builds the engine described by cfg on fsys and loads its
// templates.
func NewEngine(ctx context.Context, cfg *config.Config, fsys afero.Fs, logger *slog.Logger) (*engine.Engine, error) {
	tools, err := Tools(cfg.NLP)
	if err != nil {
		return nil, err
	}
	compiler, err := Compiler(cfg.Engine.ScriptCompiler)
	if err != nil {
		return nil, err
	}

	e := engine.New(engine.Config{
		Domain:         cfg.Engine.Domain,
		Templates:      cfg.Engine.Templates,
		CacheEnabled:   cfg.Engine.Cache.Enabled,
		CacheDir:       cfg.Engine.Cache.Dir,
		MaxRenderDepth: cfg.Engine.MaxRenderDepth,
		Seed:           cfg.Engine.Seed,
		Classifier: maxent.Options{
			Iterations:   cfg.Classifier.Iterations,
			LearningRate: cfg.Classifier.LearningRate,
			L2:           cfg.Classifier.L2,
		},
		Debug: cfg.Engine.Debug,
	}, fsys, tools, compiler, logger.With("component", "engine"))

	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	return e, nil
}
