// Package script defines how template [Script:...] blocks become callable
// functions.
package script

import (
	"context"
	"log/slog"

	"golang.org/x/text/language"

	"github.com/nadzzz/statlg/internal/template"
)

// Func runs a compiled script. It may modify subs in place and returns the
// name of the phrase to render, which is phrase unless the script redirects.
type Func func(ctx context.Context, subs map[string]any, phrase string, locale language.Tag, logger *slog.Logger) (string, error)

// Compiler turns the script blocks of one template into functions keyed by
// script name. Scripts that fail to compile are left out of the map and
// reported in the returned error.
type Compiler interface {
	Name() string
	Compile(templateName string, blocks []*template.ScriptBlock, logger *slog.Logger) (map[string]Func, error)
}

// None is a Compiler that ignores every script.
type None struct{}

func (None) Name() string { return "none" }

// Compile logs the skipped scripts and returns an empty map.
func (None) Compile(templateName string, blocks []*template.ScriptBlock, logger *slog.Logger) (map[string]Func, error) {
	if len(blocks) > 0 && logger != nil {
		names := make([]string, len(blocks))
		for i, b := range blocks {
			names[i] = b.Name
		}
		logger.Error("template contains scripts but no script compiler is enabled, scripts will be ignored",
			"template", templateName,
			"scripts", names,
		)
	}
	return map[string]Func{}, nil
}
