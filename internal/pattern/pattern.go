// Package pattern implements query-time phrases. A Template holds everything
// a phrase declares and is shared by every query; Clone attaches the
// per-query state (substitutions, client, logger) and yields an lg.Pattern
// that renders once.
package pattern

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/text/language"

	"github.com/nadzzz/statlg/internal/lg"
	"github.com/nadzzz/statlg/internal/phrase"
	"github.com/nadzzz/statlg/internal/script"
	"github.com/nadzzz/statlg/internal/transform"
)

// ErrRecursionLimitExceeded is returned when script redirects or subphrases
// nest deeper than the configured limit, usually because two phrases refer
// to each other.
var ErrRecursionLimitExceeded = errors.New("render recursion limit exceeded")

// DefaultMaxDepth is used when Deps reports no limit.
const DefaultMaxDepth = 16

// Deps is the read-only view of the engine registries a pattern renders
// against.
type Deps interface {
	Model(key lg.LocalizedKey) (*phrase.Phrase, bool)
	Script(key lg.LocalizedKey) (script.Func, bool)
	TranslationTable(name string) (map[string]string, bool)
	// Pattern resolves a phrase by name for redirects and subphrases. It
	// never returns nil.
	Pattern(name string, q Query) lg.Pattern
	MaxDepth() int
}

// Query is the per-query state carried by a clone.
type Query struct {
	Client   lg.ClientContext
	Variants map[string]string
	Logger   *slog.Logger
	Debug    bool
	// PhraseNum, when set, fixes the variant chosen for this query and for
	// every phrase it renders.
	PhraseNum *int
}

// SlotChain is the transformer chain declared for one slot.
type SlotChain struct {
	Slot  string
	Chain transform.Chain
}

// Template is the shared, immutable part of a phrase.
type Template struct {
	Name   string
	Locale language.Tag

	// Model names. Empty means the output is not produced.
	TextModel      string
	ShortTextModel string
	SpokenModel    string

	Transformers []SlotChain
	Scripts      []string
	ExtraFields  map[string]string
}

func (t *Template) modelKey(name string) lg.LocalizedKey {
	return lg.LocalizedKey{Name: name, Locale: t.Locale}
}

// Clone creates the query-time pattern.
func (t *Template) Clone(deps Deps, q Query) lg.Pattern {
	logger := q.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &instance{
		tpl:    t,
		deps:   deps,
		query:  q,
		logger: logger.With("pattern", t.Name),
		subs:   make(map[string]any),
	}
}

type depthKey struct{}

// Depth returns how many patterns are rendering on the context's call path.
func Depth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

func enter(ctx context.Context, name string, limit int) (context.Context, error) {
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	d := Depth(ctx) + 1
	if d > limit {
		return ctx, fmt.Errorf("rendering %q at depth %d: %w", name, d, ErrRecursionLimitExceeded)
	}
	return context.WithValue(ctx, depthKey{}, d), nil
}
