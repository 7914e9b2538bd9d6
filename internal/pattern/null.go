package pattern

import (
	"context"
	"log/slog"

	"golang.org/x/text/language"

	"github.com/nadzzz/statlg/internal/lg"
)

// Null returns a pattern for a phrase that does not exist. It accepts
// substitutions and renders an empty result.
func Null(name string, locale language.Tag) lg.Pattern {
	return &null{name: name, locale: locale}
}

type null struct {
	name   string
	locale language.Tag
}

func (p *null) Name() string                                 { return p.name }
func (p *null) Locale() language.Tag                         { return p.locale }
func (p *null) Sub(string, any) lg.Pattern                   { return p }
func (p *null) ApplySubstitutions(map[string]any) lg.Pattern { return p }
func (p *null) Render(context.Context) (lg.Result, error)    { return lg.Result{}, nil }

// CustomCode wraps a phrase implemented in code.
type CustomCode struct {
	Name   string
	Locale language.Tag
	Fn     lg.CustomCodeFunc
}

// Clone creates the query-time pattern.
func (c *CustomCode) Clone(deps Deps, q Query) lg.Pattern {
	logger := q.Logger
	if logger == nil {
		logger = slog.Default()
	}
	locale := c.Locale
	if locale == language.Und {
		locale = q.Client.Locale
	}
	return &custom{
		code:   c,
		deps:   deps,
		client: q.Client,
		locale: locale,
		logger: logger.With("pattern", c.Name),
		subs:   make(map[string]any),
	}
}

type custom struct {
	code   *CustomCode
	deps   Deps
	client lg.ClientContext
	locale language.Tag
	logger *slog.Logger
	subs   map[string]any
}

func (p *custom) Name() string         { return p.code.Name }
func (p *custom) Locale() language.Tag { return p.locale }

func (p *custom) Sub(name string, value any) lg.Pattern {
	p.subs[name] = value
	return p
}

func (p *custom) ApplySubstitutions(subs map[string]any) lg.Pattern {
	for k, v := range subs {
		p.subs[k] = v
	}
	return p
}

func (p *custom) Render(ctx context.Context) (lg.Result, error) {
	ctx, err := enter(ctx, p.code.Name, p.deps.MaxDepth())
	if err != nil {
		return lg.Result{}, err
	}
	return p.code.Fn(ctx, p.subs, p.logger, p.client)
}
