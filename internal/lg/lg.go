// Package lg holds the types shared by the render pipeline and its callers.
package lg

import (
	"context"
	"log/slog"

	"golang.org/x/text/language"
)

// LocalizedKey identifies a model, script or custom code handler in one
// locale.
type LocalizedKey struct {
	Name   string
	Locale language.Tag
}

func (k LocalizedKey) String() string {
	return k.Name + ":" + k.Locale.String()
}

// ClientContext describes the client a phrase is rendered for.
type ClientContext struct {
	Locale   language.Tag
	ClientID string
	UserID   string
	// Data carries free-form client attributes, available to custom code.
	Data map[string]string
}

// Result is the output of a render.
type Result struct {
	Text      string `json:"text"`
	ShortText string `json:"short_text,omitempty"`
	// Spoken is SSML.
	Spoken      string            `json:"spoken,omitempty"`
	ExtraFields map[string]string `json:"extra_fields,omitempty"`
}

// Pattern is a query-time phrase: a private copy of a shared phrase template
// that collects substitutions and renders once.
type Pattern interface {
	Name() string
	Locale() language.Tag
	// Sub sets one substitution and returns the pattern for chaining.
	Sub(name string, value any) Pattern
	// ApplySubstitutions copies every entry of subs into the pattern.
	ApplySubstitutions(subs map[string]any) Pattern
	Render(ctx context.Context) (Result, error)
}

// CustomCodeFunc renders a phrase in code rather than from a template.
type CustomCodeFunc func(ctx context.Context, subs map[string]any, logger *slog.Logger, client ClientContext) (Result, error)
