// Package dispatch turns render requests from the transports into engine
// renders and shapes the results.
//
// Every transport hands its decoded request to Dispatcher.Handle. Requests
// that cannot be understood fail with ErrInvalidRequest; requests that fail
// while rendering come back with the Error field set so the caller always
// receives a result for its request id.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"

	"github.com/nadzzz/statlg/internal/engine"
	"github.com/nadzzz/statlg/internal/lg"
	"github.com/nadzzz/statlg/internal/locale"
	"github.com/nadzzz/statlg/internal/message"
)

// ErrInvalidRequest marks requests rejected before rendering.
var ErrInvalidRequest = errors.New("invalid render request")

// Renderer is the part of the engine the dispatcher needs.
type Renderer interface {
	Render(ctx context.Context, name string, client lg.ClientContext, subs map[string]any, opts ...engine.QueryOption) (lg.Result, error)
	GetAllPatternNames() []string
}

// Options configures request handling.
type Options struct {
	// SanitizeSubstitutions strips markup other than SSML from string
	// substitutions that contain any.
	SanitizeSubstitutions bool
	// DefaultLocale is used when a request names none.
	DefaultLocale language.Tag
}

// Dispatcher routes render requests to the engine.
type Dispatcher struct {
	renderer Renderer
	opts     Options
	policy   *bluemonday.Policy
	logger   *slog.Logger
}

// New creates a Dispatcher.
func New(renderer Renderer, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{renderer: renderer, opts: opts, logger: logger}
	if opts.SanitizeSubstitutions {
		d.policy = ssmlPolicy()
	}
	return d
}

// ssmlPolicy allows the SSML elements a caller may legitimately pass through
// a slot and strips everything else.
func ssmlPolicy() *bluemonday.Policy {
	policy := bluemonday.StrictPolicy()
	policy.AllowElements("break", "emphasis", "p", "phoneme", "prosody", "s", "say-as", "sub", "voice", "lang", "mark")
	policy.AllowAttrs("time", "strength").OnElements("break")
	policy.AllowAttrs("level").OnElements("emphasis")
	policy.AllowAttrs("alphabet", "ph").OnElements("phoneme")
	policy.AllowAttrs("rate", "pitch", "volume").OnElements("prosody")
	policy.AllowAttrs("interpret-as", "format", "detail").OnElements("say-as")
	policy.AllowAttrs("alias").OnElements("sub")
	policy.AllowAttrs("name", "gender").OnElements("voice")
	policy.AllowAttrs("xml:lang").OnElements("lang")
	policy.AllowAttrs("name").OnElements("mark")
	return policy
}

// Patterns lists the phrase names the engine can render.
func (d *Dispatcher) Patterns() []string {
	return d.renderer.GetAllPatternNames()
}

// Handle renders a single request. This function is passed as the
// transport.Handler to each transport.
func (d *Dispatcher) Handle(ctx context.Context, req *message.RenderRequest) (*message.RenderResult, error) {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	logger := d.logger.With("request_id", req.ID, "pattern", req.Pattern)

	result := &message.RenderResult{RequestID: req.ID, Pattern: req.Pattern}

	if strings.TrimSpace(req.Pattern) == "" {
		return result, fmt.Errorf("%w: pattern is required", ErrInvalidRequest)
	}
	if !req.ResponseMode.Valid() {
		return result, fmt.Errorf("%w: unknown response_mode %q", ErrInvalidRequest, req.ResponseMode)
	}
	mode := req.ResponseMode
	if mode == "" {
		mode = message.ResponseModeTextSSML
	}

	loc := d.opts.DefaultLocale
	if req.Locale != "" {
		tag, err := locale.Parse(req.Locale)
		if err != nil {
			return result, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		loc = tag
	}
	result.Locale = loc.String()

	client := lg.ClientContext{
		Locale:   loc,
		ClientID: req.ClientID,
		UserID:   req.UserID,
	}
	opts := []engine.QueryOption{
		engine.WithLogger(logger),
		engine.WithVariants(req.Variants),
	}
	if req.PhraseNum != nil {
		opts = append(opts, engine.WithPhraseNum(*req.PhraseNum))
	}
	if req.Debug {
		opts = append(opts, engine.WithDebug(true))
	}

	logger.Debug("render started", "locale", result.Locale, "response_mode", mode)

	res, err := d.renderer.Render(ctx, req.Pattern, client, d.sanitize(req.Substitutions, logger), opts...)
	if err != nil {
		result.Error = fmt.Sprintf("render failed: %v", err)
		logger.Error("render failed", "error", err)
		return result, nil
	}

	if mode.WantsText() {
		result.Text = res.Text
		result.ShortText = res.ShortText
	}
	if mode.WantsSSML() {
		result.Spoken = res.Spoken
	}
	result.ExtraFields = res.ExtraFields

	logger.Info("render complete", "duration", time.Since(start))
	return result, nil
}

// sanitize returns a copy of subs with markup stripped from string values.
// Values without markup are passed through untouched.
func (d *Dispatcher) sanitize(subs map[string]any, logger *slog.Logger) map[string]any {
	if d.policy == nil || len(subs) == 0 {
		return subs
	}
	out := make(map[string]any, len(subs))
	for k, v := range subs {
		s, ok := v.(string)
		if !ok || !strings.Contains(s, "<") {
			out[k] = v
			continue
		}
		clean := d.policy.Sanitize(s)
		if clean != s {
			logger.Debug("sanitized substitution", "slot", k)
		}
		out[k] = clean
	}
	return out
}
