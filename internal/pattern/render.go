package pattern

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/language"

	"github.com/nadzzz/statlg/internal/lg"
	"github.com/nadzzz/statlg/internal/transform"
)

const nullModelPrefix = "NULL_MODEL_"

type instance struct {
	tpl    *Template
	deps   Deps
	query  Query
	logger *slog.Logger
	subs   map[string]any
}

func (p *instance) Name() string         { return p.tpl.Name }
func (p *instance) Locale() language.Tag { return p.tpl.Locale }

func (p *instance) Sub(name string, value any) lg.Pattern {
	p.subs[name] = value
	return p
}

func (p *instance) ApplySubstitutions(subs map[string]any) lg.Pattern {
	for k, v := range subs {
		p.subs[k] = v
	}
	return p
}

func (p *instance) debugSubs(msg string) {
	if p.query.Debug {
		p.logger.Debug(msg, "substitutions", p.subs)
	}
}

// Render runs scripts, then slot transformers, then the models, and finally
// merges the declared extra fields.
func (p *instance) Render(ctx context.Context) (lg.Result, error) {
	ctx, err := enter(ctx, p.tpl.Name, p.deps.MaxDepth())
	if err != nil {
		return lg.Result{}, err
	}
	p.debugSubs("input substitutions")

	if next, ok := p.runScripts(ctx); ok {
		if p.query.Debug {
			p.logger.Debug("script diverted phrase", "to", next)
		}
		return p.deps.Pattern(next, p.query).ApplySubstitutions(p.subs).Render(ctx)
	}

	extra := make(map[string]string)
	slots, err := p.transformSlots(ctx, extra)
	if err != nil {
		return lg.Result{}, err
	}

	var res lg.Result
	if p.tpl.TextModel != "" {
		if res.Text, err = p.renderModel(p.tpl.TextModel, slots, false); err != nil {
			return lg.Result{}, err
		}
	}
	if p.tpl.ShortTextModel != "" {
		if res.ShortText, err = p.renderModel(p.tpl.ShortTextModel, slots, false); err != nil {
			return lg.Result{}, err
		}
	}
	switch {
	case p.tpl.SpokenModel != "":
		res.Spoken, err = p.renderModel(p.tpl.SpokenModel, slots, true)
	case p.tpl.TextModel != "":
		if _, ok := p.deps.Model(p.tpl.modelKey(p.tpl.TextModel)); ok {
			res.Spoken, err = p.renderModel(p.tpl.TextModel, slots, true)
		}
	}
	if err != nil {
		return lg.Result{}, err
	}

	for k, v := range p.tpl.ExtraFields {
		extra[k] = v
	}
	if len(extra) > 0 {
		res.ExtraFields = extra
	}
	return res, nil
}

// runScripts runs the declared scripts in order. It reports the phrase to
// divert to when a script changes the phrase name. A failing script stops
// the loop without diverting.
func (p *instance) runScripts(ctx context.Context) (string, bool) {
	for _, name := range p.tpl.Scripts {
		fn, ok := p.deps.Script(lg.LocalizedKey{Name: name, Locale: p.tpl.Locale})
		if !ok {
			p.logger.Warn("script not found", "script", name, "locale", p.tpl.Locale.String())
			continue
		}
		next, err := fn(ctx, p.subs, p.tpl.Name, p.tpl.Locale, p.logger)
		if err != nil {
			p.logger.Error("script failed", "script", name, "error", err)
			break
		}
		p.debugSubs("substitutions after script " + name)
		if next != "" && !strings.EqualFold(next, p.tpl.Name) {
			return next, true
		}
	}
	return "", false
}

// transformSlots applies the slot transformers. Chains without a subphrase
// run first so that subphrases see the transformed sibling values.
func (p *instance) transformSlots(ctx context.Context, extra map[string]string) (map[string]string, error) {
	values := make(map[string]any, len(p.subs))
	for k, v := range p.subs {
		values[k] = v
	}
	env := transform.Env{Locale: p.tpl.Locale, Tables: p.deps}

	for _, sc := range p.tpl.Transformers {
		if sc.Chain.HasSubphrase() {
			continue
		}
		values[sc.Slot] = p.applyChain(sc, values[sc.Slot], env)
	}

	for _, sc := range p.tpl.Transformers {
		if !sc.Chain.HasSubphrase() {
			continue
		}
		value := values[sc.Slot]
		for _, t := range sc.Chain {
			if t.Kind != transform.Subphrase {
				value = p.apply(sc.Slot, t, value, env)
				continue
			}
			sub := p.deps.Pattern(t.Arg, p.query).ApplySubstitutions(values)
			res, err := sub.Render(ctx)
			if err != nil {
				return nil, fmt.Errorf("rendering subphrase %q for slot %q: %w", t.Arg, sc.Slot, err)
			}
			if p.query.Debug {
				p.logger.Debug("subphrase rendered", "subphrase", t.Arg, "slot", sc.Slot, "from", value, "to", res.Text)
			}
			value = res.Text
			for k, v := range res.ExtraFields {
				extra[k] = v
			}
		}
		values[sc.Slot] = value
	}

	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = transform.Stringify(v)
	}
	return out, nil
}

func (p *instance) applyChain(sc SlotChain, value any, env transform.Env) any {
	for _, t := range sc.Chain {
		value = p.apply(sc.Slot, t, value, env)
	}
	return value
}

func (p *instance) apply(slot string, t transform.Transformer, value any, env transform.Env) any {
	if value == nil {
		value = ""
	}
	out, err := t.Apply(value, env)
	if err != nil {
		p.logger.Debug("transformer left value unchanged", "slot", slot, "transformer", t.String(), "error", err)
		return value
	}
	if p.query.Debug {
		p.logger.Debug("transformer applied", "slot", slot, "transformer", t.String(), "from", value, "to", out)
	}
	return out
}

func (p *instance) renderModel(name string, slots map[string]string, ssml bool) (string, error) {
	key := p.tpl.modelKey(name)
	m, ok := p.deps.Model(key)
	if !ok {
		p.logger.Warn("model not found", "model", key.String())
		return nullModelPrefix + key.String(), nil
	}
	text, err := m.Render(slots, ssml, p.logger)
	if err != nil {
		return "", fmt.Errorf("rendering model %s: %w", key, err)
	}
	return text, nil
}
