package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/language"

	"github.com/nadzzz/statlg/internal/lg"
	"github.com/nadzzz/statlg/internal/pattern"
	"github.com/nadzzz/statlg/internal/phrase"
	"github.com/nadzzz/statlg/internal/template"
	"github.com/nadzzz/statlg/internal/variant"
)

// Initialize loads every template matched by the configured globs. Templates
// that fail to parse or have no usable locale are logged and skipped; only
// cancellation aborts loading.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.initialized {
		return errors.New("engine already initialized")
	}
	e.initialized = true

	files, err := e.templateFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		e.logger.Warn("no LG template files found", "patterns", e.cfg.Templates)
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("initializing engine: %w", err)
		}
		tpl, err := template.ParseFile(e.fs, file)
		if err != nil {
			e.logger.Error("skipping LG template", "file", file, "error", err)
			continue
		}
		e.LoadTemplate(tpl)
	}

	e.logger.Info("LG engine initialized",
		"templates", e.stats.Templates,
		"patterns", e.stats.Patterns,
		"models", e.stats.Models,
		"models_from_cache", e.stats.ModelsFromCache,
		"scripts", e.stats.Scripts,
	)
	return nil
}

func (e *Engine) templateFiles() ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, glob := range e.cfg.Templates {
		matches, err := afero.Glob(e.fs, glob)
		if err != nil {
			return nil, fmt.Errorf("resolving template glob %q: %w", glob, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// localeMap resolves every declared locale to the locale whose NLP tools
// serve it: itself when it has tools, otherwise the first declared locale
// that does.
type localeMap struct {
	perceived []language.Tag
	actual    map[language.Tag]language.Tag
	// actuals lists the distinct tool-backed locales in declaration order.
	actuals []language.Tag
}

func (e *Engine) resolveLocales(declared []language.Tag) (localeMap, bool) {
	var fallback language.Tag
	found := false
	for _, loc := range declared {
		if _, ok := e.tools.Lookup(loc); ok {
			fallback, found = loc, true
			break
		}
	}
	if !found {
		return localeMap{}, false
	}

	m := localeMap{perceived: declared, actual: make(map[language.Tag]language.Tag, len(declared))}
	for _, loc := range declared {
		actual := fallback
		if _, ok := e.tools.Lookup(loc); ok {
			actual = loc
		}
		m.actual[loc] = actual
	}
	seen := make(map[language.Tag]bool)
	for _, loc := range declared {
		if a := m.actual[loc]; !seen[a] {
			seen[a] = true
			m.actuals = append(m.actuals, a)
		}
	}
	return m, true
}

// perceivedFor lists the declared locales served by actual.
func (m localeMap) perceivedFor(actual language.Tag) []language.Tag {
	var out []language.Tag
	for _, loc := range m.perceived {
		if m.actual[loc] == actual {
			out = append(out, loc)
		}
	}
	return out
}

// LoadTemplate registers the blocks of a parsed template. Models are trained
// once per tool-backed locale and aliased under every declared locale that
// falls back to it.
func (e *Engine) LoadTemplate(tpl *template.Template) {
	locales, ok := e.resolveLocales(tpl.Locales)
	if !ok {
		e.logger.Error("NLP tools are not available for any locale of the template, statistical LG will not work",
			"file", tpl.File,
			"locales", tagStrings(tpl.Locales),
		)
		return
	}
	for _, loc := range tpl.Locales {
		if a := locales.actual[loc]; a != loc {
			e.logger.Info("locale falls back to another locale's models", "file", tpl.File, "locale", loc.String(), "fallback", a.String())
		}
	}
	e.stats.Templates++

	var scripts []*template.ScriptBlock
	for _, block := range tpl.Blocks {
		switch b := block.(type) {
		case *template.ModelBlock:
			for _, actual := range locales.actuals {
				p := e.trainModel(b.Name, actual, b.TrainingLines, true)
				for _, perceived := range locales.perceivedFor(actual) {
					e.reg.models[lg.LocalizedKey{Name: b.Name, Locale: perceived}] = p
				}
			}
		case *template.TranslationTableBlock:
			if _, dup := e.reg.tables[b.Name]; dup {
				e.logger.Warn("translation table redefined", "file", tpl.File, "table", b.Name)
			} else {
				e.stats.TranslationTables++
			}
			e.reg.tables[b.Name] = b.Mapping
		case *template.ScriptBlock:
			scripts = append(scripts, b)
		case *template.PhraseBlock:
			for _, actual := range locales.actuals {
				pt, constraints := e.buildPattern(b, actual)
				e.stats.Patterns++
				for _, perceived := range locales.perceivedFor(actual) {
					c := make(map[string]string, len(constraints)+1)
					for k, v := range constraints {
						c[k] = v
					}
					c[variant.LocaleKey] = perceived.String()
					e.reg.patterns.Add(variant.Config{Name: b.Name, Constraints: c}, pt)
				}
			}
		}
	}

	if len(scripts) > 0 {
		e.compileScripts(tpl, scripts)
	}
}

func (e *Engine) compileScripts(tpl *template.Template, blocks []*template.ScriptBlock) {
	fns, err := e.compiler.Compile(tpl.File, blocks, e.logger.With("component", "script_compiler", "compiler", e.compiler.Name()))
	if err != nil {
		e.logger.Error("script compilation failed", "file", tpl.File, "error", err)
	}
	for name, fn := range fns {
		for _, loc := range tpl.Locales {
			e.reg.scripts[lg.LocalizedKey{Name: name, Locale: loc}] = fn
		}
		e.stats.Scripts++
	}
}

// trainModel loads a model from the cache or trains it. Inline models are
// never cached.
func (e *Engine) trainModel(name string, loc language.Tag, lines []string, cacheable bool) *phrase.Phrase {
	tools, _ := e.tools.Lookup(loc)
	opts := phrase.Options{
		Classifier: e.cfg.Classifier,
		Logger:     e.logger.With("model", name, "locale", loc.String()),
		Debug:      e.cfg.Debug,
	}
	e.stats.Models++

	if cacheable && e.cache != nil {
		p, cached := e.cache.LoadOrTrain(name, loc, lines, tools, opts)
		if cached {
			e.stats.ModelsFromCache++
		} else {
			e.stats.ModelsTrained++
		}
		return p
	}
	e.stats.ModelsTrained++
	return phrase.Train(name, loc, lines, tools, opts)
}

func (e *Engine) inlineModel(phraseName, line string, loc language.Tag) string {
	e.inline++
	name := fmt.Sprintf("InlineModel-%s-%d", phraseName, e.inline)
	e.reg.models[lg.LocalizedKey{Name: name, Locale: loc}] = e.trainModel(name, loc, []string{line}, false)
	return name
}

// buildPattern creates the shared pattern of a phrase block for one
// tool-backed locale and returns it with its variant constraints.
func (e *Engine) buildPattern(b *template.PhraseBlock, loc language.Tag) (*pattern.Template, map[string]string) {
	pt := &pattern.Template{Name: b.Name, Locale: loc, ExtraFields: make(map[string]string)}
	constraints := make(map[string]string)
	slotIndex := make(map[string]int)

	for _, prop := range b.Properties {
		switch p := prop.(type) {
		case *template.KeyValueProperty:
			value := strings.TrimSpace(p.Value)
			switch strings.ToLower(p.Key) {
			case "textmodel":
				pt.TextModel = value
			case "shorttextmodel":
				pt.ShortTextModel = value
			case "spokenmodel":
				pt.SpokenModel = value
			case "text":
				pt.TextModel = e.inlineModel(b.Name, strings.TrimLeft(p.Value, " \t"), loc)
			case "shorttext":
				pt.ShortTextModel = e.inlineModel(b.Name, strings.TrimLeft(p.Value, " \t"), loc)
			case "spoken":
				pt.SpokenModel = e.inlineModel(b.Name, strings.TrimLeft(p.Value, " \t"), loc)
			case "script":
				for _, name := range strings.Split(value, ",") {
					if name = strings.TrimSpace(name); name != "" {
						pt.Scripts = append(pt.Scripts, name)
					}
				}
			default:
				pt.ExtraFields[p.Key] = p.Value
			}
		case *template.TransformerProperty:
			sc := pattern.SlotChain{Slot: p.Slot, Chain: p.Chain}
			if i, ok := slotIndex[p.Slot]; ok {
				pt.Transformers[i] = sc
			} else {
				slotIndex[p.Slot] = len(pt.Transformers)
				pt.Transformers = append(pt.Transformers, sc)
			}
		case *template.VariantConstraintsProperty:
			for k, v := range p.Constraints {
				constraints[k] = v
			}
		}
	}
	delete(constraints, variant.LocaleKey)
	if len(pt.ExtraFields) == 0 {
		pt.ExtraFields = nil
	}
	return pt, constraints
}

func tagStrings(tags []language.Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.String()
	}
	return out
}
