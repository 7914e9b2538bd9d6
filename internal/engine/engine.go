// Package engine loads statistical LG templates, trains or loads their phrase
// models and resolves phrase names to renderable patterns.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/text/language"

	"github.com/nadzzz/statlg/internal/lg"
	"github.com/nadzzz/statlg/internal/locale"
	"github.com/nadzzz/statlg/internal/maxent"
	"github.com/nadzzz/statlg/internal/nlp"
	"github.com/nadzzz/statlg/internal/pattern"
	"github.com/nadzzz/statlg/internal/phrase"
	"github.com/nadzzz/statlg/internal/script"
	"github.com/nadzzz/statlg/internal/variant"
)

// Config holds the engine settings.
type Config struct {
	// Domain prefixes cache file names so several engines can share a cache
	// directory.
	Domain string
	// Templates are glob patterns resolved on the engine file system.
	Templates      []string
	CacheEnabled   bool
	CacheDir       string
	MaxRenderDepth int
	// Seed seeds the variant picker used when a query does not fix a
	// phrase number.
	Seed       uint64
	Classifier maxent.Options
	Debug      bool
}

// Stats summarizes what Initialize loaded.
type Stats struct {
	Templates         int `json:"templates"`
	Patterns          int `json:"patterns"`
	Models            int `json:"models"`
	ModelsTrained     int `json:"models_trained"`
	ModelsFromCache   int `json:"models_from_cache"`
	Scripts           int `json:"scripts"`
	TranslationTables int `json:"translation_tables"`
	CustomCode        int `json:"custom_code"`
}

// Engine owns the registries. They are filled by Initialize and read-only
// afterwards, except for custom code which may be registered at any time.
type Engine struct {
	cfg      Config
	fs       afero.Fs
	tools    *nlp.Collection
	compiler script.Compiler
	cache    *phrase.Cache
	logger   *slog.Logger

	reg         *registry
	inline      int
	stats       Stats
	initialized bool
}

// New creates an engine. A nil compiler disables scripts.
func New(cfg Config, fsys afero.Fs, tools *nlp.Collection, compiler script.Compiler, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if compiler == nil {
		compiler = script.None{}
	}
	if cfg.MaxRenderDepth <= 0 {
		cfg.MaxRenderDepth = pattern.DefaultMaxDepth
	}
	e := &Engine{
		cfg:      cfg,
		fs:       fsys,
		tools:    tools,
		compiler: compiler,
		logger:   logger,
		reg: &registry{
			patterns: variant.NewRegistry[*pattern.Template](),
			models:   make(map[lg.LocalizedKey]*phrase.Phrase),
			scripts:  make(map[lg.LocalizedKey]script.Func),
			tables:   make(map[string]map[string]string),
			custom:   make(map[lg.LocalizedKey]*pattern.CustomCode),
			rand:     rand.New(rand.NewPCG(cfg.Seed, 0)),
			maxDepth: cfg.MaxRenderDepth,
			logger:   logger,
		},
	}
	if cfg.CacheEnabled {
		e.cache = phrase.NewCache(fsys, cfg.CacheDir, cfg.Domain, logger)
	}
	return e
}

// QueryOption customizes a single GetPattern call.
type QueryOption func(*pattern.Query)

// WithVariants adds variant constraints such as formality. The locale is
// taken from the client context.
func WithVariants(v map[string]string) QueryOption {
	return func(q *pattern.Query) { q.Variants = v }
}

// WithLogger sets the query logger.
func WithLogger(l *slog.Logger) QueryOption {
	return func(q *pattern.Query) { q.Logger = l }
}

// WithDebug enables verbose render logging.
func WithDebug(debug bool) QueryOption {
	return func(q *pattern.Query) { q.Debug = debug }
}

// WithPhraseNum picks the variant deterministically.
func WithPhraseNum(n int) QueryOption {
	return func(q *pattern.Query) { q.PhraseNum = &n }
}

// GetPattern returns a fresh pattern for name. It never returns nil: unknown
// names yield a pattern that renders an empty result.
func (e *Engine) GetPattern(name string, client lg.ClientContext, opts ...QueryOption) lg.Pattern {
	q := pattern.Query{Client: client, Logger: e.logger, Debug: e.cfg.Debug}
	for _, opt := range opts {
		opt(&q)
	}
	return e.reg.Pattern(name, q)
}

// Render looks up a pattern, applies subs and renders it.
func (e *Engine) Render(ctx context.Context, name string, client lg.ClientContext, subs map[string]any, opts ...QueryOption) (lg.Result, error) {
	res, err := e.GetPattern(name, client, opts...).ApplySubstitutions(subs).Render(ctx)
	if err != nil {
		return lg.Result{}, fmt.Errorf("rendering %q: %w", name, err)
	}
	return res, nil
}

// GetScript returns the compiled script registered for name in loc.
func (e *Engine) GetScript(name string, loc language.Tag) (script.Func, bool) {
	return e.reg.Script(lg.LocalizedKey{Name: name, Locale: loc})
}

// RegisterCustomCode serves name from fn when no template phrase matches.
// locale.None registers a handler for every locale.
func (e *Engine) RegisterCustomCode(name string, fn lg.CustomCodeFunc, loc language.Tag) {
	key := lg.LocalizedKey{Name: strings.ToLower(name), Locale: loc}
	e.reg.customMu.Lock()
	defer e.reg.customMu.Unlock()
	if _, exists := e.reg.custom[key]; exists {
		e.logger.Warn("replacing custom code phrase", "pattern", name, "locale", loc.String())
	}
	e.reg.custom[key] = &pattern.CustomCode{Name: name, Locale: loc, Fn: fn}
}

// GetAllPatternNames lists the template phrase names, lower-cased and sorted.
func (e *Engine) GetAllPatternNames() []string {
	return e.reg.patterns.Names()
}

// Models returns every trained model once, sorted by name and locale.
func (e *Engine) Models() []*phrase.Phrase {
	var out []*phrase.Phrase
	for key, p := range e.reg.models {
		if key.Locale == p.Locale() && key.Name == p.Name() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name() != out[j].Name() {
			return out[i].Name() < out[j].Name()
		}
		return out[i].Locale().String() < out[j].Locale().String()
	})
	return out
}

// Stats reports what has been loaded so far.
func (e *Engine) Stats() Stats {
	s := e.stats
	e.reg.customMu.RLock()
	s.CustomCode = len(e.reg.custom)
	e.reg.customMu.RUnlock()
	return s
}

// TranslationTable returns a table loaded from any template.
func (e *Engine) TranslationTable(name string) (map[string]string, bool) {
	return e.reg.TranslationTable(name)
}

// registry is the shared handle every query-time pattern renders against.
type registry struct {
	patterns *variant.Registry[*pattern.Template]
	models   map[lg.LocalizedKey]*phrase.Phrase
	scripts  map[lg.LocalizedKey]script.Func
	tables   map[string]map[string]string

	customMu sync.RWMutex
	custom   map[lg.LocalizedKey]*pattern.CustomCode

	randMu sync.Mutex
	rand   *rand.Rand

	maxDepth int
	logger   *slog.Logger
}

func (r *registry) Model(key lg.LocalizedKey) (*phrase.Phrase, bool) {
	p, ok := r.models[key]
	return p, ok
}

func (r *registry) Script(key lg.LocalizedKey) (script.Func, bool) {
	fn, ok := r.scripts[key]
	return fn, ok
}

func (r *registry) TranslationTable(name string) (map[string]string, bool) {
	t, ok := r.tables[name]
	return t, ok
}

func (r *registry) MaxDepth() int { return r.maxDepth }

func (r *registry) phraseNum(fixed *int) int {
	if fixed != nil {
		return *fixed
	}
	r.randMu.Lock()
	defer r.randMu.Unlock()
	return r.rand.Int()
}

// Pattern resolves name: template variants first, then custom code for the
// exact locale, then universal custom code, then a null pattern.
func (r *registry) Pattern(name string, q pattern.Query) lg.Pattern {
	if q.Logger == nil {
		q.Logger = r.logger
	}

	want := make(map[string]string, len(q.Variants)+1)
	for k, v := range q.Variants {
		want[k] = v
	}
	if !locale.IsNone(q.Client.Locale) {
		want[variant.LocaleKey] = q.Client.Locale.String()
	}

	if candidates := r.patterns.Select(name, want); len(candidates) > 0 {
		idx := r.phraseNum(q.PhraseNum) % len(candidates)
		if idx < 0 {
			idx = -idx
		}
		if q.Debug {
			q.Logger.Debug("using statistical LG pattern", "pattern", name, "variants", len(candidates), "choice", idx)
		}
		return candidates[idx].Clone(r, q)
	}

	lower := strings.ToLower(name)
	r.customMu.RLock()
	code, ok := r.custom[lg.LocalizedKey{Name: lower, Locale: q.Client.Locale}]
	if !ok {
		code, ok = r.custom[lg.LocalizedKey{Name: lower, Locale: locale.None}]
	}
	r.customMu.RUnlock()
	if ok {
		return code.Clone(r, q)
	}

	q.Logger.Warn("LG pattern not found", "pattern", name, "locale", q.Client.Locale.String())
	return pattern.Null(name, q.Client.Locale)
}
