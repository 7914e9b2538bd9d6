package phrase

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/spf13/afero"
	"golang.org/x/text/language"

	"github.com/nadzzz/statlg/internal/nlp"
)

// Cache stores trained models as files on an afero file system under
// <dir>/<locale>/<domain> <model>.lg.
type Cache struct {
	fs     afero.Fs
	dir    string
	domain string
	logger *slog.Logger
}

// NewCache creates a cache rooted at dir.
func NewCache(fsys afero.Fs, dir, domain string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{fs: fsys, dir: dir, domain: domain, logger: logger}
}

// Path returns the cache file of a model.
func (c *Cache) Path(model string, loc language.Tag) string {
	return path.Join(c.dir, loc.String(), c.domain+" "+model+".lg")
}

// Load reads a cached model. A missing file yields an error matching
// fs.ErrNotExist.
func (c *Cache) Load(model string, loc language.Tag, features nlp.FeatureExtractor, opts DecodeOptions) (*Phrase, error) {
	f, err := c.fs.Open(c.Path(model, loc))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, features, opts)
}

// Save writes p to its cache file, creating directories as needed.
func (c *Cache) Save(p *Phrase) error {
	file := c.Path(p.name, p.locale)
	if err := c.fs.MkdirAll(path.Dir(file), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	f, err := c.fs.Create(file)
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	if err := p.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadOrTrain returns the cached model for lines when the cache is current
// and otherwise trains a new one and writes it back. The boolean reports
// whether the cache was used. A nil cache always trains.
func (c *Cache) LoadOrTrain(model string, loc language.Tag, lines []string, tools nlp.Tools, opts Options) (*Phrase, bool) {
	if c == nil {
		return Train(model, loc, lines, tools, opts), false
	}

	cached, err := c.Load(model, loc, tools.Features, DecodeOptions{Hash: HashLines(lines), Debug: opts.Debug})
	switch {
	case err == nil:
		c.logger.Debug("loaded model from cache", "model", model, "locale", loc.String())
		return cached, true
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, ErrCacheHash):
		c.logger.Debug("model cache miss", "model", model, "locale", loc.String(), "reason", err)
	case errors.Is(err, ErrCacheVersion):
		c.logger.Warn("ignoring model cache from another version", "model", model, "locale", loc.String(), "error", err)
	default:
		c.logger.Error("loading cached model failed", "model", model, "locale", loc.String(), "error", err)
	}

	p := Train(model, loc, lines, tools, opts)
	if err := c.Save(p); err != nil {
		c.logger.Error("writing model cache failed", "model", model, "locale", loc.String(), "error", err)
	}
	return p, false
}
