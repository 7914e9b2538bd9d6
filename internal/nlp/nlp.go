// Package nlp defines the locale-specific language tools consumed by phrase
// training: a word breaker and a feature extractor.
package nlp

import (
	"sync"

	"golang.org/x/text/language"
)

// Token is one word produced by a Tokenizer. Start and End are byte offsets
// into the input.
type Token struct {
	Text       string
	Start      int
	End        int
	Attributes map[string]string
}

// Tokenizer breaks a string into words. Text between tokens is separator
// text (whitespace and punctuation).
type Tokenizer interface {
	BreakWords(text string) []Token
}

// FeatureExtractor produces classifier features for a decision group from the
// slot values of the sentence being generated. tags maps slot name to value
// (an empty value means the slot is absent), groupToTag maps tag group index
// to slot name. Features are appended to features and the result returned.
type FeatureExtractor interface {
	ExtractTagFeatures(tags map[string]string, groupToTag map[int]string, group int, features []string) []string
}

// Tools is the pair of language tools for one locale.
type Tools struct {
	Tokenizer Tokenizer
	Features  FeatureExtractor
}

// Complete reports whether both tools are present.
func (t Tools) Complete() bool {
	return t.Tokenizer != nil && t.Features != nil
}

// Collection holds the tools registered per locale.
type Collection struct {
	mu    sync.RWMutex
	tools map[language.Tag]Tools
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{tools: make(map[language.Tag]Tools)}
}

// Add registers tools for a locale, replacing any previous registration.
func (c *Collection) Add(tag language.Tag, tools Tools) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[tag] = tools
}

// Lookup returns the complete tools registered for exactly tag.
func (c *Collection) Lookup(tag language.Tag) (Tools, bool) {
	if c == nil {
		return Tools{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[tag]
	if !ok || !t.Complete() {
		return Tools{}, false
	}
	return t, true
}

// Locales lists the locales with registered tools.
func (c *Collection) Locales() []language.Tag {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]language.Tag, 0, len(c.tools))
	for tag := range c.tools {
		out = append(out, tag)
	}
	return out
}
