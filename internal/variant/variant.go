// Package variant registers phrase variants under a name plus a set of
// key/value constraints (locale, formality, device type...) and selects the
// variants that best match a caller's constraints.
package variant

import (
	"sort"
	"strings"
	"sync"
)

// LocaleKey is the constraint key the engine uses for the phrase locale.
const LocaleKey = "locale"

// Config is the registry key of a variant. Names are case-insensitive.
type Config struct {
	Name        string
	Constraints map[string]string
}

// Key is the canonical form of the config: the lower-cased name followed by
// the constraints sorted by key.
func (c Config) Key() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(c.Name))
	for _, k := range sortedKeys(c.Constraints) {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(c.Constraints[k])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// matches reports whether every constraint of c is satisfied by want.
func (c Config) matches(want map[string]string) bool {
	for k, v := range c.Constraints {
		if got, ok := want[k]; !ok || got != v {
			return false
		}
	}
	return true
}

type entry[T any] struct {
	cfg    Config
	key    string
	values []T
}

// Registry maps variant configs to values. Writes are expected during
// initialization; reads are safe from many goroutines.
type Registry[T any] struct {
	mu     sync.RWMutex
	byName map[string][]*entry[T]
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{byName: make(map[string][]*entry[T])}
}

// Add registers v under cfg. Values added under an identical config are kept
// in insertion order.
func (r *Registry[T]) Add(cfg Config, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(cfg.Name)
	key := cfg.Key()
	for _, e := range r.byName[name] {
		if e.key == key {
			e.values = append(e.values, v)
			return
		}
	}
	constraints := make(map[string]string, len(cfg.Constraints))
	for k, val := range cfg.Constraints {
		constraints[k] = val
	}
	r.byName[name] = append(r.byName[name], &entry[T]{
		cfg:    Config{Name: name, Constraints: constraints},
		key:    key,
		values: []T{v},
	})
}

// Select returns the values whose constraints are all satisfied by want.
// Among those, only the configs with the most constraints are kept; ties
// contribute their values in canonical key order.
func (r *Registry[T]) Select(name string, want map[string]string) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best []*entry[T]
	bestSize := -1
	for _, e := range r.byName[strings.ToLower(name)] {
		if !e.cfg.matches(want) {
			continue
		}
		switch n := len(e.cfg.Constraints); {
		case n > bestSize:
			best = []*entry[T]{e}
			bestSize = n
		case n == bestSize:
			best = append(best, e)
		}
	}
	sort.Slice(best, func(i, j int) bool { return best[i].key < best[j].key })

	var out []T
	for _, e := range best {
		out = append(out, e.values...)
	}
	return out
}

// Names returns every registered name, lower-cased and sorted.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered values.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, entries := range r.byName {
		for _, e := range entries {
			n += len(e.values)
		}
	}
	return n
}
