// Package locale wraps BCP-47 language tags for template headers, registry keys
// and the model cache header.
package locale

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// None is the "no language" locale. Custom code registered under it serves
// every locale.
var None = language.Und

// Parse parses a template or request locale such as "en-US" or "en-gb".
func Parse(s string) (language.Tag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return None, nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return None, fmt.Errorf("parsing locale %q: %w", s, err)
	}
	return tag, nil
}

// IsNone reports whether tag carries no language.
func IsNone(tag language.Tag) bool {
	return tag == language.Und
}

// String is the canonical registry form of a tag, e.g. "en-US".
func String(tag language.Tag) string {
	return tag.String()
}

// Alpha3 renders a tag with ISO 639-3 language and ISO 3166-1 alpha-3 region
// subtags, e.g. "eng-USA". Only an explicit region is written.
func Alpha3(tag language.Tag) string {
	base, _ := tag.Base()
	out := base.ISO3()
	if region, conf := tag.Region(); conf == language.Exact {
		out += "-" + region.ISO3()
	}
	return out
}

// ParseAlpha3 is the inverse of Alpha3. Two-letter forms are accepted too.
func ParseAlpha3(s string) (language.Tag, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	base, err := language.ParseBase(parts[0])
	if err != nil {
		return None, fmt.Errorf("parsing language %q: %w", s, err)
	}
	if len(parts) == 1 {
		return language.Compose(base)
	}
	region, err := language.ParseRegion(parts[1])
	if err != nil {
		return None, fmt.Errorf("parsing region %q: %w", s, err)
	}
	return language.Compose(base, region)
}
