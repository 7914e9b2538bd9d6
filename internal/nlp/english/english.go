// Package english provides the default English language tools: a word
// breaker and the feature extractor used to train and query phrase models.
package english

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/nadzzz/statlg/internal/nlp"
)

// WordBreaker splits text into runs of letters, digits and combining marks.
// Everything else (whitespace, punctuation, symbols, markup) is separator
// text. Tokens made only of digits carry the attribute type=number.
type WordBreaker struct{}

// BreakWords implements nlp.Tokenizer.
func (WordBreaker) BreakWords(text string) []nlp.Token {
	var tokens []nlp.Token
	start := -1
	for i, r := range text {
		if isTokenRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, newToken(text, start, i))
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, newToken(text, start, len(text)))
	}
	return tokens
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func newToken(text string, start, end int) nlp.Token {
	tok := nlp.Token{Text: text[start:end], Start: start, End: end}
	if IsNumber(tok.Text) {
		tok.Attributes = map[string]string{"type": "number"}
	}
	return tok
}

// IsNumber reports whether s is a non-empty run of decimal digits.
func IsNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FeatureExtractor derives decision features from slot values:
//
//   - a bias feature
//   - "<slot>=set" or "<slot>=empty" for every slot of the phrase
//   - shape features of the slots nearest to the decision on either side:
//     token count, whether it holds digits, and for a trailing number its
//     plurality and ordinal suffix, otherwise its trailing word
type FeatureExtractor struct {
	breaker nlp.Tokenizer
}

// NewFeatureExtractor creates an extractor using the English word breaker.
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{breaker: WordBreaker{}}
}

// ExtractTagFeatures implements nlp.FeatureExtractor.
func (f *FeatureExtractor) ExtractTagFeatures(tags map[string]string, groupToTag map[int]string, group int, features []string) []string {
	features = append(features, "bias")

	names := make([]string, 0, len(groupToTag))
	for _, name := range groupToTag {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.TrimSpace(tags[name]) == "" {
			features = append(features, name+"=empty")
		} else {
			features = append(features, name+"=set")
		}
	}

	prev, next := -1, -1
	for g := range groupToTag {
		if g < group && g > prev {
			prev = g
		}
		if g > group && (next < 0 || g < next) {
			next = g
		}
	}
	for _, g := range []int{prev, next} {
		if g < 0 {
			continue
		}
		name := groupToTag[g]
		features = f.valueFeatures(name, tags[name], features)
	}
	return features
}

func (f *FeatureExtractor) valueFeatures(name, value string, features []string) []string {
	tokens := f.breaker.BreakWords(value)
	if len(tokens) == 0 {
		return features
	}

	switch len(tokens) {
	case 1:
		features = append(features, name+":tok=1")
	case 2:
		features = append(features, name+":tok=2")
	default:
		features = append(features, name+":tok=3+")
	}
	if strings.ContainsAny(value, "0123456789") {
		features = append(features, name+":hasnum")
	}

	last := tokens[len(tokens)-1].Text
	if !IsNumber(last) {
		return append(features, name+":word", name+":w="+strings.ToLower(last))
	}

	features = append(features, name+":num")
	if strings.TrimLeft(last, "0") == "1" {
		features = append(features, name+":one")
	} else {
		features = append(features, name+":many")
	}
	if len(last) >= 2 {
		features = append(features, name+":d2="+last[len(last)-2:])
	}
	return append(features, name+":ord="+OrdinalSuffix(last))
}

// OrdinalSuffix returns the English ordinal suffix (st, nd, rd, th) for a
// string of digits.
func OrdinalSuffix(digits string) string {
	n := digits
	if len(n) > 2 {
		n = n[len(n)-2:]
	}
	v, err := strconv.Atoi(n)
	if err != nil {
		return "th"
	}
	if v%100 >= 11 && v%100 <= 13 {
		return "th"
	}
	switch v % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

// Tools returns the English tool pair.
func Tools() nlp.Tools {
	return nlp.Tools{Tokenizer: WordBreaker{}, Features: NewFeatureExtractor()}
}
