// Package lattice turns tagged training sentences into an ordered sequence of
// groups, each holding the alternative surface forms seen at that position.
//
// Training sentences mark slot values with bracket tags:
//
//	On the [day]2[/day]nd, it will be [condition]cloudy[/condition].
//
// A tag group is a position filled by a slot value at render time. Every
// other group is either fixed text or a decision between alternatives.
package lattice

import (
	"maps"
	"regexp"
	"strings"

	"github.com/nadzzz/statlg/internal/nlp"
)

// Token is one word of a surface form together with the separator text
// around it. A token with empty Text and no Tag is a shim that only carries
// whitespace.
type Token struct {
	Text       string            `yaml:"text,omitempty"`
	Tag        string            `yaml:"tag,omitempty"`
	Pre        string            `yaml:"pre,omitempty"`
	Post       string            `yaml:"post,omitempty"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

func (t Token) String() string {
	return t.Pre + t.Text + t.Post
}

// Equal reports whether two tokens are identical including whitespace and
// attributes.
func (t Token) Equal(o Token) bool {
	return t.Text == o.Text && t.Tag == o.Tag && t.Pre == o.Pre && t.Post == o.Post &&
		maps.Equal(t.Attributes, o.Attributes)
}

// TaggedWord is a word of a training sentence and the slot it belongs to.
// An explicitly empty slot ("[x][/x]") yields a word with empty Text.
type TaggedWord struct {
	Text       string
	Tag        string
	Attributes map[string]string
}

// TaggedSentence is a word-broken training sentence. NonTokens holds the
// separator text around the words: NonTokens[i] precedes Words[i] and the
// final entry trails the sentence, so len(NonTokens) == len(Words)+1.
type TaggedSentence struct {
	Source    string
	Words     []TaggedWord
	NonTokens []string
}

var tagRe = regexp.MustCompile(`\[(/?)\s*([a-zA-Z0-9_\-\.]+)\s*\]`)

type segment struct {
	text string
	tag  string
}

// splitTags cuts a training line into runs of text with the slot they belong
// to. Opening a tag implicitly closes the current one.
func splitTags(line string) []segment {
	var segs []segment
	cur := ""
	last := 0
	for _, m := range tagRe.FindAllStringSubmatchIndex(line, -1) {
		text := line[last:m[0]]
		closing := m[3] > m[2]
		name := line[m[4]:m[5]]
		if text != "" || cur != "" {
			segs = append(segs, segment{text: text, tag: cur})
		}
		if closing {
			cur = ""
		} else {
			cur = name
		}
		last = m[1]
	}
	if rest := line[last:]; rest != "" || cur != "" {
		segs = append(segs, segment{text: rest, tag: cur})
	}
	return segs
}

// ParseTags strips the slot tags from a training line and breaks it into
// tagged words.
func ParseTags(line string, tokenizer nlp.Tokenizer) TaggedSentence {
	s := TaggedSentence{Source: line}
	var pending strings.Builder
	flush := func() {
		s.NonTokens = append(s.NonTokens, pending.String())
		pending.Reset()
	}

	for _, seg := range splitTags(line) {
		tokens := tokenizer.BreakWords(seg.text)
		if len(tokens) == 0 {
			if seg.tag != "" {
				flush()
				s.Words = append(s.Words, TaggedWord{Tag: seg.tag})
			}
			pending.WriteString(seg.text)
			continue
		}
		cursor := 0
		for _, tok := range tokens {
			pending.WriteString(seg.text[cursor:tok.Start])
			flush()
			s.Words = append(s.Words, TaggedWord{Text: tok.Text, Tag: seg.tag, Attributes: tok.Attributes})
			cursor = tok.End
		}
		pending.WriteString(seg.text[cursor:])
	}
	flush()
	return s
}

// TagValues returns the text of every slot in the sentence, including the
// separators between its words. Explicitly empty slots map to "".
func (s TaggedSentence) TagValues() map[string]string {
	values := make(map[string]string)
	prevTag := ""
	for i, w := range s.Words {
		if w.Tag == "" {
			prevTag = ""
			continue
		}
		v, seen := values[w.Tag]
		switch {
		case !seen:
			v = w.Text
		case prevTag == w.Tag:
			v += s.NonTokens[i] + w.Text
		default:
			v += " " + w.Text
		}
		values[w.Tag] = v
		prevTag = w.Tag
	}
	return values
}

func (s TaggedSentence) nonToken(i int) string {
	if i < 0 || i >= len(s.NonTokens) {
		return ""
	}
	return s.NonTokens[i]
}

// BuildChain converts a sentence into tokens with their whitespace attached.
//
// Whitespace before a slot stays outside of it: an untagged word about to
// enter a slot takes the following separator as Post. At the start of the
// sentence and between two adjacent slots a shim token holds the separator,
// and a sentence ending in a slot gets a trailing shim. This keeps
// substituted values from overwriting the surrounding whitespace.
func BuildChain(s TaggedSentence) []Token {
	if len(s.Words) == 0 {
		if pre := s.nonToken(0); pre != "" {
			return []Token{{Pre: pre}}
		}
		return nil
	}

	var out []Token
	cur := ""
	nt := 0
	last := len(s.Words) - 1
	for i, w := range s.Words {
		if cur != w.Tag && (i == 0 || (cur != "" && w.Tag != "")) {
			out = append(out, Token{Pre: s.nonToken(nt)})
			nt++
		}
		cur = w.Tag

		tok := Token{Text: w.Text, Tag: w.Tag, Attributes: w.Attributes}
		if nt <= i {
			tok.Pre = s.nonToken(nt)
			nt++
		}
		if cur == "" {
			enteringTag := i == last || s.Words[i+1].Tag != ""
			if enteringTag {
				tok.Post = s.nonToken(nt)
				nt++
			}
		}
		out = append(out, tok)

		if i == last && cur != "" {
			out = append(out, Token{Pre: s.nonToken(nt)})
			nt++
		}
	}
	return out
}
