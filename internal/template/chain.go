package template

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/nadzzz/statlg/internal/transform"
)

// ParseChain parses a comma separated transformer chain such as
//
//	NumberFormat("D4"), TrimLeft(" "), Uppercase, Subphrase(Conditions)
func ParseChain(s string) (transform.Chain, error) {
	sc := &chainScanner{src: []rune(s)}
	var chain transform.Chain
	for {
		sc.skipSpace()
		t, err := sc.transformer()
		if err != nil {
			return nil, err
		}
		chain = append(chain, t)
		sc.skipSpace()
		if sc.done() {
			return chain, nil
		}
		if !sc.accept(',') {
			return nil, sc.errorf("expected ',' between transformers")
		}
	}
}

type chainScanner struct {
	src []rune
	pos int
}

func (s *chainScanner) done() bool { return s.pos >= len(s.src) }

func (s *chainScanner) peek() rune {
	if s.done() {
		return 0
	}
	return s.src[s.pos]
}

func (s *chainScanner) accept(r rune) bool {
	if s.peek() == r && !s.done() {
		s.pos++
		return true
	}
	return false
}

func (s *chainScanner) skipSpace() {
	for !s.done() && unicode.IsSpace(s.src[s.pos]) {
		s.pos++
	}
}

func (s *chainScanner) errorf(format string, args ...any) error {
	return fmt.Errorf("column %d: %s", s.pos+1, fmt.Sprintf(format, args...))
}

func (s *chainScanner) word(valid func(rune) bool) string {
	start := s.pos
	for !s.done() && valid(s.src[s.pos]) {
		s.pos++
	}
	return string(s.src[start:s.pos])
}

func isNameRune(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.')
}

func (s *chainScanner) transformer() (transform.Transformer, error) {
	name := s.word(func(r rune) bool { return r < unicode.MaxASCII && unicode.IsLetter(r) })
	if name == "" {
		return transform.Transformer{}, s.errorf("expected a transformer name")
	}
	kind, ok := transform.ParseKind(name)
	if !ok {
		return transform.Transformer{}, s.errorf("unknown transformer %q", name)
	}
	t := transform.Transformer{Kind: kind}

	s.skipSpace()
	if kind.Arg() == transform.NoArg {
		// Empty parentheses are tolerated.
		if s.accept('(') {
			s.skipSpace()
			if !s.accept(')') {
				return t, s.errorf("%s takes no argument", kind)
			}
		}
		return t, nil
	}

	if !s.accept('(') {
		return t, s.errorf("%s requires an argument", kind)
	}
	s.skipSpace()
	switch kind.Arg() {
	case transform.IdentifierArg:
		t.Arg = s.word(isNameRune)
		if t.Arg == "" {
			return t, s.errorf("%s requires a name argument", kind)
		}
	case transform.StringArg:
		arg, err := s.quoted()
		if err != nil {
			return t, err
		}
		t.Arg = arg
	}
	s.skipSpace()
	if !s.accept(')') {
		return t, s.errorf("expected ')' after %s argument", kind)
	}
	return t, nil
}

// quoted reads a double quoted string. \" and \\ are the only escapes.
func (s *chainScanner) quoted() (string, error) {
	if !s.accept('"') {
		return "", s.errorf("expected a quoted string")
	}
	var b strings.Builder
	for !s.done() {
		r := s.src[s.pos]
		s.pos++
		switch {
		case r == '"':
			return b.String(), nil
		case r == '\\' && !s.done() && (s.src[s.pos] == '"' || s.src[s.pos] == '\\'):
			b.WriteRune(s.src[s.pos])
			s.pos++
		default:
			b.WriteRune(r)
		}
	}
	return "", s.errorf("unterminated string")
}
