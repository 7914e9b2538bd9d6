// Package transform implements the slot transformers that can be chained on a
// phrase slot, e.g.
//
//	Transformer-temp=NumberFormat("F1"), TrimRight("0"), TrimRight(".")
//
// The set of transformers is closed; each Transformer value carries its Kind
// and, where the kind takes one, its argument.
package transform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrUnknownFormat is returned for number or date formats the transformer
	// does not understand.
	ErrUnknownFormat = errors.New("unknown format")

	// ErrUnknownTable is returned by Translate when the table does not exist.
	ErrUnknownTable = errors.New("unknown translation table")

	// ErrNotApplicable is returned when the input value cannot be interpreted
	// by the transformer (a word given to NumberFormat, for example).
	ErrNotApplicable = errors.New("value not applicable")

	// ErrNeedsRenderer is returned by Apply for Subphrase, which is evaluated
	// by the pattern pipeline rather than on a bare value.
	ErrNeedsRenderer = errors.New("subphrase must be rendered by the pattern")
)

// Kind identifies one transformer function.
type Kind int

const (
	Uppercase Kind = iota
	Lowercase
	Capitalize
	Translate
	Subphrase
	DateTimeFormat
	NumberFormat
	TrimLeft
	TrimRight
)

var kindNames = [...]string{
	Uppercase:      "Uppercase",
	Lowercase:      "Lowercase",
	Capitalize:     "Capitalize",
	Translate:      "Translate",
	Subphrase:      "Subphrase",
	DateTimeFormat: "DateTimeFormat",
	NumberFormat:   "NumberFormat",
	TrimLeft:       "TrimLeft",
	TrimRight:      "TrimRight",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// ArgStyle describes what goes between the parentheses of a transformer call.
type ArgStyle int

const (
	NoArg ArgStyle = iota
	IdentifierArg
	StringArg
)

// Arg reports the argument style of the kind.
func (k Kind) Arg() ArgStyle {
	switch k {
	case Translate, Subphrase:
		return IdentifierArg
	case DateTimeFormat, NumberFormat, TrimLeft, TrimRight:
		return StringArg
	default:
		return NoArg
	}
}

// ParseKind resolves a transformer function name, ignoring case.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if strings.EqualFold(n, name) {
			return Kind(k), true
		}
	}
	return 0, false
}

// Transformer is one step of a chain.
type Transformer struct {
	Kind Kind
	Arg  string
}

// String renders the transformer the way it is written in a template.
func (t Transformer) String() string {
	switch t.Kind.Arg() {
	case IdentifierArg:
		return fmt.Sprintf("%s(%s)", t.Kind, t.Arg)
	case StringArg:
		return fmt.Sprintf("%s(%q)", t.Kind, t.Arg)
	default:
		return t.Kind.String()
	}
}

// Chain is an ordered list of transformers applied left to right.
type Chain []Transformer

// HasSubphrase reports whether any step renders a subphrase.
func (c Chain) HasSubphrase() bool {
	for _, t := range c {
		if t.Kind == Subphrase {
			return true
		}
	}
	return false
}

func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, t := range c {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// TableSource resolves translation tables by name.
type TableSource interface {
	TranslationTable(name string) (map[string]string, bool)
}

// Env is the context a transformer runs in.
type Env struct {
	Locale language.Tag
	Tables TableSource
}

// Apply runs a single transformer. On error the caller keeps the input value.
func (t Transformer) Apply(value any, env Env) (any, error) {
	switch t.Kind {
	case Uppercase:
		return cases.Upper(env.Locale).String(Stringify(value)), nil
	case Lowercase:
		return cases.Lower(env.Locale).String(Stringify(value)), nil
	case Capitalize:
		return capitalize(Stringify(value), env.Locale), nil
	case Translate:
		return translate(Stringify(value), t.Arg, env.Tables)
	case TrimLeft:
		return strings.TrimLeft(Stringify(value), t.Arg), nil
	case TrimRight:
		return strings.TrimRight(Stringify(value), t.Arg), nil
	case NumberFormat:
		return formatNumber(value, t.Arg, env.Locale)
	case DateTimeFormat:
		return formatDateTime(value, t.Arg)
	case Subphrase:
		return value, ErrNeedsRenderer
	default:
		return value, fmt.Errorf("transformer %s: %w", t.Kind, ErrNotApplicable)
	}
}

// Stringify coerces a slot value to the string fed to the phrase models.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func capitalize(s string, tag language.Tag) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return cases.Upper(tag).String(string(r)) + s[size:]
}

func translate(value, table string, tables TableSource) (any, error) {
	if tables == nil {
		return value, fmt.Errorf("translate %q: %w", table, ErrUnknownTable)
	}
	mapping, ok := tables.TranslationTable(table)
	if !ok {
		return value, fmt.Errorf("translate %q: %w", table, ErrUnknownTable)
	}
	if out, ok := mapping[value]; ok {
		return out, nil
	}
	return value, nil
}
