// Package template parses statistical LG template files.
//
// A template starts with an [Engine:NAME] and a [Locales:loc,loc] header and
// is followed by any number of blocks:
//
//	[Model:Weather]
//	On the [day]1[/day]st, it will be [condition]cloudy[/condition].
//
//	[Phrase:WeatherPhrase]
//	TextModel=Weather
//	Transformer-condition=Translate(Conditions), Lowercase
//	VariantConstraints=formality:casual
//
//	[TranslationTable:Conditions]
//	PCLOUDY=partly cloudy
//
//	[Script:PickPhrase]
//	PhraseName = subs.temp > 90 ? "HotPhrase" : phrase
//
// Lines whose first non-blank character is # are comments. Model lines keep
// their leading whitespace and any inline # text.
package template

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/language"

	"github.com/nadzzz/statlg/internal/locale"
)

// Template is a parsed template file.
type Template struct {
	File    string
	Engine  string
	Locales []language.Tag
	Blocks  []Block
}

// ParseError reports malformed template content.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

var (
	headerRe     = regexp.MustCompile(`^\s*\[\s*([A-Za-z]+)\s*:\s*([^\]]*?)\s*\]\s*(?:#.*)?$`)
	headerOpenRe = regexp.MustCompile(`(?i)^\s*\[\s*(engine|locales|model|phrase|translationtable|script)\s*:`)
	identRe      = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
	slotNameRe   = regexp.MustCompile(`^[A-Za-z0-9_\-\.]+$`)
)

// headerName returns the block kind of a header line, or "" if line is not a
// header.
func headerName(line string) string {
	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

func isComment(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), "#")
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// Preprocess normalizes raw lines before parsing: a blank line is inserted
// after every Model block, and blank lines inside Script blocks become a
// single space so that they do not terminate the block.
func Preprocess(lines []string) []string {
	src := preprocess(lines)
	out := make([]string, len(src))
	for i, l := range src {
		out[i] = l.text
	}
	return out
}

type sourceLine struct {
	text string
	no   int
}

func preprocess(lines []string) []sourceLine {
	out := make([]sourceLine, 0, len(lines)+8)
	current := ""
	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if name := headerName(line); name != "" {
			if current == "model" {
				out = append(out, sourceLine{no: i + 1})
			}
			current = name
		}
		if current == "script" && line == "" {
			line = " "
		}
		out = append(out, sourceLine{text: line, no: i + 1})
	}
	return out
}

// Parse parses the lines of a template file.
func Parse(lines []string, file string) (*Template, error) {
	p := &parser{tpl: &Template{File: file}}
	last := 0
	for _, l := range preprocess(lines) {
		if err := p.line(l.text); err != nil {
			return nil, &ParseError{File: file, Line: l.no, Msg: err.Error()}
		}
		last = l.no
	}
	if err := p.closeBlock(); err != nil {
		return nil, &ParseError{File: file, Line: last, Msg: err.Error()}
	}
	if p.tpl.Engine == "" {
		return nil, &ParseError{File: file, Msg: "missing [Engine:...] header"}
	}
	if !p.sawLocales {
		return nil, &ParseError{File: file, Msg: "missing [Locales:...] header"}
	}
	return p.tpl, nil
}

// ParseReader reads and parses a template.
func ParseReader(r io.Reader, file string) (*Template, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading template %s: %w", file, err)
	}
	return Parse(lines, file)
}

// ParseFile opens and parses a template on fs.
func ParseFile(fs afero.Fs, path string) (*Template, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening template: %w", err)
	}
	defer f.Close()
	return ParseReader(f, path)
}

type parser struct {
	tpl        *Template
	sawLocales bool
	block      blockBuilder
}

type blockBuilder interface {
	add(line string) error
	build() (Block, error)
}

func (p *parser) closeBlock() error {
	if p.block == nil {
		return nil
	}
	b, err := p.block.build()
	p.block = nil
	if err != nil {
		return err
	}
	p.tpl.Blocks = append(p.tpl.Blocks, b)
	return nil
}

func (p *parser) line(line string) error {
	if m := headerRe.FindStringSubmatch(line); m != nil {
		if err := p.closeBlock(); err != nil {
			return err
		}
		return p.header(strings.ToLower(m[1]), m[1], m[2])
	}
	if headerOpenRe.MatchString(line) && !strings.Contains(line, "]") {
		return fmt.Errorf("unterminated block header %q", strings.TrimSpace(line))
	}

	if p.block == nil {
		if isBlank(line) || isComment(line) {
			return nil
		}
		return fmt.Errorf("unexpected content outside of a block: %q", strings.TrimSpace(line))
	}

	if _, script := p.block.(*scriptBuilder); script {
		return p.block.add(line)
	}
	if isBlank(line) {
		return p.closeBlock()
	}
	if isComment(line) {
		return nil
	}
	return p.block.add(line)
}

func (p *parser) header(kind, rawKind, arg string) error {
	switch kind {
	case "engine":
		if !identRe.MatchString(arg) {
			return fmt.Errorf("invalid engine name %q", arg)
		}
		p.tpl.Engine = arg
		return nil
	case "locales":
		return p.locales(arg)
	}

	switch kind {
	case "model", "phrase", "translationtable", "script":
	default:
		return fmt.Errorf("unknown block type %q", rawKind)
	}
	if p.tpl.Engine == "" || !p.sawLocales {
		return fmt.Errorf("block [%s:%s] appears before the [Engine] and [Locales] headers", rawKind, arg)
	}
	if !identRe.MatchString(arg) {
		return fmt.Errorf("invalid %s name %q", rawKind, arg)
	}

	switch kind {
	case "model":
		p.block = &modelBuilder{name: arg}
	case "phrase":
		p.block = &phraseBuilder{name: arg}
	case "translationtable":
		p.block = &tableBuilder{name: arg, mapping: make(map[string]string)}
	case "script":
		p.block = &scriptBuilder{name: arg}
	}
	return nil
}

func (p *parser) locales(arg string) error {
	if p.sawLocales {
		return fmt.Errorf("duplicate [Locales] header")
	}
	seen := make(map[language.Tag]bool)
	for _, part := range strings.Split(arg, ",") {
		tag, err := locale.Parse(part)
		if err != nil {
			return err
		}
		if locale.IsNone(tag) {
			return fmt.Errorf("empty locale in %q", arg)
		}
		if seen[tag] {
			return fmt.Errorf("duplicate locale %s", tag)
		}
		seen[tag] = true
		p.tpl.Locales = append(p.tpl.Locales, tag)
	}
	p.sawLocales = true
	return nil
}

// splitKeyValue splits "key=value" where key is an identifier.
func splitKeyValue(line string) (string, string, error) {
	idx := strings.IndexByte(line, '=')
	if idx < 0 {
		return "", "", fmt.Errorf("expected key=value, got %q", strings.TrimSpace(line))
	}
	key := strings.TrimSpace(line[:idx])
	if key == "" {
		return "", "", fmt.Errorf("missing key in %q", strings.TrimSpace(line))
	}
	return key, strings.TrimRight(line[idx+1:], " \t"), nil
}
