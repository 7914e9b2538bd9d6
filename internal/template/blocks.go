package template

import (
	"fmt"
	"strings"

	"github.com/nadzzz/statlg/internal/transform"
)

// Block is one of ModelBlock, PhraseBlock, TranslationTableBlock or
// ScriptBlock.
type Block interface {
	BlockName() string
	block()
}

// ModelBlock holds the training sentences of a phrase model.
type ModelBlock struct {
	Name          string
	TrainingLines []string
}

// PhraseBlock declares a phrase and its properties in source order.
type PhraseBlock struct {
	Name       string
	Properties []Property
}

// TranslationTableBlock maps raw slot values to display values.
type TranslationTableBlock struct {
	Name    string
	Mapping map[string]string
}

// ScriptBlock holds the opaque source lines of a script.
type ScriptBlock struct {
	Name  string
	Lines []string
}

func (b *ModelBlock) BlockName() string            { return b.Name }
func (b *PhraseBlock) BlockName() string           { return b.Name }
func (b *TranslationTableBlock) BlockName() string { return b.Name }
func (b *ScriptBlock) BlockName() string           { return b.Name }

func (*ModelBlock) block()            {}
func (*PhraseBlock) block()           {}
func (*TranslationTableBlock) block() {}
func (*ScriptBlock) block()           {}

// Property is one of KeyValueProperty, TransformerProperty or
// VariantConstraintsProperty.
type Property interface {
	PropertyName() string
	property()
}

// KeyValueProperty is a plain Key=Value phrase property such as
// TextModel=Weather or Image=sun.png.
type KeyValueProperty struct {
	Key   string
	Value string
}

// TransformerProperty is a Transformer-<slot>=<chain> property.
type TransformerProperty struct {
	Slot  string
	Chain transform.Chain
}

// VariantConstraintsProperty is a VariantConstraints=k:v,... property.
type VariantConstraintsProperty struct {
	Constraints map[string]string
}

func (p *KeyValueProperty) PropertyName() string           { return p.Key }
func (p *TransformerProperty) PropertyName() string        { return "Transformer" }
func (p *VariantConstraintsProperty) PropertyName() string { return "VariantConstraints" }

func (*KeyValueProperty) property()           {}
func (*TransformerProperty) property()        {}
func (*VariantConstraintsProperty) property() {}

type modelBuilder struct {
	name  string
	lines []string
}

func (b *modelBuilder) add(line string) error {
	b.lines = append(b.lines, line)
	return nil
}

func (b *modelBuilder) build() (Block, error) {
	return &ModelBlock{Name: b.name, TrainingLines: b.lines}, nil
}

type scriptBuilder struct {
	name  string
	lines []string
}

func (b *scriptBuilder) add(line string) error {
	b.lines = append(b.lines, line)
	return nil
}

func (b *scriptBuilder) build() (Block, error) {
	// Trailing padding lines belong to the gap before the next header.
	lines := b.lines
	for len(lines) > 0 && isBlank(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	return &ScriptBlock{Name: b.name, Lines: lines}, nil
}

type tableBuilder struct {
	name    string
	mapping map[string]string
}

func (b *tableBuilder) add(line string) error {
	key, value, err := splitKeyValue(line)
	if err != nil {
		return err
	}
	if !identRe.MatchString(key) {
		return fmt.Errorf("invalid translation table key %q", key)
	}
	b.mapping[key] = value
	return nil
}

func (b *tableBuilder) build() (Block, error) {
	return &TranslationTableBlock{Name: b.name, Mapping: b.mapping}, nil
}

type phraseBuilder struct {
	name  string
	props []Property
}

func (b *phraseBuilder) add(line string) error {
	key, value, err := splitKeyValue(line)
	if err != nil {
		return err
	}

	if slot, ok := cutPrefixFold(key, "Transformer-"); ok {
		if !slotNameRe.MatchString(slot) {
			return fmt.Errorf("invalid slot name %q", slot)
		}
		chain, err := ParseChain(value)
		if err != nil {
			return fmt.Errorf("transformer for slot %q: %w", slot, err)
		}
		b.props = append(b.props, &TransformerProperty{Slot: slot, Chain: chain})
		return nil
	}

	if strings.EqualFold(key, "VariantConstraints") {
		constraints, err := parseVariantConstraints(value)
		if err != nil {
			return err
		}
		b.props = append(b.props, &VariantConstraintsProperty{Constraints: constraints})
		return nil
	}

	if !identRe.MatchString(key) {
		return fmt.Errorf("invalid property name %q", key)
	}
	b.props = append(b.props, &KeyValueProperty{Key: key, Value: value})
	return nil
}

func (b *phraseBuilder) build() (Block, error) {
	return &PhraseBlock{Name: b.name, Properties: b.props}, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

func parseVariantConstraints(value string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		k, v, ok := strings.Cut(part, ":")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || !slotNameRe.MatchString(k) || !slotNameRe.MatchString(v) {
			return nil, fmt.Errorf("invalid variant constraint %q, expected key:value", part)
		}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("a phrase has multiple variant constraints with the key %q: %s", k, value)
		}
		out[k] = v
	}
	return out, nil
}
