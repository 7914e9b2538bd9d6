// Package phrase implements the statistical phrase model: a lattice of
// surface form groups learned from tagged example sentences, plus one
// classifier per decision group that picks a form from the slot values.
package phrase

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/nadzzz/statlg/internal/lattice"
	"github.com/nadzzz/statlg/internal/maxent"
	"github.com/nadzzz/statlg/internal/nlp"
)

// ErrInvalidTransition is returned (wrapped in a RenderError) when a decision
// classifier yields no usable form.
var ErrInvalidTransition = errors.New("invalid lattice transition")

// RenderError carries the output produced before a render failed.
type RenderError struct {
	Model   string
	Locale  language.Tag
	Partial string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("%s while evaluating model %s:%s; rendered so far %q (usually caused by mismatched tags in the training data)",
		ErrInvalidTransition, e.Model, e.Locale, e.Partial)
}

func (e *RenderError) Unwrap() error { return ErrInvalidTransition }

var ssmlTagRe = regexp.MustCompile(`</?(?:speak|say-as|break|p|phoneme|s|voice|emphasis|prosody|sub)(?: .+?>|/?>)`)

// StripSSML removes the SSML elements a phrase model may emit.
func StripSSML(s string) string {
	return ssmlTagRe.ReplaceAllString(s, "")
}

// Options configures training.
type Options struct {
	Classifier maxent.Options
	Logger     *slog.Logger
	// Debug logs the learned lattice and every render decision.
	Debug bool
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Phrase is a trained model. It is immutable after Train or Decode returns
// and safe for concurrent rendering.
type Phrase struct {
	name       string
	locale     language.Tag
	hash       int32
	groups     []lattice.Group
	tagToGroup map[string]int
	groupToTag map[int]string
	models     []*maxent.Model
	features   nlp.FeatureExtractor
	debug      bool
}

// HashLines is the training data fingerprint stored in the cache header: the
// wrapping sum of the FNV-1a hash of every line.
func HashLines(lines []string) int32 {
	var sum int32
	for _, line := range lines {
		h := fnv.New32a()
		_, _ = h.Write([]byte(line))
		sum += int32(h.Sum32())
	}
	return sum
}

// Train aligns lines into a lattice and fits a classifier for every group
// that has more than one form and is not filled by a slot.
func Train(name string, loc language.Tag, lines []string, tools nlp.Tools, opts Options) *Phrase {
	logger := opts.logger().With("model", name, "locale", loc.String())

	res := lattice.Align(lines, tools.Tokenizer, logger)
	p := &Phrase{
		name:       name,
		locale:     loc,
		hash:       HashLines(lines),
		groups:     res.Groups,
		tagToGroup: res.TagToGroup,
		groupToTag: res.GroupToTag,
		models:     make([]*maxent.Model, len(res.Groups)),
		features:   tools.Features,
		debug:      opts.Debug,
	}

	if opts.Debug {
		for g, group := range p.groups {
			logger.Debug("lattice group", "group", g, "forms", formsString(group))
		}
	}

	events := make([][]maxent.Event, len(p.groups))
	for _, path := range res.Paths {
		tags := path.Sentence.TagValues()
		var history []string
		for g := range p.groups {
			if !p.isDecision(g) {
				continue
			}
			choice := path.Choices[g]
			if choice < 0 {
				continue
			}
			feats := p.features.ExtractTagFeatures(tags, p.groupToTag, g, nil)
			feats = append(feats, history...)
			events[g] = append(events[g], maxent.Event{Label: choice, Features: feats})
			history = append(history, historyFeature(g, choice))
		}
	}
	for g := range p.groups {
		if p.isDecision(g) && len(events[g]) > 0 {
			p.models[g] = maxent.Train(events[g], opts.Classifier)
		}
	}

	// Slot groups render from their first form only.
	for g := range p.groupToTag {
		if len(p.groups[g].Forms) > 1 {
			p.groups[g].Forms = p.groups[g].Forms[:1]
		}
	}
	return p
}

func historyFeature(g, choice int) string {
	return "g-" + strconv.Itoa(g) + "=" + strconv.Itoa(choice)
}

func formsString(g lattice.Group) string {
	forms := make([]string, len(g.Forms))
	for i, f := range g.Forms {
		forms[i] = f.String()
	}
	return "{" + strings.Join(forms, "|") + "}"
}

func (p *Phrase) isDecision(g int) bool {
	_, tag := p.groupToTag[g]
	return !tag && len(p.groups[g].Forms) > 1
}

// Name returns the model name.
func (p *Phrase) Name() string { return p.name }

// Locale returns the locale the model was trained for.
func (p *Phrase) Locale() language.Tag { return p.locale }

// Hash returns the training data fingerprint.
func (p *Phrase) Hash() int32 { return p.hash }

// Slots returns the slot names the model substitutes, in group order.
func (p *Phrase) Slots() []string {
	out := make([]string, 0, len(p.groupToTag))
	for g := range p.groups {
		if tag, ok := p.groupToTag[g]; ok {
			out = append(out, tag)
		}
	}
	return out
}

// Render walks the lattice and produces text for the given slot values.
// Missing slots render as empty strings. The output is built as SSML; when
// ssml is false the SSML elements are stripped and no speak wrapper is added.
func (p *Phrase) Render(subs map[string]string, ssml bool, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	filled := make(map[string]string, len(p.groupToTag))
	for _, tag := range p.groupToTag {
		filled[tag] = subs[tag]
	}

	var b strings.Builder
	if ssml {
		fmt.Fprintf(&b, `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s">`, p.locale)
	}

	var history []string
	for g, group := range p.groups {
		if tag, ok := p.groupToTag[g]; ok {
			form := group.Forms[0]
			b.WriteString(form[0].Pre)
			b.WriteString(filled[tag])
			b.WriteString(form[len(form)-1].Post)
			continue
		}

		model := p.models[g]
		if model == nil {
			b.WriteString(group.Forms[0].String())
			continue
		}

		feats := p.features.ExtractTagFeatures(filled, p.groupToTag, g, nil)
		feats = append(feats, history...)
		pred, ok := model.Classify(feats)
		if !ok || pred.Label < 0 || pred.Label >= len(group.Forms) {
			return "", &RenderError{Model: p.name, Locale: p.locale, Partial: b.String()}
		}
		if p.debug {
			logger.Debug("phrase decision", "model", p.name, "group", g,
				"features", strings.Join(feats, ","), "choice", pred.Label, "p", pred.Probability)
		}
		b.WriteString(group.Forms[pred.Label].String())
		history = append(history, historyFeature(g, pred.Label))
	}

	if !ssml {
		return StripSSML(b.String()), nil
	}
	b.WriteString("</speak>")
	return b.String(), nil
}
