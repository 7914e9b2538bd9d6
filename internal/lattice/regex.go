package lattice

import (
	"regexp"
	"strings"
)

// boundary separates slot text from the text around it in the bounded form
// of a sentence, so a slot alternative can never match across a slot edge.
const boundary = "\n"

type validator struct {
	re *regexp.Regexp
}

// newValidator compiles the lattice into one anchored expression. Every
// group is an alternation of its escaped forms and slot groups are wrapped
// in boundary markers.
func newValidator(r *Result) (*validator, error) {
	var b strings.Builder
	b.WriteString("^")
	for g, group := range r.Groups {
		tag := r.IsTagGroup(g)
		if tag {
			b.WriteString(boundary)
		}
		b.WriteString("(?:")
		for k, form := range group.Forms {
			if k > 0 {
				b.WriteString("|")
			}
			b.WriteString("(")
			b.WriteString(regexp.QuoteMeta(form.String()))
			b.WriteString(")")
		}
		b.WriteString(")")
		if tag {
			b.WriteString(boundary)
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	return &validator{re: re}, nil
}

func (v *validator) matches(s TaggedSentence) bool {
	return v.re.MatchString(BoundedString(s))
}

// BoundedString renders a training sentence with its slot tags removed and a
// boundary marker at every slot edge.
func BoundedString(s TaggedSentence) string {
	var b strings.Builder
	inTag := ""
	for _, t := range BuildChain(s) {
		if t.Tag != inTag {
			if inTag != "" {
				b.WriteString(boundary)
			}
			if t.Tag != "" {
				b.WriteString(boundary)
			}
			inTag = t.Tag
		}
		b.WriteString(t.Pre)
		b.WriteString(t.Text)
		b.WriteString(t.Post)
	}
	if inTag != "" {
		b.WriteString(boundary)
	}
	return b.String()
}
