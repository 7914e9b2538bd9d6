package lattice

import (
	"log/slog"
	"strings"

	"github.com/nadzzz/statlg/internal/nlp"
)

// MaxInputs is the most training sentences one alignment accepts.
const MaxInputs = 200

// SurfaceForm is one concrete token sequence realizing a group.
type SurfaceForm []Token

func (f SurfaceForm) String() string {
	var b strings.Builder
	for _, t := range f {
		b.WriteString(t.Pre)
		b.WriteString(t.Text)
		b.WriteString(t.Post)
	}
	return b.String()
}

// Equal reports whether two forms hold identical tokens.
func (f SurfaceForm) Equal(o SurfaceForm) bool {
	if len(f) != len(o) {
		return false
	}
	for i := range f {
		if !f[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Group is one position of the lattice.
type Group struct {
	Forms []SurfaceForm
}

// Path is a training sentence that fits the lattice and the form it takes at
// every group.
type Path struct {
	Sentence TaggedSentence
	Choices  []int
}

// Result is the outcome of an alignment.
type Result struct {
	Groups     []Group
	TagToGroup map[string]int
	GroupToTag map[int]string
	// Paths holds the sentences that passed revalidation.
	Paths []Path
}

// IsTagGroup reports whether group g is filled by a slot value.
func (r *Result) IsTagGroup(g int) bool {
	_, ok := r.GroupToTag[g]
	return ok
}

// unit is the alignment element: a whole slot span, a shim or a single word.
type unit struct {
	key    string
	tokens []Token
}

func unitKey(t Token) string {
	if t.Text == "" {
		return "S"
	}
	text := strings.ToLower(t.Text)
	if isDigits(text) {
		return "W:#"
	}
	return "W:" + text
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func unitize(chain []Token) []unit {
	var units []unit
	for _, t := range chain {
		if t.Tag != "" {
			n := len(units)
			if n > 0 && units[n-1].key == "T:"+t.Tag {
				units[n-1].tokens = append(units[n-1].tokens, t)
				continue
			}
			units = append(units, unit{key: "T:" + t.Tag, tokens: []Token{t}})
			continue
		}
		units = append(units, unit{key: unitKey(t), tokens: []Token{t}})
	}
	return units
}

// column is one aligned position; cells[i] is sentence i's unit there, or
// nil where the sentence has nothing at this position.
type column struct {
	key   string
	cells []*unit
}

func (c *column) isTag() bool { return strings.HasPrefix(c.key, "T:") }

// fixed reports whether every sentence has the same token at this position.
func (c *column) fixed() bool {
	if c.isTag() {
		return false
	}
	first := c.cells[0]
	if first == nil {
		return false
	}
	for _, u := range c.cells[1:] {
		if u == nil || !SurfaceForm(u.tokens).Equal(first.tokens) {
			return false
		}
	}
	return true
}

type op int

const (
	opMatch op = iota
	opSkipColumn
	opInsert
)

// alignSentence aligns a sentence's units to the existing columns with a
// longest common subsequence over unit keys. It returns the edit script in
// left to right order.
func alignSentence(cols []*column, units []unit) []op {
	m, n := len(cols), len(units)
	cost := make([][]int, m+1)
	for i := range cost {
		cost[i] = make([]int, n+1)
		cost[i][0] = i
	}
	for j := 0; j <= n; j++ {
		cost[0][j] = j
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			best := min(cost[i-1][j], cost[i][j-1]) + 1
			if cols[i-1].key == units[j-1].key && cost[i-1][j-1] < best {
				best = cost[i-1][j-1]
			}
			cost[i][j] = best
		}
	}

	ops := make([]op, 0, m+n)
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && cols[i-1].key == units[j-1].key && cost[i][j] == cost[i-1][j-1]:
			ops = append(ops, opMatch)
			i--
			j--
		case i > 0 && cost[i][j] == cost[i-1][j]+1:
			ops = append(ops, opSkipColumn)
			i--
		default:
			ops = append(ops, opInsert)
			j--
		}
	}
	for l, r := 0, len(ops)-1; l < r; l, r = l+1, r-1 {
		ops[l], ops[r] = ops[r], ops[l]
	}
	return ops
}

// addSentence merges sentence number idx into the column profile.
func addSentence(cols []*column, units []unit, idx int) []*column {
	if len(cols) == 0 {
		out := make([]*column, len(units))
		for j := range units {
			cells := make([]*unit, idx+1)
			cells[idx] = &units[j]
			out[j] = &column{key: units[j].key, cells: cells}
		}
		return out
	}

	out := make([]*column, 0, len(cols)+len(units))
	i, j := 0, 0
	for _, o := range alignSentence(cols, units) {
		switch o {
		case opMatch:
			cols[i].cells = append(cols[i].cells, &units[j])
			out = append(out, cols[i])
			i++
			j++
		case opSkipColumn:
			cols[i].cells = append(cols[i].cells, nil)
			out = append(out, cols[i])
			i++
		case opInsert:
			cells := make([]*unit, idx+1)
			cells[idx] = &units[j]
			out = append(out, &column{key: units[j].key, cells: cells})
			j++
		}
	}
	return out
}

// Align word-breaks and aligns training lines into a lattice. Sentences that
// do not fit the final lattice are dropped with a warning.
func Align(lines []string, tokenizer nlp.Tokenizer, logger *slog.Logger) *Result {
	if logger == nil {
		logger = slog.Default()
	}
	if len(lines) > MaxInputs {
		logger.Warn("alignment input truncated", "inputs", len(lines), "max", MaxInputs)
		lines = lines[:MaxInputs]
	}

	sentences := make([]TaggedSentence, 0, len(lines))
	var cols []*column
	for idx, line := range lines {
		s := ParseTags(line, tokenizer)
		sentences = append(sentences, s)
		cols = addSentence(cols, unitize(BuildChain(s)), idx)
	}

	groups, choices := buildGroups(cols, len(sentences))
	res := &Result{
		Groups:     groups,
		TagToGroup: make(map[string]int),
		GroupToTag: make(map[int]string),
	}
	for g, group := range groups {
		tag := firstTag(group)
		if tag == "" {
			continue
		}
		if _, taken := res.TagToGroup[tag]; taken {
			continue
		}
		res.TagToGroup[tag] = g
		res.GroupToTag[g] = tag
	}

	validator, err := newValidator(res)
	if err != nil {
		logger.Warn("lattice could not be compiled for revalidation", "error", err)
	}
	for i, s := range sentences {
		if validator != nil && !validator.matches(s) {
			logger.Warn("training sentence does not fit the aligned lattice and was skipped", "sentence", s.Source)
			continue
		}
		res.Paths = append(res.Paths, Path{Sentence: s, Choices: choices[i]})
	}
	return res
}

func firstTag(g Group) string {
	if len(g.Forms) == 0 || len(g.Forms[0]) == 0 {
		return ""
	}
	return g.Forms[0][0].Tag
}

// buildGroups linearizes columns into groups. Each slot column is a group of
// its own. A run of columns that every sentence shares verbatim becomes one
// fixed group; any other run becomes a decision group whose forms are the
// distinct per-sentence realizations of the run.
func buildGroups(cols []*column, nSentences int) ([]Group, [][]int) {
	choices := make([][]int, nSentences)
	var groups []Group

	for i := 0; i < len(cols); {
		c := cols[i]
		switch {
		case c.isTag():
			g := Group{}
			for s := 0; s < nSentences; s++ {
				u := c.cells[s]
				if u == nil {
					choices[s] = append(choices[s], -1)
					continue
				}
				choices[s] = append(choices[s], formIndex(&g, u.tokens))
			}
			groups = append(groups, g)
			i++

		case c.fixed():
			var form SurfaceForm
			for ; i < len(cols) && cols[i].fixed(); i++ {
				form = append(form, cols[i].cells[0].tokens...)
			}
			groups = append(groups, Group{Forms: []SurfaceForm{form}})
			for s := 0; s < nSentences; s++ {
				choices[s] = append(choices[s], 0)
			}

		default:
			j := i
			for j < len(cols) && !cols[j].isTag() && !cols[j].fixed() {
				j++
			}
			g := Group{}
			for s := 0; s < nSentences; s++ {
				form := SurfaceForm{}
				for _, col := range cols[i:j] {
					if u := col.cells[s]; u != nil {
						form = append(form, u.tokens...)
					}
				}
				choices[s] = append(choices[s], formIndex(&g, form))
			}
			groups = append(groups, g)
			i = j
		}
	}
	return groups, choices
}

func formIndex(g *Group, form SurfaceForm) int {
	for k, existing := range g.Forms {
		if existing.Equal(form) {
			return k
		}
	}
	g.Forms = append(g.Forms, form)
	return len(g.Forms) - 1
}
