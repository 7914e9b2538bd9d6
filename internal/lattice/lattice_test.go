package lattice

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/statlg/internal/nlp/english"
)

func words(s TaggedSentence) []TaggedWord {
	out := make([]TaggedWord, len(s.Words))
	for i, w := range s.Words {
		out[i] = TaggedWord{Text: w.Text, Tag: w.Tag}
	}
	return out
}

func TestParseTags(t *testing.T) {
	s := ParseTags("On the [day]21[/day]st, it is [ condition ]partly cloudy[/ condition].", english.WordBreaker{})

	require.Equal(t, []TaggedWord{
		{Text: "On"}, {Text: "the"}, {Text: "21", Tag: "day"}, {Text: "st"},
		{Text: "it"}, {Text: "is"}, {Text: "partly", Tag: "condition"}, {Text: "cloudy", Tag: "condition"},
	}, words(s))
	require.Equal(t, []string{"", " ", " ", "", ", ", " ", " ", " ", "."}, s.NonTokens)
	require.Equal(t, "number", s.Words[2].Attributes["type"])
}

func TestParseTags_EmptySlot(t *testing.T) {
	s := ParseTags("[lightness][/lightness][saturation]vivid[/saturation]", english.WordBreaker{})
	require.Equal(t, []TaggedWord{{Tag: "lightness"}, {Text: "vivid", Tag: "saturation"}}, words(s))
	require.Equal(t, []string{"", "", ""}, s.NonTokens)
	require.Equal(t, map[string]string{"lightness": "", "saturation": "vivid"}, s.TagValues())
}

func TestTagValues(t *testing.T) {
	s := ParseTags("meet at [time]5:30 PM[/time] in [room]B[/room]", english.WordBreaker{})
	require.Equal(t, map[string]string{"time": "5:30 PM", "room": "B"}, s.TagValues())
}

func TestBuildChain_Whitespace(t *testing.T) {
	s := ParseTags("%[slot1]New York[/slot1]$[slot2]city[/slot2]$is$[slot3]partly cloudy[/slot3]%", english.WordBreaker{})

	want := []Token{
		{Pre: "%"},
		{Text: "New", Tag: "slot1"},
		{Text: "York", Tag: "slot1", Pre: " "},
		{Pre: "$"},
		{Text: "city", Tag: "slot2"},
		{Text: "is", Pre: "$", Post: "$"},
		{Text: "partly", Tag: "slot3"},
		{Text: "cloudy", Tag: "slot3", Pre: " "},
		{Pre: "%"},
	}
	if diff := cmp.Diff(want, BuildChain(s)); diff != "" {
		t.Errorf("chain mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildChain_UntaggedEnd(t *testing.T) {
	s := ParseTags("Test [slot]first[/slot] thing!", english.WordBreaker{})
	want := []Token{
		{Text: "Test", Post: " "},
		{Text: "first", Tag: "slot"},
		{Text: "thing", Pre: " ", Post: "!"},
	}
	require.Equal(t, want, BuildChain(s))
}

func TestBoundedString(t *testing.T) {
	s := ParseTags("^[slot]seattle[/slot] at [time]5:PM[/time]$", english.WordBreaker{})
	require.Equal(t, "^\nseattle\n at \n5:PM\n$", BoundedString(s))
}

func TestAlign_InsertAtStart(t *testing.T) {
	res := Align([]string{
		"...The [slot]first[/slot] thing",
		"...[slot]1[/slot] thing",
		"...[slot]2[/slot] things",
	}, english.WordBreaker{}, nil)

	require.Len(t, res.Groups, 3)
	require.Equal(t, map[int]string{1: "slot"}, res.GroupToTag)
	require.Equal(t, map[string]int{"slot": 1}, res.TagToGroup)

	forms := func(g int) []string {
		var out []string
		for _, f := range res.Groups[g].Forms {
			out = append(out, f.String())
		}
		return out
	}
	require.Equal(t, []string{"...The ", "..."}, forms(0))
	require.Equal(t, []string{"first", "1", "2"}, forms(1))
	require.Equal(t, []string{" thing", " things"}, forms(2))

	require.Len(t, res.Paths, 3)
	require.Equal(t, []int{0, 0, 0}, res.Paths[0].Choices)
	require.Equal(t, []int{1, 1, 0}, res.Paths[1].Choices)
	require.Equal(t, []int{1, 2, 1}, res.Paths[2].Choices)
}

func TestAlign_FixedRunsCollapse(t *testing.T) {
	res := Align([]string{
		"It is [c]cold[/c] today.",
		"It is [c]hot[/c] today.",
	}, english.WordBreaker{}, nil)

	require.Len(t, res.Groups, 3)
	require.Len(t, res.Groups[0].Forms, 1)
	require.Equal(t, "It is ", res.Groups[0].Forms[0].String())
	require.Equal(t, " today.", res.Groups[2].Forms[0].String())
	require.True(t, res.IsTagGroup(1))
	require.False(t, res.IsTagGroup(0))
}

func TestAlign_SkipsSentenceMissingSlot(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	res := Align([]string{
		"It is [c]cold[/c] today.",
		"It is [c]hot[/c] today.",
		"It is today.",
	}, english.WordBreaker{}, logger)

	require.Len(t, res.Paths, 2)
	require.Contains(t, buf.String(), "does not fit the aligned lattice")
	require.Contains(t, buf.String(), "It is today.")
}

func TestAlign_Empty(t *testing.T) {
	res := Align(nil, english.WordBreaker{}, nil)
	require.Empty(t, res.Groups)
	require.Empty(t, res.Paths)
}

func TestAlign_CapsInputs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	lines := make([]string, MaxInputs+5)
	for i := range lines {
		lines[i] = fmt.Sprintf("Item [n]%d[/n] ready.", i)
	}
	res := Align(lines, english.WordBreaker{}, logger)
	require.Len(t, res.Paths, MaxInputs)
	require.Contains(t, buf.String(), "alignment input truncated")
}

func TestAlign_EveryPathMatchesItsForms(t *testing.T) {
	lines := []string{
		"You have a meeting at [time_1]1:00[/time_1] [time_2][/time_2][time_3][/time_3]today.",
		"You have meetings at [time_1]1:00[/time_1] and [time_2]1:00[/time_2] [time_3][/time_3]today.",
		"You have meetings at [time_1]1:00[/time_1], [time_2]1:00[/time_2], and [time_3]1:00[/time_3] today.",
	}
	res := Align(lines, english.WordBreaker{}, nil)
	require.Len(t, res.Paths, 3)

	// Replaying the choices with the sentence's own slot text gives back the
	// training line without tags.
	for _, p := range res.Paths {
		var out string
		for g, c := range p.Choices {
			out += res.Groups[g].Forms[c].String()
		}
		require.Equal(t, stripTags(p.Sentence.Source), out)
	}
}

func stripTags(s string) string {
	return tagRe.ReplaceAllString(s, "")
}
