package phrase

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/nadzzz/statlg/internal/lattice"
	"github.com/nadzzz/statlg/internal/maxent"
	"github.com/nadzzz/statlg/internal/nlp/english"
)

var weatherLines = []string{
	"On the [day]1[/day]st, it will be [condition]cloudy[/condition], and [temp]15[/temp] degrees.",
	"On the [day]1[/day]st, it will be [condition]partly cloudy[/condition], and [temp]15[/temp] degrees.",
	"On the [day]1[/day]st, it will be [condition]sunny[/condition], and [temp]15[/temp] degrees.",
	"On the [day]2[/day]nd, it will be [condition]cloudy[/condition], and [temp]1[/temp] degree.",
	"On the [day]2[/day]nd, it will be [condition]cloudy[/condition], and [temp]22[/temp] degrees.",
	"On the [day]2[/day]nd, it will be [condition]clear[/condition], and [temp]1[/temp] degrees.",
	"On the [day]3[/day]rd, it will be [condition]sunny[/condition], and [temp]34[/temp] degrees.",
	"On the [day]3[/day]rd, it will be [condition]cloudy[/condition], and [temp]34[/temp] degrees.",
	"On the [day]3[/day]rd, it will be [condition]sunny[/condition], and [temp]1[/temp] degree.",
	"On the [day]3[/day]rd, it will be [condition]cloudy[/condition], and [temp]34[/temp] degrees.",
	"On the [day]4[/day]th, it will be [condition]overcast[/condition], and [temp]16[/temp] degrees.",
	"On the [day]5[/day]th, it will be [condition]partly cloudy[/condition], and [temp]44[/temp] degrees.",
	"On the [day]6[/day]th, it will be [condition]rainy[/condition], and [temp]35[/temp] degrees.",
	"On the [day]7[/day]th, it will be [condition]rainy[/condition], and [temp]1[/temp] degree.",
	"On the [day]8[/day]th, it will be [condition]sunny[/condition], and [temp]63[/temp] degrees.",
	"On the [day]9[/day]th, it will be [condition]mostly cloudy[/condition], and [temp]12[/temp] degrees.",
	"On the [day]10[/day]th, it will be [condition]overcast[/condition], and [temp]1[/temp] degree.",
	"On the [day]11[/day]th, it will be [condition]overcast[/condition], and [temp]0[/temp] degrees.",
	"On the [day]21[/day]st, it will be [condition]rainy[/condition], and [temp]0[/temp] degrees.",
	"On the [day]22[/day]nd, it will be [condition]clear[/condition], and [temp]34[/temp] degrees.",
	"On the [day]23[/day]rd, it will be [condition]snowy[/condition], and [temp]1[/temp] degree.",
	"On the [day]22[/day]nd, it will be [condition]rainy[/condition], and [temp]1[/temp] degree.",
	"On the [day]31[/day]st, it will be [condition]cloudy[/condition], and [temp]10[/temp] degrees.",
	"On the [day]32[/day]nd, it will be [condition]overcast[/condition], and [temp]24[/temp] degrees.",
	"On the [day]1[/day]st, it will be [condition]clear[/condition], and [temp]4[/temp] degrees.",
	"On the [day]31[/day]st, it will be [condition]cloudy[/condition], and [temp]0[/temp] degrees.",
	"On the [day]21[/day]st, it will be [condition]snowy[/condition], and [temp]1[/temp] degree.",
	"On the [day]21[/day]st, it will be [condition]partly cloudy[/condition], and [temp]54[/temp] degrees.",
	"On the [day]3[/day]rd, it will be [condition]foggy[/condition], and [temp]44[/temp] degrees.",
	"On the [day]23[/day]rd, it will be [condition]sunny[/condition], and [temp]34[/temp] degrees.",
	"On the [day]13[/day]th, it will be [condition]cloudy[/condition], and [temp]1[/temp] degree.",
	"On the [day]12[/day]th, it will be [condition]stormy[/condition], and [temp]74[/temp] degrees.",
	"On the [day]2[/day]nd, it will be [condition]snowy[/condition], and [temp]22[/temp] degrees.",
	"On the [day]2[/day]nd, it will be [condition]cloudy[/condition], and [temp]52[/temp] degrees.",
	"On the [day]22[/day]nd, it will be [condition]rainy[/condition], and [temp]76[/temp] degrees.",
	"On the [day]22[/day]nd, it will be [condition]sunny[/condition], and [temp]1[/temp] degree.",
	"On the [day]3[/day]rd, it will be [condition]cloudy[/condition], and [temp]34[/temp] degrees.",
	"On the [day]23[/day]rd, it will be [condition]snowy[/condition], and [temp]1[/temp] degree.",
	"On the [day]2[/day]nd, it will be [condition]overcast[/condition], and [temp]1[/temp] degree.",
	"On the [day]13[/day]th, it will be [condition]rainy[/condition], and [temp]34[/temp] degrees.",
	"On the [day]33[/day]rd, it will be [condition]cloudy[/condition], and [temp]1[/temp] degree.",
	"On the [day]23[/day]rd, it will be [condition]clear[/condition], and [temp]34[/temp] degrees.",
	"On the [day]1[/day]st, it will be [condition]clear[/condition], and [temp]1[/temp] degree.",
	"On the [day]19[/day]th, it will be [condition]icy[/condition], and [temp]1[/temp] degree.",
}

var ssmlLines = []string{
	`This <sub alias="recipe">recipe</sub> needs <emphasis>[ingredient_count]1[/ingredient_count] ingredient and has [step_count]5[/step_count] steps.</emphasis><break/>`,
	`This <sub alias="recipe">recipe</sub> needs <emphasis>[ingredient_count]2[/ingredient_count] ingredients and has [step_count]1[/step_count] step.</emphasis><break/>`,
	`This <sub alias="recipe">recipe</sub> needs <emphasis>[ingredient_count]3[/ingredient_count] ingredients and has [step_count]4[/step_count] steps.</emphasis><break/>`,
	`This <sub alias="recipe">recipe</sub> needs <emphasis>[ingredient_count]4[/ingredient_count] ingredients and has [step_count]1[/step_count] step.</emphasis><break/>`,
	`This <sub alias="recipe">recipe</sub> needs <emphasis>[ingredient_count]5[/ingredient_count] ingredients and has [step_count]8[/step_count] steps.</emphasis><break/>`,
	`This <sub alias="recipe">recipe</sub> needs <emphasis>[ingredient_count]6[/ingredient_count] ingredients and has [step_count]11[/step_count] steps.</emphasis><break/>`,
	`This <sub alias="recipe">recipe</sub> needs <emphasis>[ingredient_count]10[/ingredient_count] ingredients and has [step_count]10[/step_count] steps.</emphasis><break/>`,
	`This <sub alias="recipe">recipe</sub> needs <emphasis>[ingredient_count]11[/ingredient_count] ingredients and has [step_count]6[/step_count] steps.</emphasis><break/>`,
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func train(t *testing.T, lines []string) *Phrase {
	t.Helper()
	return Train("TestPhrase", language.AmericanEnglish, lines, english.Tools(), Options{Logger: quietLogger()})
}

func renderText(t *testing.T, p *Phrase, subs map[string]string) string {
	t.Helper()
	out, err := p.Render(subs, false, quietLogger())
	require.NoError(t, err)
	return out
}

func assertWeather(t *testing.T, p *Phrase) {
	t.Helper()
	require.Equal(t, "On the 2nd, it will be overcast, and 1 degree.",
		renderText(t, p, map[string]string{"day": "2", "condition": "overcast", "temp": "1"}))
	require.Equal(t, "On the 3rd, it will be sunny, and 32 degrees.",
		renderText(t, p, map[string]string{"day": "3", "condition": "sunny", "temp": "32"}))
	require.Equal(t, "On the 15th, it will be partly sunny, and 16 degrees.",
		renderText(t, p, map[string]string{"day": "15", "condition": "partly sunny", "temp": "16"}))
}

func TestRender_Weather(t *testing.T) {
	p := train(t, weatherLines)
	require.Equal(t, []string{"day", "condition", "temp"}, p.Slots())
	require.Equal(t, 2, p.DecisionCount())
	assertWeather(t, p)
}

func TestRender_InsertTokensAtStart(t *testing.T) {
	var lines []string
	for _, w := range []string{"first", "second", "third", "fourth", "fifth"} {
		lines = append(lines, "...The [slot]"+w+"[/slot] thing", "...The [slot]"+w+"[/slot] thing")
	}
	lines = append(lines, "...[slot]1[/slot] thing", "...[slot]1[/slot] thing")
	for _, n := range []string{"2", "3", "4", "5"} {
		lines = append(lines, "...[slot]"+n+"[/slot] things", "...[slot]"+n+"[/slot] things")
	}
	p := train(t, lines)

	require.Equal(t, "...The fifth thing", renderText(t, p, map[string]string{"slot": "fifth"}))
	require.Equal(t, "...9 things", renderText(t, p, map[string]string{"slot": "9"}))
	require.Equal(t, "...1 thing", renderText(t, p, map[string]string{"slot": "1"}))
}

func TestRender_InsertTokensAtEnd(t *testing.T) {
	p := train(t, []string{
		"Test [slot]first[/slot] thing!",
		"Test [slot]second[/slot] thing!",
		"Test [slot]third[/slot] thing!",
		"Test [slot]fourth[/slot] thing!",
		"Test [slot]1[/slot]...",
		"Test [slot]2[/slot]...",
		"Test [slot]3[/slot]...",
		"Test [slot]4[/slot]...",
	})
	require.Equal(t, "Test fifth thing!", renderText(t, p, map[string]string{"slot": "fifth"}))
	require.Equal(t, "Test 9...", renderText(t, p, map[string]string{"slot": "9"}))
	require.Equal(t, "Test 1...", renderText(t, p, map[string]string{"slot": "1"}))
}

func TestRender_InsertTokensInMiddle(t *testing.T) {
	p := train(t, []string{
		"^[slot]seattle[/slot] at [time]5:PM[/time]$",
		"^[slot]seattle[/slot] at [time]3:PM[/time]$",
		"^[slot]seattle[/slot] at [time]2:PM[/time]$",
		"^[slot]seattle[/slot] at [time]8:PM[/time]$",
		"^[slot]seattle[/slot]%[time]tonight[/time]$",
		"^[slot]seattle[/slot]%[time]tonight[/time]$",
		"^[slot]seattle[/slot]%[time]tonight[/time]$",
		"^[slot]seattle[/slot]%[time]tonight[/time]$",
	})
	require.Equal(t, "^somewhere at 5:AM$", renderText(t, p, map[string]string{"slot": "somewhere", "time": "5:AM"}))
	require.Equal(t, "^somewhere%tonight$", renderText(t, p, map[string]string{"slot": "somewhere", "time": "tonight"}))
}

func TestRender_SSML(t *testing.T) {
	p := train(t, ssmlLines)
	subs := map[string]string{"ingredient_count": "2", "step_count": "1"}

	require.Equal(t, "This recipe needs 2 ingredients and has 1 step.", renderText(t, p, subs))

	spoken, err := p.Render(subs, true, quietLogger())
	require.NoError(t, err)
	require.Contains(t, spoken, `This <sub alias="recipe">recipe</sub> needs <emphasis>2 ingredients and has 1 step.</emphasis><break/>`)
	require.True(t, strings.HasPrefix(spoken, `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="en-US">`))
	require.True(t, strings.HasSuffix(spoken, "</speak>"))
}

func TestRender_SubstitutesInsideSSMLAttributes(t *testing.T) {
	p := train(t, []string{
		`<p>I <prosody><prosody name="[emo]confident[/emo]" value="0.4"/>found</prosody> <say-as interpret-as="digits">[slot1]3[/slot1]</say-as> results.</p>`,
	})
	subs := map[string]string{"slot1": "10", "emo": "exuberant"}

	require.Equal(t, "I found 10 results.", renderText(t, p, subs))

	spoken, err := p.Render(subs, true, quietLogger())
	require.NoError(t, err)
	require.Equal(t, `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="en-US">`+
		`<p>I <prosody><prosody name="exuberant" value="0.4"/>found</prosody> <say-as interpret-as="digits">10</say-as> results.</p></speak>`, spoken)
}

func TestRender_TextIsStrippedSSML(t *testing.T) {
	cases := []struct {
		lines []string
		subs  []map[string]string
	}{
		{ssmlLines, []map[string]string{
			{"ingredient_count": "1", "step_count": "1"},
			{"ingredient_count": "7", "step_count": "3"},
			{},
		}},
		{weatherLines, []map[string]string{
			{"day": "21", "condition": "windy", "temp": "1"},
			{"day": "4"},
		}},
	}
	const open = `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="en-US">`
	for _, c := range cases {
		p := train(t, c.lines)
		for _, subs := range c.subs {
			text := renderText(t, p, subs)
			spoken, err := p.Render(subs, true, quietLogger())
			require.NoError(t, err)
			inner := strings.TrimSuffix(strings.TrimPrefix(spoken, open), "</speak>")
			require.Equal(t, StripSSML(inner), text)
		}
	}
}

func TestRender_PreservesWhitespace(t *testing.T) {
	p := train(t, []string{
		"%This%is$[slot]a%test[/slot]$of%whitespace%",
		"%This%is$[slot]the%best%test[/slot]$of%whitespace%",
	})
	require.Equal(t, "%This%is$^a$test^$of%whitespace%", renderText(t, p, map[string]string{"slot": "^a$test^"}))

	p = train(t, []string{
		"%[slot1]New York[/slot1]$[slot2]city[/slot2]$is$[slot3]partly cloudy[/slot3]%",
		"%[slot1]San Francisco[/slot1]$[slot2]city[/slot2]$is$[slot3]foggy[/slot3]%",
	})
	require.Equal(t, "%Des Moines$county$is$in space%",
		renderText(t, p, map[string]string{"slot1": "Des Moines", "slot2": "county", "slot3": "in space"}))

	p = train(t, []string{
		"<!_ [slot1]New York[/slot1] [slot2]Knicks[/slot2] _!>",
		"<!_ [slot1]Seattle[/slot1] [slot2]Sonics[/slot2] _!>",
	})
	require.Equal(t, "<!_ Seattle Sonics _!>", renderText(t, p, map[string]string{"slot1": "Seattle", "slot2": "Sonics"}))
}

func TestRender_Empty(t *testing.T) {
	p := train(t, nil)
	require.Equal(t, "", renderText(t, p, map[string]string{}))
}

func TestRender_DateOrdinals(t *testing.T) {
	p := train(t, []string{
		"On [day]January 1[/day]st.",
		"On [day]February 2[/day]nd.",
		"On [day]March 3[/day]rd.",
		"On [day]April 4[/day]th.",
		"On [day]May 5[/day]th.",
		"On [day]June 6[/day]th.",
		"On [day]July 7[/day]th.",
		"On [day]August 8[/day]th.",
		"On [day]September 9[/day]th.",
		"On [day]October 21[/day]st.",
		"On [day]November 22[/day]nd.",
		"On [day]December 23[/day]rd.",
	})
	for day, want := range map[string]string{
		"March 2":     "On March 2nd.",
		"October 31":  "On October 31st.",
		"June 11":     "On June 11th.",
		"April 22":    "On April 22nd.",
		"November 28": "On November 28th.",
	} {
		require.Equal(t, want, renderText(t, p, map[string]string{"day": day}), day)
	}
}

func TestRender_EmptySlotsSteerStructure(t *testing.T) {
	var lines []string
	add := func(n int, line string) {
		for i := 0; i < n; i++ {
			lines = append(lines, line)
		}
	}
	add(7, "You have a meeting at [time_1]1:00[/time_1] [time_2][/time_2][time_3][/time_3]today.")
	add(7, "You have meetings at [time_1]1:00[/time_1] and [time_2]1:00[/time_2] [time_3][/time_3]today.")
	add(7, "You have meetings at [time_1]1:00[/time_1], [time_2]1:00[/time_2], and [time_3]1:00[/time_3] today.")
	p := train(t, lines)

	subs := map[string]string{"time_1": "7:00"}
	require.Equal(t, "You have a meeting at 7:00 today.", renderText(t, p, subs))
	subs["time_2"] = "4:30"
	require.Equal(t, "You have meetings at 7:00 and 4:30 today.", renderText(t, p, subs))
	subs["time_3"] = "2:30"
	require.Equal(t, "You have meetings at 7:00, 4:30, and 2:30 today.", renderText(t, p, subs))
}

func TestRender_EmptySlotsBetweenAdjacentSlots(t *testing.T) {
	var lines []string
	add := func(n int, line string) {
		for i := 0; i < n; i++ {
			lines = append(lines, line)
		}
	}
	add(1, "[lightness][/lightness][saturation]vivid[/saturation]")
	add(1, "[lightness]dark[/lightness] [saturation]vivid[/saturation]")
	add(1, "[lightness]light[/lightness] [saturation]vivid[/saturation]")
	add(1, "[lightness]dark[/lightness] [saturation]dull[/saturation]")
	add(2, "[lightness]light[/lightness] [saturation]dull[/saturation]")
	add(2, "[lightness]dark[/lightness] [saturation]vivid[/saturation]")
	add(4, "[lightness]dark[/lightness][saturation][/saturation]")
	add(3, "[lightness]light[/lightness][saturation][/saturation]")
	add(3, "[lightness][/lightness][saturation]vivid[/saturation]")
	add(3, "[lightness][/lightness][saturation]dull[/saturation]")
	add(7, "[lightness][/lightness][saturation][/saturation]")
	p := train(t, lines)

	subs := map[string]string{}
	require.Equal(t, "", renderText(t, p, subs))
	subs["lightness"] = "dark"
	require.Equal(t, "dark", renderText(t, p, subs))
	subs["saturation"] = "vivid"
	require.Equal(t, "dark vivid", renderText(t, p, subs))
	delete(subs, "lightness")
	require.Equal(t, "vivid", renderText(t, p, subs))
}

func TestRender_InvalidTransition(t *testing.T) {
	p := &Phrase{
		name:   "Broken",
		locale: language.AmericanEnglish,
		groups: []lattice.Group{
			{Forms: []lattice.SurfaceForm{{{Text: "Hello", Post: " "}}}},
			{Forms: []lattice.SurfaceForm{{{Text: "a"}}, {{Text: "b"}}}},
		},
		tagToGroup: map[string]int{},
		groupToTag: map[int]string{},
		models: []*maxent.Model{
			nil,
			maxent.Train([]maxent.Event{{Label: 5, Features: []string{"bias"}}}, maxent.Options{}),
		},
		features: english.NewFeatureExtractor(),
	}

	_, err := p.Render(nil, false, quietLogger())
	require.ErrorIs(t, err, ErrInvalidTransition)
	var rerr *RenderError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "Broken", rerr.Model)
	require.Equal(t, "Hello ", rerr.Partial)
}

func TestHashLines(t *testing.T) {
	a := HashLines(weatherLines)
	require.Equal(t, a, HashLines(append([]string(nil), weatherLines...)))

	changed := append([]string(nil), weatherLines...)
	changed[7] = strings.Replace(changed[7], "cloudy", "cloudz", 1)
	require.NotEqual(t, a, HashLines(changed))
	require.Equal(t, int32(0), HashLines(nil))
}

func TestCodec_RoundTripRendersIdentically(t *testing.T) {
	p := train(t, weatherLines)
	var buf bytes.Buffer
	require.NoError(t, p.Encode(&buf))

	back, err := Decode(bytes.NewReader(buf.Bytes()), english.NewFeatureExtractor(), DecodeOptions{Hash: p.Hash()})
	require.NoError(t, err)
	require.Equal(t, p.Name(), back.Name())
	require.Equal(t, language.AmericanEnglish, back.Locale())
	require.Equal(t, p.Dump(), back.Dump())

	for _, subs := range []map[string]string{
		{"day": "2", "condition": "overcast", "temp": "1"},
		{"day": "13", "condition": "rainy", "temp": "40"},
		{},
	} {
		for _, ssml := range []bool{false, true} {
			want, err := p.Render(subs, ssml, quietLogger())
			require.NoError(t, err)
			got, err := back.Render(subs, ssml, quietLogger())
			require.NoError(t, err)
			require.Equal(t, want, got)
		}
	}
}

func TestCodec_Rejections(t *testing.T) {
	p := train(t, weatherLines)
	var buf bytes.Buffer
	require.NoError(t, p.Encode(&buf))
	data := buf.Bytes()

	_, err := Decode(bytes.NewReader(data), english.NewFeatureExtractor(), DecodeOptions{Hash: p.Hash() + 1})
	require.ErrorIs(t, err, ErrCacheHash)

	_, err = Decode(bytes.NewReader(data), english.NewFeatureExtractor(), DecodeOptions{Hash: p.Hash() + 1, Force: true})
	require.NoError(t, err)

	old := append([]byte{6, 0, 0, 0}, data[4:]...)
	_, err = Decode(bytes.NewReader(old), english.NewFeatureExtractor(), DecodeOptions{Hash: p.Hash()})
	require.ErrorIs(t, err, ErrCacheVersion)

	_, err = Decode(bytes.NewReader(data[:len(data)/2]), english.NewFeatureExtractor(), DecodeOptions{Hash: p.Hash()})
	require.ErrorIs(t, err, ErrCacheCorrupt)

	_, err = Decode(bytes.NewReader(data), nil, DecodeOptions{Force: true})
	require.Error(t, err)
}

func TestCache_LoadOrTrain(t *testing.T) {
	mem := afero.NewMemMapFs()
	cache := NewCache(mem, "/cache", "testdomain", quietLogger())
	tools := english.Tools()
	opts := Options{Logger: quietLogger()}

	require.Equal(t, "/cache/en-US/testdomain Weather.lg", cache.Path("Weather", language.AmericanEnglish))

	_, cached := cache.LoadOrTrain("Weather", language.AmericanEnglish, weatherLines, tools, opts)
	require.False(t, cached)
	exists, err := afero.Exists(mem, "/cache/en-US/testdomain Weather.lg")
	require.NoError(t, err)
	require.True(t, exists)

	_, cached = cache.LoadOrTrain("Weather", language.AmericanEnglish, weatherLines, tools, opts)
	require.True(t, cached)

	// Loading without training data skips the fingerprint check.
	forced, err := cache.Load("Weather", language.AmericanEnglish, tools.Features, DecodeOptions{Force: true})
	require.NoError(t, err)
	assertWeather(t, forced)

	changed := append([]string(nil), weatherLines...)
	changed[0] = strings.Replace(changed[0], "cloudy", "Cloudy", 1)
	_, cached = cache.LoadOrTrain("Weather", language.AmericanEnglish, changed, tools, opts)
	require.False(t, cached)
	_, cached = cache.LoadOrTrain("Weather", language.AmericanEnglish, changed, tools, opts)
	require.True(t, cached)

	_, err = cache.Load("Missing", language.AmericanEnglish, tools.Features, DecodeOptions{})
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestCache_CorruptFileIsRetrained(t *testing.T) {
	mem := afero.NewMemMapFs()
	var logs bytes.Buffer
	cache := NewCache(mem, "/cache", "d", slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, afero.WriteFile(mem, cache.Path("M", language.AmericanEnglish), []byte{7, 0, 0, 0, 200}, 0o644))

	p, cached := cache.LoadOrTrain("M", language.AmericanEnglish, []string{"Hi [who]you[/who]."}, english.Tools(), Options{Logger: quietLogger()})
	require.False(t, cached)
	require.Equal(t, "Hi Bob.", renderText(t, p, map[string]string{"who": "Bob"}))
	require.Contains(t, logs.String(), "loading cached model failed")
}

func TestDump(t *testing.T) {
	p := train(t, []string{"It is [c]cold[/c] today.", "It is [c]hot[/c] today."})
	require.Equal(t, Dump{
		Name:   "TestPhrase",
		Locale: "en-US",
		Hash:   p.Hash(),
		Groups: []GroupDump{
			{Forms: []string{"It is "}},
			{Slot: "c", Forms: []string{"cold"}},
			{Forms: []string{" today."}},
		},
	}, p.Dump())
}
