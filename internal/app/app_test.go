package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/nadzzz/statlg/internal/config"
	"github.com/nadzzz/statlg/internal/lg"
)

const weather = `[Engine:statistical]
[Locales:en-US,en-GB]

[Model:Temp]
It is [temp]20[/temp] degrees.

[Phrase:Weather]
TextModel=Temp
Script=Heat

[Phrase:HotWeather]
Text=It is a scorching [temp]40[/temp] degrees!

[Script:Heat]
PhraseName = double(subs.temp) > 90.0 ? "HotWeather" : phrase
`

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			Domain:         "weather",
			Templates:      []string{"/lg/*.ini"},
			Cache:          config.CacheConfig{Enabled: true, Dir: "/cache"},
			MaxRenderDepth: 16,
			Seed:           3,
			ScriptCompiler: "cel",
		},
		NLP:        config.NLPConfig{Locales: []string{"en-US"}},
		Classifier: config.ClassifierConfig{Iterations: 200, LearningRate: 0.5, L2: 0.001},
	}
}

func TestNewEngine(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/lg/weather.ini", []byte(weather), 0o644))

	e, err := NewEngine(context.Background(), testConfig(), fsys, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.Equal(t, []string{"hotweather", "weather"}, e.GetAllPatternNames())

	client := lg.ClientContext{Locale: language.BritishEnglish}
	res, err := e.Render(context.Background(), "Weather", client, map[string]any{"temp": 72})
	require.NoError(t, err)
	require.Equal(t, "It is 72 degrees.", res.Text)

	res, err = e.Render(context.Background(), "Weather", client, map[string]any{"temp": 97})
	require.NoError(t, err)
	require.Equal(t, "It is a scorching 97 degrees!", res.Text)

	exists, err := afero.Exists(fsys, "/cache/en-US/weather Temp.lg")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestTools(t *testing.T) {
	tools, err := Tools(config.NLPConfig{Locales: []string{"en-US", "en-AU", ""}})
	require.NoError(t, err)
	require.ElementsMatch(t, []language.Tag{language.AmericanEnglish, language.MustParse("en-AU")}, tools.Locales())

	_, err = Tools(config.NLPConfig{Locales: []string{"!!"}})
	require.Error(t, err)
}

func TestCompiler(t *testing.T) {
	c, err := Compiler("cel")
	require.NoError(t, err)
	require.Equal(t, "cel", c.Name())

	c, err = Compiler("none")
	require.NoError(t, err)
	require.Equal(t, "none", c.Name())

	_, err = Compiler("lua")
	require.Error(t, err)
}

func TestFileSystem(t *testing.T) {
	require.IsType(t, &afero.OsFs{}, FileSystem(config.EngineConfig{}))
	require.IsType(t, &afero.BasePathFs{}, FileSystem(config.EngineConfig{Root: t.TempDir()}))
}
