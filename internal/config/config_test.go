package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8081, cfg.Server.HealthPort)
	require.Equal(t, 8080, cfg.Transports.HTTP.Port)
	require.Equal(t, 50051, cfg.Transports.GRPC.Port)
	require.Equal(t, "default", cfg.Engine.Domain)
	require.Equal(t, []string{"./templates/*.ini"}, cfg.Engine.Templates)
	require.True(t, cfg.Engine.Cache.Enabled)
	require.Equal(t, "./cache", cfg.Engine.Cache.Dir)
	require.Equal(t, 16, cfg.Engine.MaxRenderDepth)
	require.Equal(t, uint64(3), cfg.Engine.Seed)
	require.Equal(t, "cel", cfg.Engine.ScriptCompiler)
	require.Equal(t, []string{"en-US"}, cfg.NLP.Locales)
	require.Equal(t, 200, cfg.Classifier.Iterations)
	require.InDelta(t, 0.5, cfg.Classifier.LearningRate, 1e-9)
	require.True(t, cfg.Render.SanitizeSubstitutions)
	require.Equal(t, "en-US", cfg.Render.DefaultLocale)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "statlg.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
engine:
  domain: weather
  templates: ["/srv/lg/*.ini", "/srv/lg/extra/*.ini"]
  cache:
    enabled: false
render:
  client_token: ${STATLG_TEST_TOKEN}
logging:
  level: debug
`), 0o644))
	t.Setenv("STATLG_TRANSPORTS_GRPC_ENABLED", "false")
	t.Setenv("STATLG_TEST_TOKEN", "s3cret")

	cfg, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, "weather", cfg.Engine.Domain)
	require.Equal(t, []string{"/srv/lg/*.ini", "/srv/lg/extra/*.ini"}, cfg.Engine.Templates)
	require.False(t, cfg.Engine.Cache.Enabled)
	require.False(t, cfg.Transports.GRPC.Enabled)
	require.Equal(t, "s3cret", cfg.Render.ClientToken)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidCompiler(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STATLG_ENGINE_SCRIPT_COMPILER", "lua")

	_, err := Load("")
	require.ErrorContains(t, err, `unknown script compiler "lua"`)
}

func TestResolveEnvRef(t *testing.T) {
	t.Setenv("STATLG_REF", "value")
	require.Equal(t, "value", resolveEnvRef("${STATLG_REF}"))
	require.Equal(t, "${STATLG_UNSET_REF}", resolveEnvRef("${STATLG_UNSET_REF}"))
	require.Equal(t, "plain", resolveEnvRef("plain"))
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(LoggingConfig{Level: "warn", Format: "text"}, &buf))
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "msg=shown k=v")
}
