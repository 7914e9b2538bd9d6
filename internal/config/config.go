// Package config handles loading and validating the statlg configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration for the statlg daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transports TransportsConfig `mapstructure:"transports"`
	Engine     EngineConfig     `mapstructure:"engine"`
	NLP        NLPConfig        `mapstructure:"nlp"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Render     RenderConfig     `mapstructure:"render"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// EngineConfig configures template loading and the model cache.
type EngineConfig struct {
	Domain    string   `mapstructure:"domain"`
	Templates []string `mapstructure:"templates"` // glob patterns, relative to Root
	// Root confines template and cache access to a directory. Empty means
	// the OS file system as is.
	Root           string      `mapstructure:"root"`
	Cache          CacheConfig `mapstructure:"cache"`
	MaxRenderDepth int         `mapstructure:"max_render_depth"`
	Seed           uint64      `mapstructure:"seed"`
	ScriptCompiler string      `mapstructure:"script_compiler"` // "cel" or "none"
	Debug          bool        `mapstructure:"debug"`
}

// CacheConfig configures the trained model cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// NLPConfig lists the locales served by the built-in English tools.
type NLPConfig struct {
	Locales []string `mapstructure:"locales"`
}

// ClassifierConfig tunes decision model training.
type ClassifierConfig struct {
	Iterations   int     `mapstructure:"iterations"`
	LearningRate float64 `mapstructure:"learning_rate"`
	L2           float64 `mapstructure:"l2"`
}

// RenderConfig controls request handling.
type RenderConfig struct {
	// SanitizeSubstitutions strips markup other than SSML from caller values.
	SanitizeSubstitutions bool   `mapstructure:"sanitize_substitutions"`
	DefaultLocale         string `mapstructure:"default_locale"`
	// ClientToken, when set, is required in the X-Statlg-Token header.
	ClientToken string `mapstructure:"client_token"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./statlg.yaml, ./configs/statlg.yaml, /etc/statlg/statlg.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", true)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("engine.domain", "default")
	v.SetDefault("engine.templates", []string{"./templates/*.ini"})
	v.SetDefault("engine.root", "")
	v.SetDefault("engine.cache.enabled", true)
	v.SetDefault("engine.cache.dir", "./cache")
	v.SetDefault("engine.max_render_depth", 16)
	v.SetDefault("engine.seed", 3)
	v.SetDefault("engine.script_compiler", "cel")
	v.SetDefault("engine.debug", false)
	v.SetDefault("nlp.locales", []string{"en-US"})
	v.SetDefault("classifier.iterations", 200)
	v.SetDefault("classifier.learning_rate", 0.5)
	v.SetDefault("classifier.l2", 0.001)
	v.SetDefault("render.sanitize_substitutions", true)
	v.SetDefault("render.default_locale", "en-US")
	v.SetDefault("render.client_token", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("statlg")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/statlg")
	}

	// Environment variables: STATLG_SERVER_HEALTH_PORT, STATLG_ENGINE_DOMAIN, etc.
	v.SetEnvPrefix("STATLG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional, env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${STATLG_TOKEN}")
	cfg.Render.ClientToken = resolveEnvRef(cfg.Render.ClientToken)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that defaults cannot guarantee.
func (c *Config) Validate() error {
	switch c.Engine.ScriptCompiler {
	case "cel", "none":
	default:
		return fmt.Errorf("unknown script compiler %q (want cel or none)", c.Engine.ScriptCompiler)
	}
	if len(c.Engine.Templates) == 0 {
		return fmt.Errorf("engine.templates must list at least one glob")
	}
	if c.Engine.Cache.Enabled && c.Engine.Cache.Dir == "" {
		return fmt.Errorf("engine.cache.dir is required when the cache is enabled")
	}
	if c.Classifier.Iterations < 0 || c.Classifier.LearningRate < 0 || c.Classifier.L2 < 0 {
		return fmt.Errorf("classifier settings must not be negative")
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	slog.SetDefault(slog.New(NewHandler(cfg, os.Stdout)))
}

// NewHandler builds the slog handler described by cfg.
func NewHandler(cfg LoggingConfig, w io.Writer) slog.Handler {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
