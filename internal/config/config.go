package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides; "__" separates key levels, as
// in PHASEMUX_SERVER__PORT.
const EnvPrefix = "PHASEMUX_"

type Config struct {
	Server     ServerConfig   `koanf:"server"`
	Log        LogConfig      `koanf:"log"`
	Tracing    TracingConfig  `koanf:"tracing"`
	Phases     []string       `koanf:"phases"`
	Middleware []Middleware   `koanf:"middleware"`
	Settings   map[string]any `koanf:"settings"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	ShutdownTimeout string `koanf:"shutdown_timeout"` // Duration string like "30s"
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// Middleware declares one catalog middleware registration.
type Middleware struct {
	Name string `koanf:"name"`
	// Enabled defaults to true; a disabled entry is skipped entirely.
	Enabled *bool  `koanf:"enabled"`
	Phase   string `koanf:"phase"`
	// Paths is a scope: a prefix, a "^" pattern, or a list of those.
	Paths any `koanf:"paths"`
	// Params is a single factory argument, or a list spread as arguments.
	Params any `koanf:"params"`
}

// IsEnabled reports whether the entry should be registered.
func (m Middleware) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// SlogLevel parses the configured level, defaulting to info.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (a missing file is not an error) and applies environment
// overrides and defaults on top.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	defaults := map[string]any{
		"server.port":             8080,
		"server.shutdown_timeout": "30s",
		"log.level":               "info",
		"log.format":              "json",
		"tracing.service_name":    "phasemux",
	}
	for key, v := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in middleware declarations
	for i := range cfg.Middleware {
		cfg.Middleware[i].Paths = substituteAll(cfg.Middleware[i].Paths)
		cfg.Middleware[i].Params = substituteAll(cfg.Middleware[i].Params)
	}

	return &cfg, nil
}

func substituteAll(v any) any {
	switch t := v.(type) {
	case string:
		return substituteEnvVars(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = substituteAll(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, item := range t {
			out[key] = substituteAll(item)
		}
		return out
	}
	return v
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
