// Package config loads editor configuration from a TOML file with
// environment variable overrides. Settings group into sections for
// identity, collaboration, AI generation, code formatting and logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Errors returned by the loader.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrParseFailed   = errors.New("config parse failed")
)

// EnvPrefix prefixes every override variable, e.g. INKWELL_ROOM.
const EnvPrefix = "INKWELL_"

// Identity configures how the local user appears to collaborators.
type Identity struct {
	Name  string `toml:"name"`
	Color string `toml:"color"`
}

// Collab configures the collaboration transport.
type Collab struct {
	ServerURL string `toml:"server_url"`
	Room      string `toml:"room"`
	Enabled   bool   `toml:"enabled"`
}

// AI configures text generation. Provider selects "openai",
// "anthropic", "http" or "offline"; an empty provider picks the first
// one with a usable key, falling back to offline.
type AI struct {
	Provider        string `toml:"provider"`
	OpenAIKey       string `toml:"openai_key"`
	AnthropicKey    string `toml:"anthropic_key"`
	Model           string `toml:"model"`
	Endpoint        string `toml:"endpoint"`
	MaxContextRunes int    `toml:"max_context_runes"`
}

// Format configures code block formatting.
type Format struct {
	Enabled        bool   `toml:"enabled"`
	Command        string `toml:"command"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Log configures logging.
type Log struct {
	Level string `toml:"level"`
}

// Config is the full editor configuration.
type Config struct {
	Identity Identity `toml:"identity"`
	Collab   Collab   `toml:"collab"`
	AI       AI       `toml:"ai"`
	Format   Format   `toml:"format"`
	Log      Log      `toml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Collab: Collab{
			ServerURL: "ws://127.0.0.1:1234",
			Room:      "inkwell-default",
		},
		AI: AI{
			MaxContextRunes: 6000,
		},
		Format: Format{
			Enabled:        true,
			TimeoutSeconds: 10,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file location under the user
// config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "inkwell.toml"
	}
	return filepath.Join(dir, "inkwell", "inkwell.toml")
}

// Load reads the config file at path, layering it over Default and
// applying environment overrides. A missing file is not an error; the
// defaults plus environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrParseFailed, path, err)
		}
	case os.IsNotExist(err):
		// Defaults apply.
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers INKWELL_* environment variables over the file.
func applyEnv(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	setStr("NAME", &cfg.Identity.Name)
	setStr("COLOR", &cfg.Identity.Color)
	setStr("SERVER_URL", &cfg.Collab.ServerURL)
	setStr("ROOM", &cfg.Collab.Room)
	setStr("AI_PROVIDER", &cfg.AI.Provider)
	setStr("OPENAI_API_KEY", &cfg.AI.OpenAIKey)
	setStr("ANTHROPIC_API_KEY", &cfg.AI.AnthropicKey)
	setStr("AI_MODEL", &cfg.AI.Model)
	setStr("AI_ENDPOINT", &cfg.AI.Endpoint)
	setStr("LOG_LEVEL", &cfg.Log.Level)

	if v, ok := os.LookupEnv(EnvPrefix + "COLLAB"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Collab.Enabled = b
		}
	}
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	if c.Collab.Enabled && c.Collab.ServerURL == "" {
		return fmt.Errorf("%w: collab.server_url required when collab.enabled", ErrInvalidConfig)
	}
	switch strings.ToLower(c.AI.Provider) {
	case "", "openai", "anthropic", "http", "offline":
	default:
		return fmt.Errorf("%w: ai.provider %q", ErrInvalidConfig, c.AI.Provider)
	}
	if strings.ToLower(c.AI.Provider) == "http" && c.AI.Endpoint == "" {
		return fmt.Errorf("%w: ai.endpoint required for the http provider", ErrInvalidConfig)
	}
	if c.AI.MaxContextRunes < 0 {
		return fmt.Errorf("%w: ai.max_context_runes must be >= 0", ErrInvalidConfig)
	}
	if c.Format.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: format.timeout_seconds must be >= 0", ErrInvalidConfig)
	}
	return nil
}
