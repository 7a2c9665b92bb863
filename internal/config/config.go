// Package config loads gateway configuration from YAML with environment
// overrides, and supports hot reload via filesystem watching.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	Upstream  Upstream  `yaml:"upstream"`
	Reasoning Reasoning `yaml:"reasoning"`
	Models    Models    `yaml:"models"`
	Auth      Auth      `yaml:"auth"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Usage     Usage     `yaml:"usage"`

	// Instructions is the base instructions text sent with every request.
	Instructions string `yaml:"instructions"`
	// Verbose enables request/response debug dumps.
	Verbose bool `yaml:"verbose"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Logging struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type Upstream struct {
	// URL wins over BaseURL+Path when set.
	URL     string `yaml:"url"`
	BaseURL string `yaml:"base_url"`
	Path    string `yaml:"path"`

	AuthMode  string `yaml:"auth_mode"`
	APIKeyEnv string `yaml:"api_key_env"`
	AuthFile  string `yaml:"auth_file"`

	ForwardPolicy   string            `yaml:"forward_policy"`
	ForwardHeaders  []string          `yaml:"forward_headers"`
	OverrideHeaders map[string]string `yaml:"override_headers"`

	Include    []string `yaml:"include"`
	ToolSchema string   `yaml:"tool_schema"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
}

func (u Upstream) Timeout() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

type Reasoning struct {
	Compat  string `yaml:"compat"`
	Effort  string `yaml:"effort"`
	Summary string `yaml:"summary"`
}

type Models struct {
	Default  string            `yaml:"default"`
	Override string            `yaml:"override"`
	Aliases  map[string]string `yaml:"aliases"`
}

type Auth struct {
	// APIKeys gates inbound requests; empty disables the gate.
	APIKeys []string `yaml:"api_keys"`
}

type RateLimit struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

type Usage struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: Server{Host: "0.0.0.0", Port: 8000},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Upstream: Upstream{
			AuthMode:      "chatgpt_token",
			AuthFile:      "~/.codex/auth.json",
			ForwardPolicy: "off",
			ToolSchema:    "flat",
			Include:       []string{"reasoning.encrypted_content"},
		},
		Reasoning: Reasoning{Compat: "tagged", Effort: "medium", Summary: "auto"},
		Models:    Models{Default: "gpt-5"},
		Usage:     Usage{DBPath: "~/.codex-openai-wrapper/usage.db", RetentionDays: 30},
	}
}

// Load reads the YAML file at path (optional), layers .env and process
// environment overrides on top of the defaults, and validates the result.
func Load(path string) (*Config, error) {
	// Missing .env is not an error.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the CODEX_* environment variables.
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setString("CODEX_UPSTREAM_URL", &cfg.Upstream.URL)
	setString("CODEX_UPSTREAM_BASE_URL", &cfg.Upstream.BaseURL)
	setString("CODEX_AUTH_MODE", &cfg.Upstream.AuthMode)
	setString("CODEX_AUTH_FILE", &cfg.Upstream.AuthFile)
	setString("CODEX_API_KEY_ENV", &cfg.Upstream.APIKeyEnv)
	setString("CODEX_REASONING_COMPAT", &cfg.Reasoning.Compat)
	setString("CODEX_REASONING_EFFORT", &cfg.Reasoning.Effort)
	setString("CODEX_REASONING_SUMMARY", &cfg.Reasoning.Summary)
	setString("CODEX_DEFAULT_MODEL", &cfg.Models.Default)
	setString("CODEX_MODEL_OVERRIDE", &cfg.Models.Override)
	setString("CODEX_INSTRUCTIONS", &cfg.Instructions)
	setString("CODEX_LOG_LEVEL", &cfg.Logging.Level)

	if v, ok := os.LookupEnv("CODEX_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v, ok := os.LookupEnv("CODEX_API_KEYS"); ok && v != "" {
		var keys []string
		for _, key := range strings.Split(v, ",") {
			if key = strings.TrimSpace(key); key != "" {
				keys = append(keys, key)
			}
		}
		cfg.Auth.APIKeys = keys
	}
	if v, ok := os.LookupEnv("CODEX_VERBOSE"); ok {
		cfg.Verbose = v == "1" || strings.EqualFold(v, "true")
	}
}

var validAuthModes = map[string]bool{
	"chatgpt_token":    true,
	"apikey_env":       true,
	"apikey_auth_json": true,
}

var validForwardPolicies = map[string]bool{
	"off": true, "safe": true, "list": true, "override": true, "override-codex": true,
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if !validAuthModes[c.Upstream.AuthMode] {
		return fmt.Errorf("unknown auth_mode %q", c.Upstream.AuthMode)
	}
	if c.Upstream.AuthMode == "apikey_env" && c.Upstream.APIKeyEnv == "" {
		return fmt.Errorf("auth_mode apikey_env requires api_key_env")
	}
	if c.Upstream.ForwardPolicy != "" && !validForwardPolicies[c.Upstream.ForwardPolicy] {
		return fmt.Errorf("unknown forward_policy %q", c.Upstream.ForwardPolicy)
	}
	if c.Upstream.ToolSchema != "" && c.Upstream.ToolSchema != "flat" && c.Upstream.ToolSchema != "nested" {
		return fmt.Errorf("unknown tool_schema %q", c.Upstream.ToolSchema)
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate_limit.rps must be positive when enabled")
	}
	return nil
}
