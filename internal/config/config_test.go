package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8000 || cfg.Upstream.AuthMode != "chatgpt_token" {
		t.Errorf("defaults: %+v", cfg)
	}
	if cfg.Reasoning.Compat != "tagged" {
		t.Errorf("default compat = %q", cfg.Reasoning.Compat)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
upstream:
  base_url: https://proxy.example.com
  auth_mode: apikey_env
  api_key_env: UPSTREAM_KEY
  tool_schema: nested
reasoning:
  compat: openai
models:
  default: gpt-5
  aliases:
    gpt-4o: gpt-5
rate_limit:
  enabled: true
  rps: 5
  burst: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Upstream.BaseURL != "https://proxy.example.com" || cfg.Upstream.ToolSchema != "nested" {
		t.Errorf("upstream: %+v", cfg.Upstream)
	}
	if cfg.Models.Aliases["gpt-4o"] != "gpt-5" {
		t.Errorf("aliases: %+v", cfg.Models.Aliases)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RPS != 5 {
		t.Errorf("rate limit: %+v", cfg.RateLimit)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CODEX_PORT", "9999")
	t.Setenv("CODEX_REASONING_COMPAT", "o3")
	t.Setenv("CODEX_API_KEYS", "k1, k2 ,")
	t.Setenv("CODEX_VERBOSE", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Reasoning.Compat != "o3" {
		t.Errorf("compat = %q", cfg.Reasoning.Compat)
	}
	if len(cfg.Auth.APIKeys) != 2 || cfg.Auth.APIKeys[1] != "k2" {
		t.Errorf("api keys: %+v", cfg.Auth.APIKeys)
	}
	if !cfg.Verbose {
		t.Error("verbose not set")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad auth mode", func(c *Config) { c.Upstream.AuthMode = "password" }},
		{"apikey_env without var", func(c *Config) { c.Upstream.AuthMode = "apikey_env"; c.Upstream.APIKeyEnv = "" }},
		{"bad forward policy", func(c *Config) { c.Upstream.ForwardPolicy = "all" }},
		{"bad tool schema", func(c *Config) { c.Upstream.ToolSchema = "both" }},
		{"rate limit without rps", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.RPS = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestWatchReload(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8000\n")

	reloaded := make(chan *Config, 1)
	stop, err := Watch(path, func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	if err := os.WriteFile(path, []byte("server:\n  port: 8123\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Server.Port != 8123 {
			t.Errorf("reloaded port = %d", cfg.Server.Port)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}
