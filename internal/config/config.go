// Package config loads and stores sqlpilot configuration in the XDG config dir.
// Settings follow a file-then-environment precedence: the JSON config file
// provides the base values and environment variables override them, so a
// deployment can keep secrets out of the file entirely.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"sqlpilot/internal/xdg"
)

// Config holds all sqlpilot settings.
type Config struct {
	LogLevel string        `json:"log_level"`
	DB       DBConfig      `json:"db"`
	LLM      LLMConfig     `json:"llm"`
	Sandbox  SandboxConfig `json:"sandbox"`
	Pipeline PipelineConfig `json:"pipeline"`
}

// DBConfig holds database connection settings.
type DBConfig struct {
	DSN string `json:"dsn"`
}

// LLMConfig holds language-model provider settings. The base URL selects any
// OpenAI-compatible endpoint (DeepSeek, Qwen dashscope, OpenAI).
type LLMConfig struct {
	Provider    string  `json:"provider"`
	APIKey      string  `json:"api_key,omitempty"`
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TimeoutSec  int     `json:"timeout_sec"`
}

// SandboxConfig holds SQL safety settings.
type SandboxConfig struct {
	Enabled           bool     `json:"enabled"`
	MaxRows           int      `json:"max_rows"`
	DefaultLimit      int      `json:"default_limit"`
	MaxExecutionMS    int      `json:"max_execution_ms"`
	ForbiddenKeywords []string `json:"forbidden_keywords,omitempty"`
}

// PipelineConfig holds orchestration limits.
type PipelineConfig struct {
	MaxRegenerations  int `json:"max_regenerations"`
	MaxClarifications int `json:"max_clarifications"`
	MaxHistory        int `json:"max_history"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		DB:       DBConfig{}, // no default DSN, fail-fast if not provided
		LLM: LLMConfig{
			Provider:    "deepseek",
			BaseURL:     "https://api.deepseek.com/v1",
			Model:       "deepseek-chat",
			Temperature: 0,
			MaxTokens:   2000,
			TimeoutSec:  30,
		},
		Sandbox: SandboxConfig{
			Enabled:        true,
			MaxRows:        1000,
			DefaultLimit:   200,
			MaxExecutionMS: 3000,
		},
		Pipeline: PipelineConfig{
			MaxRegenerations:  3,
			MaxClarifications: 3,
			MaxHistory:        10,
		},
	}
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; missing file returns defaults.
// Environment variables override file values in both cases.
func Load() (Config, error) {
	c := Default()
	p, err := path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&c)
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	applyEnv(&c)
	return c, nil
}

// Save writes configuration with 0600 permissions. The API key is omitted
// from the JSON encoding when empty so secrets can stay in the environment.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// applyEnv overrides configuration from the environment. Provider selection
// changes which key/base-URL/model variables are consulted.
func applyEnv(c *Config) {
	setStr(&c.LogLevel, "SQLPILOT_LOG_LEVEL")
	setStr(&c.DB.DSN, "SQLPILOT_DB_DSN")
	setStr(&c.LLM.Provider, "LLM_PROVIDER")

	switch c.LLM.Provider {
	case "qwen":
		setStr(&c.LLM.APIKey, "QWEN_API_KEY")
		setStr(&c.LLM.BaseURL, "QWEN_BASE_URL")
		setStr(&c.LLM.Model, "QWEN_MODEL")
	case "openai":
		setStr(&c.LLM.APIKey, "OPENAI_API_KEY")
		setStr(&c.LLM.BaseURL, "OPENAI_BASE_URL")
		setStr(&c.LLM.Model, "OPENAI_MODEL")
	default: // deepseek
		setStr(&c.LLM.APIKey, "DEEPSEEK_API_KEY")
		setStr(&c.LLM.BaseURL, "DEEPSEEK_BASE_URL")
		setStr(&c.LLM.Model, "DEEPSEEK_MODEL")
	}

	setInt(&c.LLM.TimeoutSec, "LLM_TIMEOUT")
	setInt(&c.LLM.MaxTokens, "LLM_MAX_TOKENS")
	setInt(&c.Sandbox.MaxRows, "SANDBOX_MAX_ROWS")
	setInt(&c.Sandbox.DefaultLimit, "SANDBOX_DEFAULT_LIMIT")
	setInt(&c.Sandbox.MaxExecutionMS, "SANDBOX_MAX_EXECUTION_MS")
	setInt(&c.Pipeline.MaxRegenerations, "MAX_RETRIES")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
