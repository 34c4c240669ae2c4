package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig   `toml:"server"`
	LLM       LLMConfig      `toml:"llm"`
	Decompose LLMConfig      `toml:"decompose"` // empty fields fall back to [llm]
	Pipeline  PipelineConfig `toml:"pipeline"`
	Search    SearchConfig   `toml:"search"`
	Database  DatabaseConfig `toml:"database"`
	Observer  ObserverConfig `toml:"observer"`
	Log       LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Addr            string   `toml:"addr"`
	Path            string   `toml:"path"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type LLMConfig struct {
	Provider    string   `toml:"provider"`
	Model       string   `toml:"model"`
	APIKey      string   `toml:"api_key"`
	BaseURL     string   `toml:"base_url"`
	MaxTokens   int      `toml:"max_tokens"`
	Temperature *float64 `toml:"temperature"`
	Timeout     Duration `toml:"timeout"` // per attempt
	RPM         int      `toml:"rpm"`
	TPM         int      `toml:"tpm"`
}

type PipelineConfig struct {
	DebounceWindow Duration `toml:"debounce_window"`
	MaxParts       int      `toml:"max_parts"`
	SegmentBytes   int      `toml:"segment_bytes"`
	HistoryLimit   int      `toml:"history_limit"`
	MemoryLimit    int      `toml:"memory_limit"`
	MaxTasks       int      `toml:"max_tasks"`
	MaxToolIter    int      `toml:"max_tool_iter"`
	RetryAttempts  int      `toml:"retry_attempts"`
	AgentTimeout   Duration `toml:"agent_timeout"`
	ExtractMemory  bool     `toml:"extract_memory"`
}

type SearchConfig struct {
	BraveAPIKey string `toml:"brave_api_key"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "postgres"
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as a string ("1.5s") in TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080", Path: "/sms", ShutdownTimeout: Duration(10 * time.Second)},
		LLM: LLMConfig{
			Provider:  "gemini",
			Model:     "gemini-2.5-flash",
			MaxTokens: 1024,
			Timeout:   Duration(30 * time.Second),
		},
		Pipeline: PipelineConfig{
			DebounceWindow: Duration(1500 * time.Millisecond),
			SegmentBytes:   950,
			HistoryLimit:   20,
			MemoryLimit:    20,
			MaxTasks:       4,
			MaxToolIter:    8,
			RetryAttempts:  3,
			AgentTimeout:   Duration(90 * time.Second),
			ExtractMemory:  true,
		},
		Database: DatabaseConfig{Driver: "sqlite", Path: "courier.db"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
// A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = "courier.toml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	// Env overrides
	if v := os.Getenv("COURIER_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("COURIER_DECOMPOSE_API_KEY"); v != "" {
		cfg.Decompose.APIKey = v
	}
	if v := os.Getenv("COURIER_BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}
	if v := os.Getenv("COURIER_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("COURIER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("COURIER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("COURIER_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Decompose.Provider == "" {
		cfg.Decompose.Provider = cfg.LLM.Provider
		if cfg.Decompose.Model == "" {
			cfg.Decompose.Model = cfg.LLM.Model
		}
		if cfg.Decompose.BaseURL == "" {
			cfg.Decompose.BaseURL = cfg.LLM.BaseURL
		}
	}
	if cfg.Decompose.APIKey == "" {
		cfg.Decompose.APIKey = cfg.LLM.APIKey
	}
	if cfg.Decompose.Timeout == 0 {
		cfg.Decompose.Timeout = cfg.LLM.Timeout
	}

	return cfg, cfg.Validate()
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.LLM.Provider == "" || c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.provider and llm.model are required"))
	}
	if c.Decompose.Model == "" {
		errs = append(errs, errors.New("decompose.model is required when decompose.provider is set"))
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not sqlite or postgres", c.Database.Driver))
	}
	if c.Pipeline.DebounceWindow < 0 {
		errs = append(errs, errors.New("pipeline.debounce_window must not be negative"))
	}
	if c.Pipeline.SegmentBytes != 0 && c.Pipeline.SegmentBytes < utf8.UTFMax {
		errs = append(errs, fmt.Errorf("pipeline.segment_bytes must be 0 (default) or at least %d", utf8.UTFMax))
	}
	if c.LLM.RPM < 0 || c.LLM.TPM < 0 || c.Decompose.RPM < 0 || c.Decompose.TPM < 0 {
		errs = append(errs, errors.New("rpm and tpm must not be negative"))
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path %q must start with /", c.Server.Path))
	}
	if errs != nil {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel maps log.level to a slog level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
