// Package config loads physgen settings from defaults, physgen.yaml, the
// environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"github.com/tordrt/physgen/internal/ledger"
	"github.com/tordrt/physgen/internal/refiner"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix of environment overrides
const EnvPrefix = "PHYSGEN_"

// Defaults
const (
	DefaultDir        = "artifacts"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "console"
	DefaultLLMTimeout = 30 * time.Second
)

// Config holds all physgen settings
type Config struct {
	InputDir    string        `koanf:"input_dir"`
	OutputDir   string        `koanf:"output_dir"`
	GenerateSQL bool          `koanf:"generate_sql"`
	GenerateERD bool          `koanf:"generate_erd"`
	Force       bool          `koanf:"force"`
	LedgerURL   string        `koanf:"ledger_url"`
	Concurrency int           `koanf:"concurrency"`
	LogLevel    string        `koanf:"log_level"`
	LogFormat   string        `koanf:"log_format"`
	LLM         LLMConfig     `koanf:"llm"`
	Refiner     RefinerConfig `koanf:"refiner"`
}

// LLMConfig configures the optional refinement model
type LLMConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Model      string        `koanf:"model"`
	APIKey     string        `koanf:"api_key"`
	BaseURL    string        `koanf:"base_url"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries uint64        `koanf:"max_retries"`
}

// RefinerConfig configures the heuristic pass
type RefinerConfig struct {
	RequiredNotNull []string `koanf:"required_not_null"`
}

// flagKeys maps CLI flags whose names differ from their config key
var flagKeys = map[string]string{
	"llm":         "llm.enabled",
	"llm-model":   "llm.model",
	"llm-timeout": "llm.timeout",
}

var envVar = regexp.MustCompile(`\$\{([^}]+)\}`)

// FindConfigFile returns the explicit path, or physgen.yaml / physgen.yml
// from the working directory when present.
func FindConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"physgen.yaml", "physgen.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load builds the configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"input_dir":                 DefaultDir,
		"output_dir":                DefaultDir,
		"generate_sql":              true,
		"generate_erd":              true,
		"force":                     false,
		"ledger_url":                "",
		"concurrency":               1,
		"log_level":                 DefaultLogLevel,
		"log_format":                DefaultLogFormat,
		"llm.enabled":               false,
		"llm.model":                 "",
		"llm.api_key":               "${OPENAI_API_KEY}",
		"llm.base_url":              "",
		"llm.timeout":               DefaultLLMTimeout.String(),
		"llm.max_retries":           2,
		"refiner.required_not_null": strings.Join(refiner.DefaultRequiredNotNull, ","),
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := FindConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// PHYSGEN_LLM_API_KEY -> llm.api_key
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	if v, ok := k.Get("refiner.required_not_null").(string); ok {
		if err := k.Set("refiner.required_not_null", splitList(v)); err != nil {
			return nil, fmt.Errorf("failed to parse refiner.required_not_null: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	cfg.LLM.BaseURL = expandEnvVars(cfg.LLM.BaseURL)
	cfg.LedgerURL = expandEnvVars(cfg.LedgerURL)
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 1
	}

	return &cfg, nil
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.OutputDir == "" {
		return errors.New("output_dir is required")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log_format %q (must be 'json' or 'console')", c.LogFormat)
	}
	if c.LedgerURL != "" {
		if _, _, err := ledger.ParseURL(c.LedgerURL); err != nil {
			return fmt.Errorf("invalid ledger_url: %w", err)
		}
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return errors.New("llm.enabled requires llm.api_key (or OPENAI_API_KEY)")
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm.timeout must not be negative, got %s", c.LLM.Timeout)
	}
	return nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range []string{"llm", "refiner"} {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	return key
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// expandEnvVars replaces ${VAR} with the variable's value, or nothing when unset
func expandEnvVars(s string) string {
	return envVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
