package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tordrt/physgen/internal/refiner"
)

// isolate runs the test in an empty directory with no inherited overrides
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("OPENAI_API_KEY", "")
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, EnvPrefix) {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
	return dir
}

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output-dir", "", "")
	flags.Bool("force", false, "")
	flags.Int("concurrency", 1, "")
	flags.Bool("llm", false, "")
	flags.String("llm-model", "", "")
	flags.String("log-level", "", "")
	return flags
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultDir, cfg.InputDir)
	assert.Equal(t, DefaultDir, cfg.OutputDir)
	assert.True(t, cfg.GenerateSQL)
	assert.True(t, cfg.GenerateERD)
	assert.False(t, cfg.Force)
	assert.Empty(t, cfg.LedgerURL)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.LLM.Enabled)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, uint64(2), cfg.LLM.MaxRetries)
	assert.Equal(t, refiner.DefaultRequiredNotNull, cfg.Refiner.RequiredNotNull)
	assert.NoError(t, cfg.Validate())
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolate(t)

	yml := `output_dir: from-file
force: true
log_format: json
llm:
  model: gpt-4o
  timeout: 5s
refiner:
  required_not_null: [title, sku]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "physgen.yaml"), []byte(yml), 0o644))
	t.Setenv("PHYSGEN_OUTPUT_DIR", "from-env")
	t.Setenv("PHYSGEN_LEDGER_URL", "sqlite://${PHYSGEN_TEST_HOME}/ledger.db")
	t.Setenv("PHYSGEN_TEST_HOME", "/var/lib/physgen")
	t.Setenv("PHYSGEN_LLM_MODEL", "from-env-model")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--output-dir", "from-flag", "--concurrency", "4"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.OutputDir)
	assert.True(t, cfg.Force, "file value kept when flag not set")
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "from-env-model", cfg.LLM.Model)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "sqlite:///var/lib/physgen/ledger.db", cfg.LedgerURL)
	assert.Equal(t, []string{"title", "sku"}, cfg.Refiner.RequiredNotNull)
}

func TestLoadExplicitFileAndMappedFlags(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  api_key: ${PHYSGEN_TEST_KEY}\n"), 0o644))
	t.Setenv("PHYSGEN_TEST_KEY", "sk-test")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--llm", "--llm-model", "gpt-4o-mini"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRequiredListFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("PHYSGEN_REFINER_REQUIRED_NOT_NULL", "name, sku ,")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "sku"}, cfg.Refiner.RequiredNotNull)
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PHYSGEN_LOG_LEVEL=debug\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("PHYSGEN_LOG_LEVEL") })

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load("does-not-exist.yaml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does-not-exist.yaml")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{OutputDir: "out", Concurrency: 1, LogLevel: "info", LogFormat: "console"}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		errSubstr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "negative concurrency", mutate: func(c *Config) { c.Concurrency = -1 }, errSubstr: "concurrency"},
		{name: "empty output dir", mutate: func(c *Config) { c.OutputDir = "" }, errSubstr: "output_dir"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, errSubstr: "log_level"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, errSubstr: "log_format"},
		{name: "bad ledger scheme", mutate: func(c *Config) { c.LedgerURL = "redis://x" }, errSubstr: "ledger_url"},
		{name: "good ledger", mutate: func(c *Config) { c.LedgerURL = "sqlite://runs.db" }},
		{name: "llm without key", mutate: func(c *Config) { c.LLM.Enabled = true }, errSubstr: "api_key"},
		{name: "negative timeout", mutate: func(c *Config) { c.LLM.Timeout = -time.Second }, errSubstr: "llm.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}
