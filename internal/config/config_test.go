package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

func newFlagBinder(t *testing.T, defaults Config, args ...string) *fakeBinder {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)
	require.NoError(t, fs.Parse(args))
	return &fakeBinder{fs: fs}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, KindBPE, cfg.Vocab.Kind)
	assert.Equal(t, "lower", cfg.Vectorizer.Transform)
	assert.Equal(t, []string{"<GO>"}, cfg.Vectorizer.BeginTokens)
	assert.Equal(t, []string{"<EOS>"}, cfg.Vectorizer.EndTokens)
	assert.Equal(t, []string{"text"}, cfg.Vectorizer.Fields)
	assert.Equal(t, "~~", cfg.Vectorizer.Delimiter)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 16384, cfg.Server.MaxConcurrent)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestRegisterFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())

	for name := range flagKeys {
		assert.NotNil(t, fs.Lookup(name), name)
	}
	assert.Equal(t, "codes.txt", fs.Lookup("codes").DefValue)
}

func TestLoad_Defaults(t *testing.T) {
	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(t, defaults),
		Defaults: defaults,
	})
	require.NoError(t, err)
	assert.Equal(t, defaults, cfg)
}

func TestLoad_FlagOverride(t *testing.T) {
	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{
		Cmd: newFlagBinder(t, defaults,
			"--vocab-kind=word",
			"--vocab=words.txt",
			"--fields=text,pos",
			"--max-length=128",
			"--cache-size=512",
			"--log-level=debug",
		),
		Defaults: defaults,
	})
	require.NoError(t, err)

	assert.Equal(t, KindWord, cfg.Vocab.Kind)
	assert.Equal(t, "words.txt", cfg.Vocab.VocabPath)
	assert.Equal(t, []string{"text", "pos"}, cfg.Vectorizer.Fields)
	assert.Equal(t, 128, cfg.Vectorizer.MaxLength)
	assert.Equal(t, 512, cfg.Server.Cache)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("VECXX_LOG_LEVEL", "warn")
	t.Setenv("VECXX_SERVER_LISTEN_ADDR", ":9999")
	t.Setenv("VECXX_VECTORIZER_TRANSFORM", "fold")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
	assert.Equal(t, "fold", cfg.Vectorizer.Transform)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "vecxx.yaml")

	content := `
log:
  level: error
vocab:
  kind: word
  vocab_path: /data/words.txt
  min_freq: 2
vectorizer:
  delimiter: "|"
server:
  listen_addr: ":7777"
  flight_addr: ":9090"
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0o644))

	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(t, defaults, "--max-concurrent=8"),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, KindWord, cfg.Vocab.Kind)
	assert.Equal(t, "/data/words.txt", cfg.Vocab.VocabPath)
	assert.Equal(t, 2, cfg.Vocab.MinFreq)
	assert.Equal(t, "|", cfg.Vectorizer.Delimiter)
	assert.Equal(t, ":7777", cfg.Server.ListenAddr)
	assert.Equal(t, ":9090", cfg.Server.FlightAddr)
	assert.Equal(t, 8, cfg.Server.MaxConcurrent)
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(":\t:bad yaml:::"), 0o644))

	_, err := Load(LoadOptions{ConfigFile: cfgFile, Defaults: DefaultConfig()})
	assert.Error(t, err)
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{
		ConfigFile: "/nonexistent/path/vecxx.yaml",
		Defaults:   DefaultConfig(),
	})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown kind", func(c *Config) { c.Vocab.Kind = "sentencepiece" }},
		{"bpe without codes", func(c *Config) { c.Vocab.CodesPath = "" }},
		{"negative max length", func(c *Config) { c.Vectorizer.MaxLength = -1 }},
		{"zero concurrency", func(c *Config) { c.Server.MaxConcurrent = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Vocab.Kind = KindWord
	cfg.Vocab.CodesPath = ""
	assert.NoError(t, cfg.Validate())
}
