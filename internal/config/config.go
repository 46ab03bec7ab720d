package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Vocabulary kinds.
const (
	KindBPE  = "bpe"
	KindWord = "word"
)

type Config struct {
	Vocab      VocabConfig      `mapstructure:"vocab"`
	Vectorizer VectorizerConfig `mapstructure:"vectorizer"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
}

type VocabConfig struct {
	Kind      string `mapstructure:"kind"`
	VocabPath string `mapstructure:"vocab_path"`
	CodesPath string `mapstructure:"codes_path"`
	MinFreq   int    `mapstructure:"min_freq"`
}

type VectorizerConfig struct {
	Transform   string   `mapstructure:"transform"`
	BeginTokens []string `mapstructure:"begin_tokens"`
	EndTokens   []string `mapstructure:"end_tokens"`
	Fields      []string `mapstructure:"fields"`
	Delimiter   string   `mapstructure:"delimiter"`
	MaxLength   int      `mapstructure:"max_length"`
}

type ServerConfig struct {
	ListenAddr    string `mapstructure:"listen_addr"`
	FlightAddr    string `mapstructure:"flight_addr"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	// Cache is the id cache capacity in entries; 0 disables it.
	Cache int  `mapstructure:"cache"`
	OTel  bool `mapstructure:"otel"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Vocab: VocabConfig{
			Kind:      KindBPE,
			VocabPath: "vocab.txt",
			CodesPath: "codes.txt",
			MinFreq:   0,
		},
		Vectorizer: VectorizerConfig{
			Transform:   "lower",
			BeginTokens: []string{"<GO>"},
			EndTokens:   []string{"<EOS>"},
			Fields:      []string{"text"},
			Delimiter:   "~~",
			MaxLength:   0,
		},
		Server: ServerConfig{
			ListenAddr:    ":8080",
			FlightAddr:    "",
			MaxConcurrent: 16384,
			Cache:         0,
			OTel:          false,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("vocab-kind", defaults.Vocab.Kind, "Vocabulary kind (bpe|word)")
	fs.String("vocab", defaults.Vocab.VocabPath, "Vocabulary file or compiled directory")
	fs.String("codes", defaults.Vocab.CodesPath, "BPE codes file or compiled directory")
	fs.Int("min-freq", defaults.Vocab.MinFreq, "Drop counted pieces seen this many times or fewer")
	fs.String("transform", defaults.Vectorizer.Transform, "Token transform (identity|lower|fold)")
	fs.StringSlice("begin-tokens", defaults.Vectorizer.BeginTokens, "Tokens emitted before every sequence")
	fs.StringSlice("end-tokens", defaults.Vectorizer.EndTokens, "Tokens emitted after every sequence")
	fs.StringSlice("fields", defaults.Vectorizer.Fields, "Record fields joined into one token")
	fs.String("delimiter", defaults.Vectorizer.Delimiter, "Delimiter between record fields")
	fs.Int("max-length", defaults.Vectorizer.MaxLength, "Pad or truncate id sequences to this length (0 = no limit)")
	fs.String("listen", defaults.Server.ListenAddr, "HTTP listen address")
	fs.String("flight", defaults.Server.FlightAddr, "Flight listen address (empty disables)")
	fs.Int("max-concurrent", defaults.Server.MaxConcurrent, "Maximum number of sentences converted at once")
	fs.Int("cache-size", defaults.Server.Cache, "Id cache capacity in entries (0 disables)")
	fs.Bool("otel", defaults.Server.OTel, "Enable OpenTelemetry tracing (stdout)")
	fs.String("log-level", defaults.Log.Level, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix("VECXX")
	replacer := strings.NewReplacer("-", "_", ".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("vecxx")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects settings no vectorizer can be built from.
func (c Config) Validate() error {
	switch c.Vocab.Kind {
	case KindBPE:
		if c.Vocab.CodesPath == "" {
			return errors.New("vocab.codes_path is required for a bpe vocabulary")
		}
	case KindWord:
	default:
		return fmt.Errorf("unknown vocab.kind %q (expected bpe|word)", c.Vocab.Kind)
	}
	if c.Vectorizer.MaxLength < 0 {
		return fmt.Errorf("vectorizer.max_length must not be negative, got %d", c.Vectorizer.MaxLength)
	}
	if c.Server.MaxConcurrent <= 0 {
		return fmt.Errorf("server.max_concurrent must be positive, got %d", c.Server.MaxConcurrent)
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("vocab.kind", c.Vocab.Kind)
	v.SetDefault("vocab.vocab_path", c.Vocab.VocabPath)
	v.SetDefault("vocab.codes_path", c.Vocab.CodesPath)
	v.SetDefault("vocab.min_freq", c.Vocab.MinFreq)
	v.SetDefault("vectorizer.transform", c.Vectorizer.Transform)
	v.SetDefault("vectorizer.begin_tokens", c.Vectorizer.BeginTokens)
	v.SetDefault("vectorizer.end_tokens", c.Vectorizer.EndTokens)
	v.SetDefault("vectorizer.fields", c.Vectorizer.Fields)
	v.SetDefault("vectorizer.delimiter", c.Vectorizer.Delimiter)
	v.SetDefault("vectorizer.max_length", c.Vectorizer.MaxLength)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.flight_addr", c.Server.FlightAddr)
	v.SetDefault("server.max_concurrent", c.Server.MaxConcurrent)
	v.SetDefault("server.cache", c.Server.Cache)
	v.SetDefault("server.otel", c.Server.OTel)
	v.SetDefault("log.level", c.Log.Level)
}

// flagKeys maps flag names to config keys. Flags are bound per key so
// nested config file sections keep working.
var flagKeys = map[string]string{
	"vocab-kind":     "vocab.kind",
	"vocab":          "vocab.vocab_path",
	"codes":          "vocab.codes_path",
	"min-freq":       "vocab.min_freq",
	"transform":      "vectorizer.transform",
	"begin-tokens":   "vectorizer.begin_tokens",
	"end-tokens":     "vectorizer.end_tokens",
	"fields":         "vectorizer.fields",
	"delimiter":      "vectorizer.delimiter",
	"max-length":     "vectorizer.max_length",
	"listen":         "server.listen_addr",
	"flight":         "server.flight_addr",
	"max-concurrent": "server.max_concurrent",
	"cache-size":     "server.cache",
	"otel":           "server.otel",
	"log-level":      "log.level",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
