package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-vecxx/internal/config"
	"github.com/23skdu/longbow-vecxx/internal/vectorizer"
)

var (
	cfgFile   string
	activeCfg config.Config
	loaded    bool
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "vecxx",
		Short:         "Vectorize tokens into vocabulary ids",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = cfg
			loaded = true
			setupLogger(cfg.Log.Level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newPiecesCmd())
	cmd.AddCommand(newIDsCmd())
	cmd.AddCommand(newDecodeCmd())
	cmd.AddCommand(newCompileCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func setupLogger(levelStr string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(levelStr))
	if err != nil || levelStr == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func requireConfig() (config.Config, error) {
	if !loaded {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return activeCfg, nil
}

func loadVocab(cfg config.Config) (vectorizer.Vocab, error) {
	opts := []vectorizer.VocabOption{vectorizer.WithMinFreq(cfg.Vocab.MinFreq)}
	if cfg.Vocab.Kind == config.KindWord {
		return vectorizer.LoadWordVocab(cfg.Vocab.VocabPath, opts...)
	}
	return vectorizer.LoadBPEVocab(cfg.Vocab.VocabPath, cfg.Vocab.CodesPath, opts...)
}

// buildVectorizers loads the configured vocabulary and wraps it in a flat
// and a record vectorizer sharing the same options.
func buildVectorizers(cfg config.Config) (*vectorizer.Vectorizer, *vectorizer.MapVectorizer, error) {
	v, err := loadVocab(cfg)
	if err != nil {
		return nil, nil, err
	}
	transform, err := vectorizer.TransformByName(cfg.Vectorizer.Transform)
	if err != nil {
		return nil, nil, err
	}
	opts := vectorizer.Options{
		Transform: transform,
		EmitBegin: cfg.Vectorizer.BeginTokens,
		EmitEnd:   cfg.Vectorizer.EndTokens,
	}
	mapVec, err := vectorizer.NewMap(v, vectorizer.MapOptions{
		Options:   opts,
		Fields:    cfg.Vectorizer.Fields,
		Delimiter: cfg.Vectorizer.Delimiter,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Debug().
		Str("kind", cfg.Vocab.Kind).
		Str("vocab", cfg.Vocab.VocabPath).
		Str("transform", cfg.Vectorizer.Transform).
		Msg("Vectorizer ready")
	return vectorizer.New(v, opts), mapVec, nil
}

// readLines reads one sentence per line from the named files, or from in
// when no file is given.
func readLines(in io.Reader, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return scanLines(in)
	}
	var lines []string
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open input %q: %w", p, err)
		}
		got, err := scanLines(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read input %q: %w", p, err)
		}
		lines = append(lines, got...)
	}
	return lines, nil
}

func scanLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func splitSentences(lines []string) [][]string {
	sentences := make([][]string, len(lines))
	for i, line := range lines {
		sentences[i] = strings.Fields(line)
	}
	return sentences
}
