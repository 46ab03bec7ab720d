package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/longbow-vecxx/internal/cache"
	"github.com/23skdu/longbow-vecxx/internal/client"
	"github.com/23skdu/longbow-vecxx/internal/vectorizer"
)

func newPiecesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pieces [file...]",
		Short: "Print the pieces of every input line",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			vec, _, err := buildVectorizers(cfg)
			if err != nil {
				return err
			}
			lines, err := readLines(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, sentence := range splitSentences(lines) {
				if _, err := fmt.Fprintln(out, strings.Join(vec.ConvertToPieces(sentence), " ")); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newIDsCmd() *cobra.Command {
	var (
		arrowOut bool
		stack    bool
		remote   string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ids [file...]",
		Short: "Print the ids of every input line",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			lines, err := readLines(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			var ids [][]int
			var sizes []int
			switch {
			case remote != "":
				if stack {
					return errors.New("--stack cannot be combined with --remote")
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				ids, sizes, err = vectorizeRemote(ctx, remote, cfg.Vectorizer.MaxLength, lines)
			default:
				var vec *vectorizer.Vectorizer
				vec, _, err = buildVectorizers(cfg)
				if err != nil {
					return err
				}
				if stack {
					ids, sizes, err = vectorizeStack(vec, cfg.Vectorizer.MaxLength, lines)
				} else {
					ids, sizes, err = vectorizeLocal(vec, cfg.Vectorizer.MaxLength, lines)
				}
			}
			if err != nil {
				return err
			}

			if arrowOut {
				return writeArrowIDs(cmd.OutOrStdout(), lines, ids, sizes)
			}
			return writeIDLines(cmd.OutOrStdout(), ids)
		},
	}

	cmd.Flags().BoolVar(&arrowOut, "arrow", false, "Write an Arrow IPC stream instead of text")
	cmd.Flags().BoolVar(&stack, "stack", false, "Pad every row to the same length (max-length, or the longest line)")
	cmd.Flags().StringVar(&remote, "remote", "", "Vectorize through a vecxx Flight server (e.g. localhost:9090)")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Timeout for remote calls")
	return cmd
}

func vectorizeLocal(vec *vectorizer.Vectorizer, maxLength int, lines []string) ([][]int, []int, error) {
	ids := make([][]int, len(lines))
	sizes := make([]int, len(lines))
	for i, sentence := range splitSentences(lines) {
		row, err := vec.ConvertToIDs(sentence, maxLength)
		if err != nil {
			return nil, nil, err
		}
		ids[i] = row.IDs
		sizes[i] = row.Size
	}
	return ids, sizes, nil
}

func vectorizeStack(vec *vectorizer.Vectorizer, length int, lines []string) ([][]int, []int, error) {
	flat, sizes, err := vec.ConvertToIDsStack(splitSentences(lines), length)
	if err != nil {
		return nil, nil, err
	}
	ids := make([][]int, len(lines))
	if len(lines) > 0 {
		width := len(flat) / len(lines)
		for i := range ids {
			ids[i] = flat[i*width : (i+1)*width]
		}
	}
	return ids, sizes, nil
}

// vectorizeRemote sends the local max length along so that remote and local
// runs agree.
func vectorizeRemote(ctx context.Context, addr string, maxLength int, lines []string) ([][]int, []int, error) {
	fc, err := client.NewFlightClient(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer func() {
		if err := fc.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close flight client")
		}
	}()
	log.Info().Str("addr", addr).Int("count", len(lines)).Msg("Vectorizing remotely")
	return fc.VectorizeLength(ctx, lines, maxLength)
}

func writeIDLines(w io.Writer, ids [][]int) error {
	var b strings.Builder
	for _, row := range ids {
		b.Reset()
		for j, id := range row {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strconv.Itoa(id))
		}
		if _, err := fmt.Fprintln(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func writeArrowIDs(w io.Writer, texts []string, ids [][]int, sizes []int) error {
	pool := memory.NewGoAllocator()
	rec, err := client.NewRecordBatchBuilder(pool).BuildIDBatch(texts, ids, sizes)
	if err != nil {
		return err
	}
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(client.IDSchema), ipc.WithAllocator(pool))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [file...]",
		Short: "Turn lines of space-separated ids back into text",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			vec, _, err := buildVectorizers(cfg)
			if err != nil {
				return err
			}
			lines, err := readLines(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for n, line := range lines {
				fields := strings.Fields(line)
				ids := make([]int, len(fields))
				for i, f := range fields {
					if ids[i], err = strconv.Atoi(f); err != nil {
						return fmt.Errorf("line %d: bad id %q", n+1, f)
					}
				}
				if _, err := fmt.Fprintln(out, vec.Decode(ids)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <dir>",
		Short: "Write a compiled snapshot of the configured vocabulary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			v, err := loadVocab(cfg)
			if err != nil {
				return err
			}
			start := time.Now()
			if err := v.Compile(args[0]); err != nil {
				return err
			}
			log.Info().Str("dir", args[0]).Dur("elapsed", time.Since(start)).Msg("Compiled vocabulary")
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the vecxx HTTP and Flight servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			vec, mapVec, err := buildVectorizers(cfg)
			if err != nil {
				return err
			}

			if cfg.Server.OTel {
				shutdown, err := initTracer()
				if err != nil {
					return fmt.Errorf("init tracer: %w", err)
				}
				defer func() { _ = shutdown(context.Background()) }()
			}

			opts := ServerOptions{
				MaxLength:     cfg.Vectorizer.MaxLength,
				MaxConcurrent: cfg.Server.MaxConcurrent,
			}
			if cfg.Server.Cache > 0 {
				opts.Cache = cache.NewMapCache(cfg.Server.Cache)
				log.Info().Int("entries", cfg.Server.Cache).Msg("Id cache enabled")
			}
			srv := NewServer(vec, mapVec, opts)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return startServer(gctx, cfg.Server.ListenAddr, srv) })
			if cfg.Server.FlightAddr != "" {
				g.Go(func() error { return startFlightServer(gctx, cfg.Server.FlightAddr, srv) })
			}
			return g.Wait()
		},
	}
}
