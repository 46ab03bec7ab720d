package vocab

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const maxLineBytes = 1 << 20

// LoadFile reads a vocabulary file where each line holds a piece followed by
// optional columns (usually a count). Ids are assigned by line, starting at
// offset. If path is a directory, the compiled snapshot inside it is loaded
// instead and offset is ignored, since ids were fixed at compile time.
func LoadFile(path string, offset, unknown int) (*Store, error) {
	return LoadCountedFile(path, offset, unknown, 0)
}

// LoadCountedFile is LoadFile with a frequency cutoff. When minFreq is
// positive the second column is read as a count, pieces counted minFreq
// times or fewer are dropped and ids follow descending count. A line
// without a count column counts zero. Snapshots ignore minFreq.
func LoadCountedFile(path string, offset, unknown, minFreq int) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab %q: %w", path, err)
	}
	if info.IsDir() {
		log.Debug().Str("dir", path).Msg("Vocab path is a directory, loading snapshot")
		return LoadStoreSnapshot(filepath.Join(path, StoreSnapshotName), unknown)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab %q: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	if minFreq <= 0 {
		pieces, err := ReadPieces(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read vocab %q: %w", path, err)
		}
		log.Debug().Str("path", path).Int("entries", len(pieces)).Msg("Loaded vocab")
		return NewFromList(pieces, offset, unknown), nil
	}

	counter, err := ReadCounter(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab %q: %w", path, err)
	}
	s := NewFromCounter(counter, offset, unknown, minFreq)
	log.Debug().
		Str("path", path).
		Int("entries", counter.Len()).
		Int("kept", s.Size()).
		Int("min_freq", minFreq).
		Msg("Loaded counted vocab")
	return s, nil
}

// ReadPieces returns the first column of every non-blank line.
func ReadPieces(r io.Reader) ([]string, error) {
	var pieces []string
	err := scanFields(r, func(fields []string) error {
		pieces = append(pieces, fields[0])
		return nil
	})
	return pieces, err
}

// ReadCounter reads "piece [count]" lines into a Counter, in file order.
func ReadCounter(r io.Reader) (*Counter, error) {
	c := NewCounter()
	line := 0
	err := scanFields(r, func(fields []string) error {
		line++
		n := 0
		if len(fields) > 1 {
			var err error
			if n, err = strconv.Atoi(fields[1]); err != nil {
				return fmt.Errorf("entry %d: bad count %q: %w", line, fields[1], err)
			}
		}
		c.Add(fields[0], n)
		return nil
	})
	return c, err
}

func scanFields(r io.Reader, fn func(fields []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if err := fn(fields); err != nil {
			return err
		}
	}
	return scanner.Err()
}
