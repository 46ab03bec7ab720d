package bpe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/23skdu/longbow-vecxx/internal/vocab"
	"github.com/rs/zerolog/log"
)

// TableSnapshotName is the file a compiled Table is written to inside a
// snapshot directory.
const TableSnapshotName = "codes.snap"

// ErrMalformedRule is returned for a codes line that does not name a pair.
var ErrMalformedRule = errors.New("malformed merge rule")

// Pair is an ordered merge candidate.
type Pair struct {
	Left  string
	Right string
}

// Table holds ranked merge rules. Rank is the position of a rule in the
// list it was built from; lower ranks merge first. When the same pair is
// listed more than once, the last occurrence defines its rank.
type Table struct {
	rules []Pair
	ranks map[Pair]int
	parts map[string]Pair
}

// NewTable indexes rules by pair and by merged result. Rules with an empty
// side keep their position but are never applied.
func NewTable(rules []Pair) *Table {
	t := &Table{
		rules: rules,
		ranks: make(map[Pair]int, len(rules)),
		parts: make(map[string]Pair, len(rules)),
	}
	for rank, p := range rules {
		if p.Left == "" || p.Right == "" {
			continue
		}
		t.ranks[p] = rank
		t.parts[p.Left+p.Right] = p
	}
	return t
}

// Rank returns the rank of the (left, right) rule.
func (t *Table) Rank(left, right string) (int, bool) {
	r, ok := t.ranks[Pair{Left: left, Right: right}]
	return r, ok
}

// Split returns the rule whose merge produced merged.
func (t *Table) Split(merged string) (Pair, bool) {
	p, ok := t.parts[merged]
	return p, ok
}

// Len returns the number of rules, duplicates included.
func (t *Table) Len() int { return len(t.rules) }

// Rules returns the rules in rank order.
func (t *Table) Rules() []Pair {
	out := make([]Pair, len(t.rules))
	copy(out, t.rules)
	return out
}

type tableSnapshot struct {
	Version int         `cbor:"1,keyasint"`
	Rules   [][2]string `cbor:"2,keyasint"`
}

// Compile writes the table into dir.
func (t *Table) Compile(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rules := make([][2]string, len(t.rules))
	for i, p := range t.rules {
		rules[i] = [2]string{p.Left, p.Right}
	}
	return vocab.SaveSnapshot(filepath.Join(dir, TableSnapshotName), tableSnapshot{
		Version: vocab.SnapshotVersion,
		Rules:   rules,
	})
}

// LoadCodes reads a codes file with one "left right [count]" rule per line.
// Header lines starting with "#version" are skipped. If path is a directory,
// the compiled snapshot inside it is loaded instead.
func LoadCodes(path string) (*Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open codes %q: %w", path, err)
	}
	if info.IsDir() {
		log.Debug().Str("dir", path).Msg("Codes path is a directory, loading snapshot")
		return loadTableSnapshot(filepath.Join(path, TableSnapshotName))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open codes %q: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	rules, err := ParseCodes(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read codes %q: %w", path, err)
	}
	log.Debug().Str("path", path).Int("rules", len(rules)).Msg("Loaded merge rules")
	return NewTable(rules), nil
}

// ParseCodes reads merge rules in rank order.
func ParseCodes(r io.Reader) ([]Pair, error) {
	var rules []Pair
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.HasPrefix(text, "#version") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedRule, line, text)
		}
		rules = append(rules, Pair{Left: fields[0], Right: fields[1]})
	}
	return rules, scanner.Err()
}

func loadTableSnapshot(path string) (*Table, error) {
	var snap tableSnapshot
	if err := vocab.LoadSnapshot(path, &snap); err != nil {
		return nil, err
	}
	if snap.Version != vocab.SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", vocab.ErrSnapshotVersion, snap.Version)
	}
	rules := make([]Pair, len(snap.Rules))
	for i, r := range snap.Rules {
		rules[i] = Pair{Left: r[0], Right: r[1]}
	}
	return NewTable(rules), nil
}
