// Package bpe applies learned byte-pair merge rules to single words.
package bpe

import (
	"strings"
	"unicode/utf8"
)

const (
	// EndOfWord marks the last symbol of a word while merging. It never
	// appears in rendered pieces.
	EndOfWord = "</w>"
	// Continuation is appended to every piece except the last of a word.
	Continuation = "@@"
)

// Vocabulary reports which rendered pieces exist. *vocab.Store satisfies it.
type Vocabulary interface {
	Contains(piece string) bool
	Size() int
}

// Encoder splits words into subword pieces. It holds no mutable state and is
// safe for concurrent use.
type Encoder struct {
	table *Table
	vocab Vocabulary
}

// NewEncoder returns an Encoder for table. When v is non-nil and non-empty,
// merged units missing from v are broken back down into the rules that
// produced them.
func NewEncoder(table *Table, v Vocabulary) *Encoder {
	return &Encoder{table: table, vocab: v}
}

// Encode returns the rendered pieces of word: every piece but the last
// carries the Continuation suffix. Removing those suffixes and joining the
// pieces yields word again.
func (e *Encoder) Encode(word string) []string {
	if word == "" {
		return nil
	}
	units := e.merge(symbols(word))
	if e.vocab != nil && e.vocab.Size() > 0 {
		units = e.restrict(units)
	}

	pieces := make([]string, len(units))
	last := len(units) - 1
	for i, u := range units {
		if i == last {
			pieces[i] = strings.TrimSuffix(u, EndOfWord)
		} else {
			pieces[i] = u + Continuation
		}
	}
	return pieces
}

// symbols splits word into characters and tags the last one with EndOfWord.
// Invalid UTF-8 bytes become single-byte symbols.
func symbols(word string) []string {
	units := make([]string, 0, utf8.RuneCountInString(word))
	for i := 0; i < len(word); {
		_, size := utf8.DecodeRuneInString(word[i:])
		units = append(units, word[i:i+size])
		i += size
	}
	units[len(units)-1] += EndOfWord
	return units
}

// merge repeatedly joins the adjacent pair with the lowest rank. On equal
// ranks the leftmost pair wins.
func (e *Encoder) merge(units []string) []string {
	for len(units) > 1 {
		best, bestRank := -1, 0
		for i := 0; i < len(units)-1; i++ {
			rank, ok := e.table.Rank(units[i], units[i+1])
			if ok && (best < 0 || rank < bestRank) {
				best, bestRank = i, rank
			}
		}
		if best < 0 {
			break
		}
		units[best] += units[best+1]
		units = append(units[:best+1], units[best+2:]...)
	}
	return units
}

func (e *Encoder) restrict(units []string) []string {
	out := make([]string, 0, len(units))
	last := len(units) - 1
	for i, u := range units {
		final := i == last
		if e.known(u, final) {
			out = append(out, u)
			continue
		}
		out = e.decompose(u, final, out)
	}
	return out
}

// known checks the rendered form of a unit against the vocabulary.
func (e *Encoder) known(unit string, final bool) bool {
	if final {
		return e.vocab.Contains(strings.TrimSuffix(unit, EndOfWord))
	}
	return e.vocab.Contains(unit + Continuation)
}

func (e *Encoder) decompose(unit string, final bool, out []string) []string {
	pair, ok := e.table.Split(unit)
	if !ok {
		return append(out, unit)
	}
	if e.known(pair.Left, false) {
		out = append(out, pair.Left)
	} else {
		out = e.decompose(pair.Left, false, out)
	}
	if e.known(pair.Right, final) {
		out = append(out, pair.Right)
	} else {
		out = e.decompose(pair.Right, final, out)
	}
	return out
}
