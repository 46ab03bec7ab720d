// Package vectorizer turns token sequences into fixed-vocabulary id arrays.
package vectorizer

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/23skdu/longbow-vecxx/internal/bpe"
	"github.com/23skdu/longbow-vecxx/internal/vocab"
)

// ErrInvalidMaxLength is returned for a negative max length.
var ErrInvalidMaxLength = errors.New("max length must not be negative")

// TokenIDs is an id sequence. Size counts the meaningful entries; anything
// past Size is padding.
type TokenIDs struct {
	IDs  []int
	Size int
}

// Options configures a Vectorizer.
type Options struct {
	// Transform is applied to each raw token. Nil means Identity.
	Transform Transform
	// EmitBegin and EmitEnd are inserted verbatim around every sequence.
	EmitBegin []string
	EmitEnd   []string
}

// Vectorizer converts token lists into pieces and ids. It only holds
// configuration and a shared vocabulary, so one instance can serve many
// goroutines.
type Vectorizer struct {
	vocab     Vocab
	transform Transform
	begin     []string
	end       []string
}

// New returns a Vectorizer over v.
func New(v Vocab, opts Options) *Vectorizer {
	return &Vectorizer{
		vocab:     v,
		transform: orIdentity(opts.Transform),
		begin:     slices.Clone(opts.EmitBegin),
		end:       slices.Clone(opts.EmitEnd),
	}
}

// Vocab returns the vocabulary the vectorizer resolves against.
func (vz *Vectorizer) Vocab() Vocab { return vz.vocab }

// ConvertToPieces transforms and splits tokens, then wraps the result in the
// configured begin and end tokens.
func (vz *Vectorizer) ConvertToPieces(tokens []string) []string {
	pieces := vz.vocab.Apply(tokens, vz.transform)
	out := make([]string, 0, len(vz.begin)+len(pieces)+len(vz.end))
	out = append(out, vz.begin...)
	out = append(out, pieces...)
	return append(out, vz.end...)
}

// ConvertToIDs maps the pieces of tokens to ids. With maxLength 0 the result
// has exactly one id per piece. Otherwise IDs has maxLength entries: shorter
// sequences are padded and longer ones are truncated, with Size capped at
// maxLength.
func (vz *Vectorizer) ConvertToIDs(tokens []string, maxLength int) (TokenIDs, error) {
	if maxLength < 0 {
		return TokenIDs{}, fmt.Errorf("%w: %d", ErrInvalidMaxLength, maxLength)
	}
	return vz.piecesToIDs(vz.ConvertToPieces(tokens), maxLength), nil
}

// ConvertToIDsStack converts several sentences into one row-major
// len(sentences) x length id matrix plus the size of every row. A length of
// 0 uses the longest sentence.
func (vz *Vectorizer) ConvertToIDsStack(sentences [][]string, length int) ([]int, []int, error) {
	if length < 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidMaxLength, length)
	}
	fixed := length > 0
	all := make([][]string, len(sentences))
	for i, s := range sentences {
		all[i] = vz.ConvertToPieces(s)
		if !fixed {
			length = max(length, len(all[i]))
		}
	}

	ids := make([]int, 0, len(sentences)*length)
	sizes := make([]int, len(sentences))
	for i, pieces := range all {
		row := vz.piecesToIDs(pieces, length)
		ids = append(ids, row.IDs...)
		sizes[i] = row.Size
	}
	return ids, sizes, nil
}

// PieceToID resolves one already-transformed piece.
func (vz *Vectorizer) PieceToID(piece string) int {
	return vz.vocab.Lookup(piece, Identity)
}

// CountPieces counts the pieces tokens produce, sentinels included.
func (vz *Vectorizer) CountPieces(tokens []string) *vocab.Counter {
	return countPieces(vz.ConvertToPieces(tokens))
}

// Decode maps ids back to text. Continuation pieces are glued to the piece
// that follows; specials and unknown ids are dropped.
func (vz *Vectorizer) Decode(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		p := vz.vocab.ReverseLookup(id)
		if p == "" {
			continue
		}
		if stem, ok := strings.CutSuffix(p, bpe.Continuation); ok {
			b.WriteString(stem)
			continue
		}
		b.WriteString(p)
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String())
}

func (vz *Vectorizer) piecesToIDs(pieces []string, maxLength int) TokenIDs {
	start := time.Now()
	defer func() { convertDuration.Observe(time.Since(start).Seconds()) }()

	size := len(pieces)
	n := maxLength
	if n == 0 {
		n = size
	}
	if size > n {
		size = n
		truncatedSequences.Inc()
	}

	specials := vz.vocab.Specials()
	ids := make([]int, n)
	if specials.Pad != 0 {
		for i := size; i < n; i++ {
			ids[i] = specials.Pad
		}
	}
	unknown := 0
	for i := 0; i < size; i++ {
		ids[i] = vz.PieceToID(pieces[i])
		if ids[i] == specials.Unknown && pieces[i] != specials.UnknownStr {
			unknown++
		}
	}
	piecesProduced.Add(float64(size))
	unknownPieces.Add(float64(unknown))
	return TokenIDs{IDs: ids, Size: size}
}

func countPieces(pieces []string) *vocab.Counter {
	c := vocab.NewCounter()
	for _, p := range pieces {
		c.Add(p, 1)
	}
	return c
}
