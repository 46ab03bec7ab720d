package vectorizer

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/23skdu/longbow-vecxx/internal/vocab"
)

const (
	// DefaultField is read from every record when no fields are configured.
	DefaultField = "text"
	// DefaultDelimiter joins field values of one record.
	DefaultDelimiter = "~~"
)

// ErrInvalidField is returned for an empty field name.
var ErrInvalidField = errors.New("field name must not be empty")

// Record is one token described by named fields, e.g. {"text": "Dan", "pos": "NNP"}.
type Record map[string]string

// MapOptions configures a MapVectorizer.
type MapOptions struct {
	Options
	// Fields are read from each record in order. Empty means [DefaultField].
	Fields []string
	// Delimiter joins the field values. Empty means DefaultDelimiter.
	Delimiter string
}

// MapVectorizer reduces each record to one token by joining selected fields
// and then behaves like a Vectorizer on the derived tokens.
type MapVectorizer struct {
	vec    *Vectorizer
	fields []string
	delim  string
}

// NewMap returns a MapVectorizer over v.
func NewMap(v Vocab, opts MapOptions) (*MapVectorizer, error) {
	fields := slices.Clone(opts.Fields)
	if len(fields) == 0 {
		fields = []string{DefaultField}
	}
	for i, f := range fields {
		if f == "" {
			return nil, fmt.Errorf("%w: position %d", ErrInvalidField, i)
		}
	}
	delim := opts.Delimiter
	if delim == "" {
		delim = DefaultDelimiter
	}
	return &MapVectorizer{
		vec:    New(v, opts.Options),
		fields: fields,
		delim:  delim,
	}, nil
}

// Tokens derives one token per record. Missing fields contribute "".
func (m *MapVectorizer) Tokens(records []Record) []string {
	tokens := make([]string, len(records))
	for i, r := range records {
		tokens[i] = m.join(r)
	}
	return tokens
}

func (m *MapVectorizer) join(r Record) string {
	if len(m.fields) == 1 {
		return r[m.fields[0]]
	}
	var b strings.Builder
	for i, f := range m.fields {
		if i > 0 {
			b.WriteString(m.delim)
		}
		b.WriteString(r[f])
	}
	return b.String()
}

// ConvertToPieces is Vectorizer.ConvertToPieces over the derived tokens.
func (m *MapVectorizer) ConvertToPieces(records []Record) []string {
	return m.vec.ConvertToPieces(m.Tokens(records))
}

// ConvertToIDs is Vectorizer.ConvertToIDs over the derived tokens.
func (m *MapVectorizer) ConvertToIDs(records []Record, maxLength int) (TokenIDs, error) {
	return m.vec.ConvertToIDs(m.Tokens(records), maxLength)
}

// ConvertToIDsStack is Vectorizer.ConvertToIDsStack over derived tokens.
func (m *MapVectorizer) ConvertToIDsStack(sentences [][]Record, length int) ([]int, []int, error) {
	tokens := make([][]string, len(sentences))
	for i, s := range sentences {
		tokens[i] = m.Tokens(s)
	}
	return m.vec.ConvertToIDsStack(tokens, length)
}

// PieceToID resolves one already-transformed piece.
func (m *MapVectorizer) PieceToID(piece string) int { return m.vec.PieceToID(piece) }

// CountPieces counts the pieces records produce, sentinels included.
func (m *MapVectorizer) CountPieces(records []Record) *vocab.Counter {
	return countPieces(m.ConvertToPieces(records))
}

// Fields returns the configured field list.
func (m *MapVectorizer) Fields() []string { return slices.Clone(m.fields) }

// Delimiter returns the configured delimiter.
func (m *MapVectorizer) Delimiter() string { return m.delim }

// Decode maps ids back to text, as Vectorizer.Decode does.
func (m *MapVectorizer) Decode(ids []int) string { return m.vec.Decode(ids) }
