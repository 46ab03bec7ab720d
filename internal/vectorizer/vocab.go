package vectorizer

import (
	"github.com/23skdu/longbow-vecxx/internal/bpe"
	"github.com/23skdu/longbow-vecxx/internal/vocab"
)

// Vocab resolves tokens to pieces and pieces to ids. WordVocab and BPEVocab
// are the two implementations; both are immutable and safe to share.
type Vocab interface {
	// Lookup returns the id of s after applying transform. Special tokens
	// resolve directly, without the transform.
	Lookup(s string, transform Transform) int
	// Apply turns tokens into pieces. Special tokens pass through untouched.
	Apply(tokens []string, transform Transform) []string
	// ReverseLookup returns the piece stored under id, or "" for specials
	// and unassigned ids.
	ReverseLookup(id int) string
	Specials() Specials
	// Compile writes a snapshot of the vocabulary into dir.
	Compile(dir string) error
}

// Specials configures the reserved tokens of a vocabulary.
type Specials struct {
	Pad        int
	Start      int
	End        int
	Unknown    int
	PadStr     string
	StartStr   string
	EndStr     string
	UnknownStr string
	// Extra tokens get consecutive ids right after the reserved ones.
	Extra []string
}

// DefaultSpecials returns <PAD>=0, <GO>=1, <EOS>=2 and <UNK>=3.
func DefaultSpecials() Specials {
	return Specials{
		Pad:        0,
		Start:      1,
		End:        2,
		Unknown:    3,
		PadStr:     "<PAD>",
		StartStr:   "<GO>",
		EndStr:     "<EOS>",
		UnknownStr: "<UNK>",
	}
}

// table returns the special token ids and the first id free for regular entries.
func (s Specials) table() (map[string]int, int) {
	ids := map[string]int{
		s.PadStr:     s.Pad,
		s.StartStr:   s.Start,
		s.EndStr:     s.End,
		s.UnknownStr: s.Unknown,
	}
	offset := max(s.Pad, s.Start, s.End, s.Unknown) + 1
	for _, tok := range s.Extra {
		ids[tok] = offset
		offset++
	}
	return ids, offset
}

type vocabOptions struct {
	specials Specials
	minFreq  int
}

// VocabOption configures vocabulary construction.
type VocabOption func(*vocabOptions)

// WithSpecials overrides the reserved tokens.
func WithSpecials(s Specials) VocabOption {
	return func(o *vocabOptions) { o.specials = s }
}

// WithMinFreq drops counter entries seen minFreq times or fewer.
func WithMinFreq(minFreq int) VocabOption {
	return func(o *vocabOptions) { o.minFreq = minFreq }
}

func applyOptions(opts []VocabOption) vocabOptions {
	o := vocabOptions{specials: DefaultSpecials()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// base carries what both vocabulary kinds share.
type base struct {
	store    *vocab.Store
	special  map[string]int
	specials Specials
}

func newBase(o vocabOptions, build func(offset int) *vocab.Store) base {
	special, offset := o.specials.table()
	return base{
		store:    build(offset),
		special:  special,
		specials: o.specials,
	}
}

func (b *base) Lookup(s string, transform Transform) int {
	if id, ok := b.special[s]; ok {
		return id
	}
	return b.store.Lookup(orIdentity(transform)(s))
}

func (b *base) ReverseLookup(id int) string {
	p, _ := b.store.Reverse(id)
	return p
}

func (b *base) Specials() Specials { return b.specials }

// Store exposes the underlying piece table.
func (b *base) Store() *vocab.Store { return b.store }

func (b *base) isSpecial(tok string) bool {
	_, ok := b.special[tok]
	return ok
}

// WordVocab treats every transformed token as a single piece.
type WordVocab struct {
	base
}

// NewWordVocab assigns ids to pieces by position.
func NewWordVocab(pieces []string, opts ...VocabOption) *WordVocab {
	o := applyOptions(opts)
	return &WordVocab{base: newBase(o, func(offset int) *vocab.Store {
		return vocab.NewFromList(pieces, offset, o.specials.Unknown)
	})}
}

// NewWordVocabFromCounter assigns ids by descending frequency.
func NewWordVocabFromCounter(c *vocab.Counter, opts ...VocabOption) *WordVocab {
	o := applyOptions(opts)
	return &WordVocab{base: newBase(o, func(offset int) *vocab.Store {
		return vocab.NewFromCounter(c, offset, o.specials.Unknown, o.minFreq)
	})}
}

// LoadWordVocab reads a vocabulary file or compiled snapshot directory.
// WithMinFreq makes it honour the file's count column.
func LoadWordVocab(path string, opts ...VocabOption) (*WordVocab, error) {
	o := applyOptions(opts)
	_, offset := o.specials.table()
	store, err := vocab.LoadCountedFile(path, offset, o.specials.Unknown, o.minFreq)
	if err != nil {
		return nil, err
	}
	return &WordVocab{base: newBase(o, func(int) *vocab.Store { return store })}, nil
}

func (v *WordVocab) Apply(tokens []string, transform Transform) []string {
	transform = orIdentity(transform)
	pieces := make([]string, len(tokens))
	for i, tok := range tokens {
		if v.isSpecial(tok) {
			pieces[i] = tok
			continue
		}
		pieces[i] = transform(tok)
	}
	return pieces
}

func (v *WordVocab) Compile(dir string) error {
	return v.store.Compile(dir)
}

// BPEVocab splits transformed tokens into subword pieces with merge rules.
type BPEVocab struct {
	base
	table   *bpe.Table
	encoder *bpe.Encoder
}

// LoadBPEVocab reads a vocabulary file and a codes file. Either path may be
// a directory written by Compile.
func LoadBPEVocab(vocabPath, codesPath string, opts ...VocabOption) (*BPEVocab, error) {
	o := applyOptions(opts)
	_, offset := o.specials.table()
	store, err := vocab.LoadCountedFile(vocabPath, offset, o.specials.Unknown, o.minFreq)
	if err != nil {
		return nil, err
	}
	table, err := bpe.LoadCodes(codesPath)
	if err != nil {
		return nil, err
	}
	return newBPEVocab(o, table, func(int) *vocab.Store { return store }), nil
}

// NewBPEVocab builds a BPE vocabulary from in-memory pieces and rules.
func NewBPEVocab(pieces []string, rules []bpe.Pair, opts ...VocabOption) *BPEVocab {
	o := applyOptions(opts)
	return newBPEVocab(o, bpe.NewTable(rules), func(offset int) *vocab.Store {
		return vocab.NewFromList(pieces, offset, o.specials.Unknown)
	})
}

// NewBPEVocabFromCounter builds a BPE vocabulary whose piece ids follow
// descending frequency.
func NewBPEVocabFromCounter(c *vocab.Counter, rules []bpe.Pair, opts ...VocabOption) *BPEVocab {
	o := applyOptions(opts)
	return newBPEVocab(o, bpe.NewTable(rules), func(offset int) *vocab.Store {
		return vocab.NewFromCounter(c, offset, o.specials.Unknown, o.minFreq)
	})
}

func newBPEVocab(o vocabOptions, table *bpe.Table, build func(int) *vocab.Store) *BPEVocab {
	v := &BPEVocab{base: newBase(o, build), table: table}
	v.encoder = bpe.NewEncoder(table, v.store)
	return v
}

func (v *BPEVocab) Apply(tokens []string, transform Transform) []string {
	transform = orIdentity(transform)
	pieces := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if v.isSpecial(tok) {
			pieces = append(pieces, tok)
			continue
		}
		pieces = append(pieces, v.encoder.Encode(transform(tok))...)
	}
	return pieces
}

// Table exposes the merge rules.
func (v *BPEVocab) Table() *bpe.Table { return v.table }

func (v *BPEVocab) Compile(dir string) error {
	if err := v.store.Compile(dir); err != nil {
		return err
	}
	return v.table.Compile(dir)
}
