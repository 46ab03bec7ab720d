package vocab

// Store maps pieces to integer ids and back. A Store is built once and never
// mutated, so it can be shared by any number of goroutines without locking.
type Store struct {
	ids     map[string]int
	pieces  map[int]string
	unknown int
}

// NewFromList assigns ids by position, starting at offset. A piece that
// appears twice keeps the id of its last position.
func NewFromList(pieces []string, offset, unknown int) *Store {
	s := newStore(len(pieces), unknown)
	for i, p := range pieces {
		s.put(p, offset+i)
	}
	return s
}

// NewFromCounter keeps every piece counted more than minFreq times and
// assigns ids from offset in MostCommon order.
func NewFromCounter(c *Counter, offset, unknown, minFreq int) *Store {
	entries := c.MostCommon()
	s := newStore(len(entries), unknown)
	id := offset
	for _, e := range entries {
		if e.Count <= minFreq {
			continue
		}
		s.put(e.Piece, id)
		id++
	}
	return s
}

// NewFromMap wraps an explicit piece to id mapping.
func NewFromMap(ids map[string]int, unknown int) *Store {
	s := newStore(len(ids), unknown)
	for p, id := range ids {
		s.put(p, id)
	}
	return s
}

func newStore(n, unknown int) *Store {
	return &Store{
		ids:     make(map[string]int, n),
		pieces:  make(map[int]string, n),
		unknown: unknown,
	}
}

func (s *Store) put(piece string, id int) {
	s.ids[piece] = id
	s.pieces[id] = piece
}

// Lookup returns the id of piece, or the unknown id when it is absent.
func (s *Store) Lookup(piece string) int {
	if id, ok := s.ids[piece]; ok {
		return id
	}
	return s.unknown
}

// Find is Lookup with an explicit presence flag.
func (s *Store) Find(piece string) (int, bool) {
	id, ok := s.ids[piece]
	return id, ok
}

// Contains reports whether piece has an entry.
func (s *Store) Contains(piece string) bool {
	_, ok := s.ids[piece]
	return ok
}

// Reverse returns the piece stored under id.
func (s *Store) Reverse(id int) (string, bool) {
	p, ok := s.pieces[id]
	return p, ok
}

// Unknown returns the id used for pieces that are not in the store.
func (s *Store) Unknown() int { return s.unknown }

// Size returns the number of entries.
func (s *Store) Size() int { return len(s.ids) }

// Entries returns a copy of the piece to id mapping.
func (s *Store) Entries() map[string]int {
	out := make(map[string]int, len(s.ids))
	for p, id := range s.ids {
		out[p] = id
	}
	return out
}
