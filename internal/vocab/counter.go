package vocab

import "slices"

// Entry is a piece with its frequency.
type Entry struct {
	Piece string
	Count int
}

// Counter counts pieces and remembers the order in which they were first
// seen, so that frequency ties resolve deterministically.
type Counter struct {
	order  []string
	counts map[string]int
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// CounterFromEntries builds a Counter from explicit counts, in the given order.
func CounterFromEntries(entries ...Entry) *Counter {
	c := NewCounter()
	for _, e := range entries {
		c.Add(e.Piece, e.Count)
	}
	return c
}

// Add increments the count of piece by n.
func (c *Counter) Add(piece string, n int) {
	if _, ok := c.counts[piece]; !ok {
		c.order = append(c.order, piece)
	}
	c.counts[piece] += n
}

// Count returns the count of piece.
func (c *Counter) Count(piece string) int { return c.counts[piece] }

// Len returns the number of distinct pieces.
func (c *Counter) Len() int { return len(c.order) }

// MostCommon returns all entries sorted by descending count. Equal counts
// keep first-seen order.
func (c *Counter) MostCommon() []Entry {
	entries := make([]Entry, len(c.order))
	for i, p := range c.order {
		entries[i] = Entry{Piece: p, Count: c.counts[p]}
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return b.Count - a.Count
	})
	return entries
}
