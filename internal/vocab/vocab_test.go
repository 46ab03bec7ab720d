package vocab

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vocabList = []string{
	"arbor", ",", "ann", "in", ".", "my", "is", "from", "dan",
	"washtenaw", "michigan", "am", "name", "county", "i",
}

func TestStore_FromList(t *testing.T) {
	s := NewFromList(vocabList, 4, 3)

	t.Run("ids by position", func(t *testing.T) {
		assert.Equal(t, 4, s.Lookup("arbor"))
		assert.Equal(t, 5, s.Lookup(","))
		assert.Equal(t, 18, s.Lookup("i"))
		assert.Equal(t, len(vocabList), s.Size())
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Equal(t, 3, s.Lookup("zebra"))
		assert.Equal(t, 3, s.Lookup(""))
		_, ok := s.Find("zebra")
		assert.False(t, ok)
	})

	t.Run("reverse", func(t *testing.T) {
		p, ok := s.Reverse(12)
		require.True(t, ok)
		assert.Equal(t, "dan", p)
		_, ok = s.Reverse(3)
		assert.False(t, ok)
	})

	t.Run("duplicate keeps last position", func(t *testing.T) {
		d := NewFromList([]string{"a", "b", "a"}, 0, 9)
		assert.Equal(t, 2, d.Lookup("a"))
		assert.Equal(t, 1, d.Lookup("b"))
	})
}

func TestCounter_MostCommon(t *testing.T) {
	c := NewCounter()
	for _, p := range strings.Fields("b a c a d b a") {
		c.Add(p, 1)
	}
	assert.Equal(t, 4, c.Len())
	assert.Equal(t, 3, c.Count("a"))
	assert.Equal(t, []Entry{
		{Piece: "a", Count: 3},
		{Piece: "b", Count: 2},
		{Piece: "c", Count: 1},
		{Piece: "d", Count: 1},
	}, c.MostCommon())
}

func TestStore_FromCounter(t *testing.T) {
	c := CounterFromEntries(
		Entry{"washtenaw", 1}, Entry{"michigan", 1}, Entry{",", 2}, Entry{"rare", 0},
	)

	s := NewFromCounter(c, 4, 3, 0)
	assert.Equal(t, 4, s.Lookup(","))
	assert.Equal(t, 5, s.Lookup("washtenaw"))
	assert.Equal(t, 6, s.Lookup("michigan"))
	assert.False(t, s.Contains("rare"))

	s = NewFromCounter(c, 4, 3, 1)
	assert.Equal(t, 1, s.Size())
	assert.Equal(t, 4, s.Lookup(","))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte("the 120\nof 99\n\nand\n"), 0o644))

	s, err := LoadFile(path, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Lookup("the"))
	assert.Equal(t, 5, s.Lookup("of"))
	assert.Equal(t, 6, s.Lookup("and"))
	assert.Equal(t, 3, s.Lookup("120"))

	_, err = LoadFile(filepath.Join(dir, "missing.txt"), 4, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadCountedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte("my 1\nname 1\nis 100\nof 7\n\nbare\n"), 0o644))

	t.Run("cutoff drops rare and uncounted", func(t *testing.T) {
		s, err := LoadCountedFile(path, 4, 3, 5)
		require.NoError(t, err)
		assert.Equal(t, 2, s.Size())
		assert.Equal(t, 4, s.Lookup("is"))
		assert.Equal(t, 5, s.Lookup("of"))
		assert.Equal(t, 3, s.Lookup("my"))
		assert.Equal(t, 3, s.Lookup("bare"))
	})

	t.Run("zero keeps file order", func(t *testing.T) {
		s, err := LoadCountedFile(path, 4, 3, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, s.Size())
		assert.Equal(t, 4, s.Lookup("my"))
		assert.Equal(t, 8, s.Lookup("bare"))
	})

	t.Run("bad count", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.txt")
		require.NoError(t, os.WriteFile(bad, []byte("my 1\nname lots\n"), 0o644))
		_, err := LoadCountedFile(bad, 4, 3, 1)
		assert.ErrorContains(t, err, "bad count")
	})
}

func TestSnapshot(t *testing.T) {
	dir := t.TempDir()
	s := NewFromList(vocabList, 4, 3)
	require.NoError(t, s.Compile(filepath.Join(dir, "compiled")))

	loaded, err := LoadFile(filepath.Join(dir, "compiled"), 100, 3)
	require.NoError(t, err)
	assert.Equal(t, s.Entries(), loaded.Entries())
	assert.Equal(t, 12, loaded.Lookup("dan"))

	t.Run("version mismatch", func(t *testing.T) {
		path := filepath.Join(dir, "old.snap")
		require.NoError(t, SaveSnapshot(path, storeSnapshot{Version: 99}))
		_, err := LoadStoreSnapshot(path, 3)
		assert.ErrorIs(t, err, ErrSnapshotVersion)
	})
}
