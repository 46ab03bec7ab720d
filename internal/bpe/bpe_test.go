package bpe

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/23skdu/longbow-vecxx/internal/vocab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixtures(t *testing.T) (*Table, *vocab.Store) {
	t.Helper()
	table, err := LoadCodes(filepath.Join("testdata", "codes.txt"))
	require.NoError(t, err)
	store, err := vocab.LoadFile(filepath.Join("testdata", "vocab.txt"), 4, 3)
	require.NoError(t, err)
	return table, store
}

func TestTable(t *testing.T) {
	table := NewTable([]Pair{{"a", "b"}, {"b", "c"}, {"a", "b"}, {"", "x"}})

	t.Run("duplicate pair takes last rank", func(t *testing.T) {
		r, ok := table.Rank("a", "b")
		require.True(t, ok)
		assert.Equal(t, 2, r)
	})

	t.Run("absent pair", func(t *testing.T) {
		_, ok := table.Rank("c", "a")
		assert.False(t, ok)
		_, ok = table.Rank("", "x")
		assert.False(t, ok)
	})

	t.Run("split", func(t *testing.T) {
		p, ok := table.Split("bc")
		require.True(t, ok)
		assert.Equal(t, Pair{"b", "c"}, p)
		_, ok = table.Split("x")
		assert.False(t, ok)
	})

	assert.Equal(t, 4, table.Len())
}

func TestParseCodes(t *testing.T) {
	rules, err := ParseCodes(strings.NewReader("#version: 0.2\nh e 10\n\nhe llo</w>\n"))
	require.NoError(t, err)
	assert.Equal(t, []Pair{{"h", "e"}, {"he", "llo</w>"}}, rules)

	_, err = ParseCodes(strings.NewReader("h e\nbroken\n"))
	assert.ErrorIs(t, err, ErrMalformedRule)
}

func TestLoadCodes_Snapshot(t *testing.T) {
	table, _ := loadFixtures(t)
	dir := t.TempDir()
	require.NoError(t, table.Compile(dir))

	loaded, err := LoadCodes(dir)
	require.NoError(t, err)
	assert.Equal(t, table.Rules(), loaded.Rules())

	r, ok := loaded.Rank("ar", "bor</w>")
	require.True(t, ok)
	assert.Equal(t, 21, r)
}

func TestEncoder_Sentence(t *testing.T) {
	table, store := loadFixtures(t)
	enc := NewEncoder(table, store)

	tests := []struct {
		word string
		want []string
	}{
		{"my", []string{"my"}},
		{"name", []string{"name"}},
		{"dan", []string{"dan"}},
		{".", []string{"."}},
		{"from", []string{"from"}},
		{"arbor", []string{"ar@@", "bor"}},
		{"michigan", []string{"michigan"}},
		{"washtenaw", []string{"wash@@", "ten@@", "aw"}},
		{"county", []string{"county"}},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			assert.Equal(t, tt.want, enc.Encode(tt.word))
		})
	}
}

func TestEncoder_NestedDecomposition(t *testing.T) {
	table := NewTable([]Pair{{"a", "b"}, {"c", "d</w>"}, {"ab", "cd</w>"}})

	tests := []struct {
		name   string
		pieces []string
		want   []string
	}{
		{"whole word known", []string{"abcd"}, []string{"abcd"}},
		{"one level", []string{"ab@@", "cd"}, []string{"ab@@", "cd"}},
		{"left half split again", []string{"a@@", "b@@", "cd"}, []string{"a@@", "b@@", "cd"}},
		{"both halves split again", []string{"a@@", "b@@", "c@@", "d"}, []string{"a@@", "b@@", "c@@", "d"}},
		{"unsplittable leaf kept", []string{"b@@", "cd"}, []string{"a@@", "b@@", "cd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := NewEncoder(table, vocab.NewFromList(tt.pieces, 4, 3))
			assert.Equal(t, tt.want, enc.Encode("abcd"))
		})
	}
}

func TestEncoder_WithoutVocabulary(t *testing.T) {
	table, _ := loadFixtures(t)
	enc := NewEncoder(table, nil)

	assert.Equal(t, []string{"arbor"}, enc.Encode("arbor"))
	assert.Equal(t, []string{"wash@@", "ten@@", "aw"}, enc.Encode("washtenaw"))
}

func TestEncoder_EdgeCases(t *testing.T) {
	table, store := loadFixtures(t)
	enc := NewEncoder(table, store)

	t.Run("empty word", func(t *testing.T) {
		assert.Empty(t, enc.Encode(""))
	})

	t.Run("single character", func(t *testing.T) {
		assert.Equal(t, []string{"z"}, enc.Encode("z"))
	})

	t.Run("characters without rules", func(t *testing.T) {
		assert.Equal(t, []string{"x@@", "y@@", "z"}, enc.Encode("xyz"))
	})

	t.Run("multibyte characters", func(t *testing.T) {
		assert.Equal(t, []string{"é@@", "ß"}, enc.Encode("éß"))
	})
}

func TestEncoder_MergeOrder(t *testing.T) {
	t.Run("lowest rank wins over position", func(t *testing.T) {
		enc := NewEncoder(NewTable([]Pair{{"b", "c</w>"}, {"a", "b"}}), nil)
		assert.Equal(t, []string{"a@@", "bc"}, enc.Encode("abc"))
	})

	t.Run("leftmost pair wins a tie", func(t *testing.T) {
		enc := NewEncoder(NewTable([]Pair{{"a", "a"}}), nil)
		assert.Equal(t, []string{"aa@@", "a@@", "a"}, enc.Encode("aaaa"))
	})

	t.Run("end marker distinguishes final character", func(t *testing.T) {
		enc := NewEncoder(NewTable([]Pair{{"a", "b</w>"}}), nil)
		assert.Equal(t, []string{"ab"}, enc.Encode("ab"))
		assert.Equal(t, []string{"a@@", "b@@", "c"}, enc.Encode("abc"))
	})
}

func TestEncoder_RoundTrip(t *testing.T) {
	table, store := loadFixtures(t)
	encoders := map[string]*Encoder{
		"restricted":   NewEncoder(table, store),
		"unrestricted": NewEncoder(table, nil),
	}
	words := []string{
		"washtenaw", "arbor", "annarbor", "michigander", "countyseat",
		"ünïcödé", "日本語", "a", "\xff\xfeab", "name@@name",
	}
	for name, enc := range encoders {
		t.Run(name, func(t *testing.T) {
			for _, w := range words {
				pieces := enc.Encode(w)
				var b strings.Builder
				for i, p := range pieces {
					if i < len(pieces)-1 {
						p = strings.TrimSuffix(p, Continuation)
					}
					b.WriteString(p)
				}
				assert.Equal(t, w, b.String(), "word %q pieces %v", w, pieces)
			}
		})
	}
}
