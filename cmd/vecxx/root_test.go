package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-vecxx/internal/client"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func fixtureFlags(vocabPath, codesPath string) []string {
	return []string{"--vocab", vocabPath, "--codes", codesPath, "--log-level", "error"}
}

func TestCLI_Pieces(t *testing.T) {
	args := append([]string{"pieces"}, fixtureFlags(filepath.Join("testdata", "vocab.txt"), filepath.Join("testdata", "codes.txt"))...)
	out, err := runCLI(t, testSentence+"\nin Washtenaw County\n", args...)
	require.NoError(t, err)
	assert.Equal(t,
		"<GO> my name is dan . i am from ann ar@@ bor , michigan , in wash@@ ten@@ aw county <EOS>\n"+
			"<GO> in wash@@ ten@@ aw county <EOS>\n",
		out)
}

func TestCLI_IDs(t *testing.T) {
	flags := fixtureFlags(filepath.Join("testdata", "vocab.txt"), filepath.Join("testdata", "codes.txt"))

	t.Run("plain", func(t *testing.T) {
		out, err := runCLI(t, "My name is Dan .\n", append([]string{"ids"}, flags...)...)
		require.NoError(t, err)
		assert.Equal(t, "1 4 5 6 7 8 2\n", out)
	})

	t.Run("max length", func(t *testing.T) {
		out, err := runCLI(t, "My name\n", append([]string{"ids", "--max-length", "6"}, flags...)...)
		require.NoError(t, err)
		assert.Equal(t, "1 4 5 2 0 0\n", out)
	})

	t.Run("stack", func(t *testing.T) {
		out, err := runCLI(t, "My name\nin Washtenaw County\n", append([]string{"ids", "--stack"}, flags...)...)
		require.NoError(t, err)
		assert.Equal(t, "1 4 5 2 0 0 0\n1 17 18 19 20 21 2\n", out)
	})

	t.Run("arrow", func(t *testing.T) {
		out, err := runCLI(t, "My name\n", append([]string{"ids", "--arrow"}, flags...)...)
		require.NoError(t, err)

		reader, err := ipc.NewReader(strings.NewReader(out))
		require.NoError(t, err)
		defer reader.Release()
		require.True(t, reader.Next())
		ids, sizes, err := client.ReadIDs(reader.Record())
		require.NoError(t, err)
		assert.Equal(t, [][]int{{1, 4, 5, 2}}, ids)
		assert.Equal(t, []int{4}, sizes)
	})

	t.Run("remote uses local max length", func(t *testing.T) {
		addr := startTestFlightServer(t, ServerOptions{MaxLength: 3})

		out, err := runCLI(t, "My name\n", append([]string{"ids", "--remote", addr, "--max-length", "6"}, flags...)...)
		require.NoError(t, err)
		assert.Equal(t, "1 4 5 2 0 0\n", out)

		out, err = runCLI(t, "My name\n", append([]string{"ids", "--remote", addr}, flags...)...)
		require.NoError(t, err)
		assert.Equal(t, "1 4 5 2\n", out)
	})

	t.Run("remote rejects stack", func(t *testing.T) {
		_, err := runCLI(t, "My name\n", append([]string{"ids", "--remote", "localhost:1", "--stack"}, flags...)...)
		assert.ErrorContains(t, err, "--stack")
	})

	t.Run("bad kind", func(t *testing.T) {
		_, err := runCLI(t, "", append([]string{"ids", "--vocab-kind", "nope"}, flags...)...)
		assert.Error(t, err)
	})
}

func TestCLI_CompileAndDecode(t *testing.T) {
	dir := t.TempDir()
	flags := fixtureFlags(filepath.Join("testdata", "vocab.txt"), filepath.Join("testdata", "codes.txt"))

	_, err := runCLI(t, "", append([]string{"compile", dir}, flags...)...)
	require.NoError(t, err)

	compiled := fixtureFlags(dir, dir)
	out, err := runCLI(t, testSentence+"\n", append([]string{"ids"}, compiled...)...)
	require.NoError(t, err)
	assert.Equal(t, "1 4 5 6 7 8 9 10 11 12 13 14 15 16 15 17 18 19 20 21 2\n", out)

	out, err = runCLI(t, out, append([]string{"decode"}, compiled...)...)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(testSentence)+"\n", out)
}

func TestCLI_WordVocab(t *testing.T) {
	dir := t.TempDir()
	words := filepath.Join(dir, "words.txt")
	require.NoError(t, writeFile(words, "my\nname\nis\ndan\n"))

	out, err := runCLI(t, "My name is Bob\n", "ids", "--vocab-kind", "word", "--vocab", words, "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "1 4 5 6 3 2\n", out)
}

func TestCLI_MinFreq(t *testing.T) {
	dir := t.TempDir()
	words := filepath.Join(dir, "words.txt")
	require.NoError(t, writeFile(words, "my 1\nname 1\nis 100\n"))
	base := []string{"ids", "--vocab-kind", "word", "--vocab", words, "--log-level", "error"}

	out, err := runCLI(t, "my name is\n", base...)
	require.NoError(t, err)
	assert.Equal(t, "1 4 5 6 2\n", out)

	out, err = runCLI(t, "my name is\n", append(base, "--min-freq", "5")...)
	require.NoError(t, err)
	assert.Equal(t, "1 3 3 4 2\n", out)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
