package chunk

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutomaticChunks_EmptyFile(t *testing.T) {
	chunks := AutomaticChunks("", "gpt-4o", 10000)
	assert.Empty(t, chunks)
}

func TestAutomaticChunks_SingleChunk(t *testing.T) {
	source := "line one\nline two\nline three"
	chunks := AutomaticChunks(source, "gpt-4o", 10000)

	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].Index)
	assert.Equal(t, 1, chunks[0].LineStart)
	assert.Equal(t, 3, chunks[0].LineEnd)
}

func TestAutomaticChunks_NeverSplitsALine_AndCoversAllLines(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("this is a moderately long line of text for chunk budget testing\n")
	}
	chunks := AutomaticChunks(b.String(), "gpt-4o", 50)

	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i+1, c.Index)
		if i > 0 {
			assert.Equal(t, chunks[i-1].LineEnd+1, c.LineStart)
		}
	}
	assert.Equal(t, 200, chunks[len(chunks)-1].LineEnd)
}

func TestParseLineRanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stem_line_ranges.txt")
	require.NoError(t, os.WriteFile(path, []byte("1-100\n101-200\n201-300\n"), 0o644))

	ranges, err := ParseLineRanges(path, 300)
	require.NoError(t, err)
	require.Len(t, ranges, 3)
	assert.Equal(t, Range{1, 100}, ranges[0])
	assert.Equal(t, Range{201, 300}, ranges[2])
}

func TestParseLineRanges_MissingFile(t *testing.T) {
	_, err := ParseLineRanges(filepath.Join(t.TempDir(), "nope.txt"), 10)
	require.Error(t, err)
}

func TestParseLineRanges_EmptyFileTreatedAsMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	_, err := ParseLineRanges(path, 10)
	require.Error(t, err)
}

func TestParseLineRanges_OverlappingRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte("1-100\n50-200\n"), 0o644))

	_, err := ParseLineRanges(path, 200)
	require.Error(t, err)
}

func TestParseLineRanges_OutOfBoundsRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte("1-500\n"), 0o644))

	_, err := ParseLineRanges(path, 100)
	require.Error(t, err)
}

func TestFromRanges(t *testing.T) {
	lines := Lines("a\nb\nc\nd\ne")
	chunks := FromRanges(lines, []Range{{1, 2}, {3, 5}})
	require.Len(t, chunks, 2)
	assert.Equal(t, "a\nb", chunks[0].Text)
	assert.Equal(t, "c\nd\ne", chunks[1].Text)
}

func TestWriteLineRanges_RoundTrip(t *testing.T) {
	ranges := []Range{{1, 100}, {101, 300}}
	text := WriteLineRanges(ranges)

	dir := t.TempDir()
	path := filepath.Join(dir, "rt.txt")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	parsed, err := ParseLineRanges(path, 300)
	require.NoError(t, err)
	assert.Equal(t, ranges, parsed)
}

func TestValidate_RejectsDuplicateIndex(t *testing.T) {
	chunks := []Chunk{{Index: 1, LineStart: 1, LineEnd: 1}, {Index: 1, LineStart: 2, LineEnd: 2}}
	err := Validate(chunks, 2)
	assert.Error(t, err)
}
