package chunker

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitter(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
		wantErr   string
	}{
		{name: "valid", chunkSize: 800, overlap: 150},
		{name: "zero overlap", chunkSize: 10, overlap: 0},
		{name: "zero chunk size", chunkSize: 0, overlap: 0, wantErr: "chunk size must be positive"},
		{name: "negative overlap", chunkSize: 10, overlap: -1, wantErr: "overlap cannot be negative"},
		{name: "overlap equals size", chunkSize: 10, overlap: 10, wantErr: "must be less than chunk size"},
		{name: "overlap exceeds size", chunkSize: 10, overlap: 20, wantErr: "must be less than chunk size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSplitter(tt.chunkSize, tt.overlap)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, s)
		})
	}
}

func TestSplit_Example(t *testing.T) {
	s, err := NewSplitter(3, 1)
	require.NoError(t, err)

	chunks := s.Split("a b c d e")
	require.Len(t, chunks, 2)
	assert.Equal(t, Chunk{Index: 0, Text: "a b c"}, chunks[0])
	assert.Equal(t, Chunk{Index: 1, Text: "c d e"}, chunks[1])
}

func TestSplit_EmptyInput(t *testing.T) {
	s, err := NewSplitter(800, 150)
	require.NoError(t, err)

	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split("   \n\t  "))
	assert.Empty(t, s.SplitPages(nil))
	assert.Empty(t, s.SplitPages([]string{"", "  \n"}))
}

func TestSplit_ShortInput(t *testing.T) {
	s, err := NewSplitter(10, 2)
	require.NoError(t, err)

	chunks := s.Split("only three words")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "only three words", chunks[0].Text)
}

func TestSplit_NormalizesWhitespace(t *testing.T) {
	s, err := NewSplitter(4, 0)
	require.NoError(t, err)

	chunks := s.Split("one\ttwo\n\nthree    four")
	require.Len(t, chunks, 1)
	assert.Equal(t, "one two three four", chunks[0].Text)
}

func TestSplit_Deterministic(t *testing.T) {
	s, err := NewSplitter(7, 3)
	require.NoError(t, err)

	text := words(123)
	assert.Equal(t, s.Split(text), s.Split(text))
}

// TestSplit_Coverage checks the coverage property: stripping the overlap from
// every chunk after the first reconstructs the original word sequence, so no
// words are dropped and none invented.
func TestSplit_Coverage(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		chunkSize := 1 + rng.Intn(20)
		overlap := rng.Intn(chunkSize)
		wordCount := rng.Intn(100)

		s, err := NewSplitter(chunkSize, overlap)
		require.NoError(t, err)

		text := words(wordCount)
		chunks := s.Split(text)

		if wordCount == 0 {
			assert.Empty(t, chunks)
			continue
		}

		var rebuilt []string
		for j, c := range chunks {
			assert.Equal(t, j, c.Index)
			cw := strings.Fields(c.Text)
			if j == 0 {
				rebuilt = append(rebuilt, cw...)
				continue
			}
			// The chunk starts step words after the previous one, i.e. at
			// rebuilt position j*step; everything before that is overlap.
			start := j * (chunkSize - overlap)
			require.LessOrEqual(t, start, len(rebuilt))
			rebuilt = append(rebuilt[:start], cw...)
		}

		assert.Equal(t, strings.Fields(text), rebuilt,
			"chunkSize=%d overlap=%d words=%d", chunkSize, overlap, wordCount)
	}
}

func TestSplitPages_PageAttribution(t *testing.T) {
	s, err := NewSplitter(3, 1)
	require.NoError(t, err)

	chunks := s.SplitPages([]string{"a b c", "d e"})
	require.Len(t, chunks, 2)
	assert.Equal(t, Chunk{Index: 0, Text: "a b c", Page: 1}, chunks[0])
	// Window starts at word index 2, which is still on page 1.
	assert.Equal(t, Chunk{Index: 1, Text: "c d e", Page: 1}, chunks[1])

	chunks = s.SplitPages([]string{"a b", "c d e f"})
	require.Len(t, chunks, 3)
	assert.Equal(t, Chunk{Index: 0, Text: "a b c", Page: 1}, chunks[0])
	assert.Equal(t, Chunk{Index: 1, Text: "c d e", Page: 2}, chunks[1]) // starts at word "c" on page 2
	assert.Equal(t, Chunk{Index: 2, Text: "e f", Page: 2}, chunks[2])
}

func TestSplitPages_EmptyPagesAdvanceNumbering(t *testing.T) {
	s, err := NewSplitter(5, 0)
	require.NoError(t, err)

	chunks := s.SplitPages([]string{"", "only page two"})
	require.Len(t, chunks, 1)
	assert.Equal(t, 2, chunks[0].Page)
}

// words returns n space-separated distinct words.
func words(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "w%d", i)
	}
	return b.String()
}
