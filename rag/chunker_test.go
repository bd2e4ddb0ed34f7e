package rag

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/raggate/llm"
	"github.com/BaSui01/raggate/llm/tokenizer"
)

func newTestChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := NewChunker(ChunkingConfig{
		ChunkTokenSize:        size,
		ChunkOverlapTokenSize: overlap,
	}, tokenizer.NewEstimator("test", 0), zap.NewNop())
	require.NoError(t, err)
	return c
}

// words builds a text of n single-token words.
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestNewChunker_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero chunk size", 0, 0},
		{"negative chunk size", -1, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(ChunkingConfig{
				ChunkTokenSize:        tt.size,
				ChunkOverlapTokenSize: tt.overlap,
			}, tokenizer.NewEstimator("test", 0), zap.NewNop())
			require.Error(t, err)
			assert.Equal(t, llm.ErrInvalidConfiguration, llm.CodeOf(err))
		})
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	c := newTestChunker(t, 100, 10)

	for _, text := range []string{"", "   ", "\n\t\n"} {
		_, err := c.Chunk(text)
		require.Error(t, err)
		assert.Equal(t, llm.ErrEmptyInput, llm.CodeOf(err))
	}
}

func TestChunk_SingleWindowWhenTextFits(t *testing.T) {
	c := newTestChunker(t, 1200, 100)

	chunks, err := c.Chunk(words(50))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 50, chunks[0].TokenCount)
	assert.Equal(t, 0, chunks[0].StartTokenOffset)
	assert.Equal(t, words(50), chunks[0].Text)
}

func TestChunk_1300WordsProducesTwoWindows(t *testing.T) {
	c := newTestChunker(t, 1200, 100)

	chunks, err := c.Chunk(words(1300))
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 0, chunks[0].StartTokenOffset)
	assert.Equal(t, 1200, chunks[0].TokenCount)

	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, 1100, chunks[1].StartTokenOffset)
	assert.Equal(t, 200, chunks[1].TokenCount)
}

func TestChunk_TrailingWindowAtStrideBoundary(t *testing.T) {
	// 100 tokens with size 20 and stride 16 place a window at every
	// offset below 100, including the clipped one at 96. The window
	// ending exactly at 100 does not stop the enumeration early.
	c := newTestChunker(t, 20, 4)

	chunks, err := c.Chunk(words(100))
	require.NoError(t, err)
	require.Len(t, chunks, 7)

	assert.Equal(t, 80, chunks[5].StartTokenOffset)
	assert.Equal(t, 20, chunks[5].TokenCount)
	assert.Equal(t, 96, chunks[6].StartTokenOffset)
	assert.Equal(t, 4, chunks[6].TokenCount)
}

func TestChunk_Deterministic(t *testing.T) {
	c := newTestChunker(t, 40, 8)
	text := words(137)

	first, err := c.Chunk(text)
	require.NoError(t, err)
	second, err := c.Chunk(text)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChunk_DelimiterPreSplit(t *testing.T) {
	c, err := NewChunker(ChunkingConfig{
		ChunkTokenSize:        10,
		ChunkOverlapTokenSize: 2,
		Delimiter:             "\n\n",
	}, tokenizer.NewEstimator("test", 0), zap.NewNop())
	require.NoError(t, err)

	small := words(4)
	big := words(25)
	chunks, err := c.Chunk(small + "\n\n" + big)
	require.NoError(t, err)

	// The small paragraph passes through whole; the big one is windowed
	// with stride 8: offsets 0, 8, 16, 24 within the segment.
	require.Len(t, chunks, 5)
	assert.Equal(t, small, chunks[0].Text)
	assert.Equal(t, 4, chunks[0].TokenCount)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.LessOrEqual(t, chunk.TokenCount, 10)
	}
	// Offsets keep counting across segments: the windowed segment starts
	// after the small segment's 4 tokens.
	assert.Equal(t, 4, chunks[1].StartTokenOffset)
	assert.Equal(t, 10, chunks[1].TokenCount)
	assert.Equal(t, 12, chunks[2].StartTokenOffset)
	assert.Equal(t, 20, chunks[3].StartTokenOffset)
	assert.Equal(t, 9, chunks[3].TokenCount)
	assert.Equal(t, 28, chunks[4].StartTokenOffset)
	assert.Equal(t, 1, chunks[4].TokenCount)
}

func TestProperty_ChunkRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		size := rapid.IntRange(2, 64).Draw(rt, "size")
		overlap := rapid.IntRange(0, size-1).Draw(rt, "overlap")
		wordCount := rapid.IntRange(1, 500).Draw(rt, "words")

		tok := tokenizer.NewEstimator("prop", 0)
		c, err := NewChunker(ChunkingConfig{
			ChunkTokenSize:        size,
			ChunkOverlapTokenSize: overlap,
		}, tok, zap.NewNop())
		require.NoError(rt, err)

		text := words(wordCount)
		chunks, err := c.Chunk(text)
		require.NoError(rt, err)
		require.NotEmpty(rt, chunks)

		// Dropping each chunk's leading overlap and concatenating the
		// remaining token spans reconstructs the original text. Trailing
		// windows clipped below the overlap contribute nothing new.
		var rebuilt strings.Builder
		for i, chunk := range chunks {
			tokens, err := tok.Encode(chunk.Text)
			require.NoError(rt, err)
			skip := 0
			if i > 0 {
				skip = overlap
				if skip > len(tokens) {
					skip = len(tokens)
				}
			}
			part, err := tok.Decode(tokens[skip:])
			require.NoError(rt, err)
			rebuilt.WriteString(part)
		}
		assert.Equal(rt, text, rebuilt.String())
	})
}

func TestProperty_ChunkInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		size := rapid.IntRange(2, 64).Draw(rt, "size")
		overlap := rapid.IntRange(0, size-1).Draw(rt, "overlap")
		wordCount := rapid.IntRange(1, 500).Draw(rt, "words")

		c, err := NewChunker(ChunkingConfig{
			ChunkTokenSize:        size,
			ChunkOverlapTokenSize: overlap,
		}, tokenizer.NewEstimator("prop", 0), zap.NewNop())
		require.NoError(rt, err)

		chunks, err := c.Chunk(words(wordCount))
		require.NoError(rt, err)

		stride := size - overlap
		if wordCount <= size {
			require.Len(rt, chunks, 1)
		} else {
			require.Len(rt, chunks, (wordCount+stride-1)/stride)
		}
		for i, chunk := range chunks {
			assert.Equal(rt, i, chunk.Index)
			assert.Equal(rt, i*stride, chunk.StartTokenOffset)
			// Every window is clipped to the token count, full otherwise.
			want := size
			if rest := wordCount - i*stride; rest < want {
				want = rest
			}
			assert.Equal(rt, want, chunk.TokenCount)
		}
		// The final window always reaches the end of the document.
		last := chunks[len(chunks)-1]
		assert.Equal(rt, wordCount, last.StartTokenOffset+last.TokenCount)
	})
}
