package rag

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm"
	"github.com/BaSui01/raggate/llm/tokenizer"
)

// ChunkingConfig configures the token-window chunker.
type ChunkingConfig struct {
	// ChunkTokenSize is the window width in tokens. Must be positive.
	ChunkTokenSize int `json:"chunk_token_size" yaml:"chunk_token_size"`

	// ChunkOverlapTokenSize is how many tokens adjacent windows share.
	// Must satisfy 0 <= overlap < ChunkTokenSize.
	ChunkOverlapTokenSize int `json:"chunk_overlap_token_size" yaml:"chunk_overlap_token_size"`

	// Delimiter, when non-empty, pre-splits the text on natural
	// boundaries before windowing. Segments already within
	// ChunkTokenSize pass through as single chunks; oversized segments
	// are windowed individually.
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
}

// DefaultChunkingConfig returns the default chunking parameters.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkTokenSize:        1200,
		ChunkOverlapTokenSize: 100,
	}
}

// Validate checks the window parameters.
func (c ChunkingConfig) Validate() error {
	if c.ChunkTokenSize <= 0 {
		return &llm.Error{
			Code:    llm.ErrInvalidConfiguration,
			Message: "chunk_token_size must be positive",
		}
	}
	if c.ChunkOverlapTokenSize < 0 || c.ChunkOverlapTokenSize >= c.ChunkTokenSize {
		return &llm.Error{
			Code:    llm.ErrInvalidConfiguration,
			Message: "chunk_overlap_token_size must be in [0, chunk_token_size)",
		}
	}
	return nil
}

// Chunk is one token window of a document. Chunks are immutable once
// produced; Index follows document order.
type Chunk struct {
	Index            int    `json:"index"`
	Text             string `json:"text"`
	TokenCount       int    `json:"token_count"`
	StartTokenOffset int    `json:"start_token_offset"`
}

// Chunker splits text into overlapping token windows. Chunking is a pure
// function of (text, config, tokenizer): identical inputs always yield
// identical chunks. Instances are safe for concurrent use.
type Chunker struct {
	config    ChunkingConfig
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewChunker creates a Chunker. It fails if the window parameters are
// invalid, so a constructed Chunker never produces a configuration error.
func NewChunker(config ChunkingConfig, tok tokenizer.Tokenizer, logger *zap.Logger) (*Chunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{config: config, tokenizer: tok, logger: logger}, nil
}

// Chunk splits text into ordered, overlapping token windows. Windows
// start at every stride offset below the token count, so trailing
// windows may be clipped short; a text within ChunkTokenSize is exactly
// one chunk.
func (c *Chunker) Chunk(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &llm.Error{
			Code:    llm.ErrEmptyInput,
			Message: "cannot chunk empty text",
		}
	}

	var (
		chunks []Chunk
		err    error
	)
	if c.config.Delimiter != "" {
		chunks, err = c.chunkWithDelimiter(text)
	} else {
		chunks, err = c.window(text, 0, 0)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug("chunked document",
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_token_size", c.config.ChunkTokenSize),
		zap.Int("overlap", c.config.ChunkOverlapTokenSize))
	return chunks, nil
}

// window produces token windows over text. startIndex and startOffset
// seed the chunk index and token offset so delimiter segments compose
// into one continuous sequence.
func (c *Chunker) window(text string, startIndex, startOffset int) ([]Chunk, error) {
	tokens, err := c.tokenizer.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("encode text: %w", err)
	}
	n := len(tokens)
	if n == 0 {
		return nil, nil
	}

	// A text within the window is exactly one chunk. Longer texts take a
	// window at every stride offset below n, including trailing offsets
	// whose windows are clipped short.
	if n <= c.config.ChunkTokenSize {
		decoded, err := c.tokenizer.Decode(tokens)
		if err != nil {
			return nil, fmt.Errorf("decode window at token 0: %w", err)
		}
		return []Chunk{{
			Index:            startIndex,
			Text:             decoded,
			TokenCount:       n,
			StartTokenOffset: startOffset,
		}}, nil
	}

	stride := c.config.ChunkTokenSize - c.config.ChunkOverlapTokenSize
	chunks := make([]Chunk, 0, (n+stride-1)/stride)

	for start := 0; start < n; start += stride {
		end := start + c.config.ChunkTokenSize
		if end > n {
			end = n
		}
		decoded, err := c.tokenizer.Decode(tokens[start:end])
		if err != nil {
			return nil, fmt.Errorf("decode window at token %d: %w", start, err)
		}
		chunks = append(chunks, Chunk{
			Index:            startIndex + len(chunks),
			Text:             decoded,
			TokenCount:       end - start,
			StartTokenOffset: startOffset + start,
		})
	}
	return chunks, nil
}

// chunkWithDelimiter splits on the configured delimiter first. Segments
// within the token budget become single chunks; oversized segments fall
// back to windowing. Token offsets keep counting across segments.
func (c *Chunker) chunkWithDelimiter(text string) ([]Chunk, error) {
	var chunks []Chunk
	offset := 0

	for _, segment := range strings.Split(text, c.config.Delimiter) {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		count, err := c.tokenizer.CountTokens(segment)
		if err != nil {
			return nil, fmt.Errorf("count segment tokens: %w", err)
		}
		if count <= c.config.ChunkTokenSize {
			chunks = append(chunks, Chunk{
				Index:            len(chunks),
				Text:             segment,
				TokenCount:       count,
				StartTokenOffset: offset,
			})
			offset += count
			continue
		}
		sub, err := c.window(segment, len(chunks), offset)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, sub...)
		offset += count
	}
	return chunks, nil
}
