// Package store provides the Redis-backed chunk store and the retrieval
// backend built on it: cosine-similarity search over stored chunk
// vectors, with the generated answer produced by the completion
// provider.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm"
	"github.com/BaSui01/raggate/rag"
)

// Completer generates the final answer from the retrieved context.
type Completer interface {
	Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error)
}

// Config tunes the store.
type Config struct {
	// KeyPrefix namespaces the Redis keys. Empty means "raggate:".
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
	// TopK is how many chunks feed the answer prompt. Zero means 5.
	TopK int `json:"top_k" yaml:"top_k"`
	// Model is the completion model used for answers. Empty uses the
	// provider default.
	Model string `json:"model" yaml:"model"`
}

// RedisStore persists embedded chunks in Redis and answers queries by
// cosine similarity over them. It implements both rag.Indexer and
// rag.Retriever.
type RedisStore struct {
	client   *redis.Client
	embedder rag.Embedder
	llm      Completer
	config   Config
	logger   *zap.Logger
}

// storedChunk is the Redis persistence shape for one chunk.
type storedChunk struct {
	DocumentID string    `json:"document_id"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	Vector     []float64 `json:"vector"`
}

// New creates a RedisStore. The embedder vectorizes queries; the
// completer turns retrieved context into an answer.
func New(client *redis.Client, embedder rag.Embedder, completer Completer, config Config, logger *zap.Logger) *RedisStore {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "raggate:"
	}
	if config.TopK <= 0 {
		config.TopK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:   client,
		embedder: embedder,
		llm:      completer,
		config:   config,
		logger:   logger,
	}
}

func (s *RedisStore) chunksKey() string {
	return s.config.KeyPrefix + "chunks"
}

// IndexDocument persists every chunk of doc.
func (s *RedisStore) IndexDocument(ctx context.Context, doc *rag.IndexedDocument) error {
	pipe := s.client.Pipeline()
	for _, chunk := range doc.Chunks {
		data, err := json.Marshal(storedChunk{
			DocumentID: doc.ID,
			Index:      chunk.Index,
			Text:       chunk.Text,
			Vector:     chunk.Vector,
		})
		if err != nil {
			return fmt.Errorf("marshal chunk %d: %w", chunk.Index, err)
		}
		pipe.RPush(ctx, s.chunksKey(), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist document %s: %w", doc.ID, err)
	}
	return nil
}

// Retrieve embeds the question, ranks stored chunks by cosine
// similarity, and asks the completion provider to answer from the top
// matches. The retrieval mode is forwarded into the answer prompt.
func (s *RedisStore) Retrieve(ctx context.Context, question string, mode rag.QueryMode) (string, error) {
	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}
	query := vectors[0]

	passages, err := s.topChunks(ctx, query)
	if err != nil {
		return "", err
	}
	if len(passages) == 0 {
		return "", &llm.Error{
			Code:    llm.ErrInvalidRequest,
			Message: "no documents indexed yet",
		}
	}

	result, err := s.llm.Complete(ctx, &llm.CompletionRequest{
		Prompt:       question,
		SystemPrompt: buildSystemPrompt(mode, passages),
		Model:        s.config.Model,
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// Ping reports store connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type scoredChunk struct {
	text  string
	score float64
}

// topChunks loads all stored chunks and returns the TopK most similar
// texts. A full scan is acceptable at this layer; large corpora belong
// in a dedicated vector database.
func (s *RedisStore) topChunks(ctx context.Context, query []float64) ([]string, error) {
	raw, err := s.client.LRange(ctx, s.chunksKey(), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	scored := make([]scoredChunk, 0, len(raw))
	for _, item := range raw {
		var chunk storedChunk
		if err := json.Unmarshal([]byte(item), &chunk); err != nil {
			s.logger.Warn("skipping undecodable chunk", zap.Error(err))
			continue
		}
		scored = append(scored, scoredChunk{
			text:  chunk.Text,
			score: cosine(query, chunk.Vector),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > s.config.TopK {
		scored = scored[:s.config.TopK]
	}

	texts := make([]string, len(scored))
	for i, sc := range scored {
		texts[i] = sc.text
	}
	return texts, nil
}

// cosine computes cosine similarity; mismatched or zero vectors score 0.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func buildSystemPrompt(mode rag.QueryMode, passages []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You answer questions using the retrieved context below. Retrieval mode: %s.\n", mode)
	b.WriteString("If the context does not contain the answer, say so.\n\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[passage %d]\n%s\n\n", i+1, p)
	}
	return b.String()
}
