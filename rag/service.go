// Package rag implements the document ingestion and query layer: token
// window chunking, order-preserving batch embedding, and query dispatch
// to an external retrieval backend.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/raggate/llm"
)

// QueryMode selects a retrieval strategy. Modes are forwarded verbatim
// to the retrieval backend; this layer only validates them.
type QueryMode string

const (
	QueryModeNaive  QueryMode = "naive"
	QueryModeLocal  QueryMode = "local"
	QueryModeGlobal QueryMode = "global"
	QueryModeHybrid QueryMode = "hybrid"
)

// ParseQueryMode validates a mode string.
func ParseQueryMode(s string) (QueryMode, error) {
	switch mode := QueryMode(strings.ToLower(s)); mode {
	case QueryModeNaive, QueryModeLocal, QueryModeGlobal, QueryModeHybrid:
		return mode, nil
	default:
		return "", &llm.Error{
			Code:    llm.ErrInvalidRequest,
			Message: fmt.Sprintf("unknown query mode %q (want naive, local, global or hybrid)", s),
		}
	}
}

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Indexer persists an embedded document. Storage internals are the
// collaborator's concern.
type Indexer interface {
	IndexDocument(ctx context.Context, doc *IndexedDocument) error
}

// Retriever answers a question under a retrieval strategy.
type Retriever interface {
	Retrieve(ctx context.Context, question string, mode QueryMode) (string, error)
}

// EmbeddedChunk pairs a chunk with its embedding vector.
type EmbeddedChunk struct {
	Chunk
	Vector []float64 `json:"vector"`
}

// IndexedDocument is one ingested document ready for persistence.
type IndexedDocument struct {
	ID     string          `json:"id"`
	Chunks []EmbeddedChunk `json:"chunks"`
}

// InsertResult summarizes a document-insertion call.
type InsertResult struct {
	DocumentIDs []string `json:"document_ids"`
	ChunkCount  int      `json:"chunk_count"`
}

// QueryResult is the answer to a query call.
type QueryResult struct {
	Answer string    `json:"answer"`
	Mode   QueryMode `json:"mode"`
}

// ServiceConfig tunes the ingestion pipeline. Chunking parameters live
// on the injected Chunker.
type ServiceConfig struct {
	// MaxConcurrentEmbeddings bounds in-flight embedding calls during
	// ingestion. Zero means 4.
	MaxConcurrentEmbeddings int `json:"max_concurrent_embeddings" yaml:"max_concurrent_embeddings"`

	// EmbedBatchSize is how many chunk texts go into one embedding
	// call. Zero means 16.
	EmbedBatchSize int `json:"embed_batch_size" yaml:"embed_batch_size"`
}

// ServiceObserver receives ingestion and query metrics.
type ServiceObserver interface {
	ObserveDocumentProcessed(chunks int)
	ObserveQuery(mode string)
}

// Service wires the chunker, embedder, indexer and retriever into the
// two inbound operations: document insertion and querying.
type Service struct {
	chunker   *Chunker
	embedder  Embedder
	indexer   Indexer
	retriever Retriever
	config    ServiceConfig
	observer  ServiceObserver
	logger    *zap.Logger
}

// NewService creates the RAG service. The observer may be nil.
func NewService(chunker *Chunker, embedder Embedder, indexer Indexer, retriever Retriever,
	config ServiceConfig, observer ServiceObserver, logger *zap.Logger) *Service {
	if config.MaxConcurrentEmbeddings <= 0 {
		config.MaxConcurrentEmbeddings = 4
	}
	if config.EmbedBatchSize <= 0 {
		config.EmbedBatchSize = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		chunker:   chunker,
		embedder:  embedder,
		indexer:   indexer,
		retriever: retriever,
		config:    config,
		observer:  observer,
		logger:    logger,
	}
}

// InsertDocuments chunks, embeds and indexes each document. Documents
// are processed sequentially; a document's embedding calls run
// concurrently under the configured bound with results collected in
// chunk order.
func (s *Service) InsertDocuments(ctx context.Context, documents []string) (*InsertResult, error) {
	if len(documents) == 0 {
		return nil, &llm.Error{
			Code:    llm.ErrEmptyInput,
			Message: "no documents to insert",
		}
	}

	result := &InsertResult{DocumentIDs: make([]string, 0, len(documents))}
	for i, text := range documents {
		chunks, err := s.chunker.Chunk(text)
		if err != nil {
			return nil, fmt.Errorf("chunk document %d: %w", i, err)
		}

		vectors, err := s.embedChunks(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("embed document %d: %w", i, err)
		}

		doc := &IndexedDocument{
			ID:     uuid.NewString(),
			Chunks: make([]EmbeddedChunk, len(chunks)),
		}
		for j, chunk := range chunks {
			doc.Chunks[j] = EmbeddedChunk{Chunk: chunk, Vector: vectors[j]}
		}
		if err := s.indexer.IndexDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("index document %d: %w", i, err)
		}

		result.DocumentIDs = append(result.DocumentIDs, doc.ID)
		result.ChunkCount += len(chunks)
		if s.observer != nil {
			s.observer.ObserveDocumentProcessed(len(chunks))
		}
		s.logger.Info("document indexed",
			zap.String("document_id", doc.ID),
			zap.Int("chunks", len(chunks)))
	}
	return result, nil
}

// embedChunks embeds chunk texts in batches. Batches run concurrently
// but each writes into its own position range, so the returned vectors
// line up with the chunk order regardless of completion order.
func (s *Service) embedChunks(ctx context.Context, chunks []Chunk) ([][]float64, error) {
	vectors := make([][]float64, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrentEmbeddings)

	for start := 0; start < len(chunks); start += s.config.EmbedBatchSize {
		end := start + s.config.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, end := start, end

		g.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = chunks[i].Text
			}
			batch, err := s.embedder.Embed(gctx, texts)
			if err != nil {
				return err
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), len(texts))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Query validates the mode and forwards the question to the retrieval
// backend.
func (s *Service) Query(ctx context.Context, question string, mode QueryMode) (*QueryResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &llm.Error{
			Code:    llm.ErrEmptyInput,
			Message: "query question is empty",
		}
	}
	mode, err := ParseQueryMode(string(mode))
	if err != nil {
		return nil, err
	}

	answer, err := s.retriever.Retrieve(ctx, question, mode)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	if s.observer != nil {
		s.observer.ObserveQuery(string(mode))
	}
	return &QueryResult{Answer: answer, Mode: mode}, nil
}
