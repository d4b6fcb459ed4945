// Package knowledge manages the knowledge base: it chunks and embeds incoming
// text, writes it to the vector store, and retrieves scored context blocks
// for generation.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hrygo/sidekick/ai/chunker"
	"github.com/hrygo/sidekick/ai/embedding"
	"github.com/hrygo/sidekick/ai/metrics"
	"github.com/hrygo/sidekick/ai/vector"
)

const (
	// upsertBatchSize bounds a single store write; a failed multi-batch
	// ingest may leave an unknown prefix applied, retrying by id is safe.
	upsertBatchSize = 100

	// storedTextLimit caps how much chunk text is kept alongside the vector.
	storedTextLimit = 1000

	// contextSeparator joins formatted retrieval results into one block.
	contextSeparator = "\n\n---\n\n"
)

// Config tunes chunking and retrieval.
type Config struct {
	ChunkSize           int     // default: 500
	ChunkOverlap        int     // default: 50
	TopK                int     // default: 5
	SimilarityThreshold float32 // default: 0.7
}

type Service struct {
	store     vector.Store
	embedder  embedding.Service
	cfg       Config
	supported map[string]bool
}

func NewService(store vector.Store, embedder embedding.Service, cfg Config) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 500
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.7
	}
	return &Service{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		supported: map[string]bool{
			".txt": true, ".md": true, ".json": true, ".csv": true,
		},
	}
}

// IngestText chunks text, embeds every chunk in one batch call, and writes
// the vectors to the store in fixed-size batches. Returns the generated
// document ids, one per chunk.
func (s *Service) IngestText(ctx context.Context, text, source, category string) ([]string, error) {
	if !s.store.Connected() {
		return nil, vector.ErrNotConnected
	}

	chunks := chunker.Chunk(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}

	if source == "" {
		source = "manual_input"
	}

	entries := make([]vector.Entry, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		metadata := map[string]any{
			"source":       source,
			"chunk_index":  i,
			"total_chunks": len(chunks),
		}
		if category != "" {
			metadata["category"] = category
		}

		ids[i] = uuid.New().String()
		entries[i] = vector.Entry{
			ID:       ids[i],
			Vector:   vectors[i],
			Text:     truncateRunes(chunk, storedTextLimit),
			Metadata: metadata,
		}
	}

	for start := 0; start < len(entries); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := s.store.UpsertBatch(ctx, entries[start:end]); err != nil {
			return nil, fmt.Errorf("upsert batch [%d:%d]: %w", start, end, err)
		}
	}

	metrics.IngestedChunks.Add(float64(len(chunks)))
	slog.Info("ingested text", "source", source, "chunks", len(chunks), "category", category)
	return ids, nil
}

// Search embeds the query and returns matches at or above the similarity
// threshold, most similar first.
func (s *Service) Search(ctx context.Context, query string, topK int, category string) ([]vector.Result, error) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var filter map[string]any
	if category != "" {
		filter = map[string]any{"category": category}
	}

	matches, err := s.store.Query(ctx, queryVector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	// The backends return neighbors ranked by similarity; thresholding is
	// applied here so all of them behave identically.
	results := matches[:0]
	for _, match := range matches {
		if match.Score >= s.cfg.SimilarityThreshold {
			results = append(results, match)
		}
	}
	return results, nil
}

// RetrieveContext runs a similarity search and formats the surviving results
// into a single attributed context block. An empty block means "no usable
// context", not an error: a disconnected store or sub-threshold matches both
// land there.
func (s *Service) RetrieveContext(ctx context.Context, query string, topK int, category string) (string, []vector.Result, error) {
	if !s.store.Connected() {
		return "", nil, nil
	}

	results, err := s.Search(ctx, query, topK, category)
	if err != nil {
		return "", nil, err
	}
	if len(results) == 0 {
		return "", nil, nil
	}

	parts := make([]string, len(results))
	for i, result := range results {
		source := "unknown"
		if v, ok := result.Metadata["source"].(string); ok && v != "" {
			source = v
		}
		parts[i] = fmt.Sprintf("[Source: %s] (Relevance: %.2f)\n%s", source, result.Score, result.Text)
	}

	metrics.RetrievedResults.Observe(float64(len(results)))
	return strings.Join(parts, contextSeparator), results, nil
}

// Stats reports vector store statistics.
func (s *Service) Stats(ctx context.Context) (*vector.Stats, error) {
	if !s.store.Connected() {
		return nil, vector.ErrNotConnected
	}
	return s.store.Stats(ctx)
}

// Clear removes every document from the knowledge base.
func (s *Service) Clear(ctx context.Context) error {
	if !s.store.Connected() {
		return vector.ErrNotConnected
	}
	return s.store.DeleteAll(ctx)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
