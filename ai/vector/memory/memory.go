// Package memory provides a brute-force in-memory vector store. It is the
// default backend for development and tests; similarity is cosine.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/hrygo/sidekick/ai/vector"
)

type Store struct {
	entries   map[string]vector.Entry
	mu        sync.RWMutex
	dimension int
}

// New creates an empty store for vectors of the given dimension.
func New(dimension int) *Store {
	return &Store{
		entries:   make(map[string]vector.Entry),
		dimension: dimension,
	}
}

func (s *Store) Connected() bool { return true }

func (s *Store) Upsert(_ context.Context, entry vector.Entry) error {
	if len(entry.Vector) != s.dimension {
		return fmt.Errorf("vector dimension %d, want %d", len(entry.Vector), s.dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	return nil
}

func (s *Store) UpsertBatch(ctx context.Context, entries []vector.Entry) error {
	for _, entry := range entries {
		if err := s.Upsert(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Query(_ context.Context, vec []float32, topK int, filter map[string]any) ([]vector.Result, error) {
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]vector.Result, 0, len(s.entries))
	for _, entry := range s.entries {
		if !matchesFilter(entry.Metadata, filter) {
			continue
		}
		results = append(results, vector.Result{
			ID:       entry.ID,
			Score:    cosineSimilarity(vec, entry.Vector),
			Text:     entry.Text,
			Metadata: entry.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *Store) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]vector.Entry)
	return nil
}

func (s *Store) Stats(_ context.Context) (*vector.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &vector.Stats{
		Count:     int64(len(s.entries)),
		Dimension: s.dimension,
	}, nil
}

func (s *Store) Close() error { return nil }

func matchesFilter(metadata, filter map[string]any) bool {
	for key, want := range filter {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

// cosineSimilarity clamps negative similarity to 0 so scores stay in [0,1],
// matching what the hosted backends report.
func cosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		cos = 0
	}
	return float32(cos)
}
