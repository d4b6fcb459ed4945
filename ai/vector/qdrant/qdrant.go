// Package qdrant implements the vector store gateway on top of a Qdrant
// instance, one collection per deployment with cosine distance.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/hrygo/sidekick/ai/vector"
)

type Store struct {
	client     *qdrant.Client
	collection string
	dimension  int
	connected  bool
}

// Config holds Qdrant connection settings.
type Config struct {
	Host       string
	Collection string
	Port       int
	Dimension  int
}

// New connects to Qdrant and ensures the collection exists.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	s := &Store{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}

	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", cfg.Collection, err)
	}
	if !exists {
		if err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.Collection,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     uint64(cfg.Dimension),
						Distance: qdrant.Distance_Cosine,
					},
				},
			},
		}); err != nil {
			return nil, fmt.Errorf("create collection %s: %w", cfg.Collection, err)
		}
		slog.Info("created qdrant collection", "collection", cfg.Collection, "dimension", cfg.Dimension)
	}

	s.connected = true
	return s, nil
}

func (s *Store) Connected() bool { return s.connected }

func (s *Store) Upsert(ctx context.Context, entry vector.Entry) error {
	return s.UpsertBatch(ctx, []vector.Entry{entry})
}

func (s *Store) UpsertBatch(ctx context.Context, entries []vector.Entry) error {
	if !s.connected {
		return vector.ErrNotConnected
	}

	points := make([]*qdrant.PointStruct, len(entries))
	for i, entry := range entries {
		id := entry.ID
		if id == "" {
			id = uuid.New().String()
		}

		payload := map[string]any{"text": entry.Text}
		for k, v := range entry.Metadata {
			payload[k] = v
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(entry.Vector...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vec []float32, topK int, filter map[string]any) ([]vector.Result, error) {
	if !s.connected {
		return nil, nil
	}

	limit := uint64(topK)
	var qf *qdrant.Filter
	if len(filter) > 0 {
		qf = &qdrant.Filter{}
		for key, value := range filter {
			qf.Must = append(qf.Must, qdrant.NewMatch(key, fmt.Sprintf("%v", value)))
		}
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Limit:          &limit,
		Filter:         qf,
		Query:          qdrant.NewQuery(vec...),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	results := make([]vector.Result, 0, len(points))
	for _, p := range points {
		metadata := make(map[string]any, len(p.Payload))
		for key, v := range p.Payload {
			metadata[key] = convertValue(v)
		}

		text := ""
		if v, ok := metadata["text"].(string); ok {
			text = v
		}

		var id string
		if p.Id != nil {
			switch x := p.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				id = x.Uuid
			case *qdrant.PointId_Num:
				id = fmt.Sprintf("%d", x.Num)
			}
		}

		results = append(results, vector.Result{
			ID:       id,
			Score:    p.Score,
			Text:     text,
			Metadata: metadata,
		})
	}
	return results, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if !s.connected {
		return vector.ErrNotConnected
	}
	if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(id)),
	}); err != nil {
		return fmt.Errorf("qdrant delete %s: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if !s.connected {
		return vector.ErrNotConnected
	}
	// An empty filter selects every point in the collection.
	if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{}),
	}); err != nil {
		return fmt.Errorf("qdrant delete all: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (*vector.Stats, error) {
	if !s.connected {
		return nil, vector.ErrNotConnected
	}
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant count: %w", err)
	}
	return &vector.Stats{
		Count:     int64(count),
		Dimension: s.dimension,
	}, nil
}

func (s *Store) Close() error {
	s.connected = false
	return s.client.Close()
}

func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		out := make([]any, len(val.ListValue.Values))
		for i, lv := range val.ListValue.Values {
			out[i] = convertValue(lv)
		}
		return out
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(val.StructValue.Fields))
		for k, nv := range val.StructValue.Fields {
			out[k] = convertValue(nv)
		}
		return out
	}
	return nil
}
