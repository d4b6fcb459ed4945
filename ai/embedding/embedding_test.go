package embedding

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(&Config{Dimensions: 384})
	require.Error(t, err, "missing model must be rejected")

	_, err = NewService(&Config{Model: "all-minilm"})
	require.Error(t, err, "missing dimensions must be rejected")
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit wins", Config{Provider: "ollama", BaseURL: "http://remote:9000/v1"}, "http://remote:9000/v1"},
		{"ollama default", Config{Provider: "ollama"}, "http://localhost:11434/v1"},
		{"deepseek default", Config{Provider: "deepseek"}, "https://api.deepseek.com"},
		{"siliconflow default", Config{Provider: "siliconflow"}, "https://api.siliconflow.cn/v1"},
		{"openai stays on library default", Config{Provider: "openai"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveBaseURL(&tt.cfg))
		})
	}
}

func TestEmbedBatchSendsConfiguredDimensions(t *testing.T) {
	var captured map[string]any
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.1, 0.2, 0.3, 0.4]}],
			"model": "all-minilm"
		}`))
	}))
	defer backend.Close()

	svc, err := NewService(&Config{
		Model:      "all-minilm",
		BaseURL:    backend.URL,
		Dimensions: 4,
	})
	require.NoError(t, err)

	vectors, err := svc.EmbedBatch(context.Background(), []string{"some text"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, vectors[0])

	// The configured dimension rides along so the provider truncates at the
	// source instead of the stores rejecting mismatched vectors.
	assert.Equal(t, float64(4), captured["dimensions"])
	assert.Equal(t, "all-minilm", captured["model"])
}

func TestEmbedBatchRejectsEmptyInput(t *testing.T) {
	svc, err := NewService(&Config{Model: "all-minilm", Dimensions: 4})
	require.NoError(t, err)

	_, err = svc.EmbedBatch(context.Background(), nil)
	assert.Error(t, err)
}
