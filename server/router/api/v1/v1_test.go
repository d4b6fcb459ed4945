package v1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/sidekick/ai/generation"
	"github.com/hrygo/sidekick/ai/knowledge"
	"github.com/hrygo/sidekick/ai/llm"
	"github.com/hrygo/sidekick/ai/vector/memory"
	"github.com/hrygo/sidekick/internal/profile"
	"github.com/hrygo/sidekick/store"
)

type stubLLM struct {
	chatErr   error
	chatText  string
	fragments []string
}

func (m *stubLLM) Chat(_ context.Context, _ []llm.Message, _ *llm.CallOptions) (string, error) {
	return m.chatText, m.chatErr
}

func (m *stubLLM) ChatStream(_ context.Context, _ []llm.Message, _ *llm.CallOptions) (<-chan string, <-chan error) {
	contentChan := make(chan string, len(m.fragments)+1)
	errChan := make(chan error, 1)
	if m.chatErr != nil {
		errChan <- m.chatErr
	} else {
		for _, f := range m.fragments {
			contentChan <- f
		}
	}
	close(contentChan)
	close(errChan)
	return contentChan, errChan
}

func (m *stubLLM) Ping(_ context.Context) error { return m.chatErr }

type identityEmbedder struct{ dim int }

func (e identityEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for i, r := range text {
		vec[i%e.dim] += float32(r % 13)
	}
	return vec, nil
}

func (e identityEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e identityEmbedder) Dimensions() int { return e.dim }

func newTestService(t *testing.T, backend *stubLLM) (*APIV1Service, *echo.Echo) {
	t.Helper()
	vectorStore := memory.New(8)
	knowledgeService := knowledge.NewService(vectorStore, identityEmbedder{dim: 8}, knowledge.Config{
		ChunkSize:           500,
		SimilarityThreshold: 0.01,
	})
	svc := &APIV1Service{
		Profile:       &profile.Profile{Mode: "dev"},
		Knowledge:     knowledgeService,
		Orchestrator:  generation.NewOrchestrator(backend),
		Conversations: store.NewManager(context.Background(), nil),
		LLM:           backend,
		VectorStore:   vectorStore,
	}
	e := echo.New()
	svc.Register(e)
	return svc, e
}

func doJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestChatSync(t *testing.T) {
	svc, e := newTestService(t, &stubLLM{chatText: "Paris is the capital of France."})

	rec := doJSON(e, http.MethodPost, "/api/v1/knowledge/ingest",
		`{"text": "Paris is the capital of France.", "source": "geo.txt"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(e, http.MethodPost, "/api/v1/chat",
		`{"message": "Paris is the capital of France?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := rec.Body.String()
	assert.Contains(t, body, `"response":"Paris is the capital of France."`)
	assert.Contains(t, body, `"context_used":true`)
	assert.Contains(t, body, `"source":"geo.txt"`)

	// Both turns must be recorded on the conversation.
	current, ok := svc.Conversations.Current()
	require.True(t, ok)
	messages := current.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Equal(t, store.RoleAssistant, messages[1].Role)
	assert.NotEmpty(t, messages[1].Sources)
}

func TestChatEmptyMessage(t *testing.T) {
	_, e := newTestService(t, &stubLLM{chatText: "x"})

	rec := doJSON(e, http.MethodPost, "/api/v1/chat", `{"message": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatUnknownConversation(t *testing.T) {
	_, e := newTestService(t, &stubLLM{chatText: "x"})

	rec := doJSON(e, http.MethodPost, "/api/v1/chat",
		`{"message": "hi", "conversation_id": "nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatDegradesWhenBackendDown(t *testing.T) {
	_, e := newTestService(t, &stubLLM{chatErr: context.DeadlineExceeded})

	rec := doJSON(e, http.MethodPost, "/api/v1/chat",
		`{"message": "hi", "use_knowledge_base": false}`)
	require.Equal(t, http.StatusOK, rec.Code, "gateway failures must not surface as HTTP errors")
	assert.Contains(t, rec.Body.String(), "unavailable")
}

func TestChatStream(t *testing.T) {
	_, e := newTestService(t, &stubLLM{fragments: []string{"Hel", "lo"}})

	rec := doJSON(e, http.MethodPost, "/api/v1/chat",
		`{"message": "hi", "stream": true, "use_knowledge_base": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	body := rec.Body.String()
	assert.Contains(t, body, `data: {"token":"Hel"}`)
	assert.Contains(t, body, `data: {"token":"lo"}`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"), body)
}

func TestChatStreamDegraded(t *testing.T) {
	_, e := newTestService(t, &stubLLM{chatErr: context.DeadlineExceeded})

	rec := doJSON(e, http.MethodPost, "/api/v1/chat",
		`{"message": "hi", "stream": true, "use_knowledge_base": false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Equal(t, 1, strings.Count(body, "data: {"), "exactly one diagnostic event expected")
	assert.Contains(t, body, "unavailable")
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"), body)
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		name   string
		result generation.Result
		want   string
	}{
		{"success", generation.Result{Text: "answer"}, "ok"},
		{"degraded backend", generation.Result{Text: "diag", Degraded: true, Err: context.DeadlineExceeded}, "degraded"},
		{"cancelled stream", generation.Result{Err: context.Canceled}, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outcomeLabel(tt.result))
		})
	}
}

func TestSearchKnowledge(t *testing.T) {
	_, e := newTestService(t, &stubLLM{})

	rec := doJSON(e, http.MethodPost, "/api/v1/knowledge/ingest",
		`{"text": "Go compiles fast.", "source": "go.txt", "category": "tech"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/knowledge/search",
		`{"query": "Go compiles fast.", "top_k": 3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"go.txt"`)

	// A category filter that matches nothing returns an empty result set.
	rec = doJSON(e, http.MethodPost, "/api/v1/knowledge/search",
		`{"query": "Go compiles fast.", "category": "cooking"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_results":0`)
}

func TestSearchRequiresQuery(t *testing.T) {
	_, e := newTestService(t, &stubLLM{})

	rec := doJSON(e, http.MethodPost, "/api/v1/knowledge/search", `{"query": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKnowledgeStatsAndClear(t *testing.T) {
	_, e := newTestService(t, &stubLLM{})

	rec := doJSON(e, http.MethodPost, "/api/v1/knowledge/ingest",
		`{"text": "some knowledge"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/stats", nil)
	statsRec := httptest.NewRecorder()
	e.ServeHTTP(statsRec, req)
	require.Equal(t, http.StatusOK, statsRec.Code)
	assert.Contains(t, statsRec.Body.String(), `"total_vectors":1`)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/knowledge/clear", nil)
	clearRec := httptest.NewRecorder()
	e.ServeHTTP(clearRec, req)
	require.Equal(t, http.StatusOK, clearRec.Code)

	statsRec = httptest.NewRecorder()
	e.ServeHTTP(statsRec, httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/stats", nil))
	assert.Contains(t, statsRec.Body.String(), `"total_vectors":0`)
}

func TestConversationLifecycle(t *testing.T) {
	svc, e := newTestService(t, &stubLLM{})

	rec := doJSON(e, http.MethodPost, "/api/v1/conversations", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	first, ok := svc.Conversations.Current()
	require.True(t, ok)

	rec = doJSON(e, http.MethodPost, "/api/v1/conversations", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	listRec := httptest.NewRecorder()
	e.ServeHTTP(listRec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil))
	require.Equal(t, http.StatusOK, listRec.Code)
	assert.Equal(t, 2, strings.Count(listRec.Body.String(), `"id":`))

	rec = doJSON(e, http.MethodPost, "/api/v1/conversations/"+first.ID()+"/switch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	current, ok := svc.Conversations.Current()
	require.True(t, ok)
	assert.Equal(t, first.ID(), current.ID())

	rec = doJSON(e, http.MethodPost, "/api/v1/conversations/unknown/switch", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	delRec := httptest.NewRecorder()
	e.ServeHTTP(delRec, httptest.NewRequest(http.MethodDelete, "/api/v1/conversations/"+first.ID(), nil))
	require.Equal(t, http.StatusNoContent, delRec.Code)
	if _, ok := svc.Conversations.Current(); ok {
		t.Fatal("deleting the current conversation must leave none selected")
	}

	getRec := httptest.NewRecorder()
	e.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/"+first.ID(), nil))
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}
