package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/sidekick/ai/generation"
	"github.com/hrygo/sidekick/ai/metrics"
	"github.com/hrygo/sidekick/ai/vector"
	"github.com/hrygo/sidekick/store"
)

// historyWindow bounds how many prior messages are folded into the prompt.
const historyWindow = 10

type ChatRequest struct {
	Message          string   `json:"message"`
	ConversationID   string   `json:"conversation_id,omitempty"`
	UseKnowledgeBase *bool    `json:"use_knowledge_base,omitempty"`
	CategoryFilter   string   `json:"category_filter,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	Temperature      *float32 `json:"temperature,omitempty"`
	Stream           bool     `json:"stream,omitempty"`
}

type ChatSource struct {
	Source    string  `json:"source"`
	Relevance float32 `json:"relevance"`
}

type ChatResponse struct {
	Response       string       `json:"response"`
	Sources        []ChatSource `json:"sources,omitempty"`
	ContextUsed    bool         `json:"context_used"`
	ConversationID string       `json:"conversation_id"`
}

// Chat answers a user message, optionally grounded on the knowledge base.
// With "stream": true the response is sent as SSE token events terminated by
// a [DONE] sentinel; otherwise a single JSON body is returned. Generation
// backend failures degrade to a diagnostic answer instead of an HTTP error.
func (s *APIV1Service) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return errorJSON(c, http.StatusBadRequest, "message is required")
	}

	ctx := c.Request().Context()

	var conv *store.Conversation
	if req.ConversationID != "" {
		var ok bool
		if conv, ok = s.Conversations.Get(req.ConversationID); !ok {
			return errorJSON(c, http.StatusNotFound, "conversation not found")
		}
	} else {
		conv = s.Conversations.CurrentOrCreate(ctx)
	}

	// Snapshot the transcript before recording the new message so the prompt
	// does not contain the question twice.
	history := conv.ContextString(historyWindow)
	if _, err := s.Conversations.AppendMessage(ctx, conv.ID(), store.RoleUser, req.Message, nil); err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	contextBlock, sources, contextUsed := s.retrieveChatContext(c, &req)

	genReq := &generation.Request{
		Prompt:      composePrompt(history, req.Message),
		Context:     contextBlock,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	if req.Stream {
		return s.streamChat(c, conv, genReq, sources, contextUsed)
	}

	start := time.Now()
	result := s.Orchestrator.Generate(ctx, genReq)
	metrics.ChatLatency.Observe(time.Since(start).Seconds())
	metrics.ChatRequests.WithLabelValues(outcomeLabel(result)).Inc()

	s.recordAssistantMessage(c, conv.ID(), result.Text, sources)

	return c.JSON(http.StatusOK, ChatResponse{
		Response:       result.Text,
		Sources:        sources,
		ContextUsed:    contextUsed,
		ConversationID: conv.ID(),
	})
}

// retrieveChatContext fetches the knowledge context for a chat turn. Retrieval
// failures are logged and treated as "no context"; the chat must still answer.
func (s *APIV1Service) retrieveChatContext(c echo.Context, req *ChatRequest) (string, []ChatSource, bool) {
	useKnowledge := req.UseKnowledgeBase == nil || *req.UseKnowledgeBase
	if !useKnowledge || s.Knowledge == nil {
		return "", nil, false
	}

	contextBlock, results, err := s.Knowledge.RetrieveContext(
		c.Request().Context(), req.Message, 0, req.CategoryFilter)
	if err != nil {
		slog.Warn("context retrieval failed, answering without it", "error", err)
		return "", nil, false
	}
	if contextBlock == "" {
		return "", nil, false
	}
	return contextBlock, chatSources(results), true
}

func chatSources(results []vector.Result) []ChatSource {
	sources := make([]ChatSource, 0, len(results))
	for _, r := range results {
		source := "unknown"
		if v, ok := r.Metadata["source"].(string); ok && v != "" {
			source = v
		}
		sources = append(sources, ChatSource{Source: source, Relevance: r.Score})
	}
	return sources
}

func composePrompt(history, message string) string {
	if history == "" {
		return message
	}
	return fmt.Sprintf("Previous conversation:\n%s\n\nCurrent message: %s", history, message)
}

func outcomeLabel(result generation.Result) string {
	switch {
	case result.Degraded:
		return "degraded"
	case result.Err != nil:
		// A non-degraded error, eg. the client cancelled mid-stream.
		return "error"
	default:
		return "ok"
	}
}

type tokenEvent struct {
	Token string `json:"token"`
}

func (s *APIV1Service) streamChat(c echo.Context, conv *store.Conversation, genReq *generation.Request, sources []ChatSource, contextUsed bool) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Conversation-Id", conv.ID())
	resp.Header().Set("X-Context-Used", fmt.Sprintf("%t", contextUsed))
	resp.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	start := time.Now()
	fragments, resultChan := s.Orchestrator.GenerateStream(ctx, genReq)

	var answer []byte
	for fragment := range fragments {
		answer = append(answer, fragment...)
		payload, err := json.Marshal(tokenEvent{Token: fragment})
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
			// Client went away. Drain so the generator shuts down.
			slog.Debug("chat stream client disconnected", "error", err)
			break
		}
		resp.Flush()
	}
	_, _ = fmt.Fprint(resp, "data: [DONE]\n\n")
	resp.Flush()

	result := <-resultChan
	metrics.ChatLatency.Observe(time.Since(start).Seconds())
	metrics.ChatRequests.WithLabelValues(outcomeLabel(result)).Inc()

	s.recordAssistantMessage(c, conv.ID(), string(answer), sources)
	return nil
}

func (s *APIV1Service) recordAssistantMessage(c echo.Context, conversationID, text string, sources []ChatSource) {
	if text == "" {
		return
	}
	attributions := make([]store.Source, 0, len(sources))
	for _, src := range sources {
		attributions = append(attributions, store.Source{Source: src.Source, Relevance: src.Relevance})
	}
	if _, err := s.Conversations.AppendMessage(
		c.Request().Context(), conversationID, store.RoleAssistant, text, attributions); err != nil {
		slog.Warn("failed to record assistant message", "conversation", conversationID, "error", err)
	}
}
