package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/sidekick/store"
)

type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	Current      bool      `json:"current"`
}

type ConversationDetail struct {
	ConversationSummary
	Messages []store.Message `json:"messages"`
}

func (s *APIV1Service) conversationSummary(conv *store.Conversation) ConversationSummary {
	current, ok := s.Conversations.Current()
	return ConversationSummary{
		ID:           conv.ID(),
		Title:        conv.Title(),
		CreatedAt:    conv.CreatedAt(),
		MessageCount: conv.MessageCount(),
		Current:      ok && current.ID() == conv.ID(),
	}
}

// ListConversations returns all conversations, newest first.
func (s *APIV1Service) ListConversations(c echo.Context) error {
	conversations := s.Conversations.List()
	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		summaries = append(summaries, s.conversationSummary(conv))
	}
	return c.JSON(http.StatusOK, summaries)
}

// CreateConversation starts a new conversation and makes it current.
func (s *APIV1Service) CreateConversation(c echo.Context) error {
	conv := s.Conversations.Create(c.Request().Context())
	return c.JSON(http.StatusCreated, s.conversationSummary(conv))
}

func (s *APIV1Service) GetConversation(c echo.Context) error {
	conv, ok := s.Conversations.Get(c.Param("id"))
	if !ok {
		return errorJSON(c, http.StatusNotFound, "conversation not found")
	}
	return c.JSON(http.StatusOK, ConversationDetail{
		ConversationSummary: s.conversationSummary(conv),
		Messages:            conv.Messages(),
	})
}

func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	if !s.Conversations.Delete(c.Request().Context(), c.Param("id")) {
		return errorJSON(c, http.StatusNotFound, "conversation not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// SwitchConversation makes the given conversation current. An unknown id
// leaves the current selection untouched.
func (s *APIV1Service) SwitchConversation(c echo.Context) error {
	conv, ok := s.Conversations.Switch(c.Param("id"))
	if !ok {
		return errorJSON(c, http.StatusNotFound, "conversation not found")
	}
	return c.JSON(http.StatusOK, s.conversationSummary(conv))
}
