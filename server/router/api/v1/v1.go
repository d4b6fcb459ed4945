// Package v1 implements the REST API.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/hrygo/sidekick/ai/generation"
	"github.com/hrygo/sidekick/ai/knowledge"
	"github.com/hrygo/sidekick/ai/llm"
	"github.com/hrygo/sidekick/ai/vector"
	"github.com/hrygo/sidekick/internal/profile"
	"github.com/hrygo/sidekick/store"
)

type APIV1Service struct {
	Profile       *profile.Profile
	Knowledge     *knowledge.Service
	Orchestrator  *generation.Orchestrator
	Conversations *store.Manager
	LLM           llm.Service
	VectorStore   vector.Store
}

// Register mounts all v1 routes on the echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/chat", s.Chat)

	g.POST("/knowledge/ingest", s.IngestDocument)
	g.POST("/knowledge/ingest/file", s.IngestFile)
	g.POST("/knowledge/search", s.SearchKnowledge)
	g.GET("/knowledge/stats", s.KnowledgeStats)
	g.DELETE("/knowledge/clear", s.ClearKnowledge)

	g.GET("/conversations", s.ListConversations)
	g.POST("/conversations", s.CreateConversation)
	g.GET("/conversations/:id", s.GetConversation)
	g.DELETE("/conversations/:id", s.DeleteConversation)
	g.POST("/conversations/:id/switch", s.SwitchConversation)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func errorJSON(c echo.Context, status int, detail string) error {
	return c.JSON(status, errorResponse{Detail: detail})
}
