package v1

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/sidekick/ai/knowledge"
	"github.com/hrygo/sidekick/ai/vector"
)

type DocumentIngestRequest struct {
	Text     string `json:"text"`
	Source   string `json:"source,omitempty"`
	Category string `json:"category,omitempty"`
}

type DocumentIngestResponse struct {
	Success       bool     `json:"success"`
	DocumentIDs   []string `json:"document_ids"`
	ChunksCreated int      `json:"chunks_created"`
	Message       string   `json:"message"`
}

func (s *APIV1Service) IngestDocument(c echo.Context) error {
	var req DocumentIngestRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return errorJSON(c, http.StatusBadRequest, "text is required")
	}

	ids, err := s.Knowledge.IngestText(c.Request().Context(), req.Text, req.Source, req.Category)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, DocumentIngestResponse{
		Success:       true,
		DocumentIDs:   ids,
		ChunksCreated: len(ids),
		Message:       fmt.Sprintf("Successfully ingested document into %d chunks", len(ids)),
	})
}

type FileIngestRequest struct {
	Path      string `json:"path"`
	Category  string `json:"category,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
}

type FileIngestResult struct {
	DocumentIDs []string `json:"document_ids,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type FileIngestResponse struct {
	Success bool                        `json:"success"`
	Files   map[string]FileIngestResult `json:"files"`
}

// IngestFile ingests a file, or every supported file of a directory. Per-file
// failures inside a directory are reported alongside the successes instead of
// failing the whole request.
func (s *APIV1Service) IngestFile(c echo.Context) error {
	var req FileIngestRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Path == "" {
		return errorJSON(c, http.StatusBadRequest, "path is required")
	}

	ctx := c.Request().Context()

	if info, statErr := os.Stat(req.Path); statErr == nil && !info.IsDir() {
		ids, err := s.Knowledge.IngestFile(ctx, req.Path, req.Category)
		if err != nil {
			if errors.Is(err, knowledge.ErrUnsupportedInput) {
				return errorJSON(c, http.StatusBadRequest, err.Error())
			}
			return errorJSON(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, FileIngestResponse{
			Success: true,
			Files:   map[string]FileIngestResult{req.Path: {DocumentIDs: ids}},
		})
	}

	results, err := s.Knowledge.IngestDirectory(ctx, req.Path, req.Category, req.Recursive)
	if err != nil {
		if errors.Is(err, knowledge.ErrUnsupportedInput) {
			return errorJSON(c, http.StatusBadRequest, err.Error())
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	resp := FileIngestResponse{Success: true, Files: make(map[string]FileIngestResult, len(results))}
	for path, result := range results {
		fr := FileIngestResult{DocumentIDs: result.DocumentIDs}
		if result.Err != nil {
			fr.Error = result.Err.Error()
			resp.Success = false
		}
		resp.Files[path] = fr
	}
	return c.JSON(http.StatusOK, resp)
}

type SearchRequest struct {
	Query    string `json:"query"`
	TopK     int    `json:"top_k,omitempty"`
	Category string `json:"category,omitempty"`
}

type SearchResult struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float32        `json:"score"`
	Source   string         `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type SearchResponse struct {
	Results      []SearchResult `json:"results"`
	Query        string         `json:"query"`
	TotalResults int            `json:"total_results"`
}

func (s *APIV1Service) SearchKnowledge(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return errorJSON(c, http.StatusBadRequest, "query is required")
	}

	matches, err := s.Knowledge.Search(c.Request().Context(), req.Query, req.TopK, req.Category)
	if err != nil {
		if errors.Is(err, vector.ErrNotConnected) {
			return errorJSON(c, http.StatusServiceUnavailable, err.Error())
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	results := make([]SearchResult, 0, len(matches))
	for _, match := range matches {
		source, _ := match.Metadata["source"].(string)
		results = append(results, SearchResult{
			ID:       match.ID,
			Text:     match.Text,
			Score:    match.Score,
			Source:   source,
			Metadata: match.Metadata,
		})
	}

	return c.JSON(http.StatusOK, SearchResponse{
		Results:      results,
		Query:        req.Query,
		TotalResults: len(results),
	})
}

type KnowledgeStatsResponse struct {
	TotalVectors  int64   `json:"total_vectors"`
	Dimension     int     `json:"dimension"`
	IndexFullness float64 `json:"index_fullness"`
}

func (s *APIV1Service) KnowledgeStats(c echo.Context) error {
	stats, err := s.Knowledge.Stats(c.Request().Context())
	if err != nil {
		if errors.Is(err, vector.ErrNotConnected) {
			return errorJSON(c, http.StatusServiceUnavailable, err.Error())
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, KnowledgeStatsResponse{
		TotalVectors:  stats.Count,
		Dimension:     stats.Dimension,
		IndexFullness: stats.Fullness,
	})
}

func (s *APIV1Service) ClearKnowledge(c echo.Context) error {
	if err := s.Knowledge.Clear(c.Request().Context()); err != nil {
		if errors.Is(err, vector.ErrNotConnected) {
			return errorJSON(c, http.StatusServiceUnavailable, err.Error())
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Knowledge base cleared successfully"})
}
