package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/phuslu/log"

	"github.com/dyike/stella/internal/models"
)

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) analyze(c *gin.Context) {
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	if len(req.ChatHistory) > 0 {
		log.Debug().Int("turns", len(req.ChatHistory)).Msg("chat history received")
	}
	c.JSON(http.StatusOK, models.AnalysisResponse{Result: s.runner.Run(c.Request.Context(), req)})
}

func (s *Server) batchAnalyze(c *gin.Context) {
	var reqs []models.QueryRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	results := s.runner.RunBatch(c.Request.Context(), reqs)
	out := make([]models.AnalysisResponse, len(results))
	for i, r := range results {
		out[i] = models.AnalysisResponse{Result: r}
	}
	c.JSON(http.StatusOK, out)
}

type historyEntry struct {
	ID        string `json:"id"`
	Query     string `json:"query"`
	Source    string `json:"source"`
	Task      string `json:"task"`
	Response  string `json:"response"`
	Status    string `json:"status"`
	ElapsedMS int64  `json:"elapsed_ms"`
	CreatedAt string `json:"created_at"`
	Cursor    int64  `json:"cursor"`
}

func (s *Server) listHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "query history is disabled"})
		return
	}
	cursor, _ := strconv.ParseInt(c.Query("cursor"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	recs, err := s.history.List(c.Request.Context(), cursor, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list history")
		c.JSON(http.StatusInternalServerError, gin.H{"err": "failed to list history"})
		return
	}
	out := make([]historyEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, historyEntry{
			ID:        r.ID,
			Query:     r.Query,
			Source:    r.Source,
			Task:      r.Task,
			Response:  r.Response,
			Status:    r.Status,
			ElapsedMS: r.Elapsed.Milliseconds(),
			CreatedAt: r.CreatedAt,
			Cursor:    r.RowID,
		})
	}
	c.JSON(http.StatusOK, out)
}
