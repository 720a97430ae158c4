package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/dyike/stella/consts"
	"github.com/dyike/stella/internal/models"
)

const requestIDHeader = "X-Request-ID"

func attachRoutes(r *gin.Engine, s *Server) {
	r.Use(requestID(), accessLog(), recovery())

	origins := s.cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/healthz", s.healthz)
	r.POST("/analyze", s.analyze)
	r.POST("/batch_analyze", s.batchAnalyze)
	r.GET("/history", s.listHistory)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}

// recovery keeps the response shape stable when a handler panics.
func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("request_id", c.GetString("request_id")).
					Str("panic", fmt.Sprint(r)).
					Msg("handler panicked")
				c.AbortWithStatusJSON(http.StatusInternalServerError, models.AnalysisResponse{Result: consts.MsgProcessingError})
			}
		}()
		c.Next()
	}
}
