// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/apperr"
	"github.com/agenthands/keepsake/internal/core"
	"github.com/agenthands/keepsake/internal/core/assembly"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/core/summary"
)

// Engine is the part of core.Engine the handlers use.
type Engine interface {
	IndexStory(ctx context.Context, story model.Story) (core.IndexResult, error)
	DeleteStory(ctx context.Context, storyID string) (core.DeleteResult, error)
	AssembleContext(ctx context.Context, req assembly.Request) (*assembly.AssembledContext, error)
	AfterAssistantTurn(ctx context.Context, conversationID, userID, legacyID string) (bool, error)
	Summarize(ctx context.Context, conversationID, userID, legacyID string) (summary.Result, error)
	Health(ctx context.Context) core.Health
}

type Server struct {
	Engine      Engine
	ServiceName string
	log         *zap.Logger
}

func NewServer(engine Engine, serviceName string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{Engine: engine, ServiceName: serviceName, log: log.Named("http")}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(s.ServiceName), s.requestLogger())

	r.GET("/healthz", s.Healthz)

	v1 := r.Group("/v1")
	v1.POST("/context", s.AssembleContext)
	v1.PUT("/stories/:id/index", s.IndexStory)
	v1.DELETE("/stories/:id/index", s.DeleteStory)
	v1.POST("/conversations/:id/turns", s.AfterTurn)
	v1.POST("/conversations/:id/summarize", s.Summarize)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		switch {
		case status >= 500:
			s.log.Error("http request", fields...)
		case status >= 400:
			s.log.Warn("http request", fields...)
		default:
			s.log.Debug("http request", fields...)
		}
	}
}

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// statusFor maps error kinds to HTTP statuses. Unknown failures are 500.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	code := string(apperr.KindOf(err))
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		code, msg = "internal", "internal error"
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorEnvelope{Error: APIError{Message: err.Error(), Code: string(apperr.KindInvalid)}})
}

type ContextRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	LegacyID    string `json:"legacy_id" binding:"required"`
	Query       string `json:"query" binding:"required"`
	Persona     string `json:"persona"`
	TokenBudget int    `json:"token_budget"`
}

func (s *Server) AssembleContext(c *gin.Context) {
	var req ContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := s.Engine.AssembleContext(c.Request.Context(), assembly.Request{
		UserID:      req.UserID,
		LegacyID:    req.LegacyID,
		Query:       req.Query,
		Persona:     req.Persona,
		TokenBudget: req.TokenBudget,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type IndexStoryRequest struct {
	LegacyID   string           `json:"legacy_id" binding:"required"`
	AuthorID   string           `json:"author_id" binding:"required"`
	Title      string           `json:"title"`
	Content    string           `json:"content"`
	Visibility model.Visibility `json:"visibility"`
}

func (s *Server) IndexStory(c *gin.Context) {
	var req IndexStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	vis := model.Visibility(strings.ToLower(string(req.Visibility)))
	switch vis {
	case "":
		vis = model.VisibilityPrivate
	case model.VisibilityPublic, model.VisibilityPrivate, model.VisibilityPersonal:
	default:
		s.respondError(c, apperr.Invalid("visibility must be public, private or personal"))
		return
	}
	res, err := s.Engine.IndexStory(c.Request.Context(), model.Story{
		ID:         c.Param("id"),
		LegacyID:   req.LegacyID,
		AuthorID:   req.AuthorID,
		Title:      req.Title,
		Content:    req.Content,
		Visibility: vis,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) DeleteStory(c *gin.Context) {
	res, err := s.Engine.DeleteStory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type ConversationRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	LegacyID string `json:"legacy_id" binding:"required"`
}

func (s *Server) AfterTurn(c *gin.Context) {
	var req ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	scheduled, err := s.Engine.AfterAssistantTurn(c.Request.Context(), c.Param("id"), req.UserID, req.LegacyID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"scheduled": scheduled})
}

func (s *Server) Summarize(c *gin.Context) {
	var req ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.Engine.Summarize(c.Request.Context(), c.Param("id"), req.UserID, req.LegacyID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Healthz always answers 200 while the process serves; a degraded graph shows in the body.
func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Health(c.Request.Context()))
}
