// Package api exposes notes, annotations and the editing session over HTTP.
//
// Routes under /api/nodes, /api/questions, /api/important and /api/vocabulary
// talk to the store directly. Routes under /api/session go through the
// caller's session so edits are applied locally first and saved the same way
// the editor would.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Velsaravanan-kafka/Second-brain/internal/auth"
	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
	"github.com/Velsaravanan-kafka/Second-brain/internal/observability"
	"github.com/Velsaravanan-kafka/Second-brain/internal/session"
	"github.com/Velsaravanan-kafka/Second-brain/internal/storage"
)

const ownerKey = "secondbrain_owner_id"

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Store    storage.Storage
	Sessions *session.Manager
	Auth     auth.Provider
	Metrics  *observability.Metrics
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type Server struct {
	store    storage.Storage
	sessions *session.Manager
	auth     auth.Provider
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	validate *validator.Validate
	logger   *zap.Logger
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:    d.Store,
		sessions: d.Sessions,
		auth:     d.Auth,
		metrics:  d.Metrics,
		gatherer: d.Gatherer,
		validate: validator.New(),
		logger:   logger,
	}
}

// Handler builds the gin engine with every route.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api", s.authenticate())
	{
		api.GET("/nodes", s.listNodes)
		api.GET("/tree", s.getTree)
		api.POST("/nodes", s.createNode)
		api.PATCH("/nodes", s.updateNode)
		api.POST("/nodes/move", s.moveNode)
		api.DELETE("/nodes", s.deleteNode)

		api.GET("/questions", s.listAnnotations(models.KindQuestion))
		api.POST("/questions", s.createQuestion)
		api.PATCH("/questions", s.updateQuestion)
		api.DELETE("/questions", s.deleteAnnotation(models.KindQuestion))

		api.GET("/important", s.listAnnotations(models.KindImportant))
		api.POST("/important", s.createImportant)
		api.DELETE("/important", s.deleteAnnotation(models.KindImportant))

		api.GET("/vocabulary", s.listAnnotations(models.KindVocabulary))
		api.POST("/vocabulary", s.createVocabulary)
		api.DELETE("/vocabulary", s.deleteAnnotation(models.KindVocabulary))

		sess := api.Group("/session")
		sess.GET("", s.sessionView)
		sess.POST("/select", s.sessionSelect)
		sess.PUT("/content", s.sessionContent)
		sess.PUT("/title", s.sessionTitle)
		sess.POST("/notes", s.sessionCreateNote)
		sess.DELETE("/notes/:id", s.sessionDeleteNote)
		sess.POST("/notes/:id/move", s.sessionMoveNote)
		sess.POST("/annotations", s.sessionAddAnnotation)
		sess.DELETE("/annotations/:kind/:id", s.sessionDeleteAnnotation)
		sess.PATCH("/questions/:id", s.sessionUpdateQuestion)
		sess.POST("/vocabulary/:id/define", s.sessionDefine)
		sess.POST("/reconcile", s.sessionReconcile)
		sess.POST("/flush", s.sessionFlush)
	}
	return r
}

// observe records every request in metrics and the debug log.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		s.metrics.ObserveRequest(c.FullPath(), c.Request.Method, status)
		s.logger.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// authenticate resolves the bearer token to an owner id.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := s.auth.Identify(c.Request.Context(), bearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	// Expected format: "Bearer <token>"
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func owner(c *gin.Context) string {
	return c.GetString(ownerKey)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
