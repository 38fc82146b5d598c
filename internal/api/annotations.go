package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

type createQuestionRequest struct {
	ID       string  `json:"id"`
	NodeID   string  `json:"nodeId" binding:"required"`
	Question string  `json:"question"`
	Answer   *string `json:"answer"`
}

type createImportantRequest struct {
	ID     string `json:"id"`
	NodeID string `json:"nodeId" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

type createVocabularyRequest struct {
	ID         string  `json:"id"`
	NodeID     string  `json:"nodeId" binding:"required"`
	Text       string  `json:"text" binding:"required"`
	Definition *string `json:"definition"`
}

type updateQuestionRequest struct {
	ID string `json:"id" binding:"required"`
	models.QuestionUpdate
}

func annotationID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}

func (s *Server) listAnnotations(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		nodeID := c.Query("nodeId")
		if nodeID == "" {
			s.badRequest(c, "Node ID is required")
			return
		}
		rows, err := s.store.ListAnnotations(c.Request.Context(), owner(c), kind, nodeID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func (s *Server) createQuestion(c *gin.Context) {
	var req createQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		req.Question = models.DefaultQuestionText
	}
	s.createAnnotation(c, models.Question{
		ID:       annotationID(req.ID),
		NodeID:   req.NodeID,
		Question: req.Question,
		Answer:   req.Answer,
		IsSolved: models.IsAnswered(req.Answer),
	})
}

func (s *Server) createImportant(c *gin.Context) {
	var req createImportantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	s.createAnnotation(c, models.Important{
		ID:     annotationID(req.ID),
		NodeID: req.NodeID,
		Text:   req.Text,
	})
}

func (s *Server) createVocabulary(c *gin.Context) {
	var req createVocabularyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	s.createAnnotation(c, models.Vocabulary{
		ID:         annotationID(req.ID),
		NodeID:     req.NodeID,
		Text:       req.Text,
		Definition: req.Definition,
	})
}

func (s *Server) createAnnotation(c *gin.Context, a models.Annotation) {
	if err := s.validate.Struct(a); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	stored, err := s.store.CreateAnnotation(c.Request.Context(), owner(c), a)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.sessions.Drop(owner(c))
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) updateQuestion(c *gin.Context) {
	var req updateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	if req.Question != nil && strings.TrimSpace(*req.Question) == "" {
		s.badRequest(c, "Question text is required")
		return
	}
	q, err := s.store.UpdateQuestion(c.Request.Context(), owner(c), req.ID, req.QuestionUpdate)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.sessions.Drop(owner(c))
	c.JSON(http.StatusOK, q)
}

func (s *Server) deleteAnnotation(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Query("id")
		if id == "" {
			s.badRequest(c, "ID is required")
			return
		}
		if err := s.store.DeleteAnnotation(c.Request.Context(), owner(c), kind, id); err != nil {
			s.fail(c, err)
			return
		}
		s.sessions.Drop(owner(c))
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
