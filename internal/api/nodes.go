package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
	"github.com/Velsaravanan-kafka/Second-brain/internal/tree"
)

// createNodeRequest carries no content; new notes always start empty.
type createNodeRequest struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ParentID *string `json:"parentId"`
	Icon     *string `json:"icon"`
}

type updateNodeRequest struct {
	ID string `json:"id" binding:"required"`
	models.NoteUpdate
}

type moveNodeRequest struct {
	ID       string  `json:"id" binding:"required"`
	ParentID *string `json:"parentId"`
}

func (s *Server) listNodes(c *gin.Context) {
	notes, err := s.store.ListNotes(c.Request.Context(), owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, notes)
}

// getTree returns the nested forest, or one subtree when id is given.
func (s *Server) getTree(c *gin.Context) {
	notes, err := s.store.ListNotes(c.Request.Context(), owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	forest := tree.BuildTree(notes)
	if id := c.Query("id"); id != "" {
		node, ok := forest.Subtree(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
			return
		}
		c.JSON(http.StatusOK, node)
		return
	}
	c.JSON(http.StatusOK, forest.Roots())
}

func (s *Server) createNode(c *gin.Context) {
	var req createNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	note := models.Note{
		ID:       req.ID,
		OwnerID:  owner(c),
		Title:    req.Title,
		ParentID: req.ParentID,
		Icon:     req.Icon,
	}
	if err := s.store.CreateNote(c.Request.Context(), &note); err != nil {
		s.fail(c, err)
		return
	}
	s.sessions.Drop(owner(c))
	c.JSON(http.StatusCreated, note)
}

func (s *Server) updateNode(c *gin.Context) {
	var req updateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	if req.NoteUpdate.Empty() {
		s.badRequest(c, "Nothing to update")
		return
	}
	note, err := s.store.UpdateNote(c.Request.Context(), owner(c), req.ID, req.NoteUpdate)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.sessions.Drop(owner(c))
	c.JSON(http.StatusOK, note)
}

func (s *Server) moveNode(c *gin.Context) {
	var req moveNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	note, err := s.store.MoveNote(c.Request.Context(), owner(c), req.ID, req.ParentID)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.sessions.Drop(owner(c))
	c.JSON(http.StatusOK, note)
}

func (s *Server) deleteNode(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		s.badRequest(c, "ID is required")
		return
	}
	if err := s.store.DeleteNote(c.Request.Context(), owner(c), id); err != nil {
		s.fail(c, err)
		return
	}
	s.sessions.Drop(owner(c))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
