package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Velsaravanan-kafka/Second-brain/internal/definer"
	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
	"github.com/Velsaravanan-kafka/Second-brain/internal/session"
)

type selectRequest struct {
	NoteID string `json:"noteId" binding:"required"`
}

type contentRequest struct {
	NoteID  string  `json:"noteId" binding:"required"`
	Content *string `json:"content" binding:"required"`
}

type titleRequest struct {
	NoteID string `json:"noteId" binding:"required"`
	Title  string `json:"title"`
}

type sessionNoteRequest struct {
	ParentID string  `json:"parentId"`
	Title    string  `json:"title"`
	Icon     *string `json:"icon"`
}

type sessionMoveRequest struct {
	ParentID string `json:"parentId"`
}

type addAnnotationRequest struct {
	Kind string `json:"kind" binding:"required"`
	session.NewAnnotation
}

// withSession resolves the caller's session before running h.
func (s *Server) withSession(h func(c *gin.Context, sess *session.Session)) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.sessions.Session(c.Request.Context(), owner(c))
		if err != nil {
			s.fail(c, err)
			return
		}
		h(c, sess)
	}
}

func (s *Server) sessionView(c *gin.Context) {
	s.withSession(func(c *gin.Context, sess *session.Session) {
		c.JSON(http.StatusOK, gin.H{"session": sess.View(), "tree": sess.Tree()})
	})(c)
}

func (s *Server) sessionSelect(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	s.withSession(func(c *gin.Context, sess *session.Session) {
		view, err := sess.Select(c.Request.Context(), req.NoteID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	})(c)
}

func (s *Server) sessionContent(c *gin.Context) {
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	s.withSession(func(c *gin.Context, sess *session.Session) {
		if err := sess.EditContent(req.NoteID, *req.Content); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"success": true})
	})(c)
}

func (s *Server) sessionTitle(c *gin.Context) {
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	s.withSession(func(c *gin.Context, sess *session.Session) {
		if err := sess.EditTitle(req.NoteID, req.Title); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"success": true})
	})(c)
}

func (s *Server) sessionCreateNote(c *gin.Context) {
	var req sessionNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	s.withSession(func(c *gin.Context, sess *session.Session) {
		note, err := sess.CreateNote(c.Request.Context(), req.ParentID, req.Title, req.Icon)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, note)
	})(c)
}

func (s *Server) sessionDeleteNote(c *gin.Context) {
	s.withSession(func(c *gin.Context, sess *session.Session) {
		if err := sess.DeleteNote(c.Request.Context(), c.Param("id")); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})(c)
}

func (s *Server) sessionMoveNote(c *gin.Context) {
	var req sessionMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	s.withSession(func(c *gin.Context, sess *session.Session) {
		note, err := sess.MoveNote(c.Request.Context(), c.Param("id"), req.ParentID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, note)
	})(c)
}

func (s *Server) sessionAddAnnotation(c *gin.Context) {
	var req addAnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.withSession(func(c *gin.Context, sess *session.Session) {
		a, err := sess.AddAnnotation(c.Request.Context(), kind, req.NewAnnotation)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, a)
	})(c)
}

func (s *Server) sessionDeleteAnnotation(c *gin.Context) {
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.withSession(func(c *gin.Context, sess *session.Session) {
		if err := sess.DeleteAnnotation(c.Request.Context(), kind, c.Param("id")); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})(c)
}

func (s *Server) sessionUpdateQuestion(c *gin.Context) {
	var upd models.QuestionUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	s.withSession(func(c *gin.Context, sess *session.Session) {
		q, err := sess.UpdateQuestion(c.Request.Context(), c.Param("id"), upd)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, q)
	})(c)
}

func (s *Server) sessionDefine(c *gin.Context) {
	s.withSession(func(c *gin.Context, sess *session.Session) {
		v, err := sess.DefineVocabulary(c.Request.Context(), c.Param("id"))
		if definer.IsUnavailable(err) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	})(c)
}

func (s *Server) sessionReconcile(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body")
		return
	}
	s.withSession(func(c *gin.Context, sess *session.Session) {
		pruned, err := sess.Reconcile(c.Request.Context(), req.NoteID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"pruned": pruned})
	})(c)
}

func (s *Server) sessionFlush(c *gin.Context) {
	s.withSession(func(c *gin.Context, sess *session.Session) {
		c.JSON(http.StatusOK, gin.H{"flushed": sess.Flush()})
	})(c)
}
