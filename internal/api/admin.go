package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vietddude/burnrelay/internal/auth"
)

// adminHandler receives the verified session of the caller.
type adminHandler func(c *gin.Context, sess auth.Session)

// admin verifies the bearer token and hands the session to h.
func (s *Server) admin(h adminHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "bearer token required"})
			return
		}
		sess, err := s.auth.Verify(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			s.log.Warn("admin auth failed", "path", c.FullPath(), "error", err)
			s.fail(c, err)
			return
		}
		h(c, sess)
	}
}

type loginRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	token, sess, err := s.auth.Login(strings.TrimSpace(req.Code))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "session": sess})
}

func (s *Server) logout(c *gin.Context, sess auth.Session) {
	if err := s.auth.Revoke(c.Request.Context(), sess); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type contestRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (s *Server) setContest(c *gin.Context, sess auth.Session) {
	var req contestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.burns.SetContestActive(*req.Active)
	s.log.Info("contest updated by admin", "session", sess.ID, "active", *req.Active)
	c.JSON(http.StatusOK, gin.H{"contest_active": s.burns.ContestActive()})
}

func (s *Server) resumeBurn(c *gin.Context, sess auth.Session) {
	id := c.Param("id")
	started, err := s.burns.Resume(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.log.Info("resume requested by admin", "session", sess.ID, "record", id, "started", started)
	c.JSON(http.StatusAccepted, gin.H{"record_id": id, "started": started})
}
