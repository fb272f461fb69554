package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vietddude/burnrelay/internal/auth"
	"github.com/vietddude/burnrelay/internal/burn"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCancelNotAllowed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnsupportedChain):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCode),
		errors.Is(err, auth.ErrInvalidSession),
		errors.Is(err, auth.ErrSessionRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrAuthDisabled), errors.Is(err, burn.ErrClosed):
		return http.StatusServiceUnavailable
	case burn.IsPreSubmission(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(code, errorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg})
}
