package server

import (
	"ref-service/internal/apperr"

	"github.com/gin-gonic/gin"
)

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details"`
	Stack   string `json:"stack,omitempty"`
}

func respondOK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, successResponse{Success: true, Message: message, Data: data})
}

// respondError пишет ошибку в формате {error, code, details}. Стек
// добавляется только в окружении development. В лог ошибка попадает
// через requestLogger.
func (s *Server) respondError(c *gin.Context, message string, err error) {
	body := errorResponse{
		Error:   message,
		Code:    apperr.CodeOf(err),
		Details: err.Error(),
	}
	if s.cfg.App.IsDevelopment() {
		body.Stack = apperr.StackTrace(err)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), body)
}
