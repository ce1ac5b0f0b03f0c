package server

import (
	"errors"
	"net/http"

	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/gin-gonic/gin"
)

// Response 统一响应格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Accepted 已受理响应
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Response{
		Code:    0,
		Message: "accepted",
		Data:    data,
	})
}

// BadRequest 请求格式错误响应
func BadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    400,
		Message: err.Error(),
	})
}

// Error 错误响应
func Error(c *gin.Context, err error) {
	statusCode, code, message := parseError(err)
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// parseError 解析错误类型并返回相应的HTTP状态码
func parseError(err error) (statusCode, code int, message string) {
	switch {
	case errors.Is(err, domain.ErrThreadNotFound),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, 404, err.Error()
	case errors.Is(err, domain.ErrUnknownModel):
		return http.StatusBadRequest, 400, err.Error()
	case errors.Is(err, domain.ErrFunctionLoopLimit):
		return http.StatusUnprocessableEntity, 422, err.Error()
	case errors.Is(err, domain.ErrGenerationCancelled):
		return http.StatusConflict, 409, err.Error()
	default:
		return http.StatusInternalServerError, 500, "internal server error"
	}
}
