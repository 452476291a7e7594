package handler

import (
	"errors"
	"net/http"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/logger"
	"github.com/gin-gonic/gin"
)

// CtxLogger 请求级日志器在 gin.Context 中的键
const CtxLogger = "logger"

// RequestLogger 取请求级日志器, 中间件未设置时退回默认日志器
func RequestLogger(c *gin.Context) *logger.Logger {
	if v, ok := c.Get(CtxLogger); ok {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return logger.With()
}

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// AppErrorResponse 按错误类别返回状态码, data 中带上类别与是否可重试
func AppErrorResponse(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	retryable := false
	var ae *apperr.Error
	if errors.As(err, &ae) {
		retryable = ae.Retryable()
	}

	if status >= http.StatusInternalServerError {
		RequestLogger(c).Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}

	c.JSON(status, Response{
		Success: false,
		Message: apperr.ReasonOf(err),
		Data: ErrorDetail{
			Kind:      kind.String(),
			Retryable: retryable,
		},
	})
}
