package router

import (
	"time"

	"github.com/blues/fundchain/internal/handler"
	"github.com/blues/fundchain/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const ctxRequestID = "request_id"

// requestID 透传或生成 X-Request-ID, 并挂上带该ID的日志器
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Set(ctxRequestID, reqID)
		c.Set(handler.CtxLogger, logger.With(zap.String("request_id", reqID)))
		c.Header("X-Request-ID", reqID)
		c.Next()
	}
}

// accessLog 每个请求一行结构化日志
func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		log.Info("request", fields...)
	}
}

// recovery panic 时记录日志并返回 500
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err interface{}) {
		handler.RequestLogger(c).Error("panic recovered: %v", err)
		c.AbortWithStatusJSON(500, gin.H{
			"success": false,
			"message": "internal server error",
			"data":    nil,
		})
	})
}
