package server

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/astergate/pkg/logger"
)

const (
	HeaderRequestID     = "X-Request-ID"
	HeaderProcessTime   = "X-Process-Time"
	HeaderAPIKey        = "X-API-Key"
	HeaderWebhookSecret = "X-Webhook-Secret"

	ctxRequestID = "request_id"
)

// requestID 透传或生成 X-Request-ID
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// accessLog 记录每个请求并写出 X-Process-Time（秒）
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		path := c.Request.URL.Path

		logger.WithFields(logrus.Fields{
			"request_id": requestIDFrom(c),
			"method":     c.Request.Method,
			"path":       path,
			"client_ip":  c.ClientIP(),
		}).Info("request started")

		tw := &timedWriter{ResponseWriter: c.Writer, start: start, now: s.now}
		c.Writer = tw
		c.Next()
		if !tw.Written() {
			tw.stamp()
		}

		logger.WithFields(logrus.Fields{
			"request_id":  requestIDFrom(c),
			"method":      c.Request.Method,
			"path":        path,
			"status":      tw.Status(),
			"duration_ms": s.now().Sub(start).Milliseconds(),
		}).Info("request completed")
	}
}

// timedWriter 在响应头落盘前写入处理耗时
type timedWriter struct {
	gin.ResponseWriter
	start   time.Time
	now     func() time.Time
	stamped bool
}

func (w *timedWriter) stamp() {
	if w.stamped {
		return
	}
	w.stamped = true
	w.Header().Set(HeaderProcessTime, formatSeconds(w.now().Sub(w.start)))
}

func (w *timedWriter) WriteHeaderNow() {
	w.stamp()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *timedWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(b)
}

func (w *timedWriter) WriteString(str string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(str)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.4f", d.Seconds())
}

// recovery 捕获 panic 并返回通用 500
func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"request_id": requestIDFrom(c),
					"path":       c.Request.URL.Path,
					"panic":      fmt.Sprint(r),
				}).Error("panic while handling request")
				s.writeError(c, internalError(genericInternalDetail))
			}
		}()
		c.Next()
	}
}

// requireAPIKey 校验 X-API-Key
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APIKey == "" {
			s.writeError(c, internalError("API key authentication is not configured on the server"))
			return
		}
		provided := c.GetHeader(HeaderAPIKey)
		if provided == "" {
			c.Header("WWW-Authenticate", "ApiKey")
			s.writeError(c, forbidden("API key is required. Provide it in the X-API-Key header."))
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.APIKey)) != 1 {
			s.writeError(c, forbidden("Invalid API key"))
			return
		}
		c.Next()
	}
}
