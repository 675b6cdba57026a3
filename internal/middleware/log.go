package middleware

import (
	"bytes"
	"time"

	"watchcache/pkg/log"

	"github.com/duke-git/lancet/v2/cryptor"
	"github.com/duke-git/lancet/v2/random"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxLogBody = 4096

// 探针和指标抓取不记录
var quietPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

func RequestLogMiddleware(logger *log.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if quietPaths[ctx.Request.URL.Path] {
			ctx.Next()
			return
		}
		uuid, err := random.UUIdV4()
		if err != nil {
			ctx.Next()
			return
		}
		trace := cryptor.Md5String(uuid)
		logger.WithValue(ctx,
			zap.String("trace", trace),
			zap.String("request_method", ctx.Request.Method),
			zap.String("request_url", ctx.Request.URL.String()),
			zap.String("client_ip", ctx.ClientIP()),
		)
		ctx.Header("X-Trace-Id", trace)
		logger.WithContext(ctx).Info("Request")
		ctx.Next()
	}
}

func ResponseLogMiddleware(logger *log.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if quietPaths[ctx.Request.URL.Path] {
			ctx.Next()
			return
		}
		// watch 是长连接，只记录持续时间
		if ctx.GetHeader("Upgrade") == "websocket" {
			startTime := time.Now()
			ctx.Next()
			logger.WithContext(ctx).Info("Response (WebSocket)", zap.Duration("time", time.Since(startTime)))
			return
		}

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: ctx.Writer}
		ctx.Writer = blw
		startTime := time.Now()
		ctx.Next()

		body := blw.body.Bytes()
		if len(body) > maxLogBody {
			body = body[:maxLogBody]
		}
		logger.WithContext(ctx).Info("Response",
			zap.Int("status", ctx.Writer.Status()),
			zap.ByteString("response_body", body),
			zap.Duration("time", time.Since(startTime)))
	}
}

type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}
