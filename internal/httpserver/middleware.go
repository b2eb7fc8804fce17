package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"inboxpilot/internal/auth"
	"inboxpilot/internal/handler"
	"inboxpilot/internal/model"
	"inboxpilot/pkg/config"
	"inboxpilot/pkg/logger"
	"inboxpilot/pkg/metrics"
	"inboxpilot/pkg/trace"
)

// CredentialResolver session token -> 邮箱凭据
type CredentialResolver interface {
	Resolve(ctx context.Context, sessionToken string) (*model.Credential, error)
}

// TraceMiddleware 读取或生成 X-Trace-ID，写入 request context 和响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = c.GetHeader("X-Request-ID")
		}
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}

// MetricsMiddleware 记录 HTTP 请求延迟
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// LoggingMiddleware 访问日志
func LoggingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		l := logger.WithTrace(c.Request.Context(), log)
		switch {
		case status >= http.StatusInternalServerError:
			l.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			l.Warn("HTTP request", fields...)
		default:
			l.Info("HTTP request", fields...)
		}
	}
}

// CORSMiddleware 只放行配置的前端来源，允许携带 cookie
func CORSMiddleware(frontend config.FrontendConfig) gin.HandlerFunc {
	if len(frontend.AllowedOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return cors.New(cors.Config{
		AllowOrigins:     frontend.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", trace.HeaderName()},
		ExposeHeaders:    []string{trace.HeaderName()},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// AuthMiddleware 校验会话并把凭据放进 gin context
func AuthMiddleware(resolver CredentialResolver, jwtCfg config.JWTConfig, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ExtractToken(c.Request, jwtCfg.CookieName)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated. Please log in."})
			c.Abort()
			return
		}

		cred, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthenticated) {
				// 存储或刷新临时失败，不动 cookie
				logger.WithTrace(c.Request.Context(), log).Error("Failed to resolve session", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session service unavailable. Please try again."})
				c.Abort()
				return
			}
			// 会话失效时清掉 cookie，前端回到登录页
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(jwtCfg.CookieName, "", -1, "/", "", jwtCfg.Secure, true)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired. Please log in again."})
			c.Abort()
			return
		}

		c.Set(handler.CredentialKey, cred)
		c.Next()
	}
}
