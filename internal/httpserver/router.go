package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"inboxpilot/internal/handler"
	"inboxpilot/pkg/config"
	"inboxpilot/pkg/otel"
)

// ReadinessCheck 依赖探活，返回 error 表示未就绪
type ReadinessCheck func(ctx context.Context) error

type Deps struct {
	Chat     *handler.ChatHandler
	Auth     *handler.AuthHandler
	Resolver CredentialResolver
	JWT      config.JWTConfig
	Frontend config.FrontendConfig
	Checks   map[string]ReadinessCheck
	Logger   *zap.Logger
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(d Deps) *Router {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		TraceMiddleware(),
		otel.GinMiddleware(),
		MetricsMiddleware(),
		LoggingMiddleware(d.Logger),
		CORSMiddleware(d.Frontend),
	)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Email assistant backend is running."})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for name, check := range d.Checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	authGroup := r.Group("/api/auth")
	{
		authGroup.GET("/login", d.Auth.Login)
		authGroup.GET("/callback", d.Auth.Callback)
		authGroup.GET("/logout", d.Auth.Logout)
	}

	// Protected
	chat := r.Group("/api/chat")
	chat.Use(AuthMiddleware(d.Resolver, d.JWT, d.Logger))
	{
		chat.POST("/command", d.Chat.Command)
		chat.POST("/suggest-reply", d.Chat.SuggestReply)
		chat.POST("/delete-email", d.Chat.DeleteEmail)
		chat.POST("/send-reply", d.Chat.SendReply)
		chat.GET("/user/profile", d.Chat.Profile)
	}

	return &Router{Engine: r}
}
