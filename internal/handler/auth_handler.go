package handler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"inboxpilot/internal/auth"
	"inboxpilot/internal/model"
	"inboxpilot/pkg/config"
	"inboxpilot/pkg/logger"
)

const stateCookie = "oauth_state"

// Authenticator OAuth 登录流程
type Authenticator interface {
	AuthURL(state string) string
	Complete(ctx context.Context, code string) (string, *model.Session, error)
	Logout(ctx context.Context, sessionToken string) error
}

type AuthHandler struct {
	auth     Authenticator
	jwt      config.JWTConfig
	frontend config.FrontendConfig
	logger   *zap.Logger
}

func NewAuthHandler(a Authenticator, jwtCfg config.JWTConfig, frontend config.FrontendConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: a, jwt: jwtCfg, frontend: frontend, logger: logger}
}

// Login handles GET /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	state := uuid.NewString()
	h.setCookie(c, stateCookie, state, int((10 * time.Minute).Seconds()))
	c.Redirect(http.StatusFound, h.auth.AuthURL(state))
}

// Callback handles GET /api/auth/callback
func (h *AuthHandler) Callback(c *gin.Context) {
	log := logger.WithTrace(c.Request.Context(), h.logger)

	if e := c.Query("error"); e != "" {
		log.Warn("OAuth provider returned error", zap.String("error", e))
		h.redirectError(c, e)
		return
	}

	expected, err := c.Cookie(stateCookie)
	if err != nil || expected == "" || expected != c.Query("state") {
		log.Warn("OAuth state mismatch")
		h.redirectError(c, "state_mismatch")
		return
	}
	h.setCookie(c, stateCookie, "", -1)

	code := c.Query("code")
	if code == "" {
		h.redirectError(c, "missing_code")
		return
	}

	token, _, err := h.auth.Complete(c.Request.Context(), code)
	if err != nil {
		log.Error("OAuth callback failed", zap.Error(err))
		h.redirectError(c, "login_failed")
		return
	}

	h.setCookie(c, h.jwt.CookieName, token, int(h.jwt.SessionTTL.Seconds()))
	c.Redirect(http.StatusFound, h.frontend.DashboardURL)
}

// Logout handles GET /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if token := auth.ExtractToken(c.Request, h.jwt.CookieName); token != "" {
		if err := h.auth.Logout(c.Request.Context(), token); err != nil {
			logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to delete session", zap.Error(err))
		}
	}
	h.setCookie(c, h.jwt.CookieName, "", -1)
	c.Redirect(http.StatusFound, h.frontend.HomeURL)
}

func (h *AuthHandler) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", h.jwt.Secure, true)
}

func (h *AuthHandler) redirectError(c *gin.Context, reason string) {
	c.Redirect(http.StatusFound, h.frontend.HomeURL+"?auth_error="+url.QueryEscape(reason))
}
