package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"inboxpilot/internal/model"
	"inboxpilot/internal/repository"
	"inboxpilot/pkg/config"
	"inboxpilot/pkg/logger"
)

// ErrUnauthenticated 会话缺失、过期或无法刷新
var ErrUnauthenticated = errors.New("auth: authentication required")

// SessionStore 会话持久化
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	UpdateToken(ctx context.Context, id, accessToken, refreshToken, tokenType string, expiry time.Time) error
	Delete(ctx context.Context, id string) error
}

// UserInfo 登录用户的基本信息
type UserInfo struct {
	Name  string
	Email string
}

// UserInfoFunc 用授权后的 token 查询用户信息
type UserInfoFunc func(ctx context.Context, ts oauth2.TokenSource) (*UserInfo, error)

type Service struct {
	oauth      *oauth2.Config
	sessions   SessionStore
	userInfo   UserInfoFunc
	jwtSecret  string
	sessionTTL time.Duration
	logger     *zap.Logger
}

func NewService(cfg config.GoogleConfig, jwtCfg config.JWTConfig, sessions SessionStore, logger *zap.Logger) *Service {
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     google.Endpoint,
		},
		sessions:   sessions,
		userInfo:   GoogleUserInfo,
		jwtSecret:  jwtCfg.Secret,
		sessionTTL: jwtCfg.SessionTTL,
		logger:     logger,
	}
}

// AuthURL 离线访问 + 强制 consent，确保拿到 refresh token 和全部授权范围
func (s *Service) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Complete 用授权码换 token，保存会话并返回会话 JWT
func (s *Service) Complete(ctx context.Context, code string) (string, *model.Session, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("exchange code: %w", err)
	}

	info, err := s.userInfo(ctx, s.oauth.TokenSource(ctx, tok))
	if err != nil {
		return "", nil, fmt.Errorf("fetch user info: %w", err)
	}

	session := &model.Session{
		ID:           uuid.NewString(),
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
		Scopes:       grantedScopes(tok, s.oauth.Scopes),
		Username:     info.Name,
		Email:        info.Email,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("save session: %w", err)
	}

	signed, err := GenerateSessionToken(session.ID, s.jwtSecret, s.sessionTTL)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}

	logger.WithTrace(ctx, s.logger).Info("User logged in",
		zap.String("session_id", session.ID),
		zap.Strings("scopes", session.Scopes),
	)
	return signed, session, nil
}

// Logout 删除会话，token 无效时什么也不做
func (s *Service) Logout(ctx context.Context, sessionToken string) error {
	sid, err := ParseSessionToken(sessionToken, s.jwtSecret)
	if err != nil {
		return nil
	}
	return s.sessions.Delete(ctx, sid)
}

// Resolve 会话 JWT -> 可自动刷新的凭据。只有 refresh token 不可用时才删除会话并返回 ErrUnauthenticated
func (s *Service) Resolve(ctx context.Context, sessionToken string) (*model.Credential, error) {
	if sessionToken == "" {
		return nil, ErrUnauthenticated
	}
	sid, err := ParseSessionToken(sessionToken, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	session, err := s.sessions.FindByID(ctx, sid)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		Expiry:       session.Expiry,
	}
	// 刷新请求不跟随单个 HTTP 请求的取消
	base := s.oauth.TokenSource(context.WithoutCancel(ctx), tok)
	ts := newPersistingTokenSource(base, tok, func(t *oauth2.Token) {
		if err := s.sessions.UpdateToken(context.WithoutCancel(ctx), sid, t.AccessToken, t.RefreshToken, t.Type(), t.Expiry); err != nil {
			logger.WithTrace(ctx, s.logger).Error("Failed to persist refreshed token",
				zap.String("session_id", sid),
				zap.Error(err),
			)
		}
	})

	if !tok.Valid() && tok.RefreshToken == "" {
		return nil, s.dropSession(ctx, sid, errors.New("token expired and no refresh token"))
	}
	if _, err := ts.Token(); err != nil {
		if revokedGrant(err) {
			return nil, s.dropSession(ctx, sid, err)
		}
		// 网络或 Google 侧临时错误，保留会话
		logger.WithTrace(ctx, s.logger).Error("Token refresh failed",
			zap.String("session_id", sid),
			zap.Error(err),
		)
		return nil, fmt.Errorf("auth: refresh token: %w", err)
	}

	return &model.Credential{
		SessionID:   sid,
		TokenSource: ts,
		Scopes:      session.Scopes,
		DisplayName: session.Username,
		Email:       session.Email,
	}, nil
}

func (s *Service) dropSession(ctx context.Context, sid string, cause error) error {
	logger.WithTrace(ctx, s.logger).Warn("Refresh grant unusable, dropping session",
		zap.String("session_id", sid),
		zap.Error(cause),
	)
	if err := s.sessions.Delete(ctx, sid); err != nil {
		logger.WithTrace(ctx, s.logger).Error("Failed to delete session", zap.String("session_id", sid), zap.Error(err))
	}
	return fmt.Errorf("%w: %w", ErrUnauthenticated, cause)
}

// revokedGrant refresh token 被撤销或过期
func revokedGrant(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && re.ErrorCode == "invalid_grant"
}

// grantedScopes 优先使用 token 响应里实际授予的范围
func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if raw, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(raw) != "" {
		return strings.Fields(raw)
	}
	return requested
}

// GoogleUserInfo 调用 oauth2/v2 userinfo 接口
func GoogleUserInfo(ctx context.Context, ts oauth2.TokenSource) (*UserInfo, error) {
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	name := info.Name
	if name == "" {
		name = info.Email
	}
	return &UserInfo{Name: name, Email: info.Email}, nil
}
