package confirm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind 待确认操作类型
type Kind string

const (
	KindDelete Kind = "delete"
	KindSend   Kind = "send"
)

var (
	ErrTokenRequired = errors.New("confirm: token required")
	ErrTokenInvalid  = errors.New("confirm: token invalid")
	ErrTokenReused   = errors.New("confirm: token already used")
)

const issuer = "inboxpilot"

// Claims 令牌绑定会话、操作类型、邮件 id 以及回复正文的哈希
type Claims struct {
	Kind     Kind   `json:"kind"`
	EmailID  string `json:"email_id"`
	BodyHash string `json:"body_hash,omitempty"`
	jwt.RegisteredClaims
}

// OnceChecker 一次性检查，util.Deduper 满足该接口
type OnceChecker interface {
	AcquireOnce(ctx context.Context, namespace, key string) bool
}

// Guard 签发并校验一次性确认令牌。未启用时所有方法都是空操作
type Guard struct {
	enabled bool
	require bool
	secret  []byte
	ttl     time.Duration
	once    OnceChecker
	now     func() time.Time
}

func NewGuard(enabled, require bool, secret string, ttl time.Duration, once OnceChecker) *Guard {
	return &Guard{
		enabled: enabled,
		require: require,
		secret:  []byte(secret),
		ttl:     ttl,
		once:    once,
		now:     time.Now,
	}
}

func (g *Guard) Enabled() bool {
	return g != nil && g.enabled
}

// Mint 未启用时返回空字符串
func (g *Guard) Mint(sessionID string, kind Kind, emailID, body string) (string, error) {
	if !g.Enabled() {
		return "", nil
	}
	now := g.now()
	claims := Claims{
		Kind:    kind,
		EmailID: emailID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}
	if kind == KindSend {
		claims.BodyHash = hashBody(body)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

// Verify 校验令牌与本次确认请求一致，并消费令牌 id。
// 未启用时直接通过；启用但未要求时，缺失令牌也通过
func (g *Guard) Verify(ctx context.Context, token, sessionID string, kind Kind, emailID, body string) error {
	if !g.Enabled() {
		return nil
	}
	if token == "" {
		if g.require {
			return ErrTokenRequired
		}
		return nil
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(sessionID),
		jwt.WithTimeFunc(g.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if claims.Kind != kind || claims.EmailID != emailID {
		return fmt.Errorf("%w: action mismatch", ErrTokenInvalid)
	}
	if kind == KindSend && claims.BodyHash != hashBody(body) {
		return fmt.Errorf("%w: reply body changed", ErrTokenInvalid)
	}

	if !g.once.AcquireOnce(ctx, "confirm", claims.ID) {
		return ErrTokenReused
	}
	return nil
}

func hashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
