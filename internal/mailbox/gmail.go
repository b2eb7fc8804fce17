package mailbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"inboxpilot/internal/model"
	"inboxpilot/pkg/logger"
	"inboxpilot/pkg/metrics"
	"inboxpilot/pkg/otel"
	"inboxpilot/pkg/rbac"
)

const userID = "me"

// searchLimit 定位目标时只需要最新的几封
const searchLimit = 10

// GmailOpener 为每个请求创建 Gmail 客户端
type GmailOpener struct {
	logger *zap.Logger
}

func NewGmailOpener(logger *zap.Logger) *GmailOpener {
	return &GmailOpener{logger: logger}
}

func (o *GmailOpener) Open(ctx context.Context, cred *model.Credential) (Mailbox, error) {
	if cred == nil || cred.TokenSource == nil {
		return nil, errors.New("mailbox: missing credential")
	}
	srv, err := gmail.NewService(ctx, option.WithTokenSource(cred.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Gmail{
		srv:    srv,
		scopes: cred.Scopes,
		logger: o.logger,
	}, nil
}

// Gmail 基于 Gmail REST API 的 Mailbox 实现
type Gmail struct {
	srv    *gmail.Service
	scopes []string
	logger *zap.Logger
}

func (g *Gmail) ListRecent(ctx context.Context, n int) ([]model.MailboxItem, error) {
	var items []model.MailboxItem
	err := g.observe(ctx, "list_recent", func(ctx context.Context) error {
		if err := rbac.CheckPermission(g.scopes, rbac.PermissionReadMail); err != nil {
			return ErrInsufficientScope
		}
		resp, err := g.srv.Users.Messages.List(userID).MaxResults(int64(n)).Context(ctx).Do()
		if err != nil {
			return err
		}
		items = make([]model.MailboxItem, 0, len(resp.Messages))
		for _, m := range resp.Messages {
			full, err := g.srv.Users.Messages.Get(userID, m.Id).Format("full").Context(ctx).Do()
			if err != nil {
				return err
			}
			items = append(items, itemFromMessage(full))
		}
		return nil
	})
	return items, err
}

func (g *Gmail) GetMessage(ctx context.Context, id string) (*model.MailboxItem, error) {
	var item model.MailboxItem
	err := g.observe(ctx, "get_message", func(ctx context.Context) error {
		msg, err := g.srv.Users.Messages.Get(userID, id).Format("full").Context(ctx).Do()
		if err != nil {
			return err
		}
		item = itemFromMessage(msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (g *Gmail) Search(ctx context.Context, q Query) ([]string, error) {
	var ids []string
	err := g.observe(ctx, "search", func(ctx context.Context) error {
		resp, err := g.srv.Users.Messages.List(userID).Q(q.String()).MaxResults(searchLimit).Context(ctx).Do()
		if err != nil {
			return err
		}
		ids = make([]string, 0, len(resp.Messages))
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	return ids, err
}

func (g *Gmail) SendReply(ctx context.Context, reply model.Reply) (bool, error) {
	err := g.observe(ctx, "send_reply", func(ctx context.Context) error {
		if err := rbac.CheckPermission(g.scopes, rbac.PermissionSendMail); err != nil {
			return ErrInsufficientScope
		}
		var buf bytes.Buffer
		if err := WriteReply(&buf, reply, time.Now()); err != nil {
			return err
		}
		msg := &gmail.Message{
			Raw:      base64.URLEncoding.EncodeToString(buf.Bytes()),
			ThreadId: reply.ThreadID,
		}
		_, err := g.srv.Users.Messages.Send(userID, msg).Context(ctx).Do()
		return err
	})
	return err == nil, err
}

func (g *Gmail) Trash(ctx context.Context, id string) (bool, error) {
	err := g.observe(ctx, "trash", func(ctx context.Context) error {
		if err := rbac.CheckPermission(g.scopes, rbac.PermissionModifyMail); err != nil {
			return ErrInsufficientScope
		}
		_, err := g.srv.Users.Messages.Trash(userID, id).Context(ctx).Do()
		return err
	})
	return err == nil, err
}

// observe 统一处理 span、延迟指标和错误映射
func (g *Gmail) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := otel.StartSpan(ctx, "mailbox."+op)
	defer span.End()

	start := time.Now()
	err := mapError(fn(ctx))
	metrics.RecordMailboxCallLatency(op, metrics.StatusLabel(err), time.Since(start))
	otel.RecordError(span, err)

	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.WithTrace(ctx, g.logger).Warn("Mailbox call failed",
			zap.String("operation", op),
			zap.Error(err),
		)
	}
	return err
}

// mapError 把 Gmail 的 404 / 权限不足转换成包内的哨兵错误
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case http.StatusBadRequest:
		// 格式不对的 id 返回 400 invalid id value
		if strings.Contains(strings.ToLower(apiErr.Message), "invalid id") {
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
	case http.StatusForbidden:
		if isScopeError(apiErr) {
			return fmt.Errorf("%w: %w", ErrInsufficientScope, err)
		}
	}
	return err
}

func isScopeError(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if item.Reason == "insufficientPermissions" {
			return true
		}
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "insufficient") && (strings.Contains(msg, "scope") || strings.Contains(msg, "permission"))
}
