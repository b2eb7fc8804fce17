package mailbox

import (
	"context"
	"errors"
	"strings"

	"inboxpilot/internal/model"
)

var (
	// ErrNotFound 邮件不存在或无权访问
	ErrNotFound = errors.New("mailbox: message not found")
	// ErrInsufficientScope 授权范围不足，需要重新登录并授予全部权限
	ErrInsufficientScope = errors.New("mailbox: insufficient authorization scope")
)

// Query 搜索条件，空字段表示不限制
type Query struct {
	From    string
	Subject string
}

// Empty 没有任何条件
func (q Query) Empty() bool {
	return q.From == "" && q.Subject == ""
}

// String 转成 Gmail 搜索语法，值里的引号会被去掉
func (q Query) String() string {
	var parts []string
	if q.From != "" {
		parts = append(parts, `from:"`+sanitize(q.From)+`"`)
	}
	if q.Subject != "" {
		parts = append(parts, `subject:"`+sanitize(q.Subject)+`"`)
	}
	return strings.Join(parts, " ")
}

func sanitize(v string) string {
	return strings.TrimSpace(strings.ReplaceAll(v, `"`, ""))
}

// Mailbox 单个用户的邮箱能力，所有结果按最新在前排序
type Mailbox interface {
	ListRecent(ctx context.Context, n int) ([]model.MailboxItem, error)
	// GetMessage 不存在时返回 ErrNotFound
	GetMessage(ctx context.Context, id string) (*model.MailboxItem, error)
	// Search 返回匹配的邮件 id
	Search(ctx context.Context, q Query) ([]string, error)
	SendReply(ctx context.Context, reply model.Reply) (bool, error)
	// Trash 移到回收站（可恢复），不是永久删除
	Trash(ctx context.Context, id string) (bool, error)
}

// Opener 用请求携带的凭据打开邮箱
type Opener interface {
	Open(ctx context.Context, cred *model.Credential) (Mailbox, error)
}
