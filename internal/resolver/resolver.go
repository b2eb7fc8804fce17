package resolver

import (
	"context"
	"errors"
	"fmt"

	"inboxpilot/internal/intent"
	"inboxpilot/internal/mailbox"
	"inboxpilot/pkg/otel"
)

var (
	// ErrNoTarget 没有过滤条件或搜索结果为空
	ErrNoTarget = errors.New("resolver: no target")
	// ErrSearchFailed 邮箱搜索本身失败
	ErrSearchFailed = errors.New("resolver: search failed")
)

// Searcher 是 Resolver 需要的邮箱子集
type Searcher interface {
	Search(ctx context.Context, q mailbox.Query) ([]string, error)
}

// Resolve 把过滤条件映射到单封邮件 id。
// 两个条件都为空时不调用搜索；多个匹配时取最新一封（搜索结果已按最新在前排序）
func Resolve(ctx context.Context, mb Searcher, target intent.Target) (string, error) {
	if target.Empty() {
		return "", ErrNoTarget
	}

	ctx, span := otel.StartSpan(ctx, "resolver.resolve")
	defer span.End()

	ids, err := mb.Search(ctx, mailbox.Query{From: target.Sender, Subject: target.SubjectKeyword})
	if err != nil {
		otel.RecordError(span, err)
		return "", fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	if len(ids) == 0 {
		return "", ErrNoTarget
	}
	return ids[0], nil
}
