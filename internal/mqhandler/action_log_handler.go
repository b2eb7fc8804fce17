package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"inboxpilot/internal/model"
	"inboxpilot/pkg/logger"
	"inboxpilot/pkg/mq"
	"inboxpilot/pkg/util"
)

const maxRetries = 5 // 最大重试次数

type ActionLogStore interface {
	Insert(ctx context.Context, l *model.ActionLog) (bool, error)
}

type Deduplicator interface {
	AcquireOnce(ctx context.Context, namespace, key string) bool
	Release(ctx context.Context, namespace, key string)
}

type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// ActionLogHandler 把 mailbox.* 审计事件落到 action_log 表
type ActionLogHandler struct {
	repo         ActionLogStore
	deduper      Deduplicator
	retryCounter RetryTracker
	logger       *zap.Logger
}

func NewActionLogHandler(repo ActionLogStore, deduper Deduplicator, retryCounter RetryTracker, logger *zap.Logger) *ActionLogHandler {
	return &ActionLogHandler{
		repo:         repo,
		deduper:      deduper,
		retryCounter: retryCounter,
		logger:       logger,
	}
}

// Handle 幂等：重复投递由 redis 去重 + event_id 唯一约束兜底
func (h *ActionLogHandler) Handle(ctx context.Context, ev mq.Event) error {
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.Type),
	)

	if ev.Type != model.EventEmailTrashed && ev.Type != model.EventReplySent {
		log.Warn("Unsupported mailbox event type, sending to DLQ")
		return mq.Permanent(fmt.Errorf("unsupported event type %q", ev.Type))
	}

	var p model.MailboxActionEvent
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		log.Error("Failed to unmarshal mailbox action payload (non-retryable, sending to DLQ)",
			zap.Error(err),
			zap.String("raw_payload", string(ev.Data)),
		)
		return mq.Permanent(err)
	}

	// Redis 去重：避免重复处理
	if !h.deduper.AcquireOnce(ctx, "action_log", ev.ID) {
		return nil
	}

	entry := &model.ActionLog{
		EventID:   ev.ID,
		Kind:      ev.Type,
		SessionID: p.SessionID,
		Email:     p.Email,
		EmailID:   p.EmailID,
		ThreadID:  p.ThreadID,
		Recipient: p.Recipient,
		At:        p.At,
	}

	retryKey := util.FormatRetryKey("action_log", ev.ID)
	inserted, err := h.repo.Insert(ctx, entry)
	if err != nil {
		isRetryable, errType := util.ClassifyError(err)
		retryCount, cerr := h.retryCounter.IncrementAndGet(ctx, retryKey)
		if cerr != nil {
			// Redis 错误不影响处理
			log.Warn("Failed to get retry count, continuing anyway", zap.Error(cerr))
			retryCount = 1
		}

		log.Error("Failed to insert action log",
			zap.String("error_type", errType),
			zap.Bool("retryable", isRetryable),
			zap.Int64("retry_count", retryCount),
			zap.Error(err),
		)

		if !util.ShouldRetry(retryCount, maxRetries, isRetryable) {
			_ = h.retryCounter.Reset(ctx, retryKey)
			return mq.Permanent(err)
		}
		// 重新入队前释放去重 key
		h.deduper.Release(ctx, "action_log", ev.ID)
		return err
	}
	_ = h.retryCounter.Reset(ctx, retryKey)

	log.Info("Mailbox action recorded",
		zap.String("email_id", p.EmailID),
		zap.String("session_id", p.SessionID),
		zap.Bool("inserted", inserted),
	)
	return nil
}
