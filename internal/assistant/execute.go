package assistant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"inboxpilot/internal/confirm"
	"inboxpilot/internal/mailbox"
	"inboxpilot/internal/model"
	"inboxpilot/pkg/logger"
	"inboxpilot/pkg/metrics"
	"inboxpilot/pkg/otel"
	"inboxpilot/pkg/util"
)

var angleAddress = regexp.MustCompile(`<(.*?)>`)

// DeleteRequest 确认删除
type DeleteRequest struct {
	EmailID      string
	ConfirmToken string
}

// SendRequest 确认发送
type SendRequest struct {
	EmailID      string
	ReplyBody    string
	ConfirmToken string
}

// SuggestReply 拉取原邮件并起草回复，不修改邮箱
func (s *Service) SuggestReply(ctx context.Context, cred *model.Credential, emailID string) (*model.CommandOutcome, error) {
	if emailID == "" {
		return nil, ErrMissingEmailID
	}
	ctx, span := otel.StartSpan(ctx, "assistant.suggest_reply")
	defer span.End()

	mb, err := s.opener.Open(ctx, cred)
	if err != nil {
		return nil, s.fail(ctx, span, "open_mailbox", err)
	}

	item, err := mb.GetMessage(ctx, emailID)
	if err != nil {
		if errors.Is(err, mailbox.ErrNotFound) {
			return nil, mailbox.ErrNotFound
		}
		return nil, s.fail(ctx, span, "get_message", err)
	}

	draft, err := s.writer.DraftReply(ctx, item.Body)
	if err != nil {
		return nil, s.fail(ctx, span, "draft_reply", err)
	}

	metrics.IncrementCommandOutcome(model.OutcomeReplySuggested)
	return &model.CommandOutcome{
		Message: fmt.Sprintf("Proposed reply for subject '%s':", item.Subject),
		Action:  model.OutcomeReplySuggested,
		Data: model.SuggestedReply{
			OriginalEmailID: emailID,
			ProposedReply:   draft,
		},
	}, nil
}

// ConfirmDelete 把邮件移到回收站。授权范围不足单独返回 mailbox.ErrInsufficientScope
func (s *Service) ConfirmDelete(ctx context.Context, cred *model.Credential, req DeleteRequest) (*model.DeleteResult, error) {
	if req.EmailID == "" {
		return nil, ErrMissingEmailID
	}
	ctx, span := otel.StartSpan(ctx, "assistant.confirm_delete")
	defer span.End()

	if err := s.guard.Verify(ctx, req.ConfirmToken, cred.SessionID, confirm.KindDelete, req.EmailID, ""); err != nil {
		return nil, err
	}

	mb, err := s.opener.Open(ctx, cred)
	if err != nil {
		return nil, s.fail(ctx, span, "open_mailbox", err)
	}

	ok, err := mb.Trash(ctx, req.EmailID)
	metrics.IncrementMailboxMutation("trash", metrics.StatusLabel(mutationErr(ok, err)))
	if err != nil {
		if errors.Is(err, mailbox.ErrInsufficientScope) {
			logger.WithTrace(ctx, s.logger).Warn("Trash rejected for scope", zap.String("session_id", cred.SessionID))
			return nil, mailbox.ErrInsufficientScope
		}
		if errors.Is(err, mailbox.ErrNotFound) {
			return nil, mailbox.ErrNotFound
		}
		return nil, s.fail(ctx, span, "trash", err)
	}
	if !ok {
		return nil, s.fail(ctx, span, "trash", errors.New("trash not acknowledged"))
	}

	s.audit(ctx, model.EventEmailTrashed, model.MailboxActionEvent{
		SessionID: cred.SessionID,
		Email:     cred.Email,
		EmailID:   req.EmailID,
		At:        time.Now().UTC(),
	})

	return &model.DeleteResult{
		Status:  "success",
		Message: fmt.Sprintf("Email ID `%s...` moved to trash.", shortID(req.EmailID)),
	}, nil
}

// ConfirmSend 在原线程内回复原发件人
func (s *Service) ConfirmSend(ctx context.Context, cred *model.Credential, req SendRequest) (*model.CommandOutcome, error) {
	if req.EmailID == "" {
		return nil, ErrMissingEmailID
	}
	if strings.TrimSpace(req.ReplyBody) == "" {
		return nil, ErrMissingReplyBody
	}
	ctx, span := otel.StartSpan(ctx, "assistant.confirm_send")
	defer span.End()

	if err := s.guard.Verify(ctx, req.ConfirmToken, cred.SessionID, confirm.KindSend, req.EmailID, req.ReplyBody); err != nil {
		return nil, err
	}

	mb, err := s.opener.Open(ctx, cred)
	if err != nil {
		return nil, s.fail(ctx, span, "open_mailbox", err)
	}

	original, err := mb.GetMessage(ctx, req.EmailID)
	if err != nil {
		return nil, s.fail(ctx, span, "get_message", err)
	}

	reply := BuildReply(original, req.ReplyBody)
	if !strings.Contains(reply.To, "@") {
		return nil, s.fail(ctx, span, "build_reply", fmt.Errorf("original message has no sender address"))
	}

	ok, err := mb.SendReply(ctx, reply)
	metrics.IncrementMailboxMutation("send", metrics.StatusLabel(mutationErr(ok, err)))
	if err := mutationErr(ok, err); err != nil {
		return nil, s.fail(ctx, span, "send_reply", err)
	}

	s.audit(ctx, model.EventReplySent, model.MailboxActionEvent{
		SessionID: cred.SessionID,
		Email:     cred.Email,
		EmailID:   req.EmailID,
		ThreadID:  reply.ThreadID,
		Recipient: reply.To,
		At:        time.Now().UTC(),
	})

	metrics.IncrementCommandOutcome(model.OutcomeStatus)
	return &model.CommandOutcome{Message: "Reply sent successfully!", Action: model.OutcomeStatus}, nil
}

// BuildReply 收件人取 From 头中尖括号内的地址，没有尖括号时用原值；主题加 "Re: " 前缀
func BuildReply(original *model.MailboxItem, body string) model.Reply {
	return model.Reply{
		To:        ReplyAddress(original.Sender),
		Subject:   "Re: " + original.Subject,
		Body:      body,
		ThreadID:  original.ThreadID,
		InReplyTo: original.MessageID,
	}
}

// ReplyAddress "Display Name <address>" -> address
func ReplyAddress(from string) string {
	if m := angleAddress.FindStringSubmatch(from); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(from)
}

// audit 发布失败只记日志，不影响已完成的操作
func (s *Service) audit(ctx context.Context, routingKey string, event model.MailboxActionEvent) {
	if err := s.publisher.Publish(ctx, routingKey, event); err != nil {
		logger.WithTrace(ctx, s.logger).Error("Failed to publish audit event",
			zap.String("routing_key", routingKey),
			zap.String("email_id", event.EmailID),
			zap.Error(err),
		)
	}
}

// fail 记录远程调用失败并包装成 ErrServiceFailure
func (s *Service) fail(ctx context.Context, span trace.Span, stage string, err error) error {
	otel.RecordError(span, err)
	_, errType := util.ClassifyError(err)
	logger.WithTrace(ctx, s.logger).Error("Assistant stage failed",
		zap.String("stage", stage),
		zap.String("error_type", errType),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %w", ErrServiceFailure, stage, err)
}

func mutationErr(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("mutation not acknowledged")
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}
