package assistant

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"inboxpilot/internal/confirm"
	"inboxpilot/internal/intent"
	"inboxpilot/internal/mailbox"
	"inboxpilot/internal/model"
	"inboxpilot/internal/resolver"
	"inboxpilot/pkg/logger"
	"inboxpilot/pkg/metrics"
	"inboxpilot/pkg/otel"
	"inboxpilot/pkg/util"
)

const unknownMessage = "I didn't understand that command. Try 'Read my last 5 emails' or 'Reply to John that I'll be late'."

// Classifier 命令 -> Intent
type Classifier interface {
	Classify(ctx context.Context, command string) (intent.Intent, error)
}

// Writer 文本生成能力
type Writer interface {
	Summarize(ctx context.Context, body string) (string, error)
	DraftReply(ctx context.Context, body string) (string, error)
}

// Publisher 审计事件发布
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Service 命令流水线以及两阶段确认的执行端。每次调用互不共享状态
type Service struct {
	classifier     Classifier
	writer         Writer
	opener         mailbox.Opener
	guard          *confirm.Guard
	publisher      Publisher
	summaryWorkers int
	logger         *zap.Logger
}

func NewService(
	classifier Classifier,
	writer Writer,
	opener mailbox.Opener,
	guard *confirm.Guard,
	publisher Publisher,
	summaryWorkers int,
	logger *zap.Logger,
) *Service {
	if summaryWorkers < 1 {
		summaryWorkers = 1
	}
	return &Service{
		classifier:     classifier,
		writer:         writer,
		opener:         opener,
		guard:          guard,
		publisher:      publisher,
		summaryWorkers: summaryWorkers,
		logger:         logger,
	}
}

// HandleCommand 执行一次命令。
// 规则按顺序：delete 找到目标 -> confirm_delete；respond 带回复内容且找到目标 -> confirm_send；
// read -> read_success；respond/delete 未找到目标 -> needs_refinement；其余 -> unknown
func (s *Service) HandleCommand(ctx context.Context, cred *model.Credential, command string) (*model.CommandOutcome, error) {
	ctx, span := otel.StartSpan(ctx, "assistant.command")
	defer span.End()

	log := logger.WithTrace(ctx, s.logger).With(zap.String("session_id", cred.SessionID))
	log.Info("Command received", zap.Int("command_length", len(command)))

	in, err := s.classifier.Classify(ctx, command)
	if err != nil {
		metrics.IncrementCommandOutcome("error")
		return nil, s.fail(ctx, span, "classify", err)
	}
	log.Info("Command classified", zap.String("action", string(in.Action())))

	var outcome *model.CommandOutcome
	if in.Action() == intent.ActionUnknown {
		outcome = &model.CommandOutcome{Message: unknownMessage, Action: model.OutcomeUnknown}
	} else {
		mb, err := s.opener.Open(ctx, cred)
		if err != nil {
			metrics.IncrementCommandOutcome("error")
			return nil, s.fail(ctx, span, "open_mailbox", err)
		}
		outcome, err = s.dispatch(ctx, log, mb, cred, in)
		if err != nil {
			metrics.IncrementCommandOutcome("error")
			return nil, s.fail(ctx, span, string(in.Action()), err)
		}
	}

	metrics.IncrementCommandOutcome(outcome.Action)
	log.Info("Command handled", zap.String("outcome", outcome.Action))
	return outcome, nil
}

func (s *Service) dispatch(ctx context.Context, log *zap.Logger, mb mailbox.Mailbox, cred *model.Credential, in intent.Intent) (*model.CommandOutcome, error) {
	switch in := in.(type) {
	case intent.Delete:
		if id, ok := s.resolve(ctx, log, mb, in.Target); ok {
			token, err := s.guard.Mint(cred.SessionID, confirm.KindDelete, id, "")
			if err != nil {
				return nil, err
			}
			return &model.CommandOutcome{
				Message: "I found an email matching your request. Are you sure you want to delete it?",
				Action:  model.OutcomeConfirmDelete,
				Data:    model.PendingDelete{EmailID: id, ConfirmToken: token},
			}, nil
		}
	case intent.Respond:
		if in.ReplyContent == "" {
			break
		}
		if id, ok := s.resolve(ctx, log, mb, in.Target); ok {
			token, err := s.guard.Mint(cred.SessionID, confirm.KindSend, id, in.ReplyContent)
			if err != nil {
				return nil, err
			}
			recipient := in.Target.Sender
			if recipient == "" {
				recipient = "the recipient"
			}
			return &model.CommandOutcome{
				Message: fmt.Sprintf("I drafted the following reply for the email from '%s'. Confirm sending?", recipient),
				Action:  model.OutcomeConfirmSend,
				Data: model.PendingSend{
					OriginalEmailID: id,
					ReplyBody:       in.ReplyContent,
					ConfirmToken:    token,
				},
			}, nil
		}
	case intent.Read:
		items, err := s.readRecent(ctx, mb, in.Count)
		if err != nil {
			return nil, err
		}
		return &model.CommandOutcome{
			Message: fmt.Sprintf("Found the last %d emails, summarized below:", len(items)),
			Action:  model.OutcomeReadSuccess,
			Data:    model.ReadData{Emails: items},
		}, nil
	}

	return &model.CommandOutcome{
		Message: fmt.Sprintf("I detected the intent to %s but couldn't find a target email using the sender or subject you gave. "+
			"Please be more specific or pick an email from the list.", in.Action()),
		Action: model.OutcomeNeedsRefinement,
		Data: model.RefinementData{Intent: model.IntentEcho{
			Action: string(in.Action()),
			Params: in.Params(),
		}},
	}, nil
}

// resolve 搜索失败只记日志，对调用方表现为未找到目标
func (s *Service) resolve(ctx context.Context, log *zap.Logger, mb mailbox.Mailbox, target intent.Target) (string, bool) {
	id, err := resolver.Resolve(ctx, mb, target)
	switch {
	case err == nil:
		return id, true
	case errors.Is(err, resolver.ErrSearchFailed):
		_, errType := util.ClassifyError(err)
		log.Warn("Target search failed, asking for refinement",
			zap.String("error_type", errType),
			zap.Error(err),
		)
	default:
		log.Info("No target resolved",
			zap.Bool("has_sender", target.Sender != ""),
			zap.Bool("has_subject", target.SubjectKeyword != ""),
		)
	}
	return "", false
}

// readRecent 并发生成摘要，结果按下标写回以保持拉取顺序；任何一次失败整体失败
func (s *Service) readRecent(ctx context.Context, mb mailbox.Mailbox, count int) ([]model.SummarizedItem, error) {
	items, err := mb.ListRecent(ctx, count)
	if err != nil {
		return nil, err
	}

	out := make([]model.SummarizedItem, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.summaryWorkers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			summary, err := s.writer.Summarize(gctx, item.Body)
			if err != nil {
				return fmt.Errorf("summarize %s: %w", item.ID, err)
			}
			out[i] = model.SummarizedItem{MailboxItem: item, Summary: summary}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
