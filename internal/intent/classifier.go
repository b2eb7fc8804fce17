package intent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"inboxpilot/pkg/logger"
	"inboxpilot/pkg/otel"
)

const systemPrompt = `You classify commands a user gives to their email assistant.
Reply with exactly one JSON object and nothing else, in this shape:
{"action": "read" | "respond" | "delete" | "unknown",
 "params": {"count": int, "sender": string, "subject_keyword": string,
            "email_number": int, "reply_content": string}}
Rules:
- "read": the user wants to see recent emails. Set count if a number is given.
- "respond": the user wants to reply. Put the words to send in reply_content.
- "delete": the user wants to remove an email.
- sender is the person's name or address, subject_keyword a word or phrase from the subject.
- email_number is a position in a list the user saw earlier ("email number 2" -> 2).
- Omit params you cannot extract. Use "unknown" for anything else.`

// Completer 文本生成能力
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Classifier 把自然语言命令转成 Intent
type Classifier struct {
	llm          Completer
	defaultCount int
	maxCount     int
	logger       *zap.Logger
}

func NewClassifier(llm Completer, defaultCount, maxCount int, logger *zap.Logger) *Classifier {
	if defaultCount < 1 {
		defaultCount = 5
	}
	return &Classifier{
		llm:          llm,
		defaultCount: defaultCount,
		maxCount:     maxCount,
		logger:       logger,
	}
}

// Classify 模型输出格式错误时返回 Unknown；只有调用本身失败才返回 error
func (c *Classifier) Classify(ctx context.Context, command string) (Intent, error) {
	ctx, span := otel.StartSpan(ctx, "intent.classify")
	defer span.End()

	out, err := c.llm.Complete(ctx, systemPrompt, command)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("classify command: %w", err)
	}

	in := Parse(out, c.defaultCount, c.maxCount)
	if in.Action() == ActionUnknown {
		logger.WithTrace(ctx, c.logger).Debug("Command classified as unknown",
			zap.Int("output_length", len(out)),
		)
	}
	return in, nil
}
