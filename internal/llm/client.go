package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"inboxpilot/pkg/circuitbreaker"
	"inboxpilot/pkg/config"
	"inboxpilot/pkg/logger"
	"inboxpilot/pkg/metrics"
	"inboxpilot/pkg/otel"
)

// ErrEmptyResponse 模型没有返回任何候选
var ErrEmptyResponse = errors.New("llm: empty response")

const (
	summarizePrompt = "Condense the following email into one short summary of its main topic " +
		"and any action it asks for. Use at most two sentences.\n\nEMAIL:\n---\n"
	draftPrompt = "Write a professional, clear reply to the email below, ready to send. " +
		"End with a standard closing such as 'Best regards, [Your Name]'. " +
		"Output only the reply body.\n\n--- ORIGINAL EMAIL ---\n"
)

// Client OpenAI 兼容的聊天补全客户端。只调用一次，不重试
type Client struct {
	client      openai.Client
	model       string
	temperature float64
	breaker     *circuitbreaker.CircuitBreaker
	logger      *zap.Logger
}

func New(cfg config.LLMConfig, logger *zap.Logger) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Client{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		breaker:     circuitbreaker.New("llm", circuitbreaker.DefaultConfig(), logger),
		logger:      logger,
	}
}

// Complete 发送一轮 system + user 消息，返回去掉首尾空白的文本
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	return c.call(ctx, "complete", system, prompt)
}

// Summarize 一到两句话的摘要
func (c *Client) Summarize(ctx context.Context, body string) (string, error) {
	return c.call(ctx, "summarize", "", summarizePrompt+body)
}

// DraftReply 根据原邮件起草回复正文
func (c *Client) DraftReply(ctx context.Context, body string) (string, error) {
	return c.call(ctx, "draft_reply", "", draftPrompt+body)
}

func (c *Client) call(ctx context.Context, op, system, prompt string) (string, error) {
	ctx, span := otel.StartSpan(ctx, "llm."+op)
	defer span.End()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    shared.ChatModel(c.model),
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}

	var text string
	start := time.Now()
	err := c.breaker.Execute(func() error {
		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}
		if len(completion.Choices) == 0 {
			return ErrEmptyResponse
		}
		text = strings.TrimSpace(completion.Choices[0].Message.Content)
		return nil
	}, countsAsFailure)

	metrics.RecordLLMCallLatency(op, metrics.StatusLabel(err), time.Since(start))
	otel.RecordError(span, err)
	if err != nil {
		logger.WithTrace(ctx, c.logger).Error("LLM call failed",
			zap.String("operation", op),
			zap.String("model", c.model),
			zap.Error(err),
		)
		return "", fmt.Errorf("llm %s: %w", op, err)
	}
	return text, nil
}

// countsAsFailure 调用方取消不计入熔断
func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}
