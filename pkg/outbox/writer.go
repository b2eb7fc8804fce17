package outbox

import (
	"context"

	"inboxpilot/pkg/mq"
)

// Writer 以 Publish 的形式写 outbox，由 Dispatcher 异步投递
type Writer struct {
	repo *Repository
}

func NewWriter(repo *Repository) *Writer {
	return &Writer{repo: repo}
}

func (w *Writer) Publish(ctx context.Context, routingKey string, payload any) error {
	ev, err := mq.NewEvent(routingKey, payload)
	if err != nil {
		return err
	}
	return w.repo.InsertEvent(ctx, routingKey, ev)
}
