package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"inboxpilot/internal/confirm"
	"inboxpilot/internal/intent"
	"inboxpilot/internal/mailbox"
	"inboxpilot/internal/model"
)

type fakeClassifier struct {
	in  intent.Intent
	err error
}

func (f *fakeClassifier) Classify(context.Context, string) (intent.Intent, error) {
	return f.in, f.err
}

type fakeWriter struct {
	mu         sync.Mutex
	summarized []string
	failOn     string
	delay      func(body string) time.Duration
	draft      string
	draftErr   error
}

func (f *fakeWriter) Summarize(ctx context.Context, body string) (string, error) {
	if f.delay != nil {
		select {
		case <-time.After(f.delay(body)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if body == f.failOn {
		return "", errors.New("model unavailable")
	}
	f.mu.Lock()
	f.summarized = append(f.summarized, body)
	f.mu.Unlock()
	return "summary of " + body, nil
}

func (f *fakeWriter) DraftReply(context.Context, string) (string, error) {
	return f.draft, f.draftErr
}

type fakeMailbox struct {
	items     []model.MailboxItem
	listErr   error
	listCalls []int
	searchIDs []string
	searchErr error
	searches  []mailbox.Query
	messages  map[string]*model.MailboxItem
	getErr    error
	sent      []model.Reply
	sendOK    bool
	sendErr   error
	trashed   []string
	trashOK   bool
	trashErr  error
	mutations int
}

func (f *fakeMailbox) ListRecent(_ context.Context, n int) ([]model.MailboxItem, error) {
	f.listCalls = append(f.listCalls, n)
	if f.listErr != nil {
		return nil, f.listErr
	}
	if n < len(f.items) {
		return f.items[:n], nil
	}
	return f.items, nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, id string) (*model.MailboxItem, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	item, ok := f.messages[id]
	if !ok {
		return nil, mailbox.ErrNotFound
	}
	return item, nil
}

func (f *fakeMailbox) Search(_ context.Context, q mailbox.Query) ([]string, error) {
	f.searches = append(f.searches, q)
	return f.searchIDs, f.searchErr
}

func (f *fakeMailbox) SendReply(_ context.Context, r model.Reply) (bool, error) {
	f.mutations++
	f.sent = append(f.sent, r)
	return f.sendOK, f.sendErr
}

func (f *fakeMailbox) Trash(_ context.Context, id string) (bool, error) {
	f.mutations++
	f.trashed = append(f.trashed, id)
	return f.trashOK, f.trashErr
}

type fakeOpener struct {
	mb    *fakeMailbox
	err   error
	opens int
}

func (f *fakeOpener) Open(context.Context, *model.Credential) (mailbox.Mailbox, error) {
	f.opens++
	if f.err != nil {
		return nil, f.err
	}
	return f.mb, nil
}

type publishedEvent struct {
	routingKey string
	payload    any
}

type fakePublisher struct {
	events []publishedEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	f.events = append(f.events, publishedEvent{routingKey, payload})
	return f.err
}

type memOnce map[string]bool

func (m memOnce) AcquireOnce(_ context.Context, ns, key string) bool {
	if m[ns+key] {
		return false
	}
	m[ns+key] = true
	return true
}

type harness struct {
	classifier *fakeClassifier
	writer     *fakeWriter
	mb         *fakeMailbox
	opener     *fakeOpener
	publisher  *fakePublisher
	svc        *Service
}

func newHarness(in intent.Intent) *harness {
	return newHarnessWithGuard(in, confirm.NewGuard(false, false, "", 0, memOnce{}))
}

func newHarnessWithGuard(in intent.Intent, guard *confirm.Guard) *harness {
	h := &harness{
		classifier: &fakeClassifier{in: in},
		writer:     &fakeWriter{},
		mb:         &fakeMailbox{messages: map[string]*model.MailboxItem{}, sendOK: true, trashOK: true},
		publisher:  &fakePublisher{},
	}
	h.opener = &fakeOpener{mb: h.mb}
	h.svc = NewService(h.classifier, h.writer, h.opener, guard, h.publisher, 3, zap.NewNop())
	return h
}

func testCred() *model.Credential {
	return &model.Credential{SessionID: "sid-1", DisplayName: "Ada", Email: "ada@example.com"}
}

func mailboxItems(n int) []model.MailboxItem {
	items := make([]model.MailboxItem, n)
	for i := range items {
		items[i] = model.MailboxItem{
			ID:      fmt.Sprintf("m%d", i),
			Sender:  "sender@example.com",
			Subject: fmt.Sprintf("subject %d", i),
			Body:    fmt.Sprintf("body %d", i),
		}
	}
	return items
}
