package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inboxpilot/internal/model"
	"inboxpilot/pkg/mq"
)

type fakeStore struct {
	rows []*model.ActionLog
	err  error
}

func (f *fakeStore) Insert(_ context.Context, l *model.ActionLog) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.rows = append(f.rows, l)
	return true, nil
}

type fakeDeduper struct {
	seen     map[string]bool
	released []string
}

func (f *fakeDeduper) AcquireOnce(_ context.Context, ns, key string) bool {
	k := ns + ":" + key
	if f.seen[k] {
		return false
	}
	f.seen[k] = true
	return true
}

func (f *fakeDeduper) Release(_ context.Context, ns, key string) {
	delete(f.seen, ns+":"+key)
	f.released = append(f.released, key)
}

type fakeRetries struct {
	counts map[string]int64
}

func (f *fakeRetries) IncrementAndGet(_ context.Context, key string) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRetries) Reset(_ context.Context, key string) error {
	delete(f.counts, key)
	return nil
}

func newHandler(store *fakeStore) (*ActionLogHandler, *fakeDeduper, *fakeRetries) {
	d := &fakeDeduper{seen: map[string]bool{}}
	r := &fakeRetries{counts: map[string]int64{}}
	return NewActionLogHandler(store, d, r, zap.NewNop()), d, r
}

func trashedEvent(t *testing.T) mq.Event {
	t.Helper()
	ev, err := mq.NewEvent(model.EventEmailTrashed, model.MailboxActionEvent{
		SessionID: "sid-1",
		Email:     "me@example.com",
		EmailID:   "m-1",
		At:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	return ev
}

func TestHandleStoresActionLog(t *testing.T) {
	store := &fakeStore{}
	h, _, _ := newHandler(store)
	ev := trashedEvent(t)

	require.NoError(t, h.Handle(context.Background(), ev))

	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.Equal(t, ev.ID, row.EventID)
	assert.Equal(t, model.EventEmailTrashed, row.Kind)
	assert.Equal(t, "m-1", row.EmailID)
	assert.Equal(t, "sid-1", row.SessionID)
}

func TestHandleSkipsDuplicateDelivery(t *testing.T) {
	store := &fakeStore{}
	h, _, _ := newHandler(store)
	ev := trashedEvent(t)

	require.NoError(t, h.Handle(context.Background(), ev))
	require.NoError(t, h.Handle(context.Background(), ev))

	assert.Len(t, store.rows, 1)
}

func TestHandleBadPayloadIsPermanent(t *testing.T) {
	h, _, _ := newHandler(&fakeStore{})
	ev := mq.Event{ID: "ev-1", Type: model.EventReplySent, Data: json.RawMessage(`{"email_id":`)}

	err := h.Handle(context.Background(), ev)

	assert.ErrorIs(t, err, mq.ErrPermanent)
}

func TestHandleUnknownTypeIsPermanent(t *testing.T) {
	h, _, _ := newHandler(&fakeStore{})
	ev := mq.Event{ID: "ev-1", Type: "mailbox.starred", Data: json.RawMessage(`{}`)}

	assert.ErrorIs(t, h.Handle(context.Background(), ev), mq.ErrPermanent)
}

func TestHandleRetryableErrorRequeues(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	store := &fakeStore{err: fmt.Errorf("insert: %w", netErr)}
	h, dedup, _ := newHandler(store)
	ev := trashedEvent(t)

	err := h.Handle(context.Background(), ev)

	require.Error(t, err)
	assert.NotErrorIs(t, err, mq.ErrPermanent)
	assert.Equal(t, []string{ev.ID}, dedup.released)
}

func TestHandleGivesUpAfterMaxRetries(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	store := &fakeStore{err: netErr}
	h, _, retries := newHandler(store)
	ev := trashedEvent(t)

	var err error
	for i := 0; i <= maxRetries; i++ {
		err = h.Handle(context.Background(), ev)
	}

	assert.ErrorIs(t, err, mq.ErrPermanent)
	assert.Empty(t, retries.counts)
}

func TestHandleNonRetryableErrorIsPermanent(t *testing.T) {
	store := &fakeStore{err: errors.New("something odd")}
	h, _, _ := newHandler(store)

	assert.ErrorIs(t, h.Handle(context.Background(), trashedEvent(t)), mq.ErrPermanent)
}
