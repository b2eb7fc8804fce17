package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxpilot/internal/intent"
	"inboxpilot/internal/mailbox"
)

type fakeSearcher struct {
	ids     []string
	err     error
	queries []mailbox.Query
}

func (f *fakeSearcher) Search(_ context.Context, q mailbox.Query) ([]string, error) {
	f.queries = append(f.queries, q)
	return f.ids, f.err
}

func TestResolvePicksMostRecent(t *testing.T) {
	mb := &fakeSearcher{ids: []string{"newest", "older", "oldest"}}

	id, err := Resolve(context.Background(), mb, intent.Target{Sender: "John", SubjectKeyword: "lunch"})
	require.NoError(t, err)
	assert.Equal(t, "newest", id)
	assert.Equal(t, []mailbox.Query{{From: "John", Subject: "lunch"}}, mb.queries)
}

func TestResolveWithoutFiltersNeverSearches(t *testing.T) {
	mb := &fakeSearcher{ids: []string{"anything"}}

	_, err := Resolve(context.Background(), mb, intent.Target{})
	assert.ErrorIs(t, err, ErrNoTarget)
	assert.Empty(t, mb.queries)
}

func TestResolveNoMatches(t *testing.T) {
	mb := &fakeSearcher{}

	_, err := Resolve(context.Background(), mb, intent.Target{SubjectKeyword: "invoice"})
	assert.ErrorIs(t, err, ErrNoTarget)
	assert.Len(t, mb.queries, 1)
}

func TestResolveSearchFailureIsDistinguished(t *testing.T) {
	boom := errors.New("backend unavailable")
	mb := &fakeSearcher{err: boom}

	_, err := Resolve(context.Background(), mb, intent.Target{Sender: "John"})
	assert.ErrorIs(t, err, ErrSearchFailed)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoTarget)
}
