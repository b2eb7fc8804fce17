package mailbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"inboxpilot/internal/model"
	"inboxpilot/pkg/rbac"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func sampleMessage(id string) map[string]any {
	return map[string]any{
		"id":       id,
		"threadId": "thread-" + id,
		"snippet":  "This is a short snippet...",
		"payload": map[string]any{
			"mimeType": "multipart/alternative",
			"headers": []map[string]string{
				{"name": "From", "value": "John Doe <john.doe@example.com>"},
				{"name": "Subject", "value": "Invoice 789 Due"},
				{"name": "Message-ID", "value": "<abc@mail.example.com>"},
			},
			"parts": []map[string]any{
				{"mimeType": "text/html", "body": map[string]any{"size": 1000}},
				{"mimeType": "text/plain", "body": map[string]any{"data": b64("payment due"), "size": 11}},
			},
		},
	}
}

type fakeGmail struct {
	t        *testing.T
	listIDs  []string
	lastQ    string
	trashed  []string
	sent     *gmail.Message
	failWith int
	failBody string
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if f.failWith != 0 {
		w.WriteHeader(f.failWith)
		_, _ = io.WriteString(w, f.failBody)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/")
	switch {
	case r.Method == http.MethodGet && path == "messages":
		f.lastQ = r.URL.Query().Get("q")
		var msgs []map[string]string
		for _, id := range f.listIDs {
			msgs = append(msgs, map[string]string{"id": id, "threadId": "thread-" + id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": msgs})
	case r.Method == http.MethodGet && strings.HasPrefix(path, "messages/"):
		_ = json.NewEncoder(w).Encode(sampleMessage(strings.TrimPrefix(path, "messages/")))
	case r.Method == http.MethodPost && path == "messages/send":
		var msg gmail.Message
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&msg))
		f.sent = &msg
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "sent-1"})
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/trash"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "messages/"), "/trash")
		f.trashed = append(f.trashed, id)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestGmail(t *testing.T, fake *fakeGmail, scopes []string) *Gmail {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return &Gmail{srv: svc, scopes: scopes, logger: zap.NewNop()}
}

func TestQueryString(t *testing.T) {
	assert.Equal(t, `from:"John Smith"`, Query{From: "John Smith"}.String())
	assert.Equal(t, `from:"john" subject:"invoice 42"`, Query{From: "john", Subject: `"invoice 42"`}.String())
	assert.True(t, Query{}.Empty())
}

func TestListRecentParsesMessages(t *testing.T) {
	fake := &fakeGmail{listIDs: []string{"m2", "m1"}}
	g := newTestGmail(t, fake, nil)

	items, err := g.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "m2", items[0].ID)
	assert.Equal(t, "m1", items[1].ID)
	assert.Equal(t, "thread-m2", items[0].ThreadID)
	assert.Equal(t, "John Doe <john.doe@example.com>", items[0].Sender)
	assert.Equal(t, "Invoice 789 Due", items[0].Subject)
	assert.Equal(t, "payment due", items[0].Body)
	assert.Equal(t, "<abc@mail.example.com>", items[0].MessageID)
}

func TestSearchSendsQuery(t *testing.T) {
	fake := &fakeGmail{listIDs: []string{"newest", "older"}}
	g := newTestGmail(t, fake, nil)

	ids, err := g.Search(context.Background(), Query{From: "John Smith"})
	require.NoError(t, err)
	assert.Equal(t, []string{"newest", "older"}, ids)
	assert.Equal(t, `from:"John Smith"`, fake.lastQ)
}

func TestTrash(t *testing.T) {
	fake := &fakeGmail{}
	g := newTestGmail(t, fake, []string{rbac.ScopeModify})

	ok, err := g.Trash(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"m1"}, fake.trashed)
}

func TestTrashWithoutModifyScopeSkipsCall(t *testing.T) {
	fake := &fakeGmail{}
	g := newTestGmail(t, fake, []string{rbac.ScopeReadonly})

	ok, err := g.Trash(context.Background(), "m1")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInsufficientScope)
	assert.Empty(t, fake.trashed)
}

func TestTrashInsufficientPermissionsFromAPI(t *testing.T) {
	fake := &fakeGmail{
		failWith: http.StatusForbidden,
		failBody: `{"error":{"code":403,"message":"Request had insufficient authentication scopes.",
			"errors":[{"reason":"insufficientPermissions","message":"Insufficient Permission"}]}}`,
	}
	g := newTestGmail(t, fake, nil)

	_, err := g.Trash(context.Background(), "m1")
	assert.ErrorIs(t, err, ErrInsufficientScope)
}

func TestOtherForbiddenIsGeneric(t *testing.T) {
	fake := &fakeGmail{
		failWith: http.StatusForbidden,
		failBody: `{"error":{"code":403,"message":"Daily limit exceeded","errors":[{"reason":"dailyLimitExceeded"}]}}`,
	}
	g := newTestGmail(t, fake, nil)

	_, err := g.Trash(context.Background(), "m1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientScope)
}

func TestGetMessageNotFound(t *testing.T) {
	fake := &fakeGmail{
		failWith: http.StatusNotFound,
		failBody: `{"error":{"code":404,"message":"Requested entity was not found."}}`,
	}
	g := newTestGmail(t, fake, nil)

	item, err := g.GetMessage(context.Background(), "missing")
	assert.Nil(t, item)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendReplyBuildsThreadedMessage(t *testing.T) {
	fake := &fakeGmail{}
	g := newTestGmail(t, fake, []string{rbac.ScopeModify})

	ok, err := g.SendReply(context.Background(), model.Reply{
		To:        "john@example.com",
		Subject:   "Re: Lunch",
		Body:      "I'll be late",
		ThreadID:  "thread-9",
		InReplyTo: "<orig@example.com>",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, fake.sent)
	assert.Equal(t, "thread-9", fake.sent.ThreadId)

	raw, err := base64.URLEncoding.DecodeString(fake.sent.Raw)
	require.NoError(t, err)
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Re: Lunch", subject)
	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "john@example.com", to[0].Address)
	assert.Equal(t, "<orig@example.com>", mr.Header.Get("In-Reply-To"))

	part, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Equal(t, "I'll be late", string(body))
}

func TestPlainTextExtraction(t *testing.T) {
	nested := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>hi</p>")}},
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString([]byte("hi there"))}},
				},
			},
		},
	}
	assert.Equal(t, "hi there", plainText(nested))

	htmlOnly := &gmail.MessagePart{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>hi</p>")}}
	assert.Equal(t, "", plainText(htmlOnly))

	single := &gmail.MessagePart{MimeType: "text/plain; charset=UTF-8", Body: &gmail.MessagePartBody{Data: b64("single part")}}
	assert.Equal(t, "single part", plainText(single))
}

func TestItemDefaults(t *testing.T) {
	item := itemFromMessage(&gmail.Message{Id: "x", Payload: &gmail.MessagePart{}})
	assert.Equal(t, "Unknown Sender", item.Sender)
	assert.Equal(t, "No Subject", item.Subject)
	assert.Empty(t, item.Body)
}

func TestWriteReplyOmitsInReplyToWhenUnknown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReply(&buf, model.Reply{To: "a@example.com", Subject: "Re: x", Body: "ok"}, time.Unix(0, 0)))
	assert.NotContains(t, buf.String(), "In-Reply-To")
	assert.Contains(t, buf.String(), "Subject: Re: x")
}
