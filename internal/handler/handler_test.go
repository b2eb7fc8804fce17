package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inboxpilot/internal/assistant"
	"inboxpilot/internal/confirm"
	"inboxpilot/internal/mailbox"
	"inboxpilot/internal/model"
	"inboxpilot/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAssistant struct {
	outcome   *model.CommandOutcome
	deleted   *model.DeleteResult
	err       error
	gotCmd    string
	gotDelete assistant.DeleteRequest
	gotSend   assistant.SendRequest
}

func (f *fakeAssistant) HandleCommand(_ context.Context, _ *model.Credential, command string) (*model.CommandOutcome, error) {
	f.gotCmd = command
	return f.outcome, f.err
}

func (f *fakeAssistant) SuggestReply(_ context.Context, _ *model.Credential, emailID string) (*model.CommandOutcome, error) {
	return f.outcome, f.err
}

func (f *fakeAssistant) ConfirmDelete(_ context.Context, _ *model.Credential, req assistant.DeleteRequest) (*model.DeleteResult, error) {
	f.gotDelete = req
	return f.deleted, f.err
}

func (f *fakeAssistant) ConfirmSend(_ context.Context, _ *model.Credential, req assistant.SendRequest) (*model.CommandOutcome, error) {
	f.gotSend = req
	return f.outcome, f.err
}

func chatEngine(a Assistant, withCred bool) *gin.Engine {
	h := NewChatHandler(a, zap.NewNop())
	r := gin.New()
	if withCred {
		r.Use(func(c *gin.Context) {
			c.Set(CredentialKey, &model.Credential{SessionID: "sid-1", DisplayName: "Ada Lovelace"})
			c.Next()
		})
	}
	r.POST("/command", h.Command)
	r.POST("/suggest-reply", h.SuggestReply)
	r.POST("/delete-email", h.DeleteEmail)
	r.POST("/send-reply", h.SendReply)
	r.GET("/profile", h.Profile)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCommandReturnsOutcome(t *testing.T) {
	a := &fakeAssistant{outcome: &model.CommandOutcome{
		Message: "Are you sure you want to delete the email from sam?",
		Action:  model.OutcomeConfirmDelete,
		Data:    model.PendingDelete{EmailID: "m-1"},
	}}

	w := do(chatEngine(a, true), http.MethodPost, "/command", `{"command":"delete the email from sam"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "delete the email from sam", a.gotCmd)
	body := decode(t, w)
	assert.Equal(t, model.OutcomeConfirmDelete, body["action"])
	assert.Equal(t, "m-1", body["data"].(map[string]any)["email_id"])
}

func TestCommandRejectsMissingCommand(t *testing.T) {
	w := do(chatEngine(&fakeAssistant{}, true), http.MethodPost, "/command", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommandRequiresCredential(t *testing.T) {
	w := do(chatEngine(&fakeAssistant{}, false), http.MethodPost, "/command", `{"command":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCommandServiceFailureIsGeneric(t *testing.T) {
	a := &fakeAssistant{err: fmt.Errorf("%w: list: %w", assistant.ErrServiceFailure, errors.New("dial tcp: secret detail"))}

	w := do(chatEngine(a, true), http.MethodPost, "/command", `{"command":"read my emails"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret detail")
}

func TestDeleteEmailPassesRequest(t *testing.T) {
	a := &fakeAssistant{deleted: &model.DeleteResult{Status: "success", Message: "Email ID `m-1...` moved to trash."}}

	w := do(chatEngine(a, true), http.MethodPost, "/delete-email", `{"email_id":"m-1","confirm_token":"tok"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, assistant.DeleteRequest{EmailID: "m-1", ConfirmToken: "tok"}, a.gotDelete)
	assert.Equal(t, "success", decode(t, w)["status"])
}

func TestSendReplyPassesRequest(t *testing.T) {
	a := &fakeAssistant{outcome: &model.CommandOutcome{Message: "Reply sent successfully!", Action: model.OutcomeStatus}}

	w := do(chatEngine(a, true), http.MethodPost, "/send-reply", `{"email_id":"m-2","reply_body":"Thanks!"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "m-2", a.gotSend.EmailID)
	assert.Equal(t, "Thanks!", a.gotSend.ReplyBody)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		err    error
		status int
	}{
		{"missing id", "/delete-email", assistant.ErrMissingEmailID, http.StatusBadRequest},
		{"missing body", "/send-reply", assistant.ErrMissingReplyBody, http.StatusBadRequest},
		{"token required", "/delete-email", confirm.ErrTokenRequired, http.StatusBadRequest},
		{"token invalid", "/send-reply", confirm.ErrTokenInvalid, http.StatusBadRequest},
		{"token reused", "/delete-email", confirm.ErrTokenReused, http.StatusConflict},
		{"not found", "/delete-email", fmt.Errorf("trash: %w", mailbox.ErrNotFound), http.StatusNotFound},
		{"scope", "/delete-email", fmt.Errorf("trash: %w", mailbox.ErrInsufficientScope), http.StatusForbidden},
		{"generic", "/suggest-reply", assistant.ErrServiceFailure, http.StatusInternalServerError},
		{"wrapped remote", "/send-reply", fmt.Errorf("%w: get_message: %w", assistant.ErrServiceFailure, mailbox.ErrNotFound), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(chatEngine(&fakeAssistant{err: tc.err}, true), http.MethodPost, tc.path, `{"email_id":"m-1"}`)
			assert.Equal(t, tc.status, w.Code)
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func TestNotFoundMessage(t *testing.T) {
	w := do(chatEngine(&fakeAssistant{err: mailbox.ErrNotFound}, true), http.MethodPost, "/delete-email", `{"email_id":"gone"}`)
	assert.Equal(t, "Email not found or access denied.", decode(t, w)["error"])
}

func TestDeleteEmailNotFound(t *testing.T) {
	a := &fakeAssistant{err: mailbox.ErrNotFound}
	w := do(chatEngine(a, true), http.MethodPost, "/delete-email", `{"email_id":"gone"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Email not found or access denied.", decode(t, w)["error"])
	assert.Equal(t, "gone", a.gotDelete.EmailID)
}

func TestProfile(t *testing.T) {
	w := do(chatEngine(&fakeAssistant{}, true), http.MethodGet, "/profile", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada Lovelace", decode(t, w)["name"])
}

type fakeAuth struct {
	token     string
	err       error
	gotCode   string
	loggedOut string
}

func (f *fakeAuth) AuthURL(state string) string {
	return "https://accounts.example.test/auth?state=" + state
}

func (f *fakeAuth) Complete(_ context.Context, code string) (string, *model.Session, error) {
	f.gotCode = code
	return f.token, &model.Session{ID: "sid-1"}, f.err
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	f.loggedOut = token
	return nil
}

func authEngine(a Authenticator) *gin.Engine {
	h := NewAuthHandler(a,
		config.JWTConfig{CookieName: "session", SessionTTL: time.Hour},
		config.FrontendConfig{DashboardURL: "http://app.test/dashboard", HomeURL: "http://app.test/"},
		zap.NewNop(),
	)
	r := gin.New()
	r.GET("/login", h.Login)
	r.GET("/callback", h.Callback)
	r.GET("/logout", h.Logout)
	return r
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginSetsStateAndRedirects(t *testing.T) {
	w := do(authEngine(&fakeAuth{}), http.MethodGet, "/login", "")

	require.Equal(t, http.StatusFound, w.Code)
	state := findCookie(w, stateCookie)
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)
	assert.Contains(t, w.Header().Get("Location"), "state="+state.Value)
}

func TestCallbackIssuesSessionCookie(t *testing.T) {
	a := &fakeAuth{token: "jwt-token"}
	req := httptest.NewRequest(http.MethodGet, "/callback?state=abc&code=the-code", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "abc"})
	w := httptest.NewRecorder()

	authEngine(a).ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://app.test/dashboard", w.Header().Get("Location"))
	assert.Equal(t, "the-code", a.gotCode)
	session := findCookie(w, "session")
	require.NotNil(t, session)
	assert.Equal(t, "jwt-token", session.Value)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, session.SameSite)
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	a := &fakeAuth{token: "jwt-token"}
	req := httptest.NewRequest(http.MethodGet, "/callback?state=forged&code=c", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "abc"})
	w := httptest.NewRecorder()

	authEngine(a).ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "http://app.test/?auth_error="))
	assert.Empty(t, a.gotCode)
}

func TestCallbackExchangeFailure(t *testing.T) {
	a := &fakeAuth{err: errors.New("exchange failed")}
	req := httptest.NewRequest(http.MethodGet, "/callback?state=abc&code=c", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "abc"})
	w := httptest.NewRecorder()

	authEngine(a).ServeHTTP(w, req)

	assert.Contains(t, w.Header().Get("Location"), "auth_error=login_failed")
	assert.Nil(t, findCookie(w, "session"))
}

func TestLogoutClearsCookie(t *testing.T) {
	a := &fakeAuth{}
	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "jwt-token"})
	w := httptest.NewRecorder()

	authEngine(a).ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "jwt-token", a.loggedOut)
	session := findCookie(w, "session")
	require.NotNil(t, session)
	assert.Equal(t, "", session.Value)
	assert.Less(t, session.MaxAge, 0)
}
