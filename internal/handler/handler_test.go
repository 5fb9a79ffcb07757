package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/devaloi/courier/internal/client"
	"github.com/devaloi/courier/internal/conversation"
	"github.com/devaloi/courier/internal/delivery"
	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/hub"
	"github.com/devaloi/courier/internal/identity"
	"github.com/devaloi/courier/internal/middleware"
	"github.com/devaloi/courier/internal/store"
)

type stack struct {
	server   *httptest.Server
	store    *store.SQLStore
	users    *identity.SQLDirectory
	sessions *identity.Issuer
	hub      *hub.Hub
}

func newStack(t *testing.T) *stack {
	t.Helper()
	log := zap.NewNop()

	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	users, err := identity.NewSQLDirectory(s.DB(), s.Dialect(), identity.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	sessions := identity.NewIssuer("test-secret", "courier", time.Hour)

	h := hub.New(100, hub.WithLogger(log))
	go h.Run()
	t.Cleanup(h.Stop)

	api := New(Deps{
		Hub:           h,
		Conversations: conversation.NewService(s, users, log),
		Accounts:      users,
		Sessions:      sessions,
		Events:        client.NewMux(h, delivery.NewRouter(s, h, log)),
		Log:           log,
		EventTimeout:  time.Second,
	})
	server := httptest.NewServer(api.Routes())
	t.Cleanup(server.Close)

	return &stack{server: server, store: s, users: users, sessions: sessions, hub: h}
}

// user registers a user directly and returns it with a session token.
func (s *stack) user(t *testing.T, name string) (domain.User, string) {
	t.Helper()
	u, err := s.users.Register(context.Background(), name, strings.ToLower(name)+"@example.com", "password123")
	require.NoError(t, err)
	token, _, err := s.sessions.Issue(u)
	require.NoError(t, err)
	return u, token
}

func (s *stack) send(t *testing.T, from, to domain.User, text string) {
	t.Helper()
	_, err := s.store.Save(context.Background(), domain.Message{SenderID: from.ID, ReceiverID: to.ID, Content: text})
	require.NoError(t, err)
}

func (s *stack) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	c := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := c.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	resp := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["rooms"])
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	resp := s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	resp := s.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	u := decode[domain.User](t, resp)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Alice", u.Name)

	resp = s.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Alice 2", "email": "alice@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": "alice@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[loginResponse](t, resp)
	assert.NotEmpty(t, login.Token)
	assert.True(t, login.ExpiresAt.After(time.Now()))

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookie {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.Equal(t, login.Token, session.Value)
	assert.True(t, session.HttpOnly)

	id, err := s.sessions.Verify(login.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id.UserID)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	for _, body := range []map[string]string{
		{"name": "", "email": "a@example.com", "password": "password123"},
		{"name": "A", "email": "not-an-email", "password": "password123"},
		{"name": "A", "email": "a@example.com", "password": "short"},
	} {
		resp := s.do(t, http.MethodPost, "/api/register", "", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	t.Parallel()
	s := newStack(t)
	s.user(t, "Bob")

	resp := s.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": "bob@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, resp.Cookies())
}

func TestUnauthenticatedRequests(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	for _, path := range []string{"/api/conversations", "/api/conversations/x", "/api/presence/x", "/ws"} {
		resp := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	resp := s.do(t, http.MethodGet, "/api/conversations", "forged.token.value", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConversationListAndThread(t *testing.T) {
	t.Parallel()
	s := newStack(t)
	alice, aliceToken := s.user(t, "Alice")
	bob, bobToken := s.user(t, "Bob")
	_, carolToken := s.user(t, "Carol")

	s.send(t, alice, bob, "hello")
	s.send(t, bob, alice, "hi")

	resp := s.do(t, http.MethodGet, "/api/conversations", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]domain.Conversation](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, bob, list[0].User)
	assert.NotEmpty(t, list[0].Date)

	resp = s.do(t, http.MethodGet, "/api/conversations", bobToken, nil)
	list = decode[[]domain.Conversation](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, alice.ID, list[0].User.ID)

	resp = s.do(t, http.MethodGet, "/api/conversations", carolToken, nil)
	assert.Empty(t, decode[[]domain.Conversation](t, resp))

	resp = s.do(t, http.MethodGet, "/api/conversations/"+bob.ID, aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var thread struct {
		User     domain.User `json:"user"`
		Messages []struct {
			ID       int64  `json:"id"`
			SenderID string `json:"sender_id"`
			Content  string `json:"content"`
			Date     string `json:"date"`
		} `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&thread))
	assert.Equal(t, "Bob", thread.User.Name)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "hello", thread.Messages[0].Content)
	assert.Equal(t, alice.ID, thread.Messages[0].SenderID)
	assert.Equal(t, "hi", thread.Messages[1].Content)
	assert.NotEmpty(t, thread.Messages[1].Date)

	resp = s.do(t, http.MethodGet, "/api/conversations/unknown-user", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteThread(t *testing.T) {
	t.Parallel()
	s := newStack(t)
	alice, aliceToken := s.user(t, "Alice")
	bob, bobToken := s.user(t, "Bob")

	s.send(t, alice, bob, "hello")
	s.send(t, bob, alice, "hi")

	resp := s.do(t, http.MethodDelete, "/api/conversations/"+bob.ID, aliceToken, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/conversations", bobToken, nil)
	assert.Empty(t, decode[[]domain.Conversation](t, resp))

	resp = s.do(t, http.MethodDelete, "/api/conversations/nobody", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteThreadFormRedirects(t *testing.T) {
	t.Parallel()
	s := newStack(t)
	alice, aliceToken := s.user(t, "Alice")
	bob, _ := s.user(t, "Bob")
	s.send(t, alice, bob, "hello")

	resp := s.do(t, http.MethodPost, "/api/conversations/"+bob.ID+"/delete", aliceToken, nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/api/conversations", resp.Header.Get("Location"))

	thread, err := s.store.Thread(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, thread)
}

func TestWebSocketFlow(t *testing.T) {
	t.Parallel()
	s := newStack(t)
	alice, aliceToken := s.user(t, "Alice")
	bob, bobToken := s.user(t, "Bob")

	dial := func(token string) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + token}})
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	a, b := dial(aliceToken), dial(bobToken)

	require.NoError(t, a.WriteJSON(domain.JoinEvent{Type: domain.EvtJoin, Room: alice.ID}))
	require.NoError(t, b.WriteJSON(domain.JoinEvent{Type: domain.EvtJoin, Room: bob.ID}))
	require.Eventually(t, func() bool {
		return s.hub.Presence(alice.ID).Online && s.hub.Presence(bob.ID).Online
	}, 2*time.Second, 10*time.Millisecond)

	resp := s.do(t, http.MethodGet, "/api/presence/"+bob.ID, aliceToken, nil)
	presence := decode[domain.Presence](t, resp)
	assert.True(t, presence.Online)
	assert.Equal(t, 1, presence.Connections)

	require.NoError(t, a.WriteJSON(domain.PrivateMessageEvent{
		Type: domain.EvtPrivateMessage, SenderID: alice.ID, ReceiverID: bob.ID, Content: "hello",
	}))

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev domain.ResponseEvent
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, domain.EvtResponse, ev.Type)
		assert.Equal(t, "hello", ev.Content)
		assert.Equal(t, alice.ID, ev.SenderID)
		assert.Equal(t, bob.ID, ev.ReceiverID)
	}

	thread, err := s.store.Thread(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Len(t, thread, 1)
}
