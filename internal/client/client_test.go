package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devaloi/courier/internal/delivery"
	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/hub"
	"github.com/devaloi/courier/internal/identity"
	"github.com/devaloi/courier/internal/testutil"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type env struct {
	server *httptest.Server
	hub    *hub.Hub
	store  *testutil.MockStore
}

// setupTestServer binds ?user= as the identity; ?ttl= overrides its lifetime.
func setupTestServer(t *testing.T) *env {
	t.Helper()
	log := zap.NewNop()
	s := testutil.NewMockStore()
	h := hub.New(100, hub.WithLogger(log))
	go h.Run()
	t.Cleanup(h.Stop)

	mux := NewMux(h, delivery.NewRouter(s, h, log))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ttl := time.Hour
		if v := r.URL.Query().Get("ttl"); v != "" {
			ttl, _ = time.ParseDuration(v)
		}
		id := identity.Identity{UserID: r.URL.Query().Get("user"), ExpiresAt: time.Now().Add(ttl)}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c, err := New(conn, id, mux, h, log, time.Second)
		if err != nil {
			conn.Close()
			return
		}
		go c.WritePump()
		go c.ReadPump(context.WithoutCancel(r.Context()))
	}))
	t.Cleanup(server.Close)
	return &env{server: server, hub: h, store: s}
}

func dialWS(t *testing.T, url, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "?" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func write(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// join binds conn to room and waits until the hub reports it.
func (e *env) join(t *testing.T, conn *websocket.Conn, room string, want int) {
	t.Helper()
	write(t, conn, `{"type":"join","room":"`+room+`"}`)
	require.Eventually(t, func() bool {
		return e.hub.Presence(room).Connections == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientPrivateMessageReachesBothRooms(t *testing.T) {
	t.Parallel()
	e := setupTestServer(t)

	alice := dialWS(t, e.server.URL, "user=alice")
	bob := dialWS(t, e.server.URL, "user=bob")
	e.join(t, alice, "alice", 1)
	e.join(t, bob, "bob", 1)

	write(t, alice, `{"type":"private_message","sender_id":"alice","receiver_id":"bob","content":"hello"}`)

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readMessage(t, conn)
		assert.Equal(t, "response", msg["type"])
		assert.Equal(t, "alice", msg["sender_id"])
		assert.Equal(t, "bob", msg["receiver_id"])
		assert.Equal(t, "hello", msg["content"])
		assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}$`, msg["date"])
	}
	assert.Equal(t, 1, e.store.Len())
}

func TestClientEveryTabReceives(t *testing.T) {
	t.Parallel()
	e := setupTestServer(t)

	tab1 := dialWS(t, e.server.URL, "user=bob")
	tab2 := dialWS(t, e.server.URL, "user=bob")
	alice := dialWS(t, e.server.URL, "user=alice")
	e.join(t, tab1, "bob", 1)
	e.join(t, tab2, "bob", 2)

	write(t, alice, `{"type":"private_message","sender_id":"alice","receiver_id":"bob","content":"ping"}`)

	assert.Equal(t, "ping", readMessage(t, tab1)["content"])
	assert.Equal(t, "ping", readMessage(t, tab2)["content"])
}

func TestClientDisconnectLeavesRoom(t *testing.T) {
	t.Parallel()
	e := setupTestServer(t)

	conn := dialWS(t, e.server.URL, "user=alice")
	e.join(t, conn, "alice", 1)

	conn.Close()
	require.Eventually(t, func() bool {
		return !e.hub.Presence("alice").Online
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientRejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		query string
		frame string
		code  string
	}{
		{"invalid json", "user=alice", "not json", domain.CodeInvalidEvent},
		{"unknown type", "user=alice", `{"type":"typing"}`, domain.CodeInvalidEvent},
		{"join other room", "user=alice", `{"type":"join","room":"bob"}`, domain.CodeForbidden},
		{"join without room", "user=alice", `{"type":"join"}`, domain.CodeValidation},
		{"spoofed sender", "user=mallory", `{"type":"private_message","sender_id":"alice","receiver_id":"bob","content":"x"}`, domain.CodeForbidden},
		{"blank content", "user=alice", `{"type":"private_message","sender_id":"alice","receiver_id":"bob","content":"   "}`, domain.CodeValidation},
		{"expired identity", "user=alice&ttl=-1m", `{"type":"private_message","sender_id":"alice","receiver_id":"bob","content":"x"}`, domain.CodeUnauthorized},
		{"no identity", "", `{"type":"private_message","sender_id":"","receiver_id":"bob","content":"x"}`, domain.CodeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := setupTestServer(t)
			conn := dialWS(t, e.server.URL, tt.query)

			write(t, conn, tt.frame)
			msg := readMessage(t, conn)
			assert.Equal(t, "error", msg["type"])
			assert.Equal(t, tt.code, msg["code"])
			assert.NotEmpty(t, msg["message"])
			assert.Zero(t, e.store.Len())
		})
	}
}

func TestClientStoreFailure(t *testing.T) {
	t.Parallel()
	e := setupTestServer(t)
	e.store.Err = errors.New("database is locked")

	alice := dialWS(t, e.server.URL, "user=alice")
	e.join(t, alice, "alice", 1)

	write(t, alice, `{"type":"private_message","sender_id":"alice","receiver_id":"bob","content":"hello"}`)
	msg := readMessage(t, alice)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, domain.CodeStore, msg["code"])
	assert.NotContains(t, msg["message"], "locked")
}

func TestNewBindsIdentity(t *testing.T) {
	t.Parallel()
	id := identity.Identity{UserID: "alice", Name: "Alice", ExpiresAt: time.Now().Add(time.Hour)}

	c, err := New(nil, id, nil, nil, zap.NewNop(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, c.Identity())
	assert.True(t, strings.HasPrefix(c.ID(), "conn_"))

	other, err := New(nil, id, nil, nil, zap.NewNop(), time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, c.ID(), other.ID())
}

func TestRequireIdentity(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	called := false
	h := RequireIdentity(func() time.Time { return now })(func(context.Context, *Client, []byte) error {
		called = true
		return nil
	})

	err := h(context.Background(), nil, nil)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	expired := identity.WithIdentity(context.Background(), identity.Identity{UserID: "a", ExpiresAt: now})
	err = h(expired, nil, nil)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.False(t, called)

	valid := identity.WithIdentity(context.Background(), identity.Identity{UserID: "a", ExpiresAt: now.Add(time.Minute)})
	require.NoError(t, h(valid, nil, nil))
	assert.True(t, called)
}
