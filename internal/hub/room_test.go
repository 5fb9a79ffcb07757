package hub

import (
	"testing"

	"github.com/devaloi/courier/internal/testutil"
)

func TestRoomJoinLeave(t *testing.T) {
	t.Parallel()
	r := NewRoom("alice")

	c1 := testutil.NewMockClient("tab-1")
	c2 := testutil.NewMockClient("tab-2")

	r.Join(c1)
	if r.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", r.ClientCount())
	}

	r.Join(c2)
	r.Join(c2)
	if r.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", r.ClientCount())
	}

	r.Leave(c1)
	if r.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", r.ClientCount())
	}
	if r.Name() != "alice" {
		t.Errorf("expected name alice, got %q", r.Name())
	}
}

func TestRoomBroadcast(t *testing.T) {
	t.Parallel()
	r := NewRoom("alice")

	c1 := testutil.NewMockClient("tab-1")
	c2 := testutil.NewMockClient("tab-2")
	r.Join(c1)
	r.Join(c2)

	r.Broadcast([]byte(`{"type":"response","content":"hello"}`))

	// Both clients should have received the broadcast exactly once.
	for _, c := range []*testutil.MockClient{c1, c2} {
		msgs := c.GetMessages()
		if len(msgs) != 1 {
			t.Errorf("client %s: expected 1 message, got %d", c.Name, len(msgs))
		}
	}
}

func TestRoomLeftClientGetsNothing(t *testing.T) {
	t.Parallel()
	r := NewRoom("alice")

	c := testutil.NewMockClient("tab")
	r.Join(c)
	r.Leave(c)
	r.Broadcast([]byte(`{}`))

	if n := len(c.GetMessages()); n != 0 {
		t.Errorf("expected no messages after leave, got %d", n)
	}
}
