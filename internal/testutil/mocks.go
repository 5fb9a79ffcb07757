package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/devaloi/courier/internal/domain"
)

// MockClient implements hub.Client for testing.
type MockClient struct {
	Name     string
	messages [][]byte
	mu       sync.Mutex
}

// NewMockClient creates a new MockClient with the given connection id.
func NewMockClient(name string) *MockClient {
	return &MockClient{Name: name}
}

// ID returns the mock client's name.
func (m *MockClient) ID() string { return m.Name }

// Send records a message sent to the mock client.
func (m *MockClient) Send(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.messages = append(m.messages, cp)
}

// GetMessages returns a copy of all messages received by the mock client.
func (m *MockClient) GetMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([][]byte, len(m.messages))
	copy(cp, m.messages)
	return cp
}

// Responses decodes every response event received so far.
func (m *MockClient) Responses() []domain.ResponseEvent {
	var out []domain.ResponseEvent
	for _, raw := range m.GetMessages() {
		var ev domain.ResponseEvent
		if err := json.Unmarshal(raw, &ev); err == nil && ev.Type == domain.EvtResponse {
			out = append(out, ev)
		}
	}
	return out
}

// MockStore implements store.Store in memory for testing.
// Setting Err makes every call fail with it.
type MockStore struct {
	mu       sync.Mutex
	messages []domain.Message
	nextID   int64
	Err      error
	Now      func() time.Time
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{Now: time.Now}
}

// Save persists a message in the mock store.
func (s *MockStore) Save(_ context.Context, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return domain.Message{}, s.Err
	}
	s.nextID++
	msg.ID = s.nextID
	msg.SentAt = s.Now().UTC()
	s.messages = append(s.messages, msg)
	return msg, nil
}

// Thread returns stored messages between a and b.
func (s *MockStore) Thread(_ context.Context, a, b string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []domain.Message{}
	for _, m := range s.messages {
		if m.Involves(a, b) {
			out = append(out, m)
		}
	}
	return out, nil
}

// DeleteThread removes stored messages between a and b.
func (s *MockStore) DeleteThread(_ context.Context, a, b string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	kept := s.messages[:0]
	var n int64
	for _, m := range s.messages {
		if m.Involves(a, b) {
			n++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return n, nil
}

// Counterparts aggregates the latest SentAt per counterpart of userID.
func (s *MockStore) Counterparts(_ context.Context, userID string) ([]domain.Counterpart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	last := map[string]time.Time{}
	for _, m := range s.messages {
		var other string
		switch userID {
		case m.SenderID:
			other = m.ReceiverID
		case m.ReceiverID:
			other = m.SenderID
		default:
			continue
		}
		if other == userID {
			continue
		}
		if m.SentAt.After(last[other]) {
			last[other] = m.SentAt
		}
	}
	out := make([]domain.Counterpart, 0, len(last))
	for id, at := range last {
		out = append(out, domain.Counterpart{UserID: id, LastAt: at})
	}
	return out, nil
}

// Len returns the number of stored messages.
func (s *MockStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Close is a no-op for the mock store.
func (s *MockStore) Close() error { return nil }
