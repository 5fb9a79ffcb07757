package domain

import (
	"encoding/json"
	"time"
)

// Event types carried in the "type" field of every frame.
const (
	EvtJoin           = "join"
	EvtPrivateMessage = "private_message"
	EvtResponse       = "response"
	EvtError          = "error"
)

// MaxContentLength is the largest message body accepted, in bytes.
const MaxContentLength = 4000

// DateLayout renders timestamps as "YYYY-MM-DD HH:MM".
const DateLayout = "2006-01-02 15:04"

// Message is a persisted private message between two users.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	SentAt     time.Time `json:"sent_at"`
}

// Date returns the display form of SentAt in UTC.
func (m Message) Date() string {
	return FormatDate(m.SentAt)
}

// Involves reports whether the message belongs to the thread between a and b.
func (m Message) Involves(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Envelope is the minimal shape of an incoming frame, used to route it.
type Envelope struct {
	Type string `json:"type"`
}

// JoinEvent binds the connection to a room.
type JoinEvent struct {
	Type string `json:"type"`
	Room string `json:"room" validate:"required"`
}

// PrivateMessageEvent asks the server to persist and deliver a message.
type PrivateMessageEvent struct {
	Type       string `json:"type"`
	SenderID   string `json:"sender_id" validate:"required"`
	ReceiverID string `json:"receiver_id" validate:"required,nefield=SenderID"`
	Content    string `json:"content" validate:"required"`
}

// ResponseEvent is emitted to both participants once a message is stored.
type ResponseEvent struct {
	Type       string `json:"type"`
	ID         int64  `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	Date       string `json:"date"`
}

// ErrorEvent acknowledges a rejected event to the originating connection.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewResponse builds the response event for a stored message.
func NewResponse(m Message) ResponseEvent {
	return ResponseEvent{
		Type:       EvtResponse,
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Date:       m.Date(),
	}
}

// FormatDate renders t as "YYYY-MM-DD HH:MM" in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Encode serializes a value to JSON bytes.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeEnvelope reads only the event type of a frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}
