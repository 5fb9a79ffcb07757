package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/devaloi/courier/internal/client"
	"github.com/devaloi/courier/internal/delivery"
	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/hub"
	"github.com/devaloi/courier/internal/identity"
)

// Accounts is the user directory as seen by login and registration.
type Accounts interface {
	Register(ctx context.Context, name, email, password string) (domain.User, error)
	Authenticate(ctx context.Context, email, password string) (domain.User, error)
}

// Sessions issues and verifies session tokens.
type Sessions interface {
	Issue(u domain.User) (string, time.Time, error)
	Verify(token string) (identity.Identity, error)
}

// Conversations is the conversation aggregator.
type Conversations interface {
	List(ctx context.Context, userID string) ([]domain.Conversation, error)
	Thread(ctx context.Context, userID, counterpartID string) (domain.User, []domain.Message, error)
	Delete(ctx context.Context, userID, counterpartID string) (int64, error)
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Hub           *hub.Hub
	Conversations Conversations
	Accounts      Accounts
	Sessions      Sessions
	Events        *client.Mux
	Log           *zap.Logger
	// EventTimeout bounds the processing of each WebSocket event.
	EventTimeout time.Duration
	// AllowedOrigin is "*" or the single origin allowed to call the API.
	AllowedOrigin string
}

// Handler serves the HTTP and WebSocket endpoints.
type Handler struct {
	Deps
	upgrader websocket.Upgrader
	validate *validator.Validate
}

// New creates a Handler.
func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.AllowedOrigin == "" {
		d.AllowedOrigin = "*"
	}
	h := &Handler{Deps: d, validate: delivery.NewValidator()}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.AllowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == h.AllowedOrigin
}
