package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/devaloi/courier/internal/delivery"
	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/hub"
	"github.com/devaloi/courier/internal/identity"
)

// HandlerFunc processes one decoded-by-type event from a connection.
type HandlerFunc func(ctx context.Context, c *Client, raw []byte) error

// Middleware wraps a HandlerFunc.
type Middleware func(HandlerFunc) HandlerFunc

// RequireIdentity rejects events whose context carries no identity or an expired one.
func RequireIdentity(now func() time.Time) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, c *Client, raw []byte) error {
			id, ok := identity.FromContext(ctx)
			if !ok {
				return fmt.Errorf("%w: not authenticated", domain.ErrUnauthorized)
			}
			if !id.Valid(now()) {
				return fmt.Errorf("%w: session expired", domain.ErrUnauthorized)
			}
			return next(ctx, c, raw)
		}
	}
}

// Joiner binds a connection to a room.
type Joiner interface {
	Join(c hub.Client, room string) error
}

// Sender stores and delivers a private message.
type Sender interface {
	SendMessage(ctx context.Context, ev domain.PrivateMessageEvent) (domain.Message, error)
}

// Mux routes inbound frames to handlers by their "type" field.
type Mux struct {
	handlers map[string]HandlerFunc
	validate *validator.Validate
}

// NewMux registers the join and private_message handlers, each behind RequireIdentity.
func NewMux(rooms Joiner, sender Sender) *Mux {
	m := &Mux{
		handlers: make(map[string]HandlerFunc),
		validate: delivery.NewValidator(),
	}
	guard := RequireIdentity(time.Now)
	m.Handle(domain.EvtJoin, guard(m.join(rooms)))
	m.Handle(domain.EvtPrivateMessage, guard(privateMessage(sender)))
	return m
}

// Handle registers h for events of type evt.
func (m *Mux) Handle(evt string, h HandlerFunc) {
	m.handlers[evt] = h
}

// Dispatch runs the handler registered for the frame's type and returns that type.
func (m *Mux) Dispatch(ctx context.Context, c *Client, data []byte) (string, error) {
	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		return "malformed", fmt.Errorf("%w: invalid JSON", domain.ErrInvalidEvent)
	}
	h, ok := m.handlers[env.Type]
	if !ok {
		return "unknown", fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidEvent, env.Type)
	}
	return env.Type, h(ctx, c, data)
}

func (m *Mux) join(rooms Joiner) HandlerFunc {
	return func(ctx context.Context, c *Client, raw []byte) error {
		var ev domain.JoinEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidEvent, err)
		}
		if err := m.validate.Struct(ev); err != nil {
			return fmt.Errorf("%w: room required", domain.ErrValidation)
		}
		id, _ := identity.FromContext(ctx)
		if ev.Room != id.UserID {
			return fmt.Errorf("%w: cannot join room %q", domain.ErrForbidden, ev.Room)
		}
		return rooms.Join(c, ev.Room)
	}
}

func privateMessage(sender Sender) HandlerFunc {
	return func(ctx context.Context, _ *Client, raw []byte) error {
		var ev domain.PrivateMessageEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidEvent, err)
		}
		_, err := sender.SendMessage(ctx, ev)
		return err
	}
}
