// Package delivery persists private messages and fans them out to both participants.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/identity"
	"github.com/devaloi/courier/internal/observability"
	"github.com/devaloi/courier/internal/store"
)

// Emitter broadcasts a payload to every connection bound to a room.
type Emitter interface {
	Emit(ctx context.Context, room string, data []byte)
}

// Router is the single path by which a private message is stored and delivered.
type Router struct {
	store    store.Store
	emitter  Emitter
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

// NewRouter creates a Router.
func NewRouter(s store.Store, e Emitter, log *zap.Logger) *Router {
	return &Router{
		store:    s,
		emitter:  e,
		validate: NewValidator(),
		log:      log,
		now:      time.Now,
	}
}

// NewValidator returns a validator that reports fields by their JSON name.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// SendMessage stores ev and emits one response to the sender's room and one to the receiver's.
// Nothing is emitted unless the message was stored.
func (r *Router) SendMessage(ctx context.Context, ev domain.PrivateMessageEvent) (domain.Message, error) {
	id, ok := identity.FromContext(ctx)
	if !ok || !id.Valid(r.now()) {
		return domain.Message{}, fmt.Errorf("%w: no valid identity", domain.ErrUnauthorized)
	}
	if ev.SenderID != id.UserID {
		return domain.Message{}, fmt.Errorf("%w: cannot send as %q", domain.ErrForbidden, ev.SenderID)
	}
	if err := r.check(ev); err != nil {
		return domain.Message{}, err
	}

	msg, err := r.store.Save(ctx, domain.Message{
		SenderID:   ev.SenderID,
		ReceiverID: ev.ReceiverID,
		Content:    ev.Content,
	})
	if err != nil {
		r.log.Error("persist message failed",
			zap.String("sender_id", ev.SenderID),
			zap.String("receiver_id", ev.ReceiverID),
			zap.Error(err),
		)
		return domain.Message{}, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	observability.MessagesPersisted.Inc()

	data, err := domain.Encode(domain.NewResponse(msg))
	if err != nil {
		return msg, fmt.Errorf("encode response: %w", err)
	}
	r.emitter.Emit(ctx, msg.SenderID, data)
	r.emitter.Emit(ctx, msg.ReceiverID, data)

	r.log.Debug("message delivered",
		zap.Int64("id", msg.ID),
		zap.String("sender_id", msg.SenderID),
		zap.String("receiver_id", msg.ReceiverID),
	)
	return msg, nil
}

func (r *Router) check(ev domain.PrivateMessageEvent) error {
	if err := r.validate.Struct(ev); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
				return fe.Field() + " failed " + fe.Tag()
			})
			return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if strings.TrimSpace(ev.Content) == "" {
		return fmt.Errorf("%w: content is blank", domain.ErrValidation)
	}
	if len(ev.Content) > domain.MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d bytes", domain.ErrValidation, domain.MaxContentLength)
	}
	return nil
}
