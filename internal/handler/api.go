package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/identity"
	"github.com/devaloi/courier/internal/transport"
)

// messageView adds the display date to a stored message.
type messageView struct {
	domain.Message
	Date string `json:"date"`
}

type threadResponse struct {
	User     domain.User   `json:"user"`
	Messages []messageView `json:"messages"`
}

// Health reports liveness and the number of live rooms.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	transport.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rooms":  h.Hub.RoomCount(),
	})
}

// ListConversations GET /api/conversations
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	me := caller(r)
	convs, err := h.Conversations.List(r.Context(), me.UserID)
	if err != nil {
		transport.DomainError(w, h.Log, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, convs)
}

// Thread GET /api/conversations/{counterpartID}
func (h *Handler) Thread(w http.ResponseWriter, r *http.Request) {
	me := caller(r)
	other, msgs, err := h.Conversations.Thread(r.Context(), me.UserID, chi.URLParam(r, "counterpartID"))
	if err != nil {
		transport.DomainError(w, h.Log, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, threadResponse{
		User: other,
		Messages: lo.Map(msgs, func(m domain.Message, _ int) messageView {
			return messageView{Message: m, Date: m.Date()}
		}),
	})
}

// DeleteThread DELETE /api/conversations/{counterpartID}
func (h *Handler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	me := caller(r)
	if _, err := h.Conversations.Delete(r.Context(), me.UserID, chi.URLParam(r, "counterpartID")); err != nil {
		transport.DomainError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteThreadForm POST /api/conversations/{counterpartID}/delete
// redirects back to the conversation list, for plain HTML forms.
func (h *Handler) DeleteThreadForm(w http.ResponseWriter, r *http.Request) {
	me := caller(r)
	if _, err := h.Conversations.Delete(r.Context(), me.UserID, chi.URLParam(r, "counterpartID")); err != nil {
		transport.DomainError(w, h.Log, err)
		return
	}
	http.Redirect(w, r, "/api/conversations", http.StatusSeeOther)
}

// Presence GET /api/presence/{userID}
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	transport.WriteJSON(w, http.StatusOK, h.Hub.Presence(chi.URLParam(r, "userID")))
}

// caller returns the identity placed by the auth middleware.
// Routes using it sit behind RequireIdentity.
func caller(r *http.Request) identity.Identity {
	id, _ := identity.FromContext(r.Context())
	return id
}

func expiresIn(t time.Time) int {
	return int(time.Until(t).Seconds())
}
