package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/devaloi/courier/internal/client"
)

// ServeWS handles WebSocket upgrade requests. The identity resolved from the
// session token is bound to the connection for its whole lifetime.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	me := caller(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("ws upgrade error", zap.Error(err))
		return
	}

	c, err := client.New(conn, me, h.Events, h.Hub, h.Log, h.EventTimeout)
	if err != nil {
		h.Log.Error("ws client setup failed", zap.Error(err))
		conn.Close()
		return
	}
	go c.WritePump()
	go c.ReadPump(context.WithoutCancel(r.Context()))
}
