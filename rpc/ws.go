package rpc

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"tokend/core/types"
)

type eventPayload interface {
	Event() *types.Event
}

// handleEvents streams emitted ledger events to websocket subscribers as JSON.
// Slow consumers are disconnected rather than back-pressuring the node.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		http.Error(w, "event feed disabled", http.StatusNotFound)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub, cancel := s.broadcaster.Subscribe(64)
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub:
			if !ok {
				return
			}
			payload, ok := evt.(eventPayload)
			if !ok {
				continue
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, payload.Event())
			writeCancel()
			if err != nil {
				return
			}
		}
	}
}
