package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/freestylevancouver/volunteer-portal/pkg/core/services"
)

const keepAliveInterval = 25 * time.Second

// streamRoom relays a room's new messages as server-sent events until the
// client disconnects. Each event carries the message id so a client can drop
// the copy of its own send.
func (s *Server) streamRoom(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, fmt.Errorf("failed to stream: response writer cannot flush"))
		return
	}

	roomID := chi.URLParam(r, "roomID")
	sub, err := services.WatchRoom(r.Context(), s.db, s.feed, s.logger, caller(r), roomID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("Failed to encode message", zap.String("message_id", msg.ID), zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", msg.ID, payload)
			flusher.Flush()
		}
	}
}
