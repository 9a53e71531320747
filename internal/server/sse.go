package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/agentcore/internal/eventstore"
)

const heartbeatInterval = 30 * time.Second

// sseEvent mirrors an eventstore.Envelope in wire form.
type sseEvent struct {
	SeqNo     uint64          `json:"seqNo"`
	Timestamp int64           `json:"timestamp"`
	Kind      eventstore.Kind `json:"kind"`
	Data      any             `json:"data"`
}

// sessionEvents streams one session's events as Server-Sent Events, from
// the moment of connection onward; a client that needs history replays it
// first via LoadSession and then connects here for what comes next.
func (s *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan eventstore.Envelope, 16)
	unsub := s.store.Bus().Subscribe(sessionID, func(env eventstore.Envelope) {
		select {
		case events <- env:
		default:
			s.log.Warn().Str("sessionID", sessionID).Msg("sse event dropped: channel full")
		}
	})
	defer unsub()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case env := <-events:
			data, err := json.Marshal(sseEvent{SeqNo: env.SeqNo, Timestamp: env.Timestamp, Kind: env.Kind, Data: env.Data})
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
