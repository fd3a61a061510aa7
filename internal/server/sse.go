package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/joshp123/agrobot/internal/mirror"
)

const sseKeepalive = 30 * time.Second

// events streams a "view" event for the current snapshot and for every
// change after it. Slow clients only ever see the newest pending view.
func (h *robotAPI) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	pending := make(chan mirror.View, 1)
	push := func(view mirror.View) {
		for {
			select {
			case pending <- view:
				return
			default:
			}
			select {
			case <-pending:
			default:
			}
		}
	}
	cancel := h.ctrl.Subscribe(push)
	defer cancel()
	push(h.ctrl.View())

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case view := <-pending:
			data, err := json.Marshal(view.Snapshot(h.now()))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: view\ndata: %s\n\n", data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
