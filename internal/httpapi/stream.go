package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
)

// handleEvents serves the live channel over Server-Sent Events. The
// subscription is keyed by the authenticated principal, so directed events
// reach every open connection of that user and nobody else.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "internal", "streaming disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.stream.Subscribe(ctx, actor.ID)

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: "))
		_, _ = w.Write([]byte(event.Kind))
		_, _ = w.Write([]byte("\ndata: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
