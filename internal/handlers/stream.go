package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oghouse/api/internal/notifications"
	"github.com/oghouse/api/internal/platform/auth"
	"github.com/oghouse/api/internal/platform/httpx"
)

const streamHeartbeatInterval = 25 * time.Second

// StreamHandlers serves the server-sent events stream backed by the in-process
// notification bus. Operators join the shared operator channel; everyone else
// is pinned to their own customer channel.
type StreamHandlers struct {
	authn     *auth.Authenticator
	bus       *notifications.Bus
	heartbeat time.Duration
}

// StreamOption customises the stream handlers.
type StreamOption func(*StreamHandlers)

// WithStreamHeartbeat overrides the keep-alive interval, primarily for tests.
func WithStreamHeartbeat(interval time.Duration) StreamOption {
	return func(h *StreamHandlers) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// NewStreamHandlers constructs a new StreamHandlers instance.
func NewStreamHandlers(authn *auth.Authenticator, bus *notifications.Bus, opts ...StreamOption) *StreamHandlers {
	h := &StreamHandlers{
		authn:     authn,
		bus:       bus,
		heartbeat: streamHeartbeatInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /events endpoint.
func (h *StreamHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		// EventSource cannot set headers, so the authenticator also accepts
		// the token as a query parameter on this route.
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.stream)
}

func (h *StreamHandlers) stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if h.bus == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stream_unavailable", "notification stream unavailable", http.StatusServiceUnavailable))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("stream_unsupported", "streaming not supported", http.StatusInternalServerError))
		return
	}

	channel := notifications.CustomerChannel(identity.UID)
	if identity.IsOperator() {
		channel = notifications.OperatorChannel
	}

	sub := h.bus.Subscribe(channel)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, open := <-sub.C:
			if !open {
				return
			}
			if !writeSSEEvent(w, event) {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event notifications.Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return true
	}
	if event.Type != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
			return false
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return false
	}
	return true
}
