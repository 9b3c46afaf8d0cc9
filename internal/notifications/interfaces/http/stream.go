package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/SergFTM/wealth-os-sub013/internal/auth"
	"github.com/SergFTM/wealth-os-sub013/internal/engine"
)

// streamClient is one connected SSE consumer. An empty userID means the
// client observes every user's events.
type streamClient struct {
	userID string
	ch     chan []byte
}

// SSEBroker fans out inbox events to connected clients, delivering each
// event only to the subscribers watching that notification's user.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[*streamClient]struct{})}
}

// Notify implements engine.InboxNotifier.
func (b *SSEBroker) Notify(_ context.Context, event engine.InboxEvent) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.mu.Lock()
	targets := make([]*streamClient, 0, len(b.clients))
	for client := range b.clients {
		if client.userID == "" || client.userID == event.Notification.UserID {
			targets = append(targets, client)
		}
	}
	b.mu.Unlock()
	for _, client := range targets {
		select {
		case client.ch <- payload:
		default:
		}
	}
}

// Subscribe registers a client watching one user's events, or every
// user's events when userID is empty.
func (b *SSEBroker) Subscribe(userID string) *streamClient {
	if b == nil {
		return nil
	}
	client := &streamClient{userID: userID, ch: make(chan []byte, 16)}
	b.mu.Lock()
	b.clients[client] = struct{}{}
	b.mu.Unlock()
	return client
}

// Unsubscribe removes a client.
func (b *SSEBroker) Unsubscribe(client *streamClient) {
	if b == nil || client == nil {
		return
	}
	b.mu.Lock()
	delete(b.clients, client)
	b.mu.Unlock()
	close(client.ch)
}

// StreamHandler serves the SSE notification stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/notifications/stream. Viewers receive
// only their own events; operators and admins may watch another user
// via the user_id parameter or the whole stream by omitting it.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	userID := r.URL.Query().Get("user_id")
	identity, _ := auth.IdentityFromContext(r.Context())
	if !identity.Role.CanObserveAll() {
		if userID != "" && userID != identity.Subject {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		userID = identity.Subject
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := h.broker.Subscribe(userID)
	if client == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(client)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case payload, ok := <-client.ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: notification\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-notify:
			return
		}
	}
}
