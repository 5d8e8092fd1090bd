// Package ws streams simulation progress to dashboard clients as Server-Sent Events.
//
// Every frame names its event in the SSE "event:" field and carries one JSON line of
// data. Step frames also set "id:" to the step index, so a client can tell where it
// resumed.
package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/GoCodeAlone/bookstore/scheduler"
)

// Event names.
const (
	EventConnected = "connected"
	EventStep      = "step"  // data is a scheduler.Snapshot
	EventState     = "state" // data is a StateChange
)

// StateChange reports a lifecycle transition of the run.
type StateChange struct {
	State scheduler.State `json:"state"`
	Step  int             `json:"step"`
}

type frame struct {
	id    string
	event string
	data  []byte
}

const clientBuffer = 64

// Hub fans frames out to connected clients. It keeps the latest step frame and
// replays it to every client that connects, so a dashboard opened mid-run renders
// the current store at once.
type Hub struct {
	mu      sync.Mutex
	clients map[chan frame]struct{}
	latest  *frame
	logger  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a Hub ready to accept connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[chan frame]struct{}),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close ends every open stream.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Step publishes snap and makes it the frame replayed to new clients.
func (h *Hub) Step(snap scheduler.Snapshot) {
	f, ok := h.encode(EventStep, strconv.Itoa(snap.Step), snap)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &f
	h.sendLocked(f)
}

// State publishes a lifecycle transition.
func (h *Hub) State(change StateChange) {
	f, ok := h.encode(EventState, "", change)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendLocked(f)
}

func (h *Hub) encode(event, id string, v any) (frame, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("hub encode", slog.String("event", event), slog.Any("err", err))
		return frame{}, false
	}
	return frame{id: id, event: event, data: data}, true
}

func (h *Hub) sendLocked(f frame) {
	for ch := range h.clients {
		select {
		case ch <- f:
		default:
			h.logger.Debug("hub dropped frame for slow client", slog.String("event", f.event))
		}
	}
}

// subscribe registers a client queue primed with the latest step frame. Priming
// under the same lock as Step means the client sees each step at most once.
func (h *Hub) subscribe() chan frame {
	ch := make(chan frame, clientBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest != nil {
		ch <- *h.latest
	}
	h.clients[ch] = struct{}{}
	return ch
}

func (h *Hub) unsubscribe(ch chan frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, ch)
}

// ServeSSE handles an SSE connection request.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	write(w, frame{event: EventConnected, data: []byte("{}")})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case f := <-ch:
			write(w, f)
			flusher.Flush()
		}
	}
}

func write(w http.ResponseWriter, f frame) {
	if f.id != "" {
		fmt.Fprintf(w, "id: %s\n", f.id) //nolint:errcheck
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.event, f.data) //nolint:errcheck
}
