// Package sse implements a Server-Sent Events broker for real-time updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types published by the service.
const (
	TypeMastersUpdated = "masters.updated"
	TypeItemCreated    = "item.created"
	TypeSeedImported   = "seed.imported"
	TypeSeedDeleted    = "seed.deleted"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients, masters throttle timestamp, pending masters event). Public methods
// communicate with this loop through channels, so no mutexes are required.
type Broker struct {
	mastersMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	mastersCh     chan any
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. masters.updated events are sent at most
// once per throttle interval; the latest one inside a window is sent when the
// window ends.
func NewBroker(mastersThrottle time.Duration) *Broker {
	if mastersThrottle <= 0 {
		mastersThrottle = time.Second
	}

	b := &Broker{
		mastersMin:    mastersThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		mastersCh:     make(chan any, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// Format renders an event in the text/event-stream wire format.
func Format(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event.Type, payload), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastMasters time.Time
	var pending *Event
	var flushC <-chan time.Time

	broadcast := func(event Event) {
		raw, err := Format(event)
		if err != nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case data := <-b.mastersCh:
			ev := Event{Type: TypeMastersUpdated, Data: data}
			elapsed := time.Since(lastMasters)
			if elapsed >= b.mastersMin {
				lastMasters = time.Now()
				broadcast(ev)
				continue
			}
			pending = &ev
			if flushC == nil {
				flushC = time.After(b.mastersMin - elapsed)
			}

		case <-flushC:
			flushC = nil
			if pending != nil {
				lastMasters = time.Now()
				broadcast(*pending)
				pending = nil
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishMastersUpdated publishes a throttled masters.updated event carrying data.
func (b *Broker) PublishMastersUpdated(data any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.mastersCh <- data:
	case <-b.stopped:
	}
}

// PublishItemCreated publishes an item.created event.
func (b *Broker) PublishItemCreated(itemID string) {
	b.Publish(Event{Type: TypeItemCreated, Data: map[string]string{"itemId": itemID}})
}

// PublishSeedEvent publishes a seed file change reported by the watcher.
// kind is "imported" or "deleted"; other kinds are ignored.
func (b *Broker) PublishSeedEvent(kind, key string) {
	switch kind {
	case "imported":
		b.Publish(Event{Type: TypeSeedImported, Data: map[string]string{"key": key}})
	case "deleted":
		b.Publish(Event{Type: TypeSeedDeleted, Data: map[string]string{"key": key}})
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	PrepareStream(w)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

// PrepareStream writes the event-stream response headers.
func PrepareStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}
