package api

import (
	"encoding/json"
	"sync"
)

// Event is one message on the event stream (spec.md §6: "broadcasts
// job_update, log, and suggestion events").
type Event struct {
	Name string `json:"event"`
	Data string `json:"data"` // pre-marshaled JSON payload
}

const subscriberBuffer = 64

// Broadcaster fans out Events to every live subscriber. Ported from
// original_source/src/modules/notification_manager.py's singleton
// subscribe/broadcast pair, replacing its asyncio.Queue-per-subscriber
// list with Go channels: each subscriber owns a buffered channel, and an
// event is dropped for any subscriber whose buffer is full (the
// subscriber stays registered and never blocks the broadcaster)
// rather than back-pressuring every other event type per spec.md §6's
// "subscribers receive all future events; no replay" contract.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster builds an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe func the caller must invoke when done (typically on
// request-context cancellation).
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// broadcast marshals data as JSON and sends it under name to every
// subscriber, dropping it for any subscriber whose buffer is full.
func (b *Broadcaster) broadcast(name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	ev := Event{Name: name, Data: string(payload)}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// NotifyJobUpdate broadcasts a job_update event.
func (b *Broadcaster) NotifyJobUpdate(jobID, status string, progress int, message string) {
	b.broadcast("job_update", map[string]any{
		"job_id": jobID, "status": status, "progress": progress, "message": message,
	})
}

// NotifyLog broadcasts a log event.
func (b *Broadcaster) NotifyLog(level, message string) {
	b.broadcast("log", map[string]any{"level": level, "message": message})
}

// NotifySuggestion broadcasts a suggestion event, e.g. a proactive
// contradiction notice raised after ingest.
func (b *Broadcaster) NotifySuggestion(kind, file, explanation, suggestion string) {
	b.broadcast("suggestion", map[string]any{
		"type": kind, "file": file, "explanation": explanation, "suggestion": suggestion,
	})
}
