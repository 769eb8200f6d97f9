package event

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is an engine lifecycle notification (run.*, node.*).
type Event struct {
	Type      string         `json:"type"`
	RunID     string         `json:"run_id"`
	NodeID    string         `json:"node_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Subscriber is a function that receives events
type Subscriber func(event *Event)

// Bus is an in-memory event bus for publishing events to subscribers
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber // channel → subscribers
	logger      *zap.SugaredLogger
}

// NewBus creates a new event bus
func NewBus(logger *zap.SugaredLogger) *Bus {
	return &Bus{
		subscribers: make(map[string][]Subscriber),
		logger:      logger,
	}
}

// Subscribe registers a subscriber for a channel.
// channel can be "*" for all events, or "run:{id}" for a specific run.
func (b *Bus) Subscribe(channel string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], sub)
}

// Unsubscribe removes all subscribers for a channel
func (b *Bus) Unsubscribe(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, channel)
}

// Publish sends an event to all matching subscribers
func (b *Bus) Publish(evt *Event) {
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	b.logger.Debugw("Publishing event",
		"type", evt.Type,
		"run_id", evt.RunID,
		"node_id", evt.NodeID,
	)

	// Notify wildcard subscribers
	for _, sub := range b.subscribers["*"] {
		sub(evt)
	}

	// Notify run-specific subscribers
	if evt.RunID != "" {
		channel := "run:" + evt.RunID
		for _, sub := range b.subscribers[channel] {
			sub(evt)
		}
	}
}
