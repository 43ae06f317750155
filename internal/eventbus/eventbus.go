// Package eventbus is the in-process publish/subscribe bus (C2). It is
// best-effort and non-blocking: a full subscriber channel drops its oldest
// queued event to make room rather than stalling the publisher, matching the teacher's
// internal/temporal/eventbus drop-oldest semantics.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ringmaster-dev/ringmaster/internal/logging"
)

// EventType names the closed set of event kinds Ringmaster emits.
type EventType string

const (
	EventBeadStatusChanged EventType = "bead.status_changed"
	EventBeadCreated       EventType = "bead.created"
	EventWorkerStatus      EventType = "worker.status"
	EventWorkerOutput      EventType = "worker.output"
	EventTaskRetry         EventType = "task.retry"
	EventLogCreated        EventType = "log.created"
)

// Event is one published message.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	ProjectID string
	Data      map[string]any
}

type subscriber struct {
	id      string
	ch      chan *Event
	filter  func(*Event) bool
}

// Bus is the in-process event bus. An optional Mirror receives every
// published event for forwarding to a durable transport (NATS JetStream);
// mirror failures are logged and never affect delivery.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	buffer      chan *Event
	log         *logging.Logger
	Mirror      func(*Event)

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Bus with the given internal buffer size (default 1000
// matches the teacher's cfg.EventBufferSize default).
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subscribers: make(map[string]*subscriber),
		buffer:      make(chan *Event, bufferSize),
		log:         logging.For("eventbus"),
		ctx:         ctx,
		cancel:      cancel,
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case evt := <-b.buffer:
			b.distribute(evt)
		}
	}
}

// Publish enqueues evt without blocking; if the internal buffer is full
// the event is dropped (spec: the bus never stalls a bead transition).
func (b *Bus) Publish(typ EventType, projectID string, data map[string]any) {
	evt := &Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now(),
		ProjectID: projectID,
		Data:      data,
	}
	select {
	case b.buffer <- evt:
	default:
		b.log.Warn("dropping event %s: buffer full", typ)
	}
	if b.Mirror != nil {
		go func() {
			defer func() { recover() }()
			b.Mirror(evt)
		}()
	}
}

// Subscribe returns a receive channel of buffered size (default 100) that
// only receives events passing filter (nil filter matches everything).
func (b *Bus) Subscribe(filter func(*Event) bool) (id string, ch <-chan *Event) {
	sub := &subscriber{
		id:     uuid.NewString(),
		ch:     make(chan *Event, 100),
		filter: filter,
	}
	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()
	return sub.id, sub.ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

func (b *Bus) distribute(evt *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Channel full: drop the oldest queued event to make room.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- evt:
			default:
				b.log.Warn("dropping event %s for subscriber %s: channel full", evt.Type, sub.id)
			}
		}
	}
}

// Close stops the distribution goroutine and closes all subscriber channels.
func (b *Bus) Close() {
	b.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
