package events

import (
	"sync"
	"sync/atomic"
	"time"
)

type EventType string

const (
	// EventResultApplied is published when an inbox result was accepted.
	EventResultApplied EventType = "result_applied"
	// EventResultRejected is published when an inbox result failed to apply.
	EventResultRejected EventType = "result_rejected"
	// EventInstructionIssued carries the instruction that follows a result.
	EventInstructionIssued EventType = "instruction_issued"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]any
}

type Subscriber func(Event)

type subscription struct {
	types map[EventType]bool
	ch    chan Event
}

// Bus fans events out to subscribers. Each subscription owns a buffered
// queue drained by its own goroutine; a full queue drops the event for that
// subscriber only and counts it in Dropped.
type Bus struct {
	mu         sync.RWMutex
	subs       []*subscription
	bufferSize int
	wg         sync.WaitGroup
	dropped    atomic.Int64
	now        func() time.Time
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		bufferSize: bufferSize,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers fn for the listed event types and returns an
// unsubscribe func. Panics in fn are recovered.
func (b *Bus) Subscribe(fn Subscriber, types ...EventType) func() {
	sub := &subscription{
		types: make(map[EventType]bool, len(types)),
		ch:    make(chan Event, b.bufferSize),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for event := range sub.ch {
			deliver(fn, event)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s == sub {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					close(sub.ch)
					return
				}
			}
		})
	}
}

func deliver(fn Subscriber, event Event) {
	defer func() { _ = recover() }()
	fn(event)
}

func (b *Bus) Publish(eventType EventType, data map[string]any) {
	event := Event{Type: eventType, Timestamp: b.now(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.types[eventType] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber's
// queue was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close ends every subscription and waits for queued deliveries.
func (b *Bus) Close() {
	b.mu.Lock()
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
	b.mu.Unlock()
	b.wg.Wait()
}
