package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	var got []Event
	bus.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}, EventResultApplied)

	bus.Publish(EventResultApplied, map[string]any{"step_id": "A.worker"})
	bus.Publish(EventResultRejected, map[string]any{"step_id": "ignored"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0].Data["step_id"] != "A.worker" || got[0].Type != EventResultApplied {
		t.Errorf("unexpected event %+v", got[0])
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var count atomic.Int32
	unsub := bus.Subscribe(func(Event) { count.Add(1) }, EventInstructionIssued)
	bus.Publish(EventInstructionIssued, nil)
	waitFor(t, func() bool { return count.Load() == 1 })

	unsub()
	unsub()
	bus.Publish(EventInstructionIssued, nil)
	time.Sleep(20 * time.Millisecond)
	if count.Load() != 1 {
		t.Errorf("received after unsubscribe: %d", count.Load())
	}
}

func TestBus_PanicRecovery(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var count atomic.Int32
	bus.Subscribe(func(Event) {
		count.Add(1)
		panic("subscriber bug")
	}, EventResultApplied)
	bus.Publish(EventResultApplied, nil)
	bus.Publish(EventResultApplied, nil)
	waitFor(t, func() bool { return count.Load() == 2 })
}

func TestBus_NonBlockingWhenFull(t *testing.T) {
	bus := NewBus(1)
	block := make(chan struct{})
	bus.Subscribe(func(Event) { <-block }, EventResultApplied)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bus.Publish(EventResultApplied, nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(block)
	bus.Close()
	if bus.Dropped() == 0 {
		t.Error("expected dropped deliveries to be counted")
	}
}

func TestBus_MultipleTypes(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var count atomic.Int32
	bus.Subscribe(func(Event) { count.Add(1) }, EventResultApplied, EventResultRejected)
	bus.Publish(EventResultApplied, nil)
	bus.Publish(EventResultRejected, nil)
	bus.Publish(EventInstructionIssued, nil)
	waitFor(t, func() bool { return count.Load() == 2 })
	time.Sleep(20 * time.Millisecond)
	if count.Load() != 2 {
		t.Errorf("count = %d, want 2", count.Load())
	}
}
