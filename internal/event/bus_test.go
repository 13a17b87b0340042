package event

import (
	"sync"
	"testing"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe("worker.launched", func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
	if called {
		t.Error("handler ran before any event was published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus()

	var received Event
	bus.Subscribe("worker.launched", func(e Event) {
		received = e
	})

	bus.Publish(NewWorkerLaunchedEvent("dev", "test-model", true))

	if received == nil {
		t.Fatal("handler did not receive the event")
	}
	if received.EventType() != "worker.launched" {
		t.Errorf("EventType() = %q, want %q", received.EventType(), "worker.launched")
	}
	launched, ok := received.(WorkerLaunchedEvent)
	if !ok {
		t.Fatalf("event delivered as %T, want WorkerLaunchedEvent", received)
	}
	if launched.WorkerID != "dev" || !launched.Lead {
		t.Errorf("event fields = %+v", launched)
	}
}

func TestBus_PublishMultipleHandlers(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe("nudge.sent", func(e Event) { calls++ })
	bus.Subscribe("nudge.sent", func(e Event) { calls++ })

	bus.Publish(NewNudgeSentEvent(1, 3))

	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
}

func TestBus_PublishNoMatchingHandlers(t *testing.T) {
	bus := NewBus()

	bus.Subscribe("run.victory", func(e Event) {
		t.Error("handler ran for a non-matching event type")
	})

	bus.Publish(NewNudgeSentEvent(1, 3))
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()

	var types []string
	bus.SubscribeAll(func(e Event) {
		types = append(types, e.EventType())
	})

	bus.Publish(NewRoundStartedEvent(1, 3))
	bus.Publish(NewMessagePostedEvent("dev", "starting on the parser"))
	bus.Publish(NewVictoryEvent(1))

	want := []string{"round.started", "message.posted", "run.victory"}
	if len(types) != len(want) {
		t.Fatalf("received %d events, want %d", len(types), len(want))
	}
	for i, w := range want {
		if types[i] != w {
			t.Errorf("event %d = %q, want %q", i, types[i], w)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe("nudge.sent", func(e Event) {
		called = true
	})

	if !bus.Unsubscribe(id) {
		t.Error("Unsubscribe should return true for a live subscription")
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after unsubscribe, want 0", bus.SubscriptionCount())
	}

	bus.Publish(NewNudgeSentEvent(1, 3))

	if called {
		t.Error("handler ran after unsubscribing")
	}
}

func TestBus_UnsubscribeNonExistent(t *testing.T) {
	bus := NewBus()

	if bus.Unsubscribe("sub-999") {
		t.Error("Unsubscribe should return false for an unknown ID")
	}
}

func TestBus_UnsubscribeOne(t *testing.T) {
	bus := NewBus()

	calls := make(map[string]int)
	id1 := bus.Subscribe("nudge.sent", func(e Event) {
		calls["first"]++
	})
	bus.Subscribe("nudge.sent", func(e Event) {
		calls["second"]++
	})

	bus.Unsubscribe(id1)
	bus.Publish(NewNudgeSentEvent(1, 3))

	if calls["first"] != 0 {
		t.Error("unsubscribed handler still ran")
	}
	if calls["second"] != 1 {
		t.Error("surviving handler did not run")
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()

	bus.Subscribe("worker.launched", func(e Event) {})
	bus.Subscribe("worker.stopped", func(e Event) {})
	bus.SubscribeAll(func(e Event) {})

	if bus.SubscriptionCount() != 3 {
		t.Errorf("SubscriptionCount() = %d before clear, want 3", bus.SubscriptionCount())
	}

	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after clear, want 0", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe("run.aborted", func(e Event) {
		calls++
		panic("handler panic")
	})
	bus.Subscribe("run.aborted", func(e Event) {
		calls++
	})

	bus.Publish(NewAbortEvent("human abort"))

	if calls != 2 {
		t.Errorf("handler calls = %d, want both handlers to run despite the panic", calls)
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	calls := 0
	bus.Subscribe("message.posted", func(e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			bus.Publish(NewMessagePostedEvent("dev", "tick"))
		})
	}
	wg.Wait()

	if calls != 100 {
		t.Errorf("handler calls = %d, want 100", calls)
	}
}

func TestBus_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			id := bus.Subscribe("worker.launched", func(e Event) {})
			bus.Unsubscribe(id)
		})
	}
	wg.Wait()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after concurrent add/remove, want 0", bus.SubscriptionCount())
	}
}

func TestBus_SpecificHandlersRunBeforeWildcards(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) {
		order = append(order, "wildcard")
	})
	bus.Subscribe("run.victory", func(e Event) {
		order = append(order, "specific")
	})

	bus.Publish(NewVictoryEvent(2))

	if len(order) != 2 {
		t.Fatalf("handler calls = %d, want 2", len(order))
	}
	if order[0] != "specific" || order[1] != "wildcard" {
		t.Errorf("call order = %v, want specific before wildcard", order)
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus()

	ids := make(map[string]bool)
	for range 100 {
		id := bus.Subscribe("worker.launched", func(e Event) {})
		if ids[id] {
			t.Errorf("duplicate subscription ID %s", id)
		}
		ids[id] = true
	}
}
