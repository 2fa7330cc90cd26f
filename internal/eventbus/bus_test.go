package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 10)
	bus.Subscribe(FamilyNewTransaction, received)

	bus.Publish(Event{
		Topic:     FamilyNewTransaction,
		Height:    100,
		Timestamp: time.Now(),
		Data:      map[string]string{"action": "supply"},
	})

	select {
	case evt := <-received:
		if evt.Topic != FamilyNewTransaction {
			t.Errorf("expected new_transaction, got %s", evt.Topic)
		}
		if evt.Height != 100 {
			t.Errorf("expected height 100, got %d", evt.Height)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch1 := make(chan Event, 10)
	ch2 := make(chan Event, 10)
	bus.Subscribe(FamilyNewTransaction, ch1)
	bus.Subscribe(FamilyNewTransaction, ch2)

	bus.Publish(Event{Topic: FamilyNewTransaction, Height: 1})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_TopicFiltering(t *testing.T) {
	bus := New()
	defer bus.Close()

	m1 := make(chan Event, 10)
	m2 := make(chan Event, 10)
	bus.Subscribe(MarketUpdated("1"), m1)
	bus.Subscribe(MarketUpdated("2"), m2)

	bus.Publish(Event{Topic: MarketUpdated("1"), Height: 1})

	select {
	case <-m1:
	case <-time.After(time.Second):
		t.Fatal("market 1 subscriber did not receive event")
	}

	select {
	case <-m2:
		t.Fatal("market 2 subscriber should NOT receive market 1 event")
	case <-time.After(50 * time.Millisecond):
		// good
	}
}

func TestBus_FamilyFanout(t *testing.T) {
	bus := New()
	defer bus.Close()

	all := make(chan Event, 10)
	one := make(chan Event, 10)
	bus.Subscribe(FamilyMarketUpdated, all)
	bus.Subscribe(MarketUpdated("3"), one)

	bus.Publish(Event{Topic: MarketUpdated("3"), Height: 7})

	for name, ch := range map[string]chan Event{"family": all, "keyed": one} {
		select {
		case evt := <-ch:
			if evt.Topic != MarketUpdated("3") {
				t.Errorf("%s subscriber got topic %s", name, evt.Topic)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber did not receive event", name)
		}
	}

	bus.Publish(Event{Topic: MarketUpdated("9"), Height: 8})
	select {
	case <-one:
		t.Fatal("keyed subscriber should NOT receive another market's event")
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case <-all:
	case <-time.After(time.Second):
		t.Fatal("family subscriber did not receive second event")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan Event, 10)
	bus.Subscribe(PositionUpdated("user1"), ch)
	bus.Unsubscribe(PositionUpdated("user1"), ch)

	bus.Publish(Event{Topic: PositionUpdated("user1"), Height: 1})

	select {
	case <-ch:
		t.Fatal("unsubscribed channel should not receive events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_PublishBatch(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 100)
	bus.Subscribe(FamilyNewTransaction, received)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(h uint64) {
			defer wg.Done()
			bus.Publish(Event{Topic: FamilyNewTransaction, Height: h})
		}(uint64(i))
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)
	if len(received) != 50 {
		t.Errorf("expected 50 events, got %d", len(received))
	}
}
