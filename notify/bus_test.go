package notify

import (
	"testing"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	want := Update{Event: "RecordAdded", Entity: "records", Key: "11", TxHash: "0xabc"}
	bus.Publish(want)

	got := <-ch
	if got != want {
		t.Errorf("received %+v, want %+v", got, want)
	}
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	id, _ := bus.Subscribe()
	defer bus.Unsubscribe(id)

	bus.Publish(Update{Event: "a"})
	bus.Publish(Update{Event: "b"}) // buffer full, dropped

	published, dropped := bus.Stats()
	if published != 2 {
		t.Errorf("published = %d, want 2", published)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	id, ch := bus.Subscribe()
	bus.Unsubscribe(id)

	if _, open := <-ch; open {
		t.Error("channel should be closed after Unsubscribe")
	}

	// Unsubscribing twice must not panic.
	bus.Unsubscribe(id)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(1)

	_, ch := bus.Subscribe()
	bus.Close()

	if _, open := <-ch; open {
		t.Error("channel should be closed after Close")
	}

	// Publish after Close is a no-op.
	bus.Publish(Update{Event: "late"})

	// Subscribe after Close hands back a closed channel.
	_, late := bus.Subscribe()
	if _, open := <-late; open {
		t.Error("subscribe after Close should return a closed channel")
	}
}
