package events

import (
	"math/big"
	"testing"
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func TestMultiFansOut(t *testing.T) {
	var first, second []Event
	sink := Multi(
		emitterFunc(func(evt Event) { first = append(first, evt) }),
		nil,
		emitterFunc(func(evt Event) { second = append(second, evt) }),
	)
	sink.Emit(Transfer{From: addr(1), To: addr(2), Amount: big.NewInt(1)})
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("fan-out counts: %d, %d", len(first), len(second))
	}
}

type emitterFunc func(Event)

func (f emitterFunc) Emit(evt Event) { f(evt) }

func TestBroadcasterDeliversToSubscribers(t *testing.T) {
	broadcaster := NewBroadcaster()
	sub, cancel := broadcaster.Subscribe(4)
	defer cancel()

	evt := Transfer{From: addr(1), To: addr(2), Amount: big.NewInt(5)}
	broadcaster.Emit(evt)

	select {
	case got := <-sub:
		transfer, ok := got.(Transfer)
		if !ok {
			t.Fatalf("unexpected event type %T", got)
		}
		if transfer.Amount.Cmp(big.NewInt(5)) != 0 {
			t.Fatalf("amount = %s, want 5", transfer.Amount)
		}
	default:
		t.Fatal("event not delivered")
	}
}

func TestBroadcasterSkipsFullSubscribers(t *testing.T) {
	broadcaster := NewBroadcaster()
	slow, cancelSlow := broadcaster.Subscribe(1)
	defer cancelSlow()
	fast, cancelFast := broadcaster.Subscribe(4)
	defer cancelFast()

	for i := 0; i < 3; i++ {
		broadcaster.Emit(Transfer{From: addr(1), To: addr(2), Amount: big.NewInt(int64(i))})
	}
	// The slow subscriber keeps only what its buffer held; the fast one got all.
	if len(slow) != 1 {
		t.Fatalf("slow buffer = %d, want 1", len(slow))
	}
	if len(fast) != 3 {
		t.Fatalf("fast buffer = %d, want 3", len(fast))
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	broadcaster := NewBroadcaster()
	sub, cancel := broadcaster.Subscribe(1)
	cancel()
	if _, ok := <-sub; ok {
		t.Fatal("channel not closed after unsubscribe")
	}
	// Emitting after unsubscribe must not panic.
	broadcaster.Emit(Transfer{From: addr(1), To: addr(2), Amount: big.NewInt(1)})
	// Double cancel is safe.
	cancel()
}
