package broadcaster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribersInOrder(t *testing.T) {
	b := New(nil)
	chA := b.Subscribe("lobby-1", "a")
	chB := b.Subscribe("lobby-1", "b")

	b.Publish("lobby-1", Message{Type: EventPlayerJoined, Data: 1})
	b.Publish("lobby-1", Message{Type: EventPlayerJoined, Data: 2})

	for _, ch := range []<-chan Message{chA, chB} {
		first := <-ch
		second := <-ch
		require.Equal(t, 1, first.Data)
		require.Equal(t, 2, second.Data)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	ch := b.Subscribe("lobby-1", "a")
	b.Unsubscribe("lobby-1", "a")

	b.Publish("lobby-1", Message{Type: EventPlayerLeft})

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}

func TestSlowSubscriberIsDroppedWithoutAffectingOthers(t *testing.T) {
	b := New(nil)
	slow := b.Subscribe("lobby-1", "slow")
	fast := b.Subscribe("lobby-1", "fast")

	received := make(chan int)
	go func() {
		n := 0
		for range fast {
			n++
		}
		received <- n
	}()

	// The slow subscriber never reads; once its outbox fills it must be
	// dropped while the draining fast subscriber keeps every delivery.
	for i := 0; i < outboxSize+5; i++ {
		b.Publish("lobby-1", Message{Type: EventCountdownTick, Data: i})
	}

	require.Equal(t, 1, b.SubscriberCount("lobby-1"))

	b.Unsubscribe("lobby-1", "fast")
	select {
	case n := <-received:
		require.Equal(t, outboxSize+5, n)
	case <-time.After(time.Second):
		t.Fatal("fast subscriber never finished draining")
	}

	_, stillOpen := <-slow
	require.True(t, stillOpen, "slow subscriber's earlier messages should still be drainable")
}

func TestPublishToTargetsSingleSubscriber(t *testing.T) {
	b := New(nil)
	a := b.Subscribe("lobby-1", "a")
	bCh := b.Subscribe("lobby-1", "b")

	b.PublishTo("lobby-1", "a", Message{Type: EventError, Data: "nope"})

	select {
	case msg := <-a:
		require.Equal(t, EventError, msg.Type)
	default:
		t.Fatal("expected subscriber a to receive the error event")
	}

	select {
	case <-bCh:
		t.Fatal("subscriber b should not have received the directed error event")
	default:
	}
}
