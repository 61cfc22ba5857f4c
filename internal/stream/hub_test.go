package stream

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DeliversInPublishOrder(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		hub.Publish(Notification{Event: EventOrderUpdated, OrderID: fmt.Sprint(i)})
	}

	for i := 0; i < 5; i++ {
		n := <-sub.Events()
		assert.Equal(t, fmt.Sprint(i), n.OrderID)
	}
}

func TestHub_LateSubscriberMissesEarlierEvents(t *testing.T) {
	hub := NewHub()

	hub.Publish(Notification{Event: EventOrderCreated, OrderID: "1"})

	sub := hub.Subscribe()
	defer sub.Close()

	hub.Publish(Notification{Event: EventOrderUpdated, OrderID: "2"})

	n := <-sub.Events()
	assert.Equal(t, "2", n.OrderID, "no backlog replay for late subscribers")
	select {
	case n := <-sub.Events():
		t.Fatalf("unexpected notification %v", n)
	default:
	}
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	hub := NewHub()

	var drops int
	hub.OnDrop(func() { drops++ })

	slow := hub.Subscribe()
	healthy := hub.Subscribe()
	defer healthy.Close()

	// Fill the slow subscriber's buffer, then one more to evict it. The
	// healthy subscriber drains after every publish and is never at risk.
	seen := 0
	for i := 0; i <= DefaultSubscriberBuffer; i++ {
		hub.Publish(Notification{Event: EventOrderUpdated, OrderID: fmt.Sprint(i)})
		<-healthy.Events()
		seen++
	}

	assert.Equal(t, 1, drops)
	assert.Equal(t, 1, hub.Len())

	// Drain the buffered notifications; the close follows them.
	received := 0
	for range slow.Events() {
		received++
	}
	assert.Equal(t, DefaultSubscriberBuffer, received)

	// The healthy subscriber saw every publish despite the eviction.
	assert.Equal(t, DefaultSubscriberBuffer+1, seen)
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	require.Equal(t, 1, hub.Len())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Len())

	// Publishing after close must not panic or block.
	hub.Publish(Notification{Event: EventOrderCreated, OrderID: "1"})
}

func TestHub_ConcurrentSubscribePublish(t *testing.T) {
	hub := NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := hub.Subscribe()
			hub.Publish(Notification{Event: EventOrderUpdated, OrderID: "x"})
			sub.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Len())
}
