package events

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	_, a := hub.Subscribe()
	_, b := hub.Subscribe()

	hub.Publish(TypeScanStart, map[string]int{"cycle": 1})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case evt := <-ch:
			assert.Equal(t, TypeScanStart, evt.Type)
			assert.NotEmpty(t, evt.ID)
			assert.False(t, evt.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

// A subscriber that stops draining loses events instead of stalling the
// publisher.
func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	hub.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(TypeTradeExecuted, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	id, ch := hub.Subscribe()
	hub.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic on the closed channel.
	require.NotPanics(t, func() {
		hub.Publish(TypeScanSummary, nil)
	})
}

func TestHubCloseIsIdempotent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	_, ch := hub.Subscribe()

	hub.Close()
	hub.Close()

	_, open := <-ch
	assert.False(t, open)
	hub.Publish(TypeAccountUpdate, nil) // dropped, no panic
}
