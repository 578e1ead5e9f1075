package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_CallerThread_RunsSynchronously(t *testing.T) {
	b := New(2)
	defer b.Shutdown()

	var got Event
	_, err := b.Subscribe("tax.updated", func(e Event) { got = e }, CallerThread, "")
	require.NoError(t, err)

	b.Publish(Event{Type: "tax.updated", Payload: 42})
	assert.Equal(t, 42, got.Payload)
}

func TestBus_Background_DeliversAsynchronously(t *testing.T) {
	b := New(2)
	defer b.Shutdown()

	done := make(chan struct{})
	_, err := b.Subscribe("tax.updated", func(e Event) { close(done) }, Background, "")
	require.NoError(t, err)

	b.Publish(Event{Type: "tax.updated"})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background handler never ran")
	}
}

func TestBus_Isolation_OneHandlerPanicDoesNotBlockOthers(t *testing.T) {
	b := New(2)
	defer b.Shutdown()

	var otherCalled atomic.Bool
	_, err := b.Subscribe("tax.updated", func(e Event) { panic("boom") }, CallerThread, "bundleA")
	require.NoError(t, err)
	_, err = b.Subscribe("tax.updated", func(e Event) { otherCalled.Store(true) }, CallerThread, "bundleB")
	require.NoError(t, err)

	assert.NotPanics(t, func() { b.Publish(Event{Type: "tax.updated"}) })
	assert.True(t, otherCalled.Load())
}

func TestBus_UnsubscribeAll_RemovesOnlyThatBundlesSubscriptions(t *testing.T) {
	b := New(2)
	defer b.Shutdown()

	var aCalled, bCalled atomic.Bool
	_, err := b.Subscribe("tax.updated", func(e Event) { aCalled.Store(true) }, CallerThread, "bundleA")
	require.NoError(t, err)
	_, err = b.Subscribe("tax.updated", func(e Event) { bCalled.Store(true) }, CallerThread, "bundleB")
	require.NoError(t, err)

	removed := b.UnsubscribeAll("bundleA")
	assert.Equal(t, 1, removed)

	b.Publish(Event{Type: "tax.updated"})
	assert.False(t, aCalled.Load())
	assert.True(t, bCalled.Load())
}

func TestBus_Shutdown_IsIdempotentAndSilencesPublish(t *testing.T) {
	b := New(2)

	var called atomic.Bool
	_, err := b.Subscribe("tax.updated", func(e Event) { called.Store(true) }, CallerThread, "")
	require.NoError(t, err)

	b.Shutdown()
	assert.NotPanics(t, func() { b.Shutdown() })

	assert.NotPanics(t, func() { b.Publish(Event{Type: "tax.updated"}) })
	assert.False(t, called.Load())
}

func TestBus_UiSendRecoversFromConcurrentShutdownRace(t *testing.T) {
	// Simulates Shutdown racing dispatch: uiQueue gets closed out from
	// under sendUi between its b.down check and the channel send. Both
	// the direct select and the overflow goroutine must recover rather
	// than let a closed-channel send panic escape.
	b := New(1)
	close(b.uiQueue)
	assert.NotPanics(t, func() { b.sendUi(func() {}) })
	b.workers.stop()
}

func TestBus_SubscribeAfterShutdownIsRejected(t *testing.T) {
	b := New(1)
	b.Shutdown()

	_, err := b.Subscribe("tax.updated", func(Event) {}, CallerThread, "")
	require.Error(t, err)
}

func TestBus_PerSubscriberOrdering(t *testing.T) {
	// A single background worker guarantees delivery in send order: with
	// only one consumer reading the task channel, tasks run in the order
	// they were submitted.
	b := New(1)
	defer b.Shutdown()

	var mu sync.Mutex
	var seen []int
	_, err := b.Subscribe("tick", func(e Event) {
		mu.Lock()
		seen = append(seen, e.Payload.(int))
		mu.Unlock()
	}, Background, "")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		b.Publish(Event{Type: "tick", Payload: i})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 20
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestBus_NullArguments(t *testing.T) {
	b := New(1)
	defer b.Shutdown()

	_, err := b.Subscribe("", func(Event) {}, CallerThread, "")
	require.Error(t, err)
	_, err = b.Subscribe("tick", nil, CallerThread, "")
	require.Error(t, err)
}

func TestBus_TypesAndSubscriberCount(t *testing.T) {
	b := New(1)
	defer b.Shutdown()

	_, err := b.Subscribe("tax.updated", func(Event) {}, CallerThread, "")
	require.NoError(t, err)
	_, err = b.Subscribe("tax.updated", func(Event) {}, CallerThread, "")
	require.NoError(t, err)
	_, err = b.Subscribe("bundle.reloaded", func(Event) {}, CallerThread, "")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"bundle.reloaded", "tax.updated"}, b.Types())
	assert.Equal(t, 2, b.SubscriberCount("tax.updated"))
}
