// Package eventbus implements the Event Bus: type-keyed publish/subscribe
// with thread affinity, per-bundle bulk unsubscribe, and an isolation
// contract where one handler's panic never blocks delivery to the rest.
package eventbus

import (
	"log"
	"sort"
	"sync"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
)

// Affinity selects which execution context a handler runs on.
type Affinity int

const (
	// Background dispatches the handler on the bus's worker pool.
	Background Affinity = iota
	// UiThread dispatches the handler on the bus's dedicated UI-thread
	// queue, serialized with every other UiThread handler.
	UiThread
	// CallerThread runs the handler synchronously on publish's caller.
	CallerThread
)

// Event is a type-keyed payload published to the bus.
type Event struct {
	Type    string
	Payload any
}

// Subscription is a live registration returned by Subscribe. Callers do
// not mutate it; it is returned for identity/inspection only.
type Subscription struct {
	EventType string
	Affinity  Affinity
	BundleID  string

	handler Handler
	mu      sync.Mutex // serializes this subscription's own handler invocations
}

// Handler receives a published Event. A panic inside Handler is recovered
// by the bus and never observed by the publisher or other handlers.
type Handler func(Event)

// Bus is the thread-safe Event Bus.
type Bus struct {
	mu         sync.RWMutex
	byType     map[string][]*Subscription
	byBundle   map[string]map[*Subscription]bool
	workers    *pool
	uiQueue    chan func()
	uiStopOnce sync.Once
	uiDone     chan struct{}
	down       bool
}

// New returns a running Bus with the given number of background workers.
func New(backgroundWorkers int) *Bus {
	b := &Bus{
		byType:   make(map[string][]*Subscription),
		byBundle: make(map[string]map[*Subscription]bool),
		workers:  newPool(backgroundWorkers),
		uiQueue:  make(chan func(), 256),
		uiDone:   make(chan struct{}),
	}
	go b.runUiThread()
	return b
}

func (b *Bus) runUiThread() {
	defer close(b.uiDone)
	for task := range b.uiQueue {
		runRecovered(task)
	}
}

// Subscribe registers handler for eventType with the given affinity,
// attributed to bundleID (empty for a host-owned subscription). Rejects
// after Shutdown.
func (b *Bus) Subscribe(eventType string, handler Handler, affinity Affinity, bundleID string) (*Subscription, error) {
	if eventType == "" {
		return nil, &hostapi.NullArgumentError{Name: "event_type"}
	}
	if handler == nil {
		return nil, &hostapi.NullArgumentError{Name: "handler"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, &hostapi.LifecycleError{ID: bundleID, Phase: "subscribe", Cause: errShutdown}
	}

	sub := &Subscription{EventType: eventType, Affinity: affinity, BundleID: bundleID, handler: handler}
	b.byType[eventType] = append(b.byType[eventType], sub)
	if bundleID != "" {
		set := b.byBundle[bundleID]
		if set == nil {
			set = make(map[*Subscription]bool)
			b.byBundle[bundleID] = set
		}
		set[sub] = true
	}
	return sub, nil
}

// Publish snapshots the subscriber list for event.Type and dispatches to
// each according to its affinity. A no-op after Shutdown. Returns once
// dispatch has been queued (or run, for CallerThread); delivery to
// Background/UiThread subscribers is concurrent with the return.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	if b.down {
		b.mu.RUnlock()
		return
	}
	subs := append([]*Subscription(nil), b.byType[event.Type]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.dispatch(sub, event)
	}
}

func (b *Bus) dispatch(sub *Subscription, event Event) {
	run := func() {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[WARN] eventbus: handler panic for %s (bundle=%s): %v", sub.EventType, sub.BundleID, r)
			}
		}()
		sub.handler(event)
	}

	switch sub.Affinity {
	case CallerThread:
		run()
	case UiThread:
		b.sendUi(run)
	default: // Background
		b.workers.submit(run)
	}
}

// sendUi enqueues run onto the UI-thread queue, falling back to a
// dedicated goroutine when the queue is momentarily full so dispatch
// never blocks the publishing caller. Shutdown can close uiQueue
// concurrently with either send path; b.down is checked first to avoid
// that race in the common case, and both sends still recover from a
// "send on closed channel" panic for the remaining window, silently
// dropping the task. Publish is documented as a no-op after Shutdown, so
// a dropped task here is consistent with that contract.
func (b *Bus) sendUi(run func()) {
	b.mu.RLock()
	down := b.down
	b.mu.RUnlock()
	if down {
		return
	}

	defer func() { recover() }()
	select {
	case b.uiQueue <- run:
	default:
		go func() {
			defer func() { recover() }()
			b.uiQueue <- run
		}()
	}
}

// UnsubscribeAll deactivates every subscription attributed to bundleID.
func (b *Bus) UnsubscribeAll(bundleID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.byBundle[bundleID]
	if len(set) == 0 {
		return 0
	}
	delete(b.byBundle, bundleID)

	for eventType, subs := range b.byType {
		filtered := subs[:0:0]
		for _, s := range subs {
			if !set[s] {
				filtered = append(filtered, s)
			}
		}
		if len(filtered) == 0 {
			delete(b.byType, eventType)
		} else {
			b.byType[eventType] = filtered
		}
	}
	return len(set)
}

// Shutdown is idempotent. It drains active subscriptions; further
// Publish calls are silent no-ops. It waits for in-flight Background
// deliveries to finish but does not wait on the UI queue, so Shutdown
// never blocks on a stalled UI thread.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	if b.down {
		b.mu.Unlock()
		return
	}
	b.down = true
	b.byType = make(map[string][]*Subscription)
	b.byBundle = make(map[string]map[*Subscription]bool)
	b.mu.Unlock()

	b.workers.stop()
	b.uiStopOnce.Do(func() { close(b.uiQueue) })
}

// Types returns the sorted set of event types with at least one active
// subscriber.
func (b *Bus) Types() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.byType))
	for t := range b.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SubscriberCount returns the number of active subscribers for eventType.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byType[eventType])
}

var errShutdown = shutdownError{}

type shutdownError struct{}

func (shutdownError) Error() string { return "event bus is shut down" }
