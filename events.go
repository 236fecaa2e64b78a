package cdpcore

import (
	"context"
	"sync"
)

// SyncHandler is a fire-and-forget event subscriber. It must not block for
// longer than it takes to record the event; invoke_sync runs these inline.
type SyncHandler func(ctx context.Context, sender interface{}, args interface{})

// AsyncHandler is an event subscriber whose work continues past its return;
// it reports completion on the returned channel. invoke_async awaits each
// async subscriber in turn before moving to the next one in the list.
type AsyncHandler func(ctx context.Context, sender interface{}, args interface{}) <-chan struct{}

// Subscription identifies one registration returned by Add/AddAsync. It is
// opaque and must be passed back to Remove to cancel that registration;
// unlike a reflect.Value.Pointer() of the handler, it is unique per
// registration even when the same closure literal (with different captured
// state) is registered more than once.
type Subscription struct {
	token *int
}

// subscriber is either a SyncHandler or an AsyncHandler, plus the token used
// for removal.
type subscriber struct {
	sync  SyncHandler
	async AsyncHandler
	sub   Subscription
}

// EventList is an ordered, mutation-safe fanout list: a per-event-kind
// container of subscribers, some synchronous and some asynchronous. It is
// the building block NetworkManager, FrameManager, Browser, and Target use
// to publish events such as FrameNavigated or RequestFinished.
//
// The zero value is not usable; use NewEventList.
type EventList struct {
	mu   sync.Mutex
	subs []subscriber
}

// NewEventList returns an empty EventList.
func NewEventList() *EventList {
	return &EventList{}
}

// Add registers a synchronous subscriber at the end of the list and returns
// a token identifying this registration for Remove.
func (l *EventList) Add(h SyncHandler) Subscription {
	sub := Subscription{token: new(int)}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, subscriber{sync: h, sub: sub})
	return sub
}

// AddAsync registers an asynchronous subscriber at the end of the list and
// returns a token identifying this registration for Remove.
func (l *EventList) AddAsync(h AsyncHandler) Subscription {
	sub := Subscription{token: new(int)}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, subscriber{async: h, sub: sub})
	return sub
}

// Remove removes the subscriber identified by sub, as returned from the
// Add/AddAsync call that registered it. Unlike matching on the handler
// value, this distinguishes every registration, including two of the same
// closure literal (e.g. two overlapping NavigationWatchers on the same
// frame), and removes only the one sub names. It is safe to call from within a
// handler that is itself being dispatched: the removal affects only the
// live list, never the snapshot already in flight.
func (l *EventList) Remove(sub Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.subs {
		if s.sub.token == sub.token {
			l.subs = append(l.subs[:i], l.subs[i+1:]...)
			return
		}
	}
}

// IsEmpty reports whether the list currently has no subscribers.
func (l *EventList) IsEmpty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs) == 0
}

// Snapshot returns a stable copy of the currently registered subscribers,
// safe to iterate while Add/Remove mutate the live list concurrently.
func (l *EventList) Snapshot() []subscriber {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]subscriber, len(l.subs))
	copy(out, l.subs)
	return out
}

// InvokeAsync dispatches to a snapshot of the list in registration order.
// Synchronous subscribers run inline; asynchronous subscribers are awaited
// (their completion channel is read, or ctx is cancelled) before the next
// subscriber runs. The net effect is strict sequential, deterministic
// ordering regardless of which subscribers are sync or async.
//
// A subscriber that panics is recovered, logged, and does not abort the
// rest of the dispatch — this matches the "safe invoke" semantics the
// wider system relies on for unsolicited event side effects.
func (l *EventList) InvokeAsync(ctx context.Context, logger *Logger, sender interface{}, args interface{}) {
	for _, s := range l.Snapshot() {
		invokeOne(ctx, logger, s, sender, args, true)
	}
}

// InvokeSync dispatches to a snapshot exactly like InvokeAsync, except that
// asynchronous subscribers are invoked and then blocked on synchronously in
// the same step as synchronous ones. This is deadlock-risky (an async
// subscriber that waits on something this goroutine must also drive will
// hang) and is reserved for shutdown paths where nothing else is running.
func (l *EventList) InvokeSync(ctx context.Context, logger *Logger, sender interface{}, args interface{}) {
	for _, s := range l.Snapshot() {
		invokeOne(ctx, logger, s, sender, args, false)
	}
}

func invokeOne(ctx context.Context, logger *Logger, s subscriber, sender, args interface{}, respectCtx bool) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Errorf("event subscriber panicked: %v", r)
		}
	}()

	if s.sync != nil {
		s.sync(ctx, sender, args)
		return
	}

	done := s.async(ctx, sender, args)
	if done == nil {
		return
	}
	if respectCtx {
		select {
		case <-done:
		case <-ctx.Done():
		}
	} else {
		<-done
	}
}
