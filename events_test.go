package cdpcore

import (
	"context"
	"testing"
	"time"
)

func TestEventListInvokeAsyncOrdering(t *testing.T) {
	l := NewEventList()
	var order []int

	l.Add(func(ctx context.Context, sender, args interface{}) { order = append(order, 1) })
	l.AddAsync(func(ctx context.Context, sender, args interface{}) <-chan struct{} {
		done := make(chan struct{})
		go func() {
			order = append(order, 2)
			close(done)
		}()
		return done
	})
	l.Add(func(ctx context.Context, sender, args interface{}) { order = append(order, 3) })

	l.InvokeAsync(context.Background(), nil, nil, nil)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("got order %v; want [1 2 3]", order)
	}
}

func TestEventListSelfUnsubscribe(t *testing.T) {
	l := NewEventList()
	var calls int
	var sub Subscription

	sub = l.Add(func(ctx context.Context, sender, args interface{}) {
		calls++
		l.Remove(sub)
	})

	l.InvokeAsync(context.Background(), nil, nil, nil)
	l.InvokeAsync(context.Background(), nil, nil, nil)

	if calls != 1 {
		t.Fatalf("calls = %d; want 1 (handler should have removed itself)", calls)
	}
	if !l.IsEmpty() {
		t.Fatalf("expected list to be empty after self-unsubscribe")
	}
}

func TestEventListRemoveDuringDispatchDoesNotAffectInFlightSnapshot(t *testing.T) {
	l := NewEventList()
	var secondCalled bool
	var secondSub Subscription

	l.Add(func(ctx context.Context, sender, args interface{}) {
		l.Remove(secondSub)
	})
	secondSub = l.Add(func(ctx context.Context, sender, args interface{}) { secondCalled = true })

	l.InvokeAsync(context.Background(), nil, nil, nil)

	if !secondCalled {
		t.Fatalf("expected second to still run from the in-flight snapshot even though first removed it")
	}
	if !l.IsEmpty() {
		t.Fatalf("expected the live list to end up empty after first removed second")
	}
}

func TestEventListAsyncRespectsContextCancellation(t *testing.T) {
	l := NewEventList()
	ctx, cancel := context.WithCancel(context.Background())

	l.AddAsync(func(ctx context.Context, sender, args interface{}) <-chan struct{} {
		return make(chan struct{})
	})

	done := make(chan struct{})
	go func() {
		l.InvokeAsync(ctx, nil, nil, nil)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("InvokeAsync did not return after context cancellation")
	}
}

func TestEventListPanicRecovered(t *testing.T) {
	l := NewEventList()
	var secondCalled bool

	l.Add(func(ctx context.Context, sender, args interface{}) { panic("boom") })
	l.Add(func(ctx context.Context, sender, args interface{}) { secondCalled = true })

	l.InvokeAsync(context.Background(), NewNopLogger(), nil, nil)

	if !secondCalled {
		t.Fatalf("expected dispatch to continue past a panicking subscriber")
	}
}
