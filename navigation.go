package cdpcore

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
)

// WaitUntil names one logical point at which a navigation is considered
// settled. It maps to a protocol lifecycle name via waitUntilLifecycleName.
type WaitUntil string

const (
	WaitLoad             WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "dom_content_loaded"
	WaitNetworkIdle0     WaitUntil = "network_idle_0"
	WaitNetworkIdle2     WaitUntil = "network_idle_2"
)

func waitUntilLifecycleName(w WaitUntil) string {
	switch w {
	case WaitDOMContentLoaded:
		return "DOMContentLoaded"
	case WaitNetworkIdle0:
		return "networkIdle"
	case WaitNetworkIdle2:
		return "networkAlmostIdle"
	default:
		return "load"
	}
}

type watcherState int

const (
	watching watcherState = iota
	completed
	failed
)

// NavigationWatcher is a short-lived, single-use state machine tracking
// one navigation in one frame to completion, timeout, or the frame's
// detachment. Construct with newNavigationWatcher, then Wait for the
// outcome.
type NavigationWatcher struct {
	frameManager *FrameManager
	frame        *Frame

	initialLoaderID cdp.LoaderID
	expected        map[string]struct{}
	timeout         time.Duration

	mu           sync.Mutex
	state        watcherState
	sameDocument bool
	err          error
	done         chan struct{}
	doneOnce     sync.Once

	unsubscribe []func()
}

// newNavigationWatcher subscribes to the frame manager's lifecycle events
// for frame and begins watching for waitUntil to be satisfied. timeout of
// 0 means wait forever; a zero WaitUntil slice defaults to {WaitLoad}.
func newNavigationWatcher(frameManager *FrameManager, frame *Frame, waitUntil []WaitUntil, timeout time.Duration) *NavigationWatcher {
	if len(waitUntil) == 0 {
		waitUntil = []WaitUntil{WaitLoad}
	}
	expected := make(map[string]struct{}, len(waitUntil))
	for _, w := range waitUntil {
		expected[waitUntilLifecycleName(w)] = struct{}{}
	}

	w := &NavigationWatcher{
		frameManager:    frameManager,
		frame:           frame,
		initialLoaderID: frame.LoaderID(),
		expected:        expected,
		timeout:         timeout,
		done:            make(chan struct{}),
	}

	onLifecycle := func(ctx context.Context, _ interface{}, args interface{}) {
		w.recheck()
	}
	onNavigatedWithinDoc := func(ctx context.Context, _ interface{}, args interface{}) {
		f, ok := args.(*Frame)
		if !ok || f.ID() != frame.ID() {
			return
		}
		w.mu.Lock()
		w.sameDocument = true
		w.mu.Unlock()
		w.recheck()
	}
	onDetached := func(ctx context.Context, _ interface{}, args interface{}) {
		f, ok := args.(*Frame)
		if !ok {
			return
		}
		if f.ID() == frame.ID() || isDescendantOf(frame, f) {
			w.fail(&NavigationError{URL: frame.URL(), Reason: "frame detached"})
		}
	}

	lifecycleSub := frameManager.LifecycleEvent.Add(onLifecycle)
	navigatedWithinDocSub := frameManager.NavigatedWithinDocument.Add(onNavigatedWithinDoc)
	detachedSub := frameManager.FrameDetached.Add(onDetached)
	w.unsubscribe = []func(){
		func() { frameManager.LifecycleEvent.Remove(lifecycleSub) },
		func() { frameManager.NavigatedWithinDocument.Remove(navigatedWithinDocSub) },
		func() { frameManager.FrameDetached.Remove(detachedSub) },
	}

	if timeout > 0 {
		go func() {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			select {
			case <-timer.C:
				w.fail(&NavigationTimeoutError{FrameID: string(frame.ID()), Timeout: timeout.String()})
			case <-w.done:
			}
		}()
	}

	w.recheck()
	return w
}

func isDescendantOf(ancestor, candidate *Frame) bool {
	for {
		p, ok := candidate.Parent()
		if !ok {
			return false
		}
		if p.ID() == ancestor.ID() {
			return true
		}
		candidate = p
	}
}

// committed reports whether the frame has navigated: either a new document
// loaded (loaderId changed) or a same-document navigation occurred.
func (w *NavigationWatcher) committed() bool {
	w.mu.Lock()
	sameDoc := w.sameDocument
	w.mu.Unlock()
	return sameDoc || w.frame.LoaderID() != w.initialLoaderID
}

func (w *NavigationWatcher) lifecycleSatisfied(f *Frame) bool {
	for name := range w.expected {
		if !f.HasLifecycleEvent(name) {
			return false
		}
	}
	for _, child := range f.Children() {
		if !w.lifecycleSatisfied(child) {
			return false
		}
	}
	return true
}

func (w *NavigationWatcher) recheck() {
	if !w.committed() {
		return
	}

	w.mu.Lock()
	sameDoc := w.sameDocument
	w.mu.Unlock()

	// same-document navigations complete on the first check: no further
	// lifecycle events follow them.
	if sameDoc || w.lifecycleSatisfied(w.frame) {
		w.complete()
	}
}

func (w *NavigationWatcher) complete() {
	w.mu.Lock()
	if w.state != watching {
		w.mu.Unlock()
		return
	}
	w.state = completed
	w.mu.Unlock()
	w.finish()
}

func (w *NavigationWatcher) fail(err error) {
	w.mu.Lock()
	if w.state != watching {
		w.mu.Unlock()
		return
	}
	w.state = failed
	w.err = err
	w.mu.Unlock()
	w.finish()
}

func (w *NavigationWatcher) finish() {
	for _, unsub := range w.unsubscribe {
		unsub()
	}
	w.doneOnce.Do(func() { close(w.done) })
}

// Cancel unsubscribes the watcher without resolving it; the caller is
// responsible for deciding the outcome of whatever it was waiting on.
func (w *NavigationWatcher) Cancel() {
	for _, unsub := range w.unsubscribe {
		unsub()
	}
	w.doneOnce.Do(func() { close(w.done) })
}

// Wait blocks until the navigation completes, fails, or ctx is cancelled.
func (w *NavigationWatcher) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.err
	case <-ctx.Done():
		w.fail(ctx.Err())
		return ctx.Err()
	}
}
