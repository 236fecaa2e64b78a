package cdpcore

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/page"
)

func TestNavigationWatcherCompletesOnLifecycleEvent(t *testing.T) {
	fm := newTestFrameManager()
	fm.seed(&page.FrameTree{Frame: &page.Frame{ID: "main", URL: "about:blank", LoaderID: "l1"}})
	frame, _ := fm.MainFrame()

	w := newNavigationWatcher(fm, frame, []WaitUntil{WaitLoad}, 2*time.Second)

	fm.onFrameNavigated(context.Background(), nil, &page.EventFrameNavigated{
		Frame: &page.Frame{ID: "main", URL: "http://example.test", LoaderID: "l2"},
	})
	fm.onLifecycleEvent(context.Background(), nil, &page.EventLifecycleEvent{FrameID: "main", LoaderID: "l2", Name: "load"})

	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestNavigationWatcherTimesOut(t *testing.T) {
	fm := newTestFrameManager()
	fm.seed(&page.FrameTree{Frame: &page.Frame{ID: "main", URL: "about:blank", LoaderID: "l1"}})
	frame, _ := fm.MainFrame()

	w := newNavigationWatcher(fm, frame, []WaitUntil{WaitLoad}, 30*time.Millisecond)

	err := w.Wait(context.Background())
	if _, ok := err.(*NavigationTimeoutError); !ok {
		t.Fatalf("got %T (%v); want *NavigationTimeoutError", err, err)
	}
}

func TestNavigationWatcherFailsOnFrameDetached(t *testing.T) {
	fm := newTestFrameManager()
	fm.seed(&page.FrameTree{Frame: &page.Frame{ID: "main", URL: "about:blank", LoaderID: "l1"}})
	frame, _ := fm.MainFrame()

	w := newNavigationWatcher(fm, frame, []WaitUntil{WaitLoad}, 2*time.Second)

	fm.onFrameDetached(context.Background(), nil, &page.EventFrameDetached{FrameID: "main"})

	err := w.Wait(context.Background())
	if _, ok := err.(*NavigationError); !ok {
		t.Fatalf("got %T (%v); want *NavigationError", err, err)
	}
}

func TestNavigationWatcherSameDocumentCompletesImmediately(t *testing.T) {
	fm := newTestFrameManager()
	fm.seed(&page.FrameTree{Frame: &page.Frame{ID: "main", URL: "about:blank", LoaderID: "l1"}})
	frame, _ := fm.MainFrame()

	w := newNavigationWatcher(fm, frame, []WaitUntil{WaitLoad}, 2*time.Second)

	fm.onNavigatedWithinDocument(context.Background(), nil, &page.EventNavigatedWithinDocument{FrameID: "main", URL: "about:blank#x"})

	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
