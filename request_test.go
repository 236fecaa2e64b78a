package cdpcore

import (
	"context"
	"testing"

	"github.com/chromedp/cdproto/network"
)

// TestRequestLifecycleMembershipInvariant checks that a request is tracked
// by requestIDToRequest exactly while its id is known and its lifecycle
// hasn't reached a terminal state (finished or failed).
func TestRequestLifecycleMembershipInvariant(t *testing.T) {
	nm, _ := newTestNetworkManager()

	nm.onRequestWillBeSent(context.Background(), nil, &network.EventRequestWillBeSent{
		RequestID: "r1",
		FrameID:   "main",
		Request:   &network.Request{Method: "GET", URL: "http://a.test/x"},
		Type:      network.ResourceTypeXHR,
	})

	if _, ok := nm.requestByID("r1"); !ok {
		t.Fatalf("expected request to be tracked after requestWillBeSent")
	}

	nm.onLoadingFinished(context.Background(), nil, &network.EventLoadingFinished{RequestID: "r1"})

	if _, ok := nm.requestByID("r1"); ok {
		t.Fatalf("expected request to be untracked once its lifecycle reached loadingFinished")
	}
}

func TestRequestLifecycleRemovedOnFailure(t *testing.T) {
	nm, _ := newTestNetworkManager()

	nm.onRequestWillBeSent(context.Background(), nil, &network.EventRequestWillBeSent{
		RequestID: "r2",
		FrameID:   "main",
		Request:   &network.Request{Method: "GET", URL: "http://a.test/y"},
		Type:      network.ResourceTypeXHR,
	})

	var failedEvents []*Request
	nm.RequestFailed.Add(func(ctx context.Context, sender, args interface{}) {
		failedEvents = append(failedEvents, args.(*Request))
	})

	nm.onLoadingFailed(context.Background(), nil, &network.EventLoadingFailed{RequestID: "r2", ErrorText: "net::ERR_ABORTED"})

	if _, ok := nm.requestByID("r2"); ok {
		t.Fatalf("expected request to be untracked after loadingFailed")
	}
	if len(failedEvents) != 1 {
		t.Fatalf("expected exactly one RequestFailed event, got %d", len(failedEvents))
	}
	failure, ok := failedEvents[0].Failure()
	if !ok || failure != "net::ERR_ABORTED" {
		t.Fatalf("Failure() = %q, %v; want net::ERR_ABORTED, true", failure, ok)
	}
}

func TestRequestServedFromCacheMarksRequest(t *testing.T) {
	nm, _ := newTestNetworkManager()

	nm.onRequestWillBeSent(context.Background(), nil, &network.EventRequestWillBeSent{
		RequestID: "r3",
		FrameID:   "main",
		Request:   &network.Request{Method: "GET", URL: "http://a.test/z"},
		Type:      network.ResourceTypeImage,
	})
	nm.onRequestServedFromCache(context.Background(), nil, &network.EventRequestServedFromCache{RequestID: "r3"})

	req, ok := nm.requestByID("r3")
	if !ok {
		t.Fatalf("expected request to still be tracked")
	}
	if !req.FromMemoryCache() {
		t.Fatalf("expected FromMemoryCache to be true")
	}
}
