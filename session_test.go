package cdpcore

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto"
)

func TestSessionSendRoundTrip(t *testing.T) {
	s, fs := newTestSession()
	err := s.Send(context.Background(), cdproto.MethodType("Network.enable"), nil, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if fs.callCount(cdproto.MethodType("Network.enable")) != 1 {
		t.Fatalf("expected exactly one call recorded")
	}
}

func TestSessionSendProtocolError(t *testing.T) {
	s, fs := newTestSend(t)
	_ = fs
	method := cdproto.MethodType("Network.enable")
	fs.responder[method] = func(msg *cdproto.Message) *cdproto.Message {
		return &cdproto.Message{ID: msg.ID, SessionID: msg.SessionID, Error: &cdproto.Error{Code: -32000, Message: "boom"}}
	}

	err := s.Send(context.Background(), method, nil, nil)
	if err == nil {
		t.Fatalf("expected an error")
	}
	perr, ok := err.(*ProtocolError)
	if !ok {
		t.Fatalf("got %T; want *ProtocolError", err)
	}
	if perr.Code != -32000 || perr.Message != "boom" {
		t.Fatalf("got %+v", perr)
	}
}

func TestSessionDetachFailsFutureSends(t *testing.T) {
	s, _ := newTestSession()
	s.Detach("shutting down")

	err := s.Send(context.Background(), cdproto.MethodType("Network.enable"), nil, nil)
	if _, ok := err.(*TargetClosedError); !ok {
		t.Fatalf("got %T (%v); want *TargetClosedError", err, err)
	}

	// Detach is idempotent.
	s.Detach("shutting down again")
}

func TestSessionSendContextCancellation(t *testing.T) {
	s := newSession("sess-1", "target-1", func(*cdproto.Message) error { return nil }, NewNopLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Send(ctx, cdproto.MethodType("Network.enable"), nil, nil)
	if err != context.DeadlineExceeded {
		t.Fatalf("got %v; want context.DeadlineExceeded", err)
	}
}

func newTestSend(t *testing.T) (*Session, *fakeSend) {
	t.Helper()
	return newTestSession()
}
