package cdpcore

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
)

// fakeSend is a test double for the Session.send func: every command is
// recorded and immediately acknowledged with an empty result, unless a
// canned responder is registered for its method.
type fakeSend struct {
	mu        sync.Mutex
	session   *Session
	calls     []cdproto.MethodType
	params    map[cdproto.MethodType][]easyjson.RawMessage
	responder map[cdproto.MethodType]func(*cdproto.Message) *cdproto.Message
}

func newFakeSend() *fakeSend {
	return &fakeSend{
		params:    make(map[cdproto.MethodType][]easyjson.RawMessage),
		responder: make(map[cdproto.MethodType]func(*cdproto.Message) *cdproto.Message),
	}
}

func (f *fakeSend) attach(s *Session) { f.session = s }

func (f *fakeSend) send(msg *cdproto.Message) error {
	f.mu.Lock()
	f.calls = append(f.calls, msg.Method)
	f.params[msg.Method] = append(f.params[msg.Method], msg.Params)
	responder := f.responder[msg.Method]
	f.mu.Unlock()

	reply := &cdproto.Message{ID: msg.ID, SessionID: msg.SessionID, Result: easyjson.RawMessage([]byte(`{}`))}
	if responder != nil {
		reply = responder(msg)
	}
	go f.session.deliverReply(reply)
	return nil
}

func (f *fakeSend) callCount(method cdproto.MethodType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

// paramsAt returns the raw params sent on the nth (0-indexed) call to
// method, or nil if there weren't that many.
func (f *fakeSend) paramsAt(method cdproto.MethodType, n int) easyjson.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.params[method]
	if n < 0 || n >= len(list) {
		return nil
	}
	return list[n]
}

// newTestSession builds a Session wired to a fakeSend, ready for commands
// that don't need a specific canned reply.
func newTestSession() (*Session, *fakeSend) {
	fs := newFakeSend()
	s := newSession(target.SessionID("sess-1"), target.ID("target-1"), fs.send, NewNopLogger())
	fs.attach(s)
	return s, fs
}

var _ = context.Background
