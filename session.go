package cdpcore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
)

// emptyObj is sent as the params of a command that takes none.
var emptyObj = easyjson.RawMessage([]byte(`{}`))

// Session wraps one logical protocol endpoint bound to a target (or, for
// the root session, to the browser itself). It owns a request id counter
// local to itself, a mapping from pending request id to awaiter, and a
// routing table of event name to subscriber list. Flat-session (one
// transport demultiplexed by sessionId) and a hypothetical non-flat
// transport share this same contract: Session never touches the Transport
// directly, only the send func it was constructed with.
type Session struct {
	id       target.SessionID
	targetID target.ID
	send     func(*cdproto.Message) error

	logger *Logger

	nextID int64

	mu       sync.Mutex
	pending  map[int64]chan *cdproto.Message
	routes   map[cdproto.MethodType]*EventList
	closed   bool
	closeErr error
}

func newSession(id target.SessionID, targetID target.ID, send func(*cdproto.Message) error, logger *Logger) *Session {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Session{
		id:       id,
		targetID: targetID,
		send:     send,
		logger:   logger.With("sessionID", string(id)),
		pending:  make(map[int64]chan *cdproto.Message),
		routes:   make(map[cdproto.MethodType]*EventList),
	}
}

// ID returns the protocol session id, empty for the root (browser) session.
func (s *Session) ID() target.SessionID { return s.id }

// TargetID returns the id of the target this session is attached to.
func (s *Session) TargetID() target.ID { return s.targetID }

// Send issues a command and awaits its reply. It fails with a
// *ProtocolError if the remote returned an error object, and with a
// *TargetClosedError if the session is torn down (by Detach, or a browser
// close) before a reply arrives. Request ids are monotonic integers local
// to this session.
func (s *Session) Send(ctx context.Context, method cdproto.MethodType, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	var paramsBuf easyjson.RawMessage
	if params == nil {
		paramsBuf = emptyObj
	} else {
		b, err := easyjson.Marshal(params)
		if err != nil {
			return err
		}
		paramsBuf = b
	}

	id := atomic.AddInt64(&s.nextID, 1)
	ch := make(chan *cdproto.Message, 1)

	s.mu.Lock()
	if s.closed {
		err := s.closeErr
		s.mu.Unlock()
		return err
	}
	s.pending[id] = ch
	s.mu.Unlock()

	msg := &cdproto.Message{ID: id, SessionID: s.id, Method: method, Params: paramsBuf}
	if err := s.send(msg); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return err
	}

	select {
	case reply, ok := <-ch:
		if !ok || reply == nil {
			return &TargetClosedError{Reason: "session detached"}
		}
		if reply.Error != nil {
			return &ProtocolError{Code: reply.Error.Code, Message: reply.Error.Message}
		}
		if res != nil {
			return easyjson.Unmarshal(reply.Result, res)
		}
		return nil

	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return ctx.Err()
	}
}

// Execute adapts Session to cdp.Executor, so cdproto command types can be
// invoked as action.Do(cdp.WithExecutor(ctx, session)).
func (s *Session) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	return s.Send(ctx, cdproto.MethodType(method), params, res)
}

// On returns the subscriber list for the given event method, creating it
// on first use. Callers register with list.Add or list.AddAsync.
func (s *Session) On(method cdproto.MethodType) *EventList {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.routes[method]
	if !ok {
		l = NewEventList()
		s.routes[method] = l
	}
	return l
}

// deliverReply completes the awaiter registered for msg.ID, if any.
func (s *Session) deliverReply(msg *cdproto.Message) {
	s.mu.Lock()
	ch, ok := s.pending[msg.ID]
	if ok {
		delete(s.pending, msg.ID)
	}
	s.mu.Unlock()
	if !ok {
		s.logger.Errorf("id %d not present in response map", msg.ID)
		return
	}
	ch <- msg
	close(ch)
}

// dispatchEvent decodes msg into its typed payload and fans it out to any
// subscribers registered for msg.Method.
func (s *Session) dispatchEvent(ctx context.Context, msg *cdproto.Message) {
	s.mu.Lock()
	l, ok := s.routes[msg.Method]
	s.mu.Unlock()
	if !ok || l.IsEmpty() {
		return
	}

	ev, err := cdproto.UnmarshalMessage(msg)
	if err != nil {
		s.logger.Errorf("could not unmarshal event %s: %v", msg.Method, err)
		return
	}
	l.InvokeAsync(ctx, s.logger, s, ev)
}

// Detach terminates the session: every pending Send call fails with a
// *TargetClosedError, and future Sends fail immediately with the same.
func (s *Session) Detach(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = &TargetClosedError{Reason: reason}
	pending := s.pending
	s.pending = make(map[int64]chan *cdproto.Message)
	s.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}
