package cdpcore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
)

// Browser is the top-level protocol-facing object: it owns the transport,
// the root (browser-wide) session, and the target map. It runs a single
// actor loop that reads from the transport and routes every inbound
// message by session id — the root session is identified by the empty
// session id and handles Target.* and Browser.* traffic.
type Browser struct {
	transport Transport
	logger    *Logger

	rootSession *Session

	mu       sync.RWMutex
	sessions map[target.SessionID]*Session
	targets  map[target.ID]*Target

	closed int32

	onClose           func()
	defaultViewport   *DefaultViewport
	ignoreHTTPSErrors bool
	appMode           bool

	// Closed, Disconnected, TargetCreated, TargetChanged, TargetDestroyed
	// carry *Target (Closed/Disconnected carry nil).
	Closed          *EventList
	Disconnected    *EventList
	TargetCreated   *EventList
	TargetChanged   *EventList
	TargetDestroyed *EventList
}

// NewBrowser wraps an already-dialed Transport with the browser-wide
// actor: target discovery, session routing, and the events built on top
// of them. Call Start to begin the read loop.
func NewBrowser(transport Transport, opts ...BrowserOption) *Browser {
	b := &Browser{
		transport:       transport,
		logger:          NewNopLogger(),
		sessions:        make(map[target.SessionID]*Session),
		targets:         make(map[target.ID]*Target),
		Closed:          NewEventList(),
		Disconnected:    NewEventList(),
		TargetCreated:   NewEventList(),
		TargetChanged:   NewEventList(),
		TargetDestroyed: NewEventList(),
	}
	for _, o := range opts {
		o(b)
	}
	b.rootSession = newSession("", "", b.sendRaw, b.logger)
	return b
}

// Start launches the browser's read loop and enables target discovery. It
// must be called once, before any navigation or page creation.
func (b *Browser) Start(ctx context.Context) error {
	b.rootSession.On(cdproto.EventTargetTargetCreated).Add(b.onTargetCreated)
	b.rootSession.On(cdproto.EventTargetTargetInfoChanged).Add(b.onTargetInfoChanged)
	b.rootSession.On(cdproto.EventTargetTargetDestroyed).Add(b.onTargetDestroyed)
	b.rootSession.On(cdproto.EventTargetReceivedMessageFromTarget).Add(b.onReceivedMessageFromTarget)

	go b.readLoop(ctx)

	return target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, b.rootSession))
}

func (b *Browser) sendRaw(msg *cdproto.Message) error {
	return b.transport.Write(msg)
}

func (b *Browser) registerSession(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[s.ID()] = s
}

func (b *Browser) unregisterSession(id target.SessionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, id)
}

func (b *Browser) sessionByID(id target.SessionID) (*Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[id]
	return s, ok
}

// readLoop is the single long-lived task that decodes transport messages
// and hands them to the owning session's router. It is the only writer of
// session state driven by inbound traffic, matching the single-threaded
// cooperative model the rest of the core assumes.
func (b *Browser) readLoop(ctx context.Context) {
	defer b.handleDisconnect()

	for {
		msg, err := b.transport.Read()
		if err != nil {
			return
		}
		if atomic.LoadInt32(&b.closed) != 0 {
			// Close has already signalled shutdown; stop routing traffic
			// even though this message slipped in before the transport
			// actually tore down.
			return
		}

		sess := b.rootSession
		if msg.SessionID != "" {
			s, ok := b.sessionByID(msg.SessionID)
			if !ok {
				b.logger.Errorf("message for unknown session %q", msg.SessionID)
				continue
			}
			sess = s
		}

		switch {
		case msg.ID != 0 && msg.Method == "":
			sess.deliverReply(msg)
		case msg.Method != "":
			sess.dispatchEvent(ctx, msg)
		default:
			b.logger.Errorf("ignoring malformed message: %+v", msg)
		}
	}
}

func (b *Browser) handleDisconnect() {
	b.Disconnected.InvokeAsync(context.Background(), b.logger, b, nil)
}

func (b *Browser) onReceivedMessageFromTarget(ctx context.Context, _ interface{}, args interface{}) {
	// Flattened sessions (WithFlatten(true), used throughout this core)
	// deliver child-session traffic directly with a top-level sessionId,
	// so Target.receivedMessageFromTarget is not the normal path here. It
	// is still routed, for targets attached non-flat by an external tool
	// sharing this transport.
	ev, ok := args.(*target.EventReceivedMessageFromTarget)
	if !ok {
		return
	}
	sess, ok := b.sessionByID(ev.SessionID)
	if !ok {
		return
	}
	msg := new(cdproto.Message)
	if err := easyjson.Unmarshal([]byte(ev.Message), msg); err != nil {
		b.logger.Errorf("could not decode nested message: %v", err)
		return
	}
	if msg.ID != 0 && msg.Method == "" {
		sess.deliverReply(msg)
		return
	}
	sess.dispatchEvent(ctx, msg)
}

func (b *Browser) onTargetCreated(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*target.EventTargetCreated)
	if !ok {
		return
	}

	t := newTarget(b, ev.TargetInfo)

	b.mu.Lock()
	if _, exists := b.targets[t.id]; exists {
		b.logger.Errorf("target %s already present, overwriting", t.id)
	}
	b.targets[t.id] = t
	b.mu.Unlock()

	go func() {
		t.initialize(ctx)
		if usable, _ := t.WaitInit(ctx); usable {
			b.TargetCreated.InvokeAsync(ctx, b.logger, b, t)
		}
	}()
}

func (b *Browser) onTargetInfoChanged(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*target.EventTargetInfoChanged)
	if !ok {
		return
	}

	t, ok := b.targetByID(ev.TargetInfo.TargetID)
	if !ok {
		b.logger.Errorf("%v: %s", &InvalidTargetError{TargetID: string(ev.TargetInfo.TargetID), Op: "targetInfoChanged"}, ev.TargetInfo.TargetID)
		return
	}

	changed := t.URL() != ev.TargetInfo.URL
	t.setURL(ev.TargetInfo.URL)

	if usable, _ := t.WaitInit(ctx); usable && changed {
		b.TargetChanged.InvokeAsync(ctx, b.logger, b, t)
	}
}

func (b *Browser) onTargetDestroyed(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*target.EventTargetDestroyed)
	if !ok {
		return
	}

	t, ok := b.targetByID(ev.TargetID)
	if !ok {
		b.logger.Errorf("%v: %s", &InvalidTargetError{TargetID: string(ev.TargetID), Op: "targetDestroyed"}, ev.TargetID)
		return
	}

	b.mu.Lock()
	delete(b.targets, ev.TargetID)
	b.mu.Unlock()

	usable, _ := t.WaitInit(ctx)
	t.markDestroyed()
	if usable {
		b.TargetDestroyed.InvokeAsync(ctx, b.logger, b, t)
	}
}

func (b *Browser) targetByID(id target.ID) (*Target, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.targets[id]
	return t, ok
}

// NewPage creates a new page target and waits for it to initialize.
func (b *Browser) NewPage(ctx context.Context) (*Target, error) {
	id, err := target.CreateTarget("about:blank").Do(cdp.WithExecutor(ctx, b.rootSession))
	if err != nil {
		return nil, err
	}

	// targetCreated for this id may already have been processed by the
	// read loop by the time CreateTarget returns; either way the map will
	// have it shortly.
	var t *Target
	for t == nil {
		if got, ok := b.targetByID(id); ok {
			t = got
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	if usable, err := t.WaitInit(ctx); err != nil {
		return nil, err
	} else if !usable {
		return nil, &InvalidTargetError{TargetID: string(id), Op: "newPage"}
	}
	return t, nil
}

// Pages returns a snapshot of every currently initialized, usable Page
// target.
func (b *Browser) Pages() []*Target {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Target, 0, len(b.targets))
	for _, t := range b.targets {
		if t.Kind() != KindPage {
			continue
		}
		select {
		case <-t.initDone:
			if t.initUsable {
				out = append(out, t)
			}
		default:
		}
	}
	return out
}

// Targets returns a snapshot of every known target, regardless of kind or
// initialization state.
func (b *Browser) Targets() []*Target {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Target, 0, len(b.targets))
	for _, t := range b.targets {
		out = append(out, t)
	}
	return out
}

// AppMode reports whether the browser was constructed with WithAppMode(true).
func (b *Browser) AppMode() bool { return b.appMode }

// Version returns the browser's Browser.getVersion metadata.
func (b *Browser) Version(ctx context.Context) (protocolVersion, product, userAgent, jsVersion string, err error) {
	protocolVersion, product, _, userAgent, jsVersion, err = browser.GetVersion().Do(cdp.WithExecutor(ctx, b.rootSession))
	return
}

// Close idempotently shuts the browser down: stops the read loop, runs any
// configured close callback while the transport is still live, tears down
// the transport, and finally emits Closed.
func (b *Browser) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return nil
	}

	if b.onClose != nil {
		b.onClose()
	}

	err := b.transport.Close()

	b.Closed.InvokeSync(context.Background(), b.logger, b, nil)
	return err
}

// Disconnect terminates the transport without stopping the remote browser
// process, which continues running.
func (b *Browser) Disconnect() error {
	return b.transport.Close()
}
