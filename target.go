package cdpcore

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/cdproto/target"
)

// TargetKind classifies what a Target represents. Only Page targets get a
// FrameManager and NetworkManager; the rest are tracked but otherwise
// inert from this core's point of view.
type TargetKind string

const (
	KindPage           TargetKind = "page"
	KindBackgroundPage TargetKind = "background_page"
	KindServiceWorker  TargetKind = "service_worker"
	KindBrowser        TargetKind = "browser"
	KindOther          TargetKind = "other"
)

func targetKindFromProtocol(t string) TargetKind {
	switch t {
	case "page":
		return KindPage
	case "background_page":
		return KindBackgroundPage
	case "service_worker":
		return KindServiceWorker
	case "browser":
		return KindBrowser
	default:
		return KindOther
	}
}

// Target is one thing in the browser a client can drive: a page, a
// worker, or the browser itself. It owns its Session once attached, and
// for page kinds, a FrameManager and NetworkManager built on top of it.
type Target struct {
	browser *Browser

	id       target.ID
	kind     TargetKind
	openerID target.ID

	mu  sync.RWMutex
	url string

	session        *Session
	frameManager   *FrameManager
	networkManager *NetworkManager

	page     *Page
	pageOnce sync.Once
	pageErr  error

	initDone   chan struct{}
	initOnce   sync.Once
	initUsable bool
	initErr    error

	closeDone chan struct{}
	closeOnce sync.Once
}

func newTarget(browser *Browser, info *target.Info) *Target {
	return &Target{
		browser:   browser,
		id:        info.TargetID,
		kind:      targetKindFromProtocol(info.Type),
		openerID:  info.OpenerID,
		url:       info.URL,
		initDone:  make(chan struct{}),
		closeDone: make(chan struct{}),
	}
}

// ID returns the target's protocol id.
func (t *Target) ID() target.ID { return t.id }

// Kind returns the target's classification.
func (t *Target) Kind() TargetKind { return t.kind }

// OpenerID returns the id of the target that opened this one, or "" if
// none.
func (t *Target) OpenerID() target.ID { return t.openerID }

// URL returns the target's current URL as last reported by the protocol.
func (t *Target) URL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.url
}

func (t *Target) setURL(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.url = url
}

// Session returns the target's attached protocol session, if
// initialization has completed successfully.
func (t *Target) Session() (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session, t.session != nil
}

// FrameManager returns the target's frame manager, for Page kinds only.
func (t *Target) FrameManager() (*FrameManager, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frameManager, t.frameManager != nil
}

// NetworkManager returns the target's network manager, for Page kinds
// only.
func (t *Target) NetworkManager() (*NetworkManager, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.networkManager, t.networkManager != nil
}

// WaitInit blocks until initialization resolves, returning whether the
// target turned out usable (false for kinds this core doesn't drive) and
// any error encountered while attaching.
func (t *Target) WaitInit(ctx context.Context) (bool, error) {
	select {
	case <-t.initDone:
		t.mu.RLock()
		defer t.mu.RUnlock()
		return t.initUsable, t.initErr
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Closed returns a channel that closes when the target is destroyed.
func (t *Target) Closed() <-chan struct{} { return t.closeDone }

// initialize attaches a flattened session to the target and, for Page
// kinds, brings up the FrameManager and NetworkManager. It resolves
// initDone exactly once, regardless of outcome.
func (t *Target) initialize(ctx context.Context) {
	defer t.initOnce.Do(func() { close(t.initDone) })

	if t.kind != KindPage {
		return
	}

	sessionID, err := target.AttachToTarget(t.id).WithFlatten(true).Do(cdp.WithExecutor(ctx, t.browser.rootSession))
	if err != nil {
		t.initErr = err
		return
	}

	sess := newSession(sessionID, t.id, t.browser.sendRaw, t.browser.logger)
	t.browser.registerSession(sess)

	fm := newFrameManager(sess, t.browser.logger)
	nm := newNetworkManager(sess, fm, t.browser.logger)

	if err := fm.start(ctx); err != nil {
		t.initErr = err
		return
	}
	if err := nm.start(ctx); err != nil {
		t.initErr = err
		return
	}
	if err := target.SetAutoAttach(true, true).WithFlatten(true).Do(cdp.WithExecutor(ctx, sess)); err != nil {
		t.initErr = err
		return
	}
	if t.browser.ignoreHTTPSErrors {
		if err := security.SetIgnoreCertificateErrors(true).Do(cdp.WithExecutor(ctx, sess)); err != nil {
			t.initErr = err
			return
		}
	}

	t.mu.Lock()
	t.session = sess
	t.frameManager = fm
	t.networkManager = nm
	t.mu.Unlock()

	t.initUsable = true
}

// Page returns the ergonomic Page handle for this target, constructing it
// on first call. It is only valid for Page-kind targets that have
// finished initialization; call WaitInit first.
func (t *Target) Page(ctx context.Context) (*Page, error) {
	t.pageOnce.Do(func() {
		p, err := newPage(t)
		if err != nil {
			t.pageErr = err
			return
		}
		if vp := t.browser.defaultViewport; vp != nil && vp.Width != 0 && vp.Height != 0 {
			if err := p.SetViewport(ctx, vp.Width, vp.Height); err != nil {
				t.browser.logger.Errorf("applying default viewport: %v", err)
			}
		}
		t.page = p
	})
	return t.page, t.pageErr
}

func (t *Target) markDestroyed() {
	if s, ok := t.Session(); ok {
		s.Detach("target destroyed")
		t.browser.unregisterSession(s.ID())
	}
	t.closeOnce.Do(func() { close(t.closeDone) })
}
