package cdpcore

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/security"
)

// Page is the ergonomic handle for a Page-kind Target: navigation,
// top-level evaluation, and dialog/request event subscriptions, all
// wired onto the target's already-running FrameManager and
// NetworkManager.
type Page struct {
	target         *Target
	session        *Session
	frameManager   *FrameManager
	networkManager *NetworkManager

	// Dialog carries *Dialog. Request/Response/RequestFailed/
	// RequestFinished are the underlying NetworkManager lists, exposed
	// here so callers don't need to reach into Target.
	Dialog          *EventList
	Request         *EventList
	Response        *EventList
	RequestFailed   *EventList
	RequestFinished *EventList
}

// newPage wraps an initialized Page-kind Target. The target must already
// have completed initialization with initUsable true.
func newPage(t *Target) (*Page, error) {
	session, ok := t.Session()
	if !ok {
		return nil, &InvalidTargetError{TargetID: string(t.ID()), Op: "newPage"}
	}
	fm, _ := t.FrameManager()
	nm, _ := t.NetworkManager()

	p := &Page{
		target:          t,
		session:         session,
		frameManager:    fm,
		networkManager:  nm,
		Dialog:          NewEventList(),
		Request:         nm.Request,
		Response:        nm.Response,
		RequestFailed:   nm.RequestFailed,
		RequestFinished: nm.RequestFinished,
	}

	session.On(cdproto.EventPageJavascriptDialogOpening).Add(p.onDialogOpening)

	return p, nil
}

// MainFrame returns the page's top-level frame.
func (p *Page) MainFrame() (*Frame, bool) {
	return p.frameManager.MainFrame()
}

// Goto navigates the page's main frame to url and waits for the
// configured lifecycle milestones to settle.
func (p *Page) Goto(ctx context.Context, url string, opts ...NavigateOption) (*Response, error) {
	cfg := newNavigateConfig(opts...)

	frame, ok := p.MainFrame()
	if !ok {
		return nil, &InvalidTargetError{TargetID: string(p.target.ID()), Op: "goto"}
	}

	if cfg.bypassCSP {
		if err := p.SetBypassCSP(ctx, true); err != nil {
			return nil, err
		}
	}
	if cfg.ignoreCert {
		if err := p.SetIgnoreCertificateErrors(ctx, true); err != nil {
			return nil, err
		}
	}

	timeout := msToDuration(cfg.timeoutMS)
	watcher := newNavigationWatcher(p.frameManager, frame, cfg.waitUntil, timeout)

	_, _, errText, err := page.Navigate(url).Do(cdp.WithExecutor(ctx, p.session))
	if err != nil {
		watcher.Cancel()
		return nil, err
	}
	if errText != "" {
		watcher.Cancel()
		return nil, &NavigationError{URL: url, Reason: errText}
	}

	if err := watcher.Wait(ctx); err != nil {
		return nil, err
	}

	if resp, ok := p.lastNavigationResponse(frame); ok {
		return resp, nil
	}
	return nil, nil
}

// lastNavigationResponse finds the response attached to the frame's main
// document request, if NetworkManager still has it.
func (p *Page) lastNavigationResponse(frame *Frame) (*Response, bool) {
	for _, req := range p.networkManager.snapshotRequests() {
		if req.Frame() == frame && req.IsNavigationRequest() {
			if resp, ok := req.Response(); ok {
				return resp, true
			}
		}
	}
	return nil, false
}

// Reload reloads the page and waits for the configured lifecycle
// milestones to settle.
func (p *Page) Reload(ctx context.Context, opts ...NavigateOption) error {
	cfg := newNavigateConfig(opts...)

	frame, ok := p.MainFrame()
	if !ok {
		return &InvalidTargetError{TargetID: string(p.target.ID()), Op: "reload"}
	}

	timeout := msToDuration(cfg.timeoutMS)
	watcher := newNavigationWatcher(p.frameManager, frame, cfg.waitUntil, timeout)

	if err := page.Reload().Do(cdp.WithExecutor(ctx, p.session)); err != nil {
		watcher.Cancel()
		return err
	}
	return watcher.Wait(ctx)
}

// SetBypassCSP toggles Page.setBypassCSP for all subsequent navigations
// and script injections on this page.
func (p *Page) SetBypassCSP(ctx context.Context, enabled bool) error {
	return page.SetBypassCSP(enabled).Do(cdp.WithExecutor(ctx, p.session))
}

// SetIgnoreCertificateErrors toggles whether TLS certificate errors are
// ignored for all of this page's requests.
func (p *Page) SetIgnoreCertificateErrors(ctx context.Context, ignore bool) error {
	return security.SetIgnoreCertificateErrors(ignore).Do(cdp.WithExecutor(ctx, p.session))
}

// AddScriptTag injects content as a <script> element into the page's main
// frame's default execution context.
func (p *Page) AddScriptTag(ctx context.Context, content string) error {
	ec, ok := p.mainExecutionContext()
	if !ok {
		return ErrDetachedFrame
	}
	expr := fmt.Sprintf(`(() => {
		const s = document.createElement('script');
		s.text = %s;
		document.head.appendChild(s);
	})()`, jsStringLiteral(content))
	_, err := ec.Evaluate(ctx, expr)
	return err
}

// Evaluate runs expression in the page's main frame's default execution
// context.
func (p *Page) Evaluate(ctx context.Context, expression string) (*runtime.RemoteObject, error) {
	ec, ok := p.mainExecutionContext()
	if !ok {
		return nil, ErrDetachedFrame
	}
	return ec.Evaluate(ctx, expression)
}

func (p *Page) mainExecutionContext() (*ExecutionContext, bool) {
	frame, ok := p.MainFrame()
	if !ok {
		return nil, false
	}
	ec := frame.DefaultExecutionContext()
	if ec == nil {
		return nil, false
	}
	return ec, true
}

func (p *Page) onDialogOpening(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*page.EventJavascriptDialogOpening)
	if !ok {
		return
	}
	d := &Dialog{
		session:      p.session,
		kind:         string(ev.Type),
		message:      ev.Message,
		defaultValue: ev.DefaultPrompt,
	}
	p.Dialog.InvokeAsync(ctx, p.target.browser.logger, p, d)
}

func msToDuration(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// jsStringLiteral produces a double-quoted JS string literal for s,
// escaping the characters that would otherwise break out of it.
func jsStringLiteral(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		default:
			out = append(out, c)
		}
	}
	out = append(out, '"')
	return string(out)
}
