package cdpcore

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

// Credentials are offered in response to an HTTP auth challenge raised by
// an intercepted request.
type Credentials struct {
	Username string
	Password string
}

// NetworkManager mirrors one target's network activity: it correlates the
// multi-stage requestWillBeSent/requestIntercepted/responseReceived event
// sequence into Request/Response pairs, drives request interception
// (including HTTP auth), and tracks redirect chains.
type NetworkManager struct {
	session      *Session
	frameManager *FrameManager
	logger       *Logger

	mu sync.Mutex

	requestIDToRequest      map[network.RequestID]*Request
	interceptionIDToRequest map[network.InterceptionID]*Request

	requestHashToRequestIDs      *MultiMap[string, network.RequestID]
	requestHashToInterceptionIDs *MultiMap[string, network.InterceptionID]

	attemptedAuthentications map[network.InterceptionID]struct{}

	userInterceptionEnabled     bool
	protocolInterceptionEnabled bool
	offline                     bool
	extraHeaders                network.Headers
	credentials                 *Credentials

	// Request/Response/RequestFailed/RequestFinished carry *Request (or, for
	// Response, the *Request whose Response was just attached).
	Request         *EventList
	Response        *EventList
	RequestFailed   *EventList
	RequestFinished *EventList
}

func newNetworkManager(session *Session, frameManager *FrameManager, logger *Logger) *NetworkManager {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &NetworkManager{
		session:                      session,
		frameManager:                 frameManager,
		logger:                       logger.With("component", "networkmanager"),
		requestIDToRequest:           make(map[network.RequestID]*Request),
		interceptionIDToRequest:      make(map[network.InterceptionID]*Request),
		requestHashToRequestIDs:      NewMultiMap[string, network.RequestID](),
		requestHashToInterceptionIDs: NewMultiMap[string, network.InterceptionID](),
		attemptedAuthentications:     make(map[network.InterceptionID]struct{}),
		Request:                      NewEventList(),
		Response:                     NewEventList(),
		RequestFailed:                NewEventList(),
		RequestFinished:              NewEventList(),
	}
}

func (m *NetworkManager) start(ctx context.Context) error {
	m.session.On(cdproto.EventNetworkRequestWillBeSent).Add(m.onRequestWillBeSent)
	m.session.On(cdproto.EventNetworkRequestServedFromCache).Add(m.onRequestServedFromCache)
	m.session.On(cdproto.EventNetworkResponseReceived).Add(m.onResponseReceived)
	m.session.On(cdproto.EventNetworkLoadingFinished).Add(m.onLoadingFinished)
	m.session.On(cdproto.EventNetworkLoadingFailed).Add(m.onLoadingFailed)
	m.session.On(cdproto.EventNetworkRequestIntercepted).Add(m.onRequestIntercepted)

	return network.Enable().Do(cdp.WithExecutor(ctx, m.session))
}

// SetOffline toggles Network.emulateNetworkConditions' offline flag.
func (m *NetworkManager) SetOffline(ctx context.Context, offline bool) error {
	m.mu.Lock()
	m.offline = offline
	m.mu.Unlock()

	return network.EmulateNetworkConditions(offline, 0, -1, -1).Do(cdp.WithExecutor(ctx, m.session))
}

// SetExtraHTTPHeaders installs headers to be merged into every outgoing
// request. Header names are lower-cased on ingress, matching the protocol
// convention.
func (m *NetworkManager) SetExtraHTTPHeaders(ctx context.Context, headers map[string]string) error {
	lowered := make(network.Headers, len(headers))
	for k, v := range headers {
		lowered[lowerASCII(k)] = v
	}
	m.mu.Lock()
	m.extraHeaders = lowered
	m.mu.Unlock()
	return network.SetExtraHTTPHeaders(lowered).Do(cdp.WithExecutor(ctx, m.session))
}

// SetUserAgentOverride overrides the User-Agent header for the target.
func (m *NetworkManager) SetUserAgentOverride(ctx context.Context, ua string) error {
	return network.SetUserAgentOverride(ua).Do(cdp.WithExecutor(ctx, m.session))
}

// SetCredentials installs (or clears, if nil) HTTP auth credentials to
// offer automatically when a request is challenged, and recomputes whether
// protocol-level interception must be enabled.
func (m *NetworkManager) SetCredentials(ctx context.Context, creds *Credentials) error {
	m.mu.Lock()
	m.credentials = creds
	m.mu.Unlock()
	return m.updateProtocolRequestInterception(ctx)
}

// SetRequestInterception toggles user-level interception. Calling it twice
// with the same value issues exactly one protocol toggle.
func (m *NetworkManager) SetRequestInterception(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	m.userInterceptionEnabled = enabled
	m.mu.Unlock()
	return m.updateProtocolRequestInterception(ctx)
}

func (m *NetworkManager) updateProtocolRequestInterception(ctx context.Context) error {
	m.mu.Lock()
	effective := m.userInterceptionEnabled || m.credentials != nil
	if effective == m.protocolInterceptionEnabled {
		m.mu.Unlock()
		return nil
	}
	m.protocolInterceptionEnabled = effective
	m.mu.Unlock()

	if err := network.SetCacheDisabled(effective).Do(cdp.WithExecutor(ctx, m.session)); err != nil {
		return err
	}

	var patterns []*network.RequestPattern
	if effective {
		patterns = []*network.RequestPattern{{URLPattern: "*"}}
	}
	return network.SetRequestInterception(patterns).Do(cdp.WithExecutor(ctx, m.session))
}

func (m *NetworkManager) requestByID(id network.RequestID) (*Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requestIDToRequest[id]
	return r, ok
}

// snapshotRequests returns every request currently tracked by id, in no
// particular order. Callers must treat it as a point-in-time snapshot.
func (m *NetworkManager) snapshotRequests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, 0, len(m.requestIDToRequest))
	for _, r := range m.requestIDToRequest {
		out = append(out, r)
	}
	return out
}

func requestHash(method, url, postData string) string {
	return method + ":" + url + ":" + postData
}

func (m *NetworkManager) onRequestWillBeSent(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*network.EventRequestWillBeSent)
	if !ok {
		return
	}

	m.mu.Lock()
	interceptionEnabled := m.protocolInterceptionEnabled
	m.mu.Unlock()

	if interceptionEnabled && ev.RedirectResponse == nil {
		hash := requestHash(ev.Request.Method, ev.Request.URL, ev.Request.PostData)
		if interceptionID, ok := m.requestHashToInterceptionIDs.DeleteFirst(hash); ok {
			m.onRequestCorrelated(ctx, ev, interceptionID)
			return
		}
		m.requestHashToRequestIDs.Add(hash, ev.RequestID)
	}

	var chain []*Request
	if ev.RedirectResponse != nil {
		chain = m.handleRequestRedirect(ctx, ev.RequestID, ev.RedirectResponse)
	}
	m.startRequest(ctx, ev.RequestID, "", ev, chain)
}

// onRequestCorrelated finishes pairing a requestWillBeSent with an
// already-seen requestIntercepted for the same content hash.
func (m *NetworkManager) onRequestCorrelated(ctx context.Context, ev *network.EventRequestWillBeSent, interceptionID network.InterceptionID) {
	var chain []*Request
	if ev.RedirectResponse != nil {
		chain = m.handleRequestRedirect(ctx, ev.RequestID, ev.RedirectResponse)
	}
	m.startRequest(ctx, ev.RequestID, interceptionID, ev, chain)
}

func (m *NetworkManager) startRequest(ctx context.Context, requestID network.RequestID, interceptionID network.InterceptionID, ev *network.EventRequestWillBeSent, redirectChain []*Request) {
	var frame *Frame
	if f, ok := m.frameManager.Frame(ev.FrameID); ok {
		frame = f
	}

	m.mu.Lock()
	userEnabled := m.userInterceptionEnabled
	m.mu.Unlock()

	req := newRequest(frame, userEnabled, redirectChain)
	req.setIDs(requestID, interceptionID)
	req.setMeta(ev.Request.URL, ev.Type, ev.Request.Method, ev.Request.Headers, ev.Request.PostData, ev.Type == network.ResourceTypeDocument)

	m.mu.Lock()
	if requestID != "" {
		m.requestIDToRequest[requestID] = req
	}
	if interceptionID != "" {
		m.interceptionIDToRequest[interceptionID] = req
	}
	m.mu.Unlock()

	m.Request.InvokeAsync(ctx, m.logger, m, req)
}

// handleRequestRedirect finalizes the prior hop of a redirect: attaches its
// response, permanently fails its body signal, removes it from the id
// maps, and emits Response then RequestFinished for it. It returns the
// redirect chain the next hop should carry: the prior hop's own chain with
// itself appended, shared by reference across every hop of one navigation.
func (m *NetworkManager) handleRequestRedirect(ctx context.Context, requestID network.RequestID, redirect *network.Response) []*Request {
	req, ok := m.requestByID(requestID)
	if !ok {
		return nil
	}

	resp := newResponse(redirect.Status, redirect.StatusText, redirect.Headers, redirect.FromDiskCache, redirect.FromServiceWorker, redirect.SecurityDetails)
	resp.failBody(ErrBodyUnavailable)
	req.setResponse(resp)

	m.mu.Lock()
	delete(m.requestIDToRequest, req.RequestID())
	delete(m.interceptionIDToRequest, req.InterceptionID())
	m.mu.Unlock()

	m.Response.InvokeAsync(ctx, m.logger, m, req)
	m.RequestFinished.InvokeAsync(ctx, m.logger, m, req)

	return append(req.RedirectChain(), req)
}

func (m *NetworkManager) onRequestIntercepted(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*network.EventRequestIntercepted)
	if !ok {
		return
	}

	if ev.AuthChallenge != nil {
		m.handleAuthChallenge(ctx, ev)
		return
	}

	if ev.RedirectURL != "" {
		m.continueInterceptedRequest(ctx, ev.InterceptionID, nil)
		return
	}

	hash := requestHash(ev.Request.Method, ev.Request.URL, ev.Request.PostData)
	if requestID, ok := m.requestHashToRequestIDs.DeleteFirst(hash); ok {
		m.mu.Lock()
		req, exists := m.requestIDToRequest[requestID]
		m.mu.Unlock()
		if exists {
			req.setIDs(requestID, ev.InterceptionID)
			m.mu.Lock()
			m.interceptionIDToRequest[ev.InterceptionID] = req
			m.mu.Unlock()
			return
		}
	}
	m.requestHashToInterceptionIDs.Add(hash, ev.InterceptionID)
}

func (m *NetworkManager) handleAuthChallenge(ctx context.Context, ev *network.EventRequestIntercepted) {
	m.mu.Lock()
	_, alreadyAttempted := m.attemptedAuthentications[ev.InterceptionID]
	creds := m.credentials
	m.mu.Unlock()

	resp := &network.AuthChallengeResponse{Response: network.AuthChallengeResponseResponseDefault}
	switch {
	case alreadyAttempted:
		resp.Response = network.AuthChallengeResponseResponseCancelAuth
	case creds != nil:
		resp.Response = network.AuthChallengeResponseResponseProvideCredentials
		resp.Username = creds.Username
		resp.Password = creds.Password
		m.mu.Lock()
		m.attemptedAuthentications[ev.InterceptionID] = struct{}{}
		m.mu.Unlock()
	}

	params := network.ContinueInterceptedRequest(ev.InterceptionID).WithAuthChallengeResponse(resp)
	if err := params.Do(cdp.WithExecutor(ctx, m.session)); err != nil {
		m.logger.Errorf("continueInterceptedRequest (auth) for %s: %v", ev.InterceptionID, err)
	}
}

func (m *NetworkManager) continueInterceptedRequest(ctx context.Context, id network.InterceptionID, opts *network.ContinueInterceptedRequestParams) {
	params := opts
	if params == nil {
		params = network.ContinueInterceptedRequest(id)
	}
	if err := params.Do(cdp.WithExecutor(ctx, m.session)); err != nil {
		m.logger.Errorf("continueInterceptedRequest for %s: %v", id, err)
	}
}

func (m *NetworkManager) onRequestServedFromCache(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*network.EventRequestServedFromCache)
	if !ok {
		return
	}
	if req, ok := m.requestByID(ev.RequestID); ok {
		req.markFromMemoryCache()
	}
}

func (m *NetworkManager) onResponseReceived(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*network.EventResponseReceived)
	if !ok {
		return
	}
	req, ok := m.requestByID(ev.RequestID)
	if !ok {
		return
	}
	resp := newResponse(ev.Response.Status, ev.Response.StatusText, ev.Response.Headers, ev.Response.FromDiskCache, ev.Response.FromServiceWorker, ev.Response.SecurityDetails)
	req.setResponse(resp)
	m.Response.InvokeAsync(ctx, m.logger, m, req)
}

func (m *NetworkManager) onLoadingFinished(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*network.EventLoadingFinished)
	if !ok {
		return
	}
	req, ok := m.requestByID(ev.RequestID)
	if !ok {
		return
	}
	m.mu.Lock()
	delete(m.requestIDToRequest, req.RequestID())
	delete(m.interceptionIDToRequest, req.InterceptionID())
	m.mu.Unlock()
	m.RequestFinished.InvokeAsync(ctx, m.logger, m, req)
}

func (m *NetworkManager) onLoadingFailed(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*network.EventLoadingFailed)
	if !ok {
		return
	}
	req, ok := m.requestByID(ev.RequestID)
	if !ok {
		return
	}
	req.setFailure(ev.ErrorText)
	m.mu.Lock()
	delete(m.requestIDToRequest, req.RequestID())
	delete(m.interceptionIDToRequest, req.InterceptionID())
	m.mu.Unlock()
	m.RequestFailed.InvokeAsync(ctx, m.logger, m, req)
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
