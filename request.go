package cdpcore

import (
	"sync"

	"github.com/chromedp/cdproto/network"
)

// Request is one HTTP request as mirrored from the protocol. With
// interception enabled, its interception id stays empty until
// NetworkManager pairs its requestWillBeSent with a requestIntercepted of
// the same hash; the hash multi-maps hold the pending ids, never the
// Request itself.
type Request struct {
	mu sync.RWMutex

	requestID      network.RequestID
	interceptionID network.InterceptionID

	url          string
	resourceType network.ResourceType
	method       string
	headers      network.Headers
	postData     string
	isNavigation bool

	frame *Frame

	redirectChain []*Request

	response *Response
	failure  string

	fromMemoryCache         bool
	userInterceptionEnabled bool
}

func newRequest(frame *Frame, userInterceptionEnabled bool, redirectChain []*Request) *Request {
	return &Request{
		frame:                   frame,
		userInterceptionEnabled: userInterceptionEnabled,
		redirectChain:           redirectChain,
	}
}

// RequestID returns the protocol request id.
func (r *Request) RequestID() network.RequestID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.requestID
}

// InterceptionID returns the protocol interception id, or "" if the
// request is not (or no longer) paused for interception.
func (r *Request) InterceptionID() network.InterceptionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.interceptionID
}

// URL returns the request's target URL.
func (r *Request) URL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.url
}

// ResourceType returns the protocol-classified resource type (Document,
// Script, XHR, ...).
func (r *Request) ResourceType() network.ResourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resourceType
}

// Method returns the HTTP method.
func (r *Request) Method() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.method
}

// Headers returns the request headers as sent.
func (r *Request) Headers() network.Headers {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.headers
}

// PostData returns the request body, if any.
func (r *Request) PostData() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.postData
}

// IsNavigationRequest reports whether this request is the document request
// for a frame navigation.
func (r *Request) IsNavigationRequest() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isNavigation
}

// Frame returns the frame this request was made from.
func (r *Request) Frame() *Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frame
}

// RedirectChain returns the ordered list of prior requests that redirected
// to this one. The slice is shared by reference across every hop of one
// navigation and must not be mutated by callers.
func (r *Request) RedirectChain() []*Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.redirectChain
}

// Response returns the attached response, if the request has reached that
// stage.
func (r *Request) Response() (*Response, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.response == nil {
		return nil, false
	}
	return r.response, true
}

// Failure returns the recorded loadingFailed error text, if any.
func (r *Request) Failure() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failure, r.failure != ""
}

// FromMemoryCache reports whether the request was served from the
// renderer's in-memory cache (Network.requestServedFromCache).
func (r *Request) FromMemoryCache() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fromMemoryCache
}

func (r *Request) setIDs(requestID network.RequestID, interceptionID network.InterceptionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestID = requestID
	r.interceptionID = interceptionID
}

func (r *Request) setMeta(url string, resourceType network.ResourceType, method string, headers network.Headers, postData string, isNavigation bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.url = url
	r.resourceType = resourceType
	r.method = method
	r.headers = headers
	r.postData = postData
	r.isNavigation = isNavigation
}

func (r *Request) setResponse(resp *Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.response = resp
}

func (r *Request) setFailure(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure = text
}

func (r *Request) markFromMemoryCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fromMemoryCache = true
}

// Response is one HTTP response as mirrored from the protocol. bodyErr, if
// set, is the permanent failure a caller attempting to read the body
// should observe instead of fetching it: redirect responses are never
// retrievable and are failed eagerly with ErrBodyUnavailable.
type Response struct {
	mu sync.RWMutex

	status           int64
	statusText       string
	headers          network.Headers
	fromDiskCache    bool
	fromServiceWorker bool
	securityDetails  *network.SecurityDetails

	bodyErr error
}

func newResponse(status int64, statusText string, headers network.Headers, fromDiskCache, fromServiceWorker bool, sd *network.SecurityDetails) *Response {
	return &Response{
		status:            status,
		statusText:        statusText,
		headers:           headers,
		fromDiskCache:     fromDiskCache,
		fromServiceWorker: fromServiceWorker,
		securityDetails:   sd,
	}
}

// Status returns the HTTP status code.
func (r *Response) Status() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// StatusText returns the HTTP status line's reason phrase.
func (r *Response) StatusText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statusText
}

// Headers returns the response headers.
func (r *Response) Headers() network.Headers {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.headers
}

// FromDiskCache reports whether the response came from the disk cache.
func (r *Response) FromDiskCache() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fromDiskCache
}

// FromServiceWorker reports whether the response was produced by a
// service worker rather than the network.
func (r *Response) FromServiceWorker() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fromServiceWorker
}

// SecurityDetails returns TLS details for the response, or nil for
// plaintext responses.
func (r *Response) SecurityDetails() *network.SecurityDetails {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.securityDetails
}

// Body returns an error unless a retrievable body is supported; this core
// never fetches bodies itself (out of scope), so it always reports
// ErrBodyUnavailable unless failRedirect has permanently failed it with a
// more specific reason, which is the same sentinel.
func (r *Response) Body() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.bodyErr != nil {
		return nil, r.bodyErr
	}
	return nil, ErrBodyUnavailable
}

func (r *Response) failBody(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodyErr = err
}
