package cdpcore

// BrowserOption configures a Browser at construction time.
type BrowserOption func(*Browser)

// WithLogger installs a *Logger the browser and everything it constructs
// (sessions, frame managers, network managers) log through. The default
// is a no-op logger.
func WithLogger(l *Logger) BrowserOption {
	return func(b *Browser) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithCloseCallback installs a func run once, synchronously, during Close
// after the read loop has stopped but before the transport is torn down.
func WithCloseCallback(fn func()) BrowserOption {
	return func(b *Browser) { b.onClose = fn }
}

// WithDefaultViewport sets the viewport applied to every Page the browser
// creates via Target.Page. A zero width or height leaves the browser's
// own default viewport in place.
func WithDefaultViewport(width, height int64) BrowserOption {
	return func(b *Browser) {
		b.defaultViewport = &DefaultViewport{Width: width, Height: height}
	}
}

// WithIgnoreHTTPSErrorsBrowser accepts invalid/self-signed TLS certificates
// for every request the browser makes, for the lifetime of every page it
// creates (Target.initialize applies it per-session). Unlike
// WithIgnoreHTTPSErrors, which scopes to a single navigation, this is a
// browser-wide default.
func WithIgnoreHTTPSErrorsBrowser() BrowserOption {
	return func(b *Browser) { b.ignoreHTTPSErrors = true }
}

// WithAppMode records that the browser was launched in app mode (no
// surrounding browser chrome). This core does not launch processes, so the
// flag is informational only: it is surfaced back through AppMode for a
// caller's own bookkeeping, and never changes protocol behavior.
func WithAppMode(enabled bool) BrowserOption {
	return func(b *Browser) { b.appMode = enabled }
}

// NavigateOption configures a single Page.navigate call.
type NavigateOption func(*navigateConfig)

type navigateConfig struct {
	waitUntil  []WaitUntil
	timeoutMS  uint32
	bypassCSP  bool
	ignoreCert bool
}

func newNavigateConfig(opts ...NavigateOption) *navigateConfig {
	cfg := &navigateConfig{waitUntil: []WaitUntil{WaitLoad}}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// WithWaitUntil sets the lifecycle milestones a navigation waits for
// before it is considered settled. Default is {WaitLoad}.
func WithWaitUntil(w ...WaitUntil) NavigateOption {
	return func(c *navigateConfig) { c.waitUntil = w }
}

// WithNavigateTimeout sets the navigation timeout in milliseconds. 0
// means wait forever.
func WithNavigateTimeout(ms uint32) NavigateOption {
	return func(c *navigateConfig) { c.timeoutMS = ms }
}

// WithBypassCSP enables Page.setBypassCSP before the navigation commits.
func WithBypassCSP() NavigateOption {
	return func(c *navigateConfig) { c.bypassCSP = true }
}

// WithIgnoreHTTPSErrors accepts invalid/self-signed certificates for this
// navigation's requests.
func WithIgnoreHTTPSErrors() NavigateOption {
	return func(c *navigateConfig) { c.ignoreCert = true }
}
