package cdpcore

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

// Transport is the bidirectional channel carrying decoded protocol
// messages, consumed by Browser. Framing (websocket or otherwise) is
// assumed to live below this interface; the core only needs Read, Write,
// and Close.
type Transport interface {
	// Read blocks for the next inbound message (a reply or an event).
	Read() (*cdproto.Message, error)
	// Write sends an outbound message (always a command).
	Write(*cdproto.Message) error
	io.Closer
}

// wsTransport is the default Transport, built on gobwas/ws. It is a thin
// adapter: framing and the JSON-over-websocket wire format are handled
// here so that everything above Session deals only in *cdproto.Message.
type wsTransport struct {
	conn io.ReadWriteCloser
}

// DialTransport dials a Chrome DevTools Protocol websocket endpoint (the
// browser's webSocketDebuggerUrl) and returns a Transport
// reading/writing cdproto.Message values over it. urlstr is resolved first
// via ResolveWSEndpoint, so callers may pass either a bare
// "ws://host:port/devtools/browser/..." endpoint or an "http://host:port/"
// (or "ws://host:port/") base address to have the browser's debugger
// endpoint looked up for them.
func DialTransport(ctx context.Context, urlstr string) (Transport, error) {
	resolved, err := ResolveWSEndpoint(ctx, urlstr)
	if err != nil {
		return nil, err
	}
	conn, _, _, err := ws.Dial(ctx, resolved)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

// ResolveWSEndpoint resolves urlstr to a concrete websocket debugger
// endpoint. If urlstr already names one (it contains "/devtools/browser/"),
// only the host is normalized to an IP address, since Chrome rejects
// Host headers that are neither an IP address nor "localhost". Otherwise
// urlstr is treated as a browser's base address, and its
// "/json/version" endpoint is queried for the webSocketDebuggerUrl.
func ResolveWSEndpoint(ctx context.Context, urlstr string) (string, error) {
	lctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if strings.Contains(urlstr, "/devtools/browser/") {
		return forceIP(lctx, urlstr)
	}

	u, err := url.Parse(urlstr)
	if err != nil {
		return "", err
	}
	u.Scheme = "http"
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", err
	}
	host, err = resolveHost(lctx, host)
	if err != nil {
		return "", err
	}
	u.Host = net.JoinHostPort(host, port)
	u.Path = "/json/version"

	req, err := http.NewRequestWithContext(lctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.WebSocketDebuggerURL, nil
}

// forceIP rewrites the host component of a websocket debugger URL to an IP
// address, since Chrome 66+ rejects Host headers that aren't an IP address
// or "localhost".
func forceIP(ctx context.Context, urlstr string) (string, error) {
	u, err := url.Parse(urlstr)
	if err != nil {
		return "", err
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", err
	}
	host, err = resolveHost(ctx, host)
	if err != nil {
		return "", err
	}
	u.Host = net.JoinHostPort(host, port)
	return u.String(), nil
}

// resolveHost resolves host to an IP address, unless it already is one or
// is "localhost".
func resolveHost(ctx context.Context, host string) (string, error) {
	if host == "localhost" {
		return host, nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", err
	}
	return addrs[0].IP.String(), nil
}

// Read reads and decodes the next text frame as a cdproto.Message.
func (t *wsTransport) Read() (*cdproto.Message, error) {
	buf, err := wsutil.ReadServerText(t.conn)
	if err != nil {
		return nil, err
	}

	msg := new(cdproto.Message)
	lex := jlexer.Lexer{Data: buf}
	msg.UnmarshalEasyJSON(&lex)
	if err := lex.Error(); err != nil {
		return nil, err
	}
	// buf is reused by the caller on the next read; copy Result out of it.
	msg.Result = append([]byte{}, msg.Result...)
	return msg, nil
}

// Write encodes msg and sends it as a single text frame.
func (t *wsTransport) Write(msg *cdproto.Message) error {
	var w jwriter.Writer
	msg.MarshalEasyJSON(&w)
	if w.Error != nil {
		return w.Error
	}
	buf, err := w.BuildBytes()
	if err != nil {
		return err
	}
	return wsutil.WriteClientText(t.conn, buf)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
