package cdpcore

import "fmt"

// Error is a cdpcore sentinel error.
type Error string

// Error satisfies the error interface.
func (err Error) Error() string {
	return string(err)
}

// Sentinel errors not carrying extra state.
const (
	// ErrInvalidWebsocketMessage names a websocket frame that is not a text
	// message. wsTransport.Read does not return it; a non-text frame
	// surfaces as the error reported by wsutil.
	ErrInvalidWebsocketMessage Error = "invalid websocket message"

	// ErrChannelClosed is matched, via errors.Is, by the *TargetClosedError a
	// pending Session.Send caller receives when its result channel is closed
	// without a reply (the session tore down).
	ErrChannelClosed Error = "channel closed"

	// ErrInvalidContext names an operation attempted without a properly
	// constructed Browser/Context value. No function in this package
	// returns it.
	ErrInvalidContext Error = "invalid context"

	// ErrBodyUnavailable is returned from Response.Body for a response that
	// was superseded by a redirect; its body was never retrievable.
	ErrBodyUnavailable Error = "response body unavailable: redirected"

	// ErrDetachedFrame is returned when an operation targets a frame that
	// has already been detached from the tree.
	ErrDetachedFrame Error = "frame is detached"

	// ErrExecutionContextDestroyed is returned when an evaluate call's
	// execution context was torn down mid-flight.
	ErrExecutionContextDestroyed Error = "execution context was destroyed"

	// ErrAlreadyClosed names a browser that has already been closed.
	// Browser.Close does not return it: a second Close is a no-op returning
	// nil.
	ErrAlreadyClosed Error = "browser already closed"
)

// ProtocolError wraps a Chrome DevTools Protocol error reply. Code and
// Message are as reported by the browser for a command that failed.
type ProtocolError struct {
	Code    int64
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

// TargetClosedError is returned for any pending operation whose session or
// transport was closed before a reply arrived.
type TargetClosedError struct {
	// Reason is a human-readable description of why the target closed, when
	// known (e.g. "detached", "browser closed").
	Reason string
}

func (e *TargetClosedError) Error() string {
	if e.Reason == "" {
		return "target closed"
	}
	return fmt.Sprintf("target closed: %s", e.Reason)
}

// Is reports that TargetClosedError matches ErrChannelClosed for callers
// that only care "did my send fail because the thing went away".
func (e *TargetClosedError) Is(target error) bool {
	return target == ErrChannelClosed
}

// InvalidTargetError signals a violated invariant on the target map: a
// targetInfoChanged or targetDestroyed event referenced an id the Browser
// never saw targetCreated for. It marks a bug, not a recoverable condition.
// The Browser's targetInfoChanged/targetDestroyed handlers log it and
// ignore the event; it is not propagated to any caller.
type InvalidTargetError struct {
	TargetID string
	Op       string
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid target %q for operation %q: target not tracked", e.TargetID, e.Op)
}

// NavigationTimeoutError is returned by a NavigationWatcher whose timeout
// budget elapsed before the expected lifecycle events were observed.
type NavigationTimeoutError struct {
	FrameID string
	Timeout string
}

func (e *NavigationTimeoutError) Error() string {
	return fmt.Sprintf("navigation timeout after %s waiting on frame %s", e.Timeout, e.FrameID)
}

// NavigationError wraps a navigation failure surfaced by the protocol
// itself (a net error, an aborted load) rather than by a timeout.
type NavigationError struct {
	URL    string
	Reason string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %q failed: %s", e.URL, e.Reason)
}
