package cdpcore

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
)

// lifecycleEvents is the set of protocol lifecycle names a Frame tracks.
// Order doesn't matter; membership does.
type lifecycleEvents map[string]struct{}

func (s lifecycleEvents) has(name string) bool {
	_, ok := s[name]
	return ok
}

// Frame is a leaf node of one target's frame tree. It holds its completed
// lifecycle-event set, current loader id, and default execution context.
// Frame never owns its parent: the parent link is an id resolved through
// the owning FrameManager, never a direct pointer, so the tree can be
// mutated without creating reference cycles.
type Frame struct {
	mu sync.RWMutex

	id       cdp.FrameID
	parentID cdp.FrameID // cdp.EmptyFrameID for the main frame
	manager  *FrameManager

	children []cdp.FrameID
	name     string
	url      string
	loaderID cdp.LoaderID

	lifecycle lifecycleEvents

	defaultContext   *ExecutionContext
	otherContexts    map[runtime.ExecutionContextID]*ExecutionContext
	detached         bool
}

func newFrame(manager *FrameManager, id, parentID cdp.FrameID) *Frame {
	return &Frame{
		id:            id,
		parentID:      parentID,
		manager:       manager,
		lifecycle:     make(lifecycleEvents),
		otherContexts: make(map[runtime.ExecutionContextID]*ExecutionContext),
	}
}

// ID returns the frame's protocol id.
func (f *Frame) ID() cdp.FrameID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.id
}

// IsMain reports whether this is the page's top-level frame.
func (f *Frame) IsMain() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.parentID == cdp.EmptyFrameID
}

// Parent returns the frame's parent, resolved through the owning manager,
// and false if this is the main frame or the parent has been detached.
func (f *Frame) Parent() (*Frame, bool) {
	f.mu.RLock()
	parentID := f.parentID
	f.mu.RUnlock()
	if parentID == cdp.EmptyFrameID {
		return nil, false
	}
	return f.manager.frameByID(parentID)
}

// Children returns the frame's current children, in attachment order.
func (f *Frame) Children() []*Frame {
	f.mu.RLock()
	ids := append([]cdp.FrameID(nil), f.children...)
	f.mu.RUnlock()

	out := make([]*Frame, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.manager.frameByID(id); ok {
			out = append(out, c)
		}
	}
	return out
}

// URL returns the frame's current document URL.
func (f *Frame) URL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.url
}

// Name returns the frame's name attribute, if any.
func (f *Frame) Name() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.name
}

// LoaderID returns the loader id of the frame's current document. It
// changes iff a new-document navigation committed in this frame.
func (f *Frame) LoaderID() cdp.LoaderID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loaderID
}

// HasLifecycleEvent reports whether name has been recorded since the last
// new-document navigation in this frame.
func (f *Frame) HasLifecycleEvent(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lifecycle.has(name)
}

// DefaultExecutionContext returns the frame's default-world execution
// context, or nil if none has been installed (e.g. before the first
// document in this frame finishes loading its main world).
func (f *Frame) DefaultExecutionContext() *ExecutionContext {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultContext
}

// IsDetached reports whether the frame has been removed from its manager's
// tree.
func (f *Frame) IsDetached() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.detached
}

func (f *Frame) addChild(id cdp.FrameID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.children {
		if c == id {
			return
		}
	}
	f.children = append(f.children, id)
}

func (f *Frame) removeChild(id cdp.FrameID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.children {
		if c == id {
			f.children = append(f.children[:i], f.children[i+1:]...)
			return
		}
	}
}

// clearChildren drops every recorded child id without resolving or
// detaching them; callers that need the latter should do so first via
// Children and detach each one explicitly.
func (f *Frame) clearChildren() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children = nil
}

// navigate applies a frameNavigated payload: url, name, and a reset
// lifecycle/loader id (a new document always clears prior lifecycle
// state).
func (f *Frame) navigate(url, name string, loaderID cdp.LoaderID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	f.name = name
	f.loaderID = loaderID
	f.lifecycle = make(lifecycleEvents)
	f.defaultContext = nil
}

// navigateWithinDocument updates only the url; loaderID and lifecycle are
// untouched since no new document was loaded.
func (f *Frame) navigateWithinDocument(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
}

// recordLifecycleEvent records name, clearing the set first if loaderID
// indicates a new document (a loader id mismatch against what the frame
// currently has recorded).
func (f *Frame) recordLifecycleEvent(loaderID cdp.LoaderID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if loaderID != "" && loaderID != f.loaderID {
		f.loaderID = loaderID
		f.lifecycle = make(lifecycleEvents)
	}
	f.lifecycle[name] = struct{}{}
}

func (f *Frame) setDetached() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = true
}

func (f *Frame) installContext(ctx *ExecutionContext, isDefault bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otherContexts[ctx.id] = ctx
	if isDefault {
		f.defaultContext = ctx
	}
}

func (f *Frame) removeContext(id runtime.ExecutionContextID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.otherContexts, id)
	if f.defaultContext != nil && f.defaultContext.id == id {
		f.defaultContext = nil
	}
}

func (f *Frame) clearContexts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otherContexts = make(map[runtime.ExecutionContextID]*ExecutionContext)
	f.defaultContext = nil
}

// ExecutionContext is a handle for one JavaScript world attached to a
// frame: the session it belongs to and the protocol context id used to
// scope Runtime.evaluate/Runtime.callFunctionOn calls to that world.
type ExecutionContext struct {
	id      runtime.ExecutionContextID
	session *Session
	frameID cdp.FrameID
}

// ID returns the protocol execution context id.
func (e *ExecutionContext) ID() runtime.ExecutionContextID { return e.id }

// FrameID returns the id of the frame this context is attached to.
func (e *ExecutionContext) FrameID() cdp.FrameID { return e.frameID }

// Evaluate runs expression in this context and returns the resulting
// remote object. A thrown JS exception is surfaced as an error, not via a
// nil *runtime.RemoteObject.
func (e *ExecutionContext) Evaluate(ctx context.Context, expression string) (*runtime.RemoteObject, error) {
	params := runtime.Evaluate(expression).WithContextID(e.id)
	obj, exc, err := params.Do(cdp.WithExecutor(ctx, e.session))
	if err != nil {
		if _, ok := err.(*ProtocolError); ok {
			return nil, ErrExecutionContextDestroyed
		}
		return nil, err
	}
	if exc != nil {
		return nil, exc
	}
	return obj, nil
}

// CallFunctionOn invokes functionDeclaration in this context with args
// marshaled as call arguments.
func (e *ExecutionContext) CallFunctionOn(ctx context.Context, functionDeclaration string, args ...*runtime.CallArgument) (*runtime.RemoteObject, error) {
	params := runtime.CallFunctionOn(functionDeclaration).
		WithExecutionContextID(e.id).
		WithArguments(args)
	obj, exc, err := params.Do(cdp.WithExecutor(ctx, e.session))
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, exc
	}
	return obj, nil
}
