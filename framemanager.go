package cdpcore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"
)

// FrameManager mirrors one target's frame tree by subscribing to the
// Page and Runtime domains on its session. It is the single source of
// truth for frame identity, lifecycle state, and execution contexts for
// that target; NetworkManager and NavigationWatcher both consult it
// rather than tracking frame state themselves.
type FrameManager struct {
	session *Session
	logger  *Logger

	mu          sync.RWMutex
	frames      map[cdp.FrameID]*Frame
	mainFrameID cdp.FrameID

	// Public fanout: FrameAttached/FrameNavigated/FrameDetached/
	// NavigatedWithinDocument carry the affected *Frame as args;
	// LifecycleEvent carries *LifecycleEvent.
	FrameAttached           *EventList
	FrameNavigated          *EventList
	NavigatedWithinDocument *EventList
	FrameDetached           *EventList
	LifecycleEvent          *EventList
}

// LifecycleEvent is published on FrameManager.LifecycleEvent each time the
// browser reports a named lifecycle milestone (init, DOMContentLoaded,
// load, networkIdle, ...) for a frame.
type LifecycleEvent struct {
	Frame *Frame
	Name  string
}

func newFrameManager(session *Session, logger *Logger) *FrameManager {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &FrameManager{
		session:                 session,
		logger:                  logger.With("component", "framemanager"),
		frames:                  make(map[cdp.FrameID]*Frame),
		FrameAttached:           NewEventList(),
		FrameNavigated:          NewEventList(),
		NavigatedWithinDocument: NewEventList(),
		FrameDetached:           NewEventList(),
		LifecycleEvent:          NewEventList(),
	}
}

// start enables the Page and Runtime domains on the manager's session and
// wires the manager's handlers to their events. It also seeds the frame
// tree from Page.getFrameTree, since attach can race the domain's own
// historical events.
func (m *FrameManager) start(ctx context.Context) error {
	m.session.On(cdproto.EventPageFrameAttached).Add(m.onFrameAttached)
	m.session.On(cdproto.EventPageFrameNavigated).Add(m.onFrameNavigated)
	m.session.On(cdproto.EventPageFrameDetached).Add(m.onFrameDetached)
	m.session.On(cdproto.EventPageNavigatedWithinDocument).Add(m.onNavigatedWithinDocument)
	m.session.On(cdproto.EventPageLifecycleEvent).Add(m.onLifecycleEvent)
	m.session.On(cdproto.EventPageFrameStoppedLoading).Add(m.onFrameStoppedLoading)
	m.session.On(cdproto.EventRuntimeExecutionContextCreated).Add(m.onExecutionContextCreated)
	m.session.On(cdproto.EventRuntimeExecutionContextDestroyed).Add(m.onExecutionContextDestroyed)
	m.session.On(cdproto.EventRuntimeExecutionContextsCleared).Add(m.onExecutionContextsCleared)

	if err := page.Enable().Do(cdp.WithExecutor(ctx, m.session)); err != nil {
		return err
	}
	if err := page.SetLifecycleEventsEnabled(true).Do(cdp.WithExecutor(ctx, m.session)); err != nil {
		return err
	}
	if err := runtime.Enable().Do(cdp.WithExecutor(ctx, m.session)); err != nil {
		return err
	}

	tree, err := page.GetFrameTree().Do(cdp.WithExecutor(ctx, m.session))
	if err != nil {
		return err
	}
	m.seed(tree)
	return nil
}

func (m *FrameManager) seed(node *page.FrameTree) {
	m.addFrame(node.Frame, node.Frame.ParentID == "")
	for _, child := range node.ChildFrames {
		m.seed(child)
	}
}

func (m *FrameManager) addFrame(pf *page.Frame, isMain bool) *Frame {
	parentID := cdp.FrameID("")
	if pf.ParentID != "" {
		parentID = cdp.FrameID(pf.ParentID)
	}

	m.mu.Lock()
	f, ok := m.frames[pf.ID]
	if !ok {
		f = newFrame(m, pf.ID, parentID)
		m.frames[pf.ID] = f
	}
	if isMain {
		m.mainFrameID = pf.ID
	}
	m.mu.Unlock()

	f.navigate(pf.URL, pf.Name, pf.LoaderID)

	if parentID != "" {
		if parent, ok := m.frameByID(parentID); ok {
			parent.addChild(pf.ID)
		}
	}
	return f
}

// MainFrame returns the target's top-level frame. It returns false before
// the manager has completed its initial seed.
func (m *FrameManager) MainFrame() (*Frame, bool) {
	m.mu.RLock()
	id := m.mainFrameID
	m.mu.RUnlock()
	if id == "" {
		return nil, false
	}
	return m.frameByID(id)
}

// Frame returns the frame with the given id, if the manager knows of it.
func (m *FrameManager) Frame(id cdp.FrameID) (*Frame, bool) {
	return m.frameByID(id)
}

func (m *FrameManager) frameByID(id cdp.FrameID) (*Frame, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.frames[id]
	return f, ok
}

// Frames returns every frame currently attached to the target, in no
// particular order.
func (m *FrameManager) Frames() []*Frame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Frame, 0, len(m.frames))
	for _, f := range m.frames {
		out = append(out, f)
	}
	return out
}

func (m *FrameManager) onFrameAttached(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*page.EventFrameAttached)
	if !ok {
		return
	}
	m.mu.Lock()
	_, exists := m.frames[ev.FrameID]
	if !exists {
		m.frames[ev.FrameID] = newFrame(m, ev.FrameID, ev.ParentFrameID)
	}
	m.mu.Unlock()

	if parent, ok := m.frameByID(ev.ParentFrameID); ok {
		parent.addChild(ev.FrameID)
	}

	f, _ := m.frameByID(ev.FrameID)
	m.FrameAttached.InvokeAsync(ctx, m.logger, m, f)
}

func (m *FrameManager) onFrameNavigated(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*page.EventFrameNavigated)
	if !ok {
		return
	}
	isMain := ev.Frame.ParentID == ""

	if existing, ok := m.frameByID(ev.Frame.ID); ok {
		// The frame itself survives a same-id navigation; every child it
		// had before this navigation committed did not, so detach them
		// depth-first before applying the new frame state.
		m.detachChildren(ctx, existing)
	} else if isMain {
		// Cross-process main-frame navigation: the frame id changed. The
		// previous main frame's subtree is detached the same way, and its
		// old id is retired in favor of the new one addFrame is about to
		// create.
		m.mu.Lock()
		oldID := m.mainFrameID
		old, hadOld := m.frames[oldID]
		if hadOld && oldID != ev.Frame.ID {
			delete(m.frames, oldID)
		} else {
			hadOld = false
		}
		m.mu.Unlock()

		if hadOld {
			m.detachChildren(ctx, old)
		}
	}

	f := m.addFrame(ev.Frame, isMain)
	m.FrameNavigated.InvokeAsync(ctx, m.logger, m, f)
}

// detachChildren recursively detaches every child of f, depth-first,
// removing each from the tree and emitting FrameDetached exactly as
// onFrameDetached does for a protocol-originated detach. f itself is left
// in the tree; only its descendants are torn down.
func (m *FrameManager) detachChildren(ctx context.Context, f *Frame) {
	for _, child := range f.Children() {
		m.detachChildren(ctx, child)
		child.setDetached()

		m.mu.Lock()
		delete(m.frames, child.ID())
		m.mu.Unlock()

		m.FrameDetached.InvokeAsync(ctx, m.logger, m, child)
	}
	f.clearChildren()
}

func (m *FrameManager) onNavigatedWithinDocument(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*page.EventNavigatedWithinDocument)
	if !ok {
		return
	}
	f, ok := m.frameByID(ev.FrameID)
	if !ok {
		return
	}
	f.navigateWithinDocument(ev.URL)
	m.NavigatedWithinDocument.InvokeAsync(ctx, m.logger, m, f)
	m.FrameNavigated.InvokeAsync(ctx, m.logger, m, f)
}

func (m *FrameManager) onFrameDetached(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*page.EventFrameDetached)
	if !ok {
		return
	}
	f, ok := m.frameByID(ev.FrameID)
	if !ok {
		return
	}
	f.setDetached()

	if parent, ok := f.Parent(); ok {
		parent.removeChild(ev.FrameID)
	}

	// swap-navigation detaches keep the frame id alive under a new
	// navigation a moment later; remove-detaches drop it for good. Either
	// way the tree shouldn't keep serving a stale node from Frame/Frames.
	m.mu.Lock()
	delete(m.frames, ev.FrameID)
	m.mu.Unlock()

	m.FrameDetached.InvokeAsync(ctx, m.logger, m, f)
}

func (m *FrameManager) onLifecycleEvent(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*page.EventLifecycleEvent)
	if !ok {
		return
	}
	f, ok := m.frameByID(ev.FrameID)
	if !ok {
		return
	}
	f.recordLifecycleEvent(ev.LoaderID, ev.Name)
	m.LifecycleEvent.InvokeAsync(ctx, m.logger, m, &LifecycleEvent{Frame: f, Name: ev.Name})
}

func (m *FrameManager) onFrameStoppedLoading(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*page.EventFrameStoppedLoading)
	if !ok {
		return
	}
	f, ok := m.frameByID(ev.FrameID)
	if !ok {
		return
	}
	m.LifecycleEvent.InvokeAsync(ctx, m.logger, m, &LifecycleEvent{Frame: f, Name: "frameStoppedLoading"})
}

func (m *FrameManager) onExecutionContextCreated(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*runtime.EventExecutionContextCreated)
	if !ok {
		return
	}
	aux := ev.Context.AuxData
	frameID, isDefault := parseContextAux(aux)
	if frameID == "" {
		return
	}
	f, ok := m.frameByID(frameID)
	if !ok {
		return
	}
	ec := &ExecutionContext{id: ev.Context.ID, session: m.session, frameID: frameID}
	f.installContext(ec, isDefault)
}

func (m *FrameManager) onExecutionContextDestroyed(ctx context.Context, _ interface{}, args interface{}) {
	ev, ok := args.(*runtime.EventExecutionContextDestroyed)
	if !ok {
		return
	}
	for _, f := range m.Frames() {
		f.removeContext(ev.ExecutionContextID)
	}
}

func (m *FrameManager) onExecutionContextsCleared(ctx context.Context, _ interface{}, _ interface{}) {
	for _, f := range m.Frames() {
		f.clearContexts()
	}
}

// parseContextAux extracts the owning frame id and "is default world" bit
// out of an execution context's auxData payload, shaped like
// {"frameId": "...", "isDefault": true}. Non-default (isolated world,
// extension) contexts are tracked but never installed as a frame's
// default context.
func parseContextAux(aux easyjson.RawMessage) (cdp.FrameID, bool) {
	var v struct {
		FrameID   cdp.FrameID `json:"frameId"`
		IsDefault bool        `json:"isDefault"`
	}
	if len(aux) == 0 {
		return "", false
	}
	if err := json.Unmarshal(aux, &v); err != nil {
		return "", false
	}
	return v.FrameID, v.IsDefault
}
