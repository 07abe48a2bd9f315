// Package router implements the Stream Router (C6): the appliance-wide
// IDLE/PREVIEW/LIVE mode state machine. It is constructed once and
// dependency-injected into appliance.Handler (which calls Enter/Release for
// stream-control cues), following the teacher's guidance (and its own
// controller.go singleton) to model a process-wide singleton as an
// explicit, once-constructed application object rather than a package
// global.
package router

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vistterstream/vistterstream/internal/eventbus"
	"github.com/vistterstream/vistterstream/internal/logging"
	"github.com/vistterstream/vistterstream/internal/model"
	"github.com/vistterstream/vistterstream/internal/preview"
	"github.com/vistterstream/vistterstream/internal/timeline"
	"github.com/vistterstream/vistterstream/internal/watchdog"
)

// Mode is the appliance's current streaming mode.
type Mode int32

const (
	ModeIdle Mode = iota
	ModePreview
	ModeLive
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModePreview:
		return "preview"
	case ModeLive:
		return "live"
	default:
		return "unknown"
	}
}

// TimelineLookup resolves a timeline id to its definition, letting
// start_preview and go_live run the timeline the operator named without the
// router holding its own copy of the appliance's timeline store.
type TimelineLookup interface {
	Timeline(id string) (*model.Timeline, bool)
}

// Status is the point-in-time snapshot returned by the router's status()
// operation.
type Status struct {
	Mode         Mode
	TimelineID   string
	TimelineName string
	// PreviewURL is the HLS playback URL, set only in ModePreview.
	PreviewURL string
	// ServerHealthy reports the preview server's last-observed liveness.
	ServerHealthy bool
}

// Router holds the appliance's current mode and which execution, if any,
// owns it. Mode transitions are exclusive: entering Live or Preview while
// already in a non-Idle mode is rejected unless the caller owns the current
// occupant, enforcing single-active-mode per spec.
type Router struct {
	mode  int32 // atomic, holds Mode
	mu    sync.Mutex
	owner string // execution id currently occupying Preview/Live, empty in Idle
	log   *logging.Logger
	bus   *eventbus.Bus

	// The following are nil until Wire is called; start_preview/go_live/
	// stop return a clear error rather than panicking if used unwired.
	// Enter/Release/Mode/Owner (the lower-level exclusivity primitive cue
	// actions use mid-timeline) work without wiring.
	handler        timeline.CueHandler
	timelines      TimelineLookup
	positions      *eventbus.PositionStore
	previewAdapter *preview.Adapter
	watchdogMgr    *watchdog.Manager

	executor     *timeline.Executor
	timelineID   string
	timelineName string
}

// New constructs a Router in ModeIdle.
func New(log *logging.Logger, bus *eventbus.Bus) *Router {
	return &Router{log: log, bus: bus}
}

// Wire supplies the collaborators start_preview/go_live/stop/status need:
// the CueHandler every Executor they build dispatches cues to, the
// timeline store, the playback position store, the Preview Server Adapter,
// and the Watchdog Manager notified on go_live/stop. Called once during
// startup wiring, after the CueHandler implementation (which itself holds a
// *Router for HandleStreamControl) has been constructed — the two-step
// handshake that breaks the construction cycle between Router and Handler.
func (r *Router) Wire(handler timeline.CueHandler, timelines TimelineLookup, positions *eventbus.PositionStore, previewAdapter *preview.Adapter, watchdogMgr *watchdog.Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
	r.timelines = timelines
	r.positions = positions
	r.previewAdapter = previewAdapter
	r.watchdogMgr = watchdogMgr
}

// Mode returns the current mode.
func (r *Router) Mode() Mode {
	return Mode(atomic.LoadInt32(&r.mode))
}

// Owner returns the execution id currently occupying a non-idle mode, or ""
// in ModeIdle.
func (r *Router) Owner() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

// Enter transitions into mode on behalf of executionID. It fails if another
// execution already occupies a non-idle mode. This is the primitive
// StartPreview/GoLive/Stop build on, and is also used directly by
// mid-timeline stream_control cues that don't go through the router's own
// start_preview/go_live lifecycle.
func (r *Router) Enter(mode Mode, executionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enterLocked(mode, executionID)
}

func (r *Router) enterLocked(mode Mode, executionID string) error {
	current := Mode(atomic.LoadInt32(&r.mode))
	if current != ModeIdle && r.owner != executionID {
		return fmt.Errorf("router: cannot enter %s, execution %s already occupies %s", mode, r.owner, current)
	}

	atomic.StoreInt32(&r.mode, int32(mode))
	r.owner = executionID
	r.log.WithField("mode", mode.String()).WithField("execution_id", executionID).Info("router mode changed")
	return nil
}

// Release returns the router to ModeIdle if executionID is the current
// owner. Releasing when not the owner, or when already idle, is a no-op.
func (r *Router) Release(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked(executionID)
}

func (r *Router) releaseLocked(executionID string) {
	if r.owner != executionID {
		return
	}
	atomic.StoreInt32(&r.mode, int32(ModeIdle))
	r.owner = ""
	r.log.WithField("execution_id", executionID).Info("router released to idle")
}

// StartPreview requires ModeIdle. It consults the Preview Server Adapter's
// health before entering PREVIEW — per spec, an unhealthy preview server
// fails the call outright rather than entering a mode nothing can play
// back — loads the named timeline, and starts a Timeline Executor whose
// sole output is the preview adapter's publish URL.
func (r *Router) StartPreview(ctx context.Context, timelineID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireWired(); err != nil {
		return err
	}
	if Mode(atomic.LoadInt32(&r.mode)) != ModeIdle {
		return fmt.Errorf("router: start_preview requires idle, currently %s", Mode(atomic.LoadInt32(&r.mode)))
	}

	alive, err := r.previewAdapter.IsAlive(ctx)
	if err != nil {
		return fmt.Errorf("router: checking preview server health: %w", err)
	}
	if !alive {
		return fmt.Errorf("router: preview server is not healthy, refusing to start_preview")
	}

	tl, ok := r.timelines.Timeline(timelineID)
	if !ok {
		return fmt.Errorf("router: unknown timeline %s", timelineID)
	}

	executionID := "preview:" + timelineID
	execution := &model.Execution{
		ID:         executionID,
		TimelineID: timelineID,
		OutputURLs: []string{r.previewAdapter.PublishURL()},
	}

	exec := timeline.New(tl, execution, r.handler, r.positions, r.bus, r.log)
	if err := exec.Start(ctx); err != nil {
		return fmt.Errorf("router: starting preview executor: %w", err)
	}

	if err := r.enterLocked(ModePreview, executionID); err != nil {
		exec.Stop()
		return err
	}

	r.executor = exec
	r.timelineID = timelineID
	r.timelineName = tl.Name
	return nil
}

// GoLive requires ModePreview. It stops the preview executor (grace),
// resolves destinationIDs through the same execution-level Destinations
// the Handler already knows how to recut against, and restarts a fresh
// executor for the same timeline from time 0 — go-live never resumes a
// preview's in-flight position, a documented limitation, not an oversight.
// Once the new executor is running it notifies the Watchdog Manager.
func (r *Router) GoLive(ctx context.Context, destinationIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireWired(); err != nil {
		return err
	}
	if Mode(atomic.LoadInt32(&r.mode)) != ModePreview {
		return fmt.Errorf("router: go_live requires preview, currently %s", Mode(atomic.LoadInt32(&r.mode)))
	}

	tl, ok := r.timelines.Timeline(r.timelineID)
	if !ok {
		return fmt.Errorf("router: unknown timeline %s", r.timelineID)
	}

	if r.executor != nil {
		r.executor.Stop()
	}

	executionID := "live:" + r.timelineID
	execution := &model.Execution{
		ID:           executionID,
		TimelineID:   r.timelineID,
		Destinations: destinationIDs,
	}

	exec := timeline.New(tl, execution, r.handler, r.positions, r.bus, r.log)
	if err := exec.Start(ctx); err != nil {
		return fmt.Errorf("router: starting live executor: %w", err)
	}

	oldOwner := r.owner
	r.releaseLocked(oldOwner)
	if err := r.enterLocked(ModeLive, executionID); err != nil {
		exec.Stop()
		return err
	}
	r.executor = exec

	if r.watchdogMgr != nil {
		r.watchdogMgr.NotifyStreamStarted(destinationIDs, "exec:"+executionID)
	}
	return nil
}

// Stop is allowed from PREVIEW or LIVE: it stops the running executor,
// notifies the Watchdog Manager that the stream is gone, and returns the
// router to ModeIdle.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mode := Mode(atomic.LoadInt32(&r.mode))
	if mode == ModeIdle {
		return fmt.Errorf("router: stop requires preview or live, currently idle")
	}

	if r.executor != nil {
		r.executor.Stop()
		r.executor = nil
	}
	if mode == ModeLive && r.watchdogMgr != nil {
		r.watchdogMgr.NotifyStreamStopped("exec:" + r.owner)
	}

	r.releaseLocked(r.owner)
	r.timelineID = ""
	r.timelineName = ""
	return nil
}

// Status returns the router's current mode, active timeline, preview
// playback URL (only set in PREVIEW), and the preview server's
// last-observed health.
func (r *Router) Status(ctx context.Context) Status {
	r.mu.Lock()
	mode := Mode(atomic.LoadInt32(&r.mode))
	st := Status{
		Mode:         mode,
		TimelineID:   r.timelineID,
		TimelineName: r.timelineName,
	}
	if mode == ModePreview && r.previewAdapter != nil {
		st.PreviewURL = r.previewAdapter.PlaybackURL()
	}
	adapter := r.previewAdapter
	r.mu.Unlock()

	if adapter != nil {
		alive, err := adapter.IsAlive(ctx)
		st.ServerHealthy = err == nil && alive
	}
	return st
}

func (r *Router) requireWired() error {
	if r.handler == nil || r.timelines == nil || r.previewAdapter == nil {
		return fmt.Errorf("router: start_preview/go_live/stop require Wire to have been called")
	}
	return nil
}

// probeDebounce is unused by the router itself but documents the interval
// callers polling Status for a UI should not go below, since Status makes a
// live HTTP call to the preview server on every invocation.
const probeDebounce = 500 * time.Millisecond
