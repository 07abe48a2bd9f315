// Package timeline implements the Timeline Executor (C5): one executor
// goroutine per running execution, dispatching the video track's cues
// sequentially against wall-clock-relative offsets while overlay tracks run
// concurrently, publishing playback position at least twice a second, and
// honoring loop semantics.
package timeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vistterstream/vistterstream/internal/eventbus"
	"github.com/vistterstream/vistterstream/internal/logging"
	"github.com/vistterstream/vistterstream/internal/model"
)

// positionPublishInterval is how often the executor publishes its current
// offset, comfortably above the required 2Hz floor.
const positionPublishInterval = 250 * time.Millisecond

// CueHandler performs the side effect of one cue: switching the live
// source, recalling a PTZ preset, displaying an asset, or issuing a stream
// control directive. The Executor dispatches to it by cue action type; the
// handler owns all component wiring (PTZ Controller, Compositor Builder,
// Stream Router) so this package stays free of cross-component imports.
type CueHandler interface {
	HandleShowCamera(ctx context.Context, execution *model.Execution, track *model.Track, a model.ShowCameraAction) error
	HandleShowAsset(ctx context.Context, execution *model.Execution, track *model.Track, a model.ShowAssetAction) error
	HandleStreamControl(ctx context.Context, execution *model.Execution, a model.StreamControlAction) error
}

// Executor runs one timeline's cues against one Execution until stopped or
// the timeline completes (non-looping) or is canceled.
type Executor struct {
	timeline  *model.Timeline
	execution *model.Execution
	handler   CueHandler
	positions *eventbus.PositionStore
	bus       *eventbus.Bus
	log       *logging.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	lastOffset time.Duration
	lastLoop   int
	loopCount  int32 // atomic, mirrors execution.LoopCount for race-free reads
}

// New constructs an Executor for one execution of timeline. New does not
// validate the timeline; Start runs model.ValidateTimeline before starting.
func New(tl *model.Timeline, execution *model.Execution, handler CueHandler, positions *eventbus.PositionStore, bus *eventbus.Bus, log *logging.Logger) *Executor {
	return &Executor{
		timeline:  tl,
		execution: execution,
		handler:   handler,
		positions: positions,
		bus:       bus,
		log:       log.WithField("execution_id", execution.ID),
		done:      make(chan struct{}),
	}
}

// Start begins running the timeline in a background goroutine and returns
// immediately. Run errors are surfaced through the Execution record
// (LastError/Status) and the execution.errored event, not a return value,
// since the caller has already moved on by the time a mid-run error occurs.
func (e *Executor) Start(ctx context.Context) error {
	if err := model.ValidateTimeline(e.timeline); err != nil {
		return fmt.Errorf("timeline: cannot start: %w", err)
	}
	video := e.timeline.VideoTrack()
	if video == nil {
		return fmt.Errorf("timeline: no video track")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.mu.Lock()
	e.execution.Status = model.ExecutionRunning
	e.execution.StartedAt = time.Now()
	e.mu.Unlock()
	e.bus.Publish(eventbus.TopicExecutionStarted, map[string]interface{}{"execution_id": e.execution.ID})

	go e.run(runCtx, video)
	return nil
}

// Stop cancels the running timeline and waits for its goroutine to exit.
func (e *Executor) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	<-e.done
}

// Status returns a point-in-time copy of the execution's mutable fields
// (Status, LoopCount, StartedAt, StoppedAt, LastError). The run() goroutine
// writes these under the same mutex, so concurrent readers — tests, the
// Stream Router's status() call — never observe a torn update.
func (e *Executor) Status() model.Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.execution
}

func (e *Executor) run(ctx context.Context, video *model.Track) {
	defer close(e.done)
	defer e.positions.Clear(e.execution.ID)

	var startMu sync.Mutex
	start := time.Now()
	getStart := func() time.Time {
		startMu.Lock()
		defer startMu.Unlock()
		return start
	}
	setStart := func(t time.Time) {
		startMu.Lock()
		start = t
		startMu.Unlock()
	}

	positionCtx, stopPositions := context.WithCancel(ctx)
	positionDone := e.startPositionPublisher(positionCtx, getStart)
	defer func() {
		stopPositions()
		<-positionDone
	}()

	overlays := e.timeline.OverlayTracks()
	overlayDone := e.startOverlays(ctx, overlays)

	videoIdx := 0
	for {
		if videoIdx >= len(video.Cues) {
			// A pass ends at the timeline's Duration (the end of its last
			// cue), not when the last cue is dispatched.
			select {
			case <-ctx.Done():
				e.finish(model.ExecutionStopped, "")
				<-overlayDone
				return
			case <-time.After(time.Until(getStart().Add(e.timeline.Duration()))):
			}
			if e.timeline.Loop {
				e.mu.Lock()
				e.execution.LoopCount++
				loopCount := e.execution.LoopCount
				e.mu.Unlock()
				atomic.StoreInt32(&e.loopCount, int32(loopCount))
				setStart(time.Now())
				videoIdx = 0
				continue
			}
			e.finish(model.ExecutionStopped, "")
			<-overlayDone
			return
		}

		cue := video.Cues[videoIdx]
		waitUntil := getStart().Add(cue.Offset)
		if d := time.Until(waitUntil); d > 0 {
			select {
			case <-ctx.Done():
				e.finish(model.ExecutionStopped, "")
				<-overlayDone
				return
			case <-time.After(d):
			}
		}

		e.bus.Publish(eventbus.TopicCueEntered, map[string]interface{}{
			"execution_id": e.execution.ID,
			"track":        "video",
			"cue_id":       cue.ID,
		})

		if err := e.dispatch(ctx, video, cue.Action); err != nil {
			e.log.WithError(err).Error("cue dispatch failed")
			e.finish(model.ExecutionErrored, err.Error())
			<-overlayDone
			return
		}

		videoIdx++
	}
}

// startOverlays runs every overlay track concurrently under one
// errgroup.Group so the first overlay error cancels its siblings —
// errgroup.WithContext gives first-error-wins cancellation directly, which
// a hand-rolled WaitGroup would need extra bookkeeping to replicate.
func (e *Executor) startOverlays(ctx context.Context, overlays []model.Track) <-chan struct{} {
	done := make(chan struct{})
	if len(overlays) == 0 {
		close(done)
		return done
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range overlays {
		tr := overlays[i]
		if !tr.Enabled {
			continue
		}
		g.Go(func() error {
			return e.runOverlayTrack(gctx, &tr)
		})
	}
	go func() {
		if err := g.Wait(); err != nil && gctx.Err() == nil {
			e.log.WithError(err).Warn("overlay track exited with error")
		}
		close(done)
	}()
	return done
}

func (e *Executor) runOverlayTrack(ctx context.Context, tr *model.Track) error {
	start := time.Now()
	for _, cue := range tr.Cues {
		waitUntil := start.Add(cue.Offset)
		if d := time.Until(waitUntil); d > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}
		e.bus.Publish(eventbus.TopicCueEntered, map[string]interface{}{
			"execution_id": e.execution.ID,
			"track":        tr.ID,
			"cue_id":       cue.ID,
		})
		if err := e.dispatch(ctx, tr, cue.Action); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) dispatch(ctx context.Context, tr *model.Track, action model.CueAction) error {
	switch a := action.(type) {
	case model.ShowCameraAction:
		return e.handler.HandleShowCamera(ctx, e.execution, tr, a)
	case model.ShowAssetAction:
		return e.handler.HandleShowAsset(ctx, e.execution, tr, a)
	case model.WaitAction:
		return nil
	case model.StreamControlAction:
		return e.handler.HandleStreamControl(ctx, e.execution, a)
	default:
		return fmt.Errorf("timeline: unknown cue action type %T", action)
	}
}

// startPositionPublisher runs a ticker independent of cue dispatch so
// position updates keep flowing at positionPublishInterval even while the
// main loop is blocked waiting for a distant cue's offset to arrive.
func (e *Executor) startPositionPublisher(ctx context.Context, getStart func() time.Time) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(positionPublishInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.publishPosition(time.Since(getStart()))
			}
		}
	}()
	return done
}

// publishPosition records the current offset, enforcing monotonicity
// within one loop iteration: a publish call racing slightly behind a
// previous one (e.g. after a scheduling delay) never moves Offset backward
// except across an intentional loop restart, which callers distinguish via
// LoopCount.
func (e *Executor) publishPosition(offset time.Duration) {
	loopCount := int(atomic.LoadInt32(&e.loopCount))
	e.mu.Lock()
	if offset < e.lastOffset && loopCount == e.lastLoop {
		offset = e.lastOffset
	}
	e.lastOffset = offset
	e.lastLoop = loopCount
	e.mu.Unlock()
	e.positions.Publish(e.execution.ID, offset, loopCount)
}

func (e *Executor) finish(status model.ExecutionStatus, errMsg string) {
	e.mu.Lock()
	e.execution.Status = status
	e.execution.StoppedAt = time.Now()
	e.execution.LastError = errMsg
	e.mu.Unlock()
	if status == model.ExecutionErrored {
		e.bus.Publish(eventbus.TopicExecutionErrored, map[string]interface{}{
			"execution_id": e.execution.ID,
			"error":        errMsg,
		})
		return
	}
	e.bus.Publish(eventbus.TopicExecutionStopped, map[string]interface{}{"execution_id": e.execution.ID})
}
