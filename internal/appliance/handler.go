// Package appliance wires the Timeline Executor's CueHandler interface to
// the rest of the streaming control plane: recalling PTZ presets, rebuilding
// the encoder invocation whenever the active source changes, and issuing
// stream control directives to the router. It is the one package allowed
// to import every other component package, since its whole job is wiring
// them together for one running execution.
package appliance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vistterstream/vistterstream/internal/compositor"
	"github.com/vistterstream/vistterstream/internal/eventbus"
	"github.com/vistterstream/vistterstream/internal/logging"
	"github.com/vistterstream/vistterstream/internal/model"
	"github.com/vistterstream/vistterstream/internal/process"
	"github.com/vistterstream/vistterstream/internal/ptz"
	"github.com/vistterstream/vistterstream/internal/relay"
	"github.com/vistterstream/vistterstream/internal/router"
)

// CameraPresetLookup resolves the camera/preset referenced by a cue to the
// concrete model records the handler needs, since the Timeline Executor
// itself holds only ids, not full entities.
type CameraPresetLookup interface {
	Camera(id string) (*model.Camera, bool)
	Preset(id string) (*model.Preset, bool)
	Asset(id string) (*model.Asset, bool)
	Destination(id string) (*model.Destination, bool)
}

// Handler implements timeline.CueHandler by driving the PTZ Controller,
// Camera Relay Manager, Process Supervisor, and Stream Router for one
// appliance.
type Handler struct {
	lookup     CameraPresetLookup
	ptz        *ptz.Controller
	relays     *relay.Manager
	supervisor *process.Supervisor
	router     *router.Router
	profile    compositor.Profile
	log        *logging.Logger
	bus        *eventbus.Bus

	// cuePrepareTimeout bounds how long HandleShowCamera waits for a
	// camera's relay to report healthy before treating it as unreachable.
	cuePrepareTimeout time.Duration

	mu       sync.Mutex
	primary  map[string]compositor.Source          // keyed by execution id, current video source
	overlays map[string]map[string]overlayEntry // execution id -> track id -> current overlay source
}

// overlayEntry pairs an overlay track's current composited source with its
// track's Layer, so recut can sort overlays into z-order without holding a
// reference back to the timeline.
type overlayEntry struct {
	source compositor.Source
	layer  int
}

// New constructs a Handler. bus receives cue.camera_unreachable and
// cue.preset_unreachable events for cue-scoped failures that do not stop
// the execution; cuePrepareTimeout of 0 defaults to 3 seconds.
func New(lookup CameraPresetLookup, p *ptz.Controller, relays *relay.Manager, sup *process.Supervisor, rt *router.Router, profile compositor.Profile, log *logging.Logger, bus *eventbus.Bus, cuePrepareTimeout time.Duration) *Handler {
	if cuePrepareTimeout <= 0 {
		cuePrepareTimeout = 3 * time.Second
	}
	return &Handler{
		lookup:            lookup,
		ptz:               p,
		relays:            relays,
		supervisor:        sup,
		router:            rt,
		profile:           profile,
		log:               log,
		bus:               bus,
		cuePrepareTimeout: cuePrepareTimeout,
		primary:           make(map[string]compositor.Source),
		overlays:          make(map[string]map[string]overlayEntry),
	}
}

// HandleShowCamera recalls the requested preset (a no-op for non-PTZ
// cameras), starts the camera's local relay if not already running, and
// re-cuts the encoder to switch the execution's primary source to it.
//
// A failed preset recall or an unreachable camera relay are cue-scoped
// failures: they are reported on the event bus but do not stop the
// execution. The cue proceeds with the camera left at its current
// position (preset failure) or without switching the primary source
// (camera unreachable), leaving overlays composited over whatever was
// already cut.
func (h *Handler) HandleShowCamera(ctx context.Context, execution *model.Execution, track *model.Track, a model.ShowCameraAction) error {
	cam, ok := h.lookup.Camera(a.CameraID)
	if !ok {
		return fmt.Errorf("appliance: unknown camera %s", a.CameraID)
	}

	if a.PresetID != "" {
		preset, ok := h.lookup.Preset(a.PresetID)
		if !ok {
			return fmt.Errorf("appliance: unknown preset %s", a.PresetID)
		}
		if err := h.ptz.GotoPreset(ctx, cam, preset); err != nil {
			h.log.WithError(err).WithField("camera_id", cam.ID).WithField("preset_id", a.PresetID).Warn("preset recall failed, proceeding without it")
			h.publish(eventbus.TopicPresetUnreachable, map[string]interface{}{
				"execution_id": execution.ID,
				"camera_id":    cam.ID,
				"preset_id":    a.PresetID,
				"error":        err.Error(),
			})
		}
	}

	rec, err := h.relays.Start(ctx, cam)
	if err != nil {
		h.log.WithError(err).WithField("camera_id", cam.ID).Warn("camera relay unreachable, skipping this cue's video")
		h.publish(eventbus.TopicCameraUnreachable, map[string]interface{}{
			"execution_id": execution.ID,
			"camera_id":    cam.ID,
			"error":        err.Error(),
		})
		return nil
	}

	if !h.relays.WaitHealthy(ctx, cam.ID, h.cuePrepareTimeout) {
		h.log.WithField("camera_id", cam.ID).Warn("camera relay not healthy within cue prepare timeout, skipping this cue's video")
		h.publish(eventbus.TopicCameraUnreachable, map[string]interface{}{
			"execution_id": execution.ID,
			"camera_id":    cam.ID,
			"error":        "relay not healthy within cue prepare timeout",
		})
		return nil
	}

	h.setPrimary(execution.ID, compositor.Source{Input: rec.LocalURL})
	return h.recut(ctx, execution)
}

// publish is a nil-safe wrapper since bus is optional for callers (tests,
// mainly) that don't care about cue-scoped event reporting.
func (h *Handler) publish(topic eventbus.Topic, data map[string]interface{}) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(topic, data)
}

// HandleShowAsset displays a static or looping asset file. On the video
// track it replaces the primary source, the same as HandleShowCamera; on an
// overlay track it composites the asset at the action's normalized geometry
// on top of whatever the video track currently holds.
func (h *Handler) HandleShowAsset(ctx context.Context, execution *model.Execution, track *model.Track, a model.ShowAssetAction) error {
	asset, ok := h.lookup.Asset(a.AssetID)
	if !ok {
		return fmt.Errorf("appliance: unknown asset %s", a.AssetID)
	}

	if track == nil || track.Kind == model.TrackKindVideo {
		h.setPrimary(execution.ID, compositor.Source{Input: asset.Path, Loop: a.Loop})
		return h.recut(ctx, execution)
	}

	h.setOverlay(execution.ID, track.ID, overlayEntry{
		layer: track.Layer,
		source: compositor.Source{
			Input:        asset.Path,
			IsOverlay:    true,
			Loop:         a.Loop,
			NativeWidth:  asset.WidthPx,
			NativeHeight: asset.HeightPx,
			Geometry: compositor.Geometry{
				X:       a.PositionX,
				Y:       a.PositionY,
				Width:   a.Width,
				Height:  a.Height,
				Opacity: a.Opacity,
			},
		},
	})
	return h.recut(ctx, execution)
}

// HandleStreamControl starts or stops one destination of a running
// execution through the Stream Router.
func (h *Handler) HandleStreamControl(ctx context.Context, execution *model.Execution, a model.StreamControlAction) error {
	switch a.Command {
	case "start_destination":
		return h.router.Enter(router.ModeLive, execution.ID)
	case "stop_destination":
		h.router.Release(execution.ID)
		return nil
	default:
		return fmt.Errorf("appliance: unknown stream control command %q", a.Command)
	}
}

func (h *Handler) setPrimary(executionID string, src compositor.Source) {
	h.mu.Lock()
	h.primary[executionID] = src
	h.mu.Unlock()
}

func (h *Handler) setOverlay(executionID, trackID string, entry overlayEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tracks, ok := h.overlays[executionID]
	if !ok {
		tracks = make(map[string]overlayEntry)
		h.overlays[executionID] = tracks
	}
	tracks[trackID] = entry
}

// sortedOverlays returns execution's current overlay sources ordered
// bottom-to-top: lower Layer first, ties broken by track ID ascending, the
// same tie-break model.Track documents for simultaneous overlay cues.
func (h *Handler) sortedOverlays(executionID string) []compositor.Source {
	h.mu.Lock()
	tracks := h.overlays[executionID]
	ids := make([]string, 0, len(tracks))
	for id := range tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ei, ej := tracks[ids[i]], tracks[ids[j]]
		if ei.layer != ej.layer {
			return ei.layer < ej.layer
		}
		return ids[i] < ids[j]
	})
	out := make([]compositor.Source, len(ids))
	for i, id := range ids {
		out[i] = tracks[id].source
	}
	h.mu.Unlock()
	return out
}

// recut rebuilds the encoder invocation for execution's current primary
// source and hands it to the Process Supervisor, restarting the running
// encoder — a hard cut, per DESIGN.md's resolution of the seamless-handoff
// open question, not a cross-fade.
func (h *Handler) recut(ctx context.Context, execution *model.Execution) error {
	h.mu.Lock()
	src, ok := h.primary[execution.ID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("appliance: no primary source set for execution %s", execution.ID)
	}

	destURLs := execution.OutputURLs
	if len(destURLs) == 0 {
		destURLs = make([]string, 0, len(execution.Destinations))
		for _, id := range execution.Destinations {
			d, ok := h.lookup.Destination(id)
			if !ok {
				continue
			}
			destURLs = append(destURLs, d.URL)
		}
	}

	inv, err := compositor.Build(src, h.sortedOverlays(execution.ID), h.profile, destURLs)
	if err != nil {
		return fmt.Errorf("appliance: building encoder invocation: %w", err)
	}

	streamID := "exec:" + execution.ID
	if h.supervisor.IsRunning(streamID) {
		if err := h.supervisor.Stop(ctx, streamID); err != nil {
			h.log.WithError(err).Warn("stopping previous encoder before recut")
		}
	}
	_, err = h.supervisor.Start(ctx, streamID, inv.Name, inv.Args)
	return err
}
