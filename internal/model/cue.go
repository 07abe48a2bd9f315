package model

import "time"

// TrackKind distinguishes the one video track of a timeline, which drives
// the encoder's primary input, from its zero or more overlay tracks, which
// composite on top of it.
type TrackKind string

const (
	TrackKindVideo   TrackKind = "video"
	TrackKindOverlay TrackKind = "overlay"
)

// ActionType identifies the concrete type behind the CueAction interface.
// Exported so callers loading a timeline from storage can select the right
// concrete struct to decode into.
type ActionType string

const (
	ActionShowCamera    ActionType = "show_camera"
	ActionShowAsset     ActionType = "show_asset"
	ActionWait          ActionType = "wait"
	ActionStreamControl ActionType = "stream_control"
)

// CueAction is the tagged-variant action a Cue performs. Each concrete type
// below implements it; the Timeline Executor dispatches on a type switch,
// never on an untyped map of fields.
type CueAction interface {
	Type() ActionType
}

// ShowCameraAction directs the video track to switch to a live camera feed,
// optionally recalling a PTZ preset first.
type ShowCameraAction struct {
	CameraID string
	PresetID string // empty if no preset recall is needed
}

func (ShowCameraAction) Type() ActionType { return ActionShowCamera }

// ShowAssetAction directs a track to display a static or looping asset. On
// the video track it replaces the primary source, the same as
// ShowCameraAction; on an overlay track it composites the asset at the
// given geometry on top of the primary source instead of replacing it.
//
// PositionX/PositionY and Width/Height are normalized against the
// timeline's output resolution, in [0,1] with (0,0) at the top-left. A
// zero Width or Height means "derive from the other axis, preserving the
// asset's native aspect ratio"; a zero Opacity means fully opaque.
// Fields beyond AssetID/Loop are ignored on the video track.
type ShowAssetAction struct {
	AssetID   string
	Loop      bool
	PositionX float64
	PositionY float64
	Width     float64
	Height    float64
	Opacity   float64
}

func (ShowAssetAction) Type() ActionType { return ActionShowAsset }

// WaitAction holds the current source on screen without switching.
type WaitAction struct{}

func (WaitAction) Type() ActionType { return ActionWait }

// StreamControlAction issues a control directive to the Stream Router, such
// as starting or stopping a destination mid-timeline.
type StreamControlAction struct {
	Command       string // "start_destination" | "stop_destination"
	DestinationID string
}

func (StreamControlAction) Type() ActionType { return ActionStreamControl }

// Cue is one scheduled action on a track, positioned relative to the
// timeline's wall-clock start.
type Cue struct {
	ID       string
	Offset   time.Duration // from timeline start
	Duration time.Duration // zero means "until the next cue"
	Action   CueAction
}

// End returns the cue's end offset. A Cue with Duration == 0 has no fixed
// end; callers must derive it from the next cue's Offset on the same track.
func (c *Cue) End() time.Duration {
	if c.Duration <= 0 {
		return c.Offset
	}
	return c.Offset + c.Duration
}

// Track is one lane of cues within a timeline: the single video track
// driving the primary feed, or one of the overlay tracks composited on
// top of it.
type Track struct {
	ID   string
	Kind TrackKind
	Cues []Cue // ordered by Offset

	// Layer orders overlay tracks bottom-to-top when two overlay cues are
	// active at the same instant: the lower Layer is composed first
	// (bottom). Ties break on ID, ascending. Ignored for the video track,
	// which has no layer to order against.
	Layer int
	// Enabled gates whether an overlay track's cues are dispatched at all;
	// a disabled overlay track is skipped entirely, as if absent from the
	// timeline. Ignored for the video track, which always runs.
	Enabled bool
}
