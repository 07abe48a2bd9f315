package model

import "time"

// Timeline is a named sequence of tracks: exactly one video track plus zero
// or more overlay tracks, optionally looping, that the Timeline Executor
// plays out against a set of destinations.
type Timeline struct {
	ID     string
	Name   string
	Tracks []Track
	// Loop, when true, restarts the timeline from offset zero after its
	// last cue ends rather than completing the execution.
	Loop bool
}

// VideoTrack returns the timeline's single video track, or nil if none is
// configured. A Timeline with no video track cannot be executed; the
// Timeline Executor validates this before starting.
func (t *Timeline) VideoTrack() *Track {
	for i := range t.Tracks {
		if t.Tracks[i].Kind == TrackKindVideo {
			return &t.Tracks[i]
		}
	}
	return nil
}

// OverlayTracks returns the timeline's overlay tracks in declaration order.
func (t *Timeline) OverlayTracks() []Track {
	var out []Track
	for _, tr := range t.Tracks {
		if tr.Kind == TrackKindOverlay {
			out = append(out, tr)
		}
	}
	return out
}

// Duration returns the timeline's nominal length: the end offset of the
// last cue across all tracks. Looping timelines use this as their loop
// period.
func (t *Timeline) Duration() time.Duration {
	var max time.Duration
	for _, tr := range t.Tracks {
		for _, c := range tr.Cues {
			if e := c.End(); e > max {
				max = e
			}
		}
	}
	return max
}
