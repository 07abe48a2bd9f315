package model

import "fmt"

// ValidateTrack checks that a track's cues are sorted by offset and that no
// two cues with a fixed duration overlap. A cue with Duration == 0 runs
// until the next cue's offset and can never overlap by definition.
func ValidateTrack(tr *Track) error {
	for i := 1; i < len(tr.Cues); i++ {
		prev, cur := tr.Cues[i-1], tr.Cues[i]
		if cur.Offset < prev.Offset {
			return fmt.Errorf("track %s: cue %s starts before preceding cue %s", tr.ID, cur.ID, prev.ID)
		}
		if prev.Duration > 0 && prev.End() > cur.Offset {
			return fmt.Errorf("track %s: cue %s overlaps cue %s", tr.ID, prev.ID, cur.ID)
		}
	}
	return nil
}

// ValidateTimeline checks that a timeline has exactly one video track and
// that every track passes ValidateTrack.
func ValidateTimeline(t *Timeline) error {
	videoCount := 0
	for i := range t.Tracks {
		if t.Tracks[i].Kind == TrackKindVideo {
			videoCount++
		}
		if err := ValidateTrack(&t.Tracks[i]); err != nil {
			return err
		}
	}
	if videoCount != 1 {
		return fmt.Errorf("timeline %s: must have exactly one video track, has %d", t.ID, videoCount)
	}
	return nil
}
