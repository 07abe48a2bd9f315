package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateTrackRejectsOverlappingCues(t *testing.T) {
	track := &Track{
		ID:   "video",
		Kind: TrackKindVideo,
		Cues: []Cue{
			{ID: "a", Offset: 0, Duration: 41 * time.Second, Action: WaitAction{}},
			{ID: "b", Offset: 40 * time.Second, Duration: 10 * time.Second, Action: WaitAction{}},
		},
	}
	assert.Error(t, ValidateTrack(track))
}

func TestValidateTrackAcceptsAdjacentCues(t *testing.T) {
	track := &Track{
		ID:   "video",
		Kind: TrackKindVideo,
		Cues: []Cue{
			{ID: "a", Offset: 0, Duration: 41 * time.Second, Action: WaitAction{}},
			{ID: "b", Offset: 41 * time.Second, Duration: 40 * time.Second, Action: WaitAction{}},
		},
	}
	assert.NoError(t, ValidateTrack(track))
}

func TestValidateTrackAcceptsOpenEndedCueFollowedByAnother(t *testing.T) {
	track := &Track{
		ID:   "video",
		Kind: TrackKindVideo,
		Cues: []Cue{
			{ID: "a", Offset: 0, Action: WaitAction{}}, // Duration 0: runs until next cue
			{ID: "b", Offset: 41 * time.Second, Action: WaitAction{}},
		},
	}
	assert.NoError(t, ValidateTrack(track))
}

func TestValidateTimelineRequiresExactlyOneVideoTrack(t *testing.T) {
	noVideo := &Timeline{ID: "tl-1", Tracks: []Track{{ID: "overlay", Kind: TrackKindOverlay}}}
	assert.Error(t, ValidateTimeline(noVideo))

	twoVideo := &Timeline{ID: "tl-2", Tracks: []Track{
		{ID: "v1", Kind: TrackKindVideo},
		{ID: "v2", Kind: TrackKindVideo},
	}}
	assert.Error(t, ValidateTimeline(twoVideo))

	oneVideo := &Timeline{ID: "tl-3", Tracks: []Track{{ID: "v1", Kind: TrackKindVideo}}}
	assert.NoError(t, ValidateTimeline(oneVideo))
}

func TestTimelineDurationIsLatestCueEnd(t *testing.T) {
	tl := &Timeline{
		Tracks: []Track{
			{ID: "video", Kind: TrackKindVideo, Cues: []Cue{
				{ID: "a", Offset: 0, Duration: 41 * time.Second},
				{ID: "b", Offset: 41 * time.Second, Duration: 40 * time.Second},
			}},
		},
	}
	assert.Equal(t, 81*time.Second, tl.Duration())
}
