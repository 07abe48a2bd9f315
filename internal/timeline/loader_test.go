package timeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vistterstream/vistterstream/internal/model"
)

const sampleTimelineYAML = `
id: tl-wharf
name: Wharf
loop: true
tracks:
  - id: video
    kind: video
    cues:
      - id: cue-a
        offset: 0s
        duration: 41s
        action:
          type: show_camera
          camera_id: cam-a
      - id: cue-b
        offset: 41s
        duration: 40.5s
        action:
          type: show_camera
          camera_id: cam-b
          preset_id: wide
`

func TestLoadParsesCuesAndDurations(t *testing.T) {
	tl, err := Load(strings.NewReader(sampleTimelineYAML))
	require.NoError(t, err)

	assert.Equal(t, "tl-wharf", tl.ID)
	assert.True(t, tl.Loop)

	video := tl.VideoTrack()
	require.NotNil(t, video)
	require.Len(t, video.Cues, 2)

	assert.Equal(t, 41*time.Second, video.Cues[0].Duration)
	assert.Equal(t, 41*time.Second, video.Cues[1].Offset)

	action, ok := video.Cues[1].Action.(model.ShowCameraAction)
	require.True(t, ok)
	assert.Equal(t, "cam-b", action.CameraID)
	assert.Equal(t, "wide", action.PresetID)
}

func TestLoadRejectsUnknownActionType(t *testing.T) {
	_, err := Load(strings.NewReader(`
id: tl-bad
tracks:
  - id: video
    kind: video
    cues:
      - id: cue-a
        offset: 0s
        action:
          type: teleport
`))
	assert.Error(t, err)
}

func TestLoadRejectsMissingVideoTrack(t *testing.T) {
	_, err := Load(strings.NewReader(`
id: tl-no-video
tracks:
  - id: overlay
    kind: overlay
    cues: []
`))
	assert.Error(t, err)
}
