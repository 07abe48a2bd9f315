package timeline

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vistterstream/vistterstream/internal/model"
)

// LoadFile reads a timeline definition from a YAML file. Timelines normally
// come from the out-of-scope persistence layer; this loader exists for
// operators running the appliance against a file-based definition (local
// testing, a single-timeline kiosk deployment) without standing up that
// layer.
func LoadFile(path string) (*model.Timeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("timeline: opening %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a timeline definition from r.
func Load(r io.Reader) (*model.Timeline, error) {
	var doc yamlTimeline
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("timeline: decoding yaml: %w", err)
	}
	return doc.toModel()
}

type yamlTimeline struct {
	ID     string      `yaml:"id"`
	Name   string      `yaml:"name"`
	Loop   bool        `yaml:"loop"`
	Tracks []yamlTrack `yaml:"tracks"`
}

type yamlTrack struct {
	ID   string    `yaml:"id"`
	Kind string    `yaml:"kind"`
	Cues []yamlCue `yaml:"cues"`
}

type yamlCue struct {
	ID       string       `yaml:"id"`
	Offset   yamlDuration `yaml:"offset"`
	Duration yamlDuration `yaml:"duration"`
	Action   yamlAction   `yaml:"action"`
}

// yamlDuration decodes a duration string ("41s", "1m30s") the way
// time.ParseDuration does; yaml.v3 has no built-in notion of time.Duration.
type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = yamlDuration(parsed)
	return nil
}

type yamlAction struct {
	Type          string `yaml:"type"`
	CameraID      string `yaml:"camera_id"`
	PresetID      string `yaml:"preset_id"`
	AssetID       string `yaml:"asset_id"`
	Loop          bool   `yaml:"loop"`
	Command       string `yaml:"command"`
	DestinationID string `yaml:"destination_id"`
}

func (a yamlAction) toModel() (model.CueAction, error) {
	switch model.ActionType(a.Type) {
	case model.ActionShowCamera:
		return model.ShowCameraAction{CameraID: a.CameraID, PresetID: a.PresetID}, nil
	case model.ActionShowAsset:
		return model.ShowAssetAction{AssetID: a.AssetID, Loop: a.Loop}, nil
	case model.ActionWait:
		return model.WaitAction{}, nil
	case model.ActionStreamControl:
		return model.StreamControlAction{Command: a.Command, DestinationID: a.DestinationID}, nil
	default:
		return nil, fmt.Errorf("timeline: unknown cue action type %q", a.Type)
	}
}

func (doc yamlTimeline) toModel() (*model.Timeline, error) {
	tl := &model.Timeline{ID: doc.ID, Name: doc.Name, Loop: doc.Loop}
	for _, t := range doc.Tracks {
		track := model.Track{ID: t.ID, Kind: model.TrackKind(t.Kind)}
		for _, c := range t.Cues {
			action, err := c.Action.toModel()
			if err != nil {
				return nil, fmt.Errorf("timeline: track %s cue %s: %w", t.ID, c.ID, err)
			}
			track.Cues = append(track.Cues, model.Cue{
				ID:       c.ID,
				Offset:   time.Duration(c.Offset),
				Duration: time.Duration(c.Duration),
				Action:   action,
			})
		}
		tl.Tracks = append(tl.Tracks, track)
	}
	return tl, model.ValidateTimeline(tl)
}
