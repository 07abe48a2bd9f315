// Package compositor implements the Overlay Compositor Builder (C4): a
// pure function from the active source on each track to the ffmpeg
// filter-graph and argv that encodes and composites them, with no I/O of
// its own — the same command-as-pure-function shape as the teacher's
// BuildCommand helper.
package compositor

import "fmt"

// Profile is an output encode profile shared by every destination of one
// execution (see DESIGN.md Open Question 3).
type Profile string

const (
	Profile1080p30 Profile = "1080p30"
	Profile720p30  Profile = "720p30"
	Profile480p30  Profile = "480p30"
	Profile1080p60 Profile = "1080p60"
)

// dims returns width, height, fps, and a target video bitrate in kbps for a
// profile. Unknown profiles fall back to 720p30.
func (p Profile) dims() (w, h, fps, kbps int) {
	switch p {
	case Profile1080p30:
		return 1920, 1080, 30, 4500
	case Profile1080p60:
		return 1920, 1080, 60, 6000
	case Profile480p30:
		return 854, 480, 30, 1200
	default:
		return 1280, 720, 30, 2500
	}
}

func (p Profile) String() string {
	w, h, fps, _ := p.dims()
	return fmt.Sprintf("%s(%dx%d@%d)", string(p), w, h, fps)
}
