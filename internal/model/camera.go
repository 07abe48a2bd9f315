// Package model holds the data types shared across the streaming control
// plane: cameras, destinations, timelines and their tracks/cues, assets,
// executions, and the runtime records (playback position, stream process,
// camera relay) that the other components read and write.
package model

import "time"

// CameraType distinguishes fixed cameras from pan-tilt-zoom cameras that
// expose an ONVIF control endpoint.
type CameraType string

const (
	CameraTypeFixed CameraType = "fixed"
	CameraTypePTZ   CameraType = "ptz"
)

func (t CameraType) String() string { return string(t) }

// Camera is a configured video source reachable over RTSP, optionally with
// an ONVIF control endpoint for PTZ operations.
type Camera struct {
	ID         string
	Name       string
	RTSPURL    string
	Type       CameraType
	ONVIFAddr  string // host:port, empty unless Type == CameraTypePTZ
	ONVIFUser  string
	ONVIFPass  string
	CreatedAt  time.Time
}

// IsPTZ reports whether this camera supports preset recall.
func (c *Camera) IsPTZ() bool {
	return c.Type == CameraTypePTZ && c.ONVIFAddr != ""
}

// Preset is a named PTZ position captured on a specific camera. Capturing a
// preset on a camera that is not a PTZ camera, or has no ONVIF endpoint
// configured, is rejected by the caller before it reaches this type.
type Preset struct {
	ID       string
	CameraID string
	Name     string
	// Token is the ONVIF preset token returned by the camera at capture
	// time; it is opaque and re-sent verbatim on recall.
	Token string
}
