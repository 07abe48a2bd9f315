package model

// Platform identifies a well-known RTMP destination platform with
// documented liveness-check behavior. Unrecognized platforms fall back to
// PlatformGeneric, which has no remote liveness check beyond the local
// encoder's own health.
type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformFacebook Platform = "facebook"
	PlatformGeneric  Platform = "generic"
)

// Destination is a configured RTMP push target for an execution.
type Destination struct {
	ID       string
	Name     string
	Platform Platform
	// URL is the full rtmp:// ingest URL including the stream key.
	URL string
	// ChannelID is the platform-specific channel/broadcast identifier used
	// by a RemoteLivenessChecker to locate the destination's public live
	// page. Empty when the platform has no remote check configured.
	ChannelID string
	// CheckIntervalS is how often the watchdog probes this destination's
	// liveness, in seconds. Zero means "use the watchdog default."
	CheckIntervalS int
}
