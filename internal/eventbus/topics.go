// Package eventbus implements the shared state and event bus (C9): a
// topic-based publish/subscribe hub other components use to announce
// lifecycle transitions, plus the Playback Position store that the
// Timeline Executor publishes to at least twice a second.
package eventbus

// Topic identifies a class of event on the bus.
type Topic string

const (
	TopicExecutionStarted      Topic = "execution.started"
	TopicExecutionStopped      Topic = "execution.stopped"
	TopicExecutionErrored      Topic = "execution.errored"
	TopicCueEntered            Topic = "cue.entered"
	TopicEncoderStats          Topic = "encoder.stats"
	TopicRelayHealthChanged    Topic = "relay.health_changed"
	TopicWatchdogUnhealthy     Topic = "watchdog.unhealthy"
	TopicWatchdogRecovered     Topic = "watchdog.recovered"

	// TopicCameraUnreachable and TopicPresetUnreachable announce cue-scoped
	// failures that do not stop the execution: the cue proceeds with a
	// substitute source or unmoved camera position.
	TopicCameraUnreachable Topic = "cue.camera_unreachable"
	TopicPresetUnreachable Topic = "cue.preset_unreachable"
	// TopicEncoderFatal announces that the Process Supervisor exhausted its
	// restart budget for a stream, or that a restart attempt failed to
	// start. Publishing it does not by itself stop the execution the stream
	// belongs to: no component in this module subscribes to it.
	TopicEncoderFatal Topic = "encoder.fatal"
)
