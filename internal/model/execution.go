package model

import "time"

// ExecutionStatus is the lifecycle state of a Timeline Executor run.
type ExecutionStatus string

const (
	ExecutionPending  ExecutionStatus = "pending"
	ExecutionRunning  ExecutionStatus = "running"
	ExecutionStopping ExecutionStatus = "stopping"
	ExecutionStopped  ExecutionStatus = "stopped"
	ExecutionErrored  ExecutionStatus = "errored"
)

// Execution is one run of a timeline against a set of destinations.
type Execution struct {
	ID         string
	TimelineID string
	// Destinations holds configured Destination IDs to resolve to RTMP
	// URLs at recut time; OutputURLs, when non-empty, is used instead and
	// bypasses Destination resolution entirely. The Stream Router sets
	// OutputURLs directly for PREVIEW mode, whose single output is the
	// Preview Server Adapter's fixed publish URL, not a configured
	// Destination.
	Destinations []string // Destination IDs
	OutputURLs   []string
	Status       ExecutionStatus
	StartedAt    time.Time
	StoppedAt    time.Time
	// LoopCount tracks how many times a looping timeline has restarted
	// from offset zero during this execution.
	LoopCount int
	// LastError is set when Status == ExecutionErrored.
	LastError string
}
