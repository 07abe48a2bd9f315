// Package process implements the Process Supervisor (C1): starting,
// stopping, and monitoring the ffmpeg encoder child processes that back
// every running StreamProcess, enforcing at most one running process per
// stream id, and restarting a process that exits unexpectedly with an
// exponential backoff policy.
package process

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/vistterstream/vistterstream/internal/config"
	"github.com/vistterstream/vistterstream/internal/eventbus"
	"github.com/vistterstream/vistterstream/internal/logging"
	"github.com/vistterstream/vistterstream/internal/model"
)

// Runner starts a child process given a command and argv, and returns a
// handle the Supervisor uses to wait on and signal it. Production code uses
// execRunner; tests substitute a fake.
type Runner interface {
	Start(ctx context.Context, name string, args []string) (Handle, error)
}

// Handle is a running child process.
type Handle interface {
	PID() int
	Signal(sig os.Signal) error
	Wait() error
}

type execRunner struct{}

func (execRunner) Start(ctx context.Context, name string, args []string) (Handle, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execHandle{cmd: cmd}, nil
}

type execHandle struct{ cmd *exec.Cmd }

func (h *execHandle) PID() int                 { return h.cmd.Process.Pid }
func (h *execHandle) Signal(sig os.Signal) error { return h.cmd.Process.Signal(sig) }
func (h *execHandle) Wait() error              { return h.cmd.Wait() }

// entry tracks one supervised process, the encoder invocation that started
// it, and its restart bookkeeping — the same shape as the teacher's
// FFmpegProcess struct.
type entry struct {
	mu           sync.Mutex
	streamID     string
	handle       Handle
	status       model.StreamProcessStatus
	name         string
	args         []string
	startedAt    time.Time
	restartCount int
	cancel       context.CancelFunc
	stopRequested bool
}

// Supervisor owns the full set of currently-running encoder processes.
type Supervisor struct {
	cfg    config.SupervisorConfig
	log    *logging.Logger
	runner Runner
	bus    *eventbus.Bus

	mu      sync.RWMutex
	entries map[string]*entry // keyed by StreamID
}

// New constructs a Supervisor. Pass nil for runner to use the real
// os/exec-backed implementation. bus may be nil, in which case giving up on
// a stream's restart budget is only visible through its Status.
func New(cfg config.SupervisorConfig, log *logging.Logger, runner Runner, bus *eventbus.Bus) *Supervisor {
	if runner == nil {
		runner = execRunner{}
	}
	return &Supervisor{
		cfg:     cfg,
		log:     log,
		runner:  runner,
		bus:     bus,
		entries: make(map[string]*entry),
	}
}

// Start launches a new encoder process for streamID running name with args.
// It is rejected with KindAlreadyRunning if a process for streamID is
// already tracked as starting, running or restarting, enforcing the
// at-most-one-encoder-per-stream invariant; a tracked entry that is stopped
// or failed is replaced.
func (s *Supervisor) Start(ctx context.Context, streamID, name string, args []string) (*model.StreamProcess, error) {
	s.mu.Lock()
	if existing, exists := s.entries[streamID]; exists {
		existing.mu.Lock()
		status := existing.status
		existing.mu.Unlock()
		if status != model.StreamProcessStopped && status != model.StreamProcessFailed {
			s.mu.Unlock()
			return nil, newError("Start", KindAlreadyRunning, streamID, nil)
		}
		delete(s.entries, streamID)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	e := &entry{
		streamID: streamID,
		status:   model.StreamProcessStarting,
		name:     name,
		args:     args,
		cancel:   cancel,
	}
	s.entries[streamID] = e
	s.mu.Unlock()

	log := s.log.WithField("stream_id", streamID).WithField("correlation_id", uuid.New().String())
	log.Info("starting encoder process")

	handle, err := s.runner.Start(runCtx, name, args)
	if err != nil {
		cancel()
		s.mu.Lock()
		delete(s.entries, streamID)
		s.mu.Unlock()
		return nil, newError("Start", KindStartFailed, streamID, err)
	}

	e.mu.Lock()
	e.handle = handle
	e.status = model.StreamProcessRunning
	e.startedAt = time.Now()
	e.mu.Unlock()

	go s.monitor(e)

	return s.snapshot(e), nil
}

// Stop gracefully terminates the encoder for streamID: SIGTERM, wait up to
// cfg.StopGraceful, then SIGKILL — the same two-stage shutdown as the
// teacher's cleanupFFmpegProcess.
func (s *Supervisor) Stop(ctx context.Context, streamID string) error {
	s.mu.RLock()
	e, ok := s.entries[streamID]
	s.mu.RUnlock()
	if !ok {
		return newError("Stop", KindNotFound, streamID, nil)
	}

	e.mu.Lock()
	e.stopRequested = true
	handle := e.handle
	e.cancel()
	e.mu.Unlock()

	if handle == nil {
		return nil
	}

	log := s.log.WithField("stream_id", streamID)
	if err := handle.Signal(syscall.SIGTERM); err != nil {
		log.WithError(err).Warn("SIGTERM failed, proceeding to SIGKILL")
	}

	done := make(chan struct{})
	go func() {
		handle.Wait()
		close(done)
	}()

	grace := s.cfg.StopGraceful
	if grace <= 0 {
		grace = 5 * time.Second
	}

	select {
	case <-done:
	case <-time.After(grace):
		log.Warn("graceful stop timed out, sending SIGKILL")
		if err := handle.Signal(syscall.SIGKILL); err != nil {
			return newError("Stop", KindStopTimeout, streamID, err)
		}
		select {
		case <-done:
		case <-time.After(grace):
			return newError("Stop", KindStopTimeout, streamID, fmt.Errorf("process did not exit after SIGKILL"))
		}
	}
	e.mu.Lock()
	e.status = model.StreamProcessStopped
	e.mu.Unlock()
	return nil
}

// KillAll forcibly stops every tracked process and returns how many were
// actually running at the time. It is idempotent: calling it again once
// every process has already stopped returns 0.
func (s *Supervisor) KillAll(ctx context.Context) int {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id, e := range s.entries {
		e.mu.Lock()
		running := e.status == model.StreamProcessRunning || e.status == model.StreamProcessRestart
		e.mu.Unlock()
		if running {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	count := 0
	for _, id := range ids {
		if err := s.Stop(ctx, id); err != nil {
			s.log.WithError(err).WithField("stream_id", id).Warn("kill_all: error stopping process")
			continue
		}
		count++
	}
	return count
}

// FindByOutputURL returns the stream id of the running process whose argv
// targets outputURL, or false if none matches. The Watchdog Manager uses
// this to resolve a destination's RTMP URL to the stream_id carrying it,
// since the Supervisor tracks processes by stream id, not by destination.
func (s *Supervisor) FindByOutputURL(outputURL string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, e := range s.entries {
		e.mu.Lock()
		args := e.args
		running := e.status == model.StreamProcessRunning
		e.mu.Unlock()
		if !running {
			continue
		}
		for _, a := range args {
			if strings.Contains(a, outputURL) {
				return id, true
			}
		}
	}
	return "", false
}

// Restart stops streamID's process, if running, and starts it again with
// the same name/args last used to start it — the manual recovery path the
// Watchdog Manager drives after its own consecutive-failure threshold
// trips, distinct from monitor's automatic restart-on-unexpected-exit.
func (s *Supervisor) Restart(ctx context.Context, streamID string) error {
	s.mu.RLock()
	e, ok := s.entries[streamID]
	s.mu.RUnlock()
	if !ok {
		return newError("Restart", KindNotFound, streamID, nil)
	}
	e.mu.Lock()
	name, args := e.name, e.args
	e.mu.Unlock()

	if err := s.Stop(ctx, streamID); err != nil {
		return fmt.Errorf("process: restart %s: stopping: %w", streamID, err)
	}
	if _, err := s.Start(ctx, streamID, name, args); err != nil {
		return fmt.Errorf("process: restart %s: starting: %w", streamID, err)
	}
	return nil
}

// Status returns the current StreamProcess record for streamID.
func (s *Supervisor) Status(streamID string) (*model.StreamProcess, bool) {
	s.mu.RLock()
	e, ok := s.entries[streamID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return s.snapshot(e), true
}

// IsRunning reports whether a process is tracked as running for streamID.
func (s *Supervisor) IsRunning(streamID string) bool {
	s.mu.RLock()
	e, ok := s.entries[streamID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status == model.StreamProcessRunning
}

func (s *Supervisor) snapshot(e *entry) *model.StreamProcess {
	e.mu.Lock()
	defer e.mu.Unlock()
	sp := &model.StreamProcess{
		StreamID:     e.streamID,
		Status:       e.status,
		StartedAt:    e.startedAt,
		RestartCount: e.restartCount,
	}
	if e.handle != nil {
		sp.PID = e.handle.PID()
		sp.LastMetrics = sampleMetrics(sp.PID)
	}
	return sp
}

// sampleMetrics reads live CPU/RSS for pid via gopsutil, matching the
// teacher's use of gopsutil for process-level system metrics. Errors are
// swallowed into a zero-value sample: a metrics read failing is not a
// reason to fail the caller's status query.
func sampleMetrics(pid int) model.StreamProcessMetrics {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return model.StreamProcessMetrics{}
	}
	cpuPct, _ := p.CPUPercent()
	memInfo, _ := p.MemoryInfo()
	m := model.StreamProcessMetrics{CPUPercent: cpuPct, SampledAt: time.Now()}
	if memInfo != nil {
		m.RSSBytes = memInfo.RSS
	}
	return m
}

// monitor waits for the process to exit and, unless a stop was requested,
// restarts it with exponential backoff — mirroring the teacher's
// monitorProcess + calculateBackoffDelay pair.
func (s *Supervisor) monitor(e *entry) {
	e.mu.Lock()
	handle := e.handle
	e.mu.Unlock()

	err := handle.Wait()

	e.mu.Lock()
	stopRequested := e.stopRequested
	e.mu.Unlock()

	log := s.log.WithField("stream_id", e.streamID)
	if stopRequested {
		log.Info("encoder process stopped on request")
		s.mu.Lock()
		if s.entries[e.streamID] == e {
			delete(s.entries, e.streamID)
		}
		s.mu.Unlock()
		return
	}

	log.WithError(err).Warn("encoder process exited unexpectedly")

	e.mu.Lock()
	e.restartCount++
	restartCount := e.restartCount
	e.mu.Unlock()

	if s.cfg.MaxRestarts > 0 && restartCount > s.cfg.MaxRestarts {
		log.Error("exceeded max restart attempts, giving up")
		e.mu.Lock()
		e.status = model.StreamProcessFailed
		e.mu.Unlock()
		if s.bus != nil {
			s.bus.Publish(eventbus.TopicEncoderFatal, map[string]interface{}{
				"stream_id":     e.streamID,
				"restart_count": restartCount,
			})
		}
		return
	}

	e.mu.Lock()
	e.status = model.StreamProcessRestart
	e.mu.Unlock()

	delay := backoffDelay(s.cfg, restartCount)
	log.WithField("delay", delay).WithField("attempt", restartCount).Info("restarting encoder after backoff")
	time.Sleep(delay)

	runCtx, cancel := context.WithCancel(context.Background())
	newHandle, startErr := s.runner.Start(runCtx, e.name, e.args)
	if startErr != nil {
		cancel()
		log.WithError(startErr).Error("restart failed")
		e.mu.Lock()
		e.status = model.StreamProcessFailed
		e.mu.Unlock()
		if s.bus != nil {
			s.bus.Publish(eventbus.TopicEncoderFatal, map[string]interface{}{
				"stream_id":     e.streamID,
				"restart_count": restartCount,
			})
		}
		return
	}

	e.mu.Lock()
	e.handle = newHandle
	e.cancel = cancel
	e.status = model.StreamProcessRunning
	e.startedAt = time.Now()
	e.mu.Unlock()

	go s.monitor(e)
}

// backoffDelay computes an exponential backoff with +/-25% jitter capped at
// cfg.BackoffMax, the same shape as the teacher's calculateBackoffDelay.
func backoffDelay(cfg config.SupervisorConfig, attempt int) time.Duration {
	base := cfg.BackoffInitial
	if base <= 0 {
		base = time.Second
	}
	max := cfg.BackoffMax
	if max <= 0 {
		max = 60 * time.Second
	}
	delay := base * time.Duration(1<<uint(minInt(attempt-1, 10)))
	if delay > max {
		delay = max
	}
	jitter := time.Duration(float64(delay) * (rand.Float64()*0.5 - 0.25))
	delay += jitter
	if delay < 0 {
		delay = base
	}
	return delay
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
