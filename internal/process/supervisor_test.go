package process

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vistterstream/vistterstream/internal/config"
	"github.com/vistterstream/vistterstream/internal/eventbus"
	"github.com/vistterstream/vistterstream/internal/logging"
	"github.com/vistterstream/vistterstream/internal/model"
)

// fakeHandle is a Handle double that blocks in Wait until told to exit.
type fakeHandle struct {
	pid     int
	exitCh  chan struct{}
	signals []os.Signal
	mu      sync.Mutex
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{pid: pid, exitCh: make(chan struct{})}
}

func (h *fakeHandle) PID() int { return h.pid }
func (h *fakeHandle) Signal(sig os.Signal) error {
	h.mu.Lock()
	h.signals = append(h.signals, sig)
	h.mu.Unlock()
	select {
	case <-h.exitCh:
	default:
		close(h.exitCh)
	}
	return nil
}
func (h *fakeHandle) Wait() error {
	<-h.exitCh
	return nil
}

type fakeRunner struct {
	mu      sync.Mutex
	nextPID int
	handles []*fakeHandle
}

func (r *fakeRunner) Start(ctx context.Context, name string, args []string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextPID++
	h := newFakeHandle(r.nextPID)
	r.handles = append(r.handles, h)
	return h, nil
}

func testSupervisor() (*Supervisor, *fakeRunner) {
	log := logging.New("process.supervisor.test")
	runner := &fakeRunner{}
	cfg := config.SupervisorConfig{MaxRestarts: 3, StopGraceful: 50 * time.Millisecond}
	return New(cfg, log, runner, eventbus.New()), runner
}

func TestStartRejectsDuplicateRunning(t *testing.T) {
	sup, _ := testSupervisor()
	ctx := context.Background()

	_, err := sup.Start(ctx, "stream-1", "ffmpeg", []string{"-i", "in"})
	require.NoError(t, err)

	_, err = sup.Start(ctx, "stream-1", "ffmpeg", []string{"-i", "in"})
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindAlreadyRunning, perr.Kind)
}

func TestStopSignalsTermThenTracksStopped(t *testing.T) {
	sup, _ := testSupervisor()
	ctx := context.Background()

	_, err := sup.Start(ctx, "stream-2", "ffmpeg", []string{})
	require.NoError(t, err)
	require.True(t, sup.IsRunning("stream-2"))

	err = sup.Stop(ctx, "stream-2")
	require.NoError(t, err)

	// give the monitor goroutine a moment to observe exit and untrack it
	require.Eventually(t, func() bool {
		_, ok := sup.Status("stream-2")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestStopUnknownStreamReturnsNotFound(t *testing.T) {
	sup, _ := testSupervisor()
	err := sup.Stop(context.Background(), "does-not-exist")
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindNotFound, perr.Kind)
}

// crashingRunner hands back a handle whose Wait returns immediately,
// simulating an encoder that dies the instant it starts.
type crashingRunner struct {
	mu     sync.Mutex
	starts int
}

func (r *crashingRunner) Start(ctx context.Context, name string, args []string) (Handle, error) {
	r.mu.Lock()
	r.starts++
	h := newFakeHandle(r.starts)
	r.mu.Unlock()
	close(h.exitCh)
	return h, nil
}

func TestRestartBudgetExhaustionPublishesEncoderFatal(t *testing.T) {
	log := logging.New("process.crashloop.test")
	bus := eventbus.New()
	sub := eventbus.Subscribe(bus, []eventbus.Topic{eventbus.TopicEncoderFatal}, 1)
	cfg := config.SupervisorConfig{
		MaxRestarts:    2,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
		StopGraceful:   50 * time.Millisecond,
	}
	sup := New(cfg, log, &crashingRunner{}, bus)

	_, err := sup.Start(context.Background(), "stream-crash", "ffmpeg", []string{})
	require.NoError(t, err)

	select {
	case ev := <-sub.Ch:
		assert.Equal(t, eventbus.TopicEncoderFatal, ev.Topic)
		assert.Equal(t, "stream-crash", ev.Data["stream_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("expected encoder.fatal event once the restart budget was exhausted")
	}

	require.Eventually(t, func() bool {
		st, ok := sup.Status("stream-crash")
		return ok && st.Status == model.StreamProcessFailed
	}, time.Second, 5*time.Millisecond)
}

func TestReapOrphansIsIdempotent(t *testing.T) {
	// Neither call should find a leftover encoder process on the test
	// host (none was started with the "-f tee" signature), so both scans
	// report zero reaped rather than erroring.
	log := logging.New("process.reap.test")
	first, err := ReapOrphans(log)
	require.NoError(t, err)
	assert.Equal(t, 0, first)

	second, err := ReapOrphans(log)
	require.NoError(t, err)
	assert.Equal(t, 0, second)
}

func TestKillAllStopsEveryRunningProcessAndIsIdempotent(t *testing.T) {
	sup, _ := testSupervisor()
	ctx := context.Background()

	_, err := sup.Start(ctx, "stream-a", "ffmpeg", []string{})
	require.NoError(t, err)
	_, err = sup.Start(ctx, "stream-b", "ffmpeg", []string{})
	require.NoError(t, err)

	count := sup.KillAll(ctx)
	assert.Equal(t, 2, count)

	require.Eventually(t, func() bool {
		_, aOK := sup.Status("stream-a")
		_, bOK := sup.Status("stream-b")
		return !aOK && !bOK
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, sup.KillAll(ctx))
}

func TestFindByOutputURLMatchesRunningProcessArgs(t *testing.T) {
	sup, _ := testSupervisor()
	ctx := context.Background()

	_, err := sup.Start(ctx, "exec:exec-1", "ffmpeg", []string{"-i", "in", "-f", "tee", "[f=flv]rtmp://example/live/key"})
	require.NoError(t, err)

	id, ok := sup.FindByOutputURL("rtmp://example/live/key")
	require.True(t, ok)
	assert.Equal(t, "exec:exec-1", id)

	_, ok = sup.FindByOutputURL("rtmp://example/other")
	assert.False(t, ok)
}

func TestRestartStopsThenStartsWithTheSameInvocation(t *testing.T) {
	sup, runner := testSupervisor()
	ctx := context.Background()

	_, err := sup.Start(ctx, "stream-restart", "ffmpeg", []string{"-i", "in"})
	require.NoError(t, err)

	firstPID := runner.handles[0].pid

	err = sup.Restart(ctx, "stream-restart")
	require.NoError(t, err)

	require.True(t, sup.IsRunning("stream-restart"))
	require.Len(t, runner.handles, 2, "restart must start a new process")
	assert.NotEqual(t, firstPID, runner.handles[1].pid)
}

func TestRestartUnknownStreamReturnsNotFound(t *testing.T) {
	sup, _ := testSupervisor()
	err := sup.Restart(context.Background(), "no-such-stream")
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindNotFound, perr.Kind)
}
