package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vistterstream/vistterstream/internal/config"
	"github.com/vistterstream/vistterstream/internal/eventbus"
	"github.com/vistterstream/vistterstream/internal/logging"
	"github.com/vistterstream/vistterstream/internal/model"
)

type toggleChecker struct {
	live int32 // atomic bool as int32
}

func (c *toggleChecker) IsLive(ctx context.Context, dest *model.Destination) (bool, error) {
	return atomic.LoadInt32(&c.live) == 1, nil
}

func (c *toggleChecker) set(live bool) {
	if live {
		atomic.StoreInt32(&c.live, 1)
	} else {
		atomic.StoreInt32(&c.live, 0)
	}
}

func newTestManager(checker RemoteLivenessChecker) *Manager {
	cfg := config.WatchdogConfig{UnhealthyThreshold: 2, RecoveryThreshold: 2, RestartCooldown: 10 * time.Millisecond, RemoteProbeRatePerSec: 1000}
	return New(cfg, logging.New("test"), eventbus.New(), checker, nil, nil, nil)
}

// fakeRestarter records every stream id it was asked to restart.
type fakeRestarter struct {
	mu       sync.Mutex
	restarts []string
	err      error
}

func (r *fakeRestarter) Restart(ctx context.Context, streamID string) error {
	r.mu.Lock()
	r.restarts = append(r.restarts, streamID)
	r.mu.Unlock()
	return r.err
}

func (r *fakeRestarter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.restarts)
}

type fakeDestLookup struct {
	destinations map[string]*model.Destination
}

func (l *fakeDestLookup) Destination(id string) (*model.Destination, bool) {
	d, ok := l.destinations[id]
	return d, ok
}

type fakeFinder struct {
	urlToStreamID map[string]string
}

func (f *fakeFinder) FindByOutputURL(url string) (string, bool) {
	id, ok := f.urlToStreamID[url]
	return id, ok
}

func TestHysteresisRequiresConsecutiveFailures(t *testing.T) {
	checker := &toggleChecker{}
	checker.set(false)
	m := newTestManager(checker)

	dest := &model.Destination{ID: "dest-1"}
	m.Track(dest)
	assert.True(t, m.IsHealthy("dest-1"))

	ctx := context.Background()
	m.ProbeOnce(ctx, dest)
	assert.True(t, m.IsHealthy("dest-1"), "one failure should not flip healthy yet")

	m.ProbeOnce(ctx, dest)
	assert.False(t, m.IsHealthy("dest-1"), "two consecutive failures should flip unhealthy")
}

func TestRecoversAfterConsecutiveSuccesses(t *testing.T) {
	checker := &toggleChecker{}
	checker.set(false)
	m := newTestManager(checker)

	dest := &model.Destination{ID: "dest-2"}
	m.Track(dest)
	ctx := context.Background()
	m.ProbeOnce(ctx, dest)
	m.ProbeOnce(ctx, dest)
	assert.False(t, m.IsHealthy("dest-2"))

	checker.set(true)
	m.ProbeOnce(ctx, dest)
	assert.False(t, m.IsHealthy("dest-2"), "one success should not flip healthy yet")
	m.ProbeOnce(ctx, dest)
	assert.True(t, m.IsHealthy("dest-2"))
}

func TestThrottledProbeHoldsLastKnownHealth(t *testing.T) {
	checker := &toggleChecker{}
	checker.set(true)
	cfg := config.WatchdogConfig{UnhealthyThreshold: 1, RecoveryThreshold: 1, RemoteProbeRatePerSec: 0.001}
	m := New(cfg, logging.New("test"), eventbus.New(), checker, nil, nil, nil)

	dest := &model.Destination{ID: "dest-4"}
	m.Track(dest)
	ctx := context.Background()

	m.ProbeOnce(ctx, dest) // consumes the single burst token
	assert.True(t, m.IsHealthy("dest-4"))

	checker.set(false)
	m.ProbeOnce(ctx, dest) // throttled: should hold healthy, not flip on this tick
	assert.True(t, m.IsHealthy("dest-4"), "throttled tick should not perform a real probe")
}

func TestNotifyStreamStartedResolvesStreamIDViaFinder(t *testing.T) {
	lookup := &fakeDestLookup{destinations: map[string]*model.Destination{
		"dest-5": {ID: "dest-5", URL: "rtmp://example/live/key"},
	}}
	finder := &fakeFinder{urlToStreamID: map[string]string{"rtmp://example/live/key": "exec:exec-9"}}
	cfg := config.WatchdogConfig{UnhealthyThreshold: 2, RecoveryThreshold: 2}
	m := New(cfg, logging.New("test"), eventbus.New(), LocalOnlyChecker{}, nil, finder, lookup)

	m.NotifyStreamStarted([]string{"dest-5"}, "exec:exec-9")

	statuses := m.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, "dest-5", statuses[0].DestinationID)
	assert.Equal(t, "exec:exec-9", statuses[0].StreamID)
	assert.True(t, statuses[0].Monitoring)
}

func TestNotifyStreamStartedArmsButDoesNotMonitorWhenUnresolved(t *testing.T) {
	lookup := &fakeDestLookup{destinations: map[string]*model.Destination{
		"dest-6": {ID: "dest-6", URL: "rtmp://example/live/other"},
	}}
	finder := &fakeFinder{urlToStreamID: map[string]string{}}
	cfg := config.WatchdogConfig{UnhealthyThreshold: 2, RecoveryThreshold: 2}
	m := New(cfg, logging.New("test"), eventbus.New(), LocalOnlyChecker{}, nil, finder, lookup)

	m.NotifyStreamStarted([]string{"dest-6"}, "exec:exec-10")

	statuses := m.Status()
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Monitoring, "a destination with no matching running process must be armed but not monitoring")
}

func TestNotifyStreamStoppedUntracksItsDestinations(t *testing.T) {
	lookup := &fakeDestLookup{destinations: map[string]*model.Destination{
		"dest-7": {ID: "dest-7", URL: "rtmp://example/live/key7"},
	}}
	finder := &fakeFinder{urlToStreamID: map[string]string{"rtmp://example/live/key7": "exec:exec-11"}}
	cfg := config.WatchdogConfig{UnhealthyThreshold: 2, RecoveryThreshold: 2}
	m := New(cfg, logging.New("test"), eventbus.New(), LocalOnlyChecker{}, nil, finder, lookup)

	m.NotifyStreamStarted([]string{"dest-7"}, "exec:exec-11")
	require.Len(t, m.Status(), 1)

	m.NotifyStreamStopped("exec:exec-11")
	assert.Empty(t, m.Status())
}

// TestProbeOnceTriggersRealRecoveryRestart covers the slow-path recovery
// the spec requires: after consecutive unhealthy checks trip the
// threshold, the manager must actually call the configured Restarter
// against the destination's resolved stream id, not just flip a health
// flag.
func TestProbeOnceTriggersRealRecoveryRestart(t *testing.T) {
	checker := &toggleChecker{}
	checker.set(false)
	lookup := &fakeDestLookup{destinations: map[string]*model.Destination{
		"dest-8": {ID: "dest-8", URL: "rtmp://example/live/key8"},
	}}
	finder := &fakeFinder{urlToStreamID: map[string]string{"rtmp://example/live/key8": "exec:exec-12"}}
	restarter := &fakeRestarter{}
	cfg := config.WatchdogConfig{UnhealthyThreshold: 2, RecoveryThreshold: 2, RestartCooldown: 10 * time.Millisecond, RemoteProbeRatePerSec: 1000}
	m := New(cfg, logging.New("test"), eventbus.New(), checker, restarter, finder, lookup)

	m.NotifyStreamStarted([]string{"dest-8"}, "exec:exec-12")

	ctx := context.Background()
	m.ProbeOnce(ctx, &model.Destination{ID: "dest-8", URL: "rtmp://example/live/key8"})
	m.ProbeOnce(ctx, &model.Destination{ID: "dest-8", URL: "rtmp://example/live/key8"})

	require.Eventually(t, func() bool {
		return restarter.count() == 1
	}, time.Second, 5*time.Millisecond, "the watchdog must actually restart the resolved stream after the threshold trips")
}

func TestManualRestartOperationInvokesRestarter(t *testing.T) {
	lookup := &fakeDestLookup{destinations: map[string]*model.Destination{
		"dest-9": {ID: "dest-9", URL: "rtmp://example/live/key9"},
	}}
	finder := &fakeFinder{urlToStreamID: map[string]string{"rtmp://example/live/key9": "exec:exec-13"}}
	restarter := &fakeRestarter{}
	cfg := config.WatchdogConfig{UnhealthyThreshold: 2, RecoveryThreshold: 2, RestartCooldown: 10 * time.Millisecond}
	m := New(cfg, logging.New("test"), eventbus.New(), LocalOnlyChecker{}, restarter, finder, lookup)

	m.NotifyStreamStarted([]string{"dest-9"}, "exec:exec-13")

	require.NoError(t, m.Restart(context.Background(), "dest-9"))
	assert.Equal(t, 1, restarter.count())
}

func TestRestartGuardPreventsConcurrentRestart(t *testing.T) {
	m := newTestManager(LocalOnlyChecker{})
	dest := &model.Destination{ID: "dest-3"}
	m.Track(dest)

	assert.True(t, m.TryBeginRestart("dest-3"))
	assert.False(t, m.TryBeginRestart("dest-3"), "second concurrent restart attempt must be refused")

	m.EndRestart("dest-3")
	assert.Eventually(t, func() bool {
		return m.TryBeginRestart("dest-3")
	}, time.Second, 5*time.Millisecond)
}
