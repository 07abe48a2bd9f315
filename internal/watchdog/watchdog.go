// Package watchdog implements the Watchdog Manager (C8): per-destination
// health tracking with hysteresis, a cooldown guard against restart storms,
// and an optional remote liveness check pluggable per platform. Besides
// classifying health and emitting events, a Manager configured with a
// Restarter restarts a destination's resolved stream through it when the
// destination turns unhealthy, and on a manual Restart call.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vistterstream/vistterstream/internal/config"
	"github.com/vistterstream/vistterstream/internal/eventbus"
	"github.com/vistterstream/vistterstream/internal/logging"
	"github.com/vistterstream/vistterstream/internal/model"
)

// Restarter performs the actual recovery action the spec calls "instruct
// the executor to stop and restart the affected stream" once the watchdog
// has decided a destination needs it. The Process Supervisor implements
// this directly: restarting a stream id is exactly stop-then-start with
// its last invocation.
type Restarter interface {
	Restart(ctx context.Context, streamID string) error
}

// DestinationLookup resolves a destination id to its record, letting the
// Manager read a destination's rtmp_url when auto-resolving it to the
// stream id carrying it.
type DestinationLookup interface {
	Destination(id string) (*model.Destination, bool)
}

// StreamFinder resolves a destination's rtmp_url to the stream id of the
// running encoder process carrying it, per the spec's
// find_by_output_url(destination.rtmp_url) contract.
type StreamFinder interface {
	FindByOutputURL(outputURL string) (string, bool)
}

// RemoteLivenessChecker probes a destination's remote ingest for liveness
// beyond what the local encoder process can see (see DESIGN.md Open
// Question 2). Implementations are platform-specific; LocalOnlyChecker is
// the default for platforms with no documented check.
type RemoteLivenessChecker interface {
	IsLive(ctx context.Context, dest *model.Destination) (bool, error)
}

// LocalOnlyChecker always reports true: there is nothing to check beyond
// the local encoder's own liveness, which the caller already tracks
// through the Process Supervisor.
type LocalOnlyChecker struct{}

func (LocalOnlyChecker) IsLive(ctx context.Context, dest *model.Destination) (bool, error) {
	return true, nil
}

// health is a destination's current classification.
type health int

const (
	healthy health = iota
	unhealthy
)

type destState struct {
	mu                sync.Mutex
	record            health
	consecutiveFail   int
	consecutiveOK     int
	restartInProgress bool
	lastTransition    time.Time
	streamID          string // resolved stream id carrying this destination, "" if armed but not monitoring
}

// DestinationHealth is a point-in-time snapshot of one destination's
// watchdog state, returned by Manager.Status.
type DestinationHealth struct {
	DestinationID string
	Healthy       bool
	StreamID      string // empty if armed but not monitoring
	Monitoring    bool
}

// Manager tracks destination health for every active execution's
// destinations and publishes watchdog.unhealthy / watchdog.recovered events
// on transition.
type Manager struct {
	cfg       config.WatchdogConfig
	log       *logging.Logger
	bus       *eventbus.Bus
	checker   RemoteLivenessChecker
	restarter Restarter
	finder    StreamFinder
	destLookup DestinationLookup

	// remoteLimiter throttles how often ProbeOnce actually reaches out to
	// checker.IsLive: remote checks hit a third-party page or API, so they
	// run at cfg.RemoteProbeRatePerSec rather than on every CheckInterval
	// tick. Its burst is one second's worth of probes (at least one). A
	// throttled tick keeps the destination's last known health rather than
	// forcing a probe.
	remoteLimiter *rate.Limiter

	mu    sync.RWMutex
	state map[string]*destState // keyed by Destination.ID

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Manager. Pass nil for checker to use LocalOnlyChecker.
// restarter and destLookup may be nil for callers that only exercise health
// classification (most tests); without a restarter, ProbeOnce still tracks
// hysteresis and publishes watchdog.unhealthy/recovered, it just never
// triggers an automatic recovery attempt. finder may also be nil, in which
// case NotifyStreamStarted trusts the stream_id the caller passed it
// instead of cross-checking via find_by_output_url.
func New(cfg config.WatchdogConfig, log *logging.Logger, bus *eventbus.Bus, checker RemoteLivenessChecker, restarter Restarter, finder StreamFinder, destLookup DestinationLookup) *Manager {
	if checker == nil {
		checker = LocalOnlyChecker{}
	}
	limit := cfg.RemoteProbeRatePerSec
	if limit <= 0 {
		limit = 0.2
	}
	burst := int(limit)
	if burst < 1 {
		burst = 1
	}
	return &Manager{
		cfg:           cfg,
		log:           log,
		bus:           bus,
		checker:       checker,
		restarter:     restarter,
		finder:        finder,
		destLookup:    destLookup,
		remoteLimiter: rate.NewLimiter(rate.Limit(limit), burst),
		state:         make(map[string]*destState),
	}
}

// Track begins monitoring dest, initializing it as healthy until the first
// failing probe.
func (m *Manager) Track(dest *model.Destination) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.state[dest.ID]; exists {
		return
	}
	m.state[dest.ID] = &destState{record: healthy, lastTransition: time.Now()}
}

// Untrack stops monitoring a destination, e.g. once its execution stops.
func (m *Manager) Untrack(destinationID string) {
	m.mu.Lock()
	delete(m.state, destinationID)
	m.mu.Unlock()
}

// IsHealthy reports the last known health classification for a destination.
func (m *Manager) IsHealthy(destinationID string) bool {
	m.mu.RLock()
	st, ok := m.state[destinationID]
	m.mu.RUnlock()
	if !ok {
		return true
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.record == healthy
}

// ProbeOnce runs one liveness probe for dest and folds the result into its
// hysteresis counters, flagging unhealthy after cfg.UnhealthyThreshold
// consecutive failures and recovered after cfg.RecoveryThreshold
// consecutive successes — the same shape as birdnet-go's
// ConsecutiveTimeouts counter. (The Camera Relay Manager differs: it flags
// a relay unhealthy on a single failed probe.)
func (m *Manager) ProbeOnce(ctx context.Context, dest *model.Destination) {
	m.mu.RLock()
	st, ok := m.state[dest.ID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	var probeOK bool
	if m.remoteLimiter.Allow() {
		live, err := m.checker.IsLive(ctx, dest)
		probeOK = err == nil && live
	} else {
		// Throttled: hold the destination at its last recorded health
		// rather than forcing a network round trip this tick.
		st.mu.Lock()
		probeOK = st.record == healthy
		st.mu.Unlock()
	}

	st.mu.Lock()
	wasHealthy := st.record == healthy
	if probeOK {
		st.consecutiveOK++
		st.consecutiveFail = 0
		if !wasHealthy {
			threshold := m.cfg.RecoveryThreshold
			if threshold <= 0 {
				threshold = 2
			}
			if st.consecutiveOK >= threshold {
				st.record = healthy
				st.lastTransition = time.Now()
			}
		}
	} else {
		st.consecutiveFail++
		st.consecutiveOK = 0
		threshold := m.cfg.UnhealthyThreshold
		if threshold <= 0 {
			threshold = 3
		}
		if wasHealthy && st.consecutiveFail >= threshold {
			st.record = unhealthy
			st.lastTransition = time.Now()
		}
	}
	becameHealthy := !wasHealthy && st.record == healthy
	becameUnhealthy := wasHealthy && st.record == unhealthy
	st.mu.Unlock()

	if becameUnhealthy {
		m.log.WithField("destination_id", dest.ID).Warn("destination marked unhealthy")
		m.bus.Publish(eventbus.TopicWatchdogUnhealthy, map[string]interface{}{"destination_id": dest.ID})
		m.triggerRecovery(dest.ID)
	}
	if becameHealthy {
		m.log.WithField("destination_id", dest.ID).Info("destination recovered")
		m.bus.Publish(eventbus.TopicWatchdogRecovered, map[string]interface{}{"destination_id": dest.ID})
	}
}

// triggerRecovery fires the slow-path recovery the spec describes for a
// destination that just crossed the unhealthy threshold: claim the restart
// guard via TryBeginRestart, restart the destination's resolved stream, and
// release the guard through EndRestart's cooldown regardless of outcome —
// the defense-in-depth path behind the Process Supervisor's own fast
// crash-restart, catching zombies (process alive, no real output) that C1
// cannot see. A no-op if no Restarter is configured or the destination has
// no resolved stream id (armed but not monitoring).
func (m *Manager) triggerRecovery(destinationID string) {
	if m.restarter == nil {
		return
	}
	m.mu.RLock()
	st, ok := m.state[destinationID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	streamID := st.streamID
	st.mu.Unlock()
	if streamID == "" {
		return
	}
	if !m.TryBeginRestart(destinationID) {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.EndRestart(destinationID)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.restarter.Restart(ctx, streamID); err != nil {
			m.log.WithError(err).WithField("destination_id", destinationID).WithField("stream_id", streamID).Error("watchdog-triggered recovery restart failed")
			return
		}
		m.log.WithField("destination_id", destinationID).WithField("stream_id", streamID).Warn("watchdog triggered encoder restart after consecutive unhealthy checks")
	}()
}

// NotifyStreamStarted records that streamID is now carrying the given
// destinations, auto-resolving each to its concrete stream id via
// find_by_output_url(destination.rtmp_url) when a StreamFinder is
// configured. A destination with no matching running process is recorded
// as armed but not monitoring: tracked for future transitions but never
// recovered, since there is nothing running to restart yet.
func (m *Manager) NotifyStreamStarted(destinationIDs []string, streamID string) {
	for _, id := range destinationIDs {
		dest, ok := m.lookupDestination(id)
		if !ok {
			continue
		}
		m.Track(dest)

		resolved := streamID
		if m.finder != nil {
			if found, ok := m.finder.FindByOutputURL(dest.URL); ok {
				resolved = found
			} else {
				resolved = ""
			}
		}

		m.mu.RLock()
		st := m.state[id]
		m.mu.RUnlock()
		st.mu.Lock()
		st.streamID = resolved
		st.mu.Unlock()
	}
}

// NotifyStreamStopped stops monitoring every destination currently
// resolved to streamID, since the stream backing them no longer exists.
func (m *Manager) NotifyStreamStopped(streamID string) {
	m.mu.Lock()
	var toRemove []string
	for id, st := range m.state {
		st.mu.Lock()
		match := st.streamID == streamID
		st.mu.Unlock()
		if match {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		delete(m.state, id)
	}
	m.mu.Unlock()
}

func (m *Manager) lookupDestination(id string) (*model.Destination, bool) {
	if m.destLookup == nil {
		return nil, false
	}
	return m.destLookup.Destination(id)
}

// Status returns a point-in-time health snapshot for every tracked
// destination, per the spec's status() operation.
func (m *Manager) Status() []DestinationHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DestinationHealth, 0, len(m.state))
	for id, st := range m.state {
		st.mu.Lock()
		out = append(out, DestinationHealth{
			DestinationID: id,
			Healthy:       st.record == healthy,
			StreamID:      st.streamID,
			Monitoring:    st.streamID != "",
		})
		st.mu.Unlock()
	}
	return out
}

// StartMonitoring begins tracking dest, the spec's start(destination_id)
// operation.
func (m *Manager) StartMonitoring(dest *model.Destination) {
	m.Track(dest)
}

// StopMonitoring stops tracking destinationID, the spec's
// stop(destination_id) operation.
func (m *Manager) StopMonitoring(destinationID string) {
	m.Untrack(destinationID)
}

// Restart manually triggers the spec's restart(destination_id) operation:
// the same recovery path ProbeOnce takes automatically after the unhealthy
// threshold trips, invoked on demand (an operator action, say) instead of
// by hysteresis.
func (m *Manager) Restart(ctx context.Context, destinationID string) error {
	if m.restarter == nil {
		return fmt.Errorf("watchdog: no restarter configured")
	}
	m.mu.RLock()
	st, ok := m.state[destinationID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("watchdog: destination %s is not tracked", destinationID)
	}
	st.mu.Lock()
	streamID := st.streamID
	st.mu.Unlock()
	if streamID == "" {
		return fmt.Errorf("watchdog: destination %s has no monitored stream to restart", destinationID)
	}
	if !m.TryBeginRestart(destinationID) {
		return fmt.Errorf("watchdog: restart already in progress for destination %s", destinationID)
	}
	defer m.EndRestart(destinationID)
	return m.restarter.Restart(ctx, streamID)
}

// TryBeginRestart reports whether a restart may proceed for destinationID,
// atomically claiming the restartInProgress guard if so. Callers
// (triggerRecovery and Restart in this package) must call EndRestart once
// the restart attempt completes, whether it succeeded or failed.
func (m *Manager) TryBeginRestart(destinationID string) bool {
	m.mu.RLock()
	st, ok := m.state[destinationID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.restartInProgress {
		return false
	}
	st.restartInProgress = true
	return true
}

// EndRestart releases the restart guard after a configured cooldown, so a
// flapping destination cannot trigger a restart storm.
func (m *Manager) EndRestart(destinationID string) {
	m.mu.RLock()
	st, ok := m.state[destinationID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	cooldown := m.cfg.RestartCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		time.Sleep(cooldown)
		st.mu.Lock()
		st.restartInProgress = false
		st.mu.Unlock()
	}()
}

// Run starts a ticker loop probing every tracked destination at
// cfg.CheckInterval until ctx is canceled. Stop should be called to await
// its shutdown alongside any pending cooldown goroutines from EndRestart.
func (m *Manager) Run(ctx context.Context, destinations func() []*model.Destination) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	interval := m.cfg.CheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, d := range destinations() {
					m.ProbeOnce(ctx, d)
				}
			}
		}
	}()
}

// Stop cancels the monitor loop and waits for it, and for any in-flight
// cooldown goroutines, to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
