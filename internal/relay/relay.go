// Package relay implements the Camera Relay Manager (C2): one local RTSP
// relay per configured camera, published at a stable deterministic local
// URL so multiple timeline executions can consume one camera without each
// opening its own upstream RTSP connection. Health is tracked by
// consecutive probe outcome, following the same hysteresis shape the
// Watchdog Manager uses for destinations.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vistterstream/vistterstream/internal/config"
	"github.com/vistterstream/vistterstream/internal/eventbus"
	"github.com/vistterstream/vistterstream/internal/logging"
	"github.com/vistterstream/vistterstream/internal/model"
	"github.com/vistterstream/vistterstream/internal/process"
)

// Prober reports whether a camera relay's local output is currently
// producing data. Production code backs this with AdminProber, which asks
// the local muxer's admin API about the relay's path; tests substitute a
// fake.
type Prober interface {
	Probe(ctx context.Context, localURL string) (healthy bool, err error)
}

type relayState struct {
	mu      sync.Mutex
	record  model.CameraRelay
	healthy int
	unhealthy int
}

// Manager owns the full set of running camera relays.
type Manager struct {
	cfg    config.RelayConfig
	log    *logging.Logger
	sup    *process.Supervisor
	prober Prober
	bus    *eventbus.Bus

	mu       sync.RWMutex
	relays   map[string]*relayState // keyed by CameraID
	nextPort int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Manager. Relays are run as supervised processes through
// sup, since a camera relay is, mechanically, one more ffmpeg child process
// that re-publishes RTSP to a local port. bus may be nil; callers that don't
// care about relay.health_changed events (most tests) can omit it.
func New(cfg config.RelayConfig, log *logging.Logger, sup *process.Supervisor, prober Prober, bus *eventbus.Bus) *Manager {
	port := cfg.LocalPortRangeLow
	if port == 0 {
		port = 18554
	}
	return &Manager{
		cfg:      cfg,
		log:      log,
		sup:      sup,
		prober:   prober,
		bus:      bus,
		relays:   make(map[string]*relayState),
		nextPort: port,
	}
}

// publish is a nil-safe wrapper since bus is optional for callers that don't
// care about relay health events.
func (m *Manager) publish(topic eventbus.Topic, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(topic, data)
}

// localURL deterministically derives the local relay URL for a camera from
// its id and an assigned port, so restarts and reconciliation don't shuffle
// addresses consumers have already cached.
func (m *Manager) localURL(cameraID string, port int) string {
	host := m.cfg.LocalHost
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("rtsp://%s:%d/relay/%s", host, port, cameraID)
}

// Start begins relaying cam's upstream feed to a local URL and returns the
// CameraRelay runtime record. Calling Start again for a camera already
// relayed returns the existing record without starting a second process.
func (m *Manager) Start(ctx context.Context, cam *model.Camera) (*model.CameraRelay, error) {
	m.mu.Lock()
	if st, exists := m.relays[cam.ID]; exists {
		m.mu.Unlock()
		st.mu.Lock()
		rec := st.record
		st.mu.Unlock()
		return &rec, nil
	}

	port := m.nextPort
	m.nextPort++
	localURL := m.localURL(cam.ID, port)
	st := &relayState{record: model.CameraRelay{
		CameraID: cam.ID,
		LocalURL: localURL,
		Status:   model.CameraRelayStarting,
		StartedAt: time.Now(),
	}}
	m.relays[cam.ID] = st
	m.mu.Unlock()

	streamID := "relay:" + cam.ID
	args := []string{"-i", cam.RTSPURL, "-c", "copy", "-f", "rtsp", localURL}
	if _, err := m.sup.Start(ctx, streamID, "ffmpeg", args); err != nil {
		m.mu.Lock()
		delete(m.relays, cam.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("relay %s: %w", cam.ID, err)
	}

	m.log.WithField("camera_id", cam.ID).WithField("local_url", localURL).Info("camera relay started")

	rec := st.record
	return &rec, nil
}

// Stop tears down a camera's relay process and removes its record.
func (m *Manager) Stop(ctx context.Context, cameraID string) error {
	m.mu.Lock()
	_, exists := m.relays[cameraID]
	delete(m.relays, cameraID)
	m.mu.Unlock()
	if !exists {
		return nil
	}
	return m.sup.Stop(ctx, "relay:"+cameraID)
}

// Status returns the current CameraRelay record for cameraID.
func (m *Manager) Status(cameraID string) (*model.CameraRelay, bool) {
	m.mu.RLock()
	st, ok := m.relays[cameraID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	rec := st.record
	return &rec, true
}

// RecordProbe folds one health probe outcome into a camera relay's
// hysteresis counters, flipping Status to Healthy after
// cfg.HealthyAfterProbes consecutive successes, and to Unhealthy on a
// single failure (losing signal should be reported immediately; regaining
// it requires sustained confirmation). The Watchdog Manager, by contrast,
// flags a destination unhealthy only after cfg.UnhealthyThreshold
// consecutive failures.
func (m *Manager) RecordProbe(cameraID string, healthy bool) {
	m.mu.RLock()
	st, ok := m.relays[cameraID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	threshold := m.cfg.HealthyAfterProbes
	if threshold <= 0 {
		threshold = 2
	}

	before := st.record.Status
	if healthy {
		st.healthy++
		st.unhealthy = 0
		if st.healthy >= threshold {
			st.record.Status = model.CameraRelayHealthy
		}
	} else {
		st.unhealthy++
		st.healthy = 0
		st.record.Status = model.CameraRelayUnhealthy
	}
	st.record.HealthyProbes = st.healthy
	st.record.UnhealthyProbes = st.unhealthy
	after := st.record.Status
	st.mu.Unlock()

	if before != after {
		m.publish(eventbus.TopicRelayHealthChanged, map[string]interface{}{
			"camera_id": cameraID,
			"status":    string(after),
		})
	}
}

// MonitorOnce probes every tracked relay once via m.prober and folds the
// result through RecordProbe. Callers drive this from a ticker.
func (m *Manager) MonitorOnce(ctx context.Context) {
	m.mu.RLock()
	ids := make(map[string]string, len(m.relays))
	for id, st := range m.relays {
		st.mu.Lock()
		ids[id] = st.record.LocalURL
		st.mu.Unlock()
	}
	m.mu.RUnlock()

	for cameraID := range ids {
		m.probeOne(ctx, cameraID)
	}
}

// probeOne probes a single tracked camera and folds the result through
// RecordProbe, skipping cameras that are no longer tracked.
func (m *Manager) probeOne(ctx context.Context, cameraID string) {
	m.mu.RLock()
	st, ok := m.relays[cameraID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	url := st.record.LocalURL
	st.mu.Unlock()

	healthy, err := m.prober.Probe(ctx, url)
	if err != nil {
		healthy = false
	}
	m.RecordProbe(cameraID, healthy)
}

// Run eagerly starts a relay for every camera cameras returns, then probes
// every tracked relay on cfg.HealthProbeInterval until ctx is canceled — the
// same eager-start-then-poll shape the Watchdog Manager's Run uses for
// destinations, so every configured camera has a warm local relay before the
// first timeline cue ever needs one, instead of paying relay startup
// latency on the critical path of a cue's first dispatch.
func (m *Manager) Run(ctx context.Context, cameras func() []*model.Camera) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for _, cam := range cameras() {
		if _, err := m.Start(ctx, cam); err != nil {
			m.log.WithError(err).WithField("camera_id", cam.ID).Error("eager relay start failed")
		}
	}

	interval := m.cfg.HealthProbeInterval
	if interval <= 0 {
		interval = 5 * time.Second
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
				m.MonitorOnce(ctx)
			}
		}
	}()
}

// StopMonitoring cancels the periodic probe loop started by Run and waits
// for it to exit. Already-running relay processes are left in place;
// callers that also want a specific camera's relay torn down call Stop.
func (m *Manager) StopMonitoring() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// WaitHealthy polls cameraID's relay until it reports Healthy or timeout
// elapses, returning the final verdict. A cue waits on this at cue entry
// rather than trusting a relay's last-known status, since the relay may
// still be warming up from a just-issued Start.
func (m *Manager) WaitHealthy(ctx context.Context, cameraID string, timeout time.Duration) bool {
	if rec, ok := m.Status(cameraID); ok && rec.Status == model.CameraRelayHealthy {
		return true
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			m.probeOne(ctx, cameraID)
			if rec, ok := m.Status(cameraID); ok && rec.Status == model.CameraRelayHealthy {
				return true
			}
			if time.Now().After(deadline) {
				return false
			}
		}
	}
}
