package appliance

import (
	"sync"

	"github.com/vistterstream/vistterstream/internal/model"
)

// Registry is an in-memory CameraPresetLookup. The appliance's persistence
// layer (out of scope for this module) is expected to populate it on
// startup and keep it current as entities change; the CORE only reads
// through the Registry, never resolves entities by itself.
type Registry struct {
	mu           sync.RWMutex
	cameras      map[string]*model.Camera
	presets      map[string]*model.Preset
	assets       map[string]*model.Asset
	destinations map[string]*model.Destination
	timelines    map[string]*model.Timeline
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		cameras:      make(map[string]*model.Camera),
		presets:      make(map[string]*model.Preset),
		assets:       make(map[string]*model.Asset),
		destinations: make(map[string]*model.Destination),
		timelines:    make(map[string]*model.Timeline),
	}
}

func (r *Registry) PutCamera(c *model.Camera)           { r.mu.Lock(); r.cameras[c.ID] = c; r.mu.Unlock() }
func (r *Registry) PutPreset(p *model.Preset)           { r.mu.Lock(); r.presets[p.ID] = p; r.mu.Unlock() }
func (r *Registry) PutAsset(a *model.Asset)             { r.mu.Lock(); r.assets[a.ID] = a; r.mu.Unlock() }
func (r *Registry) PutDestination(d *model.Destination) { r.mu.Lock(); r.destinations[d.ID] = d; r.mu.Unlock() }

func (r *Registry) Camera(id string) (*model.Camera, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cameras[id]
	return c, ok
}

func (r *Registry) Preset(id string) (*model.Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[id]
	return p, ok
}

func (r *Registry) Asset(id string) (*model.Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[id]
	return a, ok
}

func (r *Registry) Destination(id string) (*model.Destination, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.destinations[id]
	return d, ok
}

// Destinations returns every registered destination, used by the Watchdog
// Manager's monitor loop to enumerate what to probe.
func (r *Registry) Destinations() []*model.Destination {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Destination, 0, len(r.destinations))
	for _, d := range r.destinations {
		out = append(out, d)
	}
	return out
}

// Cameras returns every registered camera, used by the Camera Relay
// Manager's eager boot-time start to enumerate what to relay.
func (r *Registry) Cameras() []*model.Camera {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Camera, 0, len(r.cameras))
	for _, c := range r.cameras {
		out = append(out, c)
	}
	return out
}

// Timeline looks up a stored timeline by id, used by the Stream Router's
// start_preview / go_live operations to resolve a timeline id to the
// definition it must execute.
func (r *Registry) Timeline(id string) (*model.Timeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tl, ok := r.timelines[id]
	return tl, ok
}

// PutTimeline registers a timeline definition the router can resolve by id.
func (r *Registry) PutTimeline(tl *model.Timeline) {
	r.mu.Lock()
	r.timelines[tl.ID] = tl
	r.mu.Unlock()
}
