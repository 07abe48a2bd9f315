package eventbus

import (
	"sync"
	"time"

	"github.com/vistterstream/vistterstream/internal/model"
)

// PositionStore holds the current PlaybackPosition for every running
// execution. Exactly one goroutine — the owning Timeline Executor — writes
// a given execution's entry; any number of readers may call Get
// concurrently. This single-writer/many-reader shape is why a mutex-guarded
// map is used instead of sync.Map: writes are infrequent (≥2Hz per
// execution, not per-read contended) and a plain map with an RWMutex reads
// just as cheaply. The zero value is not usable, since its map is nil;
// construct one with NewPositionStore.
type PositionStore struct {
	mu    sync.RWMutex
	byExec map[string]model.PlaybackPosition
}

// NewPositionStore returns an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{byExec: make(map[string]model.PlaybackPosition)}
}

// Publish records the current position for an execution. Only the owning
// executor goroutine should call this for a given executionID.
func (s *PositionStore) Publish(executionID string, offset time.Duration, loopCount int) {
	s.mu.Lock()
	s.byExec[executionID] = model.PlaybackPosition{
		ExecutionID: executionID,
		Offset:      offset,
		LoopCount:   loopCount,
		UpdatedAt:   time.Now(),
	}
	s.mu.Unlock()
}

// Get returns the last published position for executionID and whether one
// exists.
func (s *PositionStore) Get(executionID string) (model.PlaybackPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.byExec[executionID]
	return pos, ok
}

// Clear removes an execution's position, called once it stops.
func (s *PositionStore) Clear(executionID string) {
	s.mu.Lock()
	delete(s.byExec, executionID)
	s.mu.Unlock()
}
