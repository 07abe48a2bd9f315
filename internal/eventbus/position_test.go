package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPositionStorePublishAndGet(t *testing.T) {
	s := NewPositionStore()

	_, ok := s.Get("exec-1")
	assert.False(t, ok)

	s.Publish("exec-1", 41*time.Second, 0)
	pos, ok := s.Get("exec-1")
	assert.True(t, ok)
	assert.Equal(t, 41*time.Second, pos.Offset)
	assert.Equal(t, 0, pos.LoopCount)

	s.Publish("exec-1", 2*time.Second, 1)
	pos, ok = s.Get("exec-1")
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, pos.Offset)
	assert.Equal(t, 1, pos.LoopCount)
}

func TestPositionStoreClear(t *testing.T) {
	s := NewPositionStore()
	s.Publish("exec-1", time.Second, 0)

	s.Clear("exec-1")
	_, ok := s.Get("exec-1")
	assert.False(t, ok)
}
