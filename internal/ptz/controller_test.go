package ptz

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vistterstream/vistterstream/internal/logging"
	"github.com/vistterstream/vistterstream/internal/model"
)

type fakeClient struct {
	calls int32
	delay time.Duration
}

func (f *fakeClient) GotoPreset(ctx context.Context, addr, user, pass, token string) error {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return nil
}

func (f *fakeClient) SetPreset(ctx context.Context, addr, user, pass, name string) (string, error) {
	return "tok-" + name, nil
}

func (f *fakeClient) AbsoluteMove(ctx context.Context, addr, user, pass string, pan, tilt, zoom float64) error {
	return nil
}

func TestGotoPresetNoopForFixedCamera(t *testing.T) {
	fc := &fakeClient{}
	c := New(fc, logging.New("test"), 0)

	cam := &model.Camera{ID: "cam-1", Type: model.CameraTypeFixed}
	preset := &model.Preset{ID: "p1", Token: "tok"}

	err := c.GotoPreset(context.Background(), cam, preset)
	require.NoError(t, err)
	assert.EqualValues(t, 0, fc.calls)
}

func TestConcurrentMovesToSamePresetCoalesce(t *testing.T) {
	fc := &fakeClient{delay: 50 * time.Millisecond}
	c := New(fc, logging.New("test"), 0)

	cam := &model.Camera{ID: "cam-1", Type: model.CameraTypePTZ, ONVIFAddr: "10.0.0.5:80"}
	preset := &model.Preset{ID: "p1", Token: "tok"}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.GotoPreset(context.Background(), cam, preset)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, fc.calls)
}

func TestCapturePresetReturnsCameraAssignedToken(t *testing.T) {
	fc := &fakeClient{}
	c := New(fc, logging.New("test"), 0)

	cam := &model.Camera{ID: "cam-1", Type: model.CameraTypePTZ, ONVIFAddr: "10.0.0.5:80"}
	preset, err := c.CapturePreset(context.Background(), cam, "wide")
	require.NoError(t, err)
	assert.Equal(t, "cam-1", preset.CameraID)
	assert.Equal(t, "wide", preset.Name)
	assert.Equal(t, "tok-wide", preset.Token)
}

func TestCapturePresetRejectsNonPTZCamera(t *testing.T) {
	fc := &fakeClient{}
	c := New(fc, logging.New("test"), 0)

	cam := &model.Camera{ID: "cam-1", Type: model.CameraTypeFixed}
	_, err := c.CapturePreset(context.Background(), cam, "wide")
	require.Error(t, err)
}

func TestGoToNoopForFixedCamera(t *testing.T) {
	fc := &fakeClient{}
	c := New(fc, logging.New("test"), 0)

	cam := &model.Camera{ID: "cam-1", Type: model.CameraTypeFixed}
	err := c.GoTo(context.Background(), cam, 0.1, 0.2, 0.3)
	require.NoError(t, err)
}
