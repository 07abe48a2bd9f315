package ptz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vistterstream/vistterstream/internal/logging"
	"github.com/vistterstream/vistterstream/internal/model"
)

// Controller sequences preset recalls for PTZ cameras: it coalesces
// concurrent requests to move the same camera to the same preset into one
// in-flight SOAP call, and waits a configured settle time after the call
// returns before reporting the move complete, since a physical PTZ head
// keeps moving briefly after the camera acknowledges the command.
type Controller struct {
	client     Client
	log        *logging.Logger
	settleTime time.Duration

	mu       sync.Mutex
	inFlight map[string]*move // key: cameraID + "/" + presetID
}

// move is a single in-flight preset recall; waiters block on done, which is
// closed once, after err is written, so any number of joiners observe the
// same result.
type move struct {
	done chan struct{}
	err  error
}

// New constructs a Controller.
func New(client Client, log *logging.Logger, settleTime time.Duration) *Controller {
	return &Controller{
		client:     client,
		log:        log,
		settleTime: settleTime,
		inFlight:   make(map[string]*move),
	}
}

// GotoPreset recalls preset on cam. If cam is not a PTZ camera, this is a
// no-op success — callers that route ShowCameraAction through a shared path
// for both fixed and PTZ cameras don't need a type switch of their own.
func (c *Controller) GotoPreset(ctx context.Context, cam *model.Camera, preset *model.Preset) error {
	if !cam.IsPTZ() || preset == nil {
		return nil
	}

	key := cam.ID + "/" + preset.ID

	c.mu.Lock()
	if m, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		select {
		case <-m.done:
			return m.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m := &move{done: make(chan struct{})}
	c.inFlight[key] = m
	c.mu.Unlock()

	m.err = c.execute(ctx, cam, preset)

	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()
	close(m.done)

	return m.err
}

// CapturePreset asks cam to remember its current position under name,
// returning a Preset wrapping the token the camera assigned. Capturing is
// not coalesced like GotoPreset: each call names a distinct new preset, so
// there is nothing to deduplicate concurrent callers against.
func (c *Controller) CapturePreset(ctx context.Context, cam *model.Camera, name string) (*model.Preset, error) {
	if !cam.IsPTZ() {
		return nil, fmt.Errorf("ptz: camera %s is not a PTZ camera", cam.ID)
	}

	log := c.log.WithField("camera_id", cam.ID).WithField("preset_name", name)
	log.Info("capturing PTZ preset")

	token, err := c.client.SetPreset(ctx, cam.ONVIFAddr, cam.ONVIFUser, cam.ONVIFPass, name)
	if err != nil {
		log.WithError(err).Error("PTZ preset capture failed")
		return nil, fmt.Errorf("ptz: capture preset %q on camera %s: %w", name, cam.ID, err)
	}

	return &model.Preset{ID: uuid.New().String(), CameraID: cam.ID, Name: name, Token: token}, nil
}

// GoTo drives cam directly to the given pan/tilt/zoom coordinates rather
// than recalling a stored preset, then waits settleTime the same as
// GotoPreset. A non-PTZ camera silently succeeds, matching GotoPreset's
// no-op contract.
func (c *Controller) GoTo(ctx context.Context, cam *model.Camera, pan, tilt, zoom float64) error {
	if !cam.IsPTZ() {
		return nil
	}

	log := c.log.WithField("camera_id", cam.ID)
	log.Info("moving PTZ to absolute position")

	if err := c.client.AbsoluteMove(ctx, cam.ONVIFAddr, cam.ONVIFUser, cam.ONVIFPass, pan, tilt, zoom); err != nil {
		log.WithError(err).Error("PTZ absolute move failed")
		return fmt.Errorf("ptz: go_to camera %s: %w", cam.ID, err)
	}

	if c.settleTime > 0 {
		select {
		case <-time.After(c.settleTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	log.Info("PTZ absolute move settled")
	return nil
}

func (c *Controller) execute(ctx context.Context, cam *model.Camera, preset *model.Preset) error {
	log := c.log.WithField("camera_id", cam.ID).WithField("preset_id", preset.ID)
	log.Info("recalling PTZ preset")

	if err := c.client.GotoPreset(ctx, cam.ONVIFAddr, cam.ONVIFUser, cam.ONVIFPass, preset.Token); err != nil {
		log.WithError(err).Error("PTZ preset recall failed")
		return fmt.Errorf("ptz: goto preset %s on camera %s: %w", preset.ID, cam.ID, err)
	}

	if c.settleTime > 0 {
		select {
		case <-time.After(c.settleTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	log.Info("PTZ preset recall settled")
	return nil
}
