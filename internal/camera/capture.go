// Package camera grabs webcam frames in the background and serves the most
// recent one to the detector and the preview.
package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/facesignal/pkg/log"
)

// Options configures a capture
type Options struct {
	DeviceID  int
	TargetFPS int
	Width     int
	Height    int
	// DisplayScale is the preview size relative to the native frame.
	DisplayScale float64
	Logger       logrus.FieldLogger
}

// Capture manages webcam capture
type Capture struct {
	webcam   *gocv.VideoCapture
	deviceID int
	width    int
	height   int
	interval time.Duration
	log      logrus.FieldLogger

	mu      sync.Mutex
	latest  gocv.Mat
	seq     uint64
	display float64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open opens the camera device. Frames are not read until Start.
func Open(opts Options) (*Capture, error) {
	if opts.TargetFPS <= 0 {
		opts.TargetFPS = 30
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 720
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	webcam, err := gocv.OpenVideoCapture(opts.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", opts.DeviceID, err)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	webcam.Set(gocv.VideoCaptureFPS, float64(opts.TargetFPS))

	// Camera may not support the requested resolution
	actualWidth := int(webcam.Get(gocv.VideoCaptureFrameWidth))
	actualHeight := int(webcam.Get(gocv.VideoCaptureFrameHeight))

	logger.WithFields(log.Fields{
		"device": opts.DeviceID,
		"width":  actualWidth,
		"height": actualHeight,
	}).Info("camera opened")

	return &Capture{
		webcam:   webcam,
		deviceID: opts.DeviceID,
		width:    actualWidth,
		height:   actualHeight,
		interval: time.Second / time.Duration(opts.TargetFPS),
		log:      logger,
		latest:   gocv.NewMat(),
		display:  opts.DisplayScale,
	}, nil
}

// Start reads frames on a background goroutine until ctx is done or Close
// is called.
func (c *Capture) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.grab(ctx)
	}()
}

func (c *Capture) grab(ctx context.Context) {
	frame := gocv.NewMat()
	defer frame.Close()

	misses := 0
	for ctx.Err() == nil {
		if !c.webcam.Read(&frame) || frame.Empty() {
			misses++
			if misses == 30 {
				c.log.WithField("device", c.deviceID).Warn("camera delivered no frames")
			}
			select {
			case <-ctx.Done():
			case <-time.After(c.interval):
			}
			continue
		}
		misses = 0

		c.mu.Lock()
		frame.CopyTo(&c.latest)
		c.seq++
		c.mu.Unlock()
	}
}

// Snapshot copies the latest frame into dst. It returns false before the
// first frame arrives.
func (c *Capture) Snapshot(dst *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seq == 0 || c.latest.Empty() {
		return false
	}
	c.latest.CopyTo(dst)
	return true
}

// NativeSize returns the camera resolution
func (c *Capture) NativeSize() (int, int) {
	return c.width, c.height
}

// DisplaySize returns the preview size
func (c *Capture) DisplaySize() (int, int) {
	c.mu.Lock()
	scale := c.display
	c.mu.Unlock()
	return scaleSize(c.width, c.height, scale)
}

// Close stops the grabber and releases the camera
func (c *Capture) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return nil
	}
	err := c.webcam.Close()
	c.webcam = nil
	return errors.Join(err, c.latest.Close())
}

// scaleSize scales a frame size, keeping it at least one pixel. A
// non-positive scale means native size.
func scaleSize(width, height int, scale float64) (int, int) {
	if scale <= 0 || width <= 0 || height <= 0 {
		return width, height
	}
	w := int(float64(width)*scale + 0.5)
	h := int(float64(height)*scale + 0.5)
	return max(w, 1), max(h, 1)
}
