package ui

import (
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"
)

var (
	meshColor   = color.RGBA{R: 0, G: 255, B: 128, A: 255}
	statusColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	alertColor  = color.RGBA{R: 255, G: 64, B: 64, A: 255}
)

// Canvas is the transparent overlay the detection session draws on. It is
// composited over the camera frame by Window.
type Canvas struct {
	mu        sync.Mutex
	width     int
	height    int
	overlay   gocv.Mat // BGR strokes
	mask      gocv.Mat // non-zero where overlay is drawn
	thickness int
}

// NewCanvas creates an empty canvas. It has no size until the first Resize.
func NewCanvas() *Canvas {
	return &Canvas{
		overlay:   gocv.NewMat(),
		mask:      gocv.NewMat(),
		thickness: 1,
	}
}

// Resize reallocates the overlay. Contents are discarded.
func (c *Canvas) Resize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if width <= 0 || height <= 0 {
		return
	}
	c.overlay.Close()
	c.mask.Close()
	c.overlay = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	c.mask = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)
	c.width, c.height = width, height
	c.thickness = strokeWidth(width)
	c.clear()
}

// Size returns the canvas dimensions
func (c *Canvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// Clear erases all strokes
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
}

func (c *Canvas) clear() {
	if c.overlay.Empty() {
		return
	}
	c.overlay.SetTo(gocv.NewScalar(0, 0, 0, 0))
	c.mask.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

// Polyline strokes a path in canvas pixels.
func (c *Canvas) Polyline(points []image.Point, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overlay.Empty() || len(points) < 2 {
		return
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{points})
	defer pv.Close()

	gocv.Polylines(&c.overlay, pv, closed, meshColor, c.thickness)
	gocv.Polylines(&c.mask, pv, closed, color.RGBA{R: 255, G: 255, B: 255, A: 255}, c.thickness)
}

// Composite draws the overlay onto frame. The frame is resized to the
// canvas first when their sizes differ.
func (c *Canvas) Composite(frame *gocv.Mat) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overlay.Empty() || frame.Empty() {
		return
	}
	if frame.Cols() != c.width || frame.Rows() != c.height {
		gocv.Resize(*frame, frame, image.Pt(c.width, c.height), 0, 0, gocv.InterpolationLinear)
	}
	c.overlay.CopyToWithMask(frame, c.mask)
}

// Close releases the overlay buffers
func (c *Canvas) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlay.Close()
	c.mask.Close()
	return nil
}

// strokeWidth scales line thickness with the display width.
func strokeWidth(width int) int {
	return max(1, width/640)
}
