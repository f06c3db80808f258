package ui

import (
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facesignal/internal/expression"
	"github.com/dudu/facesignal/internal/posture"
)

// Window manages the preview display
type Window struct {
	window     *gocv.Window
	name       string
	lastFrame  time.Time
	frameCount int
	fps        float64

	mu     sync.Mutex
	status []string
	alert  bool
}

// NewWindow creates a new preview window
func NewWindow(name string, width, height int) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(width, height)
	window.MoveWindow(100, 100)
	return &Window{
		window:    window,
		name:      name,
		lastFrame: time.Now(),
	}
}

// SetStatus records the latest classification for display. Safe to call
// from the detection callback.
func (w *Window) SetStatus(expr expression.Result, pose posture.Result) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = StatusLines(expr, pose)
	w.alert = pose.Level >= posture.LevelModerate
}

// Show composites the canvas over frame, draws FPS and status text and
// displays the result.
func (w *Window) Show(frame *gocv.Mat, canvas *Canvas) {
	w.frameCount++
	now := time.Now()

	// Calculate FPS every second
	elapsed := now.Sub(w.lastFrame)
	if elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}

	if canvas != nil {
		canvas.Composite(frame)
	}

	gocv.PutText(frame, fmt.Sprintf("FPS: %.1f", w.fps), image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, statusColor, 2)

	w.mu.Lock()
	lines, alert := w.status, w.alert
	w.mu.Unlock()

	c := statusColor
	if alert {
		c = alertColor
	}
	for i, line := range lines {
		gocv.PutText(frame, line, image.Pt(10, 60+i*25),
			gocv.FontHersheyPlain, 1.5, c, 2)
	}

	w.window.IMShow(*frame)
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}

// StatusLines formats a classification as overlay text.
func StatusLines(expr expression.Result, pose posture.Result) []string {
	var flags []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{expr.Blink, "blink"},
		{expr.MouthOpen, "mouth open"},
		{expr.Smile, "smile"},
		{expr.Surprised, "surprised"},
		{expr.Frowning, "frowning"},
	} {
		if f.on {
			flags = append(flags, f.name)
		}
	}
	if len(flags) == 0 {
		flags = append(flags, "neutral")
	}

	stance := fmt.Sprintf("Posture: %s (%.0f)", pose.Level, pose.Score)
	if pose.ForwardHead {
		stance += " forward head"
	}
	if pose.AsymmetricShoulders {
		stance += " tilted"
	}

	return []string{
		"Expression: " + strings.Join(flags, ", "),
		stance,
	}
}
