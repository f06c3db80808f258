// Package session drives the per-frame detection loop: it acquires a face
// landmark detector, invokes it once per scheduler tick, classifies the
// landmarks and delivers the results to a callback.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dudu/facesignal/internal/expression"
	"github.com/dudu/facesignal/internal/landmark"
	"github.com/dudu/facesignal/internal/posture"
	"github.com/dudu/facesignal/pkg/log"
)

// State is the lifecycle stage of a session
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Surface is the drawing target of the overlay. The session never reads
// back from it.
type Surface interface {
	Resize(width, height int)
	Clear()
	Polyline(points []image.Point, closed bool)
}

// MeshRenderer draws a landmark set onto a surface.
type MeshRenderer interface {
	DrawMesh(surface Surface, set landmark.Set)
}

// DetectionFunc receives the classification of one frame.
type DetectionFunc func(expression.Result, posture.Result)

// Stats counts frames seen by the loop
type Stats struct {
	Ticks     uint64 `json:"ticks"`
	Delivered uint64 `json:"delivered"`
	NoFace    uint64 `json:"no_face"`
	Failed    uint64 `json:"failed"`
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger. Defaults to a discarding logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Session) { s.log = l }
}

// WithRenderer sets the overlay renderer. Without one nothing is drawn.
func WithRenderer(r MeshRenderer) Option {
	return func(s *Session) { s.renderer = r }
}

// WithThresholds sets the expression classifier calibration
func WithThresholds(th expression.Thresholds) Option {
	return func(s *Session) { s.expressions = expression.NewClassifier(th) }
}

// WithWeights sets the posture scorer rules
func WithWeights(w posture.Weights) Option {
	return func(s *Session) { s.posture = posture.NewScorer(w) }
}

// WithFlipHorizontal asks the detector to mirror its input.
func WithFlipHorizontal(flip bool) Option {
	return func(s *Session) { s.flip = flip }
}

// Session owns one detector handle and the loop that feeds it. A session
// must not share its detector or surface with another session.
type Session struct {
	id          string
	opener      Opener
	locations   []Location
	scheduler   Scheduler
	renderer    MeshRenderer
	expressions *expression.Classifier
	posture     *posture.Scorer
	flip        bool
	log         logrus.FieldLogger

	mu          sync.Mutex
	state       State
	handle      Handle
	location    Location
	conventions []callConvention
	lastErr     error
	generation  uint64

	running   atomic.Bool
	displayW  int
	displayH  int
	ticks     atomic.Uint64
	delivered atomic.Uint64
	noFace    atomic.Uint64
	failed    atomic.Uint64
}

// New creates an uninitialized session. Locations are tried in order.
func New(opener Opener, locations []Location, scheduler Scheduler, opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		opener:      opener,
		locations:   append([]Location(nil), locations...),
		scheduler:   scheduler,
		expressions: expression.NewClassifier(expression.DefaultThresholds()),
		posture:     posture.NewScorer(posture.DefaultWeights()),
		log:         log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("session_id", s.id)
	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsReady reports whether a detector has been acquired.
func (s *Session) IsReady() bool {
	st := s.State()
	return st == StateReady || st == StateRunning
}

// Location returns where the detector was loaded from
func (s *Session) Location() Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

// LastError returns the error of the last failed initialization.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Stats returns loop counters
func (s *Session) Stats() Stats {
	return Stats{
		Ticks:     s.ticks.Load(),
		Delivered: s.delivered.Load(),
		NoFace:    s.noFace.Load(),
		Failed:    s.failed.Load(),
	}
}

// Initialize acquires the detector from the first working location. It
// returns false when every location failed; the error is kept in LastError.
func (s *Session) Initialize(ctx context.Context) bool {
	s.mu.Lock()
	switch s.state {
	case StateReady, StateRunning:
		s.mu.Unlock()
		return true
	case StateInitializing:
		s.mu.Unlock()
		return false
	}
	s.state = StateInitializing
	s.mu.Unlock()

	acq, err := acquire(ctx, s.opener, s.locations, s.log)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateUninitialized
		s.lastErr = err
		s.log.WithError(err).Error("face detection unavailable")
		return false
	}

	s.state = StateReady
	s.handle = acq.handle
	s.location = acq.location
	s.conventions = acq.conventions
	s.lastErr = nil
	s.log.WithFields(log.Fields{
		"location":    acq.location.Name,
		"conventions": len(acq.conventions),
	}).Info("detector ready")
	return true
}

// Run starts the per-frame loop, initializing first if needed. It returns
// immediately; frames are processed on the scheduler's ticks until Stop is
// called or ctx is done. If no detector can be acquired the session stays
// inert and onDetection is never called.
func (s *Session) Run(ctx context.Context, src landmark.Input, surface Surface, onDetection DetectionFunc) {
	if !s.IsReady() && !s.Initialize(ctx) {
		s.log.Warn("run skipped: detector unavailable")
		return
	}

	s.mu.Lock()
	st := s.state
	// A Stop whose tick has not run yet leaves the state at Running with the
	// flag cleared. Restarting under a new generation retires that tick.
	restart := st == StateRunning && !s.running.Load()
	if st != StateReady && !restart {
		s.mu.Unlock()
		s.log.WithField("state", st.String()).Debug("run ignored")
		return
	}
	s.state = StateRunning
	s.generation++
	gen := s.generation
	s.displayW, s.displayH = -1, -1
	s.running.Store(true)
	s.mu.Unlock()

	s.log.Info("detection loop started")
	s.scheduleNext(ctx, gen, src, surface, onDetection)
}

// Stop ends the loop. The tick in flight completes; the next tick observes
// the flag, releases the detector and schedules nothing further.
func (s *Session) Stop() {
	s.running.Store(false)
}

// Close stops the loop and releases the detector immediately. Call it only
// once the scheduler no longer runs ticks for this session.
func (s *Session) Close() error {
	s.Stop()
	return s.release()
}

func (s *Session) scheduleNext(ctx context.Context, gen uint64, src landmark.Input, surface Surface, cb DetectionFunc) {
	s.scheduler.RequestFrame(func() {
		s.tick(ctx, gen, src, surface, cb)
	})
}

func (s *Session) active(ctx context.Context, gen uint64) bool {
	if !s.running.Load() || ctx.Err() != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen && s.state == StateRunning
}

func (s *Session) tick(ctx context.Context, gen uint64, src landmark.Input, surface Surface, cb DetectionFunc) {
	if !s.active(ctx, gen) {
		s.finish(gen)
		return
	}

	s.ticks.Add(1)
	s.processFrame(ctx, src, surface, cb)

	if s.active(ctx, gen) {
		s.scheduleNext(ctx, gen, src, surface, cb)
		return
	}
	s.finish(gen)
}

// finish ends the loop of generation gen and releases the detector.
func (s *Session) finish(gen uint64) {
	s.mu.Lock()
	if s.generation != gen || s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.mu.Unlock()

	s.running.Store(false)
	if err := s.release(); err != nil {
		s.log.WithError(err).Warn("failed to release detector")
	}
	s.log.WithFields(log.Fields{
		"ticks":     s.ticks.Load(),
		"delivered": s.delivered.Load(),
	}).Info("detection loop stopped")
}

func (s *Session) release() error {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.conventions = nil
	if s.state == StateReady || s.state == StateRunning {
		s.state = StateStopped
	}
	s.mu.Unlock()

	if handle == nil {
		return nil
	}
	if err := handle.Close(); err != nil {
		return fmt.Errorf("failed to close detector: %w", err)
	}
	return nil
}

// processFrame runs one iteration. Failures skip the frame; nothing escapes.
func (s *Session) processFrame(ctx context.Context, src landmark.Input, surface Surface, cb DetectionFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			s.log.WithField("panic", r).Error("frame processing panicked")
		}
	}()

	if w, h := src.DisplaySize(); w != s.displayW || h != s.displayH {
		surface.Resize(w, h)
		s.displayW, s.displayH = w, h
	}
	surface.Clear()

	face, err := s.detect(ctx, src)
	if err != nil {
		if errors.Is(err, ErrNoFace) {
			s.noFace.Add(1)
		} else {
			s.failed.Add(1)
			s.log.WithError(err).Warn("detection failed, skipping frame")
		}
		return
	}

	set := normalize(face.Keypoints, src)

	if s.renderer != nil {
		s.renderer.DrawMesh(surface, set)
	}
	_, nativeH := src.NativeSize()
	expr := s.expressions.ClassifyFrame(set, float64(nativeH))
	pose := s.posture.Classify(set)

	cb(expr, pose)
	s.delivered.Add(1)
}

// detect tries each calling convention in order and returns the first face.
func (s *Session) detect(ctx context.Context, src landmark.Input) (landmark.Face, error) {
	s.mu.Lock()
	conventions := s.conventions
	s.mu.Unlock()
	if len(conventions) == 0 {
		return landmark.Face{}, ErrNotInitialized
	}

	req := landmark.EstimateRequest{Input: src, MaxFaces: 1, FlipHorizontal: s.flip}

	var errs []error
	for _, c := range conventions {
		faces, err := invoke(ctx, c, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s call: %w", c.name(), err))
			continue
		}
		if len(faces) == 0 || len(faces[0].Keypoints) == 0 {
			return landmark.Face{}, ErrNoFace
		}
		return faces[0], nil
	}
	return landmark.Face{}, errors.Join(errs...)
}

// normalize converts pixel keypoints to [0,1] frame space using the native
// frame size.
func normalize(set landmark.Set, src landmark.Input) landmark.Set {
	if !set.InPixelSpace() {
		return set
	}
	w, h := src.NativeSize()
	if w <= 0 || h <= 0 {
		return set
	}
	return set.Scale(float64(w), float64(h))
}
