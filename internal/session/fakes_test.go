package session

import (
	"context"
	"errors"
	"image"

	"github.com/dudu/facesignal/internal/landmark"
)

type fakeInput struct {
	nativeW, nativeH   int
	displayW, displayH int
}

func (f *fakeInput) NativeSize() (int, int)  { return f.nativeW, f.nativeH }
func (f *fakeInput) DisplaySize() (int, int) { return f.displayW, f.displayH }

// plainHandle opens fine but cannot estimate anything.
type plainHandle struct {
	closed int
}

func (h *plainHandle) Close() error {
	h.closed++
	return nil
}

// requestDetector supports only the parameter-object convention.
type requestDetector struct {
	plainHandle
	frames []landmark.Set // returned in order, last one repeats
	err    error
	panics bool
	calls  int
	reqs   []landmark.EstimateRequest
}

func (d *requestDetector) EstimateFaces(_ context.Context, req landmark.EstimateRequest) ([]landmark.Face, error) {
	d.calls++
	d.reqs = append(d.reqs, req)
	if d.panics {
		panic("detector crashed")
	}
	if d.err != nil {
		return nil, d.err
	}
	if len(d.frames) == 0 {
		return nil, nil
	}
	i := min(d.calls-1, len(d.frames)-1)
	return []landmark.Face{{Keypoints: d.frames[i]}}, nil
}

// positionalDetector supports only the positional convention.
type positionalDetector struct {
	plainHandle
	set   landmark.Set
	err   error
	calls int
}

func (d *positionalDetector) EstimateFacesFrom(_ landmark.Input, _ int, _ bool) ([]landmark.Face, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return []landmark.Face{{Keypoints: d.set}}, nil
}

// dualDetector exposes both conventions.
type dualDetector struct {
	plainHandle
	request    requestDetector
	positional positionalDetector
}

func (d *dualDetector) EstimateFaces(ctx context.Context, req landmark.EstimateRequest) ([]landmark.Face, error) {
	return d.request.EstimateFaces(ctx, req)
}

func (d *dualDetector) EstimateFacesFrom(in landmark.Input, maxFaces int, flip bool) ([]landmark.Face, error) {
	return d.positional.EstimateFacesFrom(in, maxFaces, flip)
}

type recordingSurface struct {
	resizes   []image.Point
	clears    int
	polylines int
}

func (s *recordingSurface) Resize(w, h int) { s.resizes = append(s.resizes, image.Pt(w, h)) }
func (s *recordingSurface) Clear()          { s.clears++ }
func (s *recordingSurface) Polyline(_ []image.Point, _ bool) {
	s.polylines++
}

type recordingRenderer struct {
	sets []landmark.Set
}

func (r *recordingRenderer) DrawMesh(surface Surface, set landmark.Set) {
	r.sets = append(r.sets, set)
	surface.Polyline([]image.Point{{0, 0}, {1, 1}}, false)
}

// openerFor returns an opener serving handles by location name.
func openerFor(handles map[string]Handle) (Opener, *[]string) {
	var opened []string
	return OpenerFunc(func(_ context.Context, loc Location) (Handle, error) {
		opened = append(opened, loc.Name)
		h, ok := handles[loc.Name]
		if !ok {
			return nil, errors.New("resource not found")
		}
		return h, nil
	}), &opened
}

func locations(names ...string) []Location {
	out := make([]Location, len(names))
	for i, n := range names {
		out[i] = Location{Name: n, ModelPath: n + ".onnx"}
	}
	return out
}
