// Package ui renders the face mesh overlay and the preview window.
package ui

import (
	"image"
	"math"

	"github.com/dudu/facesignal/internal/landmark"
	"github.com/dudu/facesignal/internal/session"
)

// contour is one stroked landmark path
type contour struct {
	indices []int
	closed  bool
}

var meshContours = []contour{
	{landmark.FaceOvalPath, true},
	{landmark.LeftEyePath, true},
	{landmark.RightEyePath, true},
	{landmark.LipsOuterPath, true},
	{landmark.LipsInnerPath, true},
	{landmark.LeftBrowPath, false},
	{landmark.RightBrowPath, false},
}

// MeshRenderer strokes the face contours of a landmark set.
type MeshRenderer struct{}

// DrawMesh draws set, given in [0,1] frame space, scaled to the surface.
// Surfaces that do not report a size get raw coordinates.
func (MeshRenderer) DrawMesh(surface session.Surface, set landmark.Set) {
	w, h := 1, 1
	if s, ok := surface.(interface{ Size() (int, int) }); ok {
		w, h = s.Size()
	}
	for _, c := range meshContours {
		if pts, ok := contourPoints(set, c.indices, w, h); ok {
			surface.Polyline(pts, c.closed)
		}
	}
}

// contourPoints converts a path to surface pixels. It fails when any point
// of the path is missing.
func contourPoints(set landmark.Set, indices []int, width, height int) ([]image.Point, bool) {
	pts, ok := set.Gather(indices)
	if !ok || len(pts) < 2 {
		return nil, false
	}
	out := make([]image.Point, len(pts))
	for i, p := range pts {
		out[i] = image.Pt(
			int(math.Round(p.X*float64(width))),
			int(math.Round(p.Y*float64(height))),
		)
	}
	return out, true
}
