// Package landmark holds the face-mesh data model shared by the detector,
// the classifiers and the detection session.
package landmark

import "math"

// Point is a landmark coordinate. After session normalization X and Y are in
// [0,1] frame space; Z is relative depth and may be zero.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// BoundingBox represents an axis-aligned box around a set of points
type BoundingBox struct {
	X1, Y1 float64 // top-left
	X2, Y2 float64 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float64 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float64 {
	return b.Y2 - b.Y1
}

// Center returns box center point
func (b BoundingBox) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Empty reports whether the box has no area
func (b BoundingBox) Empty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

// Set is an ordered landmark sequence indexed by the Face Mesh numbering.
// A detector may return fewer points than the full mesh; lookups beyond the
// end report the point as absent.
type Set []Point

// At returns the point at index i and whether it exists. Points carrying a
// NaN coordinate are treated as absent.
func (s Set) At(i int) (Point, bool) {
	if i < 0 || i >= len(s) {
		return Point{}, false
	}
	p := s[i]
	if math.IsNaN(p.X) || math.IsNaN(p.Y) {
		return Point{}, false
	}
	return p, true
}

// Gather returns the points at the given indices, or false if any is absent.
func (s Set) Gather(indices []int) ([]Point, bool) {
	points := make([]Point, len(indices))
	for i, idx := range indices {
		p, ok := s.At(idx)
		if !ok {
			return nil, false
		}
		points[i] = p
	}
	return points, true
}

// BoundingBox computes tight bounding box around all points
func (s Set) BoundingBox() BoundingBox {
	if len(s) == 0 {
		return BoundingBox{}
	}
	minX, minY := s[0].X, s[0].Y
	maxX, maxY := s[0].X, s[0].Y
	for i := 1; i < len(s); i++ {
		minX = math.Min(minX, s[i].X)
		maxX = math.Max(maxX, s[i].X)
		minY = math.Min(minY, s[i].Y)
		maxY = math.Max(maxY, s[i].Y)
	}
	return BoundingBox{X1: minX, Y1: minY, X2: maxX, Y2: maxY}
}

// pixelSpaceLimit separates pixel coordinates from normalized ones. Normalized
// points of a face partly outside the frame can stray slightly past 1.
const pixelSpaceLimit = 2.0

// InPixelSpace reports whether the set is expressed in absolute pixel units.
func (s Set) InPixelSpace() bool {
	for _, p := range s {
		if math.Abs(p.X) > pixelSpaceLimit || math.Abs(p.Y) > pixelSpaceLimit {
			return true
		}
	}
	return false
}

// Scale returns a copy of the set with X divided by width and Y by height.
// Z is left untouched.
func (s Set) Scale(width, height float64) Set {
	out := make(Set, len(s))
	for i, p := range s {
		out[i] = Point{X: p.X / width, Y: p.Y / height, Z: p.Z}
	}
	return out
}

// Face is one detected face as returned by a landmark estimator.
type Face struct {
	Keypoints Set
	Box       BoundingBox
	Score     float64
}
