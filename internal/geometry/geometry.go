// Package geometry provides the numeric primitives used by the classifiers.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/dudu/facesignal/internal/landmark"
)

// Distance returns the Euclidean distance between two points in the XY plane.
// NaN coordinates propagate to the result.
func Distance(p1, p2 landmark.Point) float64 {
	return floats.Distance([]float64{p1.X, p1.Y}, []float64{p2.X, p2.Y}, 2)
}

// AspectRatio computes the eye aspect ratio of six ordered contour points:
// (|p1-p5| + |p2-p4|) / (2 * |p0-p3|).
// A zero horizontal span yields +Inf or NaN, matching float division.
func AspectRatio(points [6]landmark.Point) float64 {
	vertical1 := Distance(points[1], points[5])
	vertical2 := Distance(points[2], points[4])
	horizontal := Distance(points[0], points[3])
	return (vertical1 + vertical2) / (2 * horizontal)
}

// MeanY returns the average Y coordinate of the points, or NaN for none.
func MeanY(points []landmark.Point) float64 {
	if len(points) == 0 {
		return math.NaN()
	}
	ys := make([]float64, len(points))
	for i, p := range points {
		ys[i] = p.Y
	}
	return stat.Mean(ys, nil)
}
