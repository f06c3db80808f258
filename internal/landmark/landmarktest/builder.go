// Package landmarktest builds synthetic face-mesh landmark sets for tests.
package landmarktest

import (
	"math"

	"github.com/dudu/facesignal/internal/landmark"
)

const (
	eyeWidth   = 0.04
	mouthWidth = 0.08
)

// Builder assembles a landmark set around a frontal, level face whose
// anatomical anchors (forehead, nose, chin, cheeks, eye corners) all sit on
// the horizontal line y=0.5, centred at x=0.5.
type Builder struct {
	set landmark.Set
}

// Neutral returns a builder for a level face with open eyes and a closed mouth.
func Neutral() *Builder {
	set := make(landmark.Set, landmark.NumMeshPoints)
	for i := range set {
		set[i] = landmark.Point{X: 0.5, Y: 0.5}
	}
	b := &Builder{set: set}
	b.Put(landmark.Forehead, 0.5, 0.5)
	b.Put(landmark.NoseTip, 0.5, 0.5)
	b.Put(landmark.Chin, 0.5, 0.5)
	b.Put(landmark.LeftCheek, 0.4, 0.5)
	b.Put(landmark.RightCheek, 0.6, 0.5)
	b.EyeAspectRatio(0.3)
	b.MouthRatio(0.1)
	return b
}

// Put places the point at index i.
func (b *Builder) Put(i int, x, y float64) *Builder {
	b.set[i] = landmark.Point{X: x, Y: y}
	return b
}

// Shift moves the point at index i by (dx, dy).
func (b *Builder) Shift(i int, dx, dy float64) *Builder {
	b.set[i].X += dx
	b.set[i].Y += dy
	return b
}

// EyeAspectRatio shapes both eye contours to the given aspect ratio.
func (b *Builder) EyeAspectRatio(ear float64) *Builder {
	b.eye(landmark.LeftEye, 0.44, ear)
	b.eye(landmark.RightEye, 0.56, ear)
	return b
}

func (b *Builder) eye(indices [6]int, cx, ear float64) {
	const cy = 0.5
	half := ear * eyeWidth / 2
	b.Put(indices[0], cx-eyeWidth/2, cy)
	b.Put(indices[1], cx-eyeWidth/6, cy-half)
	b.Put(indices[2], cx+eyeWidth/6, cy-half)
	b.Put(indices[3], cx+eyeWidth/2, cy)
	b.Put(indices[4], cx+eyeWidth/6, cy+half)
	b.Put(indices[5], cx-eyeWidth/6, cy+half)
}

// MouthRatio opens the inner lips so that vertical/horizontal equals ratio.
func (b *Builder) MouthRatio(ratio float64) *Builder {
	const cy = 0.6
	gap := ratio * mouthWidth
	b.Put(landmark.UpperLipInner, 0.5, cy-gap/2)
	b.Put(landmark.LowerLipInner, 0.5, cy+gap/2)
	b.Put(landmark.MouthLeft, 0.5-mouthWidth/2, cy)
	b.Put(landmark.MouthRight, 0.5+mouthWidth/2, cy)
	return b
}

// Without marks the given indices as absent.
func (b *Builder) Without(indices ...int) *Builder {
	for _, i := range indices {
		b.set[i] = landmark.Point{X: math.NaN(), Y: math.NaN()}
	}
	return b
}

// Truncate keeps only the first n points.
func (b *Builder) Truncate(n int) *Builder {
	b.set = b.set[:n]
	return b
}

// Build returns a copy of the assembled set.
func (b *Builder) Build() landmark.Set {
	out := make(landmark.Set, len(b.set))
	copy(out, b.set)
	return out
}

// Pixels returns the set scaled to a width x height pixel frame.
func (b *Builder) Pixels(width, height float64) landmark.Set {
	out := b.Build()
	for i := range out {
		out[i].X *= width
		out[i].Y *= height
	}
	return out
}
