// Package expression derives discrete facial expression signals from one
// frame's landmark set.
package expression

import (
	"github.com/dudu/facesignal/internal/geometry"
	"github.com/dudu/facesignal/internal/landmark"
)

// Thresholds are the calibration constants of the classifier. The smile and
// eyebrow values are vertical offsets in frame pixels.
type Thresholds struct {
	BlinkEAR      float64 `json:"blink_ear"`
	MouthOpen     float64 `json:"mouth_open"`
	MouthEpsilon  float64 `json:"mouth_epsilon"`
	SmileLift     float64 `json:"smile_lift"`
	SurprisedBrow float64 `json:"surprised_brow"`
	FrowningBrow  float64 `json:"frowning_brow"`
}

// DefaultThresholds returns the reference calibration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BlinkEAR:      0.15,
		MouthOpen:     0.5,
		MouthEpsilon:  1e-5,
		SmileLift:     -5,
		SurprisedBrow: -30,
		FrowningBrow:  30,
	}
}

// Result is the expression vector for a single frame.
type Result struct {
	Blink      bool    `json:"blink"`
	MouthOpen  bool    `json:"mouth_open"`
	MouthRatio float64 `json:"mouth_ratio"`
	Smile      bool    `json:"smile"`
	Surprised  bool    `json:"surprised"`
	Frowning   bool    `json:"frowning"`
}

// Classifier evaluates expressions with a fixed set of thresholds.
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier creates a classifier with the given thresholds
func NewClassifier(thresholds Thresholds) *Classifier {
	return &Classifier{thresholds: thresholds}
}

// Classify evaluates the landmark set with the default thresholds.
func Classify(set landmark.Set) Result {
	return NewClassifier(DefaultThresholds()).Classify(set)
}

// Classify evaluates one frame with smile and eyebrow offsets taken as is.
// Features whose landmarks are missing keep their zero value.
func (c *Classifier) Classify(set landmark.Set) Result {
	return c.classify(set, 1)
}

// ClassifyFrame evaluates a normalized set from a frame frameHeight pixels
// tall. Smile and eyebrow offsets are converted to frame pixels before they
// are compared; a non-positive height leaves them unscaled.
func (c *Classifier) ClassifyFrame(set landmark.Set, frameHeight float64) Result {
	if frameHeight <= 0 {
		frameHeight = 1
	}
	return c.classify(set, frameHeight)
}

func (c *Classifier) classify(set landmark.Set, yScale float64) Result {
	var r Result

	if ear, ok := eyeAspectRatio(set); ok {
		r.Blink = ear < c.thresholds.BlinkEAR
	}

	if ratio, ok := c.mouthRatio(set); ok {
		r.MouthRatio = ratio
		r.MouthOpen = ratio > c.thresholds.MouthOpen
	}

	if left, right, ok := cornerLift(set); ok {
		left, right = left*yScale, right*yScale
		r.Smile = left < c.thresholds.SmileLift && right < c.thresholds.SmileLift
	}

	if h, ok := browHeight(set); ok {
		h *= yScale
		r.Surprised = h < c.thresholds.SurprisedBrow
		r.Frowning = h > c.thresholds.FrowningBrow
	}

	return r
}

// eyeAspectRatio averages the aspect ratio of both eyes.
func eyeAspectRatio(set landmark.Set) (float64, bool) {
	left, ok := eyeContour(set, landmark.LeftEye)
	if !ok {
		return 0, false
	}
	right, ok := eyeContour(set, landmark.RightEye)
	if !ok {
		return 0, false
	}
	return (geometry.AspectRatio(left) + geometry.AspectRatio(right)) / 2, true
}

func eyeContour(set landmark.Set, indices [6]int) ([6]landmark.Point, bool) {
	var contour [6]landmark.Point
	for i, idx := range indices {
		p, ok := set.At(idx)
		if !ok {
			return contour, false
		}
		contour[i] = p
	}
	return contour, true
}

func (c *Classifier) mouthRatio(set landmark.Set) (float64, bool) {
	pts, ok := set.Gather([]int{
		landmark.UpperLipInner, landmark.LowerLipInner,
		landmark.MouthLeft, landmark.MouthRight,
	})
	if !ok {
		return 0, false
	}
	vertical := geometry.Distance(pts[0], pts[1])
	horizontal := geometry.Distance(pts[2], pts[3])
	return vertical / (horizontal + c.thresholds.MouthEpsilon), true
}

// cornerLift returns the vertical offset of each mouth corner from the lip
// centre. Negative values mean the corner sits higher on screen.
func cornerLift(set landmark.Set) (left, right float64, ok bool) {
	pts, ok := set.Gather([]int{landmark.MouthLeft, landmark.MouthRight, landmark.UpperLipInner})
	if !ok {
		return 0, 0, false
	}
	center := pts[2].Y
	return pts[0].Y - center, pts[1].Y - center, true
}

// browHeight is the mean eyebrow Y relative to the nose tip, averaged over
// both brows. Raised brows give more negative values.
func browHeight(set landmark.Set) (float64, bool) {
	nose, ok := set.At(landmark.NoseTip)
	if !ok {
		return 0, false
	}
	left, ok := set.Gather(landmark.LeftBrow)
	if !ok {
		return 0, false
	}
	right, ok := set.Gather(landmark.RightBrow)
	if !ok {
		return 0, false
	}
	leftHeight := geometry.MeanY(left) - nose.Y
	rightHeight := geometry.MeanY(right) - nose.Y
	return (leftHeight + rightHeight) / 2, true
}
