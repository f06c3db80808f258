// Package posture scores slouching from the head pose visible in a face-mesh
// landmark set. The score is an additive rule-based heuristic, not a
// calibrated physical measurement.
package posture

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/dudu/facesignal/internal/landmark"
)

// Level is the discrete slouch severity
type Level int

const (
	LevelGood Level = iota
	LevelMild
	LevelModerate
	LevelSevere
)

var levelNames = map[Level]string{
	LevelGood:     "GOOD",
	LevelMild:     "MILD",
	LevelModerate: "MODERATE",
	LevelSevere:   "SEVERE",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// MarshalJSON encodes the level by name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// Weights holds the rule thresholds (normalized frame units) and the points
// each rule contributes.
type Weights struct {
	ForwardHeadDrop   float64 `json:"forward_head_drop"`
	ForwardHeadOffset float64 `json:"forward_head_offset"`
	ForwardHeadPoints float64 `json:"forward_head_points"`
	EyeTilt           float64 `json:"eye_tilt"`
	EyeTiltPoints     float64 `json:"eye_tilt_points"`
	CheekTilt         float64 `json:"cheek_tilt"`
	CheekTiltPoints   float64 `json:"cheek_tilt_points"`
	ChinForward       float64 `json:"chin_forward"`
	ChinForwardPoints float64 `json:"chin_forward_points"`
	OffCenter         float64 `json:"off_center"`
	OffCenterPoints   float64 `json:"off_center_points"`
	MinFaceAspect     float64 `json:"min_face_aspect"`
	FaceAspectPadding float64 `json:"face_aspect_padding"`
	RotationPoints    float64 `json:"rotation_points"`
	SevereScore       float64 `json:"severe_score"`
	ModerateScore     float64 `json:"moderate_score"`
	MildScore         float64 `json:"mild_score"`
}

// DefaultWeights returns the reference rule set.
func DefaultWeights() Weights {
	return Weights{
		ForwardHeadDrop:   0.05,
		ForwardHeadOffset: 0.08,
		ForwardHeadPoints: 40,
		EyeTilt:           0.03,
		EyeTiltPoints:     25,
		CheekTilt:         0.04,
		CheekTiltPoints:   15,
		ChinForward:       0.04,
		ChinForwardPoints: 20,
		OffCenter:         0.15,
		OffCenterPoints:   15,
		MinFaceAspect:     1.1,
		FaceAspectPadding: 0.01,
		RotationPoints:    10,
		SevereScore:       70,
		ModerateScore:     50,
		MildScore:         30,
	}
}

// Result is the posture assessment for a single frame.
type Result struct {
	Level               Level   `json:"slouch_level"`
	Slouching           bool    `json:"slouching"`
	Score               float64 `json:"slouch_score"`
	ForwardHead         bool    `json:"forward_head_posture"`
	AsymmetricShoulders bool    `json:"asymmetric_shoulders"`
	SpineAlignmentDiff  float64 `json:"spine_alignment_diff"`
}

// Scorer evaluates posture with a fixed rule set.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Classify scores the landmark set with the default weights.
func Classify(set landmark.Set) Result {
	return NewScorer(DefaultWeights()).Classify(set)
}

// Classify scores one frame. Without nose, chin and forehead the default
// GOOD result is returned.
func (s *Scorer) Classify(set landmark.Set) Result {
	w := s.weights

	nose, okNose := set.At(landmark.NoseTip)
	chin, okChin := set.At(landmark.Chin)
	forehead, okForehead := set.At(landmark.Forehead)
	if !okNose || !okChin || !okForehead {
		return Result{}
	}

	leftCheek, okLeft := set.At(landmark.LeftCheek)
	rightCheek, okRight := set.At(landmark.RightCheek)
	cheeks := okLeft && okRight

	center := nose
	if cheeks {
		center = landmark.Point{
			X: (leftCheek.X + rightCheek.X) / 2,
			Y: (leftCheek.Y + rightCheek.Y) / 2,
		}
	}

	var r Result
	var score float64

	// Head dropped below the forehead line or displaced from the face centre.
	if nose.Y-forehead.Y > w.ForwardHeadDrop || math.Abs(nose.Y-center.Y) > w.ForwardHeadOffset {
		score += w.ForwardHeadPoints
		r.ForwardHead = true
	}

	leftEye, okLeftEye := set.At(landmark.LeftEyeOuter)
	rightEye, okRightEye := set.At(landmark.RightEyeOuter)
	if okLeftEye && okRightEye && math.Abs(leftEye.Y-rightEye.Y) > w.EyeTilt {
		score += w.EyeTiltPoints
		r.AsymmetricShoulders = true
	}
	if cheeks && math.Abs(leftCheek.Y-rightCheek.Y) > w.CheekTilt {
		score += w.CheekTiltPoints
		r.AsymmetricShoulders = true
	}

	if chin.Y-nose.Y > w.ChinForward {
		score += w.ChinForwardPoints
	}

	offset := center.X - 0.5
	if math.Abs(offset) > w.OffCenter {
		score += w.OffCenterPoints
	}

	// A face wider than it is tall suggests leaning or rotation.
	faceVertical := math.Abs(chin.Y - forehead.Y)
	if cheeks && faceVertical > 0 {
		faceHorizontal := math.Abs(rightCheek.X - leftCheek.X)
		if faceVertical/(faceHorizontal+w.FaceAspectPadding) < w.MinFaceAspect {
			score += w.RotationPoints
		}
	}

	r.Score = math.Max(0, math.Min(100, score))
	r.SpineAlignmentDiff = math.Abs(offset) * 100
	r.Level = s.level(r.Score)
	r.Slouching = r.Level != LevelGood
	return r
}

func (s *Scorer) level(score float64) Level {
	switch {
	case score >= s.weights.SevereScore:
		return LevelSevere
	case score >= s.weights.ModerateScore:
		return LevelModerate
	case score >= s.weights.MildScore:
		return LevelMild
	default:
		return LevelGood
	}
}
