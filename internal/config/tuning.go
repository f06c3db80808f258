package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dudu/facesignal/internal/expression"
	"github.com/dudu/facesignal/internal/posture"
)

// Tuning overrides classifier calibration. Fields omitted from the JSON file
// keep the reference defaults.
type Tuning struct {
	// Expression thresholds
	BlinkEAR      *float64 `json:"blink_ear,omitempty"`
	MouthOpen     *float64 `json:"mouth_open,omitempty"`
	SmileLift     *float64 `json:"smile_lift,omitempty"`
	SurprisedBrow *float64 `json:"surprised_brow,omitempty"`
	FrowningBrow  *float64 `json:"frowning_brow,omitempty"`

	// Posture thresholds, normalized frame units
	ForwardHeadDrop   *float64 `json:"forward_head_drop,omitempty"`
	ForwardHeadOffset *float64 `json:"forward_head_offset,omitempty"`
	EyeTilt           *float64 `json:"eye_tilt,omitempty"`
	CheekTilt         *float64 `json:"cheek_tilt,omitempty"`
	ChinForward       *float64 `json:"chin_forward,omitempty"`
	OffCenter         *float64 `json:"off_center,omitempty"`
	MinFaceAspect     *float64 `json:"min_face_aspect,omitempty"`
}

// LoadTuning loads a Tuning from a JSON file.
func LoadTuning(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 64 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	t := &Tuning{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return t, nil
}

// Validate rejects values that would make a rule meaningless.
func (t *Tuning) Validate() error {
	positive := map[string]*float64{
		"blink_ear":           t.BlinkEAR,
		"mouth_open":          t.MouthOpen,
		"forward_head_drop":   t.ForwardHeadDrop,
		"forward_head_offset": t.ForwardHeadOffset,
		"eye_tilt":            t.EyeTilt,
		"cheek_tilt":          t.CheekTilt,
		"chin_forward":        t.ChinForward,
		"off_center":          t.OffCenter,
		"min_face_aspect":     t.MinFaceAspect,
	}
	for name, v := range positive {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, *v)
		}
	}
	if t.SurprisedBrow != nil && t.FrowningBrow != nil && *t.SurprisedBrow >= *t.FrowningBrow {
		return fmt.Errorf("surprised_brow (%v) must be below frowning_brow (%v)", *t.SurprisedBrow, *t.FrowningBrow)
	}
	return nil
}

// Thresholds returns the expression thresholds with overrides applied.
func (t *Tuning) Thresholds() expression.Thresholds {
	th := expression.DefaultThresholds()
	if t == nil {
		return th
	}
	apply(&th.BlinkEAR, t.BlinkEAR)
	apply(&th.MouthOpen, t.MouthOpen)
	apply(&th.SmileLift, t.SmileLift)
	apply(&th.SurprisedBrow, t.SurprisedBrow)
	apply(&th.FrowningBrow, t.FrowningBrow)
	return th
}

// Weights returns the posture rules with overrides applied.
func (t *Tuning) Weights() posture.Weights {
	w := posture.DefaultWeights()
	if t == nil {
		return w
	}
	apply(&w.ForwardHeadDrop, t.ForwardHeadDrop)
	apply(&w.ForwardHeadOffset, t.ForwardHeadOffset)
	apply(&w.EyeTilt, t.EyeTilt)
	apply(&w.CheekTilt, t.CheekTilt)
	apply(&w.ChinForward, t.ChinForward)
	apply(&w.OffCenter, t.OffCenter)
	apply(&w.MinFaceAspect, t.MinFaceAspect)
	return w
}

func apply(dst *float64, override *float64) {
	if override != nil {
		*dst = *override
	}
}
