package expression

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/dudu/facesignal/internal/landmark"
	"github.com/dudu/facesignal/internal/landmark/landmarktest"
)

func TestClassifyNeutral(t *testing.T) {
	got := Classify(landmarktest.Neutral().Build())

	want := Result{MouthRatio: got.MouthRatio}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("neutral face mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 0.1, got.MouthRatio, 1e-3)
}

func TestClassifyBlink(t *testing.T) {
	tests := []struct {
		name  string
		ear   float64
		blink bool
	}{
		{"closed", 0.10, true},
		{"half open", 0.20, false},
		{"open", 0.30, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Classify(landmarktest.Neutral().EyeAspectRatio(tt.ear).Build())
			assert.Equal(t, tt.blink, r.Blink)
		})
	}
}

func TestClassifyMouth(t *testing.T) {
	open := Classify(landmarktest.Neutral().MouthRatio(0.6).Build())
	assert.True(t, open.MouthOpen)
	assert.InDelta(t, 0.6, open.MouthRatio, 1e-3)

	closed := Classify(landmarktest.Neutral().MouthRatio(0.4).Build())
	assert.False(t, closed.MouthOpen)
}

func TestClassifyMouthDegenerate(t *testing.T) {
	// All four lip points coincide: epsilon keeps the ratio finite.
	set := landmarktest.Neutral().
		Put(landmark.UpperLipInner, 0.5, 0.6).
		Put(landmark.LowerLipInner, 0.5, 0.6).
		Put(landmark.MouthLeft, 0.5, 0.6).
		Put(landmark.MouthRight, 0.5, 0.6).
		Build()

	r := Classify(set)
	assert.Equal(t, 0.0, r.MouthRatio)
	assert.False(t, r.MouthOpen)
}

func TestClassifySmile(t *testing.T) {
	// Smile thresholds are in detector pixel units.
	both := landmarktest.Neutral().
		Put(landmark.UpperLipInner, 320, 400).
		Put(landmark.MouthLeft, 290, 392).
		Put(landmark.MouthRight, 350, 393).
		Build()
	assert.True(t, Classify(both).Smile)

	one := landmarktest.Neutral().
		Put(landmark.UpperLipInner, 320, 400).
		Put(landmark.MouthLeft, 290, 392).
		Put(landmark.MouthRight, 350, 398).
		Build()
	assert.False(t, Classify(one).Smile)
}

func TestClassifyEyebrows(t *testing.T) {
	browsAt := func(y float64) landmark.Set {
		b := landmarktest.Neutral().Put(landmark.NoseTip, 320, 300)
		for _, i := range append(append([]int{}, landmark.LeftBrow...), landmark.RightBrow...) {
			b.Put(i, 320, y)
		}
		return b.Build()
	}

	raised := Classify(browsAt(250))
	assert.True(t, raised.Surprised)
	assert.False(t, raised.Frowning)

	lowered := Classify(browsAt(340))
	assert.False(t, lowered.Surprised)
	assert.True(t, lowered.Frowning)

	level := Classify(browsAt(290))
	assert.False(t, level.Surprised)
	assert.False(t, level.Frowning)
}

func TestClassifyMissingLandmarks(t *testing.T) {
	t.Run("missing eye point", func(t *testing.T) {
		set := landmarktest.Neutral().EyeAspectRatio(0.05).Without(landmark.RightEye[2]).Build()
		assert.False(t, Classify(set).Blink)
	})

	t.Run("missing lip point", func(t *testing.T) {
		set := landmarktest.Neutral().MouthRatio(0.9).Without(landmark.LowerLipInner).Build()
		r := Classify(set)
		assert.False(t, r.MouthOpen)
		assert.Equal(t, 0.0, r.MouthRatio)
	})

	t.Run("truncated set", func(t *testing.T) {
		set := landmarktest.Neutral().EyeAspectRatio(0.05).Truncate(100).Build()
		assert.Equal(t, Result{}, Classify(set))
	})

	t.Run("empty set", func(t *testing.T) {
		assert.Equal(t, Result{}, Classify(nil))
	})
}

func TestClassifierCustomThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.BlinkEAR = 0.25
	th.MouthOpen = 0.2

	r := NewClassifier(th).Classify(landmarktest.Neutral().EyeAspectRatio(0.2).MouthRatio(0.3).Build())
	assert.True(t, r.Blink)
	assert.True(t, r.MouthOpen)
}

func TestClassifyFrameScalesOffsets(t *testing.T) {
	b := landmarktest.Neutral().
		Put(landmark.MouthLeft, 0.46, 0.57).
		Put(landmark.MouthRight, 0.54, 0.57)
	for _, i := range append(append([]int{}, landmark.LeftBrow...), landmark.RightBrow...) {
		b.Put(i, 0.5, 0.4)
	}
	set := b.Build()
	c := NewClassifier(DefaultThresholds())

	// Normalized offsets are far below the pixel thresholds.
	unscaled := c.Classify(set)
	assert.False(t, unscaled.Smile)
	assert.False(t, unscaled.Surprised)

	framed := c.ClassifyFrame(set, 480)
	assert.True(t, framed.Smile)
	assert.True(t, framed.Surprised)
	assert.Equal(t, unscaled.MouthRatio, framed.MouthRatio)

	assert.Equal(t, unscaled, c.ClassifyFrame(set, 0))
}
