package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaleSize(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		scale         float64
		wantW, wantH  int
	}{
		{"native", 1280, 720, 1, 1280, 720},
		{"unset", 1280, 720, 0, 1280, 720},
		{"half", 1280, 720, 0.5, 640, 360},
		{"rounded", 641, 481, 0.5, 321, 241},
		{"tiny", 10, 10, 0.01, 1, 1},
		{"unknown size", 0, 0, 0.5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := scaleSize(tt.width, tt.height, tt.scale)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestSnapshotBeforeFirstFrame(t *testing.T) {
	c := &Capture{width: 640, height: 480, display: 0.5}

	assert.False(t, c.Snapshot(nil))
	w, h := c.NativeSize()
	assert.Equal(t, [2]int{640, 480}, [2]int{w, h})
	w, h = c.DisplaySize()
	assert.Equal(t, [2]int{320, 240}, [2]int{w, h})
	assert.NoError(t, c.Close())
}
