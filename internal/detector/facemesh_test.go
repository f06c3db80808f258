package detector

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/facesignal/internal/inference"
	"github.com/dudu/facesignal/internal/landmark"
	"github.com/dudu/facesignal/internal/session"
)

func TestTrackRegion(t *testing.T) {
	t.Run("centre square without a previous face", func(t *testing.T) {
		got := trackRegion(landmark.BoundingBox{}, false, 1280, 720)
		assert.Equal(t, cropRegion{cx: 640, cy: 360, size: 720}, got)
	})

	t.Run("expands the previous box", func(t *testing.T) {
		prev := landmark.BoundingBox{X1: 100, Y1: 200, X2: 300, Y2: 360}
		got := trackRegion(prev, true, 1280, 720)
		assert.Equal(t, cropRegion{cx: 200, cy: 280, size: 300}, got)
	})

	t.Run("degenerate previous box falls back", func(t *testing.T) {
		prev := landmark.BoundingBox{X1: 100, Y1: 200, X2: 100, Y2: 200}
		got := trackRegion(prev, true, 640, 480)
		assert.Equal(t, cropRegion{cx: 320, cy: 240, size: 480}, got)
	})
}

func TestProject(t *testing.T) {
	values := []float32{
		96, 96, 0, // input centre
		0, 0, 19.2, // input top-left
		192, 96, -9.6,
	}
	region := cropRegion{cx: 640, cy: 360, size: 720}

	got := project(values, region, meshInputSize)

	want := landmark.Set{
		{X: 640, Y: 360, Z: 0},
		{X: 280, Y: 0, Z: 72},
		{X: 1000, Y: 360, Z: -36},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-4)); diff != "" {
		t.Errorf("project mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectIgnoresTrailingValues(t *testing.T) {
	got := project([]float32{1, 2, 3, 4, 5}, cropRegion{cx: 96, cy: 96, size: 192}, meshInputSize)
	require.Len(t, got, 1)
	assert.Equal(t, landmark.Point{X: 1, Y: 2, Z: 3}, got[0])
}

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, sigmoid(0), 1e-12)
	assert.Greater(t, sigmoid(6), 0.99)
	assert.Less(t, sigmoid(-6), 0.01)
}

func TestBytesToFloat32(t *testing.T) {
	in := []float32{0, 1.5, -2.25, float32(math.Pi)}
	buf := make([]byte, len(in)*4)
	for i, f := range in {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	assert.Equal(t, in, bytesToFloat32(buf))
}

type sizeOnly struct{}

func (sizeOnly) NativeSize() (int, int)  { return 640, 480 }
func (sizeOnly) DisplaySize() (int, int) { return 640, 480 }

func TestEstimateRejectsInputsWithoutFrames(t *testing.T) {
	m := &FaceMesh{}
	_, err := m.EstimateFaces(context.Background(), landmark.EstimateRequest{Input: sizeOnly{}, MaxFaces: 1})
	assert.ErrorIs(t, err, ErrUnsupportedInput)

	faces, err := m.EstimateFacesFrom(sizeOnly{}, 0, false)
	assert.NoError(t, err)
	assert.Empty(t, faces)
}

func TestLoaderMissingModel(t *testing.T) {
	loc := session.Location{
		Name:        "local",
		LibraryPath: "lib/libonnxruntime.so",
		ModelPath:   filepath.Join(t.TempDir(), "face_landmark.onnx"),
	}
	h, err := Loader{}.Open(context.Background(), loc)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Loader{}.Open(context.Background(), session.Location{Name: "empty"})
	assert.EqualError(t, err, "location has no model path")
}

func TestCheckLayout(t *testing.T) {
	inputs := []inference.IOInfo{{Name: InputName, Dimensions: []int64{1, 3, 192, 192}}}
	outputs := []inference.IOInfo{
		{Name: LandmarksName, Dimensions: []int64{1, 1, 1, 1404}},
		{Name: FaceFlagName, Dimensions: []int64{1, 1, 1, 1}},
	}
	assert.NoError(t, CheckLayout(inputs, outputs))

	t.Run("dynamic batch", func(t *testing.T) {
		dyn := []inference.IOInfo{{Name: InputName, Dimensions: []int64{-1, 3, 192, 192}}}
		assert.NoError(t, CheckLayout(dyn, outputs))
	})

	t.Run("wrong mesh size", func(t *testing.T) {
		iris := []inference.IOInfo{
			{Name: LandmarksName, Dimensions: []int64{1, 1434}},
			{Name: FaceFlagName, Dimensions: []int64{1, 1}},
		}
		err := CheckLayout(inputs, iris)
		assert.EqualError(t, err, `output "conv2d_21" has 1434 values, want 1404`)
	})

	t.Run("missing tensors", func(t *testing.T) {
		err := CheckLayout(nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `missing input "input_1"`)
		assert.Contains(t, err.Error(), `missing output "conv2d_21"`)
		assert.Contains(t, err.Error(), `missing output "conv2d_31"`)
	})
}
