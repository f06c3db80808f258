// Package detector runs the face mesh landmark model on camera frames.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facesignal/internal/inference"
	"github.com/dudu/facesignal/internal/landmark"
	"github.com/dudu/facesignal/pkg/log"
)

var ErrUnsupportedInput = errors.New("input does not provide frames")

const (
	meshInputSize = 192
	meshValues    = landmark.NumMeshPoints * 3
	roiExpansion  = 1.5

	DefaultPresenceThreshold = 0.5
)

// Model tensor names
const (
	InputName     = "input_1"
	LandmarksName = "conv2d_21"
	FaceFlagName  = "conv2d_31"
)

// Frame is an input that can copy out its most recent image.
type Frame interface {
	landmark.Input
	Snapshot(dst *gocv.Mat) bool
}

// FaceMesh estimates the 468-point face mesh of a single face. Between
// frames it tracks the face by cropping around the previous landmarks.
type FaceMesh struct {
	session   *inference.Session
	inputSize int
	presence  float64
	log       logrus.FieldLogger

	mu       sync.Mutex
	frame    gocv.Mat
	prev     landmark.BoundingBox
	tracking bool
}

// Options configures a FaceMesh
type Options struct {
	Inference         inference.Options
	PresenceThreshold float64
	Logger            logrus.FieldLogger
}

// NewFaceMesh creates a face mesh estimator from an ONNX model taking a
// 1x3x192x192 RGB input and producing landmark and face-flag outputs.
func NewFaceMesh(modelPath string, opts Options) (*FaceMesh, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	if opts.Inference.Logger == nil {
		opts.Inference.Logger = logger
	}
	presence := opts.PresenceThreshold
	if presence <= 0 {
		presence = DefaultPresenceThreshold
	}

	session, err := inference.NewSession(modelPath,
		[]string{InputName},
		[]string{LandmarksName, FaceFlagName},
		opts.Inference,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create face mesh session: %w", err)
	}

	return &FaceMesh{
		session:   session,
		inputSize: meshInputSize,
		presence:  presence,
		log:       logger,
		frame:     gocv.NewMat(),
	}, nil
}

// EstimateFaces runs the mesh on the request's input. At most one face is
// returned; coordinates are in frame pixels.
func (m *FaceMesh) EstimateFaces(ctx context.Context, req landmark.EstimateRequest) ([]landmark.Face, error) {
	return m.estimate(ctx, req.Input, req.MaxFaces, req.FlipHorizontal)
}

// EstimateFacesFrom is EstimateFaces with positional arguments.
func (m *FaceMesh) EstimateFacesFrom(input landmark.Input, maxFaces int, flipHorizontal bool) ([]landmark.Face, error) {
	return m.estimate(context.Background(), input, maxFaces, flipHorizontal)
}

func (m *FaceMesh) estimate(ctx context.Context, input landmark.Input, maxFaces int, flip bool) ([]landmark.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxFaces < 1 {
		return nil, nil
	}
	src, ok := input.(Frame)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedInput, input)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, errors.New("face mesh closed")
	}
	// Camera warming up
	if !src.Snapshot(&m.frame) || m.frame.Empty() {
		return nil, nil
	}
	if flip {
		gocv.Flip(m.frame, &m.frame, 1)
	}

	region := trackRegion(m.prev, m.tracking, m.frame.Cols(), m.frame.Rows())
	values, score, err := m.infer(region)
	if err != nil {
		return nil, err
	}

	if score < m.presence {
		if m.tracking {
			m.log.WithField("score", score).Debug("face lost")
		}
		m.tracking = false
		return nil, nil
	}

	set := project(values, region, m.inputSize)
	box := set.BoundingBox()
	m.prev, m.tracking = box, true

	return []landmark.Face{{Keypoints: set, Box: box, Score: score}}, nil
}

// infer crops the region, runs the model and returns raw landmark values
// with the face presence probability.
func (m *FaceMesh) infer(region cropRegion) ([]float32, float64, error) {
	M := transformMatrix(region, m.inputSize)
	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.WarpAffine(m.frame, &aligned, M, image.Pt(m.inputSize, m.inputSize))
	M.Close()

	// BGR to RGB in [0,1], NCHW
	blob := gocv.BlobFromImage(aligned, 1.0/255.0, image.Pt(m.inputSize, m.inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	inputTensor, err := inference.CreateTensor(
		[]int64{1, 3, int64(m.inputSize), int64(m.inputSize)},
		bytesToFloat32(blob.ToBytes()),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	landmarksTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, 1, 1, meshValues})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create landmark tensor: %w", err)
	}
	defer landmarksTensor.Destroy()

	flagTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, 1, 1, 1})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create face flag tensor: %w", err)
	}
	defer flagTensor.Destroy()

	if err := m.session.Run([]ort.Value{inputTensor}, []ort.Value{landmarksTensor, flagTensor}); err != nil {
		return nil, 0, fmt.Errorf("face mesh inference failed: %w", err)
	}

	values := append([]float32(nil), landmarksTensor.GetData()...)
	return values, sigmoid(flagTensor.GetData()[0]), nil
}

// Close releases detector resources
func (m *FaceMesh) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	m.frame.Close()
	return err
}

// cropRegion is a square area of the frame fed to the model.
type cropRegion struct {
	cx, cy float64
	size   float64
}

func (r cropRegion) scale(inputSize int) float64 {
	return float64(inputSize) / r.size
}

// trackRegion picks the crop: the previous face box expanded by 1.5 when
// tracking, otherwise the largest centred square.
func trackRegion(prev landmark.BoundingBox, tracking bool, width, height int) cropRegion {
	if tracking && !prev.Empty() {
		c := prev.Center()
		return cropRegion{cx: c.X, cy: c.Y, size: math.Max(prev.Width(), prev.Height()) * roiExpansion}
	}
	return cropRegion{
		cx:   float64(width) / 2,
		cy:   float64(height) / 2,
		size: float64(min(width, height)),
	}
}

// transformMatrix maps the crop region onto the model input.
func transformMatrix(r cropRegion, inputSize int) gocv.Mat {
	scale := r.scale(inputSize)
	half := float64(inputSize) / 2

	M := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	M.SetDoubleAt(0, 0, scale)
	M.SetDoubleAt(0, 1, 0)
	M.SetDoubleAt(0, 2, half-r.cx*scale)
	M.SetDoubleAt(1, 0, 0)
	M.SetDoubleAt(1, 1, scale)
	M.SetDoubleAt(1, 2, half-r.cy*scale)
	return M
}

// project maps model output (x, y, z triples in input pixels) back to frame
// pixels.
func project(values []float32, r cropRegion, inputSize int) landmark.Set {
	scale := r.scale(inputSize)
	half := float64(inputSize) / 2

	set := make(landmark.Set, len(values)/3)
	for i := range set {
		x := float64(values[i*3])
		y := float64(values[i*3+1])
		z := float64(values[i*3+2])
		set[i] = landmark.Point{
			X: (x-half)/scale + r.cx,
			Y: (y-half)/scale + r.cy,
			Z: z / scale,
		}
	}
	return set
}

func sigmoid(logit float32) float64 {
	return 1 / (1 + math.Exp(-float64(logit)))
}

func bytesToFloat32(data []byte) []float32 {
	result := make([]float32, len(data)/4)
	for i := range result {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		result[i] = math.Float32frombits(bits)
	}
	return result
}
