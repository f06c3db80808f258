// Package inference wraps ONNX Runtime sessions used by the face mesh
// detector.
package inference

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/facesignal/pkg/log"
)

var (
	ErrNotInitialized = errors.New("ONNX Runtime not initialized")
	ErrLibraryInUse   = errors.New("ONNX Runtime already loaded from another library")
)

// The runtime environment is process wide: one shared library can be loaded.
var (
	initMu      sync.Mutex
	initialized bool
	loadedFrom  string
)

// Initialize loads the ONNX Runtime shared library at libraryPath and sets up
// the environment. Repeated calls with the same path are no-ops; a different
// path fails with ErrLibraryInUse until Shutdown is called.
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		if libraryPath != loadedFrom {
			return fmt.Errorf("%w: %s", ErrLibraryInUse, loadedFrom)
		}
		return nil
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime from %q: %w", libraryPath, err)
	}

	initialized = true
	loadedFrom = libraryPath
	return nil
}

// Initialized reports whether the environment is up
func Initialized() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return initialized
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	loadedFrom = ""
	return nil
}

// Options tunes a session
type Options struct {
	// Threads caps intra-op parallelism. Zero keeps the runtime default.
	Threads int
	// CoreML requests the CoreML execution provider, falling back to CPU.
	CoreML bool
	Logger logrus.FieldLogger
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

// NewSession creates an inference session for an ONNX model.
func NewSession(modelPath string, inputNames, outputNames []string, opts Options) (*Session, error) {
	if !Initialized() {
		return nil, ErrNotInitialized
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if opts.Threads > 0 {
		if err := options.SetIntraOpNumThreads(opts.Threads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	provider := "cpu"
	if opts.CoreML {
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			logger.WithError(err).WithField("model", modelPath).Debug("CoreML unavailable, using CPU")
		} else {
			provider = "coreml"
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	logger.WithFields(log.Fields{"model": modelPath, "provider": provider}).Debug("inference session created")

	return &Session{
		session:     session,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run executes inference with the given inputs
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		return err
	}
	return nil
}

// CreateTensor creates a tensor with the given shape and data
func CreateTensor[T ort.TensorData](shape []int64, data []T) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// CreateEmptyTensor creates a zeroed tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), make([]T, Elements(shape)))
}

// Elements returns the number of values in a tensor of the given shape.
// Dynamic (negative) dimensions count as one.
func Elements(shape []int64) int64 {
	size := int64(1)
	for _, dim := range shape {
		if dim > 0 {
			size *= dim
		}
	}
	return size
}

// IOInfo describes one model input or output
type IOInfo struct {
	Name       string
	Dimensions []int64
	DataType   string
}

// Inspect reads the input and output layout of a model without creating a
// session. The environment must be initialized.
func Inspect(modelPath string) (inputs, outputs []IOInfo, err error) {
	if !Initialized() {
		return nil, nil, ErrNotInitialized
	}
	in, out, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read model info for %s: %w", modelPath, err)
	}
	return toIOInfo(in), toIOInfo(out), nil
}

func toIOInfo(infos []ort.InputOutputInfo) []IOInfo {
	out := make([]IOInfo, len(infos))
	for i, info := range infos {
		out[i] = IOInfo{
			Name:       info.Name,
			Dimensions: append([]int64(nil), info.Dimensions...),
			DataType:   fmt.Sprint(info.DataType),
		}
	}
	return out
}
