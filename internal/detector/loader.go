package detector

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/dudu/facesignal/internal/inference"
	"github.com/dudu/facesignal/internal/session"
	"github.com/dudu/facesignal/pkg/log"
)

// Loader opens face mesh detectors for a session. Each location names an
// ONNX Runtime library and a model file.
type Loader struct {
	Inference         inference.Options
	PresenceThreshold float64
	Logger            logrus.FieldLogger
}

// Open loads the model at loc. The model file is checked before the
// runtime library so a missing model never loads native code.
func (l Loader) Open(ctx context.Context, loc session.Location) (session.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if loc.ModelPath == "" {
		return nil, errors.New("location has no model path")
	}
	if _, err := os.Stat(loc.ModelPath); err != nil {
		return nil, fmt.Errorf("face mesh model unavailable: %w", err)
	}

	logger := l.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithFields(log.Fields{"location": loc.Name, "model": loc.ModelPath})

	if err := inference.Initialize(loc.LibraryPath); err != nil {
		return nil, err
	}

	mesh, err := NewFaceMesh(loc.ModelPath, Options{
		Inference:         l.Inference,
		PresenceThreshold: l.PresenceThreshold,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("face mesh loaded")
	return mesh, nil
}

// CheckLayout verifies that a model exposes the tensors FaceMesh feeds and
// reads, with the landmark output holding the full mesh.
func CheckLayout(inputs, outputs []inference.IOInfo) error {
	var errs []error

	in, ok := findTensor(inputs, InputName)
	switch {
	case !ok:
		errs = append(errs, fmt.Errorf("missing input %q", InputName))
	case inference.Elements(in.Dimensions) != 3*meshInputSize*meshInputSize:
		errs = append(errs, fmt.Errorf("input %q has shape %v, want 1x3x%dx%d", InputName, in.Dimensions, meshInputSize, meshInputSize))
	}

	out, ok := findTensor(outputs, LandmarksName)
	switch {
	case !ok:
		errs = append(errs, fmt.Errorf("missing output %q", LandmarksName))
	case inference.Elements(out.Dimensions) != meshValues:
		errs = append(errs, fmt.Errorf("output %q has %d values, want %d", LandmarksName, inference.Elements(out.Dimensions), meshValues))
	}

	if _, ok := findTensor(outputs, FaceFlagName); !ok {
		errs = append(errs, fmt.Errorf("missing output %q", FaceFlagName))
	}
	return errors.Join(errs...)
}

func findTensor(infos []inference.IOInfo, name string) (inference.IOInfo, bool) {
	for _, info := range infos {
		if info.Name == name {
			return info, true
		}
	}
	return inference.IOInfo{}, false
}
