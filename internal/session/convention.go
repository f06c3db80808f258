package session

import (
	"context"
	"fmt"

	"github.com/dudu/facesignal/internal/landmark"
)

// RequestEstimator takes a single parameter object.
type RequestEstimator interface {
	EstimateFaces(ctx context.Context, req landmark.EstimateRequest) ([]landmark.Face, error)
}

// PositionalEstimator takes the input and options as positional arguments.
type PositionalEstimator interface {
	EstimateFacesFrom(input landmark.Input, maxFaces int, flipHorizontal bool) ([]landmark.Face, error)
}

// callConvention is one way of invoking the detector.
type callConvention interface {
	name() string
	estimate(ctx context.Context, req landmark.EstimateRequest) ([]landmark.Face, error)
}

type requestCall struct {
	est RequestEstimator
}

func (c requestCall) name() string { return "request" }

func (c requestCall) estimate(ctx context.Context, req landmark.EstimateRequest) ([]landmark.Face, error) {
	return c.est.EstimateFaces(ctx, req)
}

type positionalCall struct {
	est PositionalEstimator
}

func (c positionalCall) name() string { return "positional" }

func (c positionalCall) estimate(_ context.Context, req landmark.EstimateRequest) ([]landmark.Face, error) {
	return c.est.EstimateFacesFrom(req.Input, req.MaxFaces, req.FlipHorizontal)
}

// conventionsFor lists the calling conventions the handle supports, in the
// order they are tried.
func conventionsFor(h Handle) []callConvention {
	var out []callConvention
	if est, ok := h.(RequestEstimator); ok {
		out = append(out, requestCall{est: est})
	}
	if est, ok := h.(PositionalEstimator); ok {
		out = append(out, positionalCall{est: est})
	}
	return out
}

// invoke calls one convention, turning a panic into an error.
func invoke(ctx context.Context, c callConvention, req landmark.EstimateRequest) (faces []landmark.Face, err error) {
	defer func() {
		if r := recover(); r != nil {
			faces, err = nil, fmt.Errorf("%s estimator panicked: %v", c.name(), r)
		}
	}()
	return c.estimate(ctx, req)
}
