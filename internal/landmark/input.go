package landmark

// Input is a frame source as seen by the engine: read-only dimensions.
// Estimators that need pixels type-assert to a richer interface.
type Input interface {
	// NativeSize returns the pixel dimensions of the frames.
	NativeSize() (width, height int)
	// DisplaySize returns the dimensions the frames are currently shown at.
	DisplaySize() (width, height int)
}

// EstimateRequest is the parameter object accepted by request-style estimators.
type EstimateRequest struct {
	Input          Input
	MaxFaces       int
	FlipHorizontal bool
}
