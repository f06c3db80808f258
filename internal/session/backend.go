package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	ErrNoEstimator    = errors.New("detector exposes no face estimation method")
	ErrNoFace         = errors.New("no face detected")
	ErrNotInitialized = errors.New("session not initialized")
)

// Location is one variant of where the detector can be loaded from.
type Location struct {
	Name        string
	LibraryPath string
	ModelPath   string
}

// Handle is an opened detector. It must also implement RequestEstimator,
// PositionalEstimator or both to be usable.
type Handle interface {
	Close() error
}

// Opener loads a detector from a location.
type Opener interface {
	Open(ctx context.Context, loc Location) (Handle, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(ctx context.Context, loc Location) (Handle, error)

func (f OpenerFunc) Open(ctx context.Context, loc Location) (Handle, error) {
	return f(ctx, loc)
}

// AttemptError records why one location could not be used
type AttemptError struct {
	Location Location
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", e.Location.Name, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when no location yielded a working detector.
type ExhaustedError struct {
	Attempts []*AttemptError
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "no detector locations configured"
	}
	msgs := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		msgs[i] = a.Error()
	}
	return fmt.Sprintf("all %d detector locations failed: %s", len(e.Attempts), strings.Join(msgs, "; "))
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a
	}
	return errs
}

// acquisition is a detector handle that passed the capability check.
type acquisition struct {
	handle      Handle
	location    Location
	conventions []callConvention
}

// acquire walks the locations in order and returns the first usable detector.
func acquire(ctx context.Context, opener Opener, locations []Location, log logrus.FieldLogger) (*acquisition, error) {
	exhausted := &ExhaustedError{}

	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			exhausted.Attempts = append(exhausted.Attempts, &AttemptError{Location: loc, Err: err})
			break
		}

		handle, err := openSafely(ctx, opener, loc)
		if err != nil {
			log.WithFields(logrus.Fields{"location": loc.Name, "error": err}).Warn("detector location failed")
			exhausted.Attempts = append(exhausted.Attempts, &AttemptError{Location: loc, Err: err})
			continue
		}

		conventions := conventionsFor(handle)
		if len(conventions) == 0 {
			if cerr := handle.Close(); cerr != nil {
				log.WithFields(logrus.Fields{"location": loc.Name, "error": cerr}).Debug("failed to release rejected detector")
			}
			exhausted.Attempts = append(exhausted.Attempts, &AttemptError{Location: loc, Err: ErrNoEstimator})
			continue
		}

		return &acquisition{handle: handle, location: loc, conventions: conventions}, nil
	}

	return nil, exhausted
}

func openSafely(ctx context.Context, opener Opener, loc Location) (handle Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle, err = nil, fmt.Errorf("opener panicked: %v", r)
		}
	}()
	handle, err = opener.Open(ctx, loc)
	if err == nil && handle == nil {
		err = fmt.Errorf("opener returned no detector")
	}
	return handle, err
}
