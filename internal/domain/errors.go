package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCategory     = errors.New("unknown w_class")
	ErrNoOverlap           = errors.New("raster extents do not overlap")
	ErrShapeMismatch       = errors.New("cropped rasters differ in shape")
	ErrNoRasters           = errors.New("no rasters to aggregate")
	ErrInvalidArtifactName = errors.New("invalid artifact name")
	ErrMissingBand         = errors.New("reference raster lacks band")
	ErrEmptyMosaic         = errors.New("no tiles to merge")
	ErrMissingInput        = errors.New("missing input artifact")
	ErrEmptyAreaOfInterest = errors.New("area of interest has no usable geometry")
	ErrCRSMismatch         = errors.New("rasters use different coordinate systems")
	ErrMalformedArtifact   = errors.New("malformed artifact")

	// ErrNotArtifact marks files that carry no pipeline suffix at all.
	ErrNotArtifact = errors.New("not a pipeline artifact")
)

// ErrorKind classifies a unit failure for the run summary.
type ErrorKind string

const (
	KindSourceFormat ErrorKind = "source_format"
	KindTransient    ErrorKind = "transient"
	KindInvariant    ErrorKind = "invariant"
	KindInternal     ErrorKind = "internal"
)

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Transient marks err as a retryable external-service failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err was marked by Transient.
func IsTransient(err error) bool {
	var t transientError
	return errors.As(err, &t)
}

type invariantError struct{ err error }

func (e invariantError) Error() string { return e.err.Error() }
func (e invariantError) Unwrap() error { return e.err }

// Invariant marks err as a broken programming invariant.
func Invariant(err error) error {
	if err == nil {
		return nil
	}
	return invariantError{err: err}
}

// KindOf classifies err. Explicit transient and invariant marks take
// precedence over the sentinel the error wraps.
func KindOf(err error) ErrorKind {
	var inv invariantError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &inv), errors.Is(err, ErrNoRasters):
		return KindInvariant
	case IsTransient(err):
		return KindTransient
	case errors.Is(err, ErrUnknownCategory),
		errors.Is(err, ErrNoOverlap),
		errors.Is(err, ErrShapeMismatch),
		errors.Is(err, ErrInvalidArtifactName),
		errors.Is(err, ErrMissingBand),
		errors.Is(err, ErrEmptyMosaic),
		errors.Is(err, ErrMissingInput),
		errors.Is(err, ErrEmptyAreaOfInterest),
		errors.Is(err, ErrCRSMismatch),
		errors.Is(err, ErrMalformedArtifact):
		return KindSourceFormat
	default:
		return KindInternal
	}
}

// UnitError attributes a failure to one unit of one stage.
type UnitError struct {
	Stage string
	Key   string
	Kind  ErrorKind
	Err   error
}

// NewUnitError wraps err and classifies it.
func NewUnitError(stage, key string, err error) *UnitError {
	return &UnitError{Stage: stage, Key: key, Kind: KindOf(err), Err: err}
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Stage, e.Key, e.Kind, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }
