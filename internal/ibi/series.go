// Package ibi computes accuracy metrics (RMSE and time coverage rate) of a
// candidate inter-beat-interval series against a reference series.
// Both calculators resample the reference with the same boundary-clamped
// linear interpolation and are safe to call concurrently.
package ibi

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidSeries is returned for series that are too short, mismatched or not time-ordered
	ErrInvalidSeries = errors.New("invalid series")

	// ErrEmptySelection is returned when no candidate sample falls inside the interval set
	ErrEmptySelection = errors.New("no candidate samples selected")

	// ErrInsufficientSpan is returned when the reference span holds no complete TCR bin
	ErrInsufficientSpan = errors.New("reference span shorter than one bin")

	// ErrInvalidParameter is returned for unusable bin widths or tolerances
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidInterval is returned for intervals with start > end or non-finite bounds
	ErrInvalidInterval = errors.New("invalid interval")
)

// Series is an IBI time series held as parallel time/value slices.
// Times are in seconds and strictly increasing.
type Series struct {
	Times  []float64 `json:"times" msgpack:"times"`
	Values []float64 `json:"values" msgpack:"values"`
}

// NewSeries builds a Series from parallel slices and validates it.
// At least one point is required; callers interpolating a series need two.
func NewSeries(times, values []float64) (Series, error) {
	s := Series{Times: times, Values: values}
	if err := s.validate(1); err != nil {
		return Series{}, err
	}
	return s, nil
}

// Len returns the number of samples
func (s Series) Len() int {
	return len(s.Times)
}

// Span returns the time between the first and last samples
func (s Series) Span() float64 {
	if len(s.Times) == 0 {
		return 0
	}
	return s.Times[len(s.Times)-1] - s.Times[0]
}

func (s Series) validate(minPoints int) error {
	if len(s.Times) != len(s.Values) {
		return fmt.Errorf("%w: %d times but %d values", ErrInvalidSeries, len(s.Times), len(s.Values))
	}
	if len(s.Times) < minPoints {
		return fmt.Errorf("%w: %d points, need at least %d", ErrInvalidSeries, len(s.Times), minPoints)
	}
	for i, t := range s.Times {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("%w: non-finite time at index %d", ErrInvalidSeries, i)
		}
		if math.IsNaN(s.Values[i]) || math.IsInf(s.Values[i], 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidSeries, i)
		}
		if i > 0 && t <= s.Times[i-1] {
			return fmt.Errorf("%w: time %.6f at index %d does not follow %.6f", ErrInvalidSeries, t, i, s.Times[i-1])
		}
	}
	return nil
}

// Interval is a closed time range [Start, End] in seconds
type Interval struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

func (iv Interval) validate() error {
	if math.IsNaN(iv.Start) || math.IsNaN(iv.End) || math.IsInf(iv.Start, 0) || math.IsInf(iv.End, 0) {
		return fmt.Errorf("%w: non-finite bound [%v, %v]", ErrInvalidInterval, iv.Start, iv.End)
	}
	if iv.Start > iv.End {
		return fmt.Errorf("%w: start %.6f after end %.6f", ErrInvalidInterval, iv.Start, iv.End)
	}
	return nil
}
