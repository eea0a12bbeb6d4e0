package ibi

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// Resampler evaluates a reference series at arbitrary times by linear
// interpolation. Queries outside the reference's time range return the
// nearest endpoint value; the series is never extrapolated.
type Resampler struct {
	pl    interp.PiecewiseLinear
	first float64
	last  float64
}

// NewResampler fits a Resampler to ref, which needs at least two strictly
// time-ordered points.
func NewResampler(ref Series) (*Resampler, error) {
	if err := ref.validate(2); err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}

	r := &Resampler{
		first: ref.Values[0],
		last:  ref.Values[len(ref.Values)-1],
	}
	if err := r.pl.Fit(ref.Times, ref.Values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeries, err)
	}
	return r, nil
}

// At returns the reference value at time t.
// PiecewiseLinear already holds the end values flat outside [xs[0], xs[n-1]].
func (r *Resampler) At(t float64) float64 {
	return r.pl.Predict(t)
}

// Resample returns one value per query time. Query times may be in any order.
func (r *Resampler) Resample(times []float64) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = r.At(t)
	}
	return out
}

// First returns the reference series' first value
func (r *Resampler) First() float64 {
	return r.first
}

// Last returns the reference series' last value
func (r *Resampler) Last() float64 {
	return r.last
}

// Resample is a convenience wrapper around NewResampler and Resampler.Resample.
func Resample(ref Series, times []float64) ([]float64, error) {
	r, err := NewResampler(ref)
	if err != nil {
		return nil, err
	}
	return r.Resample(times), nil
}
