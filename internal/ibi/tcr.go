package ibi

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// TCRParams configures ComputeTCR
type TCRParams struct {
	// BinWidth is the evaluation bin width in seconds
	BinWidth float64 `json:"bin_width" yaml:"bin-width"`

	// ErrorTolerance is the largest IBI difference, exclusive, that counts as agreement
	ErrorTolerance float64 `json:"error_tolerance" yaml:"error-tolerance"`
}

func (p TCRParams) validate() error {
	if math.IsNaN(p.BinWidth) || math.IsInf(p.BinWidth, 0) || p.BinWidth <= 0 {
		return fmt.Errorf("%w: bin width must be positive, got %v", ErrInvalidParameter, p.BinWidth)
	}
	if math.IsNaN(p.ErrorTolerance) || math.IsInf(p.ErrorTolerance, 0) || p.ErrorTolerance < 0 {
		return fmt.Errorf("%w: error tolerance must be non-negative, got %v", ErrInvalidParameter, p.ErrorTolerance)
	}
	return nil
}

// TCRResult holds the time coverage rate and the per-bin outcome
type TCRResult struct {
	// TCR is the percentage of covered bins, rounded to 2 decimal places
	TCR      float64 `json:"tcr" msgpack:"tcr"`
	Bins     int     `json:"bins" msgpack:"bins"`
	Covered  int     `json:"covered" msgpack:"covered"`
	Coverage []bool  `json:"coverage" msgpack:"coverage"`
}

// binReference resamples ref at the bin centers and pins the first and last
// bins to the reference's first and last values.
func binReference(r *Resampler, centers []float64) []float64 {
	vals := r.Resample(centers)
	vals[0] = r.First()
	vals[len(vals)-1] = r.Last()
	return vals
}

// ComputeTCR splits the reference span into floor(span/BinWidth) bins and
// reports the percentage of bins holding at least one candidate value within
// ErrorTolerance of the bin's reference value. A trailing partial bin is not
// evaluated.
func ComputeTCR(candidate, reference Series, params TCRParams) (TCRResult, error) {
	if err := params.validate(); err != nil {
		return TCRResult{}, err
	}
	if err := candidate.validate(1); err != nil {
		return TCRResult{}, fmt.Errorf("candidate: %w", err)
	}
	r, err := NewResampler(reference)
	if err != nil {
		return TCRResult{}, err
	}

	w := params.BinWidth
	t0 := reference.Times[0]
	bins := int(math.Floor(reference.Span() / w))
	if bins < 1 {
		return TCRResult{}, fmt.Errorf("%w: span %.6fs, bin width %.6fs", ErrInsufficientSpan, reference.Span(), w)
	}

	half := w / 2
	centers := make([]float64, bins)
	for k := range centers {
		centers[k] = t0 + half + float64(k)*w
	}
	refVals := binReference(r, centers)

	coverage := make([]bool, bins)
	covered := 0
	times := candidate.Times
	for k, c := range centers {
		lo := sort.SearchFloat64s(times, c-half)
		hi := sort.SearchFloat64s(times, c+half)
		for i := lo; i < hi; i++ {
			if math.Abs(candidate.Values[i]-refVals[k]) < params.ErrorTolerance {
				coverage[k] = true
				covered++
				break
			}
		}
	}

	return TCRResult{
		TCR:      roundPercent(float64(covered) * 100 / float64(bins)),
		Bins:     bins,
		Covered:  covered,
		Coverage: coverage,
	}, nil
}

// roundPercent rounds to 2 decimal places using the exact decimal value of
// the float, ties to even.
func roundPercent(v float64) float64 {
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return rounded
}
