package ibi

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// GridStep is the spacing, in seconds, of the grid the reference series is
// resampled onto before candidate samples are matched against it.
const GridStep = 1.0 / 1000

// EmptySelectionPolicy decides what ComputeRMSE does when the interval set
// selects no candidate samples.
type EmptySelectionPolicy string

const (
	// EmptySelectionError returns ErrEmptySelection
	EmptySelectionError EmptySelectionPolicy = "error"

	// EmptySelectionNaN logs a warning and returns an RMSE of NaN with no diffs
	EmptySelectionNaN EmptySelectionPolicy = "nan"
)

// RMSEParams configures ComputeRMSE
type RMSEParams struct {
	// Intervals restricts comparison to candidate samples inside any of these
	// closed ranges. Empty means the whole resampled reference grid.
	Intervals []Interval `json:"intervals,omitempty"`

	// OnEmpty defaults to EmptySelectionError
	OnEmpty EmptySelectionPolicy `json:"on_empty,omitempty"`
}

// RMSEResult holds the RMSE and the signed per-sample differences
// (candidate minus reference), in selection order.
type RMSEResult struct {
	RMSE    float64   `json:"rmse" msgpack:"rmse"`
	Diffs   []float64 `json:"diffs" msgpack:"diffs"`
	Matched int       `json:"matched" msgpack:"matched"`
}

// grid is the uniform resampling grid start + i*step for i in [0, n),
// bounded above by stop. Points are computed on demand so long recordings
// never allocate it.
type grid struct {
	start float64
	stop  float64
	step  float64
	n     int
}

func newGrid(t0, tN, step float64) grid {
	lo := math.Floor(t0 / step)
	hi := math.Ceil(tN / step)
	n := int(hi - lo)
	if n < 1 {
		n = 1
	}
	return grid{start: lo * step, stop: hi * step, step: step, n: n}
}

func (g grid) at(i int) float64 {
	return g.start + float64(i)*g.step
}

// end is the exclusive upper bound of the grid, ceil(tN/step)*step.
// start+n*step can round below tN.
func (g grid) end() float64 {
	return g.stop
}

// nearest returns the index of the grid point closest to t, preferring the
// lower index on ties. The floor estimate can be off by one in floating
// point, so its neighbours are compared directly.
func (g grid) nearest(t float64) int {
	// clamp before converting, huge t would overflow int
	q := math.Floor((t - g.start) / g.step)
	q = math.Max(0, math.Min(q, float64(g.n-1)))
	k := int(q)

	best := -1
	bestDist := math.Inf(1)
	for i := k - 1; i <= k+2; i++ {
		if i < 0 || i >= g.n {
			continue
		}
		if d := math.Abs(g.at(i) - t); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// selectIndices returns candidate indices inside each interval, concatenated
// in interval order. Overlapping intervals yield repeated indices.
func selectIndices(times []float64, intervals []Interval) []int {
	var idx []int
	for _, iv := range intervals {
		lo := sort.SearchFloat64s(times, iv.Start)
		hi := sort.Search(len(times), func(i int) bool { return times[i] > iv.End })
		for i := lo; i < hi; i++ {
			idx = append(idx, i)
		}
	}
	return idx
}

// ComputeRMSE matches each selected candidate sample to the nearest point of
// the reference resampled on a GridStep grid and returns the root mean
// square of the differences.
func ComputeRMSE(candidate, reference Series, params RMSEParams, logger *zap.SugaredLogger) (RMSEResult, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := candidate.validate(1); err != nil {
		return RMSEResult{}, fmt.Errorf("candidate: %w", err)
	}
	r, err := NewResampler(reference)
	if err != nil {
		return RMSEResult{}, err
	}

	g := newGrid(reference.Times[0], reference.Times[reference.Len()-1], GridStep)

	intervals := params.Intervals
	if len(intervals) == 0 {
		intervals = []Interval{{Start: g.start, End: g.end()}}
	}
	for i, iv := range intervals {
		if err := iv.validate(); err != nil {
			return RMSEResult{}, fmt.Errorf("interval %d: %w", i, err)
		}
	}

	selected := selectIndices(candidate.Times, intervals)
	if len(selected) == 0 {
		if params.OnEmpty == EmptySelectionNaN {
			logger.Warnw("no candidate samples inside intervals, returning NaN",
				"intervals", len(intervals), "candidate_samples", candidate.Len())
			return RMSEResult{RMSE: math.NaN(), Diffs: []float64{}}, nil
		}
		return RMSEResult{}, fmt.Errorf("%w: %d intervals matched none of %d samples",
			ErrEmptySelection, len(intervals), candidate.Len())
	}

	diffs := make([]float64, len(selected))
	for j, i := range selected {
		ref := r.At(g.at(g.nearest(candidate.Times[i])))
		diffs[j] = candidate.Values[i] - ref
	}

	rmse := math.Sqrt(floats.Dot(diffs, diffs) / float64(len(diffs)))

	logger.Debugf("RMSE %.6f over %d matched samples (%d grid points)", rmse, len(diffs), g.n)

	return RMSEResult{RMSE: rmse, Diffs: diffs, Matched: len(diffs)}, nil
}
