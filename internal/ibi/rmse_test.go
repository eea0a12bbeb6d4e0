package ibi

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var flatReference = Series{Times: []float64{0, 10}, Values: []float64{1.0, 1.0}}

func TestComputeRMSEEndToEnd(t *testing.T) {
	candidate := Series{Times: []float64{5}, Values: []float64{1.0}}

	res, err := ComputeRMSE(candidate, flatReference, RMSEParams{Intervals: []Interval{{Start: 0, End: 10}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.RMSE)
	assert.Equal(t, []float64{0.0}, res.Diffs)
	assert.Equal(t, 1, res.Matched)
}

func TestComputeRMSEDefaultInterval(t *testing.T) {
	candidate := Series{Times: []float64{-1, 0, 5, 10, 11}, Values: []float64{2, 1.5, 1.0, 0.5, 2}}

	res, err := ComputeRMSE(candidate, flatReference, RMSEParams{}, nil)
	require.NoError(t, err)

	// The default interval spans the grid [0, 10], so t=-1 and t=11 are dropped.
	want := []float64{0.5, 0, -0.5}
	if diff := cmp.Diff(want, res.Diffs, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("diffs mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, math.Sqrt(0.5/3), res.RMSE, 1e-12)
}

func TestComputeRMSEDefaultIntervalKeepsLastReferenceTime(t *testing.T) {
	// endpoints off the 1 ms grid
	ref := Series{Times: []float64{8.905, 9.855}, Values: []float64{1.0, 1.0}}
	candidate := Series{Times: []float64{8.905, 9.855}, Values: []float64{1.0, 1.0}}

	g := newGrid(8.905, 9.855, GridStep)
	assert.GreaterOrEqual(t, g.end(), 9.855)

	res, err := ComputeRMSE(candidate, ref, RMSEParams{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 0.0, res.RMSE)
	assert.Equal(t, []float64{0, 0}, res.Diffs)
}

func TestComputeRMSEFarCandidateMatchesLastGridPoint(t *testing.T) {
	ref := Series{Times: []float64{0, 10}, Values: []float64{1.0, 2.0}}
	candidate := Series{Times: []float64{1e17}, Values: []float64{2.0}}

	res, err := ComputeRMSE(candidate, ref, RMSEParams{Intervals: []Interval{{Start: 0, End: 1e18}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, res.Diffs)

	g := newGrid(0, 10, GridStep)
	assert.Equal(t, g.n-1, g.nearest(1e17))
	assert.Equal(t, 0, g.nearest(-1e300))
}

func TestComputeRMSEZeroWhenCandidateMatchesReference(t *testing.T) {
	ref := Series{
		Times:  []float64{0, 1, 2, 3},
		Values: []float64{0.8, 0.9, 0.85, 0.8},
	}
	candidate := Series{
		Times:  []float64{0.5, 1.25, 2, 2.75},
		Values: []float64{0.85, 0.8875, 0.85, 0.8125},
	}

	res, err := ComputeRMSE(candidate, ref, RMSEParams{}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.RMSE, 1e-12)
	for i, d := range res.Diffs {
		assert.InDelta(t, 0.0, d, 1e-12, "diff %d", i)
	}
}

func TestComputeRMSEIsAsymmetric(t *testing.T) {
	a := Series{Times: []float64{0, 2}, Values: []float64{1.0, 3.0}}
	b := Series{Times: []float64{1, 2}, Values: []float64{1.0, 3.0}}

	ab, err := ComputeRMSE(b, a, RMSEParams{}, nil)
	require.NoError(t, err)
	ba, err := ComputeRMSE(a, b, RMSEParams{}, nil)
	require.NoError(t, err)

	// Only the reference is interpolated and only its span is gridded, so
	// swapping roles changes both the selection and the result.
	assert.InDelta(t, math.Sqrt((1+1e-6)/2), ab.RMSE, 1e-9)
	assert.Equal(t, 2, ab.Matched)
	assert.InDelta(t, 0.002, ba.RMSE, 1e-9)
	assert.Equal(t, 1, ba.Matched)
	assert.NotEqual(t, ab.RMSE, ba.RMSE)
}

func TestComputeRMSEIntervals(t *testing.T) {
	candidate := Series{Times: []float64{1, 2, 3}, Values: []float64{1.5, 1.0, 0.5}}

	tests := []struct {
		name      string
		intervals []Interval
		diffs     []float64
		rmse      float64
	}{
		{
			name:      "single interval",
			intervals: []Interval{{Start: 0, End: 3.5}},
			diffs:     []float64{0.5, 0, -0.5},
			rmse:      math.Sqrt(0.5 / 3),
		},
		{
			name:      "overlap counts samples twice",
			intervals: []Interval{{Start: 0, End: 2.5}, {Start: 1.5, End: 3.5}},
			diffs:     []float64{0.5, 0, 0, -0.5},
			rmse:      math.Sqrt(0.5 / 4),
		},
		{
			name:      "supplied order is kept",
			intervals: []Interval{{Start: 2.5, End: 3.5}, {Start: 0, End: 1.5}},
			diffs:     []float64{-0.5, 0.5},
			rmse:      0.5,
		},
		{
			name:      "closed bounds",
			intervals: []Interval{{Start: 1, End: 1}, {Start: 3, End: 3}},
			diffs:     []float64{0.5, -0.5},
			rmse:      0.5,
		},
		{
			name:      "identical intervals",
			intervals: []Interval{{Start: 0, End: 10}, {Start: 0, End: 10}},
			diffs:     []float64{0.5, 0, -0.5, 0.5, 0, -0.5},
			rmse:      math.Sqrt(0.5 / 3),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ComputeRMSE(candidate, flatReference, RMSEParams{Intervals: tt.intervals}, nil)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.diffs, res.Diffs, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("diffs mismatch (-want +got):\n%s", diff)
			}
			assert.InDelta(t, tt.rmse, res.RMSE, 1e-12)
			assert.Equal(t, len(tt.diffs), res.Matched)
		})
	}
}

func TestComputeRMSEEmptySelection(t *testing.T) {
	candidate := Series{Times: []float64{1, 2}, Values: []float64{1, 1}}
	params := RMSEParams{Intervals: []Interval{{Start: 20, End: 30}}}

	_, err := ComputeRMSE(candidate, flatReference, params, nil)
	assert.ErrorIs(t, err, ErrEmptySelection)

	core, logs := observer.New(zapcore.WarnLevel)
	params.OnEmpty = EmptySelectionNaN
	res, err := ComputeRMSE(candidate, flatReference, params, zap.New(core).Sugar())
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res.RMSE))
	assert.Empty(t, res.Diffs)
	assert.Equal(t, 1, logs.Len())
}

func TestComputeRMSEInvalidInput(t *testing.T) {
	candidate := Series{Times: []float64{1, 2}, Values: []float64{1, 1}}

	_, err := ComputeRMSE(candidate, flatReference, RMSEParams{Intervals: []Interval{{Start: 5, End: 1}}}, nil)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = ComputeRMSE(candidate, flatReference, RMSEParams{Intervals: []Interval{{Start: math.NaN(), End: 1}}}, nil)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = ComputeRMSE(candidate, Series{Times: []float64{0}, Values: []float64{1}}, RMSEParams{}, nil)
	assert.ErrorIs(t, err, ErrInvalidSeries)

	_, err = ComputeRMSE(Series{Times: []float64{2, 1}, Values: []float64{1, 1}}, flatReference, RMSEParams{}, nil)
	assert.ErrorIs(t, err, ErrInvalidSeries)
}

func TestGridBounds(t *testing.T) {
	g := newGrid(0.0004, 1.0006, GridStep)
	assert.Equal(t, 0.0, g.start)
	assert.Equal(t, 1001, g.n)
	assert.InDelta(t, 1.001, g.end(), 1e-12)
}

func exhaustiveNearest(g grid, t float64) int {
	best := 0
	for i := 1; i < g.n; i++ {
		if math.Abs(g.at(i)-t) < math.Abs(g.at(best)-t) {
			best = i
		}
	}
	return best
}

func TestGridNearestTies(t *testing.T) {
	g := newGrid(0, 1, GridStep)
	assert.Equal(t, 0, g.nearest(0.0005))
	assert.Equal(t, 0, g.nearest(-5))
	assert.Equal(t, g.n-1, g.nearest(5))
	assert.Equal(t, 500, g.nearest(0.5))
}

func TestGridNearestMatchesExhaustiveScan(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	props := gopter.NewProperties(parameters)

	props.Property("index arithmetic equals argmin", prop.ForAll(
		func(t0, span, q float64) bool {
			g := newGrid(t0, t0+span, GridStep)
			query := g.start - 0.01 + q*(g.end()-g.start+0.02)
			return g.nearest(query) == exhaustiveNearest(g, query)
		},
		gen.Float64Range(-5, 5),
		gen.Float64Range(0.002, 0.5),
		gen.Float64Range(0, 1),
	))

	props.TestingRun(t)
}
