package ibi

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResamplerAt(t *testing.T) {
	ref := Series{
		Times:  []float64{1, 2, 4},
		Values: []float64{10, 20, 0},
	}
	r, err := NewResampler(ref)
	require.NoError(t, err)

	tests := []struct {
		name     string
		at       float64
		expected float64
	}{
		{name: "before first sample", at: 0, expected: 10},
		{name: "far before first sample", at: -1e6, expected: 10},
		{name: "first sample", at: 1, expected: 10},
		{name: "interior rising", at: 1.5, expected: 15},
		{name: "interior sample", at: 2, expected: 20},
		{name: "interior falling", at: 3, expected: 10},
		{name: "last sample", at: 4, expected: 0},
		{name: "after last sample", at: 100, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, r.At(tt.at), 1e-12)
		})
	}
}

func TestResampleUnorderedQueries(t *testing.T) {
	ref := Series{Times: []float64{0, 10}, Values: []float64{0, 1}}

	got, err := Resample(ref, []float64{5, -1, 20, 2.5})
	require.NoError(t, err)

	want := []float64{0.5, 0, 1, 0.25}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Resample mismatch (-want +got):\n%s", diff)
	}
}

func TestNewResamplerRejectsInvalidSeries(t *testing.T) {
	tests := []struct {
		name string
		ref  Series
	}{
		{name: "empty", ref: Series{}},
		{name: "single point", ref: Series{Times: []float64{0}, Values: []float64{1}}},
		{name: "length mismatch", ref: Series{Times: []float64{0, 1}, Values: []float64{1}}},
		{name: "repeated time", ref: Series{Times: []float64{0, 1, 1}, Values: []float64{1, 1, 1}}},
		{name: "decreasing time", ref: Series{Times: []float64{0, 2, 1}, Values: []float64{1, 1, 1}}},
		{name: "nan value", ref: Series{Times: []float64{0, 1}, Values: []float64{1, math.NaN()}}},
		{name: "infinite time", ref: Series{Times: []float64{0, math.Inf(1)}, Values: []float64{1, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResampler(tt.ref)
			assert.ErrorIs(t, err, ErrInvalidSeries)
		})
	}
}

func TestNewSeries(t *testing.T) {
	s, err := NewSeries([]float64{5}, []float64{1.0})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0.0, s.Span())

	_, err = NewSeries(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSeries)
}

// genReference produces strictly increasing reference series of 2..32 points
func genReference() gopter.Gen {
	return gen.IntRange(2, 32).FlatMap(func(v interface{}) gopter.Gen {
		n := v.(int)
		return gopter.CombineGens(
			gen.SliceOfN(n, gen.Float64Range(0.001, 2.0)),
			gen.SliceOfN(n, gen.Float64Range(0.3, 1.5)),
		).Map(func(vals []interface{}) Series {
			steps := vals[0].([]float64)
			ibis := vals[1].([]float64)
			m := len(steps)
			if len(ibis) < m {
				m = len(ibis)
			}
			times := make([]float64, m)
			elapsed := 0.0
			for i := 0; i < m; i++ {
				elapsed += steps[i]
				times[i] = elapsed
			}
			return Series{Times: times, Values: ibis[:m]}
		})
	}, reflect.TypeOf(Series{}))
}

func TestResamplerClampingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	parameters.Rng.Seed(time.Now().UnixNano())
	props := gopter.NewProperties(parameters)

	props.Property("ends are held flat and samples are reproduced", prop.ForAll(
		func(ref Series, offset float64) bool {
			if ref.Len() < 2 {
				return true
			}
			r, err := NewResampler(ref)
			if err != nil {
				return false
			}
			n := ref.Len()
			if r.At(ref.Times[0]-offset) != ref.Values[0] {
				return false
			}
			if r.At(ref.Times[n-1]+offset) != ref.Values[n-1] {
				return false
			}
			for i := range ref.Times {
				if r.At(ref.Times[i]) != ref.Values[i] {
					return false
				}
			}
			return true
		},
		genReference(),
		gen.Float64Range(1e-9, 1e3),
	))

	props.TestingRun(t)
}
