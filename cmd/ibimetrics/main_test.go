package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chrissnell/ibimetrics/internal/ibi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSeries(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantTimes  []float64
		wantValues []float64
		wantErr    error
	}{
		{
			name:       "with header",
			input:      "time,ibi\n0,0.8\n1.5, 0.82\n",
			wantTimes:  []float64{0, 1.5},
			wantValues: []float64{0.8, 0.82},
		},
		{
			name:       "no header and comments",
			input:      "# exported from ecg\n0,1\n\n10,1\n",
			wantTimes:  []float64{0, 10},
			wantValues: []float64{1, 1},
		},
		{
			name:    "decreasing times",
			input:   "0,1\n5,1\n4,1\n",
			wantErr: ibi.ErrInvalidSeries,
		},
		{
			name:    "header only",
			input:   "time,value\n",
			wantErr: ibi.ErrInvalidSeries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := readSeries(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTimes, s.Times)
			assert.Equal(t, tt.wantValues, s.Values)
		})
	}
}

func TestReadSeriesBadRow(t *testing.T) {
	_, err := readSeries(strings.NewReader("0,1\nabc,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")

	_, err = readSeries(strings.NewReader("0,1,2\n"))
	assert.Error(t, err)
}

func TestParseIntervals(t *testing.T) {
	got, err := parseIntervals([]string{"0:10", " 20 : 30.5"})
	require.NoError(t, err)
	assert.Equal(t, []ibi.Interval{{Start: 0, End: 10}, {Start: 20, End: 30.5}}, got)

	for _, bad := range []string{"10", "a:1", "1:b"} {
		_, err := parseIntervals([]string{bad})
		assert.True(t, errors.Is(err, ibi.ErrInvalidInterval), bad)
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := parsePolicy("nan")
	require.NoError(t, err)
	assert.Equal(t, ibi.EmptySelectionNaN, p)

	p, err = parsePolicy("error")
	require.NoError(t, err)
	assert.Equal(t, ibi.EmptySelectionError, p)

	for _, bad := range []string{"zero", "NaN", "ignore"} {
		_, err := parsePolicy(bad)
		assert.ErrorIs(t, err, ibi.ErrInvalidParameter, bad)
	}
}

func TestPrintRMSEJSONWithoutMatches(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRMSE(&buf, "json", ibi.RMSEResult{RMSE: math.NaN(), Diffs: []float64{}}))
	assert.JSONEq(t, `{"rmse":null,"diffs":[],"matched":0}`, buf.String())

	assert.Error(t, printRMSE(&buf, "yaml", ibi.RMSEResult{}))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.csv", "time,value\n0,1\n10,1\n")
	cand := writeFile(t, dir, "cand.csv", "time,value\n5,1\n")
	cfg := writeFile(t, dir, "config.yaml", "tcr:\n  bin-width: 5\n  error-tolerance: 0.5\nstorage:\n  driver: sqlite\n  dsn: "+filepath.Join(dir, "cli.db")+"\n")

	run := func(args ...string) string {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(append([]string{"--config", cfg}, args...))
		require.NoError(t, rootCmd.Execute())
		return out.String()
	}

	var rmse struct {
		RMSE    *float64  `json:"rmse"`
		Diffs   []float64 `json:"diffs"`
		Matched int       `json:"matched"`
	}
	require.NoError(t, json.Unmarshal([]byte(run("rmse", "--reference", ref, "--candidate", cand, "--format", "json")), &rmse))
	require.NotNil(t, rmse.RMSE)
	assert.Equal(t, 0.0, *rmse.RMSE)
	assert.Equal(t, []float64{0}, rmse.Diffs)

	out := run("tcr", "--reference", ref, "--candidate", cand, "--format", "text")
	assert.Contains(t, out, "TCR:     50.00%")
	assert.Contains(t, out, "Covered: 1/2 bins")

	out = run("import", "subject-01", "--reference", ref, "--candidate", cand)
	assert.Contains(t, out, "Imported subject-01: 2 reference and 1 candidate samples")

	var sum summary
	require.NoError(t, json.Unmarshal([]byte(run("batch", "--format", "json")), &sum))
	require.Len(t, sum.Reports, 1)
	assert.Equal(t, "subject-01", sum.Reports[0].Recording)
	require.NotNil(t, sum.Reports[0].TCR)
	assert.Equal(t, 50.0, *sum.Reports[0].TCR)
}
