package server

import (
	"math"
	"time"

	"github.com/chrissnell/ibimetrics/internal/batch"
	"github.com/chrissnell/ibimetrics/internal/ibi"
	"github.com/chrissnell/ibimetrics/internal/store"
	"github.com/google/uuid"
)

// RMSERequest is the body of POST /api/v1/rmse. Intervals and OnEmpty fall
// back to the configured defaults when omitted.
type RMSERequest struct {
	Candidate ibi.Series               `json:"candidate"`
	Reference ibi.Series               `json:"reference"`
	Intervals []ibi.Interval           `json:"intervals,omitempty"`
	OnEmpty   ibi.EmptySelectionPolicy `json:"on_empty,omitempty"`
}

// TCRRequest is the body of POST /api/v1/tcr
type TCRRequest struct {
	Candidate      ibi.Series `json:"candidate"`
	Reference      ibi.Series `json:"reference"`
	BinWidth       *float64   `json:"bin_width,omitempty"`
	ErrorTolerance *float64   `json:"error_tolerance,omitempty"`
}

// RMSEResponse carries an RMSE result. RMSE is null when the selection was
// empty under the nan policy, since JSON cannot carry NaN.
type RMSEResponse struct {
	RMSE    *float64  `json:"rmse"`
	Diffs   []float64 `json:"diffs"`
	Matched int       `json:"matched"`
}

func newRMSEResponse(r ibi.RMSEResult) RMSEResponse {
	return RMSEResponse{RMSE: finite(r.RMSE), Diffs: r.Diffs, Matched: r.Matched}
}

// EvaluateResponse is the body returned by POST /api/v1/recordings/{name}/evaluate
type EvaluateResponse struct {
	RunID     uuid.UUID      `json:"run_id"`
	Recording string         `json:"recording"`
	RMSE      *RMSEResponse  `json:"rmse,omitempty"`
	RMSEError string         `json:"rmse_error,omitempty"`
	TCR       *ibi.TCRResult `json:"tcr,omitempty"`
	TCRError  string         `json:"tcr_error,omitempty"`
}

func newEvaluateResponse(runID uuid.UUID, r batch.Report) EvaluateResponse {
	resp := EvaluateResponse{RunID: runID, Recording: r.Recording, TCR: r.TCR}
	if r.RMSE != nil {
		rmse := newRMSEResponse(*r.RMSE)
		resp.RMSE = &rmse
	}
	if r.RMSEErr != nil {
		resp.RMSEError = r.RMSEErr.Error()
	}
	if r.TCRErr != nil {
		resp.TCRError = r.TCRErr.Error()
	}
	return resp
}

// EvaluationResponse is a stored evaluation with a JSON-safe value
type EvaluationResponse struct {
	ID        uuid.UUID `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	Metric    string    `json:"metric"`
	Value     *float64  `json:"value"`
	Params    string    `json:"params"`
	Diffs     []float64 `json:"diffs,omitempty"`
	Coverage  []bool    `json:"coverage,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newEvaluationResponse(e store.Evaluation) EvaluationResponse {
	return EvaluationResponse{
		ID:        e.ID,
		RunID:     e.RunID,
		Metric:    e.Metric,
		Value:     finite(e.Value),
		Params:    e.Params,
		Diffs:     e.Diffs,
		Coverage:  e.Coverage,
		Error:     e.Error,
		CreatedAt: e.CreatedAt,
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
