// Package batch evaluates RMSE and TCR over many recordings in parallel,
// one calculator invocation per recording.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/ibimetrics/internal/ibi"
	"github.com/chrissnell/ibimetrics/internal/log"
	"github.com/chrissnell/ibimetrics/internal/metrics"
	"github.com/chrissnell/ibimetrics/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source provides recordings to evaluate
type Source interface {
	ListRecordings(ctx context.Context) ([]string, error)
	LoadRecording(ctx context.Context, name string) (store.Recording, error)
}

// Sink receives evaluation results
type Sink interface {
	SaveEvaluations(ctx context.Context, evals []store.Evaluation) error
}

// Report is the outcome of both metrics for one recording. A metric error
// is kept here rather than failing the whole batch.
type Report struct {
	Recording string          `json:"recording"`
	RMSE      *ibi.RMSEResult `json:"rmse,omitempty"`
	RMSEErr   error           `json:"-"`
	TCR       *ibi.TCRResult  `json:"tcr,omitempty"`
	TCRErr    error           `json:"-"`
}

// Evaluator computes both metrics with fixed parameters
type Evaluator struct {
	rmse    ibi.RMSEParams
	tcr     ibi.TCRParams
	workers int
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewEvaluator creates an Evaluator running at most workers recordings at once.
// m may be nil.
func NewEvaluator(rmse ibi.RMSEParams, tcr ibi.TCRParams, workers int, logger *zap.SugaredLogger, m *metrics.Metrics) *Evaluator {
	if workers < 1 {
		workers = 1
	}
	return &Evaluator{
		rmse:    rmse,
		tcr:     tcr,
		workers: workers,
		logger:  log.OrNop(logger),
		metrics: m,
	}
}

// Evaluate computes RMSE and TCR for one recording
func (e *Evaluator) Evaluate(rec store.Recording) Report {
	report := Report{Recording: rec.Name}

	start := time.Now()
	rmse, err := ibi.ComputeRMSE(rec.Candidate, rec.Reference, e.rmse, e.logger.With("recording", rec.Name))
	e.metrics.Observe(store.MetricRMSE, start, err)
	if err != nil {
		report.RMSEErr = err
	} else {
		report.RMSE = &rmse
	}

	start = time.Now()
	tcr, err := ibi.ComputeTCR(rec.Candidate, rec.Reference, e.tcr)
	e.metrics.Observe(store.MetricTCR, start, err)
	if err != nil {
		report.TCRErr = err
	} else {
		report.TCR = &tcr
	}

	if report.RMSEErr != nil || report.TCRErr != nil {
		e.logger.Warnw("evaluation failed", "recording", rec.Name, "rmse_error", report.RMSEErr, "tcr_error", report.TCRErr)
	}
	return report
}

// EvaluateAll evaluates recordings concurrently. Reports keep the input order.
func (e *Evaluator) EvaluateAll(ctx context.Context, recs []store.Recording) ([]Report, error) {
	reports := make([]Report, len(recs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range recs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i] = e.Evaluate(recs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Run loads the named recordings (all of them when names is empty) from src,
// evaluates them and hands the results to sink under a new run ID.
func (e *Evaluator) Run(ctx context.Context, src Source, sink Sink, names []string) (uuid.UUID, []Report, error) {
	if len(names) == 0 {
		var err error
		names, err = src.ListRecordings(ctx)
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("failed to list recordings: %w", err)
		}
	}

	recs := make([]store.Recording, 0, len(names))
	for _, name := range names {
		rec, err := src.LoadRecording(ctx, name)
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("failed to load recording %s: %w", name, err)
		}
		recs = append(recs, rec)
	}

	reports, err := e.EvaluateAll(ctx, recs)
	if err != nil {
		return uuid.Nil, nil, err
	}

	runID := uuid.New()
	evals, err := e.evaluations(runID, reports)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if sink != nil {
		if err := sink.SaveEvaluations(ctx, evals); err != nil {
			return uuid.Nil, nil, fmt.Errorf("failed to save evaluations: %w", err)
		}
	}
	e.metrics.BatchDone()

	e.logger.Infow("batch evaluation complete", "run_id", runID, "recordings", len(reports))
	return runID, reports, nil
}

// evaluations flattens reports into store rows, two per recording
func (e *Evaluator) evaluations(runID uuid.UUID, reports []Report) ([]store.Evaluation, error) {
	rmseParams, err := json.Marshal(e.rmse)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rmse params: %w", err)
	}
	tcrParams, err := json.Marshal(e.tcr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tcr params: %w", err)
	}

	now := time.Now()
	evals := make([]store.Evaluation, 0, 2*len(reports))
	for _, r := range reports {
		rmse := store.Evaluation{
			ID: uuid.New(), RunID: runID, Recording: r.Recording, Metric: store.MetricRMSE,
			Value: math.NaN(), Params: string(rmseParams), CreatedAt: now,
		}
		if r.RMSE != nil {
			rmse.Value = r.RMSE.RMSE
			rmse.Diffs = r.RMSE.Diffs
		} else {
			rmse.Error = r.RMSEErr.Error()
		}

		tcr := store.Evaluation{
			ID: uuid.New(), RunID: runID, Recording: r.Recording, Metric: store.MetricTCR,
			Value: math.NaN(), Params: string(tcrParams), CreatedAt: now,
		}
		if r.TCR != nil {
			tcr.Value = r.TCR.TCR
			tcr.Coverage = r.TCR.Coverage
		} else {
			tcr.Error = r.TCRErr.Error()
		}

		evals = append(evals, rmse, tcr)
	}
	return evals, nil
}
