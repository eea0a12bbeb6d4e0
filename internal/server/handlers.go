package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chrissnell/ibimetrics/internal/ibi"
	"github.com/chrissnell/ibimetrics/internal/store"
	"github.com/gorilla/mux"
)

var errNoStore = errors.New("no recording store configured")

// statusFor maps calculator and store errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ibi.ErrInvalidSeries),
		errors.Is(err, ibi.ErrInvalidParameter),
		errors.Is(err, ibi.ErrInvalidInterval):
		return http.StatusBadRequest
	case errors.Is(err, ibi.ErrEmptySelection),
		errors.Is(err, ibi.ErrInsufficientSpan):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errNoStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Errorw("request failed", "path", req.URL.Path, "error", err)
	}
	s.formatter.WriteError(w, req, status, err)
}

func (s *Server) decode(w http.ResponseWriter, req *http.Request, v any) bool {
	if err := s.formatter.DecodeRequest(req, v); err != nil {
		s.formatter.WriteError(w, req, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return false
	}
	return true
}

// handleRMSE serves POST /api/v1/rmse
func (s *Server) handleRMSE(w http.ResponseWriter, req *http.Request) {
	var body RMSERequest
	if !s.decode(w, req, &body) {
		return
	}

	params := s.cfg.RMSEParams()
	if len(body.Intervals) > 0 {
		params.Intervals = body.Intervals
	}
	switch body.OnEmpty {
	case "":
	case ibi.EmptySelectionError, ibi.EmptySelectionNaN:
		params.OnEmpty = body.OnEmpty
	default:
		s.writeError(w, req, fmt.Errorf("%w: unknown on_empty policy %q", ibi.ErrInvalidParameter, body.OnEmpty))
		return
	}

	start := time.Now()
	res, err := ibi.ComputeRMSE(body.Candidate, body.Reference, params, s.logger)
	s.metrics.Observe(store.MetricRMSE, start, err)
	if err != nil {
		s.writeError(w, req, err)
		return
	}

	s.formatter.WriteResponse(w, req, http.StatusOK, newRMSEResponse(res))
}

// handleTCR serves POST /api/v1/tcr
func (s *Server) handleTCR(w http.ResponseWriter, req *http.Request) {
	var body TCRRequest
	if !s.decode(w, req, &body) {
		return
	}

	params := s.cfg.TCRParams()
	if body.BinWidth != nil {
		params.BinWidth = *body.BinWidth
	}
	if body.ErrorTolerance != nil {
		params.ErrorTolerance = *body.ErrorTolerance
	}

	start := time.Now()
	res, err := ibi.ComputeTCR(body.Candidate, body.Reference, params)
	s.metrics.Observe(store.MetricTCR, start, err)
	if err != nil {
		s.writeError(w, req, err)
		return
	}

	s.formatter.WriteResponse(w, req, http.StatusOK, res)
}

// handleListRecordings serves GET /api/v1/recordings
func (s *Server) handleListRecordings(w http.ResponseWriter, req *http.Request) {
	if s.store == nil {
		s.writeError(w, req, errNoStore)
		return
	}
	names, err := s.store.ListRecordings(req.Context())
	if err != nil {
		s.writeError(w, req, err)
		return
	}
	s.formatter.WriteResponse(w, req, http.StatusOK, map[string][]string{"recordings": names})
}

// handleGetRecording serves GET /api/v1/recordings/{name}
func (s *Server) handleGetRecording(w http.ResponseWriter, req *http.Request) {
	if s.store == nil {
		s.writeError(w, req, errNoStore)
		return
	}
	rec, err := s.store.LoadRecording(req.Context(), mux.Vars(req)["name"])
	if err != nil {
		s.writeError(w, req, err)
		return
	}
	s.formatter.WriteResponse(w, req, http.StatusOK, rec)
}

// handlePutRecording serves PUT /api/v1/recordings/{name}
func (s *Server) handlePutRecording(w http.ResponseWriter, req *http.Request) {
	if s.store == nil {
		s.writeError(w, req, errNoStore)
		return
	}
	var rec store.Recording
	if !s.decode(w, req, &rec) {
		return
	}
	rec.Name = mux.Vars(req)["name"]

	if _, err := ibi.NewResampler(rec.Reference); err != nil {
		s.writeError(w, req, err)
		return
	}
	if _, err := ibi.NewSeries(rec.Candidate.Times, rec.Candidate.Values); err != nil {
		s.writeError(w, req, fmt.Errorf("candidate: %w", err))
		return
	}

	if err := s.store.SaveRecording(req.Context(), rec); err != nil {
		s.writeError(w, req, err)
		return
	}
	s.formatter.WriteResponse(w, req, http.StatusCreated, map[string]string{"recording": rec.Name})
}

// handleEvaluate serves POST /api/v1/recordings/{name}/evaluate
func (s *Server) handleEvaluate(w http.ResponseWriter, req *http.Request) {
	if s.store == nil {
		s.writeError(w, req, errNoStore)
		return
	}
	name := mux.Vars(req)["name"]

	runID, reports, err := s.evaluator.Run(req.Context(), s.store, s.store, []string{name})
	if err != nil {
		s.writeError(w, req, err)
		return
	}
	s.formatter.WriteResponse(w, req, http.StatusOK, newEvaluateResponse(runID, reports[0]))
}

// handleEvaluations serves GET /api/v1/recordings/{name}/evaluations
func (s *Server) handleEvaluations(w http.ResponseWriter, req *http.Request) {
	if s.store == nil {
		s.writeError(w, req, errNoStore)
		return
	}
	evals, err := s.store.Evaluations(req.Context(), mux.Vars(req)["name"])
	if err != nil {
		s.writeError(w, req, err)
		return
	}

	out := make([]EvaluationResponse, 0, len(evals))
	for _, e := range evals {
		out = append(out, newEvaluationResponse(e))
	}
	s.formatter.WriteResponse(w, req, http.StatusOK, map[string][]EvaluationResponse{"evaluations": out})
}
