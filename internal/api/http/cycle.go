package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// CycleRunner triggers one poll cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, now time.Time)
}

// CycleHandler exposes a manual poll-cycle trigger for operators.
type CycleHandler struct {
	runner CycleRunner
}

// NewCycleHandler constructs a handler.
func NewCycleHandler(runner CycleRunner) (*CycleHandler, error) {
	if runner == nil {
		return nil, errors.New("cycle handler: nil runner")
	}
	return &CycleHandler{runner: runner}, nil
}

// ServeHTTP handles POST /api/v1/cycle/run.
func (h *CycleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.runner.RunCycle(r.Context(), time.Now().UTC())
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("cycle complete"))
}
