package apihttp

import (
	"errors"
	"net/http"

	"greenpulse/internal/ledger"
	"greenpulse/internal/observability/metrics"
)

// LedgerHandler serves audit chain verification.
type LedgerHandler struct {
	store ledger.Store
}

// NewLedgerHandler constructs a handler.
func NewLedgerHandler(store ledger.Store) (*LedgerHandler, error) {
	if store == nil {
		return nil, errors.New("ledger handler: nil store")
	}
	return &LedgerHandler{store: store}, nil
}

// ServeHTTP handles GET /api/v1/ledger/verify. A broken chain is reported,
// not repaired; the response always carries the full report.
func (h *LedgerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	report, err := ledger.Verify(r.Context(), h.store)
	if err != nil {
		metrics.IncLedgerVerification(metrics.ResultError)
		http.Error(w, "verify ledger error", http.StatusInternalServerError)
		return
	}
	if report.Valid {
		metrics.IncLedgerVerification(metrics.ResultSuccess)
	} else {
		metrics.IncLedgerVerification("broken")
	}
	writeJSON(w, report)
}
