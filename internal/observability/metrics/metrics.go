package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "greenpulse_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	fetchTotal   *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec

	readingsStored     prometheus.Counter
	readingsDiscarded  *prometheus.CounterVec
	readingsQuarantine prometheus.Counter

	windowUpdates prometheus.Counter

	complianceEventsTotal *prometheus.CounterVec
	officerActionsTotal   *prometheus.CounterVec

	ledgerAppendsTotal *prometheus.CounterVec
	ledgerVerifyTotal  *prometheus.CounterVec

	pollCycleLatency prometheus.Histogram
	stationsOnline   prometheus.Gauge
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		fetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fetch_total",
				Help: "Total station feed fetches by result",
			},
			[]string{"result"},
		)
		fetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "fetch_latency_seconds",
				Help:    "Station feed fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		readingsStored = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_stored_total",
				Help: "Total raw readings persisted",
			},
		)
		readingsDiscarded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_discarded_total",
				Help: "Total readings discarded by reason",
			},
			[]string{"reason"},
		)
		readingsQuarantine = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_quarantined_total",
				Help: "Total readings quarantined by the confidence scorer",
			},
		)

		windowUpdates = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "window_updates_total",
				Help: "Total rolling window updates applied",
			},
		)

		complianceEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "compliance_events_total",
				Help: "Total compliance events recorded by tier",
			},
			[]string{"tier"},
		)
		officerActionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "officer_actions_total",
				Help: "Total officer actions recorded by type",
			},
			[]string{"type"},
		)

		ledgerAppendsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_appends_total",
				Help: "Total audit ledger appends by result",
			},
			[]string{"result"},
		)
		ledgerVerifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_verifications_total",
				Help: "Total chain verifications by result",
			},
			[]string{"result"},
		)

		pollCycleLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "poll_cycle_latency_seconds",
				Help:    "Poll cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		stationsOnline = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "stations_online",
				Help: "Stations currently marked online",
			},
		)

		prometheus.MustRegister(
			fetchTotal,
			fetchLatency,
			readingsStored,
			readingsDiscarded,
			readingsQuarantine,
			windowUpdates,
			complianceEventsTotal,
			officerActionsTotal,
			ledgerAppendsTotal,
			ledgerVerifyTotal,
			pollCycleLatency,
			stationsOnline,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveFetch records feed fetch duration and result.
func ObserveFetch(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if fetchTotal != nil {
		fetchTotal.WithLabelValues(result).Inc()
	}
	if fetchLatency != nil {
		fetchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddReadingsStored increments the stored reading counter by count.
func AddReadingsStored(count int) {
	if count <= 0 {
		return
	}
	if readingsStored != nil {
		readingsStored.Add(float64(count))
	}
}

// IncReadingDiscarded increments the discarded reading counter.
func IncReadingDiscarded(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if readingsDiscarded != nil {
		readingsDiscarded.WithLabelValues(reason).Inc()
	}
}

// IncReadingQuarantined increments the quarantined reading counter.
func IncReadingQuarantined() {
	if readingsQuarantine != nil {
		readingsQuarantine.Inc()
	}
}

// IncWindowUpdate increments the rolling window update counter.
func IncWindowUpdate() {
	if windowUpdates != nil {
		windowUpdates.Inc()
	}
}

// IncComplianceEvent increments the compliance event counter.
func IncComplianceEvent(tier string) {
	if tier == "" {
		tier = "unknown"
	}
	if complianceEventsTotal != nil {
		complianceEventsTotal.WithLabelValues(tier).Inc()
	}
}

// IncOfficerAction increments the officer action counter.
func IncOfficerAction(actionType string) {
	if actionType == "" {
		actionType = "unknown"
	}
	if officerActionsTotal != nil {
		officerActionsTotal.WithLabelValues(actionType).Inc()
	}
}

// IncLedgerAppend increments the ledger append counter.
func IncLedgerAppend(result string) {
	if result == "" {
		result = resultSuccess
	}
	if ledgerAppendsTotal != nil {
		ledgerAppendsTotal.WithLabelValues(result).Inc()
	}
}

// IncLedgerVerification increments the chain verification counter.
func IncLedgerVerification(result string) {
	if result == "" {
		result = resultSuccess
	}
	if ledgerVerifyTotal != nil {
		ledgerVerifyTotal.WithLabelValues(result).Inc()
	}
}

// ObservePollCycle records poll cycle duration.
func ObservePollCycle(duration time.Duration) {
	if pollCycleLatency != nil {
		pollCycleLatency.Observe(duration.Seconds())
	}
}

// SetStationsOnline sets the online station gauge.
func SetStationsOnline(count int) {
	if count < 0 {
		count = 0
	}
	if stationsOnline != nil {
		stationsOnline.Set(float64(count))
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
