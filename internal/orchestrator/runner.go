package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"greenpulse/internal/classifier"
	"greenpulse/internal/compliance"
	"greenpulse/internal/ingestion"
	"greenpulse/internal/observability/metrics"
	"greenpulse/internal/registry"
	"greenpulse/internal/rules"
	"greenpulse/internal/window"
)

const (
	defaultPollInterval  = 5 * time.Minute
	defaultCycleTimeout  = 4 * time.Minute
	defaultFetchTimeout  = 10 * time.Second
	defaultMaxConcurrent = 8
	defaultRetryBase     = 200 * time.Millisecond
	defaultRetryCap      = 2 * time.Second
	defaultMaxAttempts   = 3
	defaultOfflineAfter  = 3
)

// Fetcher retrieves one observation for a station.
type Fetcher interface {
	Fetch(ctx context.Context, station registry.Station) (*ingestion.Observation, *ingestion.Failure)
}

// TransitionRecorder records a tier transition as an atomic event+ledger unit.
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, stationID string, result rules.Result, windowStart, windowEnd time.Time) (*compliance.Event, error)
}

// Runner drives the poll cycle: fetch every registered station, validate and
// score the readings, feed the rolling windows, and hand tier transitions to
// the compliance service. One cycle never blocks the next station: fetches
// run concurrently under a bounded semaphore.
type Runner struct {
	stations   registry.Repository
	fetcher    Fetcher
	readings   ingestion.ReadingStore
	aggregator *window.Aggregator
	classifier *classifier.Classifier
	recorder   TransitionRecorder
	logger     *log.Logger
	clock      clockwork.Clock

	pollInterval  time.Duration
	cycleTimeout  time.Duration
	fetchTimeout  time.Duration
	maxConcurrent int
	retryBase     time.Duration
	retryCap      time.Duration
	maxAttempts   int
	offlineAfter  int

	mu sync.Mutex
	// consecutive failed cycles per station id
	failures map[string]int
	// last accepted value per pollutant per station, the neighbor pool for
	// confidence scoring
	lastValues map[string]map[string]float64
}

// Option configures the runner.
type Option func(*Runner)

// WithClock overrides the default clock.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithPollInterval overrides the default poll interval.
func WithPollInterval(interval time.Duration) Option {
	return func(r *Runner) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithCycleTimeout overrides the default per-cycle deadline.
func WithCycleTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.cycleTimeout = timeout
		}
	}
}

// WithFetchTimeout overrides the default per-fetch timeout.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.fetchTimeout = timeout
		}
	}
}

// WithMaxConcurrent overrides the fetch concurrency bound.
func WithMaxConcurrent(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxConcurrent = n
		}
	}
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(base time.Duration, maxAttempts int) Option {
	return func(r *Runner) {
		if base > 0 {
			r.retryBase = base
		}
		if maxAttempts > 0 {
			r.maxAttempts = maxAttempts
		}
	}
}

// WithOfflineAfter overrides the consecutive-failure threshold for marking a
// station offline.
func WithOfflineAfter(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.offlineAfter = n
		}
	}
}

// NewRunner constructs a runner.
func NewRunner(
	stations registry.Repository,
	fetcher Fetcher,
	readings ingestion.ReadingStore,
	aggregator *window.Aggregator,
	cls *classifier.Classifier,
	recorder TransitionRecorder,
	logger *log.Logger,
	opts ...Option,
) (*Runner, error) {
	if stations == nil {
		return nil, errors.New("orchestrator: nil station repository")
	}
	if fetcher == nil {
		return nil, errors.New("orchestrator: nil fetcher")
	}
	if readings == nil {
		return nil, errors.New("orchestrator: nil reading store")
	}
	if aggregator == nil {
		return nil, errors.New("orchestrator: nil aggregator")
	}
	if cls == nil {
		return nil, errors.New("orchestrator: nil classifier")
	}
	if recorder == nil {
		return nil, errors.New("orchestrator: nil transition recorder")
	}
	if logger == nil {
		logger = log.Default()
	}
	r := &Runner{
		stations:      stations,
		fetcher:       fetcher,
		readings:      readings,
		aggregator:    aggregator,
		classifier:    cls,
		recorder:      recorder,
		logger:        logger,
		clock:         clockwork.NewRealClock(),
		pollInterval:  defaultPollInterval,
		cycleTimeout:  defaultCycleTimeout,
		fetchTimeout:  defaultFetchTimeout,
		maxConcurrent: defaultMaxConcurrent,
		retryBase:     defaultRetryBase,
		retryCap:      defaultRetryCap,
		maxAttempts:   defaultMaxAttempts,
		offlineAfter:  defaultOfflineAfter,
		failures:      make(map[string]int),
		lastValues:    make(map[string]map[string]float64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes poll cycles until the context is cancelled. The first cycle
// starts immediately.
func (r *Runner) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.RunCycle(ctx, r.clock.Now())
	for {
		select {
		case <-ctx.Done():
			r.logger.Printf("orchestrator stopping: %v", ctx.Err())
			return nil
		case <-ticker.Chan():
			r.RunCycle(ctx, r.clock.Now())
		}
	}
}

// RunCycle polls every registered station once. Exported for tests and the
// manual trigger endpoint.
func (r *Runner) RunCycle(ctx context.Context, now time.Time) {
	start := r.clock.Now()
	cycleCtx, cancel := context.WithTimeout(ctx, r.cycleTimeout)
	defer cancel()

	stations, err := r.stations.List(cycleCtx)
	if err != nil {
		r.logger.Printf("cycle aborted, station list failed: %v", err)
		return
	}

	sem := make(chan struct{}, r.maxConcurrent)
	var wg sync.WaitGroup
	for _, station := range stations {
		wg.Add(1)
		sem <- struct{}{}
		go func(station registry.Station) {
			defer wg.Done()
			defer func() { <-sem }()
			r.pollStation(cycleCtx, station, now)
		}(station)
	}
	wg.Wait()

	online := 0
	for _, station := range stations {
		r.mu.Lock()
		failed := r.failures[station.ID]
		r.mu.Unlock()
		if failed < r.offlineAfter {
			online++
		}
	}
	metrics.SetStationsOnline(online)
	metrics.ObservePollCycle(r.clock.Since(start))
}

func (r *Runner) pollStation(ctx context.Context, station registry.Station, now time.Time) {
	wasOffline := station.Status == registry.StatusOffline

	observation, err := r.fetchWithRetry(ctx, station)
	if err != nil {
		r.recordFailure(ctx, station, err)
		return
	}
	r.recordSuccess(ctx, station, wasOffline)

	// Classification is suppressed for the recovery cycle; the window still
	// absorbs the readings so averages are warm when events resume.
	r.processObservation(ctx, station, observation, now, wasOffline)
}

func (r *Runner) fetchWithRetry(ctx context.Context, station registry.Station) (*ingestion.Observation, error) {
	backoff := r.retryBase
	for attempt := 1; ; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
		begin := r.clock.Now()
		observation, failure := r.fetcher.Fetch(fetchCtx, station)
		cancel()
		if failure == nil {
			metrics.ObserveFetch(metrics.ResultSuccess, r.clock.Since(begin))
			return observation, nil
		}
		metrics.ObserveFetch(string(failure.Kind), r.clock.Since(begin))
		if !failure.Transient() || attempt >= r.maxAttempts {
			return nil, failure
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.clock.After(backoff):
		}
		backoff *= 2
		if backoff > r.retryCap {
			backoff = r.retryCap
		}
	}
}

func (r *Runner) recordFailure(ctx context.Context, station registry.Station, err error) {
	r.mu.Lock()
	r.failures[station.ID]++
	failed := r.failures[station.ID]
	r.mu.Unlock()

	r.logger.Printf("station %s fetch failed (%d consecutive): %v", station.ID, failed, err)
	// >= rather than ==: a failed SetStatus leaves the counter past the
	// threshold, and the transition must be retried on the next cycle.
	if failed >= r.offlineAfter && station.Status != registry.StatusOffline {
		if err := r.stations.SetStatus(ctx, station.ID, registry.StatusOffline, r.clock.Now()); err != nil {
			r.logger.Printf("station %s offline transition failed: %v", station.ID, err)
			return
		}
		r.logger.Printf("station %s marked offline", station.ID)
	}
}

func (r *Runner) recordSuccess(ctx context.Context, station registry.Station, wasOffline bool) {
	r.mu.Lock()
	r.failures[station.ID] = 0
	r.mu.Unlock()

	if wasOffline {
		if err := r.stations.SetStatus(ctx, station.ID, registry.StatusOnline, r.clock.Now()); err != nil {
			r.logger.Printf("station %s online transition failed: %v", station.ID, err)
			return
		}
		r.logger.Printf("station %s back online", station.ID)
	}
}

func (r *Runner) processObservation(ctx context.Context, station registry.Station, observation *ingestion.Observation, now time.Time, suppressClassify bool) {
	validation := ingestion.Validate(observation, now)
	for _, reason := range validation.Reasons {
		metrics.IncReadingDiscarded(reason)
	}
	if !validation.Valid {
		r.logger.Printf("station %s observation rejected: %v", station.ID, validation.Reasons)
		return
	}

	var toStore []ingestion.Reading
	accepted := make(map[string]float64)
	for pollutant, value := range observation.Concentrations {
		score := ingestion.Score(value, r.neighborValues(pollutant, station.ID))
		reading := ingestion.Reading{
			StationID:   station.ID,
			Pollutant:   pollutant,
			ObservedAt:  observation.ObservedAt,
			Value:       value,
			Confidence:  score.Score,
			Quarantined: score.Quarantined,
			CreatedAt:   r.clock.Now().UTC(),
		}
		toStore = append(toStore, reading)
		if score.Quarantined {
			metrics.IncReadingQuarantined()
			r.logger.Printf("station %s %s quarantined: confidence %.1f", station.ID, pollutant, score.Score)
			continue
		}
		accepted[pollutant] = value
	}
	if len(toStore) == 0 {
		return
	}

	// Write-ahead: the raw reading is durable before any window state or
	// compliance decision derives from it.
	if err := r.readings.Insert(ctx, toStore); err != nil {
		r.logger.Printf("station %s reading insert failed: %v", station.ID, err)
		return
	}
	metrics.AddReadingsStored(len(toStore))

	r.mu.Lock()
	for pollutant, value := range accepted {
		byStation, ok := r.lastValues[pollutant]
		if !ok {
			byStation = make(map[string]float64)
			r.lastValues[pollutant] = byStation
		}
		byStation[station.ID] = value
	}
	r.mu.Unlock()

	for pollutant, value := range accepted {
		averages := r.aggregator.Add(station.ID, pollutant, observation.ObservedAt, value)
		metrics.IncWindowUpdate()
		if suppressClassify || averages == nil {
			continue
		}
		result, ok := r.classifier.Classify(station.ID, pollutant, averages, station.ZoneAdjustment())
		if !ok {
			continue
		}
		windowEnd := observation.ObservedAt
		windowStart := windowEnd.Add(-result.Horizon.Duration())
		if _, err := r.recorder.RecordTransition(ctx, station.ID, result, windowStart, windowEnd); err != nil {
			// The tier baseline was not advanced, so the same transition is
			// re-detected next cycle.
			r.logger.Printf("station %s %s transition record failed: %v", station.ID, pollutant, err)
		}
	}
}

func (r *Runner) neighborValues(pollutant, excludeStation string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	byStation, ok := r.lastValues[pollutant]
	if !ok {
		return nil
	}
	values := make([]float64, 0, len(byStation))
	for stationID, value := range byStation {
		if stationID == excludeStation {
			continue
		}
		values = append(values, value)
	}
	return values
}
