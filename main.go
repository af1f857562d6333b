package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	apihttp "greenpulse/internal/api/http"
	"greenpulse/internal/auth"
	"greenpulse/internal/classifier"
	"greenpulse/internal/compliance"
	compliancemem "greenpulse/internal/compliance/memory"
	compliancerepo "greenpulse/internal/compliance/postgres"
	"greenpulse/internal/ingestion"
	ingestionmem "greenpulse/internal/ingestion/memory"
	ingestionrepo "greenpulse/internal/ingestion/postgres"
	"greenpulse/internal/ledger"
	ledgermem "greenpulse/internal/ledger/memory"
	ledgerrepo "greenpulse/internal/ledger/postgres"
	"greenpulse/internal/notify"
	"greenpulse/internal/observability/metrics"
	"greenpulse/internal/orchestrator"
	"greenpulse/internal/registry"
	registrymem "greenpulse/internal/registry/memory"
	registryrepo "greenpulse/internal/registry/postgres"
	"greenpulse/internal/rules"
	"greenpulse/internal/window"
	windowmem "greenpulse/internal/window/memory"
	windowrepo "greenpulse/internal/window/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
	} else {
		logger.Printf("DATABASE_URL not set, using in-memory stores")
	}

	metrics.Init(db, logger)

	table := rules.DefaultTable()
	if cfg.NAAQSFile != "" {
		loaded, err := rules.LoadTable(cfg.NAAQSFile)
		if err != nil {
			logger.Fatalf("limit table load error: %v", err)
		}
		table = loaded
	}

	var stationRepo registry.Repository
	if db != nil {
		stationRepo = registryrepo.NewStationRepository(db)
	} else {
		stationRepo = registrymem.NewStationRepository()
	}
	if cfg.StationsFile != "" {
		stations, err := registry.LoadSeed(cfg.StationsFile)
		if err != nil {
			logger.Fatalf("station seed load error: %v", err)
		}
		if err := registry.Seed(ctx, stationRepo, stations); err != nil {
			logger.Fatalf("station seed error: %v", err)
		}
		logger.Printf("seeded %d stations", len(stations))
	}

	var ledgerStore ledger.Store
	if db != nil {
		ledgerStore = ledgerrepo.NewStore(db)
	} else {
		ledgerStore = ledgermem.NewStore()
	}
	writer, err := ledger.NewWriter(ledgerStore)
	if err != nil {
		logger.Fatalf("ledger writer error: %v", err)
	}

	// Verify the chain before accepting any new appends. A broken chain means
	// the evidence trail is compromised; refusing to start is the alert.
	report, err := ledger.Verify(ctx, ledgerStore)
	if err != nil {
		logger.Fatalf("ledger verify error: %v", err)
	}
	if !report.Valid {
		logger.Fatalf("ledger integrity alert: broken at sequence %d: %s", report.BrokenAt, report.Message)
	}
	logger.Printf("ledger verified: %d entries", report.TotalEntries)

	var snapshotSink window.SnapshotSink
	if db != nil {
		snapshotSink = windowrepo.NewSnapshotStore(db)
	} else {
		snapshotSink = windowmem.NewSnapshotStore()
	}
	aggregator := window.NewAggregator(window.WithSnapshotSink(snapshotSink), window.WithLogger(logger))

	var readingStore ingestion.ReadingStore
	if db != nil {
		readingStore = ingestionrepo.NewReadingStore(db)
	} else {
		readingStore = ingestionmem.NewReadingStore()
	}

	tierStore := classifier.NewTierStore()
	cls, err := classifier.New(table)
	if err != nil {
		logger.Fatalf("classifier error: %v", err)
	}

	var (
		eventStore  compliance.EventStore
		actionStore compliance.ActionStore
	)
	if db != nil {
		eventStore = compliancerepo.NewEventRepository(db)
		actionStore = compliancerepo.NewActionRepository(db)
	} else {
		eventStore = compliancemem.NewEventStore()
		actionStore = compliancemem.NewActionStore()
	}

	var notifiers []compliance.Notifier
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(
			cfg.WebhookURL, logger,
			notify.WithWebhookCooldown(cfg.NotifyCooldown),
		))
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		publisher := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}

	serviceOpts := []compliance.ServiceOption{compliance.WithLogger(logger)}
	if db != nil {
		serviceOpts = append(serviceOpts, compliance.WithDB(db))
	}
	if len(notifiers) > 0 {
		serviceOpts = append(serviceOpts, compliance.WithNotifier(notify.NewMultiNotifier(notifiers...)))
	}
	complianceService, err := compliance.NewService(eventStore, actionStore, writer, tierStore, serviceOpts...)
	if err != nil {
		logger.Fatalf("compliance service error: %v", err)
	}

	connector, err := ingestion.NewConnector(cfg.FeedBaseURL, cfg.FeedToken)
	if err != nil {
		logger.Fatalf("feed connector error: %v", err)
	}

	runner, err := orchestrator.NewRunner(
		stationRepo,
		connector,
		readingStore,
		aggregator,
		cls,
		complianceService,
		logger,
		orchestrator.WithPollInterval(cfg.PollInterval),
		orchestrator.WithFetchTimeout(cfg.FetchTimeout),
		orchestrator.WithCycleTimeout(cfg.CycleTimeout),
		orchestrator.WithMaxConcurrent(cfg.MaxConcurrent),
	)
	if err != nil {
		logger.Fatalf("orchestrator error: %v", err)
	}
	go func() {
		if err := runner.Run(ctx); err != nil {
			logger.Printf("orchestrator exited: %v", err)
		}
	}()

	eventsHandler, err := apihttp.NewEventsHandler(complianceService)
	if err != nil {
		logger.Fatalf("events handler error: %v", err)
	}
	stationsHandler, err := apihttp.NewStationsHandler(stationRepo)
	if err != nil {
		logger.Fatalf("stations handler error: %v", err)
	}
	ledgerHandler, err := apihttp.NewLedgerHandler(ledgerStore)
	if err != nil {
		logger.Fatalf("ledger handler error: %v", err)
	}
	cycleHandler, err := apihttp.NewCycleHandler(runner)
	if err != nil {
		logger.Fatalf("cycle handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/events", eventsHandler)
	mux.Handle("/api/v1/events/", eventsHandler)
	mux.Handle("/api/v1/stations", stationsHandler)
	mux.Handle("/api/v1/stations/", stationsHandler)
	mux.Handle("/api/v1/ledger/verify", ledgerHandler)
	mux.Handle("/api/v1/cycle/run", cycleHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.AuthSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		handler = auth.NewMiddleware([]byte(cfg.AuthSecret), policy).Wrap(handler)
	} else {
		logger.Printf("AUTH_SECRET not set, api auth disabled")
	}

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(handler, logger)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Printf("http listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("http server error: %v", err)
	}
}

type config struct {
	DatabaseURL    string
	HTTPAddr       string
	FeedBaseURL    string
	FeedToken      string
	StationsFile   string
	NAAQSFile      string
	PollInterval   time.Duration
	FetchTimeout   time.Duration
	CycleTimeout   time.Duration
	MaxConcurrent  int
	AuthSecret     string
	WebhookURL     string
	NotifyCooldown time.Duration
	KafkaBrokers   []string
	KafkaTopic     string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:    getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:       getenvDefault("HTTP_ADDR", ":8080"),
		FeedBaseURL:    getenvDefault("FEED_BASE_URL", "https://api.waqi.info"),
		FeedToken:      getenvDefault("FEED_TOKEN", ""),
		StationsFile:   getenvDefault("STATIONS_FILE", "config/stations.yaml"),
		NAAQSFile:      getenvDefault("NAAQS_FILE", ""),
		PollInterval:   getenvDuration("POLL_INTERVAL", 5*time.Minute),
		FetchTimeout:   getenvDuration("FETCH_TIMEOUT", 10*time.Second),
		CycleTimeout:   getenvDuration("CYCLE_TIMEOUT", 4*time.Minute),
		MaxConcurrent:  getenvIntDefault("MAX_CONCURRENT_FETCHES", 8),
		AuthSecret:     getenvDefault("AUTH_SECRET", ""),
		WebhookURL:     getenvDefault("NOTIFY_WEBHOOK_URL", ""),
		NotifyCooldown: getenvDuration("NOTIFY_COOLDOWN", 0),
		KafkaTopic:     getenvDefault("KAFKA_TOPIC", ""),
	}
	if brokers := getenvDefault("KAFKA_BROKERS", ""); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			broker = strings.TrimSpace(broker)
			if broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}
	if cfg.FeedToken == "" {
		log.Fatal("FEED_TOKEN is required")
	}
	if _, err := os.Stat(cfg.StationsFile); err != nil {
		cfg.StationsFile = ""
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
