package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"greenpulse/internal/registry"
)

// FailureKind classifies a fetch failure for the orchestrator's retry policy.
type FailureKind string

// Failure kinds.
const (
	FailureTimeout     FailureKind = "timeout"
	FailureHTTP        FailureKind = "http"
	FailureRateLimited FailureKind = "rate_limited"
	FailureMalformed   FailureKind = "malformed"
)

// Failure is a typed fetch failure. It is a value reported to the
// orchestrator, never an uncontrolled fault.
type Failure struct {
	Kind FailureKind
	Err  error
}

// Error implements error.
func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("ingestion: %s: %v", f.Kind, f.Err)
}

// Unwrap exposes the underlying error.
func (f *Failure) Unwrap() error { return f.Err }

// Transient reports whether a retry within the cycle budget may succeed.
// Malformed payloads are not retried: the feed will return the same document.
func (f *Failure) Transient() bool {
	return f != nil && f.Kind != FailureMalformed
}

// Connector fetches pollutant readings from the external AQI feed.
type Connector struct {
	baseURL string
	token   string
	client  *http.Client
}

// ConnectorOption customizes the connector.
type ConnectorOption func(*Connector)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) ConnectorOption {
	return func(c *Connector) {
		if client != nil {
			c.client = client
		}
	}
}

// NewConnector constructs a connector for the feed at baseURL.
func NewConnector(baseURL, token string, opts ...ConnectorOption) (*Connector, error) {
	if baseURL == "" {
		return nil, errors.New("ingestion: empty base url")
	}
	if token == "" {
		return nil, errors.New("ingestion: empty feed token")
	}
	connector := &Connector{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(connector)
	}
	return connector, nil
}

type feedResponse struct {
	Status string   `json:"status"`
	Data   feedData `json:"data"`
}

type feedData struct {
	AQI  json.RawMessage          `json:"aqi"`
	IAQI map[string]feedIAQIValue `json:"iaqi"`
	Time feedTime                 `json:"time"`
	City feedCity                 `json:"city"`
}

type feedIAQIValue struct {
	V float64 `json:"v"`
}

type feedTime struct {
	ISO string `json:"iso"`
}

type feedCity struct {
	Name string `json:"name"`
}

// Fetch retrieves the latest observation for the station. On failure the
// returned Failure carries the kind the orchestrator branches on.
func (c *Connector) Fetch(ctx context.Context, station registry.Station) (*Observation, *Failure) {
	endpoint := fmt.Sprintf("%s/feed/@%s/?token=%s", c.baseURL, url.PathEscape(station.SourceID), url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Failure{Kind: FailureMalformed, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &Failure{Kind: FailureTimeout, Err: err}
		}
		return nil, &Failure{Kind: FailureHTTP, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &Failure{Kind: FailureRateLimited, Err: fmt.Errorf("feed returned 429")}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Failure{Kind: FailureHTTP, Err: fmt.Errorf("feed returned %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Failure{Kind: FailureHTTP, Err: err}
	}

	var payload feedResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Failure{Kind: FailureMalformed, Err: err}
	}
	if payload.Status != "ok" {
		return nil, &Failure{Kind: FailureMalformed, Err: fmt.Errorf("feed status %q", payload.Status)}
	}

	observation := &Observation{
		StationID:      station.ID,
		StationName:    payload.Data.City.Name,
		ObservedAt:     parseObservedAt(payload.Data.Time.ISO),
		Concentrations: make(map[string]float64),
	}
	if observation.StationName == "" {
		observation.StationName = station.Name
	}

	for _, pollutant := range Pollutants {
		value, ok := payload.Data.IAQI[pollutant]
		if !ok {
			continue
		}
		// Absent, zero and negative concentrations are malformed data for
		// that pollutant and are rejected.
		if value.V <= 0 {
			continue
		}
		observation.Concentrations[pollutant] = value.V
	}

	if len(observation.Concentrations) == 0 {
		return nil, &Failure{Kind: FailureMalformed, Err: errors.New("no usable pollutant values")}
	}

	if aqi := parseAQI(payload.Data.AQI); aqi != nil {
		observation.AQI = aqi
	}
	return observation, nil
}

func parseObservedAt(iso string) time.Time {
	if iso != "" {
		if t, err := time.Parse(time.RFC3339, iso); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

func parseAQI(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		// The feed sends "-" when the index is unavailable.
		return nil
	}
	return &n
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
