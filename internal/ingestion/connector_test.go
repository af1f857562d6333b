package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"greenpulse/internal/registry"
)

var testStation = registry.Station{
	ID:       "st-1",
	Name:     "Anand Vihar",
	Zone:     registry.ZoneRoadside,
	SourceID: "2553",
}

func newTestConnector(t *testing.T, handler http.HandlerFunc) (*Connector, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	connector, err := NewConnector(server.URL, "test-token")
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}
	return connector, server
}

func TestFetchParsesObservation(t *testing.T) {
	observedAt := time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)
	connector, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed/@2553/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("token") != "test-token" {
			t.Errorf("token = %s", r.URL.Query().Get("token"))
		}
		fmt.Fprintf(w, `{"status":"ok","data":{"aqi":182,"iaqi":{"pm25":{"v":120.5},"no2":{"v":40},"so2":{"v":-3},"w":{"v":1.2}},"time":{"iso":%q},"city":{"name":"Anand Vihar, Delhi"}}}`, observedAt.Format(time.RFC3339))
	})

	observation, failure := connector.Fetch(context.Background(), testStation)
	if failure != nil {
		t.Fatalf("fetch: %v", failure)
	}
	if observation.StationID != "st-1" || observation.StationName != "Anand Vihar, Delhi" {
		t.Fatalf("observation = %+v", observation)
	}
	if !observation.ObservedAt.Equal(observedAt) {
		t.Fatalf("observed at = %v", observation.ObservedAt)
	}
	if observation.Concentrations["pm25"] != 120.5 || observation.Concentrations["no2"] != 40 {
		t.Fatalf("concentrations = %v", observation.Concentrations)
	}
	// Negative so2 and the non-pollutant wind channel are dropped.
	if _, ok := observation.Concentrations["so2"]; ok {
		t.Fatal("negative so2 should be rejected")
	}
	if _, ok := observation.Concentrations["w"]; ok {
		t.Fatal("wind channel should be ignored")
	}
	if observation.AQI == nil || *observation.AQI != 182 {
		t.Fatalf("aqi = %v", observation.AQI)
	}
}

func TestFetchUnavailableAQI(t *testing.T) {
	connector, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","data":{"aqi":"-","iaqi":{"pm25":{"v":55}},"time":{"iso":"2025-03-10T06:00:00Z"},"city":{"name":"X"}}}`)
	})
	observation, failure := connector.Fetch(context.Background(), testStation)
	if failure != nil {
		t.Fatalf("fetch: %v", failure)
	}
	if observation.AQI != nil {
		t.Fatalf("aqi = %v, want nil", observation.AQI)
	}
}

func TestFetchMalformedResponses(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"feed error status", `{"status":"error","data":"Invalid key"}`},
		{"not json", `<html>gateway error</html>`},
		{"no usable values", `{"status":"ok","data":{"iaqi":{"pm25":{"v":0}},"time":{"iso":"2025-03-10T06:00:00Z"}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			connector, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tc.body)
			})
			_, failure := connector.Fetch(context.Background(), testStation)
			if failure == nil || failure.Kind != FailureMalformed {
				t.Fatalf("failure = %v, want malformed", failure)
			}
			if failure.Transient() {
				t.Fatal("malformed must not be transient")
			}
		})
	}
}

func TestFetchRateLimited(t *testing.T) {
	connector, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, failure := connector.Fetch(context.Background(), testStation)
	if failure == nil || failure.Kind != FailureRateLimited {
		t.Fatalf("failure = %v, want rate_limited", failure)
	}
	if !failure.Transient() {
		t.Fatal("rate_limited must be transient")
	}
}

func TestFetchServerError(t *testing.T) {
	connector, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, failure := connector.Fetch(context.Background(), testStation)
	if failure == nil || failure.Kind != FailureHTTP {
		t.Fatalf("failure = %v, want http", failure)
	}
}

func TestFetchTimeout(t *testing.T) {
	connector, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, failure := connector.Fetch(ctx, testStation)
	if failure == nil || failure.Kind != FailureTimeout {
		t.Fatalf("failure = %v, want timeout", failure)
	}
	if !failure.Transient() {
		t.Fatal("timeout must be transient")
	}
}
