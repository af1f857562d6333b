package apihttp

import (
	"errors"
	"net/http"
	"strings"

	"greenpulse/internal/registry"
)

// StationsHandler provides station registry HTTP endpoints.
type StationsHandler struct {
	stations registry.Repository
}

// NewStationsHandler constructs a handler.
func NewStationsHandler(stations registry.Repository) (*StationsHandler, error) {
	if stations == nil {
		return nil, errors.New("stations handler: nil repository")
	}
	return &StationsHandler{stations: stations}, nil
}

// ServeHTTP handles /api/v1/stations and subroutes.
func (h *StationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch {
	case r.URL.Path == "/api/v1/stations":
		h.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/stations/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/stations/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.handleGet(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *StationsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	stations, err := h.stations.List(r.Context())
	if err != nil {
		http.Error(w, "query stations error", http.StatusInternalServerError)
		return
	}
	if stations == nil {
		stations = []registry.Station{}
	}
	writeJSON(w, stations)
}

func (h *StationsHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	station, err := h.stations.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, "query station error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, station)
}
