package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"greenpulse/internal/auth"
	"greenpulse/internal/compliance"
)

// EventsHandler provides compliance event HTTP endpoints.
type EventsHandler struct {
	service *compliance.Service
}

// NewEventsHandler constructs a handler.
func NewEventsHandler(service *compliance.Service) (*EventsHandler, error) {
	if service == nil {
		return nil, errors.New("events handler: nil service")
	}
	return &EventsHandler{service: service}, nil
}

// ServeHTTP handles /api/v1/events and subroutes.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/events":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case r.URL.Path == "/api/v1/events/summary":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleSummary(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/events/"):
		h.handleEvent(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *EventsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := compliance.ListFilter{
		StationID: r.URL.Query().Get("station_id"),
		Tier:      r.URL.Query().Get("tier"),
		Status:    r.URL.Query().Get("status"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	events, err := h.service.List(r.Context(), filter)
	if err != nil {
		http.Error(w, "query events error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []compliance.Event{}
	}
	writeJSON(w, events)
}

func (h *EventsHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.SummaryByTier(r.Context())
	if err != nil {
		http.Error(w, "query summary error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

func (h *EventsHandler) handleEvent(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/events/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGet(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "actions":
		switch r.Method {
		case http.MethodGet:
			h.handleListActions(w, r, parts[0])
		case http.MethodPost:
			h.handleApplyAction(w, r, parts[0])
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *EventsHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	event, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, compliance.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, "query event error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, event)
}

func (h *EventsHandler) handleListActions(w http.ResponseWriter, r *http.Request, id string) {
	actions, err := h.service.ListActions(r.Context(), id)
	if err != nil {
		http.Error(w, "query actions error", http.StatusInternalServerError)
		return
	}
	if actions == nil {
		actions = []compliance.Action{}
	}
	writeJSON(w, actions)
}

type actionRequest struct {
	Type   string `json:"action_type"`
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

func (h *EventsHandler) handleApplyAction(w http.ResponseWriter, r *http.Request, id string) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Actor == "" {
		req.Actor = auth.SubjectFromContext(r.Context())
	}
	if req.Actor == "" {
		http.Error(w, "actor is required", http.StatusBadRequest)
		return
	}

	action, err := h.service.ApplyAction(r.Context(), id, req.Type, req.Actor, req.Reason, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, compliance.ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, compliance.ErrInvalidAction):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "apply action error", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(action)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
