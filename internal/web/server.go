// Package web exposes the hub over HTTP: record listings, state reads
// and writes, command dispatch, automation management, a WebSocket
// event firehose, and the Prometheus metrics endpoint.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jacobsoderblom/krypin/internal/automation"
	"github.com/jacobsoderblom/krypin/internal/hub"
	"github.com/jacobsoderblom/krypin/internal/model"
	"github.com/jacobsoderblom/krypin/internal/storage"
)

type contextKey string

const userLabelKey contextKey = "user-label"

func withUserLabel(r *http.Request, label string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userLabelKey, label))
}

// userLabel returns the authenticated token label, or "anonymous".
func userLabel(r *http.Request) string {
	if label, ok := r.Context().Value(userLabelKey).(string); ok {
		return label
	}
	return "anonymous"
}

// Server is the hub's HTTP surface.
type Server struct {
	hub    *hub.Hub
	auth   *Auth
	logger *slog.Logger
	server *http.Server
}

// NewServer builds the HTTP server bound to addr. logger may be nil.
func NewServer(addr string, h *hub.Hub, auth *Auth, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{hub: h, auth: auth, logger: logger}
	s.server = &http.Server{Addr: addr, Handler: s.Handler()}
	return s
}

// Handler assembles the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.hub.Metrics.Handler())

	api := http.NewServeMux()
	api.HandleFunc("GET /areas", s.handleListAreas)
	api.HandleFunc("GET /devices", s.handleListDevices)
	api.HandleFunc("GET /entities", s.handleListEntities)
	api.HandleFunc("GET /states/{entity_id}", s.handleGetState)
	api.HandleFunc("POST /states/{entity_id}", s.handleSetState)
	api.HandleFunc("POST /command/{entity_id}", s.handleSendCommand)
	api.HandleFunc("GET /automations", s.handleListAutomations)
	api.HandleFunc("POST /automations", s.handleCreateAutomation)
	api.HandleFunc("POST /automations/{id}/enable", s.handleEnableAutomation)
	api.HandleFunc("POST /automations/{id}/disable", s.handleDisableAutomation)
	api.HandleFunc("POST /automations/{id}/test", s.handleTestAutomation)
	api.HandleFunc("GET /ws/events", s.handleEvents)
	mux.Handle("/", s.requireAuth(api))

	return mux
}

// ListenAndServe runs the server until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()
	s.logger.Info("http server listening", "addr", s.server.Addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// writeJSON encodes v to w; encode errors usually mean the client went
// away mid-response.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleListAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := s.hub.Storage.ListAreas(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if areas == nil {
		areas = []model.Area{}
	}
	s.writeJSON(w, areas)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.hub.Storage.ListDevices(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if devices == nil {
		devices = []model.Device{}
	}
	s.writeJSON(w, devices)
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.hub.Storage.ListEntities(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entities == nil {
		entities = []model.Entity{}
	}
	s.writeJSON(w, entities)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	entityID, err := model.ParseEntityID(r.PathValue("entity_id"))
	if err != nil {
		http.Error(w, "invalid entity_id", http.StatusBadRequest)
		return
	}
	state, err := s.hub.Storage.LatestEntityState(r.Context(), entityID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "no state", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, state)
}

type setStateBody struct {
	Value      any            `json:"value"`
	Attributes map[string]any `json:"attributes"`
	Source     string         `json:"source"`
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	entityID, err := model.ParseEntityID(r.PathValue("entity_id"))
	if err != nil {
		http.Error(w, "invalid entity_id", http.StatusBadRequest)
		return
	}
	var body setStateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	source := body.Source
	if source == "" {
		source = userLabel(r)
	}
	if err := s.hub.SetEntityState(r.Context(), entityID, body.Value, body.Attributes, source); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, map[string]bool{"ok": true})
}

type sendCommandBody struct {
	Action        string `json:"action"`
	Value         any    `json:"value"`
	CorrelationID string `json:"correlation_id"`
}

func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	entityID, err := model.ParseEntityID(r.PathValue("entity_id"))
	if err != nil {
		http.Error(w, "invalid entity_id", http.StatusBadRequest)
		return
	}
	var body sendCommandBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	var correlation *uuid.UUID
	if body.CorrelationID != "" {
		id, err := uuid.Parse(body.CorrelationID)
		if err != nil {
			http.Error(w, "invalid correlation_id", http.StatusBadRequest)
			return
		}
		correlation = &id
	}
	s.logger.Info("sending command",
		"entity_id", entityID, "action", body.Action, "user", userLabel(r))
	if err := s.hub.SendCommand(r.Context(), entityID, body.Action, body.Value, correlation); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	automations, err := s.hub.Engine.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if automations == nil {
		automations = []automation.Automation{}
	}
	s.writeJSON(w, automations)
}

func (s *Server) handleCreateAutomation(w http.ResponseWriter, r *http.Request) {
	var body automation.NewAutomation
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	created, err := s.hub.Engine.Create(r.Context(), body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
	s.writeJSON(w, created)
}

func (s *Server) handleEnableAutomation(w http.ResponseWriter, r *http.Request) {
	s.setAutomationEnabled(w, r, true)
}

func (s *Server) handleDisableAutomation(w http.ResponseWriter, r *http.Request) {
	s.setAutomationEnabled(w, r, false)
}

func (s *Server) setAutomationEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, err := automation.ParseID(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	updated, err := s.hub.Engine.SetEnabled(r.Context(), id, enabled)
	if errors.Is(err, automation.ErrNotFound) {
		http.Error(w, "automation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, updated)
}

func (s *Server) handleTestAutomation(w http.ResponseWriter, r *http.Request) {
	id, err := automation.ParseID(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var event automation.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}
	run, err := s.hub.Engine.TestAutomation(r.Context(), id, event)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, run)
}
