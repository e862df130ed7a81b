// Package coordinator is the thin boundary adapter converting external
// requests into saga start events: it validates a client request, runs it
// through PO.Admit, and on approval publishes INTENT on the EB (§2, §6).
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/holoncore/travel-orchestrator/holon"
	"github.com/holoncore/travel-orchestrator/internal/eventbus"
	"github.com/holoncore/travel-orchestrator/internal/policy"
)

// Config tunes the boundary HTTP server.
type Config struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// SagaRequest is the client-facing shape of POST /sagas.
type SagaRequest struct {
	ClientID  string         `json:"clientId"`
	Revisions []string       `json:"revisions"`
	Data      map[string]any `json:"data"`
}

type sagaResponse struct {
	SagaID        string `json:"sagaId"`
	CorrelationID string `json:"correlationId"`
}

// Coordinator is the HTTP boundary adapter: one route, POST /sagas,
// admitting the request through Policy and publishing INTENT on success.
type Coordinator struct {
	log        holon.Logger
	cfg        Config
	policy     *policy.Policy
	bus        eventbus.Bus
	queueDepth func() int

	router chi.Router
	server *http.Server
}

// New constructs a Coordinator. queueDepth reports current admission-time
// queue pressure (typically search-requests' depth) for PO.Admit's
// queue-depth check.
func New(cfg Config, log holon.Logger, po *policy.Policy, bus eventbus.Bus, queueDepth func() int) *Coordinator {
	if log == nil {
		log = holon.NopLogger{}
	}
	if queueDepth == nil {
		queueDepth = func() int { return 0 }
	}
	c := &Coordinator{log: log, cfg: cfg, policy: po, bus: bus, queueDepth: queueDepth}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Post("/sagas", c.handleCreateSaga)
	c.router = r
	return c
}

func (c *Coordinator) handleCreateSaga(w http.ResponseWriter, r *http.Request) {
	var req SagaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ClientID == "" {
		http.Error(w, "clientId is required", http.StatusBadRequest)
		return
	}

	sagaID := uuid.NewString()
	correlationID := sagaID

	if err := c.policy.Admission.Admit(req.ClientID, sagaID, c.queueDepth()); err != nil {
		c.policy.RecordViolation(sagaID, "admission", err.Error())
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}

	data := req.Data
	if data == nil {
		data = map[string]any{}
	}
	revisions := make([]any, len(req.Revisions))
	for i, v := range req.Revisions {
		revisions[i] = v
	}
	data["revisions"] = revisions

	if _, err := c.bus.Publish(r.Context(), "INTENT", data,
		eventbus.WithSagaID(sagaID), eventbus.WithCorrelationID(correlationID), eventbus.WithSource("coordinator")); err != nil {
		c.policy.Admission.Release(sagaID)
		http.Error(w, "failed to start saga", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(sagaResponse{SagaID: sagaID, CorrelationID: correlationID})
}

// Handler exposes the underlying router for tests and for embedding
// behind another mux.
func (c *Coordinator) Handler() http.Handler { return c.router }

// Start begins serving HTTP in the background. It does not block; Stop
// shuts the server down gracefully.
func (c *Coordinator) Start(ctx context.Context) error {
	c.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port),
		Handler:      c.router,
		ReadTimeout:  c.cfg.ReadTimeout,
		WriteTimeout: c.cfg.WriteTimeout,
	}
	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.log.Error("coordinator: server stopped unexpectedly", "error", err.Error())
		}
	}()
	return nil
}

func (c *Coordinator) Stop(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
	defer cancel()
	return c.server.Shutdown(shutdownCtx)
}
