package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/scylladb/alternator-go-client/clientbuilder"
	"github.com/scylladb/alternator-go-client/topology"
)

// Router exposes a small debug surface over a live Client: its
// current topology snapshot and the process's Prometheus metrics.
type Router struct {
	client *clientbuilder.Client
	logger *zap.Logger
}

// NewRouter wires routes against client.
func NewRouter(client *clientbuilder.Client, logger *zap.Logger) *Router {
	return &Router{client: client, logger: logger}
}

// Setup builds the chi handler.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		MaxAge:         300,
	}))

	router.Get("/health", rt.health)
	router.Get("/debug/topology", rt.debugTopology)
	router.Handle("/metrics", promhttp.Handler())

	return router
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DebugSnapshot is the JSON shape returned by /debug/topology.
type DebugSnapshot struct {
	Scope       string   `json:"scope"`
	Active      []string `json:"active"`
	Quarantined []string `json:"quarantined"`
	PollIndex   int      `json:"poll_index"`
	ObservedAt  string   `json:"observed_at"`
}

func (rt *Router) debugTopology(w http.ResponseWriter, r *http.Request) {
	snap := rt.client.Nodes.Snapshot()
	respondJSON(w, http.StatusOK, toDebugSnapshot(snap, time.Now()))
}

func toDebugSnapshot(m topology.Membership, now time.Time) DebugSnapshot {
	active := make([]string, len(m.Active))
	for i, a := range m.Active {
		active[i] = a.String()
	}
	quarantined := make([]string, len(m.Quarantined))
	for i, q := range m.Quarantined {
		quarantined[i] = q.String()
	}
	return DebugSnapshot{
		Scope:       m.Scope.String(),
		Active:      active,
		Quarantined: quarantined,
		PollIndex:   m.PollIndex,
		ObservedAt:  now.UTC().Format(time.RFC3339),
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
