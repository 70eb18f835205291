// Package api exposes the mirrored feeds over HTTP: registry and
// series reads, period energy queries, the cross-feed summary, CSV
// export, and update runs watchable over WebSocket.
package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/emonmirror/emonmirror/pkg/config"
	"github.com/emonmirror/emonmirror/pkg/emoncms"
	"github.com/emonmirror/emonmirror/pkg/httpx"
	"github.com/emonmirror/emonmirror/pkg/storage"
)

var startTime = time.Now()

// Server holds the handler dependencies.
type Server struct {
	store storage.Store
	src   emoncms.Source
	hub   *RunHub

	// One update run at a time; concurrent triggers are rejected.
	updating atomic.Bool
}

// NewServer creates a server over the given store and remote source.
// src may be nil when the server is read-only (no update endpoint).
func NewServer(store storage.Store, src emoncms.Source, hub *RunHub) *Server {
	return &Server{store: store, src: src, hub: hub}
}

// Routes builds the HTTP router.
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/feeds", s.handleFeeds).Methods("GET")
	api.HandleFunc("/series/{name}", s.handleSeries).Methods("GET")
	api.HandleFunc("/energy/{name}", s.handleEnergy).Methods("GET")
	api.HandleFunc("/summary", s.handleSummary).Methods("GET")
	api.HandleFunc("/export", s.handleExport).Methods("GET")
	api.HandleFunc("/update", s.handleUpdate).Methods("POST")
	api.HandleFunc("/runs/watch", s.hub.HandleWatch).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	return router
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Uptime: time.Since(startTime).String(),
	})
}

// ListenAndServe runs the server on the given port until it fails.
func (s *Server) ListenAndServe(port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      s.Routes(),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}
	return srv.ListenAndServe()
}
