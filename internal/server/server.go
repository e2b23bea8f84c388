package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lazypower/calibrator/internal/engine"
)

// Server is the calibrator HTTP API server.
type Server struct {
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over the given engine.
func New(eng *engine.Engine, version string) *Server {
	s := &Server{
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/groups", s.handleListGroups)
		r.Post("/groups", s.handleRegisterGroup)
		r.Route("/groups/{groupID}", func(r chi.Router) {
			r.Get("/", s.handleGetGroup)
			r.Put("/", s.handleUpdateGroup)
			r.Delete("/", s.handleDeregisterGroup)
			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handlePutSettings)

			r.Route("/items/{itemID}", func(r chi.Router) {
				r.Get("/", s.handleProbe)
				r.Get("/authorize", s.handleAuthorize)
				r.Post("/inspect", s.handleInspect)
				r.Post("/repair", s.handleRepair)
				r.Post("/charge", s.handleCharge)
				r.Put("/lock", s.handleLock)
			})
		})

		r.Post("/inspections/batch", s.handleInspectBatch)
		r.Post("/records/exists", s.handleBatchExists)
		r.Post("/records/batch", s.handleBatchRecords)

		r.Put("/processors/{address}", s.handleSetProcessor)
		r.Put("/staking/contract", s.handleSetStakingContract)

		r.Post("/ledger/mint", s.handleMint)
		r.Get("/ledger/{currency}/{holder}", s.handleBalance)

		r.Get("/events", s.handleEvents)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.engine.DB.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.engine.DB.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an engine error class to an HTTP status.
func statusFor(err error) int {
	switch engine.Class(err) {
	case engine.ErrAuthorization:
		return http.StatusForbidden
	case engine.ErrNotFound:
		return http.StatusNotFound
	case engine.ErrState:
		return http.StatusConflict
	case engine.ErrInput:
		return http.StatusBadRequest
	case engine.ErrExternal:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := map[string]any{"error": err.Error()}
	if class := engine.Class(err); class != nil {
		body["class"] = class.Error()
	}
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		body["op"] = engErr.Op
		if engErr.GroupID != 0 {
			body["group_id"] = engErr.GroupID
		}
		if engErr.ItemID != 0 {
			body["item_id"] = engErr.ItemID
		}
		if !engErr.Actor.IsZero() {
			body["actor"] = engErr.Actor.String()
		}
	}
	if status == http.StatusInternalServerError {
		log.Printf("server: %v", err)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
