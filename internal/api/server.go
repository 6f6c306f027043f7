package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/pcnpilot/pcnpilot/internal/common"
	"github.com/pcnpilot/pcnpilot/internal/pipeline"
	"github.com/pcnpilot/pcnpilot/internal/sqlite"
	"github.com/pcnpilot/pcnpilot/internal/storage"
)

// History is the read side of draft persistence the API serves directly;
// *sqlite.Store satisfies it.
type History interface {
	LatestDraft(ctx context.Context, ticketID string) (*sqlite.DraftRecord, error)
	DraftHistory(ctx context.Context, ticketID string) ([]sqlite.DraftRecord, error)
}

type Server struct {
	router    chi.Router
	pipeline  *pipeline.Pipeline
	history   History
	artifacts storage.Store
}

func NewServer(p *pipeline.Pipeline, history History, artifacts storage.Store) (*Server, error) {
	logger := common.Logger()
	if p == nil {
		return nil, fmt.Errorf("pipeline required")
	}
	if history == nil {
		return nil, fmt.Errorf("draft history store required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store required")
	}
	srv := &Server{
		router:    chi.NewRouter(),
		pipeline:  p,
		history:   history,
		artifacts: artifacts,
	}
	srv.routes()
	logger.Info("api: server ready")
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Post("/v1/challenge", s.handleChallenge)
	s.router.Get("/v1/challenge/status", s.handleChallengeStatus)
	s.router.Get("/v1/challenge/history", s.handleChallengeHistory)
	s.router.Get("/v1/challenge/document", s.handleChallengeDocument)
	s.router.Get("/v1/logs", s.handleLogs)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": common.LogEntries()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
