package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pcnpilot/pcnpilot/internal/pipeline"
	"github.com/pcnpilot/pcnpilot/internal/render"
	"github.com/pcnpilot/pcnpilot/internal/sqlite"
	"github.com/pcnpilot/pcnpilot/internal/storage"
)

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.pipeline.ChallengeTicket(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pipeline.ErrAlreadyInProgress):
			status = http.StatusConflict
		case errors.Is(err, pipeline.ErrGenerationTimeout):
			status = http.StatusGatewayTimeout
		case errors.Is(err, pipeline.ErrChallengeGenerationFailed), errors.Is(err, render.ErrRenderFailed):
			status = http.StatusBadGateway
		default:
			if strings.Contains(err.Error(), "required") {
				status = http.StatusBadRequest
			}
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChallengeStatus(w http.ResponseWriter, r *http.Request) {
	ticketID := strings.TrimSpace(r.URL.Query().Get("ticket_id"))
	if ticketID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("ticket_id query parameter required"))
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Status(r.Context(), ticketID))
}

func (s *Server) handleChallengeHistory(w http.ResponseWriter, r *http.Request) {
	ticketID := strings.TrimSpace(r.URL.Query().Get("ticket_id"))
	if ticketID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("ticket_id query parameter required"))
		return
	}
	drafts, err := s.history.DraftHistory(r.Context(), ticketID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ticket_id": ticketID, "drafts": drafts})
}

func (s *Server) handleChallengeDocument(w http.ResponseWriter, r *http.Request) {
	ticketID := strings.TrimSpace(r.URL.Query().Get("ticket_id"))
	if ticketID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("ticket_id query parameter required"))
		return
	}
	rec, err := s.history.LatestDraft(r.Context(), ticketID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sqlite.ErrDraftNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	if rec.DocumentRef == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("no document rendered for ticket %s", ticketID))
		return
	}
	path, err := s.artifacts.Resolve(rec.DocumentRef)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrArtifactInvalid) {
			status = http.StatusForbidden
		}
		writeError(w, status, err)
		return
	}
	file, err := os.Open(path)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	name := filepath.Base(path)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	http.ServeContent(w, r, name, info.ModTime(), file)
}
