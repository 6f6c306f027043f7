package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pcnpilot/pcnpilot/internal/llm/providers"
	"github.com/pcnpilot/pcnpilot/internal/pipeline"
	"github.com/pcnpilot/pcnpilot/internal/sqlite"
	"github.com/pcnpilot/pcnpilot/internal/storage"
)

// stubStore implements both pipeline.Persistence and History in memory.
type stubStore struct {
	mu     sync.Mutex
	drafts map[string][]sqlite.DraftRecord
	status map[string]string
}

func newStubStore() *stubStore {
	return &stubStore{drafts: make(map[string][]sqlite.DraftRecord), status: make(map[string]string)}
}

func (s *stubStore) SaveDraft(ctx context.Context, rec sqlite.DraftRecord, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[rec.TicketID] = append(s.drafts[rec.TicketID], rec)
	s.status[rec.TicketID] = status
	return nil
}

func (s *stubStore) LatestDraft(ctx context.Context, ticketID string) (*sqlite.DraftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.drafts[ticketID]
	if len(recs) == 0 {
		return nil, sqlite.ErrDraftNotFound
	}
	rec := recs[len(recs)-1]
	return &rec, nil
}

func (s *stubStore) DraftHistory(ctx context.Context, ticketID string) ([]sqlite.DraftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sqlite.DraftRecord, 0, len(s.drafts[ticketID]))
	for i := len(s.drafts[ticketID]) - 1; i >= 0; i-- {
		out = append(out, s.drafts[ticketID][i])
	}
	return out, nil
}

func (s *stubStore) TicketStatus(ctx context.Context, ticketID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[ticketID], nil
}

func (s *stubStore) RecordAudit(ctx context.Context, ticketID, action, detail string) error {
	return nil
}

type malformedProvider struct{}

func (malformedProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	return "too short", nil
}

func (malformedProvider) Name() string { return "malformed" }

func fastPolicy() pipeline.RetryPolicy {
	return pipeline.RetryPolicy{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1.0,
		MaxBackoff:        time.Millisecond,
		Retryable:         pipeline.DraftRetryable,
	}
}

func newTestServer(t *testing.T, provider providers.Provider, store *stubStore) *Server {
	t.Helper()
	artifacts, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	p := pipeline.New(provider, store, artifacts, pipeline.WithRetryPolicy(fastPolicy()))
	srv, err := NewServer(p, store, artifacts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func challengeBody(ticketID string) *bytes.Buffer {
	payload := map[string]interface{}{
		"ticket_id": ticketID,
		"ocr_text":  "PCN Number: LN12345\nIssuing Authority: Westminster Council\nContravention Code: 01\nAmount Due: £65.00",
		"recipient": map[string]interface{}{"name": "Alex Morgan"},
	}
	buf := &bytes.Buffer{}
	_ = json.NewEncoder(buf).Encode(payload)
	return buf
}

func TestChallengeEndpoint(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, providers.NewLocalProvider(), store)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/challenge", challengeBody("t-100")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var result pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.DocumentRef == "" || result.LetterID == "" {
		t.Fatalf("incomplete result: %+v", result)
	}
	if status := store.status["t-100"]; status != sqlite.StatusChallenged {
		t.Fatalf("ticket status: got %q", status)
	}
}

func TestChallengeEndpointRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, providers.NewLocalProvider(), newStubStore())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/challenge", strings.NewReader("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/challenge", strings.NewReader(`{"ocr_text":"x"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing ticket id: got %d", rec.Code)
	}
}

func TestChallengeEndpointMapsGenerationFailure(t *testing.T) {
	srv := newTestServer(t, malformedProvider{}, newStubStore())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/challenge", challengeBody("t-bad")))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("generation failure: got %d, body %s", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload["error"] == "" {
		t.Fatalf("expected an error message")
	}
}

func TestChallengeStatusEndpoint(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, providers.NewLocalProvider(), store)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/challenge/status", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing ticket_id: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/challenge/status?ticket_id=t-none", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown ticket: got %d", rec.Code)
	}
	var status pipeline.JobStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Active {
		t.Fatalf("unknown ticket reported active")
	}

	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/challenge", challengeBody("t-200")))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/challenge/status?ticket_id=t-200", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.TicketStatus != sqlite.StatusChallenged || status.LetterID == "" {
		t.Fatalf("completed ticket status: %+v", status)
	}
}

func TestChallengeHistoryEndpoint(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, providers.NewLocalProvider(), store)

	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/challenge", challengeBody("t-300")))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/challenge/history?ticket_id=t-300", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("history: got %d", rec.Code)
	}
	var payload struct {
		TicketID string               `json:"ticket_id"`
		Drafts   []sqlite.DraftRecord `json:"drafts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(payload.Drafts) != 1 {
		t.Fatalf("drafts: got %d, want 1", len(payload.Drafts))
	}
}

func TestChallengeDocumentEndpoint(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, providers.NewLocalProvider(), store)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/challenge/document?ticket_id=t-400", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no draft yet: got %d", rec.Code)
	}

	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/challenge", challengeBody("t-400")))

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/challenge/document?ticket_id=t-400", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("document: got %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type: got %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("response is not a PDF")
	}
}

func TestHealthAndLogsEndpoints(t *testing.T) {
	srv := newTestServer(t, providers.NewLocalProvider(), newStubStore())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/logs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("logs: got %d", rec.Code)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if _, ok := payload["entries"]; !ok {
		t.Fatalf("logs payload missing entries")
	}
}
