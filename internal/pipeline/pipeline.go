// Package pipeline coordinates the ticket challenge generation sequence:
// fact extraction, strategy selection, letter drafting, document rendering,
// and delivery composition. It owns retry policy, the per-ticket in-flight
// guard, idempotent reuse of completed results, and the single combined side
// effect on completion.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pcnpilot/pcnpilot/internal/common"
	"github.com/pcnpilot/pcnpilot/internal/draft"
	"github.com/pcnpilot/pcnpilot/internal/llm"
	"github.com/pcnpilot/pcnpilot/internal/notify"
	"github.com/pcnpilot/pcnpilot/internal/render"
	"github.com/pcnpilot/pcnpilot/internal/sqlite"
	"github.com/pcnpilot/pcnpilot/internal/storage"
	"github.com/pcnpilot/pcnpilot/internal/strategy"
	"github.com/pcnpilot/pcnpilot/internal/ticket"
)

const defaultJobTimeout = 2 * time.Minute

// Persistence is the relational collaborator the pipeline writes results to.
// *sqlite.Store satisfies it; tests substitute fakes.
type Persistence interface {
	SaveDraft(ctx context.Context, rec sqlite.DraftRecord, status string) error
	LatestDraft(ctx context.Context, ticketID string) (*sqlite.DraftRecord, error)
	TicketStatus(ctx context.Context, ticketID string) (string, error)
	RecordAudit(ctx context.Context, ticketID, action, detail string) error
}

// Request asks for a challenge letter for one ticket. Either OCRText or a
// pre-filled Facts record supplies the ticket content; Recipient is the
// display detail for the letter, supplied by the caller.
type Request struct {
	TicketID    string          `json:"ticket_id"`
	OCRText     string          `json:"ocr_text,omitempty"`
	Facts       *ticket.Facts   `json:"facts,omitempty"`
	UserContext string          `json:"context,omitempty"`
	Recipient   draft.Recipient `json:"recipient"`

	// Regenerate forces a fresh letter even when a completed result with
	// unchanged facts exists.
	Regenerate bool `json:"regenerate,omitempty"`
}

// Result is the completed outcome: letter text, document reference, the
// grounds used, and how many drafting attempts were made.
type Result struct {
	TicketID    string            `json:"ticket_id"`
	LetterID    string            `json:"letter_id"`
	LetterText  string            `json:"letter_text"`
	DocumentRef string            `json:"document_ref"`
	Grounds     []strategy.Ground `json:"grounds"`
	Attempts    int               `json:"attempts"`

	// Reused is true when a previously stored result was returned instead of
	// generating a new letter.
	Reused bool `json:"reused,omitempty"`
}

// Pipeline is the orchestrator. All external collaborators are injected at
// construction; no component below it talks to storage, persistence, or the
// notifier directly.
type Pipeline struct {
	engine    *draft.Engine
	renderer  *render.Renderer
	store     Persistence
	artifacts storage.Store
	notifier  notify.Notifier

	policy     RetryPolicy
	jobTimeout time.Duration

	mu     sync.Mutex
	active map[string]*job
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRetryPolicy overrides the drafting retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithJobTimeout overrides the per-job time budget.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.jobTimeout = d
		}
	}
}

// WithNotifier sets the email collaborator.
func WithNotifier(n notify.Notifier) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithLetterhead sets the renderer letterhead text.
func WithLetterhead(name string) Option {
	return func(p *Pipeline) { p.renderer = render.NewRenderer(name) }
}

// New constructs a pipeline around the injected collaborators.
func New(provider llm.Provider, store Persistence, artifacts storage.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:     draft.NewEngine(provider),
		renderer:   render.NewRenderer(""),
		store:      store,
		artifacts:  artifacts,
		notifier:   notify.LogNotifier{},
		policy:     DefaultRetryPolicy(),
		jobTimeout: defaultJobTimeout,
		active:     make(map[string]*job),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// ChallengeTicket is the single entry point: it runs the ticket through the
// full generation sequence and returns either a completed result or one
// terminal error kind. Intermediate failures are never surfaced.
func (p *Pipeline) ChallengeTicket(ctx context.Context, req Request) (*Result, error) {
	logger := common.Logger()
	ticketID := strings.TrimSpace(req.TicketID)
	if ticketID == "" {
		return nil, errors.New("ticket id required")
	}

	j, err := p.acquire(ticketID)
	if err != nil {
		return nil, err
	}
	defer p.release(ticketID)

	ctx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	// Stage 1: facts.
	var facts ticket.Facts
	if req.Facts != nil {
		facts = *req.Facts
	} else {
		facts = ticket.ExtractFacts(req.OCRText)
	}
	if facts.Incomplete() {
		// ExtractionIncomplete is non-fatal: log and proceed with partial facts.
		logger.Warn("pipeline: extraction incomplete", "ticket_id", ticketID,
			"pcn", facts.PCNNumber != "", "issuer", facts.Issuer != "")
	}
	fingerprint := facts.Fingerprint()
	p.setPhase(j, PhaseFactsExtracted)

	// Completed ticket with unchanged facts: return the stored result unless
	// regeneration was explicitly requested.
	if !req.Regenerate {
		if result, ok := p.storedResult(ctx, ticketID, fingerprint); ok {
			logger.Info("pipeline: returning stored result", "ticket_id", ticketID, "letter_id", result.LetterID)
			p.setPhase(j, PhaseCompleted)
			return result, nil
		}
	}

	// Stage 2: strategy.
	grounds := strategy.Select(strategy.Input{
		Facts:             facts,
		ContraventionCode: facts.ContraventionCode,
		Issuer:            facts.Issuer,
		UserContext:       req.UserContext,
	})
	p.setPhase(j, PhaseStrategySelected)
	logger.Debug("pipeline: strategy selected", "ticket_id", ticketID, "grounds", strategy.Kinds(grounds))

	// Stage 3: drafting, under the retry policy.
	p.setPhase(j, PhaseDrafting)
	var letter *draft.Letter
	attempts, err := p.policy.Execute(ctx, func() error {
		l, derr := p.engine.Draft(ctx, ticketID, facts, grounds, req.Recipient)
		if derr != nil {
			p.recordAttemptError(j, derr)
			return derr
		}
		letter = l
		return nil
	})
	p.setAttempts(j, attempts)
	if err != nil {
		return nil, p.fail(ctx, j, timeoutOr(ctx, draftError(err, attempts)))
	}
	p.setPhase(j, PhaseDraftAccepted)

	// Stage 4: rendering and artifact storage. Non-retryable.
	p.setPhase(j, PhaseRendering)
	doc, err := p.renderer.Render(render.Letter{
		Reference: facts.PCNNumber,
		Issuer:    facts.Issuer,
		Body:      letter.Body,
	})
	if err != nil {
		return nil, p.fail(ctx, j, timeoutOr(ctx, err))
	}
	ref, err := p.artifacts.Put(ctx, fmt.Sprintf("letters/%s-%s.pdf", ticketID, letter.ID), doc.Bytes)
	if err != nil {
		// Storage failures bubble up as part of the render stage.
		return nil, p.fail(ctx, j, timeoutOr(ctx, fmt.Errorf("%w: store artifact: %v", render.ErrRenderFailed, err)))
	}

	// Stage 5: the combined completion side effect. Persist + status
	// transition together; notification dispatch failure is logged, never
	// rolled back.
	groundsJSON, err := json.Marshal(letter.Grounds)
	if err != nil {
		return nil, p.fail(ctx, j, fmt.Errorf("encode grounds: %w", err))
	}
	rec := sqlite.DraftRecord{
		ID:               letter.ID,
		TicketID:         ticketID,
		Body:             letter.Body,
		GroundsJSON:      string(groundsJSON),
		DocumentRef:      ref,
		FactsFingerprint: fingerprint,
		CreatedAt:        letter.CreatedAt.Format(time.RFC3339Nano),
	}
	if err := p.store.SaveDraft(ctx, rec, sqlite.StatusChallenged); err != nil {
		return nil, p.fail(ctx, j, timeoutOr(ctx, fmt.Errorf("persist draft: %w", err)))
	}
	p.dispatchNotification(ctx, ticketID, ref, req.Recipient.Name, facts)

	p.setPhase(j, PhaseCompleted)
	logger.Info("pipeline: challenge completed",
		"ticket_id", ticketID, "letter_id", letter.ID, "pages", doc.Pages, "attempts", attempts)
	return &Result{
		TicketID:    ticketID,
		LetterID:    letter.ID,
		LetterText:  letter.Body,
		DocumentRef: ref,
		Grounds:     letter.Grounds,
		Attempts:    attempts,
	}, nil
}

// Status reports the in-flight job for a ticket, or the persisted outcome
// when no job is active.
func (p *Pipeline) Status(ctx context.Context, ticketID string) JobStatus {
	ticketID = strings.TrimSpace(ticketID)
	p.mu.Lock()
	if j, ok := p.active[ticketID]; ok {
		snapshot := JobStatus{
			TicketID:  ticketID,
			Active:    true,
			Phase:     j.phase,
			Attempts:  j.attempts,
			LastError: j.lastError,
		}
		p.mu.Unlock()
		return snapshot
	}
	p.mu.Unlock()

	status := JobStatus{TicketID: ticketID}
	if persisted, err := p.store.TicketStatus(ctx, ticketID); err == nil {
		status.TicketStatus = persisted
	}
	if rec, err := p.store.LatestDraft(ctx, ticketID); err == nil {
		status.LetterID = rec.ID
		status.DocumentRef = rec.DocumentRef
	}
	return status
}

// acquire registers the in-flight job for a ticket. The check and the
// insertion happen under one lock so two concurrent requests can never both
// pass the guard.
func (p *Pipeline) acquire(ticketID string) (*job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[ticketID]; ok {
		return nil, ErrAlreadyInProgress
	}
	j := &job{ticketID: ticketID, phase: PhasePending, startedAt: time.Now().UTC()}
	p.active[ticketID] = j
	return j, nil
}

func (p *Pipeline) release(ticketID string) {
	p.mu.Lock()
	delete(p.active, ticketID)
	p.mu.Unlock()
}

func (p *Pipeline) setPhase(j *job, phase Phase) {
	p.mu.Lock()
	j.phase = phase
	p.mu.Unlock()
}

func (p *Pipeline) setAttempts(j *job, attempts int) {
	p.mu.Lock()
	j.attempts = attempts
	p.mu.Unlock()
}

func (p *Pipeline) recordAttemptError(j *job, err error) {
	p.mu.Lock()
	j.lastError = err.Error()
	p.mu.Unlock()
}

func (p *Pipeline) fail(ctx context.Context, j *job, err error) error {
	p.setPhase(j, PhaseFailed)
	common.Logger().Error("pipeline: challenge failed", "ticket_id", j.ticketID, "error", err)
	_ = p.store.RecordAudit(ctx, j.ticketID, "challenge_failed", err.Error())
	return err
}

// storedResult looks up a previously completed challenge with matching facts.
func (p *Pipeline) storedResult(ctx context.Context, ticketID, fingerprint string) (*Result, bool) {
	status, err := p.store.TicketStatus(ctx, ticketID)
	if err != nil || status != sqlite.StatusChallenged {
		return nil, false
	}
	rec, err := p.store.LatestDraft(ctx, ticketID)
	if err != nil || rec.FactsFingerprint != fingerprint {
		return nil, false
	}
	var grounds []strategy.Ground
	if err := json.Unmarshal([]byte(rec.GroundsJSON), &grounds); err != nil {
		common.Logger().Warn("pipeline: stored grounds unreadable", "ticket_id", ticketID, "error", err)
	}
	return &Result{
		TicketID:    ticketID,
		LetterID:    rec.ID,
		LetterText:  rec.Body,
		DocumentRef: rec.DocumentRef,
		Grounds:     grounds,
		Reused:      true,
	}, true
}

// dispatchNotification is fire-and-forget: a failure is logged and audited
// but never fails the completed job.
func (p *Pipeline) dispatchNotification(ctx context.Context, ticketID, ref, recipientName string, facts ticket.Facts) {
	logger := common.Logger()
	msg, err := notify.Compose(ref, ticketID, recipientName, facts.PCNNumber, facts.Issuer)
	if err != nil {
		logger.Warn("pipeline: notification compose failed", "ticket_id", ticketID, "error", err)
		return
	}
	if err := p.notifier.Send(ctx, msg); err != nil {
		logger.Warn("pipeline: notification dispatch failed", "ticket_id", ticketID, "error", err)
		_ = p.store.RecordAudit(ctx, ticketID, "notification_failed", err.Error())
	}
}

// draftError maps a drafting outcome to its terminal kind: a context
// deadline becomes GenerationTimeout, anything else is retry exhaustion.
func draftError(err error, attempts int) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
	}
	return fmt.Errorf("%w after %d attempt(s): %v", ErrChallengeGenerationFailed, attempts, err)
}

// timeoutOr prefers the timeout kind when the job budget expired, otherwise
// returns the stage error unchanged.
func timeoutOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrGenerationTimeout, ctx.Err())
	}
	return err
}
