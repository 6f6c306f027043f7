// Package draft turns ticket facts and selected grounds into letter body
// text via the generative provider, validating structure before acceptance.
package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pcnpilot/pcnpilot/internal/common"
	"github.com/pcnpilot/pcnpilot/internal/llm"
	"github.com/pcnpilot/pcnpilot/internal/strategy"
	"github.com/pcnpilot/pcnpilot/internal/ticket"
)

var (
	// ErrGenerationUnavailable marks a provider failure or timeout. Retryable
	// by the pipeline.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrMalformedDraft marks provider output that failed structural
	// validation. Retryable by the pipeline.
	ErrMalformedDraft = errors.New("malformed draft")
)

// signatureMarkers are the closing blocks a valid UK formal letter must end
// with; output missing all of them is rejected rather than silently accepted.
var signatureMarkers = []string{"yours faithfully", "yours sincerely"}

const minBodyLength = 120

// Letter is an accepted draft. Once returned by the engine it is immutable
// within the pipeline run; persistence takes ownership afterwards.
type Letter struct {
	ID        string            `json:"id"`
	TicketID  string            `json:"ticket_id"`
	Body      string            `json:"body"`
	Grounds   []strategy.Ground `json:"grounds"`
	CreatedAt time.Time         `json:"created_at"`
}

// Engine invokes the generative provider with a constructed prompt. It never
// retries; failed attempts surface as typed errors for the pipeline's policy.
type Engine struct {
	provider llm.Provider
}

func NewEngine(provider llm.Provider) *Engine {
	return &Engine{provider: provider}
}

// Draft produces a validated letter for the ticket. Provider failures map to
// ErrGenerationUnavailable, structurally invalid output to ErrMalformedDraft.
func (e *Engine) Draft(ctx context.Context, ticketID string, facts ticket.Facts, grounds []strategy.Ground, recipient Recipient) (*Letter, error) {
	if e == nil || e.provider == nil {
		return nil, fmt.Errorf("%w: no provider configured", ErrGenerationUnavailable)
	}
	if len(grounds) == 0 {
		return nil, fmt.Errorf("no grounds selected for ticket %s", ticketID)
	}
	prompt := buildPrompt(facts, grounds, recipient)
	body, err := e.provider.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	if err := validateBody(body); err != nil {
		common.Logger().Warn("draft: rejected provider output", "ticket_id", ticketID, "error", err)
		return nil, err
	}
	return &Letter{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		Body:      strings.TrimSpace(body),
		Grounds:   grounds,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func validateBody(body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return fmt.Errorf("%w: empty body", ErrMalformedDraft)
	}
	if len(trimmed) < minBodyLength {
		return fmt.Errorf("%w: body too short (%d chars)", ErrMalformedDraft, len(trimmed))
	}
	lowered := strings.ToLower(trimmed)
	for _, marker := range signatureMarkers {
		if strings.Contains(lowered, marker) {
			return nil
		}
	}
	return fmt.Errorf("%w: missing signature block", ErrMalformedDraft)
}
