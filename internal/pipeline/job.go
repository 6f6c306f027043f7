package pipeline

import "time"

// Phase is a ticket job's position in the generation state machine. Each
// successful stage advances one phase; Drafting may loop on itself under the
// retry policy; Failed is terminal and reachable from any non-terminal phase.
type Phase string

const (
	PhasePending          Phase = "pending"
	PhaseFactsExtracted   Phase = "facts_extracted"
	PhaseStrategySelected Phase = "strategy_selected"
	PhaseDrafting         Phase = "drafting"
	PhaseDraftAccepted    Phase = "draft_accepted"
	PhaseRendering        Phase = "rendering"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
)

// Terminal reports whether the phase ends the job.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// job is the ephemeral unit of work tracked while a ticket's challenge is in
// flight. It lives only in the pipeline's active map and is discarded once a
// terminal phase is reached; durable results live in persistence.
type job struct {
	ticketID  string
	phase     Phase
	attempts  int
	lastError string
	startedAt time.Time
}

// JobStatus is a caller-visible snapshot of a ticket's challenge state: the
// in-flight job when one exists, otherwise whatever persistence recorded.
type JobStatus struct {
	TicketID     string `json:"ticket_id"`
	Active       bool   `json:"active"`
	Phase        Phase  `json:"phase,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	TicketStatus string `json:"ticket_status,omitempty"`
	LetterID     string `json:"letter_id,omitempty"`
	DocumentRef  string `json:"document_ref,omitempty"`
}
