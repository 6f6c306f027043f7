package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrDraftNotFound is returned when a ticket has no stored draft.
var ErrDraftNotFound = errors.New("draft not found")

// Ticket status values as persisted. StatusChallenged is set by the single
// combined side effect when a job completes.
const (
	StatusChallenged       = "challenged"
	StatusChallengeFailed  = "challenge_failed"
	StatusChallengePending = "challenge_pending"
)

// DraftRecord is a persisted letter draft. Grounds are stored as the JSON
// encoding of the selected strategy grounds. Rows are append-only; the most
// recent row per ticket is authoritative, earlier rows are audit history.
type DraftRecord struct {
	ID               string `db:"id"`
	TicketID         string `db:"ticket_id"`
	Body             string `db:"body"`
	GroundsJSON      string `db:"grounds"`
	DocumentRef      string `db:"document_ref"`
	FactsFingerprint string `db:"facts_fingerprint"`
	CreatedAt        string `db:"created_at"`
}

// SaveDraft persists the draft and transitions the ticket status in one
// transaction, recording an audit row. This is the persistence half of the
// pipeline's combined completion side effect.
func (s *Store) SaveDraft(ctx context.Context, rec DraftRecord, status string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	if rec.TicketID == "" || rec.ID == "" {
		return errors.New("draft and ticket identifiers required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if rec.CreatedAt == "" {
		rec.CreatedAt = now
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin save draft: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tickets (id, status, facts_fingerprint, updated_at)
                 VALUES (?, ?, ?, ?)
                 ON CONFLICT(id) DO UPDATE SET
                   status = excluded.status,
                   facts_fingerprint = excluded.facts_fingerprint,
                   updated_at = excluded.updated_at`,
		rec.TicketID, status, rec.FactsFingerprint, now)
	if err != nil {
		return fmt.Errorf("upsert ticket: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO letter_drafts (id, ticket_id, body, grounds, document_ref, facts_fingerprint, created_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TicketID, rec.Body, rec.GroundsJSON, rec.DocumentRef, rec.FactsFingerprint, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit (ticket_id, action, detail, created_at) VALUES (?, ?, ?, ?)`,
		rec.TicketID, "draft_saved", rec.ID, now)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save draft: %w", err)
	}
	return nil
}

// LatestDraft returns the authoritative (most recent) draft for a ticket.
func (s *Store) LatestDraft(ctx context.Context, ticketID string) (*DraftRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store not initialised")
	}
	var rec DraftRecord
	err := s.db.GetContext(ctx, &rec,
		`SELECT id, ticket_id, body, grounds, document_ref, facts_fingerprint, created_at
                 FROM letter_drafts WHERE ticket_id = ?
                 ORDER BY created_at DESC, id DESC LIMIT 1`, ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest draft: %w", err)
	}
	return &rec, nil
}

// DraftHistory returns every stored draft for a ticket, newest first.
func (s *Store) DraftHistory(ctx context.Context, ticketID string) ([]DraftRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store not initialised")
	}
	var recs []DraftRecord
	err := s.db.SelectContext(ctx, &recs,
		`SELECT id, ticket_id, body, grounds, document_ref, facts_fingerprint, created_at
                 FROM letter_drafts WHERE ticket_id = ?
                 ORDER BY created_at DESC, id DESC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("query draft history: %w", err)
	}
	return recs, nil
}

// TicketStatus returns the persisted status for a ticket, or empty when the
// ticket has never been written.
func (s *Store) TicketStatus(ctx context.Context, ticketID string) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("sqlite store not initialised")
	}
	var status string
	err := s.db.GetContext(ctx, &status, `SELECT status FROM tickets WHERE id = ?`, ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query ticket status: %w", err)
	}
	return status, nil
}

// RecordAudit appends an audit row outside a draft transaction, e.g. for
// notification dispatch failures.
func (s *Store) RecordAudit(ctx context.Context, ticketID, action, detail string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit (ticket_id, action, detail, created_at) VALUES (?, ?, ?, ?)`,
		ticketID, action, detail, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}
