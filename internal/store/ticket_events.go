package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"rentdesk/internal/models"

	"github.com/zeebo/blake3"
)

type TicketEvent struct {
	TicketID    string          `json:"ticket_id"`
	TicketSeq   int             `json:"ticket_seq"`
	Type        string          `json:"type"`
	ActorUserID string          `json:"actor_user_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	PrevHash    string          `json:"prev_hash"`
	Hash        string          `json:"hash"`
}

// TicketEventPayload is the ticket snapshot stored with every event.
type TicketEventPayload struct {
	TicketID       string     `json:"ticket_id"`
	AgencyID       string     `json:"agency_id"`
	UnitID         string     `json:"unit_id"`
	ReporterUserID string     `json:"reporter_user_id"`
	AssigneeUserID *string    `json:"assignee_user_id"`
	Kind           string     `json:"kind"`
	Priority       string     `json:"priority"`
	Title          string     `json:"title"`
	Status         string     `json:"status"`
	Cost           int64      `json:"cost"`
	Note           string     `json:"note,omitempty"`
	RequestID      string     `json:"request_id,omitempty"`
	CreatedAt      *time.Time `json:"created_at"`
	StartedAt      *time.Time `json:"started_at"`
	ResolvedAt     *time.Time `json:"resolved_at"`
	ClosedAt       *time.Time `json:"closed_at"`
}

func NewTicketEventPayload(ticket models.Ticket, note string) TicketEventPayload {
	createdAt := ticket.CreatedAt
	return TicketEventPayload{
		TicketID:       ticket.TicketID,
		AgencyID:       ticket.AgencyID,
		UnitID:         ticket.UnitID,
		ReporterUserID: ticket.ReporterUserID,
		AssigneeUserID: ticket.AssigneeUserID,
		Kind:           ticket.Kind,
		Priority:       ticket.Priority,
		Title:          ticket.Title,
		Status:         ticket.Status,
		Cost:           ticket.Cost,
		Note:           note,
		RequestID:      ticket.RequestID,
		CreatedAt:      &createdAt,
		StartedAt:      ticket.StartedAt,
		ResolvedAt:     ticket.ResolvedAt,
		ClosedAt:       ticket.ClosedAt,
	}
}

func ComputeTicketEventHash(prevHash, ticketID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, ticketID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := blake3.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// VerifyTicketEvents checks sequence continuity and recomputes every hash.
func VerifyTicketEvents(events []TicketEvent) error {
	prev := ""
	for i, event := range events {
		if event.TicketSeq != i+1 {
			return fmt.Errorf("%w: expected seq %d, got %d", ErrBrokenChain, i+1, event.TicketSeq)
		}
		if event.PrevHash != prev {
			return fmt.Errorf("%w: seq %d prev_hash mismatch", ErrBrokenChain, event.TicketSeq)
		}
		want := ComputeTicketEventHash(prev, event.TicketID, event.Type, event.Payload, event.CreatedAt, event.TicketSeq)
		if event.Hash != want {
			return fmt.Errorf("%w: seq %d hash mismatch", ErrBrokenChain, event.TicketSeq)
		}
		prev = event.Hash
	}
	return nil
}

func RehydrateTicket(events []TicketEvent) (models.Ticket, error) {
	var ticket models.Ticket
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload TicketEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.Ticket{}, err
		}
		if payload.TicketID != "" {
			ticket.TicketID = payload.TicketID
		}
		if payload.AgencyID != "" {
			ticket.AgencyID = payload.AgencyID
		}
		if payload.UnitID != "" {
			ticket.UnitID = payload.UnitID
		}
		if payload.ReporterUserID != "" {
			ticket.ReporterUserID = payload.ReporterUserID
		}
		if payload.AssigneeUserID != nil {
			ticket.AssigneeUserID = payload.AssigneeUserID
		}
		if payload.Kind != "" {
			ticket.Kind = payload.Kind
		}
		if payload.Priority != "" {
			ticket.Priority = payload.Priority
		}
		if payload.Title != "" {
			ticket.Title = payload.Title
		}
		if payload.Status != "" {
			ticket.Status = payload.Status
		}
		if payload.Cost != 0 {
			ticket.Cost = payload.Cost
		}
		if payload.CreatedAt != nil {
			ticket.CreatedAt = *payload.CreatedAt
		}
		if payload.StartedAt != nil {
			ticket.StartedAt = payload.StartedAt
		}
		if payload.ResolvedAt != nil {
			ticket.ResolvedAt = payload.ResolvedAt
		}
		if payload.ClosedAt != nil {
			ticket.ClosedAt = payload.ClosedAt
		}
		ticket.UpdatedAt = event.CreatedAt
	}
	return ticket, nil
}
