package pipeline

import "time"

// MaxHistoryEntries bounds the per-candidate ledger. Older entries are
// silently discarded on append — a deliberate trade-off between full
// auditability and unbounded jsonb growth.
const MaxHistoryEntries = 50

// StatusHistoryEntry is one immutable record of a single status change.
// Entries are never edited or deleted individually; the ledger only
// grows (subject to MaxHistoryEntries) via the Coordinator.
type StatusHistoryEntry struct {
	HistoryID      string    `json:"historyId"`
	OldStatus      *Status   `json:"oldStatus"` // nil only for the first-ever recorded transition
	NewStatus      Status    `json:"newStatus"`
	ChangedAt      time.Time `json:"changedAt"`
	ChangedBy      string    `json:"changedBy"`
	ChangedByEmail string    `json:"changedByEmail,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	Source         Source    `json:"source,omitempty"`
}

// Candidate carries only the fields this core depends on. Profile data
// (contact info, skills, files) lives with external collaborators.
type Candidate struct {
	ID            string               `json:"candidateId"`
	Name          string               `json:"name"`
	DateCreated   time.Time            `json:"dateCreated"`
	CurrentStatus Status               `json:"currentStatus"`
	StatusHistory []StatusHistoryEntry `json:"statusHistory"`
}

// AppendHistory returns ledger with entry appended, trimmed to the
// MaxHistoryEntries most recent records in chronological order. The
// Postgres store performs the same append+trim inside its conditional
// UPDATE; this helper is for in-memory stores and tests.
func AppendHistory(ledger []StatusHistoryEntry, entry StatusHistoryEntry) []StatusHistoryEntry {
	out := append(append([]StatusHistoryEntry(nil), ledger...), entry)
	if len(out) > MaxHistoryEntries {
		out = out[len(out)-MaxHistoryEntries:]
	}
	return out
}
