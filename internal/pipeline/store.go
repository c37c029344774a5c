package pipeline

import "context"

// Actor identifies who performed a status change — a human recruiter or
// an automated process.
type Actor struct {
	Name  string
	Email string
}

// StatusChangedEvent is handed to the EventSink after every committed
// transition, for notification and audit consumers.
type StatusChangedEvent struct {
	CandidateID   string `json:"candidateId"`
	CandidateName string `json:"candidateName"`
	OldStatus     Status `json:"oldStatus"`
	NewStatus     Status `json:"newStatus"`
	ChangedBy     string `json:"changedBy"`
}

// CandidateStore is the persistence surface the Coordinator and the
// analytics entry points depend on.
type CandidateStore interface {
	// FindByID returns the candidate or ErrNotFound.
	FindByID(ctx context.Context, id string) (*Candidate, error)

	// FindAll returns candidates for analytics. With activeOnly,
	// soft-deleted candidates are excluded.
	FindAll(ctx context.Context, activeOnly bool) ([]Candidate, error)

	// CompareAndSwapStatus atomically appends entry to the candidate's
	// ledger (trimming to MaxHistoryEntries) and sets currentStatus to
	// newStatus — but only when the stored status still equals
	// expected. Returns false, without changing anything, when the
	// guard does not match. The append and the status update must not
	// be observable separately by concurrent readers or writers.
	CompareAndSwapStatus(ctx context.Context, id string, expected Status, entry StatusHistoryEntry, newStatus Status) (bool, error)
}

// EventSink receives fire-and-forget notifications of committed
// transitions. Delivery failures never affect the committed state.
type EventSink interface {
	Publish(ctx context.Context, ev StatusChangedEvent) error
}
