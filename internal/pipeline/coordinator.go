package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrNotFound is returned when the referenced candidate does not exist.
var ErrNotFound = fmt.Errorf("candidate not found")

// ErrConflict is returned when the candidate's stored status no longer
// matches the caller's expected status at commit time. It is a normal,
// retryable outcome: re-read the candidate, re-decide, try again.
var ErrConflict = fmt.Errorf("candidate status changed concurrently")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// ─── Coordinator ─────────────────────────────────────────────────────────────

// TransitionRequest describes one intended status change. ExpectedStatus
// must be the caller's last-known status for the candidate, obtained
// from a prior read.
type TransitionRequest struct {
	CandidateID    string
	ExpectedStatus Status
	NewStatus      Status
	Actor          Actor
	Reason         string
	Notes          string
	Source         Source
}

// Coordinator performs atomic status transitions against a
// CandidateStore and signals committed changes to an EventSink. It has
// no transport dependency and no global state — construct one per
// service with its collaborators injected.
type Coordinator struct {
	store CandidateStore
	sink  EventSink

	now          func() time.Time
	eventTimeout time.Duration
}

// NewCoordinator returns a configured Coordinator. sink may be nil when
// no event consumers exist (tests, migrations).
func NewCoordinator(store CandidateStore, sink EventSink) *Coordinator {
	return &Coordinator{
		store:        store,
		sink:         sink,
		now:          time.Now,
		eventTimeout: 5 * time.Second,
	}
}

// Transition commits a single status change as a compare-and-swap
// against the candidate's stored current status.
//
// Outcomes:
//   - nil error: exactly one ledger entry was appended and
//     currentStatus now equals req.NewStatus, atomically.
//   - ErrNotFound: no such candidate.
//   - ErrConflict: stored status != req.ExpectedStatus; nothing changed.
//   - *ValidationError: malformed request; nothing attempted.
//
// A transition where NewStatus equals ExpectedStatus is permitted and
// still appends an entry — every change is an event, idempotent ones
// included.
func (c *Coordinator) Transition(ctx context.Context, req TransitionRequest) (*StatusHistoryEntry, error) {
	if req.CandidateID == "" {
		return nil, &ValidationError{Msg: "candidateId is required"}
	}
	if req.Actor.Name == "" {
		return nil, &ValidationError{Msg: "actor identity is required"}
	}
	if _, err := ParseStatus(string(req.ExpectedStatus)); err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}
	if _, err := ParseStatus(string(req.NewStatus)); err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}
	source := req.Source
	if source == "" {
		source = SourceManual
	}

	cand, err := c.store.FindByID(ctx, req.CandidateID)
	if err != nil {
		return nil, err
	}

	entry := StatusHistoryEntry{
		HistoryID:      uuid.NewString(),
		NewStatus:      req.NewStatus,
		ChangedAt:      c.now().UTC(),
		ChangedBy:      req.Actor.Name,
		ChangedByEmail: req.Actor.Email,
		Reason:         req.Reason,
		Notes:          req.Notes,
		Source:         source,
	}
	// oldStatus is nil only for the candidate's first-ever recorded
	// transition; afterwards it equals the CAS guard value.
	if len(cand.StatusHistory) > 0 {
		old := req.ExpectedStatus
		entry.OldStatus = &old
	}

	matched, err := c.store.CompareAndSwapStatus(ctx, req.CandidateID, req.ExpectedStatus, entry, req.NewStatus)
	if err != nil {
		return nil, fmt.Errorf("transition commit: %w", err)
	}
	if !matched {
		return nil, ErrConflict
	}

	c.dispatchEvent(StatusChangedEvent{
		CandidateID:   cand.ID,
		CandidateName: cand.Name,
		OldStatus:     req.ExpectedStatus,
		NewStatus:     req.NewStatus,
		ChangedBy:     req.Actor.Name,
	})

	return &entry, nil
}

// dispatchEvent hands the event to the sink asynchronously. The commit
// has already happened; a slow or failing sink must not block the
// caller or roll anything back, so delivery runs on its own detached
// context and failures are logged and swallowed.
func (c *Coordinator) dispatchEvent(ev StatusChangedEvent) {
	if c.sink == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.eventTimeout)
		defer cancel()
		if err := c.sink.Publish(ctx, ev); err != nil {
			slog.Warn("status-changed event publish failed",
				"candidateId", ev.CandidateID, "err", err)
		}
	}()
}
