package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talenttrack/pipeline-service/internal/pipeline"
)

// ─── In-memory fakes ──────────────────────────────────────────────────────────

// memStore is a mutex-guarded CandidateStore whose CompareAndSwapStatus
// is atomic, matching the contract the Postgres store provides with a
// conditional UPDATE.
type memStore struct {
	mu         sync.Mutex
	candidates map[string]*pipeline.Candidate
	casErr     error // injected storage failure
}

func newMemStore(candidates ...*pipeline.Candidate) *memStore {
	s := &memStore{candidates: make(map[string]*pipeline.Candidate)}
	for _, c := range candidates {
		s.candidates[c.ID] = c
	}
	return s
}

func (s *memStore) FindByID(_ context.Context, id string) (*pipeline.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return nil, pipeline.ErrNotFound
	}
	cp := *c
	cp.StatusHistory = append([]pipeline.StatusHistoryEntry(nil), c.StatusHistory...)
	return &cp, nil
}

func (s *memStore) FindAll(_ context.Context, _ bool) ([]pipeline.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pipeline.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		out = append(out, *c)
	}
	return out, nil
}

func (s *memStore) CompareAndSwapStatus(_ context.Context, id string, expected pipeline.Status, entry pipeline.StatusHistoryEntry, newStatus pipeline.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.casErr != nil {
		return false, s.casErr
	}
	c, ok := s.candidates[id]
	if !ok || c.CurrentStatus != expected {
		return false, nil
	}
	c.StatusHistory = pipeline.AppendHistory(c.StatusHistory, entry)
	c.CurrentStatus = newStatus
	return true, nil
}

// memSink records published events on a channel; a non-nil err makes
// every publish fail.
type memSink struct {
	ch  chan pipeline.StatusChangedEvent
	err error
}

func newMemSink() *memSink {
	return &memSink{ch: make(chan pipeline.StatusChangedEvent, 16)}
}

func (s *memSink) Publish(_ context.Context, ev pipeline.StatusChangedEvent) error {
	if s.err != nil {
		return s.err
	}
	s.ch <- ev
	return nil
}

func (s *memSink) wait(t *testing.T) pipeline.StatusChangedEvent {
	t.Helper()
	select {
	case ev := <-s.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status-changed event")
		return pipeline.StatusChangedEvent{}
	}
}

func seedCandidate(id string, status pipeline.Status, history ...pipeline.StatusHistoryEntry) *pipeline.Candidate {
	return &pipeline.Candidate{
		ID:            id,
		Name:          "Ada Lovelace",
		DateCreated:   time.Now().Add(-30 * 24 * time.Hour),
		CurrentStatus: status,
		StatusHistory: history,
	}
}

func transitionReq(id string, expected, next pipeline.Status) pipeline.TransitionRequest {
	return pipeline.TransitionRequest{
		CandidateID:    id,
		ExpectedStatus: expected,
		NewStatus:      next,
		Actor:          pipeline.Actor{Name: "recruiter-1", Email: "r1@example.com"},
		Source:         pipeline.SourceManual,
	}
}

// ─── Transition ───────────────────────────────────────────────────────────────

func TestTransition_Success(t *testing.T) {
	storeFake := newMemStore(seedCandidate("c1", pipeline.StatusApplied))
	sink := newMemSink()
	coord := pipeline.NewCoordinator(storeFake, sink)

	entry, err := coord.Transition(context.Background(), transitionReq("c1", pipeline.StatusApplied, pipeline.StatusOffer))
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.NotEmpty(t, entry.HistoryID)
	assert.Equal(t, pipeline.StatusOffer, entry.NewStatus)
	assert.Equal(t, "recruiter-1", entry.ChangedBy)
	assert.Equal(t, pipeline.SourceManual, entry.Source)

	cand, err := storeFake.FindByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusOffer, cand.CurrentStatus)
	require.Len(t, cand.StatusHistory, 1)
	assert.Equal(t, entry.HistoryID, cand.StatusHistory[0].HistoryID)
}

// The first-ever recorded transition has no oldStatus; later ones carry
// the CAS guard value.
func TestTransition_OldStatusTracking(t *testing.T) {
	storeFake := newMemStore(seedCandidate("c1", pipeline.StatusApplied))
	coord := pipeline.NewCoordinator(storeFake, nil)
	ctx := context.Background()

	first, err := coord.Transition(ctx, transitionReq("c1", pipeline.StatusApplied, pipeline.StatusReferenceCheck))
	require.NoError(t, err)
	assert.Nil(t, first.OldStatus)

	second, err := coord.Transition(ctx, transitionReq("c1", pipeline.StatusReferenceCheck, pipeline.StatusOffer))
	require.NoError(t, err)
	require.NotNil(t, second.OldStatus)
	assert.Equal(t, pipeline.StatusReferenceCheck, *second.OldStatus)
}

// A no-op transition (newStatus == expectedStatus) is permitted and
// still appends a ledger entry.
func TestTransition_NoOpStillAppends(t *testing.T) {
	storeFake := newMemStore(seedCandidate("c1", pipeline.StatusOffer, pipeline.StatusHistoryEntry{HistoryID: "h0", NewStatus: pipeline.StatusOffer}))
	coord := pipeline.NewCoordinator(storeFake, nil)

	_, err := coord.Transition(context.Background(), transitionReq("c1", pipeline.StatusOffer, pipeline.StatusOffer))
	require.NoError(t, err)

	cand, _ := storeFake.FindByID(context.Background(), "c1")
	assert.Len(t, cand.StatusHistory, 2)
	assert.Equal(t, pipeline.StatusOffer, cand.CurrentStatus)
}

func TestTransition_NotFound(t *testing.T) {
	coord := pipeline.NewCoordinator(newMemStore(), nil)

	_, err := coord.Transition(context.Background(), transitionReq("ghost", pipeline.StatusApplied, pipeline.StatusOffer))
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestTransition_Conflict(t *testing.T) {
	storeFake := newMemStore(seedCandidate("c1", pipeline.StatusOffer))
	coord := pipeline.NewCoordinator(storeFake, nil)

	// Caller believes the candidate is still APPLIED.
	_, err := coord.Transition(context.Background(), transitionReq("c1", pipeline.StatusApplied, pipeline.StatusRejected))
	assert.ErrorIs(t, err, pipeline.ErrConflict)

	cand, _ := storeFake.FindByID(context.Background(), "c1")
	assert.Equal(t, pipeline.StatusOffer, cand.CurrentStatus, "conflict must change nothing")
	assert.Empty(t, cand.StatusHistory)
}

func TestTransition_Validation(t *testing.T) {
	coord := pipeline.NewCoordinator(newMemStore(seedCandidate("c1", pipeline.StatusApplied)), nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  pipeline.TransitionRequest
	}{
		{"missing candidate id", pipeline.TransitionRequest{
			ExpectedStatus: pipeline.StatusApplied,
			NewStatus:      pipeline.StatusOffer,
			Actor:          pipeline.Actor{Name: "r"},
		}},
		{"missing actor", pipeline.TransitionRequest{
			CandidateID:    "c1",
			ExpectedStatus: pipeline.StatusApplied,
			NewStatus:      pipeline.StatusOffer,
		}},
		{"bad expected status", pipeline.TransitionRequest{
			CandidateID:    "c1",
			ExpectedStatus: "PENDING",
			NewStatus:      pipeline.StatusOffer,
			Actor:          pipeline.Actor{Name: "r"},
		}},
		{"bad new status", pipeline.TransitionRequest{
			CandidateID:    "c1",
			ExpectedStatus: pipeline.StatusApplied,
			NewStatus:      "PENDING",
			Actor:          pipeline.Actor{Name: "r"},
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := coord.Transition(ctx, c.req)
			var ve *pipeline.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestTransition_StorageFailureSurfaced(t *testing.T) {
	storeFake := newMemStore(seedCandidate("c1", pipeline.StatusApplied))
	storeFake.casErr = errors.New("connection reset")
	coord := pipeline.NewCoordinator(storeFake, nil)

	_, err := coord.Transition(context.Background(), transitionReq("c1", pipeline.StatusApplied, pipeline.StatusOffer))
	require.Error(t, err)
	assert.NotErrorIs(t, err, pipeline.ErrConflict)
	assert.NotErrorIs(t, err, pipeline.ErrNotFound)
	assert.ErrorContains(t, err, "connection reset")
}

// Two concurrent writers, both believing the candidate is APPLIED:
// exactly one commit, exactly one conflict, ledger length one.
func TestTransition_ConcurrentWritersOneWins(t *testing.T) {
	storeFake := newMemStore(seedCandidate("c1", pipeline.StatusApplied))
	coord := pipeline.NewCoordinator(storeFake, nil)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, target := range []pipeline.Status{pipeline.StatusOffer, pipeline.StatusRejected} {
		wg.Add(1)
		go func(target pipeline.Status) {
			defer wg.Done()
			_, err := coord.Transition(context.Background(), transitionReq("c1", pipeline.StatusApplied, target))
			results <- err
		}(target)
	}
	wg.Wait()
	close(results)

	var committed, conflicted int
	for err := range results {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, pipeline.ErrConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, committed, "exactly one writer must commit")
	assert.Equal(t, 1, conflicted, "the loser must see a conflict")

	cand, _ := storeFake.FindByID(context.Background(), "c1")
	require.Len(t, cand.StatusHistory, 1)
	assert.Equal(t, cand.StatusHistory[0].NewStatus, cand.CurrentStatus)
}

// ─── Event dispatch ───────────────────────────────────────────────────────────

func TestTransition_EmitsStatusChangedEvent(t *testing.T) {
	storeFake := newMemStore(seedCandidate("c1", pipeline.StatusApplied))
	sink := newMemSink()
	coord := pipeline.NewCoordinator(storeFake, sink)

	_, err := coord.Transition(context.Background(), transitionReq("c1", pipeline.StatusApplied, pipeline.StatusHired))
	require.NoError(t, err)

	ev := sink.wait(t)
	assert.Equal(t, "c1", ev.CandidateID)
	assert.Equal(t, "Ada Lovelace", ev.CandidateName)
	assert.Equal(t, pipeline.StatusApplied, ev.OldStatus)
	assert.Equal(t, pipeline.StatusHired, ev.NewStatus)
	assert.Equal(t, "recruiter-1", ev.ChangedBy)
}

// A failing sink must not fail or roll back the committed transition.
func TestTransition_SinkFailureIsSwallowed(t *testing.T) {
	storeFake := newMemStore(seedCandidate("c1", pipeline.StatusApplied))
	sink := newMemSink()
	sink.err = errors.New("broker down")
	coord := pipeline.NewCoordinator(storeFake, sink)

	_, err := coord.Transition(context.Background(), transitionReq("c1", pipeline.StatusApplied, pipeline.StatusOffer))
	require.NoError(t, err)

	cand, _ := storeFake.FindByID(context.Background(), "c1")
	assert.Equal(t, pipeline.StatusOffer, cand.CurrentStatus)
}

// No conflict when losers stay away: a retry after re-reading succeeds.
func TestTransition_RetryAfterConflict(t *testing.T) {
	storeFake := newMemStore(seedCandidate("c1", pipeline.StatusApplied))
	coord := pipeline.NewCoordinator(storeFake, nil)
	ctx := context.Background()

	_, err := coord.Transition(ctx, transitionReq("c1", pipeline.StatusApplied, pipeline.StatusOffer))
	require.NoError(t, err)

	_, err = coord.Transition(ctx, transitionReq("c1", pipeline.StatusApplied, pipeline.StatusRejected))
	require.ErrorIs(t, err, pipeline.ErrConflict)

	// Re-read, re-decide, retry with the fresh expected status.
	cand, err := storeFake.FindByID(ctx, "c1")
	require.NoError(t, err)
	_, err = coord.Transition(ctx, transitionReq("c1", cand.CurrentStatus, pipeline.StatusRejected))
	assert.NoError(t, err)
}
