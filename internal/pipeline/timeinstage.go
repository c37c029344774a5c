package pipeline

import "time"

// DefaultStuckThresholdDays is used when a caller passes a non-positive
// threshold to IsStuck or the aggregate entry points.
const DefaultStuckThresholdDays = 14

// StageInterval is one occupied stage reconstructed from the ledger.
// EndDate is nil for the current, open-ended stage.
type StageInterval struct {
	Status       Status     `json:"status"`
	StartDate    time.Time  `json:"startDate"`
	EndDate      *time.Time `json:"endDate"`
	DurationMs   int64      `json:"durationMs"`
	DurationDays float64    `json:"durationDays"`
}

// CandidateTimeReport is the per-candidate view of time spent in the
// pipeline, reconstructed from the history ledger at a given instant.
type CandidateTimeReport struct {
	CandidateID        string          `json:"candidateId"`
	CurrentStatus      Status          `json:"currentStatus"`
	TimeInCurrentStage time.Duration   `json:"-"`
	DaysInCurrentStage float64         `json:"daysInCurrentStage"`
	StageBreakdown     []StageInterval `json:"stageBreakdown"`
	TotalTimeInProcess time.Duration   `json:"-"`
	TotalDaysInProcess float64         `json:"totalDaysInProcess"`
	StatusChangeCount  int             `json:"statusChangeCount"`
}

// ComputeForCandidate reconstructs stage durations from the candidate's
// ledger as of now. It is a pure function: it never mutates the
// candidate and tolerates an empty ledger (a candidate with no recorded
// transitions has been in its default stage since creation).
//
// Entry i's newStatus defines the stage occupied from entry[i].changedAt
// until entry[i+1].changedAt, or until now for the last entry. When
// history exists, process start is the first recorded transition, not
// dateCreated.
func ComputeForCandidate(c *Candidate, now time.Time) *CandidateTimeReport {
	report := &CandidateTimeReport{
		CandidateID:       c.ID,
		CurrentStatus:     c.CurrentStatus,
		StatusChangeCount: len(c.StatusHistory),
		StageBreakdown:    []StageInterval{},
	}

	if len(c.StatusHistory) == 0 {
		elapsed := now.Sub(c.DateCreated)
		report.TimeInCurrentStage = elapsed
		report.TotalTimeInProcess = elapsed
		report.DaysInCurrentStage = durationDays(elapsed)
		report.TotalDaysInProcess = durationDays(elapsed)
		return report
	}

	for i, entry := range c.StatusHistory {
		interval := StageInterval{
			Status:    entry.NewStatus,
			StartDate: entry.ChangedAt,
		}
		if i+1 < len(c.StatusHistory) {
			end := c.StatusHistory[i+1].ChangedAt
			interval.EndDate = &end
			interval.DurationMs = end.Sub(entry.ChangedAt).Milliseconds()
			interval.DurationDays = durationDays(end.Sub(entry.ChangedAt))
		} else {
			interval.DurationMs = now.Sub(entry.ChangedAt).Milliseconds()
			interval.DurationDays = durationDays(now.Sub(entry.ChangedAt))
		}
		report.StageBreakdown = append(report.StageBreakdown, interval)
	}

	first := c.StatusHistory[0]
	last := c.StatusHistory[len(c.StatusHistory)-1]
	report.TimeInCurrentStage = now.Sub(last.ChangedAt)
	report.TotalTimeInProcess = now.Sub(first.ChangedAt)
	report.DaysInCurrentStage = durationDays(report.TimeInCurrentStage)
	report.TotalDaysInProcess = durationDays(report.TotalTimeInProcess)
	return report
}

// IsStuck reports whether the candidate has sat in its current stage
// for strictly more than thresholdDays. Non-positive thresholds fall
// back to DefaultStuckThresholdDays.
func (r *CandidateTimeReport) IsStuck(thresholdDays int) bool {
	if thresholdDays <= 0 {
		thresholdDays = DefaultStuckThresholdDays
	}
	return r.DaysInCurrentStage > float64(thresholdDays)
}

func durationDays(d time.Duration) float64 {
	return d.Hours() / 24
}
