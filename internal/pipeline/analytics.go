package pipeline

import (
	"context"
	"math"
	"sort"
	"time"
)

// ─── Report types ─────────────────────────────────────────────────────────────

// BottleneckStage is a stage whose average occupancy time across the
// population exceeds half the stuck threshold.
type BottleneckStage struct {
	Status         Status  `json:"status"`
	AverageDays    float64 `json:"averageDays"`
	MedianDays     float64 `json:"medianDays"`
	CandidateCount int     `json:"candidateCount"`
}

// StuckCandidate is a candidate whose time in its current stage exceeds
// the stuck threshold.
type StuckCandidate struct {
	CandidateID        string  `json:"candidateId"`
	Name               string  `json:"name"`
	CurrentStatus      Status  `json:"currentStatus"`
	DaysInCurrentStage float64 `json:"daysInCurrentStage"`
}

// FunnelStage reports the share of candidates currently sitting in one
// status. conversionRate is that status's share of the whole current
// population, not a stage-to-stage progression rate.
type FunnelStage struct {
	Status         Status  `json:"status"`
	Count          int     `json:"count"`
	ConversionRate float64 `json:"conversionRate"`
	DropOffRate    float64 `json:"dropOffRate"`
	AverageDays    float64 `json:"averageDays"`
}

// SystemWideTimeAnalytics is the population-wide report over every
// candidate's stage breakdown. It is a best-effort snapshot as of
// GeneratedAt, not a transactionally consistent one.
type SystemWideTimeAnalytics struct {
	TotalCandidates       int                `json:"totalCandidates"`
	TotalStatusChanges    int                `json:"totalStatusChanges"`
	AverageDaysByStage    map[Status]float64 `json:"averageDaysByStage"`
	MedianDaysByStage     map[Status]float64 `json:"medianDaysByStage"`
	Bottlenecks           []BottleneckStage  `json:"bottleneckStages"`
	StuckCandidates       []StuckCandidate   `json:"stuckCandidates"`
	ConversionFunnel      []FunnelStage      `json:"conversionFunnel"`
	AverageTimeToHireDays float64            `json:"averageTimeToHireDays"`
	ThresholdDays         int                `json:"thresholdDays"`
	GeneratedAt           time.Time          `json:"generatedAt"`
}

// ─── Aggregation ─────────────────────────────────────────────────────────────

// ComputeSystemWide aggregates time-in-stage statistics across the
// whole candidate population. thresholdDays drives both stuck detection
// and bottleneck detection (a bottleneck is any stage averaging more
// than thresholdDays/2); non-positive values fall back to
// DefaultStuckThresholdDays.
//
// The context is checked between candidates; on cancellation the
// function returns ctx.Err() and no partial report.
func ComputeSystemWide(ctx context.Context, candidates []Candidate, thresholdDays int, now time.Time) (*SystemWideTimeAnalytics, error) {
	if thresholdDays <= 0 {
		thresholdDays = DefaultStuckThresholdDays
	}

	pools := make(map[Status][]float64)
	poolMembers := make(map[Status]map[string]struct{})
	currentCount := make(map[Status]int)
	var stuck []StuckCandidate
	var hireDays []float64
	totalChanges := 0

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := &candidates[i]
		report := ComputeForCandidate(c, now)
		totalChanges += report.StatusChangeCount
		currentCount[c.CurrentStatus]++

		for _, interval := range report.StageBreakdown {
			pools[interval.Status] = append(pools[interval.Status], interval.DurationDays)
			if poolMembers[interval.Status] == nil {
				poolMembers[interval.Status] = make(map[string]struct{})
			}
			poolMembers[interval.Status][c.ID] = struct{}{}
		}

		if report.IsStuck(thresholdDays) {
			stuck = append(stuck, StuckCandidate{
				CandidateID:        c.ID,
				Name:               c.Name,
				CurrentStatus:      c.CurrentStatus,
				DaysInCurrentStage: round1(report.DaysInCurrentStage),
			})
		}

		if IsHired(c.CurrentStatus) {
			hireDays = append(hireDays, report.TotalDaysInProcess)
		}
	}

	analytics := &SystemWideTimeAnalytics{
		TotalCandidates:    len(candidates),
		TotalStatusChanges: totalChanges,
		AverageDaysByStage: make(map[Status]float64, len(pools)),
		MedianDaysByStage:  make(map[Status]float64, len(pools)),
		StuckCandidates:    []StuckCandidate{},
		Bottlenecks:        []BottleneckStage{},
		ThresholdDays:      thresholdDays,
		GeneratedAt:        now,
	}

	for status, pool := range pools {
		analytics.AverageDaysByStage[status] = round1(mean(pool))
		analytics.MedianDaysByStage[status] = round1(median(pool))
	}

	// Bottlenecks: stages averaging more than half the stuck threshold,
	// worst first. Iterate AllStatuses so ties keep a stable order.
	cutoff := float64(thresholdDays) / 2
	for _, status := range AllStatuses {
		pool, ok := pools[status]
		if !ok {
			continue
		}
		avg := round1(mean(pool))
		if avg > cutoff {
			analytics.Bottlenecks = append(analytics.Bottlenecks, BottleneckStage{
				Status:         status,
				AverageDays:    avg,
				MedianDays:     round1(median(pool)),
				CandidateCount: len(poolMembers[status]),
			})
		}
	}
	sort.SliceStable(analytics.Bottlenecks, func(i, j int) bool {
		return analytics.Bottlenecks[i].AverageDays > analytics.Bottlenecks[j].AverageDays
	})

	sort.SliceStable(stuck, func(i, j int) bool {
		return stuck[i].DaysInCurrentStage > stuck[j].DaysInCurrentStage
	})
	analytics.StuckCandidates = append(analytics.StuckCandidates, stuck...)

	analytics.ConversionFunnel = buildFunnel(currentCount, analytics.AverageDaysByStage, len(candidates))

	if len(hireDays) > 0 {
		analytics.AverageTimeToHireDays = round1(mean(hireDays))
	}

	return analytics, nil
}

// buildFunnel reports, per status, how many candidates currently sit
// there and that count as a share of the total population.
func buildFunnel(currentCount map[Status]int, avgByStage map[Status]float64, total int) []FunnelStage {
	funnel := make([]FunnelStage, 0, len(AllStatuses))
	for _, status := range AllStatuses {
		stage := FunnelStage{
			Status:      status,
			Count:       currentCount[status],
			AverageDays: avgByStage[status],
		}
		if total > 0 {
			stage.ConversionRate = round1(float64(stage.Count) / float64(total) * 100)
			stage.DropOffRate = round1(100 - stage.ConversionRate)
		}
		funnel = append(funnel, stage)
	}
	return funnel
}

// AverageTimeBetween computes the mean days elapsed between a candidate
// entering fromStatus and next entering toStatus, across all candidates.
//
// Per ledger, only the most recent fromStatus occurrence before a
// matching toStatus counts: a later fromStatus entry overwrites an
// unmatched earlier one, and a match consumes the occurrence so it
// cannot pair twice. Returns 0 when no pair exists anywhere.
func AverageTimeBetween(ctx context.Context, from, to Status, candidates []Candidate) (float64, error) {
	var durations []float64
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var fromTime *time.Time
		for _, entry := range candidates[i].StatusHistory {
			switch {
			case entry.NewStatus == from:
				t := entry.ChangedAt
				fromTime = &t
			case entry.NewStatus == to && fromTime != nil:
				durations = append(durations, durationDays(entry.ChangedAt.Sub(*fromTime)))
				fromTime = nil
			}
		}
	}
	if len(durations) == 0 {
		return 0, nil
	}
	return round1(mean(durations)), nil
}

// ─── Small math helpers ───────────────────────────────────────────────────────

func mean(pool []float64) float64 {
	if len(pool) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range pool {
		sum += v
	}
	return sum / float64(len(pool))
}

// median of a pool: middle value for odd sizes, mean of the two middle
// values for even sizes.
func median(pool []float64) float64 {
	if len(pool) == 0 {
		return 0
	}
	sorted := append([]float64(nil), pool...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
