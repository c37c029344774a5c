// Package snapshot wires up the cron job that periodically recomputes
// system-wide analytics and caches the result in Redis, so dashboard
// consumers can read a recent report without hitting PostgreSQL.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"talenttrack/pipeline-service/internal/pipeline"
)

// CacheKey holds the latest serialized SystemWideTimeAnalytics report.
const CacheKey = "analytics:system:latest"

// Scheduler wraps robfig/cron and manages the recompute loop.
type Scheduler struct {
	cron          *cron.Cron
	store         pipeline.CandidateStore
	rdb           *redis.Client
	thresholdDays int
	spec          string // cron spec, e.g. "@every 6h"
	ttl           time.Duration
}

// New creates a Scheduler that refreshes the cached report every
// intervalHours hours. The cache TTL is twice the interval so a single
// missed run never serves consumers a stale-forever report.
func New(store pipeline.CandidateStore, rdb *redis.Client, thresholdDays, intervalHours int) *Scheduler {
	return &Scheduler{
		cron:          cron.New(cron.WithLogger(cron.DefaultLogger)),
		store:         store,
		rdb:           rdb,
		thresholdDays: thresholdDays,
		spec:          fmt.Sprintf("@every %dh", intervalHours),
		ttl:           time.Duration(2*intervalHours) * time.Hour,
	}
}

// Start registers the job and starts the scheduler. Also runs one
// refresh immediately so the cache is warm without waiting for the
// first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.refresh(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[snapshot] Cron started — spec: %s", s.spec)

	go s.refresh(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[snapshot] Cron stopped")
}

// refresh recomputes the system-wide report and writes it to Redis.
// Errors are logged, never fatal — the next tick retries.
func (s *Scheduler) refresh(ctx context.Context) {
	log.Println("[snapshot] Analytics refresh started")

	candidates, err := s.store.FindAll(ctx, true)
	if err != nil {
		log.Printf("[snapshot] FindAll error: %v", err)
		return
	}

	report, err := pipeline.ComputeSystemWide(ctx, candidates, s.thresholdDays, time.Now().UTC())
	if err != nil {
		log.Printf("[snapshot] ComputeSystemWide aborted: %v", err)
		return
	}

	payload, err := json.Marshal(report)
	if err != nil {
		log.Printf("[snapshot] marshal report: %v", err)
		return
	}

	if err := s.rdb.Set(ctx, CacheKey, payload, s.ttl).Err(); err != nil {
		log.Printf("[snapshot] cache write failed: %v", err)
		return
	}

	log.Printf("[snapshot] Analytics refresh complete — %d candidate(s)", report.TotalCandidates)
}
