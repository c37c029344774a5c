// talenttrack-pipeline-service
//
// Candidate status transition coordinator + time-in-stage analytics.
// Exposes a REST API used by the Gateway to implement:
//   - transition(candidateId, expectedStatus, newStatus) — atomic CAS change
//   - candidate analytics                                — per-candidate durations
//   - system analytics                                   — bottlenecks, funnel, stuck list
//   - time-between                                       — avg days between two stages
//
// Publishes EVENT_STATUS_CHANGED to Redis for Gateway SSE forward, and
// refreshes a cached system-analytics snapshot on a cron schedule.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talenttrack/pipeline-service/internal/config"
	"talenttrack/pipeline-service/internal/db"
	"talenttrack/pipeline-service/internal/events"
	"talenttrack/pipeline-service/internal/pipeline"
	"talenttrack/pipeline-service/internal/snapshot"
	"talenttrack/pipeline-service/internal/store"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[pipeline-service] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[pipeline-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[pipeline-service] PostgreSQL: %v", err)
	}
	defer pool.Close()
	log.Println("[pipeline-service] PostgreSQL connected ✓")

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[pipeline-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[pipeline-service] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[pipeline-service] Redis connected ✓")

	// ── Core wiring ──────────────────────────────────────────────────────────
	candidates := store.NewPostgres(pool)
	sink := events.NewRedisSink(rdb)
	coord := pipeline.NewCoordinator(candidates, sink)

	// ── Snapshot cron ────────────────────────────────────────────────────────
	sched := snapshot.New(candidates, rdb, cfg.StuckThresholdDays, cfg.AnalyticsRefreshHours)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[pipeline-service] Scheduler: %v", err)
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)

	h := pipeline.NewHandler(coord, candidates, cfg.StuckThresholdDays)
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[pipeline-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[pipeline-service] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[pipeline-service] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[pipeline-service] Shutdown error: %v", err)
	}
	log.Println("[pipeline-service] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "pipeline-service",
		"version": version,
	})
}
