// Package pipeline tracks candidates through the hiring pipeline.
//
// Conventional stage order:
//
//	APPLIED ──► REFERENCE_CHECK ──► OFFER ──► HIRED
//
// with REJECTED and WITHDRAWN reachable from any stage. The model does
// not enforce a transition graph: any
// status may follow any other. What it does enforce is that every
// change goes through the Coordinator, which records it in the
// candidate's history ledger under an optimistic-concurrency guard.
package pipeline

import "fmt"

// Status values mirror the candidate_status enum in PostgreSQL.
type Status string

const (
	StatusApplied        Status = "APPLIED"
	StatusReferenceCheck Status = "REFERENCE_CHECK"
	StatusOffer          Status = "OFFER"
	StatusHired          Status = "HIRED"
	StatusRejected       Status = "REJECTED"
	StatusWithdrawn      Status = "WITHDRAWN"
)

// StatusDefault is the status a candidate holds before any recorded
// transition (a freshly created candidate has an empty ledger).
const StatusDefault = StatusApplied

// AllStatuses lists every pipeline status in conventional order.
// Funnel reporting iterates this slice so output order is stable.
var AllStatuses = []Status{
	StatusApplied,
	StatusReferenceCheck,
	StatusOffer,
	StatusHired,
	StatusRejected,
	StatusWithdrawn,
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusApplied, StatusReferenceCheck, StatusOffer, StatusHired, StatusRejected, StatusWithdrawn:
		return st, nil
	}
	return "", fmt.Errorf("unknown candidate status %q", s)
}

// IsHired returns true when status is HIRED (the terminal status
// time-to-hire analytics key off).
func IsHired(s Status) bool { return s == StatusHired }

// Source tags the provenance of a status change.
type Source string

const (
	SourceManual     Source = "manual"
	SourceAutomation Source = "automation"
	SourceBulkAction Source = "bulk_action"
	SourceAPI        Source = "api"
	SourceMigration  Source = "migration"
)

// ParseSource converts a raw string to a Source. The empty string maps
// to SourceManual — callers that don't tag provenance are human ones.
func ParseSource(s string) (Source, error) {
	if s == "" {
		return SourceManual, nil
	}
	src := Source(s)
	switch src {
	case SourceManual, SourceAutomation, SourceBulkAction, SourceAPI, SourceMigration:
		return src, nil
	}
	return "", fmt.Errorf("unknown change source %q", s)
}
