// HTTP surface for the pipeline core.
//
// All mutating routes expect x-user-id (and optionally x-user-email)
// headers forwarded by the Gateway.
//
// Routes:
//
//	POST /candidates/{id}/transition   → atomic status change (CAS)
//	GET  /candidates/{id}/analytics    → per-candidate time-in-stage report
//	GET  /analytics/system             → population-wide analytics
//	GET  /analytics/time-between       → avg days between two statuses

package pipeline

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func nowUTC() time.Time { return time.Now().UTC() }

// Handler holds shared dependencies for the HTTP surface.
type Handler struct {
	coord         *Coordinator
	store         CandidateStore
	thresholdDays int
}

// NewHandler returns a configured Handler. thresholdDays is the default
// stuck threshold; every analytics route accepts a ?thresholdDays=
// override.
func NewHandler(coord *Coordinator, store CandidateStore, thresholdDays int) *Handler {
	if thresholdDays <= 0 {
		thresholdDays = DefaultStuckThresholdDays
	}
	return &Handler{coord: coord, store: store, thresholdDays: thresholdDays}
}

// RegisterRoutes mounts all pipeline-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/candidates/", h.handleCandidateAction)
	mux.HandleFunc("/analytics/system", h.systemAnalytics)
	mux.HandleFunc("/analytics/time-between", h.timeBetween)
}

// ─── Route dispatch ───────────────────────────────────────────────────────────

// handleCandidateAction handles /candidates/{id}/transition|analytics
func (h *Handler) handleCandidateAction(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}

	candidateID := parts[1]
	action := parts[2]

	switch action {
	case "transition":
		if r.Method != http.MethodPost {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.transition(w, r, candidateID)
	case "analytics":
		if r.Method != http.MethodGet {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.candidateAnalytics(w, r, candidateID)
	default:
		jsonError(w, "unknown action "+strconv.Quote(action), http.StatusNotFound)
	}
}

// ─── Individual handlers ──────────────────────────────────────────────────────

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, candidateID string) {
	actor := Actor{
		Name:  r.Header.Get("x-user-id"),
		Email: r.Header.Get("x-user-email"),
	}
	if actor.Name == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	var body struct {
		ExpectedStatus string `json:"expectedStatus"`
		NewStatus      string `json:"newStatus"`
		Reason         string `json:"reason"`
		Notes          string `json:"notes"`
		Source         string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	expected, err := ParseStatus(body.ExpectedStatus)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	newStatus, err := ParseStatus(body.NewStatus)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	source, err := ParseSource(body.Source)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := h.coord.Transition(r.Context(), TransitionRequest{
		CandidateID:    candidateID,
		ExpectedStatus: expected,
		NewStatus:      newStatus,
		Actor:          actor,
		Reason:         body.Reason,
		Notes:          body.Notes,
		Source:         source,
	})
	if err != nil {
		h.transitionError(w, r, candidateID, err)
		return
	}

	jsonOK(w, entry)
}

// transitionError maps coordinator outcomes to HTTP statuses. A 409
// carries the stored current status so the caller can re-decide and
// retry without an extra round trip.
func (h *Handler) transitionError(w http.ResponseWriter, r *http.Request, candidateID string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		jsonError(w, "candidate not found", http.StatusNotFound)
	case errors.Is(err, ErrConflict):
		resp := map[string]string{"error": err.Error()}
		if cand, ferr := h.store.FindByID(r.Context(), candidateID); ferr == nil {
			resp["currentStatus"] = string(cand.CurrentStatus)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(resp)
	default:
		var ve *ValidationError
		if errors.As(err, &ve) {
			jsonError(w, ve.Msg, http.StatusBadRequest)
			return
		}
		log.Printf("[pipeline] transition error for candidate %s: %v", candidateID, err)
		jsonError(w, "storage error", http.StatusInternalServerError)
	}
}

func (h *Handler) candidateAnalytics(w http.ResponseWriter, r *http.Request, candidateID string) {
	cand, err := h.store.FindByID(r.Context(), candidateID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			jsonError(w, "candidate not found", http.StatusNotFound)
			return
		}
		log.Printf("[pipeline] candidateAnalytics error: %v", err)
		jsonError(w, "storage error", http.StatusInternalServerError)
		return
	}

	threshold := h.threshold(r)
	report := ComputeForCandidate(cand, nowUTC())

	jsonOK(w, struct {
		*CandidateTimeReport
		IsStuck       bool `json:"isStuck"`
		ThresholdDays int  `json:"thresholdDays"`
	}{report, report.IsStuck(threshold), threshold})
}

func (h *Handler) systemAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	candidates, err := h.store.FindAll(r.Context(), true)
	if err != nil {
		log.Printf("[pipeline] systemAnalytics FindAll error: %v", err)
		jsonError(w, "storage error", http.StatusInternalServerError)
		return
	}

	report, err := ComputeSystemWide(r.Context(), candidates, h.threshold(r), nowUTC())
	if err != nil {
		jsonError(w, "analytics aborted: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	jsonOK(w, report)
}

func (h *Handler) timeBetween(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	from, err := ParseStatus(r.URL.Query().Get("from"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := ParseStatus(r.URL.Query().Get("to"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	candidates, err := h.store.FindAll(r.Context(), true)
	if err != nil {
		log.Printf("[pipeline] timeBetween FindAll error: %v", err)
		jsonError(w, "storage error", http.StatusInternalServerError)
		return
	}

	avg, err := AverageTimeBetween(r.Context(), from, to, candidates)
	if err != nil {
		jsonError(w, "analytics aborted: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	jsonOK(w, map[string]any{
		"fromStatus":  from,
		"toStatus":    to,
		"averageDays": avg,
	})
}

// threshold returns the stuck threshold for this request, honoring a
// positive ?thresholdDays= override.
func (h *Handler) threshold(r *http.Request) int {
	if s := r.URL.Query().Get("thresholdDays"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return h.thresholdDays
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
