package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"forge-logd/internal/event"
	"forge-logd/internal/ingest"
	"forge-logd/internal/monitor"
	"forge-logd/internal/storage"
)

// Store is the persistence surface the handlers need; tests substitute a
// fake.
type Store interface {
	SaveExecutions(ctx context.Context, execs []*ingest.Execution) ([]int64, error)
	RecordFailure(ctx context.Context, payload any, cause string) error
	ListExecutions(ctx context.Context, limit int) ([]storage.ExecutionSummary, error)
	ListFailures(ctx context.Context, limit int) ([]storage.FailedLog, error)
}

type Handlers struct {
	store   Store
	metrics *monitor.Metrics
	tracer  *monitor.Tracer
}

func NewHandlers(store Store, metrics *monitor.Metrics) *Handlers {
	return &Handlers{
		store:   store,
		metrics: metrics,
		tracer:  monitor.NewTracer(),
	}
}

// HandleIngest is the webhook entrypoint: decode the batch, fold it into
// execution trees, persist everything in one transaction, and fall back to
// the dead-letter path on any translation or persistence failure.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeText(w, http.StatusBadRequest, msgParseFailure)
		h.metrics.RecordBatch(monitor.OutcomeParseError, time.Since(start).Seconds())
		return
	}
	h.metrics.BatchSizeBytes.Observe(float64(len(body)))

	ctx, span := h.tracer.StartSpan(r.Context(), "batch",
		monitor.AttrBatchBytes.Int(len(body)))
	defer span.End()

	events, err := event.Decode(body)
	if errors.Is(err, event.ErrInvalidJSON) {
		log.Warn().
			Err(err).
			Str("request_id", RequestIDFromContext(ctx)).
			Msg("failed to parse request body")
		writeText(w, http.StatusBadRequest, msgParseFailure)
		h.metrics.RecordBatch(monitor.OutcomeParseError, time.Since(start).Seconds())
		return
	}
	if err != nil {
		h.failover(ctx, w, body, "translating events: "+err.Error(), start)
		return
	}

	span.SetAttributes(monitor.AttrBatchEvents.Int(len(events)))
	for _, ev := range events {
		h.metrics.RecordEvent(ev.Type)
	}

	execs, err := ingest.Build(events)
	if err != nil {
		h.failover(ctx, w, body, "translating events: "+err.Error(), start)
		return
	}

	ids, err := h.store.SaveExecutions(ctx, execs)
	if err != nil {
		h.failover(ctx, w, body, "writing to database: "+err.Error(), start)
		return
	}

	h.metrics.ExecutionsPersisted.Add(float64(len(ids)))
	h.metrics.RecordBatch(monitor.OutcomePersisted, time.Since(start).Seconds())
	span.SetAttributes(
		monitor.AttrExecutions.Int(len(ids)),
		monitor.AttrOutcome.String(monitor.OutcomePersisted),
	)

	log.Info().
		Int("events", len(events)).
		Int("executions", len(ids)).
		Str("request_id", RequestIDFromContext(ctx)).
		Msg("batch persisted")

	writeText(w, http.StatusCreated, msgSuccess)
}

// failover dead-letters the whole raw payload. The recorder's own failure
// is the only unrecoverable tier: logged for the operator, generic failure
// to the caller.
func (h *Handlers) failover(ctx context.Context, w http.ResponseWriter, body []byte, cause string, start time.Time) {
	log.Error().
		Str("cause", cause).
		Str("request_id", RequestIDFromContext(ctx)).
		Msg("batch failed, dead-lettering payload")

	ctx, span := h.tracer.StartSpan(ctx, "dead_letter")
	defer span.End()

	// The payload decoded cleanly or we would have rejected it as a parse
	// error; decode it again so filenames can be normalized in place.
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		payload = string(body)
	}

	if err := h.store.RecordFailure(ctx, payload, cause); err != nil {
		log.Error().
			Err(err).
			Str("original_cause", cause).
			Str("request_id", RequestIDFromContext(ctx)).
			Msg("dead-letter write failed, payload lost")
		h.metrics.RecordBatch(monitor.OutcomeDeadLetterFailed, time.Since(start).Seconds())
		span.SetAttributes(monitor.AttrOutcome.String(monitor.OutcomeDeadLetterFailed))
		writeText(w, http.StatusBadRequest, msgUnrecoverable)
		return
	}

	h.metrics.DeadLettersTotal.Inc()
	h.metrics.RecordBatch(monitor.OutcomeDeadLettered, time.Since(start).Seconds())
	span.SetAttributes(monitor.AttrOutcome.String(monitor.OutcomeDeadLettered))
	writeText(w, http.StatusCreated, msgDeadLettered)
}

func (h *Handlers) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := h.store.ListExecutions(r.Context(), limitParam(r))
	if err != nil {
		log.Error().Err(err).Msg("listing executions failed")
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func (h *Handlers) HandleListFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := h.store.ListFailures(r.Context(), limitParam(r))
	if err != nil {
		log.Error().Err(err).Msg("listing failures failed")
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}
	writeJSON(w, http.StatusOK, failures)
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 100
	}
	return limit
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, msg); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
