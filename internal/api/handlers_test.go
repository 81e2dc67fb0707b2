package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"forge-logd/internal/ingest"
	"forge-logd/internal/monitor"
	"forge-logd/internal/storage"
)

type fakeStore struct {
	saveErr   error
	recordErr error

	saved    [][]*ingest.Execution
	failures []recordedFailure

	executions []storage.ExecutionSummary
	listErr    error
}

type recordedFailure struct {
	payload any
	cause   string
}

func (s *fakeStore) SaveExecutions(_ context.Context, execs []*ingest.Execution) ([]int64, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	s.saved = append(s.saved, execs)
	ids := make([]int64, len(execs))
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids, nil
}

func (s *fakeStore) RecordFailure(_ context.Context, payload any, cause string) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.failures = append(s.failures, recordedFailure{payload, cause})
	return nil
}

func (s *fakeStore) ListExecutions(_ context.Context, _ int) ([]storage.ExecutionSummary, error) {
	return s.executions, s.listErr
}

func (s *fakeStore) ListFailures(_ context.Context, _ int) ([]storage.FailedLog, error) {
	return nil, s.listErr
}

func ingestRequest(body string) (*httptest.ResponseRecorder, *http.Request) {
	req := httptest.NewRequest("POST", "/logs", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	return httptest.NewRecorder(), req
}

const validBatch = `[
	{"log-type": "execution", "user": "a@b.edu", "filename": "forge1.rkt.bak",
	 "project": "p1", "time": 1, "raw": "#lang forge", "mode": "forge/core"},
	{"log-type": "run", "raw": "(run r1)", "spec": {}},
	{"log-type": "instance", "run-id": 0, "label": "sat", "instances": [{"sig": "A"}]}
]`

func TestHandleIngest_Success(t *testing.T) {
	store := &fakeStore{}
	h := NewHandlers(store, monitor.NewMetrics())

	w, r := ingestRequest(validBatch)
	h.HandleIngest(w, r)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Body.String(); got != msgSuccess {
		t.Errorf("body = %q, want %q", got, msgSuccess)
	}
	if len(store.saved) != 1 || len(store.saved[0]) != 1 {
		t.Fatalf("saved batches = %v, want one batch with one execution", store.saved)
	}
	if len(store.failures) != 0 {
		t.Error("successful batch must not be dead-lettered")
	}
	if got := store.saved[0][0].User; got != "a@b.edu" {
		t.Errorf("execution user = %q, want %q", got, "a@b.edu")
	}
}

func TestHandleIngest_MalformedJSON(t *testing.T) {
	store := &fakeStore{}
	h := NewHandlers(store, monitor.NewMetrics())

	w, r := ingestRequest(`[{"log-type": "execution"`)
	h.HandleIngest(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := w.Body.String(); got != msgParseFailure {
		t.Errorf("body = %q, want %q", got, msgParseFailure)
	}
	// Parse failures are rejected outright, never dead-lettered.
	if len(store.failures) != 0 {
		t.Errorf("failures = %v, want none", store.failures)
	}
}

func TestHandleIngest_NotAnArray_DeadLetters(t *testing.T) {
	store := &fakeStore{}
	h := NewHandlers(store, monitor.NewMetrics())

	w, r := ingestRequest(`{"log-type": "execution"}`)
	h.HandleIngest(w, r)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Body.String(); got != msgDeadLettered {
		t.Errorf("body = %q, want %q", got, msgDeadLettered)
	}
	if len(store.failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(store.failures))
	}
	if !strings.HasPrefix(store.failures[0].cause, "translating events:") {
		t.Errorf("cause = %q, want translating prefix", store.failures[0].cause)
	}
}

func TestHandleIngest_TranslationError_DeadLetters(t *testing.T) {
	store := &fakeStore{}
	h := NewHandlers(store, monitor.NewMetrics())

	// A run event with no preceding execution cannot be folded into a tree.
	w, r := ingestRequest(`[{"log-type": "run", "raw": "(run r1)", "spec": {}}]`)
	h.HandleIngest(w, r)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Body.String(); got != msgDeadLettered {
		t.Errorf("body = %q, want %q", got, msgDeadLettered)
	}
	if len(store.saved) != 0 {
		t.Error("failed batch must not reach the database")
	}
	if len(store.failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(store.failures))
	}

	// The dead-lettered payload is the decoded batch, not the raw bytes.
	payload, ok := store.failures[0].payload.([]any)
	if !ok {
		t.Fatalf("payload type = %T, want []any", store.failures[0].payload)
	}
	if len(payload) != 1 {
		t.Errorf("payload events = %d, want 1", len(payload))
	}
}

func TestHandleIngest_PersistenceError_DeadLetters(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("connection refused")}
	h := NewHandlers(store, monitor.NewMetrics())

	w, r := ingestRequest(validBatch)
	h.HandleIngest(w, r)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Body.String(); got != msgDeadLettered {
		t.Errorf("body = %q, want %q", got, msgDeadLettered)
	}
	if len(store.failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(store.failures))
	}
	cause := store.failures[0].cause
	if !strings.HasPrefix(cause, "writing to database:") || !strings.Contains(cause, "connection refused") {
		t.Errorf("cause = %q, want database prefix with underlying error", cause)
	}
}

func TestHandleIngest_DeadLetterFailure(t *testing.T) {
	store := &fakeStore{
		saveErr:   errors.New("connection refused"),
		recordErr: errors.New("still down"),
	}
	h := NewHandlers(store, monitor.NewMetrics())

	w, r := ingestRequest(validBatch)
	h.HandleIngest(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := w.Body.String(); got != msgUnrecoverable {
		t.Errorf("body = %q, want %q", got, msgUnrecoverable)
	}
}

func TestHandleIngest_EmptyBatch(t *testing.T) {
	store := &fakeStore{}
	h := NewHandlers(store, monitor.NewMetrics())

	w, r := ingestRequest(`[]`)
	h.HandleIngest(w, r)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Body.String(); got != msgSuccess {
		t.Errorf("body = %q, want %q", got, msgSuccess)
	}
	if len(store.saved) != 1 || len(store.saved[0]) != 0 {
		t.Errorf("saved = %v, want one empty batch", store.saved)
	}
}

func TestHandleListExecutions(t *testing.T) {
	store := &fakeStore{executions: []storage.ExecutionSummary{
		{ID: 1, Email: "a@b.edu", Project: "p1", Filename: "forge1.rkt.abcd1234"},
	}}
	h := NewHandlers(store, monitor.NewMetrics())

	w := httptest.NewRecorder()
	h.HandleListExecutions(w, httptest.NewRequest("GET", "/executions?limit=10", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got []storage.ExecutionSummary
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 || got[0].Email != "a@b.edu" {
		t.Errorf("response = %+v, want the stored summary", got)
	}
}

func TestHandleListExecutions_QueryError(t *testing.T) {
	store := &fakeStore{listErr: errors.New("timeout")}
	h := NewHandlers(store, monitor.NewMetrics())

	w := httptest.NewRecorder()
	h.HandleListExecutions(w, httptest.NewRequest("GET", "/executions", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp.Code != "INTERNAL" {
		t.Errorf("code = %q, want INTERNAL", resp.Code)
	}
}

func TestLimitParam(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"/executions", 100},
		{"/executions?limit=25", 25},
		{"/executions?limit=abc", 100},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", tt.url, nil)
		if got := limitParam(r); got != tt.want {
			t.Errorf("limitParam(%q) = %d, want %d", tt.url, got, tt.want)
		}
	}
}
