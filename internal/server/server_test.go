package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/truthgraph/truthgraph/internal/model"
	"github.com/truthgraph/truthgraph/internal/task"
)

// mockCoordinator serves canned tasks and verdicts
type mockCoordinator struct {
	submitErr error
	tasks     map[string]*model.Task
	verdicts  map[string]*model.Verdict
	cancelled map[string]bool
}

func newMockCoordinator() *mockCoordinator {
	return &mockCoordinator{
		tasks:     make(map[string]*model.Task),
		verdicts:  make(map[string]*model.Verdict),
		cancelled: make(map[string]bool),
	}
}

func (m *mockCoordinator) Submit(claimText string) (*model.Task, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	t := &model.Task{ID: "task-1", ClaimID: "claim-1", ClaimText: claimText, State: model.TaskQueued}
	m.tasks[t.ID] = t
	return t, nil
}

func (m *mockCoordinator) Status(taskID string) (*model.Task, error) {
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, task.ErrNotFound
	}
	return t, nil
}

func (m *mockCoordinator) Result(taskID string) (*model.Verdict, model.TaskState, error) {
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, "", task.ErrNotFound
	}
	return t.Result, t.State, nil
}

func (m *mockCoordinator) Cancel(taskID string) bool {
	return m.cancelled[taskID]
}

func (m *mockCoordinator) Verdict(claimID string) (*model.Verdict, error) {
	v, ok := m.verdicts[claimID]
	if !ok {
		return nil, task.ErrNotFound
	}
	return v, nil
}

func (m *mockCoordinator) QueueDepth() int { return 3 }

func testServer(coord Coordinator) *Server {
	return New(":0", coord, func() int { return 42 }, zerolog.Nop())
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmit(t *testing.T) {
	s := testServer(newMockCoordinator())

	rec := do(t, s, http.MethodPost, "/v1/claims", `{"text":"the sky is blue"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp submitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TaskID != "task-1" || resp.ClaimID != "claim-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestSubmit_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		submitErr  error
		wantStatus int
	}{
		{"invalid json", "{not json", nil, http.StatusBadRequest},
		{"missing text", `{}`, nil, http.StatusBadRequest},
		{"duplicate claim", `{"text":"x"}`, task.ErrDuplicateClaim, http.StatusConflict},
		{"backpressure", `{"text":"x"}`, task.ErrBackpressure, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coord := newMockCoordinator()
			coord.submitErr = tt.submitErr
			s := testServer(coord)

			rec := do(t, s, http.MethodPost, "/v1/claims", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestStatus(t *testing.T) {
	coord := newMockCoordinator()
	coord.tasks["task-1"] = &model.Task{ID: "task-1", State: model.TaskRunning}
	s := testServer(coord)

	rec := do(t, s, http.MethodGet, "/v1/tasks/task-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got model.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.State != model.TaskRunning {
		t.Errorf("expected running state, got %s", got.State)
	}

	rec = do(t, s, http.MethodGet, "/v1/tasks/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown task, got %d", rec.Code)
	}
}

func TestResult(t *testing.T) {
	coord := newMockCoordinator()
	coord.tasks["task-1"] = &model.Task{
		ID:    "task-1",
		State: model.TaskCompleted,
		Result: &model.Verdict{
			ClaimID:    "claim-1",
			Label:      model.VerdictSupported,
			Confidence: 0.9,
		},
	}
	coord.tasks["task-2"] = &model.Task{ID: "task-2", State: model.TaskRunning}
	s := testServer(coord)

	rec := do(t, s, http.MethodGet, "/v1/tasks/task-1/result", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp resultResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != model.TaskCompleted || resp.Verdict == nil || resp.Verdict.Label != model.VerdictSupported {
		t.Errorf("unexpected result payload: %+v", resp)
	}

	// In-flight tasks report state with no verdict
	rec = do(t, s, http.MethodGet, "/v1/tasks/task-2/result", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp = resultResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != model.TaskRunning || resp.Verdict != nil {
		t.Errorf("unexpected in-flight payload: %+v", resp)
	}
}

func TestCancel(t *testing.T) {
	coord := newMockCoordinator()
	coord.cancelled["task-1"] = true
	s := testServer(coord)

	rec := do(t, s, http.MethodDelete, "/v1/tasks/task-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["cancelled"] {
		t.Error("expected cancelled true")
	}

	rec = do(t, s, http.MethodDelete, "/v1/tasks/other", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["cancelled"] {
		t.Error("expected cancelled false for non-cancellable task")
	}
}

func TestVerdict(t *testing.T) {
	coord := newMockCoordinator()
	coord.verdicts["claim-1"] = &model.Verdict{ClaimID: "claim-1", Label: model.VerdictRefuted, Confidence: 0.7}
	s := testServer(coord)

	rec := do(t, s, http.MethodGet, "/v1/claims/claim-1/verdict", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var v model.Verdict
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if v.Label != model.VerdictRefuted {
		t.Errorf("unexpected verdict: %+v", v)
	}

	rec = do(t, s, http.MethodGet, "/v1/claims/unknown/verdict", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown claim, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := testServer(newMockCoordinator())

	rec := do(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected ok status, got %v", resp["status"])
	}
	if resp["queue_depth"] != float64(3) || resp["corpus_size"] != float64(42) {
		t.Errorf("unexpected health payload: %v", resp)
	}
}
