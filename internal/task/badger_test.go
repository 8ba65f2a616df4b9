package task

import (
	"errors"
	"testing"
	"time"

	"github.com/truthgraph/truthgraph/internal/model"
)

func openBadger(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(t.TempDir(), time.Minute)
	if err != nil {
		t.Fatalf("open badger store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	s := openBadger(t)

	if err := s.SaveTask(newTask("t1", model.TaskQueued)); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadTask("t1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != "t1" || got.State != model.TaskQueued {
		t.Errorf("unexpected task: %+v", got)
	}

	if _, err := s.LoadTask("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBadgerStore_CASState(t *testing.T) {
	s := openBadger(t)

	if err := s.SaveTask(newTask("t1", model.TaskQueued)); err != nil {
		t.Fatalf("save: %v", err)
	}

	swapped, err := s.CASState("t1", model.TaskQueued, model.TaskRunning)
	if err != nil || !swapped {
		t.Fatalf("expected swap, got swapped=%v err=%v", swapped, err)
	}

	got, _ := s.LoadTask("t1")
	if got.State != model.TaskRunning || got.StartedAt == nil {
		t.Errorf("unexpected task after swap: %+v", got)
	}

	swapped, err = s.CASState("t1", model.TaskQueued, model.TaskCancelled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if swapped {
		t.Error("expected swap to fail on state mismatch")
	}

	if _, err := s.CASState("missing", model.TaskQueued, model.TaskRunning); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBadgerStore_Verdicts(t *testing.T) {
	s := openBadger(t)

	v := &model.Verdict{ClaimID: "claim-1", Label: model.VerdictSupported, Confidence: 0.9}
	if err := s.SaveVerdict(v); err != nil {
		t.Fatalf("save verdict: %v", err)
	}

	got, err := s.LoadVerdict("claim-1")
	if err != nil {
		t.Fatalf("load verdict: %v", err)
	}
	if got.Label != model.VerdictSupported {
		t.Errorf("unexpected verdict: %+v", got)
	}

	if _, err := s.LoadVerdict("unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.SaveVerdict(&model.Verdict{}); err == nil {
		t.Error("expected error for verdict without claim id")
	}
}
