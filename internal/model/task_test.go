package model

import "testing"

func TestTaskState_Terminal(t *testing.T) {
	tests := []struct {
		state TaskState
		want  bool
	}{
		{TaskQueued, false},
		{TaskRunning, false},
		{TaskCompleted, true},
		{TaskFailed, true},
		{TaskCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s: expected terminal=%v, got %v", tt.state, tt.want, got)
		}
	}
}

func TestTask_Clone(t *testing.T) {
	original := &Task{ID: "t1", State: TaskQueued, Attempts: 1}

	cp := original.Clone()
	cp.State = TaskRunning
	cp.Attempts = 2

	if original.State != TaskQueued || original.Attempts != 1 {
		t.Error("mutating a clone leaked into the original")
	}
}
