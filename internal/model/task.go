package model

import "time"

// TaskState tracks the lifecycle of an asynchronous verification task
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// Terminal reports whether the state is final. A task never transitions
// out of completed, failed, or cancelled.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// ErrorKind classifies a task error for retry decisions
type ErrorKind string

const (
	ErrorKindCaller    ErrorKind = "caller"    // Bad input, never retried
	ErrorKindTransient ErrorKind = "transient" // Retried with backoff up to max_attempts
	ErrorKindFatal     ErrorKind = "fatal"     // Dependency permanently unavailable, not retried
	ErrorKindTimeout   ErrorKind = "timeout"   // Hard task timeout exceeded
)

// ErrorInfo is the user-visible error summary recorded on a terminal task
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Task is the unit of asynchronous work owned by the coordinator. It is
// created on submission and mutated only by the worker that owns it, or by
// an explicit cancel request while non-terminal.
type Task struct {
	ID          string     `json:"task_id"`
	ClaimID     string     `json:"claim_id"`
	ClaimText   string     `json:"claim_text,omitempty"`
	State       TaskState  `json:"state"`
	Attempts    int        `json:"attempts"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *Verdict   `json:"result,omitempty"`
	Error       *ErrorInfo `json:"error,omitempty"`
}

// Clone returns a deep-enough copy of the task for snapshot reads.
// Result and Error are immutable once set, so sharing them is safe.
func (t *Task) Clone() *Task {
	cp := *t
	return &cp
}
