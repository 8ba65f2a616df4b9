// Package task provides the asynchronous execution substrate: a bounded
// queue, a fixed worker pool, per-task state tracking with leases, and
// pluggable persistence for terminal tasks and verdicts.
package task

import (
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/truthgraph/truthgraph/internal/model"
)

var (
	// ErrNotFound is returned for unknown or garbage-collected ids.
	ErrNotFound = errors.New("task not found")

	// ErrBackpressure is returned when the submission queue is full.
	ErrBackpressure = errors.New("task queue at capacity")

	// ErrDuplicateClaim is returned when the claim already has a queued or
	// running task. Duplicates are rejected, not coalesced.
	ErrDuplicateClaim = errors.New("claim already has an in-flight task")
)

// Store persists tasks and verdicts behind a narrow interface, so an
// in-memory map serves single-process deployments and an embedded KV store
// serves anything that must survive a restart, without changing callers.
type Store interface {
	SaveTask(t *model.Task) error
	LoadTask(id string) (*model.Task, error)

	// CASState transitions a task's state only if it currently has the
	// expected state. Returns false without error on a lost race.
	CASState(id string, from, to model.TaskState) (bool, error)

	SaveVerdict(v *model.Verdict) error
	LoadVerdict(claimID string) (*model.Verdict, error)
}

// MemoryStore keeps tasks and verdicts in process memory. Terminal tasks
// and verdicts expire after the result TTL; in-flight tasks never expire.
type MemoryStore struct {
	mu       sync.Mutex
	tasks    *gocache.Cache
	verdicts *gocache.Cache
	ttl      time.Duration
}

// NewMemoryStore creates an in-memory store with the given result TTL
func NewMemoryStore(resultTTL time.Duration) *MemoryStore {
	if resultTTL <= 0 {
		resultTTL = 24 * time.Hour
	}
	return &MemoryStore{
		tasks:    gocache.New(gocache.NoExpiration, 10*time.Minute),
		verdicts: gocache.New(resultTTL, 10*time.Minute),
		ttl:      resultTTL,
	}
}

// SaveTask stores a snapshot of the task. Terminal tasks pick up the
// result TTL so the registry is garbage-collected over time.
func (s *MemoryStore) SaveTask(t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked(t)
	return nil
}

func (s *MemoryStore) saveLocked(t *model.Task) {
	ttl := gocache.NoExpiration
	if t.State.Terminal() {
		ttl = s.ttl
	}
	s.tasks.Set(t.ID, t.Clone(), ttl)
}

// LoadTask returns a snapshot copy of the task
func (s *MemoryStore) LoadTask(id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, found := s.tasks.Get(id)
	if !found {
		return nil, ErrNotFound
	}
	return val.(*model.Task).Clone(), nil
}

// CASState atomically transitions the task state
func (s *MemoryStore) CASState(id string, from, to model.TaskState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, found := s.tasks.Get(id)
	if !found {
		return false, ErrNotFound
	}

	t := val.(*model.Task).Clone()
	if t.State != from {
		return false, nil
	}

	t.State = to
	now := time.Now().UTC()
	switch to {
	case model.TaskRunning:
		t.StartedAt = &now
	case model.TaskCompleted, model.TaskFailed, model.TaskCancelled:
		t.CompletedAt = &now
	}

	s.saveLocked(t)
	return true, nil
}

// SaveVerdict stores a verdict keyed by claim id
func (s *MemoryStore) SaveVerdict(v *model.Verdict) error {
	if v.ClaimID == "" {
		return fmt.Errorf("verdict missing claim id")
	}
	s.verdicts.Set(v.ClaimID, v, s.ttl)
	return nil
}

// LoadVerdict returns the stored verdict for a claim
func (s *MemoryStore) LoadVerdict(claimID string) (*model.Verdict, error) {
	val, found := s.verdicts.Get(claimID)
	if !found {
		return nil, ErrNotFound
	}
	return val.(*model.Verdict), nil
}
