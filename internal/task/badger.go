package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/truthgraph/truthgraph/internal/model"
)

const (
	taskKeyPrefix    = "task:"
	verdictKeyPrefix = "verdict:"
)

// BadgerStore persists tasks and verdicts in an embedded Badger database,
// for deployments where results must survive a process restart. Terminal
// records carry the result TTL through Badger's native entry expiry.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadgerStore opens (or creates) a store at dir
func NewBadgerStore(dir string, resultTTL time.Duration) (*BadgerStore, error) {
	if resultTTL <= 0 {
		resultTTL = 24 * time.Hour
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &BadgerStore{db: db, ttl: resultTTL}, nil
}

// Close releases the underlying database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// SaveTask stores a snapshot of the task
func (s *BadgerStore) SaveTask(t *model.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(taskKeyPrefix+t.ID), data)
		if t.State.Terminal() {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// LoadTask returns the stored task
func (s *BadgerStore) LoadTask(id string) (*model.Task, error) {
	var t model.Task
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(taskKeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &t)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return &t, nil
}

// CASState transitions the task state inside a single transaction
func (s *BadgerStore) CASState(id string, from, to model.TaskState) (bool, error) {
	swapped := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(taskKeyPrefix + id)
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		var t model.Task
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &t)
		}); err != nil {
			return err
		}

		if t.State != from {
			return nil
		}

		t.State = to
		now := time.Now().UTC()
		switch to {
		case model.TaskRunning:
			t.StartedAt = &now
		case model.TaskCompleted, model.TaskFailed, model.TaskCancelled:
			t.CompletedAt = &now
		}

		data, err := json.Marshal(&t)
		if err != nil {
			return err
		}

		entry := badger.NewEntry(key, data)
		if t.State.Terminal() {
			entry = entry.WithTTL(s.ttl)
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}

		swapped = true
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("cas task state: %w", err)
	}
	return swapped, nil
}

// SaveVerdict stores a verdict keyed by claim id
func (s *BadgerStore) SaveVerdict(v *model.Verdict) error {
	if v.ClaimID == "" {
		return fmt.Errorf("verdict missing claim id")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(verdictKeyPrefix+v.ClaimID), data).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
}

// LoadVerdict returns the stored verdict for a claim
func (s *BadgerStore) LoadVerdict(claimID string) (*model.Verdict, error) {
	var v model.Verdict
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(verdictKeyPrefix + claimID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load verdict: %w", err)
	}
	return &v, nil
}
