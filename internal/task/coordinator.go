package task

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/truthgraph/truthgraph/internal/embed"
	"github.com/truthgraph/truthgraph/internal/index"
	"github.com/truthgraph/truthgraph/internal/model"
	"github.com/truthgraph/truthgraph/internal/nli"
	"github.com/truthgraph/truthgraph/internal/pipeline"
)

// Runner executes one verification run. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, claim model.Claim, cancel *pipeline.CancelToken) (model.Verdict, error)
}

// Coordinator accepts asynchronous verification requests, schedules them on
// a bounded worker pool, tracks task state, and persists terminal results.
//
// Ownership discipline: a task in `running` is written only by the worker
// that dequeued it. Cancel requests flip a cooperative token instead of
// writing state; the queued→running and queued→cancelled transitions race
// through the store's compare-and-swap. Reads are snapshot copies and never
// block writers.
type Coordinator struct {
	cfg    model.WorkerConfig
	store  Store
	runner Runner
	logger zerolog.Logger

	queue chan string

	mu      sync.Mutex
	byClaim map[string]string      // claim-text hash → in-flight task id
	claims  map[string]model.Claim // task id → claim, in-flight only
	cancels map[string]*pipeline.CancelToken
	leases  map[string]time.Time

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCoordinator creates a coordinator; call Start before submitting
func NewCoordinator(cfg model.WorkerConfig, store Store, runner Runner, logger zerolog.Logger) *Coordinator {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 5
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 2 * time.Minute
	}
	if cfg.LeaseInterval <= 0 {
		cfg.LeaseInterval = 10 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}

	return &Coordinator{
		cfg:     cfg,
		store:   store,
		runner:  runner,
		logger:  logger.With().Str("component", "coordinator").Logger(),
		queue:   make(chan string, cfg.QueueCapacity),
		byClaim: make(map[string]string),
		claims:  make(map[string]model.Claim),
		cancels: make(map[string]*pipeline.CancelToken),
		leases:  make(map[string]time.Time),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the worker pool and the lease reaper
func (c *Coordinator) Start() {
	for i := 0; i < c.cfg.PoolSize; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	c.wg.Add(1)
	go c.reaper()
}

// Stop shuts the pool down and waits for in-flight tasks to finish their
// current attempt.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// Submit enqueues a claim for verification. It never blocks: a full queue
// returns ErrBackpressure, and a claim with a task already queued or
// running returns ErrDuplicateClaim.
func (c *Coordinator) Submit(claimText string) (*model.Task, error) {
	claimText = strings.TrimSpace(claimText)
	if claimText == "" {
		return nil, fmt.Errorf("empty claim text")
	}

	key := claimKey(claimText)
	now := time.Now().UTC()
	claim := model.Claim{
		ID:          uuid.NewString(),
		Text:        claimText,
		SubmittedAt: now,
	}
	t := &model.Task{
		ID:        uuid.NewString(),
		ClaimID:   claim.ID,
		ClaimText: claimText,
		State:     model.TaskQueued,
		CreatedAt: now,
	}

	c.mu.Lock()
	if _, inflight := c.byClaim[key]; inflight {
		c.mu.Unlock()
		return nil, ErrDuplicateClaim
	}
	c.byClaim[key] = t.ID
	c.claims[t.ID] = claim
	c.cancels[t.ID] = pipeline.NewCancelToken()
	c.mu.Unlock()

	if err := c.store.SaveTask(t); err != nil {
		c.release(t.ID, key)
		return nil, fmt.Errorf("save task: %w", err)
	}

	select {
	case c.queue <- t.ID:
	default:
		// Rejected: void the stored record so nothing ever runs it.
		_, _ = c.store.CASState(t.ID, model.TaskQueued, model.TaskCancelled)
		c.release(t.ID, key)
		return nil, ErrBackpressure
	}

	c.logger.Debug().Str("task_id", t.ID).Str("claim_id", claim.ID).Msg("task queued")
	return t.Clone(), nil
}

// Status returns a read-only snapshot of the task. ErrNotFound after the
// task has been garbage-collected past its TTL.
func (c *Coordinator) Status(taskID string) (*model.Task, error) {
	return c.store.LoadTask(taskID)
}

// Result returns the verdict if the task completed, otherwise the current
// state. Never blocks waiting for completion.
func (c *Coordinator) Result(taskID string) (*model.Verdict, model.TaskState, error) {
	t, err := c.store.LoadTask(taskID)
	if err != nil {
		return nil, "", err
	}
	return t.Result, t.State, nil
}

// Verdict returns the latest persisted verdict for a claim
func (c *Coordinator) Verdict(claimID string) (*model.Verdict, error) {
	return c.store.LoadVerdict(claimID)
}

// Cancel requests cancellation. Queued tasks transition immediately;
// running tasks are cancelled cooperatively at the pipeline's next stage
// boundary. Returns false if the task is already terminal or unknown.
func (c *Coordinator) Cancel(taskID string) bool {
	t, err := c.store.LoadTask(taskID)
	if err != nil || t.State.Terminal() {
		return false
	}

	if t.State == model.TaskQueued {
		swapped, err := c.store.CASState(taskID, model.TaskQueued, model.TaskCancelled)
		if err == nil && swapped {
			c.release(taskID, claimKey(t.ClaimText))
			c.logger.Info().Str("task_id", taskID).Msg("queued task cancelled")
			return true
		}
		// Lost the race to a worker; fall through to cooperative cancel.
	}

	c.mu.Lock()
	token := c.cancels[taskID]
	c.mu.Unlock()
	if token == nil {
		return false
	}
	token.Cancel()
	c.logger.Info().Str("task_id", taskID).Msg("cancellation requested")
	return true
}

// QueueDepth reports the number of queued tasks, for health reporting
func (c *Coordinator) QueueDepth() int {
	return len(c.queue)
}

// worker pulls tasks in submission order and runs each to completion
func (c *Coordinator) worker(id int) {
	defer c.wg.Done()

	logger := c.logger.With().Int("worker", id).Logger()
	for {
		select {
		case <-c.stopCh:
			return
		case taskID := <-c.queue:
			c.execute(logger, taskID)
		}
	}
}

// execute runs one task through its retry loop and writes the terminal state
func (c *Coordinator) execute(logger zerolog.Logger, taskID string) {
	swapped, err := c.store.CASState(taskID, model.TaskQueued, model.TaskRunning)
	if err != nil || !swapped {
		// Cancelled while queued, or GC'd; nothing to run.
		return
	}

	c.mu.Lock()
	claim := c.claims[taskID]
	token := c.cancels[taskID]
	c.mu.Unlock()

	heartbeatDone := make(chan struct{})
	c.renewLease(taskID)
	go c.heartbeat(taskID, heartbeatDone)
	defer close(heartbeatDone)

	t, err := c.store.LoadTask(taskID)
	if err != nil {
		logger.Error().Err(err).Str("task_id", taskID).Msg("running task vanished from store")
		return
	}

	// Bounded retry loop: transient failures back off exponentially until
	// max_attempts; everything else is terminal on the first pass.
	for {
		t.Attempts++
		if err := c.store.SaveTask(t); err != nil {
			logger.Error().Err(err).Str("task_id", taskID).Msg("save attempt count")
		}

		taskCtx, cancelCtx := context.WithTimeout(context.Background(), c.cfg.TaskTimeout)
		v, runErr := c.runner.Run(taskCtx, claim, token)
		hardTimeout := taskCtx.Err() != nil
		cancelCtx()

		if runErr == nil {
			c.finish(t, model.TaskCompleted, &v, nil)
			return
		}

		if errors.Is(runErr, pipeline.ErrCancelled) {
			c.finish(t, model.TaskCancelled, nil, nil)
			return
		}

		kind := classify(runErr, hardTimeout)
		if kind != model.ErrorKindTransient || t.Attempts >= c.cfg.MaxAttempts {
			c.finish(t, model.TaskFailed, nil, &model.ErrorInfo{Kind: kind, Message: runErr.Error()})
			return
		}

		delay := c.cfg.BackoffBase << (t.Attempts - 1)
		logger.Warn().Err(runErr).Str("task_id", taskID).Int("attempt", t.Attempts).
			Dur("backoff", delay).Msg("transient failure, retrying")

		select {
		case <-c.stopCh:
			c.finish(t, model.TaskFailed, nil, &model.ErrorInfo{
				Kind:    model.ErrorKindTransient,
				Message: "coordinator shut down during retry backoff",
			})
			return
		case <-time.After(delay):
		}

		if token.Cancelled() {
			c.finish(t, model.TaskCancelled, nil, nil)
			return
		}
	}
}

// finish writes the terminal state. Only the owning worker calls this for
// running tasks, so a plain save is race-free.
func (c *Coordinator) finish(t *model.Task, state model.TaskState, v *model.Verdict, errInfo *model.ErrorInfo) {
	now := time.Now().UTC()
	t.State = state
	t.CompletedAt = &now
	t.Result = v
	t.Error = errInfo

	if v != nil {
		if err := c.store.SaveVerdict(v); err != nil {
			c.logger.Error().Err(err).Str("task_id", t.ID).Msg("save verdict")
		}
	}
	if err := c.store.SaveTask(t); err != nil {
		c.logger.Error().Err(err).Str("task_id", t.ID).Msg("save terminal task")
	}

	c.release(t.ID, claimKey(t.ClaimText))
	c.logger.Info().Str("task_id", t.ID).Str("state", string(state)).Int("attempts", t.Attempts).Msg("task finished")
}

// release drops the in-flight bookkeeping for a task
func (c *Coordinator) release(taskID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byClaim[key] == taskID {
		delete(c.byClaim, key)
	}
	delete(c.claims, taskID)
	delete(c.cancels, taskID)
	delete(c.leases, taskID)
}

// heartbeat renews the task's lease while the worker is alive
func (c *Coordinator) heartbeat(taskID string, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.LeaseInterval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.renewLease(taskID)
		}
	}
}

func (c *Coordinator) renewLease(taskID string) {
	c.mu.Lock()
	c.leases[taskID] = time.Now()
	c.mu.Unlock()
}

// reaper requeues running tasks whose lease expired without a heartbeat,
// so a crashed worker never leaves a task stuck in running.
func (c *Coordinator) reaper() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.LeaseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.reapExpired()
		}
	}
}

func (c *Coordinator) reapExpired() {
	cutoff := time.Now().Add(-3 * c.cfg.LeaseInterval)

	c.mu.Lock()
	var expired []string
	for taskID, lease := range c.leases {
		if lease.Before(cutoff) {
			expired = append(expired, taskID)
		}
	}
	c.mu.Unlock()

	for _, taskID := range expired {
		swapped, err := c.store.CASState(taskID, model.TaskRunning, model.TaskQueued)
		if err != nil || !swapped {
			continue
		}

		c.mu.Lock()
		delete(c.leases, taskID)
		c.mu.Unlock()

		select {
		case c.queue <- taskID:
			c.logger.Warn().Str("task_id", taskID).Msg("lease expired, task requeued")
		default:
			// Queue full; leave it queued in the store and let the next
			// sweep try again.
			c.mu.Lock()
			c.leases[taskID] = time.Now()
			c.mu.Unlock()
		}
	}
}

// classify maps a run error onto the retry taxonomy
func classify(err error, hardTimeout bool) model.ErrorKind {
	switch {
	case hardTimeout:
		return model.ErrorKindTimeout
	case errors.Is(err, embed.ErrModelUnavailable), errors.Is(err, nli.ErrModelUnavailable):
		return model.ErrorKindFatal
	case errors.Is(err, index.ErrIndexUnavailable), errors.Is(err, pipeline.ErrNoResults):
		return model.ErrorKindTransient
	default:
		return model.ErrorKindTransient
	}
}

// claimKey derives the duplicate-detection key for a claim text
func claimKey(text string) string {
	hash := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(hash[:])
}
