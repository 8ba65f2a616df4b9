package pipeline

import "sync/atomic"

// CancelToken is a cooperative cancellation flag. The pipeline consults it
// at each stage boundary, which keeps terminal state transitions
// unambiguous: a cancelled run never writes a partial verdict.
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken creates an unset token
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel sets the flag. Safe to call more than once.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called. A nil token is never
// cancelled, so callers without cancellation needs can pass nil.
func (t *CancelToken) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.cancelled.Load()
}
