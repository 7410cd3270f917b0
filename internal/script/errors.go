package script

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrReadOnlyContext = errors.New("context is read-only and thus can't be modified")
	ErrNotAGenerator   = errors.New("generator did not return a function")
	ErrNoPattern       = errors.New("script did not return a pattern")
	ErrTimeout         = errors.New("script timed out")
)

// Error is a failed script evaluation, tagged with the name of the callback that raised it.
type Error struct {
	Callback string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("script callback '%s' failed: %v", e.Callback, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// classify maps interpreter errors raised by the context bindings back to their sentinels.
func classify(err error) error {
	if strings.Contains(err.Error(), ErrReadOnlyContext.Error()) {
		return fmt.Errorf("%w: %v", ErrReadOnlyContext, err)
	}
	return err
}

// ErrorQueue collects callback failures during a scheduling pass. The owner of the pass
// clears it before running and inspects it afterwards; evaluation itself never aborts.
type ErrorQueue struct {
	mu     sync.RWMutex
	errs   []error
	logger *zap.Logger
}

func NewErrorQueue(logger *zap.Logger) *ErrorQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorQueue{logger: logger}
}

func (q *ErrorQueue) Push(err error) {
	if err == nil {
		return
	}
	var serr *Error
	callback := "anonymous function"
	if errors.As(err, &serr) {
		callback = serr.Callback
	}
	q.logger.Warn("script callback failed", zap.String("callback", callback), zap.Error(err))
	q.mu.Lock()
	q.errs = append(q.errs, err)
	q.mu.Unlock()
}

func (q *ErrorQueue) Clear() {
	q.mu.Lock()
	q.errs = nil
	q.mu.Unlock()
}

func (q *ErrorQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.errs)
}

// First returns the first error since the last Clear, or nil.
func (q *ErrorQueue) First() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.errs) == 0 {
		return nil
	}
	return q.errs[0]
}

func (q *ErrorQueue) All() []error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]error(nil), q.errs...)
}

// Err combines all queued errors into one, or returns nil.
func (q *ErrorQueue) Err() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return multierr.Combine(q.errs...)
}

// Status retains the most recent script error message for display.
type Status struct {
	mu      sync.Mutex
	message string
}

// Update records err (nil clears the message) and reports whether the message changed.
func (s *Status) Update(err error) bool {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := msg != s.message
	s.message = msg
	return changed
}

func (s *Status) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}
