// Package cleanup deletes temporary artifacts after a delay without blocking
// the caller that produced them.
package cleanup

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grantcarthew/cmdport/internal/event"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrClosed is returned by ScheduleDelete after Close.
var ErrClosed = errors.New("cleanup scheduler is closed")

// Outcome is the terminal state of a scheduled deletion.
type Outcome string

const (
	Deleted          Outcome = "deleted"
	NotFound         Outcome = "not-found"
	PermissionDenied Outcome = "permission-denied"
	Failed           Outcome = "failed"
)

// Result reports what happened to one scheduled deletion.
type Result struct {
	ID          uuid.UUID
	Path        string
	ScheduledAt time.Time
	FiredAt     time.Time
	Outcome     Outcome
	Err         error
}

// Config holds scheduler dependencies. A nil Fs selects the OS filesystem.
type Config struct {
	Fs     afero.Fs
	Logger *zap.Logger
}

// Scheduler arms one-shot deletions. Each deletion runs on its own timer and
// is attempted exactly once; there is no cancellation and no retry.
type Scheduler struct {
	fs     afero.Fs
	logger *zap.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	pending int
	closed  bool

	// Results receives every terminal outcome, on the timer goroutine.
	Results event.Event[Result]
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Scheduler{
		fs:     cfg.Fs,
		logger: cfg.Logger,
	}
	s.Results.OnPanic = func(err error) {
		s.logger.Error("cleanup result handler failed", zap.Error(err))
	}
	return s
}

// ScheduleDelete arms deletion of path after delay and returns immediately.
// The outcome is logged and published on Results, never returned.
func (s *Scheduler) ScheduleDelete(path string, delay time.Duration) (uuid.UUID, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return uuid.Nil, ErrClosed
	}
	s.pending++
	s.wg.Add(1)
	s.mu.Unlock()

	if delay < 0 {
		delay = 0
	}

	id := uuid.New()
	scheduledAt := time.Now()

	s.logger.Debug("cleanup scheduled",
		zap.Stringer("id", id),
		zap.String("path", path),
		zap.Duration("delay", delay))

	time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.fire(Result{ID: id, Path: path, ScheduledAt: scheduledAt})
	})

	return id, nil
}

func (s *Scheduler) fire(res Result) {
	res.FiredAt = time.Now()
	res.Err = s.fs.Remove(res.Path)
	res.Outcome = classify(res.Err)

	s.mu.Lock()
	s.pending--
	s.mu.Unlock()

	fields := []zap.Field{
		zap.Stringer("id", res.ID),
		zap.String("path", res.Path),
		zap.String("outcome", string(res.Outcome)),
	}
	if res.Outcome == Deleted {
		s.logger.Debug("cleanup finished", fields...)
	} else {
		s.logger.Warn("cleanup failed", append(fields, zap.Error(res.Err))...)
	}

	s.Results.Emit(res)
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return Deleted
	case errors.Is(err, os.ErrNotExist):
		return NotFound
	case errors.Is(err, os.ErrPermission):
		return PermissionDenied
	default:
		return Failed
	}
}

// Pending returns the number of armed deletions that have not fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Close stops accepting new deletions. Armed deletions still fire.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Wait blocks until every armed deletion has reached a terminal state.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
