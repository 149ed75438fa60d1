// Package poller drives provider status checks for one async job.
package poller

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/providers"
)

// Source answers status queries for provider job ids.
type Source interface {
	Status(ctx context.Context, jobID string) (providers.StatusReport, error)
}

// Options configures a poll loop.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	// MaxTransientFailures is the number of consecutive failed polls that
	// escalates to a PollingFault.
	MaxTransientFailures int
	Logger               *infra.Logger
}

// Callbacks receive poll outcomes. OnUpdate gets -1 when the provider is
// running but reports no percentage. Exactly one of OnDone or OnError fires
// at most once per task.
type Callbacks struct {
	OnUpdate func(progress int)
	OnDone   func(result *domain.Result)
	OnError  func(err error)
}

const (
	DefaultInterval             = 3 * time.Second
	DefaultTimeout              = 5 * time.Minute
	DefaultMaxTransientFailures = 3
)

// Task is a running poll loop. The zero value is not usable; use Start.
type Task struct {
	jobID   string
	source  Source
	opts    Options
	cb      Callbacks
	logger  *infra.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool
	once    sync.Once
	// mu serializes progress callbacks with Stop.
	mu sync.Mutex
}

// Start launches the poll loop in its own goroutine. Cancelling ctx has the
// same effect as Stop.
func Start(ctx context.Context, source Source, jobID string, cb Callbacks, opts Options) *Task {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxTransientFailures <= 0 {
		opts.MaxTransientFailures = DefaultMaxTransientFailures
	}
	logger := opts.Logger
	if logger == nil {
		l := zerolog.New(io.Discard)
		logger = &l
	}
	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	t := &Task{
		jobID:  jobID,
		source: source,
		opts:   opts,
		cb:     cb,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.run(runCtx)
	return t
}

// Stop ends polling. It is safe on a nil task, after a terminal callback,
// and when called more than once. A progress callback already running when
// Stop is called finishes first; once Stop returns nothing else fires.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.mu.Lock()
		t.stopped.Store(true)
		t.mu.Unlock()
		t.cancel()
	})
}

// Done is closed when the poll goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Stopped reports whether the task will fire no more callbacks.
func (t *Task) Stopped() bool {
	return t.stopped.Load()
}

func (t *Task) run(ctx context.Context) {
	defer close(t.done)
	defer t.cancel()

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				t.logger.Warn().Str("job_id", t.jobID).Dur("timeout", t.opts.Timeout).Msg("poller: ceiling reached")
				t.finish(func() { t.cb.OnError(domain.NewTimeoutError()) })
			}
			return
		case <-ticker.C:
		}

		report, err := t.source.Status(ctx, t.jobID)
		if ctx.Err() != nil {
			// Deadline or stop while the request was in flight; the next
			// select iteration decides which.
			continue
		}
		if err != nil {
			failures++
			t.logger.Warn().Err(err).Str("job_id", t.jobID).Int("failures", failures).Msg("poller: status check failed")
			if failures >= t.opts.MaxTransientFailures {
				t.finish(func() { t.cb.OnError(domain.NewPollingFault(err)) })
				return
			}
			continue
		}
		failures = 0

		switch report.State {
		case providers.StateSucceeded:
			t.logger.Debug().Str("job_id", t.jobID).Msg("poller: job succeeded")
			t.finish(func() { t.cb.OnDone(report.Result) })
			return
		case providers.StateFailed:
			t.logger.Info().Str("job_id", t.jobID).Str("reason", report.Message).Msg("poller: job failed")
			t.finish(func() { t.cb.OnError(domain.ProviderError(report.Message)) })
			return
		default:
			t.emit(report.Progress)
		}
	}
}

func (t *Task) emit(progress int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped.Load() || t.cb.OnUpdate == nil {
		return
	}
	t.cb.OnUpdate(progress)
}

// finish marks the task stopped and runs fn unless Stop won the race.
func (t *Task) finish(fn func()) {
	fire := false
	t.once.Do(func() {
		t.stopped.Store(true)
		fire = true
	})
	if fire {
		fn()
	}
}
