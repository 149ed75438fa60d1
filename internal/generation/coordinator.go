package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/notify"
	"mediagen/internal/poller"
)

// Authorizer debits credits before a job may start.
type Authorizer interface {
	AuthorizeAndDebit(ctx context.Context, userID string, amount int) (bool, error)
}

// Pricer prices a request in credits.
type Pricer interface {
	Cost(req domain.GenerationRequest) (int, error)
}

// Persister records a completed job in the gallery.
type Persister interface {
	Persist(ctx context.Context, userID string, job domain.GenerationJob) (domain.GalleryRecord, error)
}

// Deps are shared by every session's coordinator.
type Deps struct {
	Ledger    Authorizer
	Pricing   Pricer
	Submitter *Submitter
	Persister Persister
	Sink      notify.Sink
	Poll      poller.Options
	Estimator Estimator
	Logger    zerolog.Logger
	Now       func() time.Time
	// OnChange receives every committed snapshot. It must not block.
	OnChange func(userID string, job domain.GenerationJob)
}

// Coordinator runs the lifecycle for one user session: validate, debit,
// submit, poll, persist, notify. At most one job is active at a time.
type Coordinator struct {
	userID  string
	deps    Deps
	base    context.Context
	machine *Machine
	logger  zerolog.Logger

	mu        sync.Mutex
	task      *poller.Task
	runCancel context.CancelFunc
	locale    string
	wg        sync.WaitGroup
}

// NewCoordinator binds a coordinator to userID. Background work derives
// from base and ends when base is cancelled.
func NewCoordinator(base context.Context, userID string, deps Deps) *Coordinator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sink == nil {
		deps.Sink = notify.Multi{}
	}
	c := &Coordinator{
		userID: userID,
		deps:   deps,
		base:   base,
		logger: deps.Logger.With().Str("user_id", userID).Logger(),
	}
	c.machine = NewMachine(deps.Now, func(job domain.GenerationJob) {
		if deps.OnChange != nil {
			deps.OnChange(userID, job)
		}
	})
	return c
}

// Current returns the job with timing estimates.
func (c *Coordinator) Current() View {
	return c.deps.Estimator.View(c.machine.Snapshot(), c.deps.Now())
}

// Submit starts a generation and returns as soon as the job is generating.
// An active job is abandoned first; its debit is not refunded.
func (c *Coordinator) Submit(ctx context.Context, req domain.GenerationRequest) (View, error) {
	if err := req.Validate(); err != nil {
		return c.Current(), err
	}
	cost, err := c.deps.Pricing.Cost(req)
	if err != nil {
		return c.Current(), err
	}

	c.mu.Lock()
	var superseded *notify.Notice
	if prev, err := c.machine.Cancel(); err == nil {
		c.logger.Info().Str("job_id", prev.JobID).Msg("coordinator: superseding active job")
		superseded = &notify.Notice{Kind: notify.KindCancelled, JobID: prev.JobID, GenerationKind: c.machine.Snapshot().Kind, Locale: c.locale}
	}
	c.stopLocked()
	fence, err := c.machine.Submit(req, cost)
	if err != nil {
		c.mu.Unlock()
		return c.Current(), err
	}
	runCtx, cancel := context.WithCancel(c.base)
	c.runCancel = cancel
	c.locale = req.Locale
	view := c.Current()
	c.wg.Add(1)
	c.mu.Unlock()

	if superseded != nil {
		c.notify(ctx, *superseded, 0)
	}

	c.logger.Info().Str("attempt", fence.Attempt).Str("kind", string(req.Kind)).Int("cost", cost).Msg("coordinator: submission started")
	go c.run(runCtx, fence, req, cost)
	return view, nil
}

// Cancel stops the active job. Work already running at the provider is not
// aborted; its late results are fenced out.
func (c *Coordinator) Cancel(ctx context.Context) (View, error) {
	c.mu.Lock()
	fence, err := c.machine.Cancel()
	if err != nil {
		c.mu.Unlock()
		return c.Current(), err
	}
	c.stopLocked()
	locale := c.locale
	c.mu.Unlock()

	c.logger.Info().Str("job_id", fence.JobID).Msg("coordinator: cancelled")
	job := c.machine.Snapshot()
	c.notify(ctx, notify.Notice{Kind: notify.KindCancelled, JobID: fence.JobID, GenerationKind: job.Kind, Locale: locale}, 0)
	return c.Current(), nil
}

// Reset returns to idle from any state and stops any poller. Safe to repeat.
func (c *Coordinator) Reset() View {
	c.mu.Lock()
	c.stopLocked()
	changed := c.machine.Reset()
	c.mu.Unlock()
	if changed {
		c.logger.Debug().Msg("coordinator: reset")
	}
	return c.Current()
}

// Wait blocks until background work for every submitted job has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close resets the session and waits for its goroutines.
func (c *Coordinator) Close() {
	c.Reset()
	c.Wait()
}

func (c *Coordinator) stopLocked() {
	if c.task != nil {
		c.task.Stop()
		c.task = nil
	}
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
}

func (c *Coordinator) run(ctx context.Context, fence Fence, req domain.GenerationRequest, cost int) {
	defer c.wg.Done()
	logger := c.logger.With().Str("attempt", fence.Attempt).Str("kind", string(req.Kind)).Logger()

	ok, err := c.deps.Ledger.AuthorizeAndDebit(ctx, c.userID, cost)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.fail(ctx, fence, req, err)
		return
	}
	if !ok {
		c.fail(ctx, fence, req, domain.NewInsufficientCreditsError(cost))
		return
	}

	sub, err := c.deps.Submitter.Submit(ctx, req, fence.Attempt)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("coordinator: submission failed")
		c.fail(ctx, fence, req, err)
		return
	}
	if !sub.Async() {
		c.complete(ctx, fence, req, sub.Result)
		return
	}

	accepted, err := c.machine.OnJobAccepted(fence, sub.JobID)
	if err != nil {
		logger.Debug().Err(err).Str("job_id", sub.JobID).Msg("coordinator: discarding stale acceptance")
		return
	}
	logger.Info().Str("job_id", sub.JobID).Msg("coordinator: job accepted")

	provider, _ := c.deps.Submitter.Provider(req.Kind)
	c.mu.Lock()
	if !c.machine.Active(accepted) {
		c.mu.Unlock()
		return
	}
	task := poller.Start(ctx, provider, sub.JobID, poller.Callbacks{
		OnUpdate: func(progress int) {
			if progress < 0 {
				progress = c.deps.Estimator.Progress(c.machine.Snapshot(), c.deps.Now())
			}
			if err := c.machine.OnProgress(accepted, progress); err != nil {
				logger.Debug().Err(err).Msg("coordinator: progress discarded")
			}
		},
		OnDone: func(result *domain.Result) {
			c.complete(ctx, accepted, req, result)
		},
		OnError: func(err error) {
			c.fail(ctx, accepted, req, err)
		},
	}, c.pollOptions(logger))
	c.task = task
	c.mu.Unlock()

	<-task.Done()
}

func (c *Coordinator) pollOptions(logger zerolog.Logger) poller.Options {
	opts := c.deps.Poll
	if opts.Logger == nil {
		opts.Logger = &logger
	}
	return opts
}

// complete applies a terminal result and persists it exactly once: only the
// caller whose transition succeeds reaches the persister.
func (c *Coordinator) complete(ctx context.Context, fence Fence, req domain.GenerationRequest, result *domain.Result) {
	if result == nil {
		c.fail(ctx, fence, req, domain.ProviderError("provider returned an empty result"))
		return
	}
	job, err := c.machine.OnTerminalResult(fence, result)
	if err != nil {
		c.logger.Debug().Err(err).Str("job_id", fence.JobID).Msg("coordinator: late result discarded")
		return
	}
	if job.ID == "" {
		job.ID = fence.Attempt
	}

	// The job is already completed; bookkeeping must outlive a cancel.
	bg := context.WithoutCancel(ctx)
	mediaURL := result.PrimaryURL()
	rec, err := c.deps.Persister.Persist(bg, c.userID, job)
	if err != nil {
		warning := domain.NewPersistenceWarning(err)
		c.logger.Error().Err(err).Str("job_id", job.ID).Msg("coordinator: gallery write failed")
		_ = c.machine.OnWarning(fence, warning)
		c.notify(bg, notify.Notice{Kind: notify.KindPersistenceWarning, JobID: job.ID, GenerationKind: job.Kind, Code: warning.Code, Detail: warning.Message, MediaURL: mediaURL, Locale: req.Locale}, 0)
	} else if rec.MediaURL != "" {
		mediaURL = rec.MediaURL
	}
	c.logger.Info().Str("job_id", job.ID).Msg("coordinator: completed")
	c.notify(bg, notify.Notice{Kind: notify.KindCompleted, JobID: job.ID, GenerationKind: job.Kind, MediaURL: mediaURL, Locale: req.Locale}, 0)
}

func (c *Coordinator) fail(ctx context.Context, fence Fence, req domain.GenerationRequest, cause error) {
	if err := c.machine.OnFailure(fence, cause); err != nil {
		c.logger.Debug().Err(err).Str("job_id", fence.JobID).Msg("coordinator: late failure discarded")
		return
	}
	code := domain.CodeOf(cause)
	c.logger.Warn().Err(cause).Str("job_id", fence.JobID).Str("code", string(code)).Msg("coordinator: failed")

	n := notify.Notice{Kind: notify.KindFailed, JobID: fence.JobID, GenerationKind: req.Kind, Code: code, Detail: domain.MessageOf(cause), Locale: req.Locale}
	cost := 0
	var ge *domain.GenerationError
	if errors.As(cause, &ge) && ge.Code == domain.CodeInsufficientCredits {
		n.Kind = notify.KindInsufficientCredits
		cost = c.machine.Snapshot().Cost
	}
	c.notify(context.WithoutCancel(ctx), n, cost)
}

func (c *Coordinator) notify(ctx context.Context, n notify.Notice, cost int) {
	n.UserID = c.userID
	n.At = c.deps.Now()
	c.deps.Sink.Notify(ctx, notify.Render(n, cost))
}
