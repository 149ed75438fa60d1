// Package generation coordinates one user's generation lifecycle: credit
// debit, provider submission, status polling, gallery persistence and
// notification. All job state lives in a Machine and changes only through
// its transition methods.
package generation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"mediagen/internal/domain"
)

// Fence identifies the attempt a callback belongs to. Attempt is minted by
// Submit; JobID is filled in once the provider accepts the job. A callback
// whose fence no longer matches the machine is discarded.
type Fence struct {
	Attempt string
	JobID   string
}

// Observer sees every committed snapshot in order. It runs under the
// machine lock and must not block or call back into the machine.
type Observer func(job domain.GenerationJob)

// Machine owns the GenerationJob for one session.
type Machine struct {
	mu       sync.Mutex
	job      domain.GenerationJob
	attempt  string
	now      func() time.Time
	observer Observer
}

// NewMachine returns a machine in the idle state.
func NewMachine(now func() time.Time, observer Observer) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		job:      domain.GenerationJob{Status: domain.StatusIdle},
		now:      now,
		observer: observer,
	}
}

// Snapshot returns a copy of the current job.
func (m *Machine) Snapshot() domain.GenerationJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job
}

// Active reports whether f is the current attempt and still in flight.
func (m *Machine) Active(f Fence) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matches(f) && m.job.Status.IsActive()
}

// Submit starts a new attempt from idle or a terminal state. Prior result,
// error and progress are cleared.
func (m *Machine) Submit(req domain.GenerationRequest, cost int) (Fence, error) {
	if err := req.Validate(); err != nil {
		return Fence{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job.Status.IsActive() {
		return Fence{}, domain.ErrInvalidTransition
	}
	m.attempt = uuid.NewString()
	m.job = domain.GenerationJob{
		Kind:      req.Kind,
		Status:    domain.StatusGenerating,
		Progress:  0,
		Prompt:    req.Prompt,
		Cost:      cost,
		StartedAt: m.now(),
	}
	m.commit()
	return Fence{Attempt: m.attempt}, nil
}

// OnJobAccepted records the provider job id and moves generating to polling.
func (m *Machine) OnJobAccepted(f Fence, jobID string) (Fence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.matches(f) {
		return Fence{}, domain.ErrStaleJob
	}
	if m.job.Status != domain.StatusGenerating {
		return Fence{}, domain.ErrInvalidTransition
	}
	m.job.ID = jobID
	m.job.Status = domain.StatusPolling
	m.commit()
	return Fence{Attempt: m.attempt, JobID: jobID}, nil
}

// OnProgress applies a progress value while polling. Values are clamped to
// [0,100] and a value lower than the stored one is dropped.
func (m *Machine) OnProgress(f Fence, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.matches(f) {
		return domain.ErrStaleJob
	}
	if m.job.Status != domain.StatusPolling {
		return domain.ErrInvalidTransition
	}
	value = clamp(value)
	if value <= m.job.Progress {
		return nil
	}
	m.job.Progress = value
	m.commit()
	return nil
}

// OnTerminalResult completes the job and returns the completed snapshot.
// Synchronous providers complete straight from generating.
func (m *Machine) OnTerminalResult(f Fence, result *domain.Result) (domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.matches(f) {
		return domain.GenerationJob{}, domain.ErrStaleJob
	}
	if !m.job.Status.IsActive() {
		return domain.GenerationJob{}, domain.ErrInvalidTransition
	}
	m.job.Status = domain.StatusCompleted
	m.job.Progress = 100
	m.job.Result = result
	m.job.FinishedAt = m.now()
	m.commit()
	return m.job, nil
}

// OnFailure moves an active job to error with the taxonomy message of err.
func (m *Machine) OnFailure(f Fence, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.matches(f) {
		return domain.ErrStaleJob
	}
	if !m.job.Status.IsActive() {
		return domain.ErrInvalidTransition
	}
	m.job.Status = domain.StatusError
	m.job.Progress = 0
	m.job.Error = domain.MessageOf(err)
	m.job.ErrorCode = domain.CodeOf(err)
	m.job.FinishedAt = m.now()
	m.commit()
	return nil
}

// OnWarning attaches a non-fatal notice to a completed job.
func (m *Machine) OnWarning(f Fence, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.matches(f) {
		return domain.ErrStaleJob
	}
	if m.job.Status != domain.StatusCompleted {
		return domain.ErrInvalidTransition
	}
	m.job.Warning = domain.MessageOf(err)
	m.commit()
	return nil
}

// Cancel marks the active job cancelled. It returns the fence of the
// cancelled attempt so the caller can stop its poller.
func (m *Machine) Cancel() (Fence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.job.Status.IsActive() {
		return Fence{}, domain.ErrInvalidTransition
	}
	m.job.Status = domain.StatusCancelled
	m.job.Progress = 0
	m.job.FinishedAt = m.now()
	m.commit()
	return Fence{Attempt: m.attempt, JobID: m.job.ID}, nil
}

// Reset returns to idle from any state and reports whether anything changed.
// Calling it again is a no-op.
func (m *Machine) Reset() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempt == "" && m.job.Status == domain.StatusIdle {
		return false
	}
	m.attempt = ""
	m.job = domain.GenerationJob{Status: domain.StatusIdle}
	m.commit()
	return true
}

func (m *Machine) matches(f Fence) bool {
	if f.Attempt == "" || f.Attempt != m.attempt {
		return false
	}
	return f.JobID == "" || f.JobID == m.job.ID
}

func (m *Machine) commit() {
	if m.observer != nil {
		m.observer(m.job)
	}
}

func clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
