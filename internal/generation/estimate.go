package generation

import (
	"time"

	"mediagen/internal/domain"
)

// maxEstimatedProgress keeps time-based progress short of completion.
const maxEstimatedProgress = 95

// DefaultExpected is the typical wall time per kind.
var DefaultExpected = map[domain.Kind]time.Duration{
	domain.KindImage:      20 * time.Second,
	domain.KindVideo:      2 * time.Minute,
	domain.KindTranscript: 10 * time.Second,
}

// Estimate is the elapsed and remaining time of an active job.
type Estimate struct {
	Elapsed   time.Duration
	Remaining time.Duration
}

// View is a job snapshot with timing estimates for display.
type View struct {
	domain.GenerationJob
	ElapsedSeconds   int `json:"elapsed_seconds"`
	RemainingSeconds int `json:"remaining_seconds"`
}

// Estimator derives timing from a job's start time and its kind.
type Estimator struct {
	Expected map[domain.Kind]time.Duration
}

func (e Estimator) expected(kind domain.Kind) time.Duration {
	if d, ok := e.Expected[kind]; ok && d > 0 {
		return d
	}
	if d, ok := DefaultExpected[kind]; ok {
		return d
	}
	return time.Minute
}

// Estimate is zero for jobs that are not active.
func (e Estimator) Estimate(job domain.GenerationJob, now time.Time) Estimate {
	if !job.Status.IsActive() || job.StartedAt.IsZero() {
		return Estimate{}
	}
	elapsed := now.Sub(job.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := e.expected(job.Kind) - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return Estimate{Elapsed: elapsed, Remaining: remaining}
}

// Progress converts elapsed time into a percentage for providers that do
// not report one. It never reaches 100.
func (e Estimator) Progress(job domain.GenerationJob, now time.Time) int {
	est := e.Estimate(job, now)
	if est.Elapsed == 0 {
		return 0
	}
	p := int(est.Elapsed * 100 / e.expected(job.Kind))
	if p > maxEstimatedProgress {
		p = maxEstimatedProgress
	}
	return p
}

// View decorates job with its estimate.
func (e Estimator) View(job domain.GenerationJob, now time.Time) View {
	est := e.Estimate(job, now)
	return View{
		GenerationJob:    job,
		ElapsedSeconds:   int(est.Elapsed / time.Second),
		RemainingSeconds: int((est.Remaining + time.Second - 1) / time.Second),
	}
}
