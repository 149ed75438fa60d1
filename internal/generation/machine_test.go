package generation

import (
	"errors"
	"testing"
	"time"

	"mediagen/internal/domain"
)

func newTestMachine() (*Machine, *[]domain.GenerationJob) {
	var seen []domain.GenerationJob
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := NewMachine(func() time.Time { return now }, func(job domain.GenerationJob) {
		seen = append(seen, job)
	})
	return m, &seen
}

func videoRequest() domain.GenerationRequest {
	return domain.GenerationRequest{Kind: domain.KindVideo, Prompt: "ocean waves at dusk"}
}

func TestSubmitStartsGeneratingForEveryKind(t *testing.T) {
	for _, kind := range []domain.Kind{domain.KindImage, domain.KindVideo, domain.KindTranscript} {
		m, _ := newTestMachine()
		if _, err := m.Submit(domain.GenerationRequest{Kind: kind, Prompt: "x"}, 0); err != nil {
			t.Fatalf("%s: submit: %v", kind, err)
		}
		job := m.Snapshot()
		if job.Status != domain.StatusGenerating || job.Progress != 0 {
			t.Fatalf("%s: status=%s progress=%d", kind, job.Status, job.Progress)
		}
	}
}

func TestSubmitRejectsEmptyPrompt(t *testing.T) {
	m, seen := newTestMachine()
	_, err := m.Submit(domain.GenerationRequest{Kind: domain.KindImage, Prompt: "   "}, 10)
	if domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if m.Snapshot().Status != domain.StatusIdle || len(*seen) != 0 {
		t.Fatalf("validation failure must not change state")
	}
}

func TestSubmitWhileActiveIsRejected(t *testing.T) {
	m, _ := newTestMachine()
	if _, err := m.Submit(videoRequest(), 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.Submit(videoRequest(), 0); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestSubmitFromTerminalClearsPriorOutcome(t *testing.T) {
	m, _ := newTestMachine()
	f, _ := m.Submit(videoRequest(), 0)
	_ = m.OnFailure(f, domain.NewTimeoutError())

	if _, err := m.Submit(videoRequest(), 0); err != nil {
		t.Fatalf("resubmit from error: %v", err)
	}
	job := m.Snapshot()
	if job.Error != "" || job.ErrorCode != "" || job.Result != nil || job.Progress != 0 {
		t.Fatalf("prior outcome leaked: %+v", job)
	}
}

func TestProgressIsMonotonicAndClamped(t *testing.T) {
	m, _ := newTestMachine()
	f, _ := m.Submit(videoRequest(), 0)
	accepted, err := m.OnJobAccepted(f, "job-123")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	steps := []struct {
		in   int
		want int
	}{
		{20, 20}, {10, 20}, {55, 55}, {55, 55}, {-5, 55}, {90, 90}, {250, 100},
	}
	for _, s := range steps {
		if err := m.OnProgress(accepted, s.in); err != nil {
			t.Fatalf("progress %d: %v", s.in, err)
		}
		if got := m.Snapshot().Progress; got != s.want {
			t.Fatalf("after %d progress = %d, want %d", s.in, got, s.want)
		}
	}
}

func TestProgressOnlyWhilePolling(t *testing.T) {
	m, _ := newTestMachine()
	f, _ := m.Submit(videoRequest(), 0)
	if err := m.OnProgress(f, 40); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("progress in generating: %v", err)
	}
}

func TestTerminalResultSetsFullProgress(t *testing.T) {
	m, _ := newTestMachine()
	f, _ := m.Submit(videoRequest(), 0)
	accepted, _ := m.OnJobAccepted(f, "job-123")
	_ = m.OnProgress(accepted, 90)

	job, err := m.OnTerminalResult(accepted, &domain.Result{MediaURLs: []string{"https://cdn/v.mp4"}})
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if job.Status != domain.StatusCompleted || job.Progress != 100 || job.ID != "job-123" {
		t.Fatalf("unexpected job %+v", job)
	}
	if _, err := m.OnTerminalResult(accepted, &domain.Result{}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("duplicate completion must be rejected, got %v", err)
	}
}

func TestLateResultAfterCancelIsDiscarded(t *testing.T) {
	m, _ := newTestMachine()
	f, _ := m.Submit(videoRequest(), 0)
	accepted, _ := m.OnJobAccepted(f, "job-123")

	if _, err := m.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := m.OnTerminalResult(accepted, &domain.Result{MediaURLs: []string{"late"}}); err == nil {
		t.Fatalf("late result applied after cancel")
	}
	if job := m.Snapshot(); job.Status != domain.StatusCancelled || job.Result != nil {
		t.Fatalf("state = %+v, want cancelled without result", job)
	}
}

func TestLateResultAfterTimeoutIsDiscarded(t *testing.T) {
	m, _ := newTestMachine()
	f, _ := m.Submit(videoRequest(), 0)
	accepted, _ := m.OnJobAccepted(f, "job-123")
	_ = m.OnFailure(accepted, domain.NewTimeoutError())

	if _, err := m.OnTerminalResult(accepted, &domain.Result{}); err == nil {
		t.Fatalf("late result applied after timeout")
	}
	job := m.Snapshot()
	if job.Status != domain.StatusError || job.ErrorCode != domain.CodeTimeout {
		t.Fatalf("state = %+v", job)
	}
}

func TestSupersededFenceIsStale(t *testing.T) {
	m, _ := newTestMachine()
	first, _ := m.Submit(videoRequest(), 0)
	firstAccepted, _ := m.OnJobAccepted(first, "job-1")
	_, _ = m.Cancel()

	second, _ := m.Submit(videoRequest(), 0)
	if _, err := m.OnJobAccepted(second, "job-2"); err != nil {
		t.Fatalf("accept second: %v", err)
	}
	if err := m.OnProgress(firstAccepted, 80); !errors.Is(err, domain.ErrStaleJob) {
		t.Fatalf("old fence progress: %v", err)
	}
	if err := m.OnFailure(firstAccepted, errors.New("boom")); !errors.Is(err, domain.ErrStaleJob) {
		t.Fatalf("old fence failure: %v", err)
	}
	if m.Snapshot().ID != "job-2" || m.Snapshot().Status != domain.StatusPolling {
		t.Fatalf("current job disturbed: %+v", m.Snapshot())
	}
}

func TestWrongJobIDIsStale(t *testing.T) {
	m, _ := newTestMachine()
	f, _ := m.Submit(videoRequest(), 0)
	accepted, _ := m.OnJobAccepted(f, "job-123")
	other := Fence{Attempt: accepted.Attempt, JobID: "job-999"}
	if err := m.OnProgress(other, 50); !errors.Is(err, domain.ErrStaleJob) {
		t.Fatalf("expected stale, got %v", err)
	}
}

func TestFailureStoresTaxonomyMessage(t *testing.T) {
	m, _ := newTestMachine()
	f, _ := m.Submit(videoRequest(), 0)
	_ = m.OnFailure(f, domain.NewSubmissionError(errors.New("dial tcp 10.0.0.1:443: i/o timeout")))

	job := m.Snapshot()
	if job.Status != domain.StatusError || job.ErrorCode != domain.CodeSubmission {
		t.Fatalf("state = %+v", job)
	}
	if job.Error != "generation request failed" {
		t.Fatalf("raw transport error leaked: %q", job.Error)
	}
}

func TestCancelOnlyFromActive(t *testing.T) {
	m, _ := newTestMachine()
	if _, err := m.Cancel(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("cancel from idle: %v", err)
	}
	f, _ := m.Submit(videoRequest(), 0)
	_, _ = m.OnTerminalResult(f, &domain.Result{Text: "done"})
	if _, err := m.Cancel(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("cancel from completed: %v", err)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	m, seen := newTestMachine()
	f, _ := m.Submit(videoRequest(), 0)
	_, _ = m.OnJobAccepted(f, "job-123")

	if !m.Reset() {
		t.Fatalf("first reset should change state")
	}
	count := len(*seen)
	if m.Snapshot().Status != domain.StatusIdle {
		t.Fatalf("status after reset = %s", m.Snapshot().Status)
	}
	if m.Reset() {
		t.Fatalf("second reset should be a no-op")
	}
	if len(*seen) != count || m.Snapshot().Status != domain.StatusIdle {
		t.Fatalf("second reset emitted a snapshot")
	}
	if err := m.OnProgress(Fence{Attempt: f.Attempt, JobID: "job-123"}, 10); !errors.Is(err, domain.ErrStaleJob) {
		t.Fatalf("fence must be invalid after reset, got %v", err)
	}
}

func TestWarningOnlyOnCompleted(t *testing.T) {
	m, _ := newTestMachine()
	f, _ := m.Submit(videoRequest(), 0)
	if err := m.OnWarning(f, domain.NewPersistenceWarning(errors.New("x"))); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("warning before completion: %v", err)
	}
	_, _ = m.OnTerminalResult(f, &domain.Result{Text: "ok"})
	if err := m.OnWarning(f, domain.NewPersistenceWarning(errors.New("x"))); err != nil {
		t.Fatalf("warning: %v", err)
	}
	job := m.Snapshot()
	if job.Status != domain.StatusCompleted || job.Warning == "" {
		t.Fatalf("state = %+v", job)
	}
}
