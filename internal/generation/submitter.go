package generation

import (
	"context"
	"errors"
	"fmt"

	"mediagen/internal/domain"
	"mediagen/internal/providers"
)

// Submitter routes a request to the provider registered for its kind.
type Submitter struct {
	byKind map[domain.Kind]providers.Provider
}

// NewSubmitter builds a submitter from a kind to provider table.
func NewSubmitter(byKind map[domain.Kind]providers.Provider) *Submitter {
	table := make(map[domain.Kind]providers.Provider, len(byKind))
	for k, p := range byKind {
		if p != nil {
			table[k] = p
		}
	}
	return &Submitter{byKind: table}
}

// Provider returns the provider for kind.
func (s *Submitter) Provider(kind domain.Kind) (providers.Provider, bool) {
	p, ok := s.byKind[kind]
	return p, ok
}

// Submit issues exactly one provider call. Every failure comes back as a
// SubmissionError; nothing is retried here.
func (s *Submitter) Submit(ctx context.Context, req domain.GenerationRequest, requestID string) (providers.Submission, error) {
	p, ok := s.byKind[req.Kind]
	if !ok {
		return providers.Submission{}, domain.NewSubmissionError(fmt.Errorf("no provider for kind %q", req.Kind))
	}
	sub, err := p.Submit(ctx, providers.PayloadFrom(req, requestID))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return providers.Submission{}, err
		}
		return providers.Submission{}, domain.NewSubmissionError(err)
	}
	if sub.Result == nil && sub.JobID == "" {
		return providers.Submission{}, domain.NewSubmissionError(errors.New("provider returned neither a result nor a job id"))
	}
	return sub, nil
}
