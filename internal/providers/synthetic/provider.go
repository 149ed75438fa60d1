// Package synthetic implements a local provider that needs no credentials.
// Images are rendered in-process, transcripts are templated, and videos run
// as timed jobs so the polling path can be exercised end to end.
package synthetic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"image/color"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"mediagen/internal/domain"
	"mediagen/internal/providers"
)

// ErrUnknownJob is returned by Status for ids this provider never issued.
var ErrUnknownJob = errors.New("synthetic: unknown job")

// Options tunes the synthetic provider.
type Options struct {
	// VideoDuration is how long a video job stays running.
	VideoDuration time.Duration
	// BaseURL prefixes the fake media URLs.
	BaseURL string
	Now     func() time.Time
}

// Provider is safe for concurrent use.
type Provider struct {
	videoDuration time.Duration
	baseURL       string
	now           func() time.Time

	mu   sync.Mutex
	jobs map[string]videoJob
}

type videoJob struct {
	prompt    string
	startedAt time.Time
}

// New returns a provider with defaults applied.
func New(opts Options) *Provider {
	if opts.VideoDuration <= 0 {
		opts.VideoDuration = 12 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://synthetic.invalid"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Provider{
		videoDuration: opts.VideoDuration,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		now:           opts.Now,
		jobs:          make(map[string]videoJob),
	}
}

func (p *Provider) Submit(ctx context.Context, payload providers.Payload) (providers.Submission, error) {
	if err := ctx.Err(); err != nil {
		return providers.Submission{}, err
	}
	switch payload.Kind {
	case domain.KindImage:
		res, err := p.renderImage(payload)
		if err != nil {
			return providers.Submission{}, err
		}
		return providers.Submission{Result: res}, nil
	case domain.KindTranscript:
		return providers.Submission{Result: &domain.Result{
			Text:     transcript(payload.Prompt),
			Format:   "text/plain",
			Metadata: map[string]any{"provider": "synthetic"},
		}}, nil
	case domain.KindVideo:
		id := "syn-" + uuid.NewString()
		p.mu.Lock()
		p.jobs[id] = videoJob{prompt: payload.Prompt, startedAt: p.now()}
		p.mu.Unlock()
		return providers.Submission{JobID: id}, nil
	default:
		return providers.Submission{}, fmt.Errorf("synthetic: unsupported kind %q", payload.Kind)
	}
}

// Status derives progress from elapsed time against VideoDuration.
func (p *Provider) Status(ctx context.Context, jobID string) (providers.StatusReport, error) {
	if err := ctx.Err(); err != nil {
		return providers.StatusReport{}, err
	}
	p.mu.Lock()
	job, ok := p.jobs[jobID]
	p.mu.Unlock()
	if !ok {
		return providers.StatusReport{}, ErrUnknownJob
	}
	elapsed := p.now().Sub(job.startedAt)
	if elapsed < p.videoDuration {
		return providers.StatusReport{
			State:    providers.StateRunning,
			Progress: int(elapsed * 100 / p.videoDuration),
		}, nil
	}
	p.mu.Lock()
	delete(p.jobs, jobID)
	p.mu.Unlock()
	return providers.StatusReport{
		State:    providers.StateSucceeded,
		Progress: 100,
		Result: &domain.Result{
			MediaURLs: []string{fmt.Sprintf("%s/video/%s.mp4", p.baseURL, jobID)},
			Format:    "video/mp4",
			Metadata:  map[string]any{"provider": "synthetic", "task_id": jobID},
		},
	}, nil
}

// renderImage paints a flat swatch whose colour is derived from the prompt.
func (p *Provider) renderImage(payload providers.Payload) (*domain.Result, error) {
	width, height := payload.Width, payload.Height
	if width <= 0 || height <= 0 {
		width, height = 512, 512
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(payload.Prompt))
	sum := h.Sum32()
	fill := color.NRGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 0xff}
	img := imaging.New(width, height, fill)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("synthetic: encode image: %w", err)
	}
	return &domain.Result{
		MediaURLs: []string{fmt.Sprintf("%s/image/%08x.png", p.baseURL, sum)},
		Format:    "image/png",
		Width:     width,
		Height:    height,
		Metadata:  map[string]any{"provider": "synthetic"},
		Data:      buf.Bytes(),
	}, nil
}

func transcript(topic string) string {
	topic = strings.TrimSpace(topic)
	return fmt.Sprintf("Ever wondered about %s? In the next few seconds we'll show you why it matters. Stay with us.", topic)
}

var _ providers.Provider = (*Provider)(nil)
