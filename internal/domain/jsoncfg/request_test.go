package jsoncfg

import (
	"testing"

	"mediagen/internal/domain"
)

func TestNormalizeImageDefaults(t *testing.T) {
	req := domain.GenerationRequest{Kind: "IMAGE", Prompt: "  a red fox "}
	if err := Normalize(&req, "id"); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if req.Kind != domain.KindImage {
		t.Fatalf("kind = %q, want image", req.Kind)
	}
	if req.Prompt != "a red fox" {
		t.Fatalf("prompt = %q, want trimmed", req.Prompt)
	}
	if req.Width != 1024 || req.Height != 1024 {
		t.Fatalf("size = %dx%d, want 1024x1024", req.Width, req.Height)
	}
	if req.Locale != "id" {
		t.Fatalf("locale = %q, want id", req.Locale)
	}
}

func TestNormalizeRejectsUnknownAspect(t *testing.T) {
	req := domain.GenerationRequest{Kind: domain.KindImage, Prompt: "x", AspectRatio: "2:1"}
	err := Normalize(&req, "")
	if domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestNormalizeCapsVideoDuration(t *testing.T) {
	req := domain.GenerationRequest{Kind: domain.KindVideo, Prompt: "waves", DurationSeconds: 40}
	if err := Normalize(&req, ""); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if req.DurationSeconds != MaxVideoSeconds {
		t.Fatalf("duration = %d, want %d", req.DurationSeconds, MaxVideoSeconds)
	}
	if req.Width != 1024 {
		t.Fatalf("width = %d, want default aspect width", req.Width)
	}
}
