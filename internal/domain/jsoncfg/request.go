package jsoncfg

import (
	"fmt"
	"strings"

	"mediagen/internal/domain"
)

var aspectSizes = map[string][2]int{
	"1:1":  {1024, 1024},
	"4:3":  {1152, 864},
	"3:4":  {864, 1152},
	"16:9": {1280, 720},
	"9:16": {720, 1280},
}

const (
	// DefaultAspectRatio is used when the request omits the aspect ratio.
	DefaultAspectRatio = "1:1"
	// DefaultLocale is applied when no locale preference is provided.
	DefaultLocale = "en"
	// DefaultVideoSeconds is the clip length when the request leaves it empty.
	DefaultVideoSeconds = 5
	// MaxVideoSeconds caps the clip length providers accept.
	MaxVideoSeconds = 10
	// MaxImageSide caps each image dimension.
	MaxImageSide = 2048
)

// Normalize fills server defaults on a generation request before validation.
func Normalize(req *domain.GenerationRequest, preferredLocale string) error {
	if req == nil {
		return domain.NewValidationError("request is required")
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if kind, ok := domain.ParseKind(string(req.Kind)); ok {
		req.Kind = kind
	}
	if req.Locale == "" {
		if preferredLocale != "" {
			req.Locale = preferredLocale
		} else {
			req.Locale = DefaultLocale
		}
	}
	switch req.Kind {
	case domain.KindImage, domain.KindVideo:
		if req.AspectRatio == "" {
			req.AspectRatio = DefaultAspectRatio
		}
		size, ok := aspectSizes[req.AspectRatio]
		if !ok {
			return domain.NewValidationError("aspect_ratio must be one of 1:1, 4:3, 3:4, 16:9, 9:16")
		}
		if req.Width == 0 && req.Height == 0 {
			req.Width, req.Height = size[0], size[1]
		}
		if req.Width > MaxImageSide || req.Height > MaxImageSide {
			return domain.NewValidationError(fmt.Sprintf("output size is limited to %dx%d", MaxImageSide, MaxImageSide))
		}
	}
	if req.Kind == domain.KindVideo {
		if req.DurationSeconds == 0 {
			req.DurationSeconds = DefaultVideoSeconds
		}
		if req.DurationSeconds > MaxVideoSeconds {
			req.DurationSeconds = MaxVideoSeconds
		}
	}
	return nil
}
