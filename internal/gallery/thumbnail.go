package gallery

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// DefaultThumbnailWidth is the width of gallery previews.
const DefaultThumbnailWidth = 320

// Thumbnail decodes an image and returns a JPEG scaled to width, keeping the
// aspect ratio.
func Thumbnail(data []byte, width int) ([]byte, error) {
	if width <= 0 {
		width = DefaultThumbnailWidth
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
