package credits

import (
	"fmt"
	"sort"

	"mediagen/internal/domain"
)

// Bucket prices every image whose pixel area is at most MaxPixels.
type Bucket struct {
	Name      string
	MaxPixels int
	Cost      int
}

// PriceTable maps a request to a credit cost. Images are priced by output
// area rounded up to the nearest bucket; other kinds have fixed costs.
type PriceTable struct {
	ImageBuckets   []Bucket
	VideoCost      int
	TranscriptCost int
}

// DefaultPriceTable is the production tier table.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		ImageBuckets: []Bucket{
			{Name: "free", MaxPixels: 512 * 512, Cost: 0},
			{Name: "standard", MaxPixels: 1024 * 1024, Cost: 10},
			{Name: "hd", MaxPixels: 1536 * 1536, Cost: 20},
			{Name: "ultra", MaxPixels: 2048 * 2048, Cost: 40},
		},
		VideoCost:      50,
		TranscriptCost: 5,
	}
}

// Quote describes the price of a request.
type Quote struct {
	Kind   domain.Kind `json:"kind"`
	Bucket string      `json:"bucket,omitempty"`
	Cost   int         `json:"cost"`
}

// Cost returns the credit cost for req.
func (t PriceTable) Cost(req domain.GenerationRequest) (int, error) {
	q, err := t.Quote(req)
	if err != nil {
		return 0, err
	}
	return q.Cost, nil
}

// Quote prices req and names the bucket it fell into.
func (t PriceTable) Quote(req domain.GenerationRequest) (Quote, error) {
	switch req.Kind {
	case domain.KindImage:
		b, err := t.imageBucket(req.Width, req.Height)
		if err != nil {
			return Quote{}, err
		}
		return Quote{Kind: req.Kind, Bucket: b.Name, Cost: b.Cost}, nil
	case domain.KindVideo:
		return Quote{Kind: req.Kind, Cost: t.VideoCost}, nil
	case domain.KindTranscript:
		return Quote{Kind: req.Kind, Cost: t.TranscriptCost}, nil
	default:
		return Quote{}, domain.NewValidationError("unsupported generation kind")
	}
}

func (t PriceTable) imageBucket(width, height int) (Bucket, error) {
	if width <= 0 || height <= 0 {
		return Bucket{}, domain.NewValidationError("image size is required for pricing")
	}
	buckets := append([]Bucket(nil), t.ImageBuckets...)
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].MaxPixels < buckets[j].MaxPixels })
	area := width * height
	for _, b := range buckets {
		if area <= b.MaxPixels {
			return b, nil
		}
	}
	return Bucket{}, domain.NewValidationError(fmt.Sprintf("image size %dx%d exceeds the largest tier", width, height))
}
