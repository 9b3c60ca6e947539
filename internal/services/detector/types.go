package detector

import (
	"math"

	"pharmascan/internal/models"
	"pharmascan/internal/services/barcode"
)

// Technique identifies how a candidate representation was derived from the raw frame.
// The numeric order is the search priority.
type Technique int

const (
	Original Technique = iota
	Grayscale
	ContrastEnhanced
	Binarized
	Morphological
)

// Techniques lists every technique in search order.
var Techniques = []Technique{Original, Grayscale, ContrastEnhanced, Binarized, Morphological}

func (t Technique) String() string {
	switch t {
	case Original:
		return "original"
	case Grayscale:
		return "grayscale"
	case ContrastEnhanced:
		return "contrast"
	case Binarized:
		return "binarized"
	case Morphological:
		return "morphological"
	default:
		return "unknown"
	}
}

// DefaultScales is the scale search order. Unity first, then up, down, and further up.
var DefaultScales = []float64{1.0, 1.2, 0.8, 1.4}

// Representation is a tagged frame produced by one preprocessing technique.
type Representation struct {
	Technique Technique
	Frame     Frame
}

// Box is an axis aligned rectangle in pixels.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Remap converts a box found in an image resized by scale back to original frame coordinates.
func (b Box) Remap(scale float64) Box {
	if scale <= 0 || scale == 1.0 {
		return b
	}
	div := func(v int) int { return int(math.Round(float64(v) / scale)) }
	return Box{X: div(b.X), Y: div(b.Y), Width: div(b.Width), Height: div(b.Height)}
}

// DecodedSymbol is what the decoder reports. Box is in the scaled image space.
type DecodedSymbol struct {
	Payload   string
	Symbology barcode.Symbology
	Box       Box
	Scale     float64
}

// SearchResult is the outcome of a scale search over one representation.
type SearchResult struct {
	Symbols []DecodedSymbol
	Scale   float64
}

// Found reports whether the search produced any symbol.
func (r SearchResult) Found() bool {
	return len(r.Symbols) > 0
}

// Detection is a symbol prepared for display: box in original coordinates, and
// the record it produced if the cooldown gate accepted it.
type Detection struct {
	Payload   string
	Symbology barcode.Symbology
	Box       Box
	Recorded  bool
	Record    *models.DetectionRecord
}

// FrameResult is everything the pipeline learned from one frame.
type FrameResult struct {
	Detections []Detection
	Technique  Technique
	Scale      float64
	Found      bool
	// Attempted lists the techniques whose representation was searched, in order.
	Attempted []Technique
}

// Records returns the records created while processing the frame.
func (r FrameResult) Records() []models.DetectionRecord {
	out := make([]models.DetectionRecord, 0, len(r.Detections))
	for _, d := range r.Detections {
		if d.Record != nil {
			out = append(out, *d.Record)
		}
	}
	return out
}
