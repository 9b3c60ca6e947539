package detector

import (
	"errors"
	"image"

	"pharmascan/internal/logger"
	"pharmascan/internal/services/barcode"
)

// ErrDecode marks a decoder failure that is not a plain "nothing found".
var ErrDecode = errors.New("decode failed")

// DecodeOutcome is the explicit result of one decode attempt: symbols, or none with an optional reason.
type DecodeOutcome struct {
	Symbols []DecodedSymbol
	Err     error
}

// None is the negative outcome.
func None(err error) DecodeOutcome {
	return DecodeOutcome{Err: err}
}

// Found wraps decoded symbols.
func Found(symbols ...DecodedSymbol) DecodeOutcome {
	return DecodeOutcome{Symbols: symbols}
}

// Decoder demodulates barcodes out of a frame, restricted to the allowed symbologies.
// Box coordinates are in the coordinate space of f.
type Decoder interface {
	Decode(f Frame, allowed []barcode.Symbology) DecodeOutcome
}

// Imaging performs the image operations needed by the scale search.
type Imaging interface {
	// Denoise reduces f to one intensity channel and applies edge preserving smoothing.
	Denoise(f Frame) (Frame, error)
	Resize(f Frame, size image.Point) (Frame, error)
}

// Searcher finds symbols in one representation.
type Searcher interface {
	Search(rep Representation) SearchResult
}

// ScaleSearcher denoises a representation and tries each scale in order until the decoder finds something.
type ScaleSearcher struct {
	imaging Imaging
	decoder Decoder
	scales  []float64
	allowed []barcode.Symbology
	logger  *logger.Logger
}

// NewScaleSearcher creates a searcher. Empty scales fall back to DefaultScales.
func NewScaleSearcher(imaging Imaging, decoder Decoder, scales []float64, logger *logger.Logger) *ScaleSearcher {
	if len(scales) == 0 {
		scales = DefaultScales
	}
	return &ScaleSearcher{
		imaging: imaging,
		decoder: decoder,
		scales:  append([]float64(nil), scales...),
		allowed: barcode.Supported,
		logger:  logger,
	}
}

// Scales returns the scale order in use.
func (s *ScaleSearcher) Scales() []float64 {
	return append([]float64(nil), s.scales...)
}

// Search returns the symbols of the first scale that yields any, together with that scale.
// When no scale succeeds the result is empty with scale 1.0.
func (s *ScaleSearcher) Search(rep Representation) SearchResult {
	src := rep.Frame
	if smoothed, err := s.imaging.Denoise(rep.Frame); err != nil {
		s.logger.Warning("Denoise failed for %s representation, searching it unfiltered: %v", rep.Technique, err)
	} else {
		defer smoothed.Close()
		src = smoothed
	}

	size := src.Size()
	for _, scale := range s.scales {
		outcome, ok := s.tryScale(src, size, scale)
		if !ok {
			continue
		}
		if outcome.Err != nil {
			s.logger.Debug("No symbols in %s at scale %.1f: %v", rep.Technique, scale, outcome.Err)
			continue
		}
		if len(outcome.Symbols) == 0 {
			continue
		}

		symbols := make([]DecodedSymbol, len(outcome.Symbols))
		for i, sym := range outcome.Symbols {
			sym.Scale = scale
			symbols[i] = sym
		}
		return SearchResult{Symbols: symbols, Scale: scale}
	}

	return SearchResult{Scale: 1.0}
}

// tryScale decodes src at one scale. ok is false when the scale was skipped.
func (s *ScaleSearcher) tryScale(src Frame, size image.Point, scale float64) (DecodeOutcome, bool) {
	if scale == 1.0 {
		return s.decoder.Decode(src, s.allowed), true
	}

	target := image.Pt(int(float64(size.X)*scale), int(float64(size.Y)*scale))
	if target.X <= 0 || target.Y <= 0 {
		s.logger.Debug("Skipping scale %.1f: resized frame would be %dx%d", scale, target.X, target.Y)
		return DecodeOutcome{}, false
	}

	scaled, err := s.imaging.Resize(src, target)
	if err != nil {
		return None(err), true
	}
	defer scaled.Close()

	return s.decoder.Decode(scaled, s.allowed), true
}
