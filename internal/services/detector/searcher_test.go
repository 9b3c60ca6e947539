package detector

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmascan/internal/logger"
	"pharmascan/internal/services/barcode"
)

func rep(tech Technique, size image.Point) Representation {
	return Representation{Technique: tech, Frame: &fakeFrame{technique: tech, scale: 1.0, size: size}}
}

func symbol(payload string) DecodedSymbol {
	return DecodedSymbol{Payload: payload, Symbology: barcode.CODE128, Box: Box{X: 12, Y: 12, Width: 24, Height: 6}}
}

func TestScaleSearcher_StopsAtFirstSuccessfulScale(t *testing.T) {
	imaging := &fakeImaging{}
	decoder := &fakeDecoder{answers: map[string]DecodeOutcome{
		"grayscale@1.2": Found(symbol("A")),
		"grayscale@0.8": Found(symbol("B")),
	}}
	s := NewScaleSearcher(imaging, decoder, nil, logger.Discard())

	res := s.Search(rep(Grayscale, image.Pt(100, 50)))

	require.True(t, res.Found())
	assert.Equal(t, 1.2, res.Scale)
	assert.Equal(t, "A", res.Symbols[0].Payload)
	assert.Equal(t, 1.2, res.Symbols[0].Scale)
	assert.Equal(t, []string{"grayscale@1.0", "grayscale@1.2"}, decoder.attempts)
	assert.Equal(t, barcode.Supported, decoder.allowed)
}

func TestScaleSearcher_TriesScalesInFixedOrder(t *testing.T) {
	imaging := &fakeImaging{}
	decoder := &fakeDecoder{}
	s := NewScaleSearcher(imaging, decoder, nil, logger.Discard())

	res := s.Search(rep(Original, image.Pt(100, 50)))

	assert.False(t, res.Found())
	assert.Equal(t, 1.0, res.Scale)
	assert.Empty(t, res.Symbols)
	assert.Equal(t, []string{"original@1.0", "original@1.2", "original@0.8", "original@1.4"}, decoder.attempts)
	assert.Equal(t, []float64{1.2, 0.8, 1.4}, imaging.resized, "unity scale decodes the smoothed image directly")
}

func TestScaleSearcher_DecodeErrorIsNegativeResult(t *testing.T) {
	decoder := &fakeDecoder{answers: map[string]DecodeOutcome{
		"binarized@1.0": None(ErrDecode),
		"binarized@1.2": {Symbols: []DecodedSymbol{symbol("ignored")}, Err: errors.New("partial")},
		"binarized@0.8": Found(symbol("C")),
	}}
	s := NewScaleSearcher(&fakeImaging{}, decoder, nil, logger.Discard())

	res := s.Search(rep(Binarized, image.Pt(100, 50)))

	require.True(t, res.Found())
	assert.Equal(t, 0.8, res.Scale)
	assert.Equal(t, "C", res.Symbols[0].Payload)
}

func TestScaleSearcher_SkipsNonPositiveSizes(t *testing.T) {
	imaging := &fakeImaging{}
	decoder := &fakeDecoder{}
	s := NewScaleSearcher(imaging, decoder, nil, logger.Discard())

	s.Search(rep(Original, image.Pt(1, 1)))

	// 1*0.8 truncates to 0, so that scale is neither resized nor decoded.
	assert.Len(t, decoder.attempts, 3)
	assert.Len(t, imaging.resized, 2)
}

func TestScaleSearcher_DenoiseFailureSearchesRawFrame(t *testing.T) {
	imaging := &fakeImaging{denoiseErr: errors.New("bilateral failed")}
	decoder := &fakeDecoder{answers: map[string]DecodeOutcome{"grayscale@1.0": Found(symbol("D"))}}
	s := NewScaleSearcher(imaging, decoder, nil, logger.Discard())

	res := s.Search(rep(Grayscale, image.Pt(100, 50)))

	require.True(t, res.Found())
	assert.True(t, decoder.sawRaw)
}

func TestScaleSearcher_ReleasesIntermediateFrames(t *testing.T) {
	imaging := &fakeImaging{}
	s := NewScaleSearcher(imaging, &fakeDecoder{}, nil, logger.Discard())

	s.Search(rep(Original, image.Pt(100, 50)))

	assert.Equal(t, 4, imaging.created, "one smoothed plus three resized frames")
	assert.Equal(t, imaging.created, imaging.closed)
}

func TestScaleSearcher_CustomScales(t *testing.T) {
	decoder := &fakeDecoder{}
	s := NewScaleSearcher(&fakeImaging{}, decoder, []float64{0.5, 1.0}, logger.Discard())

	s.Search(rep(Original, image.Pt(100, 50)))

	assert.Equal(t, []string{"original@0.5", "original@1.0"}, decoder.attempts)
	assert.Equal(t, []float64{0.5, 1.0}, s.Scales())
}

func TestBox_Remap(t *testing.T) {
	assert.Equal(t, Box{X: 100, Y: 100, Width: 50, Height: 25}, Box{X: 120, Y: 120, Width: 60, Height: 30}.Remap(1.2))
	assert.Equal(t, Box{X: 100, Y: 50, Width: 10, Height: 5}, Box{X: 80, Y: 40, Width: 8, Height: 4}.Remap(0.8))
	assert.Equal(t, Box{X: 7, Y: 8, Width: 9, Height: 10}, Box{X: 7, Y: 8, Width: 9, Height: 10}.Remap(1.0))
}
