package detector

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmascan/internal/logger"
	"pharmascan/internal/services/barcode"
	"pharmascan/internal/services/ledger"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func frame() Frame {
	return &fakeFrame{size: image.Pt(640, 480)}
}

func ean(payload string, box Box) DecodedSymbol {
	return DecodedSymbol{Payload: payload, Symbology: barcode.EAN13, Box: box}
}

type recordingObserver struct {
	frames     []FrameResult
	suppressed []barcode.Symbology
}

func (o *recordingObserver) FrameProcessed(r FrameResult, _ time.Duration) {
	o.frames = append(o.frames, r)
}

func (o *recordingObserver) SymbolSuppressed(sym barcode.Symbology) {
	o.suppressed = append(o.suppressed, sym)
}

type pipelineFixture struct {
	pre     *fakePreprocessor
	imaging *fakeImaging
	decoder *fakeDecoder
	ledger  *ledger.Ledger
	clock   *fakeClock
	obs     *recordingObserver
	p       *Pipeline
}

func newFixture(answers map[string]DecodeOutcome) *pipelineFixture {
	f := &pipelineFixture{
		pre:     &fakePreprocessor{size: image.Pt(640, 480)},
		imaging: &fakeImaging{},
		decoder: &fakeDecoder{answers: answers},
		ledger:  ledger.New(2 * time.Second),
		clock:   newClock(),
		obs:     &recordingObserver{},
	}
	searcher := NewScaleSearcher(f.imaging, f.decoder, nil, logger.Discard())
	f.p = NewPipeline(f.pre, searcher, f.ledger, logger.Discard(), WithClock(f.clock.Now), WithObserver(f.obs))
	return f
}

func TestPipeline_ShortCircuitsAtFirstRepresentationWithSymbols(t *testing.T) {
	f := newFixture(map[string]DecodeOutcome{
		"contrast@1.2":  Found(ean("4006381333931", Box{X: 120, Y: 120, Width: 60, Height: 30})),
		"binarized@1.0": Found(ean("8470001234567", Box{})),
	})

	res := f.p.ProcessFrame(frame())

	require.True(t, res.Found)
	assert.Equal(t, ContrastEnhanced, res.Technique)
	assert.Equal(t, 1.2, res.Scale)
	assert.Equal(t, []Technique{Original, Grayscale, ContrastEnhanced}, res.Attempted)
	assert.Equal(t, []string{
		"original@1.0", "original@1.2", "original@0.8", "original@1.4",
		"grayscale@1.0", "grayscale@1.2", "grayscale@0.8", "grayscale@1.4",
		"contrast@1.0", "contrast@1.2",
	}, f.decoder.attempts)

	require.Len(t, res.Detections, 1)
	det := res.Detections[0]
	assert.Equal(t, Box{X: 100, Y: 100, Width: 50, Height: 25}, det.Box)
	assert.True(t, det.Recorded)
	require.NotNil(t, det.Record)
	assert.True(t, det.Record.IsValid)
	assert.False(t, det.Record.IsPharmaceutical)
	assert.Equal(t, f.clock.Now(), det.Record.Timestamp)
}

func TestPipeline_NothingFound(t *testing.T) {
	f := newFixture(nil)

	res := f.p.ProcessFrame(frame())

	assert.False(t, res.Found)
	assert.Empty(t, res.Detections)
	assert.Equal(t, 1.0, res.Scale)
	assert.Equal(t, Techniques, res.Attempted)
	assert.Len(t, f.decoder.attempts, 20)
	assert.Zero(t, f.ledger.Len())
}

func TestPipeline_ReleasesAllRepresentations(t *testing.T) {
	f := newFixture(map[string]DecodeOutcome{"original@1.0": Found(ean("4006381333931", Box{}))})

	f.p.ProcessFrame(frame())

	assert.Equal(t, len(Techniques), f.pre.closed, "unsearched representations are released too")
	assert.Equal(t, f.imaging.created, f.imaging.closed)
}

func TestPipeline_CooldownGatesRecordingNotDisplay(t *testing.T) {
	f := newFixture(map[string]DecodeOutcome{"original@1.0": Found(ean("8470001234568", Box{X: 1, Y: 2, Width: 3, Height: 4}))})

	first := f.p.ProcessFrame(frame())
	f.clock.Advance(time.Second)
	second := f.p.ProcessFrame(frame())
	f.clock.Advance(1100 * time.Millisecond)
	third := f.p.ProcessFrame(frame())

	require.Len(t, second.Detections, 1, "duplicate is still returned for display")
	assert.True(t, first.Detections[0].Recorded)
	assert.False(t, second.Detections[0].Recorded)
	assert.Nil(t, second.Detections[0].Record)
	assert.Equal(t, Box{X: 1, Y: 2, Width: 3, Height: 4}, second.Detections[0].Box)
	assert.True(t, third.Detections[0].Recorded)

	assert.Equal(t, 2, f.ledger.Len())
	assert.Equal(t, []barcode.Symbology{barcode.EAN13}, f.obs.suppressed)
	assert.Len(t, f.obs.frames, 3)
}

func TestPipeline_DifferentPayloadRecordedImmediately(t *testing.T) {
	f := newFixture(map[string]DecodeOutcome{"original@1.0": Found(ean("4006381333931", Box{}))})
	f.p.ProcessFrame(frame())

	f.decoder.answers["original@1.0"] = Found(ean("8470001234568", Box{}))
	f.clock.Advance(500 * time.Millisecond)
	res := f.p.ProcessFrame(frame())

	assert.True(t, res.Detections[0].Recorded)
	assert.Equal(t, 2, f.ledger.Len())
}

func TestPipeline_MultipleSymbolsInOneFrame(t *testing.T) {
	f := newFixture(map[string]DecodeOutcome{"grayscale@1.0": Found(
		ean("4006381333932", Box{}),
		DecodedSymbol{Payload: "LOT-42", Symbology: barcode.CODE128},
	)})

	res := f.p.ProcessFrame(frame())

	require.Len(t, res.Detections, 2)
	recs := res.Records()
	require.Len(t, recs, 2)
	assert.False(t, recs[0].IsValid, "bad EAN-13 check digit")
	assert.True(t, recs[1].IsValid)
	assert.Equal(t, recs, f.ledger.Records(nil))
}

func TestPipeline_ClearAllowsReacceptance(t *testing.T) {
	f := newFixture(map[string]DecodeOutcome{"original@1.0": Found(ean("4006381333931", Box{}))})
	f.p.ProcessFrame(frame())

	f.p.Ledger().Clear()
	f.clock.Advance(100 * time.Millisecond)
	res := f.p.ProcessFrame(frame())

	assert.True(t, res.Detections[0].Recorded)
	assert.Equal(t, 1, f.ledger.Statistics().Total)
}
