package services

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmascan/internal/config"
	"pharmascan/internal/dto"
	"pharmascan/internal/logger"
	"pharmascan/internal/models"
	"pharmascan/internal/services/barcode"
	"pharmascan/internal/services/detector"
	"pharmascan/internal/services/export"
	"pharmascan/internal/services/ledger"
)

// scriptedPipeline returns one prepared payload per frame ("" means nothing found)
// and gates through the real ledger.
type scriptedPipeline struct {
	ledger   *ledger.Ledger
	payloads []string
	calls    int
	now      time.Time
}

func (p *scriptedPipeline) ProcessFrame(detector.Frame) detector.FrameResult {
	payload := p.payloads[p.calls%len(p.payloads)]
	p.calls++
	p.now = p.now.Add(100 * time.Millisecond)
	if payload == "" {
		return detector.FrameResult{Scale: 1.0}
	}

	det := detector.Detection{Payload: payload, Symbology: barcode.EAN13, Box: detector.Box{X: 1, Y: 2, Width: 3, Height: 4}}
	if rec, ok := p.ledger.AcceptAndRecord(payload, barcode.EAN13, p.now, barcode.IsValidEAN13(payload), barcode.IsPharmaceutical(payload, barcode.EAN13)); ok {
		det.Recorded, det.Record = true, &rec
	}
	return detector.FrameResult{Found: true, Technique: detector.Grayscale, Scale: 1.2, Detections: []detector.Detection{det}}
}

type sliceSource struct {
	n      int
	err    error
	closed int
}

type testFrame struct{ closed *int }

func (f testFrame) Size() image.Point           { return image.Pt(4, 4) }
func (f testFrame) Channels() int               { return 3 }
func (f testFrame) Image() (image.Image, error) { return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil }
func (f testFrame) Close() error                { *f.closed++; return nil }

func (s *sliceSource) Read() (detector.Frame, error) {
	if s.n == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	s.n--
	return testFrame{closed: &s.closed}, nil
}

type keyRenderer struct {
	keys     []int
	overlays []dto.Overlay
}

func (r *keyRenderer) Render(_ detector.Frame, _ []detector.Detection, o dto.Overlay) int {
	r.overlays = append(r.overlays, o)
	if len(r.keys) == 0 {
		return -1
	}
	k := r.keys[0]
	r.keys = r.keys[1:]
	return k
}

type collectingSink struct{ records []models.DetectionRecord }

func (s *collectingSink) Add(records ...models.DetectionRecord) {
	s.records = append(s.records, records...)
}

type collectingPublisher struct {
	published []string
	err       error
}

func (p *collectingPublisher) Publish(_ context.Context, rec models.DetectionRecord) error {
	p.published = append(p.published, rec.Payload)
	return p.err
}

type collectingBroadcaster struct{ events []dto.DetectionEvent }

func (b *collectingBroadcaster) BroadcastEvent(e dto.DetectionEvent) bool {
	b.events = append(b.events, e)
	return true
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		ExportDirectory:       t.TempDir(),
		ExportFormat:          "json",
		ProcessingModes:       config.DefaultProcessingModes,
		ViewerBroadcastEveryN: 3,
	}
}

func newTestManager(t *testing.T, payloads []string, opts ...ManagerOption) (*Manager, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(2 * time.Second)
	p := &scriptedPipeline{ledger: l, payloads: payloads, now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	m := NewManager(p, l, export.NewExporter(logger.Discard(), nil), testConfig(t), logger.Discard(), opts...)
	return m, l
}

func TestManager_RunUntilSourceEnds(t *testing.T) {
	sink := &collectingSink{}
	pub := &collectingPublisher{err: errors.New("broker down")}
	m, l := newTestManager(t, []string{"8470001234568"}, WithRecordSink(sink), WithPublisher(pub))
	src := &sliceSource{n: 5}

	require.NoError(t, m.Run(context.Background(), src))

	assert.Equal(t, uint64(5), m.Frames())
	assert.Equal(t, 5, src.closed, "every frame is released")
	assert.Equal(t, 1, l.Len(), "same payload within cooldown is recorded once")
	assert.Len(t, sink.records, 1)
	assert.Equal(t, []string{"8470001234568"}, pub.published, "publish errors do not stop the loop")
}

func TestManager_ReadErrorIsTerminal(t *testing.T) {
	m, _ := newTestManager(t, []string{""})
	readErr := errors.New("camera unplugged")

	err := m.Run(context.Background(), &sliceSource{n: 2, err: readErr})

	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, uint64(2), m.Frames())
}

func TestManager_StopsOnCancelledContext(t *testing.T) {
	m, _ := newTestManager(t, []string{""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, m.Run(ctx, &sliceSource{n: 10}))
	assert.Zero(t, m.Frames())
}

func TestManager_QuitKey(t *testing.T) {
	r := &keyRenderer{keys: []int{-1, 'q'}}
	m, _ := newTestManager(t, []string{""}, WithRenderer(r))
	src := &sliceSource{n: 10}

	require.NoError(t, m.Run(context.Background(), src))

	assert.Equal(t, uint64(2), m.Frames())
	assert.Equal(t, 2, src.closed)
}

func TestManager_KeyCommands(t *testing.T) {
	m, l := newTestManager(t, []string{"8470001234568"})
	m.HandleFrame(context.Background(), testFrame{closed: new(int)})
	require.Equal(t, 1, l.Len())

	assert.False(t, m.HandleKey('s'))
	assert.Equal(t, config.DefaultProcessingModes[1], m.Mode())
	for range config.DefaultProcessingModes[1:] {
		m.HandleKey('s')
	}
	assert.Equal(t, config.DefaultProcessingModes[0], m.Mode(), "mode wraps around")

	assert.False(t, m.HandleKey('e'))
	files, err := os.ReadDir(m.exportDir)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	assert.False(t, m.HandleKey('r'))
	assert.False(t, m.HandleKey('c'))
	assert.Zero(t, l.Len())

	assert.False(t, m.HandleKey(-1))
	assert.True(t, m.HandleKey('q'|0x100), "only the low byte counts")
}

func TestManager_OverlayShowsTotalsAndTechnique(t *testing.T) {
	r := &keyRenderer{}
	m, _ := newTestManager(t, []string{"8470001234568", ""}, WithRenderer(r))

	require.NoError(t, m.Run(context.Background(), &sliceSource{n: 2}))

	require.Len(t, r.overlays, 2)
	assert.Equal(t, dto.Overlay{Total: 1, Mode: config.DefaultProcessingModes[0], Technique: "grayscale", Scale: 1.2}, r.overlays[0])
	assert.Equal(t, dto.Overlay{Total: 1, Mode: config.DefaultProcessingModes[0]}, r.overlays[1])
}

func TestManager_BroadcastsRecordedAndThrottlesDuplicates(t *testing.T) {
	b := &collectingBroadcaster{}
	m, _ := newTestManager(t, []string{"8470001234568"}, WithBroadcaster(b))

	require.NoError(t, m.Run(context.Background(), &sliceSource{n: 6}))

	// frame 1 recorded, frames 3 and 6 are display-only samples
	require.Len(t, b.events, 3)
	assert.Equal(t, []uint64{1, 3, 6}, []uint64{b.events[0].Frame, b.events[1].Frame, b.events[2].Frame})
	require.NotNil(t, b.events[0].Symbols[0].Valid)
	assert.True(t, b.events[0].Symbols[0].Recorded)
	assert.False(t, b.events[1].Symbols[0].Recorded)
	assert.Nil(t, b.events[1].Symbols[0].Valid)
}

func TestManager_ExportFollowsExtension(t *testing.T) {
	m, _ := newTestManager(t, []string{"8470001234568"})
	m.HandleFrame(context.Background(), testFrame{closed: new(int)})

	path, ok := m.Export(filepath.Join(t.TempDir(), "codes.csv"))
	require.True(t, ok)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "id,session_id,code,type")
}

func TestManager_Summary(t *testing.T) {
	m, _ := newTestManager(t, []string{"8470001234568", "4006381333931"})
	require.NoError(t, m.Run(context.Background(), &sliceSource{n: 2}))

	stats := m.Summary()

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Valid)
	assert.Equal(t, 1, stats.Pharmaceutical)
}
