package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"pharmascan/internal/config"
	"pharmascan/internal/dto"
	"pharmascan/internal/logger"
	"pharmascan/internal/models"
	"pharmascan/internal/services/detector"
	"pharmascan/internal/services/export"
	"pharmascan/internal/services/ledger"
)

// Source delivers frames. io.EOF ends the session cleanly, any other error is terminal.
type Source interface {
	Read() (detector.Frame, error)
}

// Renderer shows an annotated frame and returns the key pressed, or -1.
type Renderer interface {
	Render(frame detector.Frame, detections []detector.Detection, overlay dto.Overlay) int
}

// FrameProcessor is the detection pipeline.
type FrameProcessor interface {
	ProcessFrame(frame detector.Frame) detector.FrameResult
}

// RecordSink receives copies of accepted records, e.g. the database buffer.
type RecordSink interface {
	Add(records ...models.DetectionRecord)
}

// RecordPublisher forwards accepted records to an external broker.
type RecordPublisher interface {
	Publish(ctx context.Context, rec models.DetectionRecord) error
}

// EventBroadcaster sends detection events to live viewers.
type EventBroadcaster interface {
	BroadcastEvent(event dto.DetectionEvent) bool
}

// LedgerGauge tracks the ledger size. Metrics implement it.
type LedgerGauge interface {
	SetLedgerSize(n int)
}

// Manager runs the frame loop: read, process, publish, render, handle keys.
// It is single threaded; other goroutines only read the ledger.
type Manager struct {
	pipeline    FrameProcessor
	ledger      *ledger.Ledger
	exporter    *export.Exporter
	renderer    Renderer
	sink        RecordSink
	publisher   RecordPublisher
	broadcaster EventBroadcaster
	gauge       LedgerGauge
	logger      *logger.Logger

	modes          []string
	mode           int
	exportDir      string
	exportFormat   export.Format
	broadcastEvery uint64 // Co którą klatkę wysyłać podgląd bez nowych rekordów
	frames         uint64
	startedAt      time.Time
}

// ManagerOption attaches an optional collaborator.
type ManagerOption func(*Manager)

func WithRenderer(r Renderer) ManagerOption { return func(m *Manager) { m.renderer = r } }

func WithRecordSink(s RecordSink) ManagerOption { return func(m *Manager) { m.sink = s } }

func WithPublisher(p RecordPublisher) ManagerOption { return func(m *Manager) { m.publisher = p } }

func WithBroadcaster(b EventBroadcaster) ManagerOption { return func(m *Manager) { m.broadcaster = b } }

func WithLedgerGauge(g LedgerGauge) ManagerOption { return func(m *Manager) { m.gauge = g } }

func NewManager(pipeline FrameProcessor, l *ledger.Ledger, exporter *export.Exporter, cfg *config.Config, logger *logger.Logger, opts ...ManagerOption) *Manager {
	format, err := export.ParseFormat(cfg.ExportFormat)
	if err != nil {
		logger.Warning("Invalid export format %q, using json", cfg.ExportFormat)
		format = export.JSON
	}

	modes := cfg.ProcessingModes
	if len(modes) == 0 {
		modes = config.DefaultProcessingModes
	}

	m := &Manager{
		pipeline:       pipeline,
		ledger:         l,
		exporter:       exporter,
		logger:         logger,
		modes:          modes,
		exportDir:      cfg.ExportDirectory,
		exportFormat:   format,
		broadcastEvery: uint64(max(cfg.ViewerBroadcastEveryN, 1)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run processes frames until ctx is cancelled, the quit key is pressed or the source ends.
// A read error other than io.EOF stops the loop and is returned.
func (m *Manager) Run(ctx context.Context, src Source) error {
	m.startedAt = time.Now()
	m.logger.Info("🎬 Frame loop started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("🛑 Frame loop stopped")
			return nil
		default:
		}

		frame, err := src.Read()
		if errors.Is(err, io.EOF) {
			m.logger.Info("Frame source exhausted")
			return nil
		}
		if err != nil {
			return fmt.Errorf("frame loop stopped: %w", err)
		}

		quit := m.HandleFrame(ctx, frame)
		if err := frame.Close(); err != nil {
			m.logger.Warning("Failed to release frame: %v", err)
		}
		if quit {
			m.logger.Info("🛑 Quit requested")
			return nil
		}
	}
}

// HandleFrame runs one frame through the pipeline and fans the result out.
// It reports whether the user asked to quit.
func (m *Manager) HandleFrame(ctx context.Context, frame detector.Frame) bool {
	result := m.pipeline.ProcessFrame(frame)
	m.frames++

	records := result.Records()
	for _, rec := range records {
		status := "✅"
		if !rec.IsValid {
			status = "❌"
		}
		m.logger.Info("%s %s %s (pharmaceutical: %t)", status, rec.Symbology, rec.Payload, rec.IsPharmaceutical)
	}
	m.forward(ctx, records)
	m.broadcast(result, len(records) > 0)

	if m.renderer == nil {
		return false
	}
	key := m.renderer.Render(frame, result.Detections, m.overlay(result))
	return m.HandleKey(key)
}

func (m *Manager) forward(ctx context.Context, records []models.DetectionRecord) {
	if len(records) == 0 {
		return
	}
	if m.sink != nil {
		m.sink.Add(records...)
	}
	if m.publisher != nil {
		for _, rec := range records {
			if err := m.publisher.Publish(ctx, rec); err != nil {
				m.logger.Warning("Failed to publish %s: %v", rec.Payload, err)
			}
		}
	}
	if m.gauge != nil {
		m.gauge.SetLedgerSize(m.ledger.Len())
	}
}

func (m *Manager) broadcast(result detector.FrameResult, recorded bool) {
	if m.broadcaster == nil || !result.Found {
		return
	}
	if !recorded && m.frames%m.broadcastEvery != 0 {
		return
	}

	event := dto.DetectionEvent{
		Type:      "detection",
		Frame:     m.frames,
		Timestamp: time.Now(),
		Technique: result.Technique.String(),
		Scale:     result.Scale,
		Symbols:   make([]dto.SymbolView, 0, len(result.Detections)),
	}
	for _, det := range result.Detections {
		view := dto.SymbolView{
			Code:     det.Payload,
			Type:     string(det.Symbology),
			X:        det.Box.X,
			Y:        det.Box.Y,
			Width:    det.Box.Width,
			Height:   det.Box.Height,
			Recorded: det.Recorded,
		}
		if det.Record != nil {
			valid := det.Record.IsValid
			view.Valid = &valid
		}
		event.Symbols = append(event.Symbols, view)
	}
	m.broadcaster.BroadcastEvent(event)
}

func (m *Manager) overlay(result detector.FrameResult) dto.Overlay {
	o := dto.Overlay{Total: m.ledger.Len(), Mode: m.Mode()}
	if result.Found {
		o.Technique = result.Technique.String()
		o.Scale = result.Scale
	}
	return o
}

// HandleKey applies a keyboard command: q quit, c clear, s next mode, e export, r statistics.
func (m *Manager) HandleKey(key int) bool {
	if key < 0 {
		return false
	}
	switch rune(key & 0xFF) {
	case 'q':
		return true
	case 'c':
		m.ledger.Clear()
		if m.gauge != nil {
			m.gauge.SetLedgerSize(0)
		}
		m.logger.Info("🗑️ History cleared")
	case 's':
		m.mode = (m.mode + 1) % len(m.modes)
		m.logger.Info("🔄 Mode changed to: %s", m.Mode())
	case 'e':
		m.Export("")
	case 'r':
		m.LogStatistics()
	}
	return false
}

// Mode returns the current display mode label.
func (m *Manager) Mode() string {
	return m.modes[m.mode]
}

// Export writes the ledger to path, or to a timestamped file in the export directory when path is empty.
// The format follows the file extension when it names a known format.
func (m *Manager) Export(path string) (string, bool) {
	format := m.exportFormat
	if path == "" {
		path = filepath.Join(m.exportDir, m.exporter.DefaultFilename(format))
	} else if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		if f, err := export.ParseFormat(ext); err == nil {
			format = f
		}
	}
	return path, m.exporter.Export(m.ledger, path, format)
}

// LogStatistics logs the current ledger statistics.
func (m *Manager) LogStatistics() models.Statistics {
	stats := m.ledger.Statistics()
	m.logger.Info("📊 Statistics: total %d, valid %d, invalid %d, pharmaceutical %d, valid rate %.2f%%",
		stats.Total, stats.Valid, stats.Invalid, stats.Pharmaceutical, stats.ValidRate*100)
	for sym, n := range stats.PerSymbology {
		m.logger.Info("   %s: %d", sym, n)
	}
	return stats
}

// Summary logs the end-of-session report and returns the final statistics.
func (m *Manager) Summary() models.Statistics {
	elapsed := time.Duration(0)
	if !m.startedAt.IsZero() {
		elapsed = time.Since(m.startedAt).Round(time.Second)
	}
	m.logger.Info("🏁 Session %s finished: %d frames in %s", m.ledger.SessionID(), m.frames, elapsed)
	for _, dup := range m.ledger.Duplicates() {
		m.logger.Info("   %s detected %d times", dup.Payload, dup.Count)
	}
	return m.LogStatistics()
}

// Frames returns the number of frames processed so far.
func (m *Manager) Frames() uint64 {
	return m.frames
}
