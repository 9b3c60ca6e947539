// Package metrics provides Prometheus metrics for the scanner.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pharmascan/internal/services/barcode"
	"pharmascan/internal/services/detector"
)

// ScannerMetrics contains all Prometheus metrics of the detection pipeline.
// It implements detector.Observer.
type ScannerMetrics struct {
	FramesProcessed    *prometheus.CounterVec
	FrameDuration      prometheus.Histogram
	RepresentationHits *prometheus.CounterVec
	ScaleHits          *prometheus.CounterVec
	RecordsTotal       *prometheus.CounterVec
	SuppressedTotal    *prometheus.CounterVec
	ExportsTotal       *prometheus.CounterVec
	PublishTotal       *prometheus.CounterVec
	ViewersGauge       prometheus.Gauge
	LedgerSizeGauge    prometheus.Gauge

	registry *prometheus.Registry
}

// NewScannerMetrics creates the metrics and registers them on registry.
func NewScannerMetrics(registry *prometheus.Registry) (*ScannerMetrics, error) {
	m := &ScannerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register scanner metrics: %w", err)
	}
	return m, nil
}

func (m *ScannerMetrics) initMetrics() {
	m.FramesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmascan_frames_processed_total",
			Help: "Total number of frames run through the pipeline, by whether any symbol was found.",
		},
		[]string{"found"},
	)
	m.FrameDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pharmascan_frame_processing_seconds",
			Help:    "Time taken to preprocess and search one frame",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms do ~2s
		},
	)
	m.RepresentationHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmascan_representation_hits_total",
			Help: "Frames whose symbols were found in the given representation.",
		},
		[]string{"technique"},
	)
	m.ScaleHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmascan_scale_hits_total",
			Help: "Frames whose symbols were found at the given scale.",
		},
		[]string{"scale"},
	)
	m.RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmascan_records_total",
			Help: "Detection records created, by symbology and validity.",
		},
		[]string{"symbology", "valid"},
	)
	m.SuppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmascan_duplicates_suppressed_total",
			Help: "Symbols shown but not recorded because of the cooldown.",
		},
		[]string{"symbology"},
	)
	m.ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmascan_exports_total",
			Help: "Export attempts by format and status.",
		},
		[]string{"format", "status"},
	)
	m.PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmascan_mqtt_publish_total",
			Help: "MQTT publish attempts by status.",
		},
		[]string{"status"},
	)
	m.ViewersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmascan_live_viewers",
			Help: "Number of connected websocket viewers",
		},
	)
	m.LedgerSizeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmascan_ledger_records",
			Help: "Number of records currently held by the session ledger",
		},
	)
}

// FrameProcessed implements detector.Observer.
func (m *ScannerMetrics) FrameProcessed(result detector.FrameResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FramesProcessed.WithLabelValues(strconv.FormatBool(result.Found)).Inc()
	m.FrameDuration.Observe(elapsed.Seconds())
	if !result.Found {
		return
	}
	m.RepresentationHits.WithLabelValues(result.Technique.String()).Inc()
	m.ScaleHits.WithLabelValues(strconv.FormatFloat(result.Scale, 'f', 1, 64)).Inc()
	for _, rec := range result.Records() {
		m.RecordsTotal.WithLabelValues(string(rec.Symbology), strconv.FormatBool(rec.IsValid)).Inc()
	}
}

// SymbolSuppressed implements detector.Observer.
func (m *ScannerMetrics) SymbolSuppressed(sym barcode.Symbology) {
	if m == nil {
		return
	}
	m.SuppressedTotal.WithLabelValues(string(sym)).Inc()
}

// RecordExport counts an export attempt.
func (m *ScannerMetrics) RecordExport(format string, ok bool) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(format, status(ok)).Inc()
}

// RecordPublish counts an MQTT publish attempt.
func (m *ScannerMetrics) RecordPublish(err error) {
	if m == nil {
		return
	}
	m.PublishTotal.WithLabelValues(status(err == nil)).Inc()
}

// SetViewers sets the number of connected viewers.
func (m *ScannerMetrics) SetViewers(n int) {
	if m == nil {
		return
	}
	m.ViewersGauge.Set(float64(n))
}

// SetLedgerSize sets the number of records in the ledger.
func (m *ScannerMetrics) SetLedgerSize(n int) {
	if m == nil {
		return
	}
	m.LedgerSizeGauge.Set(float64(n))
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// Describe implements the prometheus.Collector interface.
func (m *ScannerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FramesProcessed.Describe(ch)
	ch <- m.FrameDuration.Desc()
	m.RepresentationHits.Describe(ch)
	m.ScaleHits.Describe(ch)
	m.RecordsTotal.Describe(ch)
	m.SuppressedTotal.Describe(ch)
	m.ExportsTotal.Describe(ch)
	m.PublishTotal.Describe(ch)
	ch <- m.ViewersGauge.Desc()
	ch <- m.LedgerSizeGauge.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *ScannerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FramesProcessed.Collect(ch)
	ch <- m.FrameDuration
	m.RepresentationHits.Collect(ch)
	m.ScaleHits.Collect(ch)
	m.RecordsTotal.Collect(ch)
	m.SuppressedTotal.Collect(ch)
	m.ExportsTotal.Collect(ch)
	m.PublishTotal.Collect(ch)
	ch <- m.ViewersGauge
	ch <- m.LedgerSizeGauge
}
