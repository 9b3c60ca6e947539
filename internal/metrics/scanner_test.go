package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmascan/internal/models"
	"pharmascan/internal/services/barcode"
	"pharmascan/internal/services/detector"
)

func newMetrics(t *testing.T) *ScannerMetrics {
	t.Helper()
	m, err := NewScannerMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestFrameProcessed(t *testing.T) {
	m := newMetrics(t)
	rec := models.DetectionRecord{Payload: "4006381333931", Symbology: barcode.EAN13, IsValid: true}

	m.FrameProcessed(detector.FrameResult{Scale: 1.0}, 10*time.Millisecond)
	m.FrameProcessed(detector.FrameResult{
		Found:      true,
		Technique:  detector.ContrastEnhanced,
		Scale:      1.2,
		Detections: []detector.Detection{{Payload: rec.Payload, Recorded: true, Record: &rec}, {Payload: rec.Payload}},
	}, 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesProcessed.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesProcessed.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepresentationHits.WithLabelValues("contrast")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScaleHits.WithLabelValues("1.2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("EAN13", "true")))
}

func TestCountersAndGauges(t *testing.T) {
	m := newMetrics(t)

	m.SymbolSuppressed(barcode.CODE128)
	m.RecordExport("csv", true)
	m.RecordExport("csv", false)
	m.RecordPublish(errors.New("broker down"))
	m.SetViewers(3)
	m.SetLedgerSize(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SuppressedTotal.WithLabelValues("CODE128")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExportsTotal.WithLabelValues("csv", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExportsTotal.WithLabelValues("csv", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishTotal.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ViewersGauge))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.LedgerSizeGauge))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *ScannerMetrics

	assert.NotPanics(t, func() {
		m.FrameProcessed(detector.FrameResult{Found: true}, time.Millisecond)
		m.SymbolSuppressed(barcode.EAN13)
		m.RecordExport("json", true)
		m.RecordPublish(nil)
		m.SetViewers(1)
		m.SetLedgerSize(1)
	})
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewScannerMetrics(reg)
	require.NoError(t, err)

	_, err = NewScannerMetrics(reg)
	assert.Error(t, err)
}
