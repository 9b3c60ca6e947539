// Package export serializes the session ledger to JSON, CSV or YAML files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pharmascan/internal/dto"
	"pharmascan/internal/logger"
	"pharmascan/internal/models"
	"pharmascan/internal/services/barcode"
)

// ErrUnknownFormat is returned for export formats other than json, csv and yaml.
var ErrUnknownFormat = errors.New("unknown export format")

// Format is an export file format.
type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
	YAML Format = "yaml"
)

// ParseFormat accepts json, csv, yaml and yml in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType is the MIME type used when serving the format over HTTP.
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv"
	case YAML:
		return "application/yaml"
	default:
		return "application/json"
	}
}

// Source is what gets exported. *ledger.Ledger satisfies it.
type Source interface {
	Records(filter *dto.DetectionFilters) []models.DetectionRecord
	Statistics() models.Statistics
}

// Document is the JSON and YAML export layout.
type Document struct {
	ExportTimestamp time.Time                `json:"export_timestamp" yaml:"export_timestamp"`
	Statistics      models.Statistics        `json:"statistics" yaml:"statistics"`
	DetectedCodes   []models.DetectionRecord `json:"detected_codes" yaml:"detected_codes"`
}

// Recorder counts export attempts. Metrics implement it.
type Recorder interface {
	RecordExport(format string, ok bool)
}

// Exporter writes ledger snapshots to files.
type Exporter struct {
	logger   *logger.Logger
	recorder Recorder
	now      func() time.Time
}

// NewExporter creates an exporter. recorder may be nil.
func NewExporter(logger *logger.Logger, recorder Recorder) *Exporter {
	return &Exporter{logger: logger, recorder: recorder, now: time.Now}
}

// Export writes src to path in the given format. Failures are logged and reported as false,
// they never interrupt scanning.
func (e *Exporter) Export(src Source, path string, format Format) bool {
	err := e.exportFile(src, path, format)
	if e.recorder != nil {
		e.recorder.RecordExport(string(format), err == nil)
	}
	if err != nil {
		e.logger.Error("Export to %s failed: %v", path, err)
		return false
	}
	e.logger.Info("💾 Exported %d records to %s", len(src.Records(nil)), path)
	return true
}

func (e *Exporter) exportFile(src Source, path string, format Format) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := e.Write(f, src, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write serializes src to w.
func (e *Exporter) Write(w io.Writer, src Source, format Format) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(e.document(src))
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(e.document(src)); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case CSV:
		return writeCSV(w, src.Records(nil))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// DefaultFilename builds a timestamped file name such as detected_codes_20250314_090000.json.
func (e *Exporter) DefaultFilename(format Format) string {
	return fmt.Sprintf("detected_codes_%s.%s", e.now().Format("20060102_150405"), format)
}

func (e *Exporter) document(src Source) Document {
	return Document{
		ExportTimestamp: e.now(),
		Statistics:      src.Statistics(),
		DetectedCodes:   src.Records(nil),
	}
}

var csvHeader = []string{"id", "session_id", "code", "type", "timestamp", "valid", "pharmaceutical"}

func writeCSV(w io.Writer, records []models.DetectionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.SessionID,
			r.Payload,
			string(r.Symbology),
			r.Timestamp.Format(time.RFC3339Nano),
			strconv.FormatBool(r.IsValid),
			strconv.FormatBool(r.IsPharmaceutical),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ImportJSON reads the records of a JSON export back. Records with unsupported symbologies are rejected.
func ImportJSON(path string) ([]models.DetectionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	for i, rec := range doc.DetectedCodes {
		if !barcode.IsSupported(rec.Symbology) {
			return nil, fmt.Errorf("record %d: unsupported symbology %q", i, rec.Symbology)
		}
	}
	return doc.DetectedCodes, nil
}
