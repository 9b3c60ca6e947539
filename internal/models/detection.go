package models

import (
	"time"

	"pharmascan/internal/services/barcode"
)

// DetectionRecord is one accepted barcode detection. Records are never modified after creation.
type DetectionRecord struct {
	ID               string            `json:"id" yaml:"id"`
	SessionID        string            `json:"session_id" yaml:"session_id"`
	Payload          string            `json:"code" yaml:"code"`
	Symbology        barcode.Symbology `json:"type" yaml:"type"`
	Timestamp        time.Time         `json:"timestamp" yaml:"timestamp"`
	IsValid          bool              `json:"valid" yaml:"valid"`
	IsPharmaceutical bool              `json:"pharmaceutical" yaml:"pharmaceutical"`
}

// Statistics is an aggregate snapshot over the recorded detections.
type Statistics struct {
	Total             int                       `json:"total" yaml:"total"`
	Valid             int                       `json:"valid" yaml:"valid"`
	Invalid           int                       `json:"invalid" yaml:"invalid"`
	Pharmaceutical    int                       `json:"pharmaceutical" yaml:"pharmaceutical"`
	NonPharmaceutical int                       `json:"non_pharmaceutical" yaml:"non_pharmaceutical"`
	PerSymbology      map[barcode.Symbology]int `json:"types_distribution" yaml:"types_distribution"`
	ValidRate         float64                   `json:"detection_rate" yaml:"detection_rate"`
}

// Duplicate groups the records sharing a payload.
type Duplicate struct {
	Payload     string            `json:"code"`
	Count       int               `json:"count"`
	Occurrences []DetectionRecord `json:"occurrences"`
}
