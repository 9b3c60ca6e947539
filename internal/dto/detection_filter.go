package dto

import (
	"time"

	"pharmascan/internal/services/barcode"
)

// DetectionFilters narrows a record listing. Zero values mean "no constraint".
type DetectionFilters struct {
	Valid          *bool
	Pharmaceutical *bool
	Symbology      barcode.Symbology
	Payload        string
	Since          time.Time
	Limit          int
	Offset         int
}
