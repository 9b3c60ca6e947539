package dto

import "pharmascan/internal/models"

// DetectionsData is a paginated response payload for the detections listing.
type DetectionsData struct {
	Records     []models.DetectionRecord `json:"records"`
	Source      string                   `json:"source"`
	SessionID   string                   `json:"sessionId,omitempty"`
	Length      int                      `json:"length"`
	TotalPages  int                      `json:"totalPages"`
	CurrentPage int                      `json:"currentPage"`
	Limit       int                      `json:"pageSize"`
}
