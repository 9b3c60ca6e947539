package repository

import (
	"pharmascan/internal/dto"
	"pharmascan/internal/models"
)

// DetectionRepository defines the interface for persisted detection records.
type DetectionRepository interface {
	// Create operations
	Insert(rec *models.DetectionRecord) error
	InsertBatch(records []models.DetectionRecord) (int, error)

	// Read operations
	GetByID(id string) (*models.DetectionRecord, error)
	GetAll(filter *dto.DetectionFilters) ([]models.DetectionRecord, error)
	Count(filter *dto.DetectionFilters) (int, error)
	GetSessions() ([]string, error)

	// Delete operations
	DeleteBySession(sessionID string) (int64, error)
	DeleteAll() (int64, error)
}
