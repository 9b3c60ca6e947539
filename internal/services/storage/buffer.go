// Package storage buffers accepted detection records and flushes them to the database.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pharmascan/internal/logger"
	"pharmascan/internal/models"
	"pharmascan/internal/repository"
)

type BufferService struct {
	repo        repository.DetectionRepository
	records     []models.DetectionRecord
	bufferLimit int
	logger      *logger.Logger
	mu          sync.Mutex
}

func NewBufferService(repo repository.DetectionRepository, bufferLimit int, logger *logger.Logger) *BufferService {
	if bufferLimit <= 0 {
		bufferLimit = 1
	}
	return &BufferService{
		repo:        repo,
		bufferLimit: bufferLimit,
		records:     make([]models.DetectionRecord, 0, bufferLimit),
		logger:      logger,
	}
}

// Run flushes every interval until ctx is done, then flushes once more.
func (s *BufferService) Run(ctx context.Context, flushInterval time.Duration) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := s.Flush(); err != nil {
				s.logger.Error("Final flush failed: %v", err)
			}
			return nil
		case <-ticker.C:
			if _, err := s.Flush(); err != nil {
				s.logger.Error("Flush failed: %v", err)
			}
		}
	}
}

// Add buffers records. A full buffer is flushed immediately.
func (s *BufferService) Add(records ...models.DetectionRecord) {
	if len(records) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, records...)
	s.logger.Debug("Buffer size: %d/%d", len(s.records), s.bufferLimit)

	if len(s.records) >= s.bufferLimit {
		if _, err := s.flushLocked(); err != nil {
			s.logger.Error("Flush of full buffer failed: %v", err)
		}
	}
}

// Pending returns the number of buffered records.
func (s *BufferService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Flush writes the buffer to the repository. On failure the records stay buffered.
func (s *BufferService) Flush() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *BufferService) flushLocked() (int, error) {
	if len(s.records) == 0 {
		return 0, nil
	}

	n, err := s.repo.InsertBatch(s.records)
	if err != nil {
		return 0, fmt.Errorf("failed to flush %d records: %w", len(s.records), err)
	}

	s.logger.Info("Flushed %d records to database", n)
	s.records = s.records[:0] // czyszczenie bufora
	return n, nil
}
