package vision

import (
	"io"

	"pharmascan/internal/logger"
	"pharmascan/internal/services/detector"
)

// ImageFiles serves still images as frames, one per path, then io.EOF.
// Unreadable files are logged and skipped.
type ImageFiles struct {
	paths  []string
	next   int
	logger *logger.Logger
}

func NewImageFiles(paths []string, logger *logger.Logger) *ImageFiles {
	return &ImageFiles{paths: paths, logger: logger}
}

func (s *ImageFiles) Read() (detector.Frame, error) {
	for s.next < len(s.paths) {
		path := s.paths[s.next]
		s.next++

		frame, err := LoadImage(path)
		if err != nil {
			s.logger.Error("Skipping %s: %v", path, err)
			continue
		}
		s.logger.Info("🖼️ Scanning %s", path)
		return frame, nil
	}
	return nil, io.EOF
}
