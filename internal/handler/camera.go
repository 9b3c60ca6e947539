package handler

import (
	"net/http"

	"pharmascan/internal/dto"
	"pharmascan/internal/logger"
)

// CameraHandler reports the capture source. status is nil when frames come from image files.
func CameraHandler(status *dto.CameraStatus, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if status == nil {
			writeJSON(w, logger, dto.CameraStatus{Index: -1, Source: "images"})
			return
		}
		writeJSON(w, logger, status)
	}
}
