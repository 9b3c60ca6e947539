package route

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pharmascan/internal/config"
	"pharmascan/internal/dto"
	"pharmascan/internal/handler"
	"pharmascan/internal/logger"
	"pharmascan/internal/middleware"
	"pharmascan/internal/repository"
	"pharmascan/internal/services/export"
	"pharmascan/internal/services/ledger"
	"pharmascan/internal/services/websocket"
)

// Deps holds what the HTTP surface reads from. Repo, Camera and Registry may be nil.
type Deps struct {
	Ledger   *ledger.Ledger
	Exporter *export.Exporter
	Hub      *websocket.HubService
	Repo     repository.DetectionRepository
	Camera   *dto.CameraStatus
	Registry *prometheus.Registry
}

// SetupRoutes registers API, log and metrics endpoints
// and wraps the router with the API key middleware.
func SetupRoutes(deps Deps, cfg *config.Config, logger *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// API endpoints
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/view", handler.ViewWebsocketHandler(deps.Hub, logger))
	api.HandleFunc("/detections", handler.GetDetectionsHandler(deps.Ledger, deps.Repo, logger)).Methods(http.MethodGet)
	api.HandleFunc("/detections/duplicates", handler.GetDuplicatesHandler(deps.Ledger, logger)).Methods(http.MethodGet)
	api.HandleFunc("/stats", handler.GetStatsHandler(deps.Ledger, logger)).Methods(http.MethodGet)
	api.HandleFunc("/export", handler.ExportHandler(deps.Ledger, deps.Exporter, logger)).Methods(http.MethodGet)
	api.HandleFunc("/detections/{id}", handler.GetDetectionHandler(deps.Ledger, deps.Repo, logger)).Methods(http.MethodGet)
	api.HandleFunc("/sessions", handler.GetSessionsHandler(deps.Repo, logger)).Methods(http.MethodGet)
	api.HandleFunc("/clear", handler.ClearHandler(deps.Ledger, deps.Repo, logger)).Methods(http.MethodPost)
	api.HandleFunc("/camera", handler.CameraHandler(deps.Camera, logger)).Methods(http.MethodGet)

	// Log endpoints
	r.HandleFunc("/logs/{level}", handler.ShowLogsHandler(logger)).Methods(http.MethodGet)
	r.HandleFunc("/logs/{level}/clear", handler.ClearLogsHandler(logger)).Methods(http.MethodPost)

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Use(middleware.APIKeyMiddleware(cfg.APIKey))
	return r
}
