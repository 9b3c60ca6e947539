package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"pharmascan/internal/config"
	"pharmascan/internal/dto"
	"pharmascan/internal/logger"
	"pharmascan/internal/metrics"
	"pharmascan/internal/repository/sqlite"
	"pharmascan/internal/route"
	"pharmascan/internal/services"
	"pharmascan/internal/services/decoder"
	"pharmascan/internal/services/detector"
	"pharmascan/internal/services/export"
	"pharmascan/internal/services/ledger"
	"pharmascan/internal/services/mqtt"
	"pharmascan/internal/services/storage"
	"pharmascan/internal/services/vision"
	"pharmascan/internal/services/websocket"
)

// Options are the per-run choices taken from the command line.
type Options struct {
	ExportPath string   // eksport na koniec sesji, pusty = brak
	Headless   bool     // bez okna podgladu
	Images     []string // skanuj pliki zamiast kamery
}

type App struct {
	config    *config.Config
	options   Options
	logger    *logger.Logger
	registry  *prometheus.Registry
	metrics   *metrics.ScannerMetrics
	ledger    *ledger.Ledger
	exporter  *export.Exporter
	hub       *websocket.HubService
	db        *sqlite.DB
	repo      *sqlite.DetectionRepository
	buffer    *storage.BufferService
	publisher *mqtt.Publisher
}

// NewApp builds the long-lived services. The camera and the window are opened by Run.
func NewApp(cfg *config.Config, opts Options, log *logger.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	m, err := metrics.NewScannerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	a := &App{
		config:   cfg,
		options:  opts,
		logger:   log,
		registry: registry,
		metrics:  m,
		ledger:   ledger.New(cfg.Cooldown),
		exporter: export.NewExporter(log, m),
		hub:      websocket.NewHubService(m, log),
	}

	if cfg.DatabasePath != "" {
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.repo = sqlite.NewDetectionRepository(db)
		a.buffer = storage.NewBufferService(a.repo, cfg.RecordBufferLimit, log)
	}

	if mc := mqtt.ConfigFrom(cfg); mc.Enabled() {
		a.publisher = mqtt.NewPublisher(mc, m, log)
	}
	return a, nil
}

// Ledger exposes the session ledger.
func (a *App) Ledger() *ledger.Ledger {
	return a.ledger
}

// Run scans until ctx is cancelled, the user quits or the image list is exhausted.
// The frame loop runs on the calling goroutine because the preview window needs it.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	src, camera, err := a.openSource()
	if err != nil {
		return err
	}
	if camera != nil {
		defer camera.Close()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.hub.Run(gctx) })
	if a.buffer != nil {
		interval := time.Duration(max(a.config.RecordFlushInterval, 1)) * time.Second
		g.Go(func() error { return a.buffer.Run(gctx, interval) })
	}
	if a.config.Port > 0 {
		var status *dto.CameraStatus
		if camera != nil {
			s := camera.Status()
			status = &s
		}
		a.serve(gctx, g, status)
	}
	if a.publisher != nil {
		if err := a.publisher.Connect(ctx); err != nil {
			a.logger.Warning("MQTT disabled for this session: %v", err)
			a.publisher = nil
		}
	}

	opts := a.managerOptions()
	if !a.options.Headless && a.config.DisplayWindow {
		display := vision.NewDisplay(a.config.WindowName)
		defer display.Close()
		opts = append(opts, services.WithRenderer(display))
	}

	manager := services.NewManager(a.pipeline(), a.ledger, a.exporter, a.config, a.logger, opts...)
	a.logger.Info("🚀 Session %s started", a.ledger.SessionID())

	loopErr := manager.Run(gctx, src)
	cancel()
	if err := g.Wait(); err != nil {
		a.logger.Error("Background service failed: %v", err)
		if loopErr == nil {
			loopErr = err
		}
	}

	manager.Summary()
	if a.options.ExportPath != "" {
		if path, ok := manager.Export(a.options.ExportPath); ok {
			a.logger.Info("Session exported to %s", path)
		}
	}
	return loopErr
}

func (a *App) openSource() (services.Source, *vision.Camera, error) {
	if len(a.options.Images) > 0 {
		return vision.NewImageFiles(a.options.Images, a.logger), nil, nil
	}
	camera, err := vision.OpenCamera(a.config, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return camera, camera, nil
}

func (a *App) pipeline() *detector.Pipeline {
	searcher := detector.NewScaleSearcher(vision.NewImaging(a.config), decoder.NewZXing(), a.config.Scales, a.logger)
	return detector.NewPipeline(vision.NewPreprocessor(a.config, a.logger), searcher, a.ledger, a.logger,
		detector.WithObserver(a.metrics))
}

func (a *App) managerOptions() []services.ManagerOption {
	opts := []services.ManagerOption{
		services.WithBroadcaster(a.hub),
		services.WithLedgerGauge(a.metrics),
	}
	if a.buffer != nil {
		opts = append(opts, services.WithRecordSink(a.buffer))
	}
	if a.publisher != nil {
		opts = append(opts, services.WithPublisher(a.publisher))
	}
	return opts
}

func (a *App) serve(ctx context.Context, g *errgroup.Group, camera *dto.CameraStatus) {
	deps := route.Deps{
		Ledger:   a.ledger,
		Exporter: a.exporter,
		Hub:      a.hub,
		Camera:   camera,
		Registry: a.registry,
	}
	if a.repo != nil {
		deps.Repo = a.repo
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           route.SetupRoutes(deps, a.config, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		a.logger.Info("📍 API: http://localhost:%d", a.config.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

func (a *App) close() {
	if a.publisher != nil {
		a.publisher.Disconnect()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database: %v", err)
		}
	}
}
