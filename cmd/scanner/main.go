package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pharmascan/internal/app"
	"pharmascan/internal/config"
	"pharmascan/internal/logger"
	"pharmascan/internal/services/export"
)

type flags struct {
	camera     int
	exportPath string
	format     string
	verbose    bool
	testCamera bool
	headless   bool
	port       int
}

func main() {
	cfg := config.Load()
	if err := rootCommand(cfg).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand(cfg *config.Config) *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:           "scanner",
		Short:         "Pharmaceutical barcode scanner",
		Long:          `Scan EAN-13, UPC-A and Code 128 barcodes from a camera, validate them and keep a session history.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.testCamera {
				return testCamera(cmd, cfg, f)
			}
			return run(cmd, cfg, f, nil)
		},
	}

	setupFlags(cmd, cfg, f)
	cmd.AddCommand(imageCommand(cfg, f))
	return cmd
}

// setupFlags binds the persistent flags; each one overrides its environment setting.
func setupFlags(cmd *cobra.Command, cfg *config.Config, f *flags) {
	cmd.PersistentFlags().IntVarP(&f.camera, "camera", "c", cfg.CameraIndex, "Camera device index")
	cmd.PersistentFlags().StringVarP(&f.exportPath, "export", "e", "", "Export the session to FILE on exit")
	cmd.PersistentFlags().StringVarP(&f.format, "format", "f", cfg.ExportFormat, "Export format: json, csv, yaml")
	cmd.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&f.headless, "headless", false, "Run without the preview window")
	cmd.PersistentFlags().IntVar(&f.port, "port", cfg.Port, "HTTP API port, 0 disables the API")
	cmd.Flags().BoolVar(&f.testCamera, "test-camera", false, "Print camera settings and capabilities, then exit")
}

func applyFlags(cfg *config.Config, f *flags) error {
	if _, err := export.ParseFormat(f.format); err != nil {
		return err
	}
	cfg.CameraIndex = f.camera
	cfg.ExportFormat = f.format
	cfg.Port = f.port
	return nil
}

func run(cmd *cobra.Command, cfg *config.Config, f *flags, images []string) error {
	if err := applyFlags(cfg, f); err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()
	log.SetVerbose(f.verbose)

	application, err := app.NewApp(cfg, app.Options{
		ExportPath: f.exportPath,
		Headless:   f.headless,
		Images:     images,
	}, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}
