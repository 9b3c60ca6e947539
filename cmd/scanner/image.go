package main

import (
	"github.com/spf13/cobra"

	"pharmascan/internal/config"
)

// imageCommand scans still images through the same pipeline as the camera.
func imageCommand(cfg *config.Config, f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "image FILE...",
		Short: "Scan barcodes in image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg, f, args)
		},
	}
}
