package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"pharmascan/internal/config"
	"pharmascan/internal/logger"
	"pharmascan/internal/services/vision"
)

// testCamera opens the device, prints what it reports and closes it again.
func testCamera(cmd *cobra.Command, cfg *config.Config, f *flags) error {
	if err := applyFlags(cfg, f); err != nil {
		return err
	}

	log := logger.New(cmd.ErrOrStderr())
	log.SetVerbose(f.verbose)

	camera, err := vision.OpenCamera(cfg, log)
	if err != nil {
		return err
	}
	defer camera.Close()

	status := camera.Status()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📷 Camera %d\n", status.Index)
	fmt.Fprintf(out, "   Resolution: %dx%d @ %d fps\n", status.Info.Width, status.Info.Height, status.Info.FPS)
	fmt.Fprintf(out, "   Autofocus: %t, focus: %d\n", status.Info.Autofocus, status.Info.Focus)
	fmt.Fprintf(out, "   Brightness: %d, contrast: %d, saturation: %d\n", status.Info.Brightness, status.Info.Contrast, status.Info.Saturation)

	names := make([]string, 0, len(status.Capabilities))
	for name := range status.Capabilities {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out, "   Capabilities:")
	for _, name := range names {
		c := status.Capabilities[name]
		fmt.Fprintf(out, "      - %-14s writable: %-5t value: %.2f\n", name, c.Writable, c.CurrentValue)
	}

	frame, err := camera.Read()
	if err != nil {
		return fmt.Errorf("camera opened but no frame could be read: %w", err)
	}
	defer frame.Close()
	fmt.Fprintf(out, "✅ Frame captured: %dx%d, %d channels\n", frame.Size().X, frame.Size().Y, frame.Channels())
	return nil
}
