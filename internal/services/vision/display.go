package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"pharmascan/internal/dto"
	"pharmascan/internal/services/detector"
)

var (
	boxColor   = color.RGBA{G: 255, A: 255}
	textColor  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	errorColor = color.RGBA{R: 255, A: 255}
)

// Display draws detections onto the live frame and shows it in a window.
type Display struct {
	window *gocv.Window
}

// NewDisplay opens the preview window.
func NewDisplay(name string) *Display {
	return &Display{window: gocv.NewWindow(name)}
}

// Render annotates frame, shows it and returns the key pressed within 1ms, or -1.
// Frames that are not MatFrames are shown without annotation.
func (d *Display) Render(frame detector.Frame, detections []detector.Detection, overlay dto.Overlay) int {
	src, owned, err := matOf(frame)
	if err != nil {
		return d.window.WaitKey(1)
	}
	if owned {
		defer src.Close()
	}

	canvas := src.Clone()
	defer canvas.Close()
	Annotate(&canvas, detections, overlay)

	d.window.IMShow(canvas)
	return d.window.WaitKey(1)
}

// Annotate draws a green box and label for every detection plus the status overlay.
func Annotate(canvas *gocv.Mat, detections []detector.Detection, overlay dto.Overlay) {
	for _, det := range detections {
		rect := image.Rect(det.Box.X, det.Box.Y, det.Box.X+det.Box.Width, det.Box.Y+det.Box.Height)
		gocv.Rectangle(canvas, rect, boxColor, 2)

		label := fmt.Sprintf("%s: %s", det.Symbology, det.Payload)
		labelColor := boxColor
		if det.Record != nil && !det.Record.IsValid {
			labelColor = errorColor
		}
		origin := image.Pt(det.Box.X, max(det.Box.Y-10, 15))
		gocv.PutText(canvas, label, origin, gocv.FontHersheySimplex, 0.6, labelColor, 2)
	}

	lines := []string{
		fmt.Sprintf("Detections: %d", overlay.Total),
		fmt.Sprintf("Mode: %s", overlay.Mode),
	}
	if overlay.Technique != "" {
		lines = append(lines, fmt.Sprintf("Found via %s @ %.1fx", overlay.Technique, overlay.Scale))
	}
	for i, line := range lines {
		gocv.PutText(canvas, line, image.Pt(10, 30+25*i), gocv.FontHersheySimplex, 0.7, textColor, 2)
	}
}

// Close destroys the window.
func (d *Display) Close() error {
	return d.window.Close()
}
