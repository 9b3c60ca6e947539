package vision

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"pharmascan/internal/config"
	"pharmascan/internal/dto"
	"pharmascan/internal/logger"
	"pharmascan/internal/services/detector"
)

var (
	// ErrCameraOpen is returned when the capture device cannot be opened.
	ErrCameraOpen = errors.New("camera could not be opened")
	// ErrCaptureRead is returned when a frame cannot be read, e.g. after a disconnect.
	ErrCaptureRead = errors.New("failed to read frame from camera")
)

var probedProperties = []struct {
	name string
	prop gocv.VideoCaptureProperties
}{
	{"autofocus", gocv.VideoCaptureAutoFocus},
	{"focus", gocv.VideoCaptureFocus},
	{"brightness", gocv.VideoCaptureBrightness},
	{"contrast", gocv.VideoCaptureContrast},
	{"saturation", gocv.VideoCaptureSaturation},
	{"auto_exposure", gocv.VideoCaptureAutoExposure},
	{"exposure", gocv.VideoCaptureExposure},
	{"zoom", gocv.VideoCaptureZoom},
}

// Camera owns one capture device from OpenCamera until Close.
type Camera struct {
	capture *gocv.VideoCapture
	index   int
	logger  *logger.Logger
}

// OpenCamera opens the configured device and applies resolution, FPS and focus settings.
// The returned camera must be closed on every exit path.
func OpenCamera(cfg *config.Config, logger *logger.Logger) (*Camera, error) {
	capture, err := gocv.OpenVideoCapture(cfg.CameraIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: index %d: %v", ErrCameraOpen, cfg.CameraIndex, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: index %d", ErrCameraOpen, cfg.CameraIndex)
	}

	cam := &Camera{capture: capture, index: cfg.CameraIndex, logger: logger}
	cam.apply(cfg)
	if cfg.TuneForBarcodes {
		cam.tuneForBarcodes()
	}

	logger.Info("📷 Camera %d opened (%dx%d @ %d fps requested)", cfg.CameraIndex, cfg.FrameWidth, cfg.FrameHeight, cfg.FPS)
	return cam, nil
}

func (c *Camera) apply(cfg *config.Config) {
	c.capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.FrameWidth))
	c.capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.FrameHeight))
	c.capture.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	if cfg.Autofocus {
		c.capture.Set(gocv.VideoCaptureAutoFocus, 1)
	}
	c.capture.Set(gocv.VideoCaptureFocus, float64(cfg.Focus))
}

// tuneForBarcodes raises contrast, lowers saturation and sets auto exposure.
// Devices silently ignore properties they do not support.
func (c *Camera) tuneForBarcodes() {
	c.capture.Set(gocv.VideoCaptureContrast, 50)
	c.capture.Set(gocv.VideoCaptureSaturation, 30)
	c.capture.Set(gocv.VideoCaptureAutoExposure, 0.25)
}

// Read blocks until the next frame. Any failure is ErrCaptureRead and ends the session.
func (c *Camera) Read() (detector.Frame, error) {
	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w (camera %d)", ErrCaptureRead, c.index)
	}
	return NewMatFrame(mat), nil
}

// Info reads back the current device settings.
func (c *Camera) Info() dto.CameraInfo {
	get := func(p gocv.VideoCaptureProperties) int { return int(c.capture.Get(p)) }
	return dto.CameraInfo{
		Width:      get(gocv.VideoCaptureFrameWidth),
		Height:     get(gocv.VideoCaptureFrameHeight),
		FPS:        get(gocv.VideoCaptureFPS),
		Autofocus:  c.capture.Get(gocv.VideoCaptureAutoFocus) != 0,
		Focus:      get(gocv.VideoCaptureFocus),
		Brightness: get(gocv.VideoCaptureBrightness),
		Contrast:   get(gocv.VideoCaptureContrast),
		Saturation: get(gocv.VideoCaptureSaturation),
	}
}

// Capabilities probes each property by writing a nearby value and restoring the original.
func (c *Camera) Capabilities() map[string]dto.CameraCapability {
	caps := make(map[string]dto.CameraCapability, len(probedProperties))
	for _, p := range probedProperties {
		value := c.capture.Get(p.prop)

		test := value + 1
		if value >= 100 {
			test = value - 1
		}
		c.capture.Set(p.prop, test)
		changed := c.capture.Get(p.prop) != value
		c.capture.Set(p.prop, value)

		caps[p.name] = dto.CameraCapability{Supported: true, Writable: changed, CurrentValue: value}
	}
	return caps
}

// Status takes the snapshot served over HTTP. Call it before the frame loop starts reading.
func (c *Camera) Status() dto.CameraStatus {
	return dto.CameraStatus{
		Index:        c.index,
		Source:       "camera",
		Info:         c.Info(),
		Capabilities: c.Capabilities(),
	}
}

// Close releases the device.
func (c *Camera) Close() error {
	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	c.logger.Info("📷 Camera %d released", c.index)
	return err
}
