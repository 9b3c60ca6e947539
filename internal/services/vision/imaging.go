package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"pharmascan/internal/config"
	"pharmascan/internal/services/detector"
)

// Imaging implements detector.Imaging with OpenCV.
type Imaging struct {
	diameter   int
	sigmaColor float64
	sigmaSpace float64
}

// NewImaging reads the bilateral filter parameters from the config.
func NewImaging(cfg *config.Config) *Imaging {
	return &Imaging{
		diameter:   cfg.BilateralDiameter,
		sigmaColor: cfg.BilateralSigmaColor,
		sigmaSpace: cfg.BilateralSigmaSpace,
	}
}

// Denoise converts f to gray when needed and applies a bilateral filter, which smooths
// sensor noise while keeping bar edges sharp.
func (im *Imaging) Denoise(f detector.Frame) (detector.Frame, error) {
	src, owned, err := matOf(f)
	if err != nil {
		return nil, err
	}
	if owned {
		defer src.Close()
	}

	gray := src
	if src.Channels() != 1 {
		gray = gocv.NewMat()
		defer gray.Close()
		code := gocv.ColorBGRToGray
		if src.Channels() == 4 {
			code = gocv.ColorBGRAToGray
		}
		if err := gocv.CvtColor(src, &gray, code); err != nil {
			return nil, fmt.Errorf("failed to convert to grayscale: %w", err)
		}
	}

	filtered := gocv.NewMat()
	gocv.BilateralFilter(gray, &filtered, im.diameter, im.sigmaColor, im.sigmaSpace)
	if filtered.Empty() {
		filtered.Close()
		return nil, fmt.Errorf("bilateral filter: %w", ErrEmptyFrame)
	}
	return NewMatFrame(filtered), nil
}

// Resize returns a copy of f with the given size.
func (im *Imaging) Resize(f detector.Frame, size image.Point) (detector.Frame, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", size.X, size.Y)
	}

	src, owned, err := matOf(f)
	if err != nil {
		return nil, err
	}
	if owned {
		defer src.Close()
	}

	dst := gocv.NewMat()
	gocv.Resize(src, &dst, size, 0, 0, gocv.InterpolationLinear)
	if dst.Empty() {
		dst.Close()
		return nil, fmt.Errorf("resize: %w", ErrEmptyFrame)
	}
	return NewMatFrame(dst), nil
}
