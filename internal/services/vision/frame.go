// Package vision implements the OpenCV side of the scanner: frame wrapping, preprocessing,
// denoise/resize, camera capture and the preview window.
package vision

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"pharmascan/internal/services/detector"
)

// ErrEmptyFrame is returned when an OpenCV stage produced no pixels.
var ErrEmptyFrame = errors.New("empty frame")

// MatFrame is a detector.Frame backed by a gocv.Mat. It owns the Mat.
type MatFrame struct {
	mat gocv.Mat
}

// NewMatFrame takes ownership of mat.
func NewMatFrame(mat gocv.Mat) *MatFrame {
	return &MatFrame{mat: mat}
}

// Mat exposes the underlying matrix. The caller must not close it.
func (f *MatFrame) Mat() gocv.Mat {
	return f.mat
}

func (f *MatFrame) Size() image.Point {
	return image.Pt(f.mat.Cols(), f.mat.Rows())
}

func (f *MatFrame) Channels() int {
	return f.mat.Channels()
}

func (f *MatFrame) Image() (image.Image, error) {
	if f.mat.Empty() {
		return nil, ErrEmptyFrame
	}
	return f.mat.ToImage()
}

func (f *MatFrame) Close() error {
	return f.mat.Close()
}

// LoadImage reads a still image from disk as a color frame.
func LoadImage(path string) (*MatFrame, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to read image %s: %w", path, ErrEmptyFrame)
	}
	return NewMatFrame(mat), nil
}

// matOf returns a Mat view of any frame. owned reports whether the caller must close it.
func matOf(f detector.Frame) (mat gocv.Mat, owned bool, err error) {
	if mf, ok := f.(*MatFrame); ok {
		return mf.mat, false, nil
	}

	img, err := f.Image()
	if err != nil {
		return gocv.Mat{}, false, fmt.Errorf("failed to read frame pixels: %w", err)
	}

	if gray, ok := img.(*image.Gray); ok {
		mat, err = gocv.ImageGrayToMatGray(gray)
	} else {
		mat, err = gocv.ImageToMatRGB(img)
	}
	if err != nil {
		return gocv.Mat{}, false, fmt.Errorf("failed to convert frame to Mat: %w", err)
	}
	return mat, true, nil
}
