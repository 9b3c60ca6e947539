package detector

import (
	"image"
	"image/draw"
)

// Frame is one image flowing through the pipeline. Stages never mutate a frame;
// each transform returns a new one that the caller must Close.
type Frame interface {
	Size() image.Point
	Channels() int
	Image() (image.Image, error)
	Close() error
}

// ImageFrame adapts a stdlib image to Frame. It is used for still images and by tests.
type ImageFrame struct {
	img image.Image
}

// NewImageFrame wraps img.
func NewImageFrame(img image.Image) *ImageFrame {
	return &ImageFrame{img: img}
}

func (f *ImageFrame) Size() image.Point {
	return f.img.Bounds().Size()
}

// Channels is 1 for gray images and 3 for everything else.
func (f *ImageFrame) Channels() int {
	switch f.img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	default:
		return 3
	}
}

func (f *ImageFrame) Image() (image.Image, error) {
	return f.img, nil
}

func (f *ImageFrame) Close() error {
	return nil
}

// ToGray converts any image to an 8-bit gray image with origin at (0,0).
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
