package vision

import (
	"image"

	"gocv.io/x/gocv"

	"pharmascan/internal/config"
	"pharmascan/internal/logger"
	"pharmascan/internal/services/detector"
)

// Preprocessor derives the five candidate representations of a frame with OpenCV.
type Preprocessor struct {
	clipLimit  float64
	tileGrid   int
	maxValue   float32
	blockSize  int
	c          float32
	kernelSize int
	logger     *logger.Logger
}

// NewPreprocessor builds a preprocessor from the image processing section of the config.
func NewPreprocessor(cfg *config.Config, logger *logger.Logger) *Preprocessor {
	blockSize := cfg.AdaptiveBlockSize
	if blockSize < 3 {
		blockSize = 3
	}
	if blockSize%2 == 0 {
		blockSize++ // OpenCV wymaga nieparzystego rozmiaru bloku
	}
	return &Preprocessor{
		clipLimit:  cfg.ClaheClipLimit,
		tileGrid:   max(cfg.ClaheTileGrid, 1),
		maxValue:   float32(cfg.AdaptiveMaxValue),
		blockSize:  blockSize,
		c:          float32(cfg.AdaptiveC),
		kernelSize: max(cfg.MorphKernelSize, 1),
		logger:     logger,
	}
}

// Preprocess returns, in order: original, grayscale, CLAHE, adaptive threshold and morphological close.
// It never returns fewer than five representations; a failed stage yields a copy of its input.
func (p *Preprocessor) Preprocess(frame detector.Frame) []detector.Representation {
	src, owned, err := matOf(frame)
	if err != nil {
		p.logger.Warning("Cannot preprocess frame, searching blank representations: %v", err)
		return blankRepresentations(frame.Size())
	}
	if owned {
		defer src.Close()
	}

	original := src.Clone()
	gray := p.grayscale(original)
	enhanced := p.stage("contrast", gray, p.contrast)
	binary := p.stage("binarize", gray, p.binarize)
	morph := p.stage("morphology", binary, p.close)

	return []detector.Representation{
		{Technique: detector.Original, Frame: NewMatFrame(original)},
		{Technique: detector.Grayscale, Frame: NewMatFrame(gray)},
		{Technique: detector.ContrastEnhanced, Frame: NewMatFrame(enhanced)},
		{Technique: detector.Binarized, Frame: NewMatFrame(binary)},
		{Technique: detector.Morphological, Frame: NewMatFrame(morph)},
	}
}

func (p *Preprocessor) grayscale(src gocv.Mat) gocv.Mat {
	if src.Channels() == 1 {
		return src.Clone()
	}
	gray := gocv.NewMat()
	code := gocv.ColorBGRToGray
	if src.Channels() == 4 {
		code = gocv.ColorBGRAToGray
	}
	if err := gocv.CvtColor(src, &gray, code); err != nil || gray.Empty() {
		p.logger.Warning("Grayscale conversion failed, keeping original pixels: %v", err)
		gray.Close()
		return src.Clone()
	}
	return gray
}

// stage runs fn into a fresh Mat, falling back to a copy of src when the output is empty.
func (p *Preprocessor) stage(name string, src gocv.Mat, fn func(src gocv.Mat, dst *gocv.Mat)) gocv.Mat {
	dst := gocv.NewMat()
	fn(src, &dst)
	if dst.Empty() {
		p.logger.Warning("Preprocessing stage %s produced no output, reusing its input", name)
		dst.Close()
		return src.Clone()
	}
	return dst
}

func (p *Preprocessor) contrast(src gocv.Mat, dst *gocv.Mat) {
	clahe := gocv.NewCLAHEWithParams(p.clipLimit, image.Pt(p.tileGrid, p.tileGrid))
	defer clahe.Close()
	clahe.Apply(src, dst)
}

func (p *Preprocessor) binarize(src gocv.Mat, dst *gocv.Mat) {
	gocv.AdaptiveThreshold(src, dst, p.maxValue, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, p.blockSize, p.c)
}

func (p *Preprocessor) close(src gocv.Mat, dst *gocv.Mat) {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(p.kernelSize, p.kernelSize))
	defer kernel.Close()
	gocv.MorphologyEx(src, dst, gocv.MorphClose, kernel)
}

func blankRepresentations(size image.Point) []detector.Representation {
	reps := make([]detector.Representation, 0, len(detector.Techniques))
	for _, tech := range detector.Techniques {
		mat := gocv.NewMatWithSize(max(size.Y, 1), max(size.X, 1), gocv.MatTypeCV8UC1)
		reps = append(reps, detector.Representation{Technique: tech, Frame: NewMatFrame(mat)})
	}
	return reps
}
