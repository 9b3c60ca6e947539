package decoder

import (
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/multi"
)

const (
	maxSearchDepth  = 4
	minRegionToScan = 100
)

// multiReader finds several symbols of one kind in an image. After each hit it searches
// the regions left, above, right and below the symbol, down to maxSearchDepth crops.
type multiReader struct {
	delegate gozxing.Reader
}

var _ multi.MultipleBarcodeReader = (*multiReader)(nil)

func newMultiReader(r gozxing.Reader) *multiReader {
	return &multiReader{delegate: r}
}

func (m *multiReader) DecodeMultipleWithoutHint(image *gozxing.BinaryBitmap) ([]*gozxing.Result, error) {
	return m.DecodeMultiple(image, nil)
}

// DecodeMultiple returns every distinct symbol found, with result points in the coordinates
// of image. It fails with the error of the first decode when the whole image holds nothing;
// crops that hold nothing are skipped.
func (m *multiReader) DecodeMultiple(image *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) ([]*gozxing.Result, error) {
	var results []*gozxing.Result
	if err := m.search(image, hints, &results, 0, 0, 0); err != nil {
		return nil, err
	}
	return results, nil
}

func (m *multiReader) search(image *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{},
	results *[]*gozxing.Result, dx, dy, depth int) error {
	if depth > maxSearchDepth {
		return nil
	}

	res, err := m.delegate.Decode(image, hints)
	if err != nil {
		return err
	}
	if !containsText(*results, res.GetText()) {
		*results = append(*results, translate(res, dx, dy))
	}

	points := res.GetResultPoints()
	if len(points) == 0 || !image.IsCropSupported() {
		return nil
	}

	width, height := image.GetWidth(), image.GetHeight()
	minX, minY := float64(width), float64(height)
	maxX, maxY := 0.0, 0.0
	for _, p := range points {
		x, y := p.GetX(), p.GetY()
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}

	crop := func(left, top, w, h int) {
		if sub, err := image.Crop(left, top, w, h); err == nil {
			_ = m.search(sub, hints, results, dx+left, dy+top, depth+1)
		}
	}

	if minX > minRegionToScan {
		crop(0, 0, int(minX), height)
	}
	if minY > minRegionToScan {
		crop(0, 0, width, int(minY))
	}
	if maxX < float64(width-minRegionToScan) {
		crop(int(maxX), 0, width-int(maxX), height)
	}
	if maxY < float64(height-minRegionToScan) {
		crop(0, int(maxY), width, height-int(maxY))
	}
	return nil
}

func containsText(results []*gozxing.Result, text string) bool {
	for _, r := range results {
		if r.GetText() == text {
			return true
		}
	}
	return false
}

// translate moves the result points of a crop back into the coordinates of the full image.
func translate(res *gozxing.Result, dx, dy int) *gozxing.Result {
	if dx == 0 && dy == 0 {
		return res
	}
	points := res.GetResultPoints()
	moved := make([]gozxing.ResultPoint, 0, len(points))
	for _, p := range points {
		moved = append(moved, gozxing.NewResultPoint(p.GetX()+float64(dx), p.GetY()+float64(dy)))
	}
	out := gozxing.NewResult(res.GetText(), res.GetRawBytes(), moved, res.GetBarcodeFormat())
	out.PutAllMetadata(res.GetResultMetadata())
	return out
}
