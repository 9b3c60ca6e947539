// Package decoder reads 1D barcodes out of frames with the gozxing port of ZXing.
package decoder

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"

	"pharmascan/internal/services/barcode"
	"pharmascan/internal/services/detector"
)

// ZXing implements detector.Decoder. Readers are not safe for concurrent use,
// so one ZXing value belongs to one pipeline.
type ZXing struct {
	ean13   *multiReader
	upca    *multiReader
	code128 *multiReader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewZXing creates a decoder with try-harder enabled.
func NewZXing() *ZXing {
	return &ZXing{
		ean13:   newMultiReader(oned.NewEAN13Reader()),
		upca:    newMultiReader(oned.NewUPCAReader()),
		code128: newMultiReader(oned.NewCode128Reader()),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Decode runs every reader allowed by the symbology filter and returns the distinct symbols found,
// several per reader when the frame holds more than one. A reader finding nothing is not an error.
func (z *ZXing) Decode(f detector.Frame, allowed []barcode.Symbology) detector.DecodeOutcome {
	img, err := f.Image()
	if err != nil {
		return detector.None(fmt.Errorf("%w: %v", detector.ErrDecode, err))
	}

	src := gozxing.NewLuminanceSourceFromImage(img)
	bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(src))
	if err != nil {
		return detector.None(fmt.Errorf("%w: %v", detector.ErrDecode, err))
	}
	// Only used to size the boxes; without it they fall back to padding.
	bars, _ := bmp.GetBlackMatrix()

	var (
		symbols []detector.DecodedSymbol
		errs    []error
	)
	add := func(res *gozxing.Result, text string, sym barcode.Symbology) {
		for _, s := range symbols {
			if s.Payload == text {
				return
			}
		}
		symbols = append(symbols, detector.DecodedSymbol{
			Payload:   text,
			Symbology: sym,
			Box:       boxOf(res.GetResultPoints(), bars),
		})
	}

	allowEAN := slices.Contains(allowed, barcode.EAN13)
	allowUPC := slices.Contains(allowed, barcode.UPCA)

	switch {
	case allowEAN:
		// The EAN-13 reader also reads UPC-A, reported with a leading zero.
		results, err := z.ean13.DecodeMultiple(bmp, z.hints)
		if err != nil {
			errs = appendReal(errs, err)
			break
		}
		for _, res := range results {
			text := res.GetText()
			sym := barcode.EAN13
			if allowUPC && len(text) == 13 && text[0] == '0' {
				text, sym = text[1:], barcode.UPCA
			}
			add(res, text, sym)
		}
	case allowUPC:
		results, err := z.upca.DecodeMultiple(bmp, z.hints)
		if err != nil {
			errs = appendReal(errs, err)
			break
		}
		for _, res := range results {
			add(res, res.GetText(), barcode.UPCA)
		}
	}

	if slices.Contains(allowed, barcode.CODE128) {
		results, err := z.code128.DecodeMultiple(bmp, z.hints)
		if err != nil {
			errs = appendReal(errs, err)
		}
		for _, res := range results {
			add(res, res.GetText(), barcode.CODE128)
		}
	}

	if len(symbols) > 0 {
		return detector.Found(symbols...)
	}
	if len(errs) > 0 {
		return detector.None(fmt.Errorf("%w: %v", detector.ErrDecode, errors.Join(errs...)))
	}
	return detector.None(nil)
}

// appendReal drops reader exceptions (not found, bad checksum, bad format): they all mean
// nothing decodable was in the image.
func appendReal(errs []error, err error) []error {
	var notDecodable gozxing.ReaderException
	if errors.As(err, &notDecodable) {
		return errs
	}
	return append(errs, err)
}

// boxOf returns the bounding box of the result points. 1D readers report points along one
// scan row, so the box is grown up and down over the rows of bars crossing that row.
// Without a bit matrix it is padded around the row by a quarter of its width.
func boxOf(points []gozxing.ResultPoint, bars *gozxing.BitMatrix) detector.Box {
	if len(points) == 0 {
		return detector.Box{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX, maxX = math.Min(minX, p.GetX()), math.Max(maxX, p.GetX())
		minY, maxY = math.Min(minY, p.GetY()), math.Max(maxY, p.GetY())
	}

	box := detector.Box{
		X:      int(math.Round(minX)),
		Y:      int(math.Round(minY)),
		Width:  int(math.Round(maxX - minX)),
		Height: int(math.Round(maxY - minY)),
	}
	if bars != nil {
		if top, bottom, ok := barRows(bars, box.Y, box.X, box.X+box.Width); ok {
			top, bottom = min(top, box.Y), max(bottom, box.Y+box.Height)
			box.Y, box.Height = top, bottom-top+1
			return box
		}
	}
	if pad := box.Width / 4; box.Height < pad {
		box.Y = max(box.Y-pad, 0)
		box.Height += 2 * pad
	}
	return box
}

// barRows walks up and down from row while the rows keep at least half of its
// black/white transitions between x0 and x1.
func barRows(m *gozxing.BitMatrix, row, x0, x1 int) (top, bottom int, ok bool) {
	if row < 0 || row >= m.GetHeight() {
		return 0, 0, false
	}
	x0, x1 = max(x0, 0), min(x1, m.GetWidth()-1)
	want := transitions(m, row, x0, x1) / 2
	if want == 0 {
		return 0, 0, false
	}

	top, bottom = row, row
	for top > 0 && transitions(m, top-1, x0, x1) >= want {
		top--
	}
	for bottom < m.GetHeight()-1 && transitions(m, bottom+1, x0, x1) >= want {
		bottom++
	}
	return top, bottom, true
}

func transitions(m *gozxing.BitMatrix, y, x0, x1 int) int {
	n := 0
	for x := x0 + 1; x <= x1; x++ {
		if m.Get(x, y) != m.Get(x-1, y) {
			n++
		}
	}
	return n
}
