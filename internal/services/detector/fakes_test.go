package detector

import (
	"errors"
	"fmt"
	"image"

	"pharmascan/internal/services/barcode"
)

// fakeFrame carries the technique and scale it was derived with so fakes can decide what to "decode".
type fakeFrame struct {
	technique Technique
	scale     float64
	size      image.Point
	smoothed  bool
	closed    *int
}

func (f *fakeFrame) Size() image.Point           { return f.size }
func (f *fakeFrame) Channels() int               { return 1 }
func (f *fakeFrame) Image() (image.Image, error) { return nil, errors.New("fake frame has no pixels") }
func (f *fakeFrame) Close() error {
	if f.closed != nil {
		*f.closed++
	}
	return nil
}

type fakePreprocessor struct {
	size   image.Point
	closed int
	calls  int
}

func (p *fakePreprocessor) Preprocess(frame Frame) []Representation {
	p.calls++
	reps := make([]Representation, 0, len(Techniques))
	for _, tech := range Techniques {
		reps = append(reps, Representation{
			Technique: tech,
			Frame:     &fakeFrame{technique: tech, scale: 1.0, size: p.size, closed: &p.closed},
		})
	}
	return reps
}

type fakeImaging struct {
	denoiseErr error
	resized    []float64
	created    int
	closed     int
}

func (im *fakeImaging) Denoise(f Frame) (Frame, error) {
	if im.denoiseErr != nil {
		return nil, im.denoiseErr
	}
	src := f.(*fakeFrame)
	im.created++
	return &fakeFrame{technique: src.technique, scale: 1.0, size: src.size, smoothed: true, closed: &im.closed}, nil
}

func (im *fakeImaging) Resize(f Frame, size image.Point) (Frame, error) {
	src := f.(*fakeFrame)
	scale := float64(size.X) / float64(src.size.X)
	im.resized = append(im.resized, scale)
	im.created++
	return &fakeFrame{technique: src.technique, scale: scale, size: size, smoothed: src.smoothed, closed: &im.closed}, nil
}

type attempt struct {
	technique Technique
	scale     float64
}

func (a attempt) String() string {
	return fmt.Sprintf("%s@%.1f", a.technique, a.scale)
}

// fakeDecoder answers from a table keyed by "technique@scale".
type fakeDecoder struct {
	answers  map[string]DecodeOutcome
	attempts []string
	allowed  []barcode.Symbology
	sawRaw   bool
}

func (d *fakeDecoder) Decode(f Frame, allowed []barcode.Symbology) DecodeOutcome {
	ff := f.(*fakeFrame)
	if !ff.smoothed {
		d.sawRaw = true
	}
	d.allowed = allowed
	key := attempt{ff.technique, ff.scale}.String()
	d.attempts = append(d.attempts, key)
	if out, ok := d.answers[key]; ok {
		return out
	}
	return None(nil)
}
