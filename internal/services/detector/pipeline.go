package detector

import (
	"time"

	"pharmascan/internal/logger"
	"pharmascan/internal/services/barcode"
	"pharmascan/internal/services/ledger"
)

// Preprocessor turns one raw frame into the ordered candidate representations.
type Preprocessor interface {
	Preprocess(frame Frame) []Representation
}

// Observer is notified about pipeline outcomes. Metrics implement it.
type Observer interface {
	FrameProcessed(result FrameResult, elapsed time.Duration)
	SymbolSuppressed(sym barcode.Symbology)
}

// Pipeline drives preprocessing and scale search over a frame, then gates, validates and records what it finds.
// It is not safe for concurrent ProcessFrame calls; frames are processed one at a time.
type Pipeline struct {
	preprocessor Preprocessor
	searcher     Searcher
	ledger       *ledger.Ledger
	observer     Observer
	logger       *logger.Logger
	now          func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithObserver attaches an observer.
func WithObserver(o Observer) PipelineOption {
	return func(p *Pipeline) { p.observer = o }
}

// WithClock replaces time.Now for cooldown and record timestamps.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline wires the stages together around a ledger.
func NewPipeline(pre Preprocessor, searcher Searcher, l *ledger.Ledger, logger *logger.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		preprocessor: pre,
		searcher:     searcher,
		ledger:       l,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ledger returns the ledger the pipeline records into.
func (p *Pipeline) Ledger() *ledger.Ledger {
	return p.ledger
}

// ProcessFrame searches the representations of frame in order and stops at the first one
// that yields symbols. Every symbol found is returned for display; only symbols passing
// the cooldown gate are validated and recorded. It always returns, possibly empty.
func (p *Pipeline) ProcessFrame(frame Frame) FrameResult {
	start := time.Now()

	reps := p.preprocessor.Preprocess(frame)
	defer func() {
		for _, rep := range reps {
			if err := rep.Frame.Close(); err != nil {
				p.logger.Warning("Failed to release %s representation: %v", rep.Technique, err)
			}
		}
	}()

	result := FrameResult{Scale: 1.0, Attempted: make([]Technique, 0, len(reps))}

	var search SearchResult
	for _, rep := range reps {
		result.Attempted = append(result.Attempted, rep.Technique)
		search = p.searcher.Search(rep)
		if search.Found() {
			result.Found = true
			result.Technique = rep.Technique
			result.Scale = search.Scale
			break
		}
	}

	if result.Found {
		result.Detections = make([]Detection, 0, len(search.Symbols))
		for _, sym := range search.Symbols {
			result.Detections = append(result.Detections, p.handleSymbol(sym, search.Scale))
		}
	}

	if p.observer != nil {
		p.observer.FrameProcessed(result, time.Since(start))
	}
	return result
}

func (p *Pipeline) handleSymbol(sym DecodedSymbol, scale float64) Detection {
	det := Detection{
		Payload:   sym.Payload,
		Symbology: sym.Symbology,
		Box:       sym.Box.Remap(scale),
	}

	valid := barcode.Validate(sym.Payload, sym.Symbology)
	pharma := barcode.IsPharmaceutical(sym.Payload, sym.Symbology)
	rec, ok := p.ledger.AcceptAndRecord(sym.Payload, sym.Symbology, p.now(), valid, pharma)
	if !ok {
		if p.observer != nil {
			p.observer.SymbolSuppressed(sym.Symbology)
		}
		return det
	}

	det.Recorded = true
	det.Record = &rec
	return det
}
