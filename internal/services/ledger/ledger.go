// Package ledger keeps the in-memory, append-only record of accepted detections for one session.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pharmascan/internal/dto"
	"pharmascan/internal/models"
	"pharmascan/internal/services/barcode"
)

// Ledger is the ordered record of accepted detections plus the cooldown gate guarding it.
// Insertion order is detection order.
type Ledger struct {
	sessionID string
	records   []models.DetectionRecord
	gate      *CooldownGate
	now       func() time.Time
	mu        sync.RWMutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now, used by RecordsWithin.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(l *Ledger) { l.sessionID = id }
}

// New creates an empty ledger whose gate uses the given cooldown.
func New(cooldown time.Duration, opts ...Option) *Ledger {
	l := &Ledger{
		sessionID: uuid.NewString(),
		records:   make([]models.DetectionRecord, 0),
		gate:      NewCooldownGate(cooldown),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SessionID identifies this detection session.
func (l *Ledger) SessionID() string {
	return l.sessionID
}

// Gate returns the cooldown gate owned by this ledger.
func (l *Ledger) Gate() *CooldownGate {
	return l.gate
}

// NewRecord builds an immutable record for this session. It does not append it.
func (l *Ledger) NewRecord(payload string, sym barcode.Symbology, at time.Time, valid, pharma bool) models.DetectionRecord {
	return models.DetectionRecord{
		ID:               uuid.NewString(),
		SessionID:        l.sessionID,
		Payload:          payload,
		Symbology:        sym,
		Timestamp:        at,
		IsValid:          valid,
		IsPharmaceutical: pharma,
	}
}

// Record appends rec.
func (l *Ledger) Record(rec models.DetectionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

// AcceptAndRecord passes payload through the cooldown gate and, when accepted, appends a new
// record for it. Gate and append happen under one lock, so a concurrent Clear lands either
// before both or after both.
func (l *Ledger) AcceptAndRecord(payload string, sym barcode.Symbology, at time.Time, valid, pharma bool) (models.DetectionRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.gate.AcceptAt(payload, at) {
		return models.DetectionRecord{}, false
	}
	rec := l.NewRecord(payload, sym, at, valid, pharma)
	l.records = append(l.records, rec)
	return rec, true
}

// Import appends previously exported records, keeping their order.
func (l *Ledger) Import(recs []models.DetectionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, recs...)
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Records returns a copy of the records matching filter, in detection order.
// A nil filter returns everything.
func (l *Ledger) Records(filter *dto.DetectionFilters) []models.DetectionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.DetectionRecord, 0, len(l.records))
	for _, rec := range l.records {
		if matches(rec, filter) {
			out = append(out, rec)
		}
	}

	if filter == nil {
		return out
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []models.DetectionRecord{}
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}

// RecordsWithin returns the records detected during the last d.
func (l *Ledger) RecordsWithin(d time.Duration) []models.DetectionRecord {
	return l.Records(&dto.DetectionFilters{Since: l.now().Add(-d)})
}

// Statistics computes the aggregate snapshot. ValidRate is 0 for an empty ledger.
func (l *Ledger) Statistics() models.Statistics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := models.Statistics{
		Total:        len(l.records),
		PerSymbology: make(map[barcode.Symbology]int),
	}
	for _, rec := range l.records {
		if rec.IsValid {
			stats.Valid++
		}
		if rec.IsPharmaceutical {
			stats.Pharmaceutical++
		}
		stats.PerSymbology[rec.Symbology]++
	}
	stats.Invalid = stats.Total - stats.Valid
	stats.NonPharmaceutical = stats.Total - stats.Pharmaceutical
	if stats.Total > 0 {
		stats.ValidRate = float64(stats.Valid) / float64(stats.Total)
	}
	return stats
}

// Duplicates lists payloads recorded more than once, most frequent first.
func (l *Ledger) Duplicates() []models.Duplicate {
	l.mu.RLock()
	defer l.mu.RUnlock()

	order := make([]string, 0)
	groups := make(map[string][]models.DetectionRecord)
	for _, rec := range l.records {
		if _, seen := groups[rec.Payload]; !seen {
			order = append(order, rec.Payload)
		}
		groups[rec.Payload] = append(groups[rec.Payload], rec)
	}

	dups := make([]models.Duplicate, 0)
	for _, payload := range order {
		occ := groups[payload]
		if len(occ) > 1 {
			dups = append(dups, models.Duplicate{Payload: payload, Count: len(occ), Occurrences: occ})
		}
	}
	sort.SliceStable(dups, func(i, j int) bool { return dups[i].Count > dups[j].Count })
	return dups
}

// Clear drops every record and resets the cooldown gate.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = make([]models.DetectionRecord, 0)
	l.gate.Reset()
}

func matches(rec models.DetectionRecord, f *dto.DetectionFilters) bool {
	if f == nil {
		return true
	}
	if f.Valid != nil && rec.IsValid != *f.Valid {
		return false
	}
	if f.Pharmaceutical != nil && rec.IsPharmaceutical != *f.Pharmaceutical {
		return false
	}
	if f.Symbology != "" && rec.Symbology != f.Symbology {
		return false
	}
	if f.Payload != "" && rec.Payload != f.Payload {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	return true
}
