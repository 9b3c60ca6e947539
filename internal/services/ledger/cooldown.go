package ledger

import (
	"sync"
	"time"
)

// DefaultCooldown is the window during which a repeated payload is not recorded again.
const DefaultCooldown = 2 * time.Second

// CooldownGate suppresses re-recording of the same payload within the cooldown window.
// It is Idle until the first payload, then Tracking the last accepted payload and time.
type CooldownGate struct {
	cooldown    time.Duration
	tracking    bool
	lastPayload string
	lastTime    time.Time
	mu          sync.Mutex
}

// NewCooldownGate creates a gate; a non-positive cooldown falls back to DefaultCooldown.
func NewCooldownGate(cooldown time.Duration) *CooldownGate {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &CooldownGate{cooldown: cooldown}
}

// AcceptAt reports whether payload seen at now should become a new record.
// A payload is accepted when the gate is idle, the payload differs from the last
// accepted one, or more than the cooldown elapsed since it was accepted.
func (g *CooldownGate) AcceptAt(payload string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tracking && payload == g.lastPayload && now.Sub(g.lastTime) <= g.cooldown {
		return false
	}

	g.tracking = true
	g.lastPayload = payload
	g.lastTime = now
	return true
}

// Reset returns the gate to Idle.
func (g *CooldownGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tracking = false
	g.lastPayload = ""
	g.lastTime = time.Time{}
}

// Cooldown returns the configured window.
func (g *CooldownGate) Cooldown() time.Duration {
	return g.cooldown
}

// Last returns the tracked payload and time; ok is false while Idle.
func (g *CooldownGate) Last() (payload string, at time.Time, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastPayload, g.lastTime, g.tracking
}
