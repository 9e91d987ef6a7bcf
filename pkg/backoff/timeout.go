// Package backoff implements the tick-driven timers the session client uses
// for its two deadlines: a fixed-period ping and a dynamic, exponentially
// backed-off request retry.
//
// Timeout is driven entirely by discrete Tick calls rather than wall-clock
// timers, matching a no-suspension-points scheduling model: the host calls
// Tick once per tick period and Timeout reports whether it fired.
package backoff

import "math/rand"

// Timeout is a single countdown, optionally jittered and capped, that the
// owner re-arms after it fires (ping) or backs off after it fires
// (request retry).
type Timeout struct {
	ticks       uint64 // base period, in ticks
	multiple    uint64
	maxAttempts uint32
	remaining   uint64
	attempts    uint32
	started     bool
}

// New returns a Timeout whose base period is ticks*multiple, capped so that
// exponential backoff never shifts past 1<<maxAttempts multiples of the
// base period.
func New(ticks, multiple uint64, maxAttempts uint32) *Timeout {
	if ticks == 0 || multiple == 0 {
		panic("backoff: ticks and multiple must be positive")
	}
	return &Timeout{ticks: ticks, multiple: multiple, maxAttempts: maxAttempts}
}

// Start arms the timeout at its base period and resets the attempt count.
func (t *Timeout) Start() {
	t.attempts = 0
	t.remaining = t.ticks * t.multiple
	t.started = true
}

// Stop disarms the timeout. Tick is a no-op while stopped.
func (t *Timeout) Stop() {
	t.started = false
	t.remaining = 0
}

// Running reports whether the timeout is currently armed.
func (t *Timeout) Running() bool { return t.started }

// Tick advances the timeout by one tick and reports whether it fired. A
// fired timeout keeps reporting true on every Tick until Start or Backoff
// rearms it or Stop disarms it.
func (t *Timeout) Tick() bool {
	if !t.started {
		return false
	}
	if t.remaining == 0 {
		return true
	}
	t.remaining--
	return t.remaining == 0
}

// Backoff increases the attempt counter (capped at maxAttempts) and re-arms
// the timeout at base*2^attempts ticks plus random jitter up to one base
// period. rng should be seeded from the session's client_id so retry
// timing is reproducible per session without coordinating across clients.
func (t *Timeout) Backoff(rng *rand.Rand) {
	if t.attempts < t.maxAttempts {
		t.attempts++
	}
	base := t.ticks * t.multiple
	shifted := base << t.attempts
	if shifted>>t.attempts != base {
		// Overflow from a large attempt count; clamp instead of wrapping.
		shifted = ^uint64(0) - base
	}
	jitter := uint64(0)
	if base > 0 {
		jitter = uint64(rng.Int63n(int64(base)))
	}
	t.remaining = shifted + jitter
	t.started = true
}

// Attempts reports how many times Backoff has been called since the last
// Start, capped at maxAttempts, used to compute which replica to address next
// ((view + attempts) mod replica_count).
func (t *Timeout) Attempts() uint32 { return t.attempts }
