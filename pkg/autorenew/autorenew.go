// Package autorenew implements the auto-renew scheduler from spec section
// 4.7/6.2: the renew-window gate, idempotency by coverage key, and
// replay-safe renewals (a repeated renew call for a coverage already
// renewed against the same expiry is a no-op, not a double renewal).
package autorenew

import (
	"sync"
	"time"

	"github.com/drawdownguard/collar-engine/pkg/hedging"
)

// Decision is the outcome of evaluating one coverage for auto-renewal.
type Decision string

const (
	DecisionRenew   Decision = "renew"
	DecisionSkipped Decision = "skipped"   // outside the renew window
	DecisionReplay  Decision = "replay"    // already renewed for this expiry
)

// Scheduler tracks, per coverage key, the pre-renewal expiryIso it was
// last renewed away from, so a retried or duplicated renew call against
// that same stale expiry is a safe no-op.
type Scheduler struct {
	mu             sync.Mutex
	renewedFromIso map[string]string // coverageId -> expiryIso already renewed away from
}

func NewScheduler() *Scheduler {
	return &Scheduler{renewedFromIso: make(map[string]string)}
}

// Evaluate implements I8 (renew iff now >= expiry - window) plus the
// idempotency rule: expiryIso is the coverage's current (pre-renewal)
// expiry; a coverage already renewed away from that same expiry is
// reported as DecisionReplay rather than renewed again.
func (s *Scheduler) Evaluate(coverageID string, now, expiry time.Time, window time.Duration, expiryIso string) Decision {
	if !hedging.ShouldRenew(now, expiry, window) {
		return DecisionSkipped
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.renewedFromIso[coverageID] == expiryIso {
		return DecisionReplay
	}

	return DecisionRenew
}

// MarkRenewed records that coverageID has been renewed away from
// oldExpiryIso, so a subsequent retry carrying that same stale expiry is
// recognized as a replay rather than re-executed.
func (s *Scheduler) MarkRenewed(coverageID, oldExpiryIso string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renewedFromIso[coverageID] = oldExpiryIso
}

// Forget drops a coverage's renewal memory, used when a coverage closes or
// expires so the key can be reused by a future coverage with the same id
// shape (tierName:date:positionId collisions across distinct lifetimes).
func (s *Scheduler) Forget(coverageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.renewedFromIso, coverageID)
}
