package autorenew

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateWindowAndReplay(t *testing.T) {
	s := NewScheduler()
	now := time.Now()
	expiry := now.Add(10 * time.Minute)
	expiryIso := expiry.Format(time.RFC3339)

	// Outside the window: renewWindow 5 min, now is 10 min before expiry.
	assert.Equal(t, DecisionSkipped, s.Evaluate("cov-1", now, expiry, 5*time.Minute, expiryIso))

	// Inside the window: renewWindow 15 min.
	assert.Equal(t, DecisionRenew, s.Evaluate("cov-1", now, expiry, 15*time.Minute, expiryIso))

	s.MarkRenewed("cov-1", expiryIso)

	// A retried request against the same stale expiry is a replay, not a
	// second renewal.
	assert.Equal(t, DecisionReplay, s.Evaluate("cov-1", now, expiry, 15*time.Minute, expiryIso))

	// A renew call against the new expiry produced by the first renewal is
	// a fresh decision.
	newExpiry := expiry.Add(7 * 24 * time.Hour)
	newIso := newExpiry.Format(time.RFC3339)
	assert.Equal(t, DecisionSkipped, s.Evaluate("cov-1", now, newExpiry, 15*time.Minute, newIso))
}

func TestForgetClearsReplayMemory(t *testing.T) {
	s := NewScheduler()
	s.MarkRenewed("cov-2", "2026-01-01T00:00:00Z")
	s.Forget("cov-2")

	now := time.Now()
	expiry := now.Add(1 * time.Minute)
	iso := "2026-01-01T00:00:00Z"
	assert.Equal(t, DecisionRenew, s.Evaluate("cov-2", now, expiry, 15*time.Minute, iso))
}
