package hedging

import "time"

// Action is the tagged hedge decision.
type Action string

const (
	ActionIncrease Action = "increase"
	ActionDecrease Action = "decrease"
	ActionHold     Action = "hold"
)

// Decision is the hedge-rolling decision with its reason.
type Decision struct {
	Action Action
	Reason string
}

// RollingDecision implements the buffer-band decision: below target the hedge
// grows, above target plus hysteresis it shrinks, otherwise it holds.
func RollingDecision(bufferPct, bufferTargetPct, hysteresisPct float64) Decision {
	switch {
	case bufferPct < bufferTargetPct:
		return Decision{Action: ActionIncrease, Reason: "buffer_below_target"}
	case bufferPct > bufferTargetPct+hysteresisPct:
		return Decision{Action: ActionDecrease, Reason: "buffer_above_target"}
	default:
		return Decision{Action: ActionHold, Reason: "within_band"}
	}
}

// ShouldRenew reports whether now falls inside the renewal window:
// now >= expiry - window.
func ShouldRenew(now, expiry time.Time, window time.Duration) bool {
	return !now.Before(expiry.Add(-window))
}
