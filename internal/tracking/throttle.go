package tracking

import "time"

// throttle limits per-participant emit cycles. State updates are applied
// before it is consulted; only propagation is skipped.
type throttle struct {
	interval time.Duration
}

// allow reports whether an emit cycle may run now and, if so, stamps it.
func (t throttle) allow(p *Participant, now time.Time) bool {
	if p.broadcasted && now.Sub(p.lastBroadcast) < t.interval {
		return false
	}

	p.lastBroadcast = now
	p.broadcasted = true
	return true
}
