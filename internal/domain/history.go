package domain

import "time"

// HistoryEntry is one (timestamp, upAsk, downAsk) triple in the
// price-history ring.
type HistoryEntry struct {
	Time  time.Time
	UpAsk float64
	DnAsk float64
}

// historyCapacity bounds the ring at ~100 entries (§3).
const historyCapacity = 100

// PriceHistoryRing is a bounded FIFO sequence of HistoryEntry, one per
// round, reset on every new round.
type PriceHistoryRing struct {
	entries []HistoryEntry
}

// NewPriceHistoryRing returns an empty ring.
func NewPriceHistoryRing() *PriceHistoryRing {
	return &PriceHistoryRing{entries: make([]HistoryEntry, 0, historyCapacity)}
}

// Reset clears the ring for a new round.
func (r *PriceHistoryRing) Reset() {
	r.entries = r.entries[:0]
}

// Append adds an entry, evicting the oldest if at capacity.
func (r *PriceHistoryRing) Append(e HistoryEntry) {
	if len(r.entries) >= historyCapacity {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:len(r.entries)-1]
	}
	r.entries = append(r.entries, e)
}

// Len returns the number of entries currently held.
func (r *PriceHistoryRing) Len() int { return len(r.entries) }

// ReferenceAt returns the most recent entry at-or-before t, and whether
// one exists. Used to look up the sliding-window reference price.
func (r *PriceHistoryRing) ReferenceAt(t time.Time) (HistoryEntry, bool) {
	var best HistoryEntry
	found := false
	for _, e := range r.entries {
		if !e.Time.After(t) {
			if !found || e.Time.After(best.Time) {
				best = e
				found = true
			}
		}
	}
	return best, found
}

// OldestAge returns how far in the past the oldest entry is, relative to
// now. Returns 0 if the ring is empty.
func (r *PriceHistoryRing) OldestAge(now time.Time) time.Duration {
	if len(r.entries) == 0 {
		return 0
	}
	return now.Sub(r.entries[0].Time)
}
