package domain

import "time"

// PendingRedemption is a deferred settlement task enqueued when a market
// ends with an open Leg1-only (or completed) position and the settle
// strategy is "redeem" (§3, §4.2).
type PendingRedemption struct {
	Market        Market
	Round         Round // snapshot at enqueue time
	MarketEndTime time.Time
	EnqueuedAt    time.Time
	RetryCount    int
	LastRetryAt   time.Time
}

// maxRedemptionRetries bounds retries before the supervisor gives up and
// emits a settlement failure (§4.2, §5).
const maxRedemptionRetries = 20

// Exhausted reports whether the retry budget has been spent.
func (p PendingRedemption) Exhausted() bool {
	return p.RetryCount > maxRedemptionRetries
}

// ReadyAt reports whether the mandatory wait has elapsed.
func (p PendingRedemption) ReadyAt(now time.Time, waitMinutes float64) bool {
	return now.Sub(p.MarketEndTime).Minutes() >= waitMinutes
}

// MergeOutcome is the result of a Settlement Adapter merge() call.
type MergeOutcome struct {
	Success bool
	TxHash  string
	Err     error
}

// RedeemOutcome is the result of a Settlement Adapter redeemByTokenIds()
// call.
type RedeemOutcome struct {
	Success        bool
	USDCReceived   float64
	TxHash         string
	Err            error
}

// Resolution is the result of getMarketResolution().
type Resolution struct {
	IsResolved bool
	Winner     Outcome
}
