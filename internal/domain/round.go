package domain

import "time"

// Phase is a Round's position in its lifecycle.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseLeg1Filled
	PhaseCompleted
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseLeg1Filled:
		return "leg1_filled"
	case PhaseCompleted:
		return "completed"
	case PhaseExpired:
		return "expired"
	default:
		return "waiting"
	}
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseExpired
}

// Fill is one executed half of the pair (§3 Fill Record).
type Fill struct {
	Side      Outcome
	Price     float64
	Shares    float64
	TokenID   string
	Timestamp time.Time
}

// Round is one monitoring session over a single Market.
type Round struct {
	ID           string
	StartTime    time.Time
	EndTime      time.Time
	PriceToBeat  float64 // oracle price of the underlying at round start
	OpenPriceUp  float64
	OpenPriceDn  float64
	Phase        Phase
	Leg1         *Fill
	Leg2         *Fill
	TotalCost    float64
	Profit       float64
	Merged       bool
	MergeTxHash  string

	// leg1SignalEmitted latches after the first Leg1 signal of this round is
	// emitted, guaranteeing at-most-once emission even under bursty
	// redelivery (Design Note, Open Question: leg1SignalEmitted latch).
	leg1SignalEmitted bool
}

// NewRound starts a fresh round: price-to-beat and open prices captured
// from the latest oracle/ask readings, phase=waiting, ring implicitly
// reset by the caller (the engine owns a single ring per round).
func NewRound(id string, start, end time.Time, priceToBeat, upAsk, dnAsk float64) *Round {
	return &Round{
		ID:          id,
		StartTime:   start,
		EndTime:     end,
		PriceToBeat: priceToBeat,
		OpenPriceUp: upAsk,
		OpenPriceDn: dnAsk,
		Phase:       PhaseWaiting,
	}
}

// Leg1Emitted reports whether a Leg1 signal has already been emitted this
// round.
func (r *Round) Leg1Emitted() bool { return r.leg1SignalEmitted }

// MarkLeg1Emitted sets the latch. Idempotent.
func (r *Round) MarkLeg1Emitted() { r.leg1SignalEmitted = true }

// FillLeg1 records the Leg1 fill and advances the phase.
func (r *Round) FillLeg1(f Fill) {
	r.Leg1 = &f
	r.Phase = PhaseLeg1Filled
}

// FillLeg2 records the Leg2 fill, advances to completed, and computes
// total cost and profit for shares contracts.
func (r *Round) FillLeg2(f Fill, shares float64) {
	r.Leg2 = &f
	r.Phase = PhaseCompleted
	r.TotalCost = r.Leg1.Price + f.Price
	r.Profit = shares * (1 - r.TotalCost)
}

// Expire transitions the round to expired (Leg2 timeout).
func (r *Round) Expire() { r.Phase = PhaseExpired }

// ElapsedSinceStart returns time.Since(r.StartTime) as of now.
func (r *Round) ElapsedSinceStart(now time.Time) time.Duration {
	return now.Sub(r.StartTime)
}

// ElapsedSinceLeg1 returns the time since Leg1 filled, or 0 if unset.
func (r *Round) ElapsedSinceLeg1(now time.Time) time.Duration {
	if r.Leg1 == nil {
		return 0
	}
	return now.Sub(r.Leg1.Timestamp)
}
