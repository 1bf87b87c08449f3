package domain

import "time"

// SignalLeg identifies which half of the round a Signal proposes to fill.
type SignalLeg int

const (
	Leg1 SignalLeg = iota
	Leg2
)

func (l SignalLeg) String() string {
	if l == Leg2 {
		return "leg2"
	}
	return "leg1"
}

// SignalSource names the detector pattern that produced a Leg1 signal.
type SignalSource int

const (
	SourceDip SignalSource = iota
	SourceSurge
	SourceMispricing
)

func (s SignalSource) String() string {
	switch s {
	case SourceSurge:
		return "surge"
	case SourceMispricing:
		return "mispricing"
	default:
		return "dip"
	}
}

// Signal is a detector output, either a Leg1 candidate or a Leg2 candidate.
type Signal struct {
	Leg    SignalLeg
	Source SignalSource // meaningful for Leg1 only

	Side Outcome // side to buy

	CurrentPrice float64
	DropPercent  float64 // Leg1 only: (ref-current)/ref
	OpenPrice    float64 // Leg1: the sliding reference used; mispricing: round open
	OppositeAsk  float64 // Leg1 only: the other side's best ask at signal time

	TargetPrice        float64 // current*(1+maxSlippage)
	EstimatedTotalCost float64 // Leg1: targetPrice+oppositeAsk; Leg2: leg1.price+currentPrice
	EstimatedProfitRate float64

	RoundID   string
	Timestamp time.Time
}

// Valid rejects malformed signals (§4.1 "Signal validation"): the current
// price must be in (0,1), and a dip/surge signal's drop must clear the
// configured threshold.
func (s Signal) Valid(dipThreshold float64) bool {
	if s.CurrentPrice <= 0 || s.CurrentPrice >= 1 {
		return false
	}
	if s.Leg == Leg1 && (s.Source == SourceDip || s.Source == SourceSurge) && s.DropPercent < dipThreshold {
		return false
	}
	return true
}
