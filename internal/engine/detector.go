package engine

import (
	"time"

	"github.com/nexto0/dip-arbiter/internal/domain"
)

// detectLeg1 runs the waiting-phase detector (§4.1 "Detector — waiting
// phase"): dip, then surge (if enabled), then mispricing. The first
// produced signal wins.
func detectLeg1(cfg domain.EngineConfig, round *domain.Round, ring *domain.PriceHistoryRing, now time.Time, upAsk, dnAsk, underlyingPrice float64) *domain.Signal {
	elapsed := round.ElapsedSinceStart(now)
	if elapsed.Minutes() > cfg.WindowMinutes {
		return nil
	}
	if round.Leg1Emitted() {
		return nil
	}

	if sig := detectDip(cfg, round, ring, now, upAsk, dnAsk); sig != nil {
		return sig
	}
	if cfg.EnableSurge {
		if sig := detectSurge(cfg, round, ring, now, upAsk, dnAsk); sig != nil {
			return sig
		}
	}
	if sig := detectMispricing(cfg, round, now, upAsk, dnAsk, underlyingPrice); sig != nil {
		return sig
	}
	return nil
}

// detectDip evaluates the instant-dip pattern independently per side,
// UP first then DOWN (§4.1 (a)).
func detectDip(cfg domain.EngineConfig, round *domain.Round, ring *domain.PriceHistoryRing, now time.Time, upAsk, dnAsk float64) *domain.Signal {
	refTime := now.Add(-cfg.SlidingWindow)

	for _, side := range []domain.Outcome{domain.Up, domain.Down} {
		current := upAsk
		if side == domain.Down {
			current = dnAsk
		}
		ref, ok := ring.ReferenceAt(refTime)
		if !ok || ref.Time.After(refTime) {
			continue
		}
		refPrice := ref.UpAsk
		if side == domain.Down {
			refPrice = ref.DnAsk
		}
		if refPrice <= 0 {
			continue
		}
		drop := (refPrice - current) / refPrice
		if drop < cfg.DipThreshold {
			continue
		}

		oppositeAsk := dnAsk
		if side == domain.Down {
			oppositeAsk = upAsk
		}
		target := current * (1 + cfg.MaxSlippage)
		totalCost := target + oppositeAsk

		sig := &domain.Signal{
			Leg:                 domain.Leg1,
			Source:              domain.SourceDip,
			Side:                side,
			CurrentPrice:        current,
			DropPercent:         drop,
			OpenPrice:           refPrice,
			OppositeAsk:         oppositeAsk,
			TargetPrice:         target,
			EstimatedTotalCost:  totalCost,
			EstimatedProfitRate: profitRate(totalCost),
			RoundID:             round.ID,
			Timestamp:           now,
		}
		if sig.Valid(cfg.DipThreshold) {
			return sig
		}
	}
	return nil
}

// detectSurge evaluates the instant-surge pattern: if a side surged by
// >= surgeThreshold, buy the OTHER side (§4.1 (b)).
func detectSurge(cfg domain.EngineConfig, round *domain.Round, ring *domain.PriceHistoryRing, now time.Time, upAsk, dnAsk float64) *domain.Signal {
	refTime := now.Add(-cfg.SlidingWindow)

	for _, surged := range []domain.Outcome{domain.Up, domain.Down} {
		current := upAsk
		if surged == domain.Down {
			current = dnAsk
		}
		ref, ok := ring.ReferenceAt(refTime)
		if !ok {
			continue
		}
		refPrice := ref.UpAsk
		if surged == domain.Down {
			refPrice = ref.DnAsk
		}
		if refPrice <= 0 {
			continue
		}
		rise := (current - refPrice) / refPrice
		if rise < cfg.SurgeThreshold {
			continue
		}

		buySide := surged.Opposite()
		buyCurrent := dnAsk
		buyRef := ref.DnAsk
		oppositeAsk := upAsk
		if buySide == domain.Up {
			buyCurrent = upAsk
			buyRef = ref.UpAsk
			oppositeAsk = dnAsk
		}
		target := buyCurrent * (1 + cfg.MaxSlippage)
		totalCost := target + oppositeAsk

		sig := &domain.Signal{
			Leg:                 domain.Leg1,
			Source:              domain.SourceSurge,
			Side:                buySide,
			CurrentPrice:        buyCurrent,
			DropPercent:         rise,
			OpenPrice:           buyRef,
			OppositeAsk:         oppositeAsk,
			TargetPrice:         target,
			EstimatedTotalCost:  totalCost,
			EstimatedProfitRate: profitRate(totalCost),
			RoundID:             round.ID,
			Timestamp:           now,
		}
		if sig.Valid(cfg.DipThreshold) {
			return sig
		}
	}
	return nil
}

// detectMispricing estimates a notional UP win-rate from the oracle
// price-to-beat and compares it to the market's implied price (§4.1 (c)).
func detectMispricing(cfg domain.EngineConfig, round *domain.Round, now time.Time, upAsk, dnAsk, underlyingPrice float64) *domain.Signal {
	if round.PriceToBeat <= 0 || underlyingPrice <= 0 {
		return nil
	}

	pUp := 0.5 + 10*(underlyingPrice-round.PriceToBeat)/round.PriceToBeat
	pUp = clamp(pUp, 0.05, 0.95)

	if pUp-upAsk >= cfg.DipThreshold {
		return &domain.Signal{
			Leg:                 domain.Leg1,
			Source:              domain.SourceMispricing,
			Side:                domain.Up,
			CurrentPrice:        upAsk,
			DropPercent:         pUp - upAsk,
			OpenPrice:           round.OpenPriceUp,
			OppositeAsk:         dnAsk,
			TargetPrice:         upAsk * (1 + cfg.MaxSlippage),
			EstimatedTotalCost:  upAsk*(1+cfg.MaxSlippage) + dnAsk,
			EstimatedProfitRate: profitRate(upAsk*(1+cfg.MaxSlippage) + dnAsk),
			RoundID:             round.ID,
			Timestamp:           now,
		}
	}

	pDown := 1 - pUp
	if pDown-dnAsk >= cfg.DipThreshold {
		return &domain.Signal{
			Leg:                 domain.Leg1,
			Source:              domain.SourceMispricing,
			Side:                domain.Down,
			CurrentPrice:        dnAsk,
			DropPercent:         pDown - dnAsk,
			OpenPrice:           round.OpenPriceDn,
			OppositeAsk:         upAsk,
			TargetPrice:         dnAsk * (1 + cfg.MaxSlippage),
			EstimatedTotalCost:  dnAsk*(1+cfg.MaxSlippage) + upAsk,
			EstimatedProfitRate: profitRate(dnAsk*(1+cfg.MaxSlippage) + upAsk),
			RoundID:             round.ID,
			Timestamp:           now,
		}
	}
	return nil
}

// detectLeg2 evaluates hedge admission once Leg1 has filled (§4.1
// "Detector — leg1_filled phase").
func detectLeg2(cfg domain.EngineConfig, round *domain.Round, now time.Time, upAsk, dnAsk float64) *domain.Signal {
	if round.Leg1 == nil {
		return nil
	}
	hedgeSide := round.Leg1.Side.Opposite()
	leg2Ask := upAsk
	if hedgeSide == domain.Down {
		leg2Ask = dnAsk
	}
	totalCost := round.Leg1.Price + leg2Ask
	if totalCost > cfg.SumTarget {
		return nil
	}
	target := leg2Ask * (1 + cfg.MaxSlippage)
	return &domain.Signal{
		Leg:                 domain.Leg2,
		Side:                hedgeSide,
		CurrentPrice:        leg2Ask,
		TargetPrice:         target,
		EstimatedTotalCost:  totalCost,
		EstimatedProfitRate: profitRate(totalCost),
		RoundID:             round.ID,
		Timestamp:           now,
	}
}

func profitRate(totalCost float64) float64 {
	if totalCost <= 0 {
		return 0
	}
	return (1 - totalCost) / totalCost
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
