package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexto0/dip-arbiter/internal/domain"
	"github.com/nexto0/dip-arbiter/internal/ports"
)

// ExecutionResult is returned by the manual execution endpoints (§4.1).
type ExecutionResult struct {
	Success   bool
	Leg       domain.SignalLeg
	RoundID   string
	FillPrice float64
	Shares    float64
	Elapsed   time.Duration
	Error     string
}

// runExecution dispatches the matching execution path for an
// auto-executed signal and clears isExecuting when done.
func (e *Engine) runExecution(ctx context.Context, sig domain.Signal) {
	defer func() {
		e.mu.Lock()
		e.isExecuting = false
		e.lastExecutionAt = time.Now()
		e.mu.Unlock()
	}()

	if sig.Leg == domain.Leg1 {
		e.ExecuteLeg1(ctx, sig)
	} else {
		e.ExecuteLeg2(ctx, sig)
	}
}

// ExecuteLeg1 places an immediate market buy for the dip/surge/mispricing
// side (§4.1 "Execution"). Safe to call manually (autoExecute=false) or
// from the auto-execution path.
func (e *Engine) ExecuteLeg1(ctx context.Context, sig domain.Signal) ExecutionResult {
	start := time.Now()
	e.mu.Lock()
	cfg := e.cfg
	market := e.market
	round := e.round
	e.mu.Unlock()

	if round == nil || round.ID != sig.RoundID {
		return ExecutionResult{Success: false, Leg: domain.Leg1, Error: "no matching round"}
	}

	quote := cfg.Shares * sig.TargetPrice
	tokenID := market.TokenFor(sig.Side)
	res, err := e.execution.MarketOrder(ctx, tokenID, ports.Buy, quote)

	elapsed := time.Since(start)
	if err != nil || !res.Success {
		msg := res.ErrorMessage
		if err != nil {
			msg = err.Error()
		}
		e.emit(domain.Event{Kind: domain.EventExecution, Time: time.Now(), Round: round, ExecutionSuccess: false, ExecutionLeg: domain.Leg1, ExecutionError: msg, ElapsedMs: elapsed.Milliseconds()})
		return ExecutionResult{Success: false, Leg: domain.Leg1, RoundID: sig.RoundID, Elapsed: elapsed, Error: msg}
	}

	shares := res.SharesFilled
	if shares == 0 {
		shares = cfg.Shares
	}

	e.mu.Lock()
	if e.active && e.round != nil && e.round.ID == sig.RoundID && !e.round.Phase.Terminal() {
		e.round.FillLeg1(domain.Fill{Side: sig.Side, Price: sig.TargetPrice, Shares: shares, TokenID: tokenID, Timestamp: time.Now()})
		e.stats.Leg1Filled++
		e.stats.CumulativeSpent += shares * sig.TargetPrice
	}
	e.mu.Unlock()

	e.emit(domain.Event{Kind: domain.EventExecution, Time: time.Now(), Round: round, ExecutionSuccess: true, ExecutionLeg: domain.Leg1, FillPrice: sig.TargetPrice, FillShares: shares, ElapsedMs: elapsed.Milliseconds()})
	slog.Info("leg1 filled", "round", sig.RoundID, "side", sig.Side, "price", sig.TargetPrice, "shares", shares)

	return ExecutionResult{Success: true, Leg: domain.Leg1, RoundID: sig.RoundID, FillPrice: sig.TargetPrice, Shares: shares, Elapsed: elapsed}
}

// ExecuteLeg2 places the hedge fill and, on success, completes the round
// and optionally invokes the Settlement Adapter merge() (§4.1
// "Execution", "On Leg2 success").
func (e *Engine) ExecuteLeg2(ctx context.Context, sig domain.Signal) ExecutionResult {
	start := time.Now()
	e.mu.Lock()
	cfg := e.cfg
	market := e.market
	round := e.round
	e.mu.Unlock()

	if round == nil || round.ID != sig.RoundID || round.Leg1 == nil {
		return ExecutionResult{Success: false, Leg: domain.Leg2, Error: "no matching leg1"}
	}

	quote := cfg.Shares * sig.TargetPrice
	tokenID := market.TokenFor(sig.Side)
	res, err := e.execution.MarketOrder(ctx, tokenID, ports.Buy, quote)

	elapsed := time.Since(start)
	if err != nil || !res.Success {
		msg := res.ErrorMessage
		if err != nil {
			msg = err.Error()
		}
		e.emit(domain.Event{Kind: domain.EventExecution, Time: time.Now(), Round: round, ExecutionSuccess: false, ExecutionLeg: domain.Leg2, ExecutionError: msg, ElapsedMs: elapsed.Milliseconds()})
		return ExecutionResult{Success: false, Leg: domain.Leg2, RoundID: sig.RoundID, Elapsed: elapsed, Error: msg}
	}

	shares := res.SharesFilled
	if shares == 0 {
		shares = cfg.Shares
	}

	e.mu.Lock()
	var completed *domain.Round
	if e.active && e.round != nil && e.round.ID == sig.RoundID && e.round.Phase == domain.PhaseLeg1Filled {
		e.round.FillLeg2(domain.Fill{Side: sig.Side, Price: sig.TargetPrice, Shares: shares, TokenID: tokenID, Timestamp: time.Now()}, cfg.Shares)
		e.stats.Leg2Filled++
		e.stats.RoundsCompleted++
		e.stats.RoundsSuccessful++
		e.stats.CumulativeSpent += shares * sig.TargetPrice
		e.stats.CumulativeProfit += e.round.Profit
		completed = e.round
		autoMerge := cfg.AutoMerge
		e.mu.Unlock()

		e.emit(domain.Event{Kind: domain.EventExecution, Time: time.Now(), Round: completed, ExecutionSuccess: true, ExecutionLeg: domain.Leg2, FillPrice: sig.TargetPrice, FillShares: shares, ElapsedMs: elapsed.Milliseconds()})

		if autoMerge {
			e.MergePosition(ctx)
		}

		e.emit(domain.Event{Kind: domain.EventRoundComplete, Time: time.Now(), Round: completed, RoundStatus: domain.RoundCompleted, Merged: completed.Merged, MergeTxHash: completed.MergeTxHash})
		slog.Info("round completed", "round", sig.RoundID, "profit", completed.Profit)
	} else {
		e.mu.Unlock()
	}

	return ExecutionResult{Success: true, Leg: domain.Leg2, RoundID: sig.RoundID, FillPrice: sig.TargetPrice, Shares: shares, Elapsed: elapsed}
}

// MergePosition invokes the Settlement Adapter's merge() for the current
// completed round and attaches the outcome.
func (e *Engine) MergePosition(ctx context.Context) domain.MergeOutcome {
	e.mu.Lock()
	round := e.round
	market := e.market
	shares := e.cfg.Shares
	e.mu.Unlock()

	if round == nil || round.Leg1 == nil || round.Leg2 == nil {
		return domain.MergeOutcome{Success: false}
	}

	outcome, err := e.settle.Merge(ctx, market.ConditionID, shares)
	if err != nil {
		outcome.Success = false
		outcome.Err = err
	}

	e.mu.Lock()
	if e.round != nil && e.round.ID == round.ID {
		e.round.Merged = outcome.Success
		e.round.MergeTxHash = outcome.TxHash
	}
	e.mu.Unlock()

	return outcome
}
