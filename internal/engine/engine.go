// Package engine implements the Arbitrage Engine: a real-time, per-market
// state machine driven by a WebSocket stream of orderbook deltas and an
// independent oracle price stream (spec §4.1).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexto0/dip-arbiter/internal/domain"
	"github.com/nexto0/dip-arbiter/internal/ports"
)

// Engine monitors a single Market, maintains the active Round's state,
// emits signals, and executes trades when configured.
type Engine struct {
	transport ports.RealtimeTransport
	execution ports.ExecutionAdapter
	settle    ports.SettlementAdapter

	mu        sync.Mutex // guards everything below (§5 single-writer model)
	cfg       domain.EngineConfig
	market    domain.Market
	round     *domain.Round
	ring      *domain.PriceHistoryRing
	stats     domain.Statistics
	active    bool
	upAsk     float64
	dnAsk     float64
	underlyingPrice float64

	isExecuting     bool
	lastExecutionAt time.Time

	obSub     ports.Subscription
	oracleSub ports.Subscription

	observers map[domain.EventKind][]domain.Observer
}

// New builds an Engine against its collaborators with the default
// configuration.
func New(transport ports.RealtimeTransport, execution ports.ExecutionAdapter, settle ports.SettlementAdapter) *Engine {
	return &Engine{
		transport: transport,
		execution: execution,
		settle:    settle,
		cfg:       domain.DefaultEngineConfig(),
		ring:      domain.NewPriceHistoryRing(),
		observers: make(map[domain.EventKind][]domain.Observer),
	}
}

// On registers an observer for one event kind (Design Note: explicit
// observer set instead of an emitter/inheritance pattern).
func (e *Engine) On(kind domain.EventKind, fn domain.Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers[kind] = append(e.observers[kind], fn)
}

func (e *Engine) emit(ev domain.Event) {
	e.mu.Lock()
	fns := append([]domain.Observer(nil), e.observers[ev.Kind]...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Configure atomically replaces the engine's configuration.
func (e *Engine) Configure(cfg domain.EngineConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

// Config returns the current configuration snapshot.
func (e *Engine) Config() domain.EngineConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Start begins monitoring market: validates both token identifiers are
// present, subscribes to orderbook channels for both tokens and the
// oracle channel for the underlying, and waits up to 10s for transport
// readiness (best-effort; proceeds regardless).
func (e *Engine) Start(ctx context.Context, market domain.Market) error {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return domain.NewOpError(domain.ErrValidation, false, fmt.Errorf("engine already active on %s", e.market.ConditionID))
	}
	if !market.HasTokens() {
		e.mu.Unlock()
		return domain.NewOpError(domain.ErrValidation, false, fmt.Errorf("market %s missing token ids", market.ConditionID))
	}
	e.market = market
	e.round = nil
	e.ring.Reset()
	e.stats.StartedAt = time.Now()
	e.active = true
	e.mu.Unlock()

	ready := make(chan struct{}, 1)
	e.transport.OnConnected(func() {
		select {
		case ready <- struct{}{}:
		default:
		}
	})

	obSub, err := e.transport.SubscribeMarkets(
		[]string{market.TokenFor(domain.Up), market.TokenFor(domain.Down)},
		ports.OrderbookHandlers{
			OnOrderbook: e.onOrderbook,
			OnError:     e.onTransportError,
		},
	)
	if err != nil {
		e.mu.Lock()
		e.active = false
		e.mu.Unlock()
		return domain.NewOpError(domain.ErrTransport, true, err)
	}

	oracleSub, err := e.transport.SubscribeOraclePrices([]string{market.OracleSymbol()}, ports.OraclePriceHandlers{
		OnPrice: e.onOraclePrice,
	})
	if err != nil {
		obSub.Unsubscribe()
		e.mu.Lock()
		e.active = false
		e.mu.Unlock()
		return domain.NewOpError(domain.ErrTransport, true, err)
	}

	e.mu.Lock()
	e.obSub = obSub
	e.oracleSub = oracleSub
	e.mu.Unlock()

	select {
	case <-ready:
	case <-time.After(10 * time.Second):
		slog.Warn("transport not ready after 10s, proceeding optimistically", "market", market.ConditionID)
	case <-ctx.Done():
	}

	e.emit(domain.Event{Kind: domain.EventStarted, Time: time.Now(), Market: &market})
	slog.Info("engine started", "market", market.ConditionID, "slug", market.Slug)
	return nil
}

// Stop is idempotent: unsubscribes, and drops any subsequent delivery
// callbacks. In-flight execution calls run to completion, but their
// effect on round state is ignored.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	e.active = false
	obSub, oracleSub := e.obSub, e.oracleSub
	e.obSub, e.oracleSub = nil, nil
	e.mu.Unlock()

	if obSub != nil {
		obSub.Unsubscribe()
	}
	if oracleSub != nil {
		oracleSub.Unsubscribe()
	}

	e.emit(domain.Event{Kind: domain.EventStopped, Time: time.Now()})
	slog.Info("engine stopped")
}

// Statistics returns the current monotonic counters.
func (e *Engine) Statistics() domain.Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// CurrentRound returns a snapshot of the active round, or nil.
func (e *Engine) CurrentRound() *domain.Round {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil {
		return nil
	}
	r := *e.round
	return &r
}

// CurrentMarket returns the market currently being monitored, or the
// zero Market if the engine is not active.
func (e *Engine) CurrentMarket() domain.Market {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.market
}

func (e *Engine) onTransportError(err error) {
	e.emit(domain.Event{Kind: domain.EventError, Time: time.Now(), Err: err})
}

// onOraclePrice updates the underlying price cache (§4.1 step on oracle
// stream; symbol mismatch is ignored).
func (e *Engine) onOraclePrice(symbol string, price float64, ts time.Time) {
	e.mu.Lock()
	if !e.active || symbol != e.market.OracleSymbol() {
		e.mu.Unlock()
		return
	}
	prev := e.underlyingPrice
	e.underlyingPrice = price
	var priceToBeat float64
	if e.round != nil {
		priceToBeat = e.round.PriceToBeat
	}
	e.mu.Unlock()

	var changePct float64
	if prev > 0 {
		changePct = (price - prev) / prev
	}
	e.emit(domain.Event{
		Kind:          domain.EventPriceUpdate,
		Time:          ts,
		Underlying:    e.market.Underlying,
		PriceValue:    price,
		PriceToBeat:   priceToBeat,
		ChangePercent: changePct,
	})
}

// onOrderbook is the transport delivery callback driving the signal
// detector (§4.1 "Algorithm — signal detection").
func (e *Engine) onOrderbook(tokenID string, book domain.OrderBook) {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}

	ask := book.BestAsk()
	if ask <= 0 {
		e.mu.Unlock()
		return // invalid level, ignored (§4.1 failure semantics)
	}

	switch tokenID {
	case e.market.TokenFor(domain.Up):
		e.upAsk = ask
	case e.market.TokenFor(domain.Down):
		e.dnAsk = ask
	default:
		e.mu.Unlock()
		return
	}

	now := time.Now()

	if e.upAsk > 0 && e.dnAsk > 0 {
		e.ring.Append(domain.HistoryEntry{Time: now, UpAsk: e.upAsk, DnAsk: e.dnAsk})
	}

	var newRound *domain.Round
	if e.upAsk > 0 && e.dnAsk > 0 &&
		(e.round == nil || (e.round.Phase.Terminal() && !e.market.EndTime.Before(now))) {
		newRound = e.startNewRound(now)
	}

	round := e.round
	if round == nil {
		e.mu.Unlock()
		return
	}

	if round.Phase == domain.PhaseLeg1Filled && round.ElapsedSinceLeg1(now) > e.cfg.Leg2Timeout {
		round.Expire()
		e.stats.RoundsExpired++
		e.stats.RoundsCompleted++
		e.mu.Unlock()
		e.emit(domain.Event{Kind: domain.EventRoundComplete, Time: now, Round: round, RoundStatus: domain.RoundExpired})
		return
	}

	var sig *domain.Signal
	switch round.Phase {
	case domain.PhaseWaiting:
		sig = detectLeg1(e.cfg, round, e.ring, now, e.upAsk, e.dnAsk, e.underlyingPrice)
		if sig != nil {
			round.MarkLeg1Emitted()
		}
	case domain.PhaseLeg1Filled:
		sig = detectLeg2(e.cfg, round, now, e.upAsk, e.dnAsk)
	}

	cfg := e.cfg
	shouldExecute := sig != nil && cfg.AutoExecute && !e.isExecuting &&
		now.Sub(e.lastExecutionAt) >= cfg.ExecutionCooldown

	if sig != nil {
		e.stats.SignalsDetected++
	}
	if shouldExecute {
		e.isExecuting = true
	}
	e.mu.Unlock()

	if newRound != nil {
		e.emit(domain.Event{Kind: domain.EventNewRound, Time: now, Round: newRound})
	}
	if sig != nil {
		e.emit(domain.Event{Kind: domain.EventSignal, Time: now, Round: round, Signal: sig})
	}
	if shouldExecute {
		go e.runExecution(context.Background(), *sig)
	}
}

// startNewRound begins a fresh round (§4.1 step 3). Caller holds e.mu.
func (e *Engine) startNewRound(now time.Time) *domain.Round {
	priceToBeat := e.underlyingPrice
	round := domain.NewRound(uuid.NewString(), now, e.market.EndTime, priceToBeat, e.upAsk, e.dnAsk)
	e.ring.Reset()
	e.round = round
	e.stats.RoundsMonitored++
	return round
}
