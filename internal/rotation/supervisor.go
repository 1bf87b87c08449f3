// Package rotation implements the Auto-Rotation Supervisor: end-of-round
// handoff, preload, and the deferred redemption queue (spec §4.2).
package rotation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nexto0/dip-arbiter/internal/domain"
	"github.com/nexto0/dip-arbiter/internal/engine"
	"github.com/nexto0/dip-arbiter/internal/ports"
)

const rotationTickInterval = 30 * time.Second

// Supervisor keeps trading continuous across back-to-back rounds and
// settles positions left open when a market ends.
type Supervisor struct {
	eng        *engine.Engine
	discovery  ports.MarketDiscovery
	settle     ports.SettlementAdapter
	execution  ports.ExecutionAdapter
	store      ports.RedemptionStore

	mu       sync.Mutex
	cfg      domain.RotationConfig
	current  domain.Market
	next     *domain.Market
	enabled  bool

	rotationTicker  *time.Ticker
	redemptionTicker *time.Ticker
	stopCh          chan struct{}

	observers map[domain.EventKind][]domain.Observer
}

// New builds a Supervisor bound to one engine instance.
func New(eng *engine.Engine, discovery ports.MarketDiscovery, settle ports.SettlementAdapter, execution ports.ExecutionAdapter, store ports.RedemptionStore) *Supervisor {
	return &Supervisor{
		eng:       eng,
		discovery: discovery,
		settle:    settle,
		execution: execution,
		store:     store,
		cfg:       domain.DefaultRotationConfig(),
		observers: make(map[domain.EventKind][]domain.Observer),
	}
}

// On registers an observer for one event kind.
func (s *Supervisor) On(kind domain.EventKind, fn domain.Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers[kind] = append(s.observers[kind], fn)
}

func (s *Supervisor) emit(ev domain.Event) {
	s.mu.Lock()
	fns := append([]domain.Observer(nil), s.observers[ev.Kind]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// EnableRotation starts the rotation and redemption tickers and runs one
// tick immediately.
func (s *Supervisor) EnableRotation(ctx context.Context, cfg domain.RotationConfig, current domain.Market) {
	s.mu.Lock()
	s.cfg = cfg
	s.current = current
	if s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = true
	s.stopCh = make(chan struct{})
	redeemInterval := cfg.RedeemRetryInterval
	s.mu.Unlock()

	s.rotationTick(ctx)

	s.mu.Lock()
	s.rotationTicker = time.NewTicker(rotationTickInterval)
	s.redemptionTicker = time.NewTicker(redeemInterval)
	rotTicker := s.rotationTicker
	redeemTicker := s.redemptionTicker
	stopCh := s.stopCh
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-stopCh:
				return
			case <-rotTicker.C:
				s.rotationTick(ctx)
			case <-redeemTicker.C:
				s.redemptionTick(ctx)
			}
		}
	}()
}

// DisableRotation stops the periodic tickers. Pending redemptions are
// left in place.
func (s *Supervisor) DisableRotation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}
	s.enabled = false
	close(s.stopCh)
	s.rotationTicker.Stop()
	s.redemptionTicker.Stop()
	if n, _ := s.pendingCount(); n > 0 {
		slog.Warn("rotation disabled with pending redemptions outstanding", "count", n)
	}
}

func (s *Supervisor) pendingCount() (int, error) {
	list, err := s.store.List(context.Background())
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// RotateNow forces an immediate scan-and-swap.
func (s *Supervisor) RotateNow(ctx context.Context) {
	s.doRotate(ctx, domain.RotateManual)
}

// rotationTick implements §4.2 "Rotation tick".
func (s *Supervisor) rotationTick(ctx context.Context) {
	s.mu.Lock()
	current := s.current
	cfg := s.cfg
	hasNext := s.next != nil
	s.mu.Unlock()

	now := time.Now()
	timeUntilEnd := current.MinutesToEnd(now)

	if timeUntilEnd <= cfg.PreloadMinutes && !hasNext {
		s.preload(ctx)
	}

	if current.EndTime.After(now) {
		return
	}

	s.settleEndedMarket(ctx, current, cfg)
	s.doRotate(ctx, domain.RotateMarketEnded)
}

func (s *Supervisor) preload(ctx context.Context) {
	s.mu.Lock()
	cfg := s.cfg
	current := s.current
	s.mu.Unlock()

	q := domain.DiscoveryQuery{
		Coins:              cfg.Underlyings,
		Durations:          []domain.Duration{cfg.Duration},
		MinMinutesUntilEnd: 5,
		MaxMinutesUntilEnd: 30,
		SortBy:             domain.SortByEndDate,
		Limit:              1,
		Exclude:            map[string]bool{current.ConditionID: true},
	}
	candidates, err := s.discovery.ScanCryptoShortTermMarkets(ctx, q)
	if err != nil {
		slog.Warn("rotation preload scan failed", "err", err)
		return
	}
	if len(candidates) == 0 {
		return
	}
	next := candidates[0]
	s.mu.Lock()
	s.next = &next
	s.mu.Unlock()
}

// settleEndedMarket disposes of any open position per the configured
// settle strategy (§4.2 "If timeUntilEnd <= 0").
func (s *Supervisor) settleEndedMarket(ctx context.Context, market domain.Market, cfg domain.RotationConfig) {
	if !cfg.AutoSettle {
		return
	}
	round := s.eng.CurrentRound()
	if round == nil || round.Leg1 == nil {
		return
	}

	if cfg.SettleStrategy == domain.SettleRedeem {
		s.enqueueRedemption(ctx, market, *round)
		return
	}
	s.immediateSell(ctx, market, round)
}

func (s *Supervisor) enqueueRedemption(ctx context.Context, market domain.Market, round domain.Round) {
	p := domain.PendingRedemption{
		Market:        market,
		Round:         round,
		MarketEndTime: market.EndTime,
		EnqueuedAt:    time.Now(),
	}
	if err := s.store.Enqueue(ctx, p); err != nil {
		slog.Error("failed to enqueue pending redemption", "market", market.ConditionID, "err", err)
	}
}

// immediateSell implements the §4.2 "Immediate sell strategy": for each
// filled leg, submit an immediate market sell and credit amountReceived
// as the leg's shares times its recorded fill price (optimistic — Design
// Note Open Question).
func (s *Supervisor) immediateSell(ctx context.Context, market domain.Market, round *domain.Round) {
	var total float64
	for _, fill := range []*domain.Fill{round.Leg1, round.Leg2} {
		if fill == nil {
			continue
		}
		tokenID := market.TokenFor(fill.Side)
		res, err := s.execution.MarketOrder(ctx, tokenID, ports.Sell, fill.Shares*fill.Price)
		success := err == nil && res.Success
		amount := fill.Shares * fill.Price
		if success {
			total += amount
		}
		s.emit(domain.Event{
			Kind:            domain.EventSettled,
			Time:            time.Now(),
			SettledSuccess:  success,
			SettleStrategy:  domain.SettleSell,
			AmountReceived:  amount,
		})
	}
	_ = total
}

// doRotate stops the engine, starts it on the preloaded next market (or a
// fresh scan if the preload was empty), and emits a rotate event.
func (s *Supervisor) doRotate(ctx context.Context, reason domain.RotateReason) {
	s.mu.Lock()
	previous := s.current
	next := s.next
	cfg := s.cfg
	s.next = nil
	s.mu.Unlock()

	s.eng.Stop()

	var target domain.Market
	if next != nil {
		target = *next
	} else {
		q := domain.DiscoveryQuery{
			Coins:              cfg.Underlyings,
			Durations:          []domain.Duration{cfg.Duration},
			MinMinutesUntilEnd: 5,
			MaxMinutesUntilEnd: 30,
			SortBy:             domain.SortByEndDate,
			Limit:              1,
			Exclude:            map[string]bool{previous.ConditionID: true},
		}
		candidates, err := s.discovery.ScanCryptoShortTermMarkets(ctx, q)
		if err != nil || len(candidates) == 0 {
			slog.Error("rotation could not find a successor market", "err", err)
			s.emit(domain.Event{Kind: domain.EventRotate, Time: time.Now(), PreviousMarket: &previous, RotateReason: domain.RotateError})
			return
		}
		target = candidates[0]
	}

	if err := s.eng.Start(ctx, target); err != nil {
		slog.Error("rotation failed to start successor market", "market", target.ConditionID, "err", err)
		s.emit(domain.Event{Kind: domain.EventRotate, Time: time.Now(), PreviousMarket: &previous, RotateReason: domain.RotateError})
		return
	}

	s.mu.Lock()
	s.current = target
	s.mu.Unlock()

	s.emit(domain.Event{Kind: domain.EventRotate, Time: time.Now(), PreviousMarket: &previous, NewMarket: &target, RotateReason: reason})
}

// redemptionTick implements §4.2 "Redemption tick".
func (s *Supervisor) redemptionTick(ctx context.Context) {
	list, err := s.store.List(ctx)
	if err != nil {
		slog.Error("failed to list pending redemptions", "err", err)
		return
	}

	now := time.Now()
	for _, p := range list {
		if !p.ReadyAt(now, s.cfg.RedeemWaitMinutes) {
			continue
		}
		s.processRedemption(ctx, p)
	}
}

func (s *Supervisor) processRedemption(ctx context.Context, p domain.PendingRedemption) {
	res, err := s.settle.GetMarketResolution(ctx, p.Market.ConditionID)
	if err != nil || !res.IsResolved {
		p.RetryCount++
		p.LastRetryAt = time.Now()
		if p.Exhausted() {
			slog.Error("redemption abandoned after max retries", "market", p.Market.ConditionID)
			s.store.Remove(ctx, p.Market.ConditionID)
			s.emit(domain.Event{Kind: domain.EventSettled, Time: time.Now(), SettledSuccess: false, SettleStrategy: domain.SettleRedeem, SettleError: "resolution pending: retries exhausted"})
			return
		}
		s.store.Update(ctx, p)
		return
	}

	outcome, err := s.settle.RedeemByTokenIds(ctx, p.Market.ConditionID, p.Market.TokenFor(domain.Up), p.Market.TokenFor(domain.Down))
	success := err == nil && outcome.Success
	s.emit(domain.Event{
		Kind:           domain.EventSettled,
		Time:           time.Now(),
		SettledSuccess: success,
		SettleStrategy: domain.SettleRedeem,
		AmountReceived: outcome.USDCReceived,
		SettleTxHash:   outcome.TxHash,
	})
	s.store.Remove(ctx, p.Market.ConditionID)
}

// GetPendingRedemptions returns a snapshot of the redemption queue
// (§5 "callers may read a snapshot").
func (s *Supervisor) GetPendingRedemptions(ctx context.Context) ([]domain.PendingRedemption, error) {
	return s.store.List(ctx)
}
