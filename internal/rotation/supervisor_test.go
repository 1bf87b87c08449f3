package rotation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexto0/dip-arbiter/internal/domain"
	"github.com/nexto0/dip-arbiter/internal/engine"
	"github.com/nexto0/dip-arbiter/internal/ports"
)

type fakeSubscription struct{}

func (fakeSubscription) Unsubscribe() {}

type fakeTransport struct{}

func (fakeTransport) SubscribeMarkets(_ []string, _ ports.OrderbookHandlers) (ports.Subscription, error) {
	return fakeSubscription{}, nil
}
func (fakeTransport) SubscribeOraclePrices(_ []string, _ ports.OraclePriceHandlers) (ports.Subscription, error) {
	return fakeSubscription{}, nil
}
func (fakeTransport) OnConnected(fn func()) { fn() }

type fakeExecution struct{}

func (fakeExecution) MarketOrder(_ context.Context, _ string, _ ports.Side, _ float64) (ports.ExecutionResult, error) {
	return ports.ExecutionResult{Success: true, SharesFilled: 20}, nil
}

type fakeSettlement struct {
	resolution domain.Resolution
	resErr     error
	redeem     domain.RedeemOutcome
	redeemErr  error
}

func (f *fakeSettlement) Merge(_ context.Context, _ string, _ float64) (domain.MergeOutcome, error) {
	return domain.MergeOutcome{Success: true}, nil
}
func (f *fakeSettlement) RedeemByTokenIds(_ context.Context, _, _, _ string) (domain.RedeemOutcome, error) {
	return f.redeem, f.redeemErr
}
func (f *fakeSettlement) GetMarketResolution(_ context.Context, _ string) (domain.Resolution, error) {
	return f.resolution, f.resErr
}

type fakeDiscovery struct {
	markets []domain.Market
	err     error
}

func (f *fakeDiscovery) ScanCryptoShortTermMarkets(_ context.Context, _ domain.DiscoveryQuery) ([]domain.Market, error) {
	return f.markets, f.err
}

type fakeStore struct {
	mu    sync.Mutex
	items map[string]domain.PendingRedemption
}

func newFakeStore() *fakeStore { return &fakeStore{items: map[string]domain.PendingRedemption{}} }

func (s *fakeStore) Enqueue(_ context.Context, p domain.PendingRedemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[p.Market.ConditionID] = p
	return nil
}
func (s *fakeStore) Update(_ context.Context, p domain.PendingRedemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[p.Market.ConditionID] = p
	return nil
}
func (s *fakeStore) Remove(_ context.Context, conditionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, conditionID)
	return nil
}
func (s *fakeStore) List(_ context.Context) ([]domain.PendingRedemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PendingRedemption, 0, len(s.items))
	for _, p := range s.items {
		out = append(out, p)
	}
	return out, nil
}
func (s *fakeStore) Close() error { return nil }

func marketEndingAt(condID string, end time.Time) domain.Market {
	return domain.Market{
		ConditionID: condID,
		Tokens: [2]domain.Token{
			{TokenID: condID + "-up", Outcome: domain.Up},
			{TokenID: condID + "-down", Outcome: domain.Down},
		},
		EndTime: end,
	}
}

func newTestSupervisor(discovery ports.MarketDiscovery, settle ports.SettlementAdapter, store ports.RedemptionStore) (*Supervisor, *engine.Engine) {
	eng := engine.New(fakeTransport{}, fakeExecution{}, settle)
	sup := New(eng, discovery, settle, fakeExecution{}, store)
	return sup, eng
}

// Scenario 5: rotation at market end with the redeem strategy and no open
// position enqueues nothing and still rotates to the next market.
func TestRotationTick_EndedMarketWithoutPositionRotatesWithoutEnqueue(t *testing.T) {
	store := newFakeStore()
	disc := &fakeDiscovery{markets: []domain.Market{marketEndingAt("next-1", time.Now().Add(5 * time.Minute))}}
	settle := &fakeSettlement{}
	sup, eng := newTestSupervisor(disc, settle, store)

	ended := marketEndingAt("cur-1", time.Now().Add(-1*time.Minute))
	require.NoError(t, eng.Start(context.Background(), ended))

	cfg := domain.DefaultRotationConfig()
	sup.mu.Lock()
	sup.cfg = cfg
	sup.current = ended
	sup.mu.Unlock()

	// Fake a filled leg1 by poking the round directly through the engine's
	// public execution surface isn't available without a signal; instead
	// confirm the no-open-position path (settleEndedMarket is a no-op
	// when CurrentRound has no Leg1) still rotates cleanly.
	sup.rotationTick(context.Background())

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "no open position means nothing should be enqueued")

	sup.mu.Lock()
	current := sup.current
	sup.mu.Unlock()
	assert.Equal(t, "next-1", current.ConditionID)
}

func TestRotationTick_PreloadsAheadOfMarketEnd(t *testing.T) {
	store := newFakeStore()
	disc := &fakeDiscovery{markets: []domain.Market{marketEndingAt("preload-1", time.Now().Add(10 * time.Minute))}}
	settle := &fakeSettlement{}
	sup, eng := newTestSupervisor(disc, settle, store)

	active := marketEndingAt("cur-2", time.Now().Add(1*time.Minute))
	require.NoError(t, eng.Start(context.Background(), active))

	cfg := domain.DefaultRotationConfig()
	cfg.PreloadMinutes = 2
	sup.mu.Lock()
	sup.cfg = cfg
	sup.current = active
	sup.mu.Unlock()

	sup.rotationTick(context.Background())

	sup.mu.Lock()
	next := sup.next
	sup.mu.Unlock()
	require.NotNil(t, next)
	assert.Equal(t, "preload-1", next.ConditionID)
}

func TestRedemptionTick_RetriesWhileUnresolved(t *testing.T) {
	store := newFakeStore()
	settle := &fakeSettlement{resolution: domain.Resolution{IsResolved: false}}
	sup, _ := newTestSupervisor(&fakeDiscovery{}, settle, store)

	p := domain.PendingRedemption{
		Market:        marketEndingAt("pending-1", time.Now().Add(-10*time.Minute)),
		MarketEndTime: time.Now().Add(-10 * time.Minute),
	}
	require.NoError(t, store.Enqueue(context.Background(), p))

	sup.redemptionTick(context.Background())

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].RetryCount)
}

func TestRedemptionTick_SucceedsOnceResolved(t *testing.T) {
	store := newFakeStore()
	settle := &fakeSettlement{
		resolution: domain.Resolution{IsResolved: true, Winner: domain.Up},
		redeem:     domain.RedeemOutcome{Success: true, USDCReceived: 20, TxHash: "0xabc"},
	}
	sup, _ := newTestSupervisor(&fakeDiscovery{}, settle, store)

	p := domain.PendingRedemption{
		Market:        marketEndingAt("pending-2", time.Now().Add(-10*time.Minute)),
		MarketEndTime: time.Now().Add(-10 * time.Minute),
	}
	require.NoError(t, store.Enqueue(context.Background(), p))

	var settled domain.Event
	sup.On(domain.EventSettled, func(ev domain.Event) { settled = ev })

	sup.redemptionTick(context.Background())

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "resolved redemption should be removed from the queue")
	assert.True(t, settled.SettledSuccess)
	assert.Equal(t, "0xabc", settled.SettleTxHash)
}

func TestRedemptionTick_AbandonsAfterMaxRetries(t *testing.T) {
	store := newFakeStore()
	settle := &fakeSettlement{resolution: domain.Resolution{IsResolved: false}}
	sup, _ := newTestSupervisor(&fakeDiscovery{}, settle, store)

	p := domain.PendingRedemption{
		Market:        marketEndingAt("pending-3", time.Now().Add(-10*time.Minute)),
		MarketEndTime: time.Now().Add(-10 * time.Minute),
		RetryCount:    21,
	}
	require.NoError(t, store.Enqueue(context.Background(), p))

	var settled domain.Event
	sup.On(domain.EventSettled, func(ev domain.Event) { settled = ev })

	sup.redemptionTick(context.Background())

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "exhausted retries should drop the pending redemption")
	assert.False(t, settled.SettledSuccess)
}
