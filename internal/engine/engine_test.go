package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexto0/dip-arbiter/internal/domain"
	"github.com/nexto0/dip-arbiter/internal/ports"
)

type fakeSubscription struct{}

func (fakeSubscription) Unsubscribe() {}

type fakeTransport struct {
	onConnected func()
}

func (f *fakeTransport) SubscribeMarkets(_ []string, _ ports.OrderbookHandlers) (ports.Subscription, error) {
	return fakeSubscription{}, nil
}
func (f *fakeTransport) SubscribeOraclePrices(_ []string, _ ports.OraclePriceHandlers) (ports.Subscription, error) {
	return fakeSubscription{}, nil
}
func (f *fakeTransport) OnConnected(fn func()) {
	f.onConnected = fn
	fn()
}

type fakeExecution struct {
	result ports.ExecutionResult
	err    error
}

func (f *fakeExecution) MarketOrder(_ context.Context, _ string, _ ports.Side, _ float64) (ports.ExecutionResult, error) {
	return f.result, f.err
}

type fakeSettlement struct{}

func (fakeSettlement) Merge(_ context.Context, _ string, _ float64) (domain.MergeOutcome, error) {
	return domain.MergeOutcome{Success: true}, nil
}
func (fakeSettlement) RedeemByTokenIds(_ context.Context, _, _, _ string) (domain.RedeemOutcome, error) {
	return domain.RedeemOutcome{Success: true}, nil
}
func (fakeSettlement) GetMarketResolution(_ context.Context, _ string) (domain.Resolution, error) {
	return domain.Resolution{IsResolved: true}, nil
}

func testMarket(end time.Time) domain.Market {
	return domain.Market{
		ConditionID: "cond-1",
		Underlying:  "BTC",
		EndTime:     end,
		Tokens: [2]domain.Token{
			{TokenID: "up-token", Outcome: domain.Up},
			{TokenID: "down-token", Outcome: domain.Down},
		},
	}
}

func TestEngine_StartRejectsMarketWithoutTokens(t *testing.T) {
	eng := New(&fakeTransport{}, &fakeExecution{}, fakeSettlement{})
	err := eng.Start(context.Background(), domain.Market{ConditionID: "no-tokens"})
	require.Error(t, err)
}

func TestEngine_StartRejectsDoubleStart(t *testing.T) {
	eng := New(&fakeTransport{}, &fakeExecution{}, fakeSettlement{})
	m := testMarket(time.Now().Add(5 * time.Minute))
	require.NoError(t, eng.Start(context.Background(), m))
	err := eng.Start(context.Background(), m)
	assert.Error(t, err)
}

func TestEngine_StartEmitsStartedAndSetsCurrentMarket(t *testing.T) {
	eng := New(&fakeTransport{}, &fakeExecution{}, fakeSettlement{})
	m := testMarket(time.Now().Add(5 * time.Minute))

	var got domain.Event
	eng.On(domain.EventStarted, func(ev domain.Event) { got = ev })

	require.NoError(t, eng.Start(context.Background(), m))
	assert.Equal(t, domain.EventStarted, got.Kind)
	assert.Equal(t, "cond-1", eng.CurrentMarket().ConditionID)
}

func TestEngine_StopIsIdempotentAndEmitsStopped(t *testing.T) {
	eng := New(&fakeTransport{}, &fakeExecution{}, fakeSettlement{})
	m := testMarket(time.Now().Add(5 * time.Minute))
	require.NoError(t, eng.Start(context.Background(), m))

	stopped := 0
	eng.On(domain.EventStopped, func(ev domain.Event) { stopped++ })

	eng.Stop()
	eng.Stop() // second call is a no-op, not a duplicate emission
	assert.Equal(t, 1, stopped)
}

func TestEngine_OnOrderbookStartsRoundOnceBothAsksKnown(t *testing.T) {
	eng := New(&fakeTransport{}, &fakeExecution{}, fakeSettlement{})
	m := testMarket(time.Now().Add(5 * time.Minute))

	var newRound domain.Event
	eng.On(domain.EventNewRound, func(ev domain.Event) { newRound = ev })

	require.NoError(t, eng.Start(context.Background(), m))
	eng.onOraclePrice(m.OracleSymbol(), 100.0, time.Now())

	eng.onOrderbook("up-token", domain.OrderBook{Asks: []domain.BookEntry{{Price: 0.40, Size: 10}}})
	assert.Nil(t, eng.CurrentRound(), "round should not open until both legs' asks are known")

	eng.onOrderbook("down-token", domain.OrderBook{Asks: []domain.BookEntry{{Price: 0.55, Size: 10}}})
	require.NotNil(t, eng.CurrentRound())
	assert.Equal(t, domain.PhaseWaiting, eng.CurrentRound().Phase)
	assert.Equal(t, domain.EventNewRound, newRound.Kind)
	assert.Equal(t, int64(1), eng.Statistics().RoundsMonitored)
}

func TestEngine_OnOrderbookIgnoresUnknownToken(t *testing.T) {
	eng := New(&fakeTransport{}, &fakeExecution{}, fakeSettlement{})
	m := testMarket(time.Now().Add(5 * time.Minute))
	require.NoError(t, eng.Start(context.Background(), m))

	eng.onOrderbook("some-other-token", domain.OrderBook{Asks: []domain.BookEntry{{Price: 0.4, Size: 10}}})
	assert.Nil(t, eng.CurrentRound())
}

func TestEngine_OnOrderbookIgnoresZeroAsk(t *testing.T) {
	eng := New(&fakeTransport{}, &fakeExecution{}, fakeSettlement{})
	m := testMarket(time.Now().Add(5 * time.Minute))
	require.NoError(t, eng.Start(context.Background(), m))

	eng.onOrderbook("up-token", domain.OrderBook{})
	eng.onOrderbook("down-token", domain.OrderBook{Asks: []domain.BookEntry{{Price: 0.5, Size: 10}}})
	assert.Nil(t, eng.CurrentRound(), "an empty book yields BestAsk()==0, which must not seed a round")
}

func TestEngine_Leg1FilledRoundExpiresAfterTimeout(t *testing.T) {
	eng := New(&fakeTransport{}, &fakeExecution{}, fakeSettlement{})
	m := testMarket(time.Now().Add(1 * time.Hour))
	require.NoError(t, eng.Start(context.Background(), m))

	eng.onOraclePrice(m.OracleSymbol(), 100.0, time.Now())
	eng.onOrderbook("up-token", domain.OrderBook{Asks: []domain.BookEntry{{Price: 0.40, Size: 10}}})
	eng.onOrderbook("down-token", domain.OrderBook{Asks: []domain.BookEntry{{Price: 0.55, Size: 10}}})
	require.NotNil(t, eng.CurrentRound())

	eng.mu.Lock()
	eng.round.FillLeg1(domain.Fill{
		Side:      domain.Up,
		Price:     0.40,
		Shares:    20,
		TokenID:   "up-token",
		Timestamp: time.Now().Add(-eng.cfg.Leg2Timeout - time.Second),
	})
	eng.mu.Unlock()

	var completed domain.Event
	eng.On(domain.EventRoundComplete, func(ev domain.Event) { completed = ev })

	eng.onOrderbook("up-token", domain.OrderBook{Asks: []domain.BookEntry{{Price: 0.41, Size: 10}}})

	assert.Equal(t, domain.EventRoundComplete, completed.Kind)
	assert.Equal(t, domain.RoundExpired, completed.RoundStatus)
	assert.Equal(t, int64(1), eng.Statistics().RoundsExpired)
}

func TestEngine_StatisticsSnapshotIsCopy(t *testing.T) {
	eng := New(&fakeTransport{}, &fakeExecution{}, fakeSettlement{})
	m := testMarket(time.Now().Add(5 * time.Minute))
	require.NoError(t, eng.Start(context.Background(), m))

	first := eng.Statistics()
	eng.onOraclePrice(m.OracleSymbol(), 100.0, time.Now())
	eng.onOrderbook("up-token", domain.OrderBook{Asks: []domain.BookEntry{{Price: 0.40, Size: 10}}})
	eng.onOrderbook("down-token", domain.OrderBook{Asks: []domain.BookEntry{{Price: 0.55, Size: 10}}})

	assert.Equal(t, int64(0), first.RoundsMonitored, "snapshot taken before the round started must stay at zero")
	assert.Equal(t, int64(1), eng.Statistics().RoundsMonitored)
}
