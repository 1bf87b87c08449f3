package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func book(bid, ask float64) OrderBook {
	return OrderBook{
		Bids: []BookEntry{{Price: bid, Size: 1000}},
		Asks: []BookEntry{{Price: ask, Size: 1000}},
	}
}

// Scenario 4: a genuine long arbitrage. Both asks sum well under 1 after
// mirroring, so the long side should fire.
func TestCalculateArbitrage_LongArb(t *testing.T) {
	yes := book(0.40, 0.42)
	no := book(0.50, 0.52)

	result := CalculateArbitrage(yes, no, DefaultArbitrageThresholdForTest)

	require.Equal(t, ArbitrageLong, result.Category)
	assert.Greater(t, result.LongArbProfit, 0.0)
	assert.Contains(t, result.Action, "merge to 1")
}

// Scenario 6: mirror-aware effective pricing with a tight, consistent
// book should report no arbitrage.
func TestCalculateArbitrage_NoArbWhenMirrored(t *testing.T) {
	yes := book(0.49, 0.51)
	no := book(0.49, 0.51)

	result := CalculateArbitrage(yes, no, DefaultArbitrageThresholdForTest)

	assert.Equal(t, ArbitrageNone, result.Category)
	assert.Empty(t, result.Action)
}

// The mirror identity buyEffective(X) + sellEffective(¬X) == 1 holds
// regardless of book shape, so LongArbProfit and ShortArbProfit always
// move together; classify prefers Long whenever both clear threshold.
func TestCalculateArbitrage_LongAndShortProfitAreMirrorLinked(t *testing.T) {
	yes := book(0.60, 0.62)
	no := book(0.60, 0.62)

	result := CalculateArbitrage(yes, no, DefaultArbitrageThresholdForTest)

	assert.InDelta(t, result.LongArbProfit, result.ShortArbProfit, 1e-9)
	require.Equal(t, ArbitrageLong, result.Category)
}

func TestCalculateArbitrage_EmptyBookYieldsNone(t *testing.T) {
	result := CalculateArbitrage(OrderBook{}, OrderBook{}, DefaultArbitrageThresholdForTest)
	assert.Equal(t, ArbitrageNone, result.Category)
	assert.Equal(t, 0.0, result.YesBestAsk)
}

func TestVolumeWeightedPrice_WalksLevels(t *testing.T) {
	asks := []BookEntry{
		{Price: 0.40, Size: 100}, // $40 notional
		{Price: 0.45, Size: 200}, // $90 notional
	}
	vwap := VolumeWeightedPrice(asks, 60)
	// $60 of notional: 100 shares at 0.40 covers $40, remaining $20 buys
	// 20/0.45 = 44.44 shares at the second level. vwap = 60/144.44.
	assert.InDelta(t, 0.4154, vwap, 0.001)
}

func TestVolumeWeightedPrice_EmptyBook(t *testing.T) {
	assert.Equal(t, 0.0, VolumeWeightedPrice(nil, 100))
}

// DefaultArbitrageThresholdForTest mirrors the Orderbook Service's
// default gate without importing the orderbook package from domain.
const DefaultArbitrageThresholdForTest = 0.005
