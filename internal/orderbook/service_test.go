package orderbook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexto0/dip-arbiter/internal/domain"
)

type fakeSnapshotter struct {
	books map[string]domain.OrderBook
	err   error
}

func (f *fakeSnapshotter) Snapshot(_ context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.OrderBook, len(tokenIDs))
	for _, id := range tokenIDs {
		if b, ok := f.books[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func testMarket() domain.Market {
	return domain.Market{
		ConditionID: "cond-1",
		Tokens: [2]domain.Token{
			{TokenID: "up-token", Outcome: domain.Up},
			{TokenID: "down-token", Outcome: domain.Down},
		},
		EndTime: time.Now().Add(5 * time.Minute),
	}
}

func TestService_Snapshot_MissingBookErrors(t *testing.T) {
	snap := &fakeSnapshotter{books: map[string]domain.OrderBook{
		"up-token": {Bids: []domain.BookEntry{{Price: 0.4, Size: 10}}, Asks: []domain.BookEntry{{Price: 0.42, Size: 10}}},
	}}
	svc := New(snap)

	_, _, err := svc.Snapshot(context.Background(), testMarket())
	require.Error(t, err)
}

// Scenario 4: genuine arbitrage surfaced through Analyze end to end.
func TestService_Analyze_DetectsArbitrage(t *testing.T) {
	snap := &fakeSnapshotter{books: map[string]domain.OrderBook{
		"up-token":   {Bids: []domain.BookEntry{{Price: 0.40, Size: 500}}, Asks: []domain.BookEntry{{Price: 0.42, Size: 500}}},
		"down-token": {Bids: []domain.BookEntry{{Price: 0.50, Size: 500}}, Asks: []domain.BookEntry{{Price: 0.52, Size: 500}}},
	}}
	svc := New(snap)

	result, err := svc.Analyze(context.Background(), testMarket())
	require.NoError(t, err)
	assert.Equal(t, domain.ArbitrageLong, result.Category)
}

// Scenario 6: effective-price mirror holds, no arbitrage reported.
func TestService_Analyze_NoArbitrageWhenMirrored(t *testing.T) {
	snap := &fakeSnapshotter{books: map[string]domain.OrderBook{
		"up-token":   {Bids: []domain.BookEntry{{Price: 0.49, Size: 500}}, Asks: []domain.BookEntry{{Price: 0.51, Size: 500}}},
		"down-token": {Bids: []domain.BookEntry{{Price: 0.49, Size: 500}}, Asks: []domain.BookEntry{{Price: 0.51, Size: 500}}},
	}}
	svc := New(snap)

	result, err := svc.Analyze(context.Background(), testMarket())
	require.NoError(t, err)
	assert.Equal(t, domain.ArbitrageNone, result.Category)
}

func TestService_WithThreshold_OverridesDefault(t *testing.T) {
	snap := &fakeSnapshotter{books: map[string]domain.OrderBook{
		"up-token":   {Bids: []domain.BookEntry{{Price: 0.49, Size: 500}}, Asks: []domain.BookEntry{{Price: 0.495, Size: 500}}},
		"down-token": {Bids: []domain.BookEntry{{Price: 0.49, Size: 500}}, Asks: []domain.BookEntry{{Price: 0.495, Size: 500}}},
	}}
	svc := New(snap).WithThreshold(0.5) // impossibly high bar

	result, err := svc.Analyze(context.Background(), testMarket())
	require.NoError(t, err)
	assert.Equal(t, domain.ArbitrageNone, result.Category)
}
