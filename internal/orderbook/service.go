// Package orderbook implements the Orderbook Service: snapshot
// acquisition, normalization, and mirror-aware effective-price /
// arbitrage-gap computation (spec §4.3).
package orderbook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nexto0/dip-arbiter/internal/domain"
	"github.com/nexto0/dip-arbiter/internal/ports"
)

// DefaultArbitrageThreshold is the default long/short arbitrage gate
// (§4.3 "Arbitrage detection").
const DefaultArbitrageThreshold = 0.005

// Service wraps an OrderbookSnapshotter and computes derived metrics.
type Service struct {
	books     ports.OrderbookSnapshotter
	threshold float64
}

// New builds a Service with the default arbitrage threshold.
func New(books ports.OrderbookSnapshotter) *Service {
	return &Service{books: books, threshold: DefaultArbitrageThreshold}
}

// WithThreshold overrides the arbitrage detection threshold.
func (s *Service) WithThreshold(threshold float64) *Service {
	s.threshold = threshold
	return s
}

// Snapshot fetches normalized order books for a market's two tokens.
func (s *Service) Snapshot(ctx context.Context, m domain.Market) (up, down domain.OrderBook, err error) {
	books, err := s.books.Snapshot(ctx, []string{m.TokenFor(domain.Up), m.TokenFor(domain.Down)})
	if err != nil {
		return domain.OrderBook{}, domain.OrderBook{}, fmt.Errorf("orderbook.Snapshot: %w", err)
	}
	up, okUp := books[m.TokenFor(domain.Up)]
	down, okDown := books[m.TokenFor(domain.Down)]
	if !okUp || !okDown {
		return domain.OrderBook{}, domain.OrderBook{}, fmt.Errorf("orderbook.Snapshot: missing book for market %s", m.ConditionID)
	}
	return up, down, nil
}

// Analyze computes the full derived-metrics report and arbitrage
// classification for a market's pair.
func (s *Service) Analyze(ctx context.Context, m domain.Market) (domain.ArbitrageResult, error) {
	up, down, err := s.Snapshot(ctx, m)
	if err != nil {
		return domain.ArbitrageResult{}, err
	}
	result := domain.CalculateArbitrage(up, down, s.threshold)
	if result.Category != domain.ArbitrageNone {
		slog.Debug("arbitrage opportunity", "market", m.ConditionID, "category", result.Category, "action", result.Action)
	}
	return result, nil
}
