// Package ports declares the interfaces the Arbitrage Engine and its
// collaborators (Auto-Rotation Supervisor, Orderbook Service, Market
// Discovery Service) depend on. Concrete implementations live in
// internal/adapters/*.
package ports

import (
	"context"
	"time"

	"github.com/nexto0/dip-arbiter/internal/domain"
)

// MarketDiscovery enumerates upcoming short-duration markets (§4.4).
type MarketDiscovery interface {
	ScanCryptoShortTermMarkets(ctx context.Context, q domain.DiscoveryQuery) ([]domain.Market, error)
}

// SlugResolver resolves one candidate slug to its Market (including
// outcome token identifiers), or reports it does not exist. Implemented
// by the CLOB adapter; consumed by the Market Discovery Service.
type SlugResolver interface {
	ResolveSlug(ctx context.Context, slug string) (domain.Market, bool, error)
}

// OrderbookSnapshotter fetches normalized order book snapshots for a set
// of token identifiers (§4.3).
type OrderbookSnapshotter interface {
	Snapshot(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error)
}

// Subscription is a live handle returned by RealtimeTransport.
type Subscription interface {
	Unsubscribe()
}

// OrderbookHandlers are invoked by the transport on delivery.
type OrderbookHandlers struct {
	OnOrderbook func(tokenID string, book domain.OrderBook)
	OnError     func(err error)
}

// OraclePriceHandlers are invoked by the transport on delivery.
type OraclePriceHandlers struct {
	OnPrice func(symbol string, price float64, ts time.Time)
}

// RealtimeTransport multiplexes one connection into orderbook and oracle
// price streams (§4.5).
type RealtimeTransport interface {
	SubscribeMarkets(tokenIDs []string, h OrderbookHandlers) (Subscription, error)
	SubscribeOraclePrices(symbols []string, h OraclePriceHandlers) (Subscription, error)
	OnConnected(fn func())
}

// Side is the execution order's direction.
type Side int

const (
	Buy Side = iota
	Sell
)

// ExecutionResult is returned by ExecutionAdapter.MarketOrder.
type ExecutionResult struct {
	Success           bool
	OrderID           string
	TransactionHashes []string
	SharesFilled      float64
	ErrorMessage      string
}

// ExecutionAdapter places immediate-or-kill market orders (§4.6).
type ExecutionAdapter interface {
	MarketOrder(ctx context.Context, tokenID string, side Side, quoteAmount float64) (ExecutionResult, error)
}

// SettlementAdapter performs on-chain merge/redeem/resolution (§4.6).
type SettlementAdapter interface {
	Merge(ctx context.Context, conditionID string, shares float64) (domain.MergeOutcome, error)
	RedeemByTokenIds(ctx context.Context, conditionID, yesTokenID, noTokenID string) (domain.RedeemOutcome, error)
	GetMarketResolution(ctx context.Context, conditionID string) (domain.Resolution, error)
}

// RedemptionStore persists the Pending Redemption queue so a process
// restart does not lose an in-flight redemption (§4.2, §3).
type RedemptionStore interface {
	Enqueue(ctx context.Context, p domain.PendingRedemption) error
	Update(ctx context.Context, p domain.PendingRedemption) error
	Remove(ctx context.Context, conditionID string) error
	List(ctx context.Context) ([]domain.PendingRedemption, error)
	Close() error
}

// Notifier reports engine/supervisor events to an operator-facing sink.
type Notifier interface {
	Notify(ctx context.Context, ev domain.Event) error
}
