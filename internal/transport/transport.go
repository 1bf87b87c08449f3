// Package transport implements the Realtime Transport: a single
// WebSocket connection multiplexed into orderbook and oracle price
// streams (spec §4.5).
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/nexto0/dip-arbiter/internal/domain"
	"github.com/nexto0/dip-arbiter/internal/ports"
)

var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// envelope is the tagged-union wire frame: "type" discriminates orderbook
// vs price deliveries.
type envelope struct {
	Type      string          `json:"type"`
	TokenID   string          `json:"token_id"`
	Bids      []levelWire     `json:"bids"`
	Asks      []levelWire     `json:"asks"`
	Symbol    string          `json:"symbol"`
	Price     jsoniter.RawMessage `json:"price"`
	Timestamp jsoniter.RawMessage `json:"timestamp"`
}

type levelWire struct {
	Price jsoniter.RawMessage `json:"price"`
	Size  jsoniter.RawMessage `json:"size"`
}

const (
	dialTimeout      = 10 * time.Second
	pingInterval     = 20 * time.Second
	initialBackoff   = 500 * time.Millisecond
	maxBackoff       = 30 * time.Second
)

// Transport dials a single venue WebSocket endpoint and fans deliveries
// out to per-token/per-symbol subscribers under a shared mutex, the way
// the CLOB REST adapter shares a rate limiter across batched requests.
type Transport struct {
	url string

	mu            sync.RWMutex
	bookHandlers  map[string][]ports.OrderbookHandlers
	priceHandlers map[string][]ports.OraclePriceHandlers
	connectedFns  []func()

	conn   *websocket.Conn
	connMu sync.Mutex
}

// New builds a Transport for the given WebSocket URL (scheme ws/wss).
func New(wsURL string) *Transport {
	return &Transport{
		url:           wsURL,
		bookHandlers:  make(map[string][]ports.OrderbookHandlers),
		priceHandlers: make(map[string][]ports.OraclePriceHandlers),
	}
}

// Run dials and maintains the connection with automatic reconnect until
// ctx is cancelled.
func (t *Transport) Run(ctx context.Context) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		if err := t.connectOnce(ctx); err != nil {
			slog.Warn("transport connection dropped", "err", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff
	}
}

func (t *Transport) connectOnce(ctx context.Context) error {
	if _, err := url.Parse(t.url); err != nil {
		return fmt.Errorf("transport: invalid url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("transport: dial: %w", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	defer func() {
		conn.Close()
		t.connMu.Lock()
		t.conn = nil
		t.connMu.Unlock()
	}()

	t.resubscribeAll()
	t.fireConnected()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			t.dispatch(raw)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return fmt.Errorf("transport: read loop ended")
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("transport: ping: %w", err)
			}
		}
	}
}

func (t *Transport) dispatch(raw []byte) {
	var env envelope
	if err := fastJSON.Unmarshal(raw, &env); err != nil {
		slog.Debug("transport: malformed frame", "err", err)
		return
	}

	switch env.Type {
	case "orderbook":
		book := normalizeBook(env)
		t.mu.RLock()
		handlers := append([]ports.OrderbookHandlers(nil), t.bookHandlers[env.TokenID]...)
		t.mu.RUnlock()
		for _, h := range handlers {
			if h.OnOrderbook != nil {
				h.OnOrderbook(env.TokenID, book)
			}
		}
	case "price":
		price := parseNumber(env.Price)
		ts := time.Now()
		t.mu.RLock()
		handlers := append([]ports.OraclePriceHandlers(nil), t.priceHandlers[env.Symbol]...)
		t.mu.RUnlock()
		for _, h := range handlers {
			if h.OnPrice != nil {
				h.OnPrice(env.Symbol, price, ts)
			}
		}
	}
}

func normalizeBook(env envelope) domain.OrderBook {
	bids := make([]domain.BookEntry, 0, len(env.Bids))
	for _, l := range env.Bids {
		bids = append(bids, domain.BookEntry{Price: parseNumber(l.Price), Size: parseNumber(l.Size)})
	}
	asks := make([]domain.BookEntry, 0, len(env.Asks))
	for _, l := range env.Asks {
		asks = append(asks, domain.BookEntry{Price: parseNumber(l.Price), Size: parseNumber(l.Size)})
	}
	domain.SortBids(bids)
	domain.SortAsks(asks)
	return domain.OrderBook{TokenID: env.TokenID, Bids: bids, Asks: asks, Timestamp: time.Now()}
}

// parseNumber accepts a JSON number or a quoted numeric string (§6:
// "prices and sizes MAY arrive as strings").
func parseNumber(raw jsoniter.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := fastJSON.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := fastJSON.Unmarshal(raw, &s); err == nil {
		return domain.ParsePrice(s)
	}
	return 0
}

func (t *Transport) resubscribeAll() {
	// Subscription state lives in the handler maps themselves; nothing to
	// resend upstream beyond relying on the venue's default full-snapshot
	// push on (re)connect, per §4.5 "messages missed during a reconnect
	// need not be replayed".
}

func (t *Transport) fireConnected() {
	t.mu.RLock()
	fns := make([]func(), len(t.connectedFns))
	copy(fns, t.connectedFns)
	t.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// OnConnected registers a callback fired on every successful handshake.
func (t *Transport) OnConnected(fn func()) {
	t.mu.Lock()
	t.connectedFns = append(t.connectedFns, fn)
	t.mu.Unlock()
}

type subscription struct {
	unsub func()
}

func (s *subscription) Unsubscribe() { s.unsub() }

// SubscribeMarkets registers orderbook handlers for the given token
// identifiers.
func (t *Transport) SubscribeMarkets(tokenIDs []string, h ports.OrderbookHandlers) (ports.Subscription, error) {
	t.mu.Lock()
	for _, id := range tokenIDs {
		t.bookHandlers[id] = append(t.bookHandlers[id], h)
	}
	t.mu.Unlock()

	return &subscription{unsub: func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, id := range tokenIDs {
			t.bookHandlers[id] = removeHandler(t.bookHandlers[id], h)
		}
	}}, nil
}

// SubscribeOraclePrices registers price handlers for the given symbols.
func (t *Transport) SubscribeOraclePrices(symbols []string, h ports.OraclePriceHandlers) (ports.Subscription, error) {
	t.mu.Lock()
	for _, sym := range symbols {
		t.priceHandlers[sym] = append(t.priceHandlers[sym], h)
	}
	t.mu.Unlock()

	return &subscription{unsub: func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, sym := range symbols {
			t.priceHandlers[sym] = removePriceHandler(t.priceHandlers[sym], h)
		}
	}}, nil
}

func removeHandler(list []ports.OrderbookHandlers, target ports.OrderbookHandlers) []ports.OrderbookHandlers {
	out := list[:0]
	removed := false
	for _, h := range list {
		if !removed && sameFunc(h.OnOrderbook, target.OnOrderbook) {
			removed = true
			continue
		}
		out = append(out, h)
	}
	return out
}

func removePriceHandler(list []ports.OraclePriceHandlers, target ports.OraclePriceHandlers) []ports.OraclePriceHandlers {
	out := list[:0]
	removed := false
	for _, h := range list {
		if !removed && sameFunc(h.OnPrice, target.OnPrice) {
			removed = true
			continue
		}
		out = append(out, h)
	}
	return out
}

// sameFunc compares function values by the code pointer that fmt's %p
// prints for them. Closures or method values that share the same
// underlying code compare equal even when they capture different state.
func sameFunc[T any](a, b T) bool {
	return fmt.Sprintf("%p", a) == fmt.Sprintf("%p", b)
}
