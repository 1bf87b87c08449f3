package clob

// orderbook.go — Orderbook Service's CLOB-backed Snapshotter: fetches
// order books for a batch of token identifiers via concurrent goroutines
// fanned out over POST /books, one per batchSize-sized group.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexto0/dip-arbiter/internal/domain"
)

const (
	booksPath      = "/books"
	booksBatchSize = 20
)

// BookSnapshotter implements ports.OrderbookSnapshotter against the CLOB
// REST API.
type BookSnapshotter struct {
	client *Client
}

// NewBookSnapshotter builds a BookSnapshotter.
func NewBookSnapshotter(client *Client) *BookSnapshotter {
	return &BookSnapshotter{client: client}
}

// Snapshot implements ports.OrderbookSnapshotter.
func (b *BookSnapshotter) Snapshot(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.OrderBook{}, nil
	}

	batches := splitTokenBatches(tokenIDs, booksBatchSize)

	type batchResult struct {
		books map[string]domain.OrderBook
		err   error
		idx   int
	}

	resultCh := make(chan batchResult, len(batches))
	var wg sync.WaitGroup
	for i, batch := range batches {
		i, batch := i, batch
		wg.Add(1)
		go func() {
			defer wg.Done()
			books, err := b.fetchBatch(ctx, batch)
			resultCh <- batchResult{books: books, err: err, idx: i}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	result := make(map[string]domain.OrderBook, len(tokenIDs))
	var firstErr error
	for r := range resultCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("orderbook snapshot batch %d: %w", r.idx, r.err)
			}
			continue
		}
		for k, v := range r.books {
			result[k] = v
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

func (b *BookSnapshotter) fetchBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	url := b.client.base + booksPath
	if err := b.client.post(ctx, b.client.booksLimiter, url, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}

	now := time.Now()
	out := make(map[string]domain.OrderBook, len(resp))
	for _, r := range resp {
		bids := make([]domain.BookEntry, 0, len(r.Bids))
		for _, l := range r.Bids {
			bids = append(bids, domain.BookEntry{Price: domain.ParsePrice(l.Price), Size: domain.ParsePrice(l.Size)})
		}
		asks := make([]domain.BookEntry, 0, len(r.Asks))
		for _, l := range r.Asks {
			asks = append(asks, domain.BookEntry{Price: domain.ParsePrice(l.Price), Size: domain.ParsePrice(l.Size)})
		}
		domain.SortBids(bids)
		domain.SortAsks(asks)
		out[r.AssetID] = domain.OrderBook{TokenID: r.AssetID, Bids: bids, Asks: asks, Timestamp: now}
	}
	return out, nil
}

func splitTokenBatches(tokenIDs []string, size int) [][]string {
	if size <= 0 {
		size = booksBatchSize
	}
	batches := make([][]string, 0, (len(tokenIDs)+size-1)/size)
	for i := 0; i < len(tokenIDs); i += size {
		end := i + size
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}
		batches = append(batches, tokenIDs[i:end])
	}
	return batches
}
