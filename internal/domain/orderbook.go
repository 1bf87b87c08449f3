package domain

import (
	"strconv"
	"time"
)

// OrderBook is a normalized per-token snapshot: bids sorted descending,
// asks sorted ascending.
type OrderBook struct {
	TokenID   string
	Bids      []BookEntry
	Asks      []BookEntry
	Timestamp time.Time
}

// BookEntry is one price level.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid returns the highest bid price, or 0 if the book is empty.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 0 if the book is empty.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint is the mean of best bid and best ask.
func (ob OrderBook) Midpoint() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread is ask - bid.
func (ob OrderBook) Spread() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// TotalBidDepth sums price*size across all bid levels.
func (ob OrderBook) TotalBidDepth() float64 {
	var total float64
	for _, b := range ob.Bids {
		total += b.Price * b.Size
	}
	return total
}

// TotalAskDepth sums price*size across all ask levels.
func (ob OrderBook) TotalAskDepth() float64 {
	var total float64
	for _, a := range ob.Asks {
		total += a.Price * a.Size
	}
	return total
}

// ParsePrice converts a string-or-number price field to float64. Ingress
// prices may arrive as strings (§6); invalid input parses to 0, which
// callers treat as "no level".
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// SortBids sorts entries descending by price (best bid first).
func SortBids(entries []BookEntry) {
	insertionSort(entries, func(a, b BookEntry) bool { return a.Price > b.Price })
}

// SortAsks sorts entries ascending by price (best ask first).
func SortAsks(entries []BookEntry) {
	insertionSort(entries, func(a, b BookEntry) bool { return a.Price < b.Price })
}

// insertionSort is adequate here: book depth per side is small (tens of
// levels), and avoids pulling in sort.Slice's reflection-based closure
// machinery on the hot ingestion path.
func insertionSort(entries []BookEntry, less func(a, b BookEntry) bool) {
	for i := 1; i < len(entries); i++ {
		key := entries[i]
		j := i - 1
		for j >= 0 && less(key, entries[j]) {
			entries[j+1] = entries[j]
			j--
		}
		entries[j+1] = key
	}
}
