// Package discovery implements the Market Discovery Service: slug
// enumeration, filtering, and endTime sort (spec §4.4).
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nexto0/dip-arbiter/internal/domain"
	"github.com/nexto0/dip-arbiter/internal/ports"
)

const (
	batchSize     = 10 // slugs fetched in parallel per batch (§4.4 step 2)
	maxRetries    = 3
	retryBackoff  = 1 * time.Second
)

// Service enumerates candidate slugs for a query and resolves them via a
// SlugResolver, the way the teacher's clob.go batches/retries HTTP calls.
type Service struct {
	resolver ports.SlugResolver
}

// New builds a discovery Service.
func New(resolver ports.SlugResolver) *Service {
	return &Service{resolver: resolver}
}

// ScanCryptoShortTermMarkets implements ports.MarketDiscovery.
func (s *Service) ScanCryptoShortTermMarkets(ctx context.Context, q domain.DiscoveryQuery) ([]domain.Market, error) {
	now := time.Now()
	slugs := candidateSlugs(q, now)

	markets, err := s.resolveAll(ctx, slugs)
	if err != nil {
		return nil, fmt.Errorf("discovery.ScanCryptoShortTermMarkets: %w", err)
	}

	filtered := filterMarkets(markets, q, now)
	sortMarkets(filtered, q.SortBy)

	if q.Limit > 0 && len(filtered) > q.Limit {
		filtered = filtered[:q.Limit]
	}
	return filtered, nil
}

// candidateSlugs computes the Cartesian product of coins × slot starts for
// each requested duration (§4.4 step 1).
func candidateSlugs(q domain.DiscoveryQuery, now time.Time) []string {
	var slugs []string
	for _, d := range q.Durations {
		interval := d.IntervalSeconds()
		minEnd := now.Add(time.Duration(q.MinMinutesUntilEnd * float64(time.Minute)))
		maxEnd := now.Add(time.Duration(q.MaxMinutesUntilEnd * float64(time.Minute)))

		start := floorTo(minEnd.Unix()-interval, interval)
		end := ceilTo(maxEnd.Unix(), interval)

		for slot := start; slot <= end; slot += interval {
			for _, coin := range q.Coins {
				slugs = append(slugs, domain.Slug(coin, d, slot))
			}
		}
	}
	return slugs
}

func floorTo(v, interval int64) int64 {
	if interval <= 0 {
		return v
	}
	return (v / interval) * interval
}

func ceilTo(v, interval int64) int64 {
	if interval <= 0 {
		return v
	}
	if v%interval == 0 {
		return v
	}
	return ((v / interval) + 1) * interval
}

// resolveAll fetches slugs in parallel batches of batchSize, making up to
// maxRetries attempts per market with a fixed delay after each failure
// (§4.4 step 2).
func (s *Service) resolveAll(ctx context.Context, slugs []string) ([]domain.Market, error) {
	type result struct {
		market domain.Market
		ok     bool
	}

	results := make([]result, len(slugs))
	batches := splitBatches(slugs, batchSize)

	var wg sync.WaitGroup
	for _, batch := range batches {
		batch := batch
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, idx := range batch {
				m, ok, err := s.resolveWithRetry(ctx, slugs[idx])
				if err != nil {
					slog.Debug("slug resolution failed", "slug", slugs[idx], "err", err)
					continue
				}
				results[idx] = result{market: m, ok: ok}
			}
		}()
	}
	wg.Wait()

	markets := make([]domain.Market, 0, len(slugs))
	for _, r := range results {
		if r.ok {
			markets = append(markets, r.market)
		}
	}
	return markets, nil
}

func (s *Service) resolveWithRetry(ctx context.Context, slug string) (domain.Market, bool, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		m, ok, err := s.resolver.ResolveSlug(ctx, slug)
		if err == nil {
			return m, ok, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return domain.Market{}, false, ctx.Err()
		case <-time.After(retryBackoff):
		}
	}
	return domain.Market{}, false, lastErr
}

// splitBatches groups slug indices into batches of size batchSize.
func splitBatches(slugs []string, size int) [][]int {
	batches := make([][]int, 0, (len(slugs)+size-1)/size)
	for i := 0; i < len(slugs); i += size {
		end := i + size
		if end > len(slugs) {
			end = len(slugs)
		}
		idx := make([]int, 0, end-i)
		for j := i; j < end; j++ {
			idx = append(idx, j)
		}
		batches = append(batches, idx)
	}
	return batches
}

// filterMarkets drops nulls (handled upstream), inactive/closed markets,
// and those outside the requested end-time window, and applies the
// rotation-time exclusion set (§4.2 "excluding the current market").
func filterMarkets(markets []domain.Market, q domain.DiscoveryQuery, now time.Time) []domain.Market {
	minEnd := now.Add(time.Duration(q.MinMinutesUntilEnd * float64(time.Minute)))
	maxEnd := now.Add(time.Duration(q.MaxMinutesUntilEnd * float64(time.Minute)))

	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if !m.Active || m.Closed {
			continue
		}
		if m.EndTime.Before(minEnd) || m.EndTime.After(maxEnd) {
			continue
		}
		if q.Exclude != nil && q.Exclude[m.ConditionID] {
			continue
		}
		out = append(out, m)
	}
	return out
}

func sortMarkets(markets []domain.Market, by domain.SortBy) {
	switch by {
	case domain.SortByVolume, domain.SortByLiquidity:
		// Volume/liquidity require metadata the slug-resolution path does
		// not carry (out of scope per spec.md §1: "read-only wrappers over
		// external APIs"); fall back to soonest-first, same as the default.
		fallthrough
	default:
		sort.Slice(markets, func(i, j int) bool { return markets[i].EndTime.Before(markets[j].EndTime) })
	}
}
