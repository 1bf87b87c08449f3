package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexto0/dip-arbiter/internal/domain"
)

func testConfig() domain.EngineConfig {
	cfg := domain.DefaultEngineConfig()
	cfg.SlidingWindow = 3 * time.Second
	cfg.DipThreshold = 0.15
	cfg.SurgeThreshold = 0.15
	cfg.MaxSlippage = 0.02
	cfg.SumTarget = 0.95
	return cfg
}

// Scenario 1: pure dip with immediate hedge. UP drops 20% inside the
// window, detector emits a Leg1 dip signal on the UP side. The reference
// entry must be at least one sliding window old relative to "now" for
// ReferenceAt to pick it up.
func TestDetectDip_PureDip(t *testing.T) {
	cfg := testConfig()
	start := time.Now()
	round := domain.NewRound("r1", start, start.Add(5*time.Minute), 100, 0.50, 0.48)

	ring := domain.NewPriceHistoryRing()
	ring.Append(domain.HistoryEntry{Time: start, UpAsk: 0.50, DnAsk: 0.48})

	now := start.Add(4 * time.Second) // > cfg.SlidingWindow (3s) after the reference entry
	sig := detectDip(cfg, round, ring, now, 0.40, 0.50)

	require.NotNil(t, sig)
	assert.Equal(t, domain.Leg1, sig.Leg)
	assert.Equal(t, domain.SourceDip, sig.Source)
	assert.Equal(t, domain.Up, sig.Side)
	assert.InDelta(t, 0.20, sig.DropPercent, 0.001)
	assert.InDelta(t, 0.40*1.02, sig.TargetPrice, 0.0001)
}

// Scenario 2: a slow trend dip, most of the decline is older than the
// sliding window, so the windowed drop measured against the nearest
// in-window reference stays below threshold and the detector stays
// quiet even though the price fell a lot overall.
func TestDetectDip_TrendRejected(t *testing.T) {
	cfg := testConfig()
	start := time.Now()
	round := domain.NewRound("r2", start, start.Add(60*time.Minute), 100, 0.50, 0.48)

	ring := domain.NewPriceHistoryRing()
	ring.Append(domain.HistoryEntry{Time: start, UpAsk: 0.50, DnAsk: 0.48})
	ring.Append(domain.HistoryEntry{Time: start.Add(55 * time.Second), UpAsk: 0.405, DnAsk: 0.48})

	now := start.Add(60 * time.Second) // refTime = now-3s = 57s, picks the 55s entry
	sig := detectDip(cfg, round, ring, now, 0.40, 0.48)

	assert.Nil(t, sig, "a decline spread mostly before the sliding window should not trip the windowed threshold")
}

func TestDetectDip_BelowThresholdIgnored(t *testing.T) {
	cfg := testConfig()
	start := time.Now()
	round := domain.NewRound("r3", start, start.Add(5*time.Minute), 100, 0.50, 0.48)

	ring := domain.NewPriceHistoryRing()
	ring.Append(domain.HistoryEntry{Time: start, UpAsk: 0.50, DnAsk: 0.48})

	now := start.Add(4 * time.Second)
	// 5% drop, below the 15% threshold.
	sig := detectDip(cfg, round, ring, now, 0.475, 0.48)
	assert.Nil(t, sig)
}

func TestDetectSurge_BuysOppositeSide(t *testing.T) {
	cfg := testConfig()
	start := time.Now()
	round := domain.NewRound("r4", start, start.Add(5*time.Minute), 100, 0.50, 0.48)

	ring := domain.NewPriceHistoryRing()
	ring.Append(domain.HistoryEntry{Time: start, UpAsk: 0.50, DnAsk: 0.48})

	now := start.Add(4 * time.Second)
	// UP surges from 0.50 to 0.70 (40% rise) -> detector buys DOWN.
	sig := detectSurge(cfg, round, ring, now, 0.70, 0.30)

	require.NotNil(t, sig)
	assert.Equal(t, domain.SourceSurge, sig.Source)
	assert.Equal(t, domain.Down, sig.Side)
}

func TestDetectMispricing_OracleAheadOfBook(t *testing.T) {
	cfg := testConfig()
	start := time.Now()
	// Underlying up 2% from price-to-beat implies pUp ~ 0.5 + 10*0.02 = 0.70.
	round := domain.NewRound("r5", start, start.Add(5*time.Minute), 100, 0.55, 0.45)

	sig := detectMispricing(cfg, round, start, 0.50, 0.50, 102)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SourceMispricing, sig.Source)
	assert.Equal(t, domain.Up, sig.Side)
}

func TestDetectMispricing_NoEdgeWhenBookAlreadyImpliesIt(t *testing.T) {
	cfg := testConfig()
	start := time.Now()
	round := domain.NewRound("r6", start, start.Add(5*time.Minute), 100, 0.55, 0.45)

	// Book already prices UP at 0.70, matching the implied oracle edge.
	sig := detectMispricing(cfg, round, start, 0.70, 0.30, 102)
	assert.Nil(t, sig)
}

// Scenario 3: Leg2 signal only fires while total cost stays under the
// configured sum target; a widened hedge ask above target is rejected.
func TestDetectLeg2_RejectsWhenOverSumTarget(t *testing.T) {
	cfg := testConfig()
	start := time.Now()
	round := domain.NewRound("r7", start, start.Add(5*time.Minute), 100, 0.50, 0.48)
	round.FillLeg1(domain.Fill{Side: domain.Up, Price: 0.41, Timestamp: start})

	// Leg1 cost 0.41, hedge ask 0.60 -> total 1.01, over the 0.95 target.
	sig := detectLeg2(cfg, round, start.Add(1*time.Second), 0.40, 0.60)
	assert.Nil(t, sig)
}

func TestDetectLeg2_AcceptsWithinSumTarget(t *testing.T) {
	cfg := testConfig()
	start := time.Now()
	round := domain.NewRound("r8", start, start.Add(5*time.Minute), 100, 0.50, 0.48)
	round.FillLeg1(domain.Fill{Side: domain.Up, Price: 0.41, Timestamp: start})

	sig := detectLeg2(cfg, round, start.Add(1*time.Second), 0.40, 0.50)
	require.NotNil(t, sig)
	assert.Equal(t, domain.Leg2, sig.Leg)
	assert.Equal(t, domain.Down, sig.Side)
	assert.InDelta(t, 0.91, sig.EstimatedTotalCost, 0.0001)
}

func TestDetectLeg1_SkipsAfterWindowElapsed(t *testing.T) {
	cfg := testConfig()
	cfg.WindowMinutes = 2
	start := time.Now()
	round := domain.NewRound("r9", start, start.Add(5*time.Minute), 100, 0.50, 0.48)
	ring := domain.NewPriceHistoryRing()

	sig := detectLeg1(cfg, round, ring, start.Add(3*time.Minute), 0.30, 0.48, 0)
	assert.Nil(t, sig)
}

func TestDetectLeg1_LatchPreventsSecondEmission(t *testing.T) {
	cfg := testConfig()
	start := time.Now()
	round := domain.NewRound("r10", start, start.Add(5*time.Minute), 100, 0.50, 0.48)
	round.MarkLeg1Emitted()

	ring := domain.NewPriceHistoryRing()
	ring.Append(domain.HistoryEntry{Time: start, UpAsk: 0.50, DnAsk: 0.48})

	sig := detectLeg1(cfg, round, ring, start.Add(1*time.Second), 0.40, 0.48, 0)
	assert.Nil(t, sig)
}

func TestProfitRate(t *testing.T) {
	assert.Equal(t, 0.0, profitRate(0))
	assert.InDelta(t, 0.25, profitRate(0.80), 0.001)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.05, clamp(-1, 0.05, 0.95))
	assert.Equal(t, 0.95, clamp(2, 0.05, 0.95))
	assert.Equal(t, 0.5, clamp(0.5, 0.05, 0.95))
}
