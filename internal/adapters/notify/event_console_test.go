package notify

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexto0/dip-arbiter/internal/domain"
)

func TestEventConsole_NotifyPrintsStartedLineWithMarketLabel(t *testing.T) {
	var buf bytes.Buffer
	c := NewEventConsoleWriter(&buf, false)
	m := domain.Market{ConditionID: "cond-1", Slug: "btc-updown-5m-1700000000"}

	require.NoError(t, c.Notify(context.Background(), domain.Event{Kind: domain.EventStarted, Time: time.Now(), Market: &m}))

	assert.Contains(t, buf.String(), "engine started on btc-updown-5m-1700000000")
}

func TestEventConsole_NotifyFallsBackToConditionIDWithoutSlug(t *testing.T) {
	var buf bytes.Buffer
	c := NewEventConsoleWriter(&buf, false)
	m := domain.Market{ConditionID: "cond-2"}

	require.NoError(t, c.Notify(context.Background(), domain.Event{Kind: domain.EventStarted, Time: time.Now(), Market: &m}))

	assert.Contains(t, buf.String(), "engine started on cond-2")
}

func TestEventConsole_NotifyRoundCompleteIncludesProfit(t *testing.T) {
	var buf bytes.Buffer
	c := NewEventConsoleWriter(&buf, false)
	round := &domain.Round{ID: "round-1", Profit: 1.2345}

	require.NoError(t, c.Notify(context.Background(), domain.Event{
		Kind: domain.EventRoundComplete, Time: time.Now(), Round: round, RoundStatus: domain.RoundCompleted,
	}))

	out := buf.String()
	assert.Contains(t, out, "round round-1 complete")
	assert.Contains(t, out, "1.2345")
}

func TestEventConsole_RecentRingBufferCapsAtMaxRecent(t *testing.T) {
	var buf bytes.Buffer
	c := NewEventConsoleWriter(&buf, false)

	for i := 0; i < 25; i++ {
		round := &domain.Round{ID: "r"}
		require.NoError(t, c.Notify(context.Background(), domain.Event{
			Kind: domain.EventRoundComplete, Time: time.Now(), Round: round,
		}))
	}

	assert.Len(t, c.recent, c.maxRecent)
}

func TestEventConsole_TableRendersOnRoundCompleteWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	c := NewEventConsoleWriter(&buf, true)
	round := &domain.Round{ID: "round-2", Profit: 0.5}

	require.NoError(t, c.Notify(context.Background(), domain.Event{
		Kind: domain.EventRoundComplete, Time: time.Now(), Round: round, RoundStatus: domain.RoundCompleted,
	}))

	assert.Contains(t, buf.String(), "round-2")
}
