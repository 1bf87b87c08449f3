package clob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexto0/dip-arbiter/internal/domain"
)

func TestSplitSlug_FourParts(t *testing.T) {
	parts := splitSlug("btc-updown-5m-1700000000")
	assert.Equal(t, []string{"btc", "updown", "5m", "1700000000"}, parts)
}

func TestParseSlugTag_RoundTripsKnownDuration(t *testing.T) {
	coin, dur, start, err := parseSlugTag("eth-updown-15m-1700000300")
	require.NoError(t, err)
	assert.Equal(t, "eth", coin)
	assert.Equal(t, domain.Duration15m, dur)
	assert.EqualValues(t, 1700000300, start)
}

func TestParseSlugTag_RejectsMalformedSlug(t *testing.T) {
	_, _, _, err := parseSlugTag("not-a-valid-slug")
	assert.Error(t, err)
}

func TestParseSlugTag_RejectsUnknownDurationTag(t *testing.T) {
	_, _, _, err := parseSlugTag("btc-updown-1h-1700000000")
	assert.Error(t, err)
}
