package clob

// discovery.go — resolves one candidate slug to a domain.Market via the
// Gamma markets API, implementing ports.SlugResolver for the Market
// Discovery Service.

import (
	"context"
	"fmt"
	"time"

	"github.com/nexto0/dip-arbiter/internal/domain"
)

const gammaMarketsPath = "/markets"

// GammaClient resolves market metadata by slug.
type GammaClient struct {
	client *Client
	base   string
}

// NewGammaClient builds a GammaClient against the given Gamma API base.
func NewGammaClient(client *Client, gammaBase string) *GammaClient {
	return &GammaClient{client: client, base: gammaBase}
}

// ResolveSlug implements ports.SlugResolver: a slug with no matching
// market (not yet listed, or never will be) resolves to ok=false rather
// than an error, so callers treat it as "doesn't exist yet".
func (g *GammaClient) ResolveSlug(ctx context.Context, slug string) (domain.Market, bool, error) {
	url := fmt.Sprintf("%s%s?slug=%s", g.base, gammaMarketsPath, slug)

	var resp []gammaSlugMarket
	if err := g.client.get(ctx, g.client.marketsLimiter, url, &resp); err != nil {
		return domain.Market{}, false, fmt.Errorf("resolve slug %s: %w", slug, err)
	}
	if len(resp) == 0 {
		return domain.Market{}, false, nil
	}

	gm := resp[0]
	tokenIDs := unpackGammaArray(gm.TokenIDsRaw)
	outcomes := unpackGammaArray(gm.OutcomesRaw)
	if len(tokenIDs) != 2 || len(outcomes) != 2 {
		return domain.Market{}, false, nil
	}

	endTime, err := time.Parse(time.RFC3339, gm.EndDateISO)
	if err != nil {
		return domain.Market{}, false, fmt.Errorf("resolve slug %s: parse endDateIso: %w", slug, err)
	}

	coin, dur, _, parseErr := parseSlugTag(slug)
	if parseErr != nil {
		return domain.Market{}, false, nil
	}

	m := domain.Market{
		ConditionID: gm.ConditionID,
		Slug:        gm.Slug,
		Underlying:  coin,
		Duration:    dur,
		EndTime:     endTime,
		Active:      gm.Active,
		Closed:      gm.Closed,
	}
	for i := 0; i < 2; i++ {
		outcome, ok := domain.ParseOutcome(outcomes[i])
		if !ok {
			return domain.Market{}, false, nil
		}
		m.Tokens[outcome] = domain.Token{TokenID: tokenIDs[i], Outcome: outcome}
	}

	return m, true, nil
}

// parseSlugTag extracts the underlying coin and duration back out of a
// slug of the form "{coin}-updown-{5m|15m}-{unixStartSeconds}".
func parseSlugTag(slug string) (string, domain.Duration, int64, error) {
	parts := splitSlug(slug)
	if len(parts) != 4 || parts[1] != "updown" {
		return "", 0, 0, fmt.Errorf("malformed slug: %s", slug)
	}
	coin := parts[0]
	tag := parts[2]

	var start int64
	if _, err := fmt.Sscanf(parts[3], "%d", &start); err != nil {
		return "", 0, 0, fmt.Errorf("malformed slug timestamp: %s", slug)
	}

	dur, ok := domain.ParseDuration(tag)
	if !ok {
		return "", 0, 0, fmt.Errorf("unknown duration tag: %s", tag)
	}
	return coin, dur, start, nil
}

func splitSlug(slug string) []string {
	var parts []string
	cur := ""
	for _, r := range slug {
		if r == '-' {
			parts = append(parts, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	parts = append(parts, cur)
	return parts
}
