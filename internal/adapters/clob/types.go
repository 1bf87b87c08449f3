package clob

// types.go — wire DTOs for the CLOB and Gamma HTTP APIs. Conversion to
// domain entities happens in discovery.go and orderbook.go.

import "encoding/json"

// --- CLOB /books ---

type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- Gamma /markets?slug= ---

// gammaSlugMarket is one element of the Gamma markets-by-slug response.
// clobTokenIds and outcomes are themselves JSON-encoded arrays embedded
// as strings, a Gamma API quirk; parsed in unpackGammaArray.
type gammaSlugMarket struct {
	ConditionID  string      `json:"conditionId"`
	Slug         string      `json:"slug"`
	EndDateISO   string      `json:"endDateIso"`
	Active       bool        `json:"active"`
	Closed       bool        `json:"closed"`
	TokenIDsRaw  string      `json:"clobTokenIds"`
	OutcomesRaw  string      `json:"outcomes"`
}

// unpackGammaArray parses Gamma's doubly-encoded JSON array string, e.g.
// `"[\"123\",\"456\"]"`.
func unpackGammaArray(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
