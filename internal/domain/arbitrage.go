package domain

import "math"

// ArbitrageCategory classifies the Orderbook Service's verdict for one pair.
type ArbitrageCategory int

const (
	ArbitrageNone ArbitrageCategory = iota
	ArbitrageLong                   // buy both sides, merge to 1
	ArbitrageShort                  // split 1 unit into the pair, sell both
)

func (c ArbitrageCategory) String() string {
	switch c {
	case ArbitrageLong:
		return "LONG"
	case ArbitrageShort:
		return "SHORT"
	default:
		return "NONE"
	}
}

// EffectivePrices are the mirror-aware best costs/revenues to trade one
// side, computed across both order books via bid(X) ≡ 1 − ask(¬X).
type EffectivePrices struct {
	BuyYes  float64 // min(yesBestAsk, 1 − noBestBid)
	BuyNo   float64 // min(noBestAsk, 1 − yesBestBid)
	SellYes float64 // max(yesBestBid, 1 − noBestAsk)
	SellNo  float64 // max(noBestBid, 1 − yesBestAsk)
}

// ArbitrageResult is the Orderbook Service's derived-metrics report for one
// market pair (§4.3).
type ArbitrageResult struct {
	YesBestBid, YesBestAsk float64
	NoBestBid, NoBestAsk   float64

	AskSum float64 // yesBestAsk + noBestAsk
	BidSum float64 // yesBestBid + noBestBid

	Effective EffectivePrices

	LongArbProfit  float64 // 1 − (effectiveBuyYes + effectiveBuyNo)
	ShortArbProfit float64 // (effectiveSellYes + effectiveSellNo) − 1

	TotalBidDepth, TotalAskDepth float64
	ImbalanceRatio               float64 // totalBidDepth / (totalAskDepth + ε)

	MaxFillableUSDC float64 // indicative depth available at the touch on both sides

	Category ArbitrageCategory
	Action   string
}

const imbalanceEpsilon = 1e-9

// VolumeWeightedPrice walks asks from the touch and returns the size
// weighted average price needed to fill up to maxUSDC of notional.
func VolumeWeightedPrice(asks []BookEntry, maxUSDC float64) float64 {
	if len(asks) == 0 || maxUSDC <= 0 {
		return 0
	}
	var totalShares, totalCost, remaining = 0.0, 0.0, maxUSDC

	for _, ask := range asks {
		levelCost := ask.Size * ask.Price
		if levelCost <= remaining {
			totalShares += ask.Size
			totalCost += levelCost
			remaining -= levelCost
		} else {
			shares := remaining / ask.Price
			totalShares += shares
			totalCost += remaining
			break
		}
	}

	if totalShares == 0 {
		return 0
	}
	return totalCost / totalShares
}

// CalculateArbitrage computes the full derived-metrics report for one
// market's YES/NO (UP/DOWN) order book pair and classifies it against
// threshold (default 0.005, §4.3).
func CalculateArbitrage(yesBook, noBook OrderBook, threshold float64) ArbitrageResult {
	r := ArbitrageResult{
		YesBestBid: yesBook.BestBid(),
		YesBestAsk: yesBook.BestAsk(),
		NoBestBid:  noBook.BestBid(),
		NoBestAsk:  noBook.BestAsk(),
	}

	if r.YesBestAsk == 0 || r.NoBestAsk == 0 {
		return r
	}

	r.AskSum = r.YesBestAsk + r.NoBestAsk
	r.BidSum = r.YesBestBid + r.NoBestBid

	r.Effective = EffectivePrices{
		BuyYes:  math.Min(r.YesBestAsk, 1-r.NoBestBid),
		BuyNo:   math.Min(r.NoBestAsk, 1-r.YesBestBid),
		SellYes: math.Max(r.YesBestBid, 1-r.NoBestAsk),
		SellNo:  math.Max(r.NoBestBid, 1-r.YesBestAsk),
	}

	r.LongArbProfit = 1 - (r.Effective.BuyYes + r.Effective.BuyNo)
	r.ShortArbProfit = (r.Effective.SellYes + r.Effective.SellNo) - 1

	r.TotalBidDepth = yesBook.TotalBidDepth() + noBook.TotalBidDepth()
	r.TotalAskDepth = yesBook.TotalAskDepth() + noBook.TotalAskDepth()
	r.ImbalanceRatio = r.TotalBidDepth / (r.TotalAskDepth + imbalanceEpsilon)

	r.MaxFillableUSDC = math.Min(
		VolumeWeightedPrice(yesBook.Asks, 500)*yesSizeAt500(yesBook),
		VolumeWeightedPrice(noBook.Asks, 500)*yesSizeAt500(noBook),
	)

	r.Category, r.Action = classify(r, threshold)
	return r
}

// yesSizeAt500 approximates the share quantity reachable within $500 of
// notional at the touch; used only to report an indicative fillable size.
func yesSizeAt500(book OrderBook) float64 {
	if len(book.Asks) == 0 || book.Asks[0].Price == 0 {
		return 0
	}
	return math.Min(500/book.Asks[0].Price, book.Asks[0].Size)
}

func classify(r ArbitrageResult, threshold float64) (ArbitrageCategory, string) {
	switch {
	case r.LongArbProfit > threshold:
		return ArbitrageLong, longAction(r)
	case r.ShortArbProfit > threshold:
		return ArbitrageShort, shortAction(r)
	default:
		return ArbitrageNone, ""
	}
}

func longAction(r ArbitrageResult) string {
	return "buy YES@" + formatPrice(r.Effective.BuyYes) + " + buy NO@" + formatPrice(r.Effective.BuyNo) + ", merge to 1"
}

func shortAction(r ArbitrageResult) string {
	return "sell YES@" + formatPrice(r.Effective.SellYes) + " + sell NO@" + formatPrice(r.Effective.SellNo) + ", split 1 into pair"
}

func formatPrice(p float64) string {
	// 4 decimal places is enough resolution for a (0,1)-bounded price and
	// avoids pulling in strconv.FormatFloat's rounding-mode surface here.
	scaled := math.Round(p * 10000)
	whole := int64(scaled) / 10000
	frac := int64(scaled) % 10000
	if frac < 0 {
		frac = -frac
	}
	return itoa(whole) + "." + padZero(frac)
}

func padZero(v int64) string {
	s := itoa(v)
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}
