package clob

// execution.go — Execution Adapter (spec §4.6): places immediate-or-kill
// market orders against the CLOB. Unlike a resting GTC maker order, the
// order is signed at an aggressive marketable price so it fills
// immediately or is killed by the matching engine.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	gomodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/nexto0/dip-arbiter/internal/ports"
)

// aggressiveBuyPrice/aggressiveSellPrice bound the signed limit price far
// enough past the touch that the order behaves like a market order while
// still satisfying the CLOB's [0,1] price domain.
const (
	aggressiveBuyPrice  = 0.99
	aggressiveSellPrice = 0.01
)

type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg          string   `json:"errorMsg"`
	OrderID           string   `json:"orderID"`
	TakingAmount      string   `json:"takingAmount"`
	MakingAmount      string   `json:"makingAmount"`
	Status            string   `json:"status"`
	Success           bool     `json:"success"`
	TransactionHashes []string `json:"transactionsHashes"`
}

type clobNegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

// ExecutionClient implements ports.ExecutionAdapter against the CLOB's
// order endpoint.
type ExecutionClient struct {
	auth *AuthClient
}

// NewExecutionClient builds an ExecutionClient bound to an authenticated
// signing client.
func NewExecutionClient(auth *AuthClient) *ExecutionClient {
	return &ExecutionClient{auth: auth}
}

// MarketOrder implements ports.ExecutionAdapter. quoteAmount is the
// notional size in quote-asset units to fill at the aggressive price.
func (ec *ExecutionClient) MarketOrder(ctx context.Context, tokenID string, side ports.Side, quoteAmount float64) (ports.ExecutionResult, error) {
	if err := ec.auth.EnsureCreds(ctx); err != nil {
		return ports.ExecutionResult{}, fmt.Errorf("market order: creds: %w", err)
	}
	if quoteAmount <= 0 {
		return ports.ExecutionResult{}, fmt.Errorf("market order: quoteAmount must be positive")
	}

	negRisk, err := ec.isNegRisk(ctx, tokenID)
	if err != nil {
		return ports.ExecutionResult{}, fmt.Errorf("market order: neg-risk lookup: %w", err)
	}

	var (
		orderSide = gomodel.BUY
		price     = aggressiveBuyPrice
		sideStr   = "BUY"
	)
	if side == ports.Sell {
		orderSide = gomodel.SELL
		price = aggressiveSellPrice
		sideStr = "SELL"
	}
	size := quoteAmount / price

	signed, err := ec.auth.buildSignedOrder(tokenID, price, size, orderSide, negRisk)
	if err != nil {
		return ports.ExecutionResult{}, fmt.Errorf("market order: sign: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       tokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          sideStr,
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner: ec.auth.creds.APIKey,
		// FOK: fill immediately in full or the CLOB kills it, matching the
		// dip-entry/hedge legs' need for an immediate fill-or-abandon result.
		OrderType: "FOK",
	}

	var resp clobOrderResponse
	if err := ec.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return ports.ExecutionResult{}, fmt.Errorf("market order: post: %w", err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return ports.ExecutionResult{Success: false, OrderID: resp.OrderID, ErrorMessage: resp.ErrorMsg}, nil
	}

	filled := parseUSDC(resp.MakingAmount)
	if side == ports.Buy {
		filled = parseUSDC(resp.TakingAmount)
	}

	return ports.ExecutionResult{
		Success:           true,
		OrderID:           resp.OrderID,
		TransactionHashes: resp.TransactionHashes,
		SharesFilled:      filled,
	}, nil
}

func (ec *ExecutionClient) isNegRisk(ctx context.Context, tokenID string) (bool, error) {
	url := ec.auth.base + "/neg-risk?token_id=" + tokenID
	var resp clobNegRiskResponse
	if err := ec.auth.get(ctx, ec.auth.generalLimiter, url, &resp); err != nil {
		return false, err
	}
	return resp.NegRisk, nil
}

// parseUSDC converts a micro-USDC integer string response into float USDC.
func parseUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	var micros int64
	if _, err := fmt.Sscanf(s, "%d", &micros); err != nil {
		return 0
	}
	return float64(micros) / 1_000_000
}
