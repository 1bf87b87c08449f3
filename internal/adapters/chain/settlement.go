// Package chain implements the Settlement Adapter: on-chain CTF merge,
// redeem, and resolution polling (spec §4.6).
package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/nexto0/dip-arbiter/internal/domain"
)

const (
	polygonChainID = int64(137)

	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	ctfAddress   = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

	mergeGasLimit  = uint64(200_000)
	redeemGasLimit = uint64(250_000)

	gasPriceUpdateInterval = 5 * time.Minute
)

var (
	ctfABI abi.ABI
)

func init() {
	var err error
	ctfABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "mergePositions", "type": "function",
			"inputs": [
				{"name":"collateralToken","type":"address"},
				{"name":"parentCollectionId","type":"bytes32"},
				{"name":"conditionId","type":"bytes32"},
				{"name":"partition","type":"uint256[]"},
				{"name":"amount","type":"uint256"}
			],
			"outputs": []
		},
		{
			"name": "redeemPositions", "type": "function",
			"inputs": [
				{"name":"collateralToken","type":"address"},
				{"name":"parentCollectionId","type":"bytes32"},
				{"name":"conditionId","type":"bytes32"},
				{"name":"indexSets","type":"uint256[]"}
			],
			"outputs": []
		},
		{
			"name": "payoutDenominator", "type": "function",
			"inputs": [{"name":"conditionId","type":"bytes32"}],
			"outputs": [{"name":"","type":"uint256"}]
		},
		{
			"name": "payoutNumerators", "type": "function",
			"inputs": [{"name":"conditionId","type":"bytes32"},{"name":"index","type":"uint256"}],
			"outputs": [{"name":"","type":"uint256"}]
		}
	]`))
	if err != nil {
		panic("ctf abi parse: " + err.Error())
	}
}

// SettlementClient implements ports.SettlementAdapter against the CTF
// contract on Polygon.
type SettlementClient struct {
	client     *ethclient.Client
	privateKey []byte
	address    common.Address

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// NewSettlementClient connects to rpcURL. privateKeyHex is without 0x prefix.
func NewSettlementClient(rpcURL, privateKeyHex string) (*SettlementClient, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: decode private key: %w", err)
	}
	privKey, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial rpc %s: %w", rpcURL, err)
	}

	return &SettlementClient{
		client:     client,
		privateKey: pkBytes,
		address:    crypto.PubkeyToAddress(privKey.PublicKey),
	}, nil
}

// Merge implements ports.SettlementAdapter: converts matched YES+NO
// holdings back into USDC.e collateral (§4.6 "merge").
func (sc *SettlementClient) Merge(ctx context.Context, conditionID string, shares float64) (domain.MergeOutcome, error) {
	condBytes, err := hexToBytes32(conditionID)
	if err != nil {
		return domain.MergeOutcome{Err: err}, err
	}

	amount := new(big.Int).SetInt64(int64(shares * 1_000_000))
	partition := []*big.Int{big.NewInt(1), big.NewInt(2)}

	callData, err := ctfABI.Pack("mergePositions",
		common.HexToAddress(usdcEAddress), [32]byte{}, condBytes, partition, amount)
	if err != nil {
		return domain.MergeOutcome{Err: err}, fmt.Errorf("chain: pack mergePositions: %w", err)
	}

	txHash, err := sc.send(ctx, common.HexToAddress(ctfAddress), callData, mergeGasLimit)
	if err != nil {
		return domain.MergeOutcome{Err: err}, fmt.Errorf("chain: merge: %w", err)
	}
	return domain.MergeOutcome{Success: true, TxHash: txHash}, nil
}

// RedeemByTokenIds implements ports.SettlementAdapter: burns the resolved
// outcome tokens for USDC.e once the condition is resolved (§4.6 "redeem").
func (sc *SettlementClient) RedeemByTokenIds(ctx context.Context, conditionID, yesTokenID, noTokenID string) (domain.RedeemOutcome, error) {
	condBytes, err := hexToBytes32(conditionID)
	if err != nil {
		return domain.RedeemOutcome{Err: err}, err
	}

	before, balErr := sc.usdcBalance(ctx)
	if balErr != nil {
		slog.Warn("chain: could not read balance before redeem", "err", balErr)
	}

	indexSets := []*big.Int{big.NewInt(1), big.NewInt(2)}
	callData, err := ctfABI.Pack("redeemPositions",
		common.HexToAddress(usdcEAddress), [32]byte{}, condBytes, indexSets)
	if err != nil {
		return domain.RedeemOutcome{Err: err}, fmt.Errorf("chain: pack redeemPositions: %w", err)
	}

	txHash, err := sc.send(ctx, common.HexToAddress(ctfAddress), callData, redeemGasLimit)
	if err != nil {
		return domain.RedeemOutcome{Err: err}, fmt.Errorf("chain: redeem: %w", err)
	}

	var received float64
	if balErr == nil {
		if after, err := sc.usdcBalance(ctx); err == nil && after > before {
			received = after - before
		}
	}

	return domain.RedeemOutcome{Success: true, USDCReceived: received, TxHash: txHash}, nil
}

// GetMarketResolution implements ports.SettlementAdapter by reading the
// CTF's payout vector directly — resolved once payoutDenominator > 0.
func (sc *SettlementClient) GetMarketResolution(ctx context.Context, conditionID string) (domain.Resolution, error) {
	condBytes, err := hexToBytes32(conditionID)
	if err != nil {
		return domain.Resolution{}, err
	}

	denom, err := sc.payoutDenominator(ctx, condBytes)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("chain: payoutDenominator: %w", err)
	}
	if denom.Sign() == 0 {
		return domain.Resolution{IsResolved: false}, nil
	}

	upPayout, err := sc.payoutNumerator(ctx, condBytes, 0)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("chain: payoutNumerators(up): %w", err)
	}
	downPayout, err := sc.payoutNumerator(ctx, condBytes, 1)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("chain: payoutNumerators(down): %w", err)
	}

	winner := domain.Down
	if upPayout.Cmp(downPayout) > 0 {
		winner = domain.Up
	}
	return domain.Resolution{IsResolved: true, Winner: winner}, nil
}

func (sc *SettlementClient) payoutDenominator(ctx context.Context, condBytes [32]byte) (*big.Int, error) {
	callData, err := ctfABI.Pack("payoutDenominator", condBytes)
	if err != nil {
		return nil, err
	}
	ctfAddr := common.HexToAddress(ctfAddress)
	result, err := sc.client.CallContract(ctx, ethereum.CallMsg{To: &ctfAddr, Data: callData}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := ctfABI.Unpack("payoutDenominator", result)
	if err != nil || len(vals) == 0 {
		return big.NewInt(0), err
	}
	return vals[0].(*big.Int), nil
}

func (sc *SettlementClient) payoutNumerator(ctx context.Context, condBytes [32]byte, index int64) (*big.Int, error) {
	callData, err := ctfABI.Pack("payoutNumerators", condBytes, big.NewInt(index))
	if err != nil {
		return nil, err
	}
	ctfAddr := common.HexToAddress(ctfAddress)
	result, err := sc.client.CallContract(ctx, ethereum.CallMsg{To: &ctfAddr, Data: callData}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := ctfABI.Unpack("payoutNumerators", result)
	if err != nil || len(vals) == 0 {
		return big.NewInt(0), err
	}
	return vals[0].(*big.Int), nil
}

func (sc *SettlementClient) usdcBalance(ctx context.Context) (float64, error) {
	callData, err := balanceOfABI.Pack("balanceOf", sc.address)
	if err != nil {
		return 0, err
	}
	usdc := common.HexToAddress(usdcEAddress)
	result, err := sc.client.CallContract(ctx, ethereum.CallMsg{To: &usdc, Data: callData}, nil)
	if err != nil {
		return 0, err
	}
	vals, err := balanceOfABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, err
	}
	micros := vals[0].(*big.Int)
	f := new(big.Float).SetInt(micros)
	f.Quo(f, big.NewFloat(1_000_000))
	out, _ := f.Float64()
	return out, nil
}

var balanceOfABI abi.ABI

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
}

// send signs and broadcasts a transaction, waiting up to 60s for the
// receipt; an unconfirmed-but-sent tx is still reported as the tx hash so
// callers (the redemption queue) can retry resolution polling later.
func (sc *SettlementClient) send(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (string, error) {
	privKey, err := crypto.ToECDSA(sc.privateKey)
	if err != nil {
		return "", err
	}

	nonce, err := sc.client.PendingNonceAt(ctx, sc.address)
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := sc.getGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("gas price: %w", err)
	}

	gasEstimate, err := sc.client.EstimateGas(ctx, ethereum.CallMsg{
		From: sc.address, To: &to, GasPrice: gasPrice, Data: data,
	})
	if err != nil {
		gasEstimate = gasLimit
		slog.Warn("chain: gas estimate failed, using default", "err", err, "limit", gasLimit)
	}
	gasEstimate = gasEstimate * 12 / 10

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasEstimate, gasPrice, data)
	chainID := big.NewInt(polygonChainID)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), privKey)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}

	if err := sc.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}
	txHash := signed.Hash().Hex()

	receiptCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	receipt, err := sc.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		slog.Warn("chain: could not confirm receipt before timeout, tx may still land", "tx", txHash, "err", err)
		return txHash, nil
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash, fmt.Errorf("tx reverted on-chain: %s", txHash)
	}
	return txHash, nil
}

func (sc *SettlementClient) getGasPrice(ctx context.Context) (*big.Int, error) {
	sc.mu.RLock()
	cached := sc.cachedGasWei
	updatedAt := sc.gasUpdatedAt
	sc.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached, nil
	}

	price, err := sc.client.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return big.NewInt(30_000_000_000), nil
	}

	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	sc.mu.Lock()
	sc.cachedGasWei = buffered
	sc.gasUpdatedAt = time.Now()
	sc.mu.Unlock()

	return buffered, nil
}

func (sc *SettlementClient) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := sc.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue
			}
			return receipt, nil
		}
	}
}

func hexToBytes32(s string) ([32]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return [32]byte{}, fmt.Errorf("expected 64 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return arr, nil
}
