package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/clob"
	"github.com/dmarch/polymarket-trader/internal/pricing"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// orderPlacer is the slice of the trading client the executor needs.
type orderPlacer interface {
	CreateMarketOrder(ctx context.Context, args clob.MarketOrderArgs) (*types.OrderSubmissionResponse, error)
}

// settler is the slice of the on-chain settlement client the executor needs.
type settler interface {
	Split(ctx context.Context, conditionID common.Hash, amount float64, negRisk bool) (*ethtypes.Receipt, error)
	MergeByTokenIDs(ctx context.Context, conditionID common.Hash, amount float64, negRisk bool) (*ethtypes.Receipt, error)
}

// bookReader serves execution-grade book snapshots.
type bookReader interface {
	GetFreshBook(assetID string, ttl time.Duration) (*types.BookSnapshot, bool)
}

// Recorder persists execution results.
type Recorder interface {
	StoreExecution(ctx context.Context, result *types.ExecutionResult) error
}

// ExecutorConfig holds execution tuning.
type ExecutorConfig struct {
	BookTTL          time.Duration // max snapshot age for execution
	MinTradeUSD      float64
	MaxTradeUSD      float64
	SizeSafety       float64
	Epsilon          float64
	GasTokenPriceUSD float64 // POL price used for gas accounting
	Logger           *zap.Logger
}

func (c *ExecutorConfig) applyDefaults() {
	if c.BookTTL <= 0 {
		c.BookTTL = 2 * time.Second
	}
	if c.MinTradeUSD <= 0 {
		c.MinTradeUSD = 5
	}
	if c.SizeSafety <= 0 || c.SizeSafety > 1 {
		c.SizeSafety = 0.8
	}
	if c.GasTokenPriceUSD <= 0 {
		c.GasTokenPriceUSD = 0.5
	}
}

// Executor turns opportunities into order legs plus a settlement step.
// Order legs within one attempt are strictly serial to keep signature-nonce
// discipline.
type Executor struct {
	orders   orderPlacer
	settle   settler
	books    bookReader
	balance  BalanceFunc
	recorder Recorder
	cfg      ExecutorConfig
	logger   *zap.Logger
}

// NewExecutor creates an executor. recorder may be nil.
func NewExecutor(cfg ExecutorConfig, orders orderPlacer, settle settler, books bookReader, balance BalanceFunc, recorder Recorder) *Executor {
	cfg.applyDefaults()
	return &Executor{
		orders:   orders,
		settle:   settle,
		books:    books,
		balance:  balance,
		recorder: recorder,
		cfg:      cfg,
		logger:   cfg.Logger,
	}
}

// Execute runs one arbitrage attempt end to end. A stale book aborts before
// any order is placed; the opportunity stays cached for the next fresh
// evaluation. Partially-filled attempts return a result flagged imbalanced.
func (e *Executor) Execute(ctx context.Context, opp *Opportunity) (*types.ExecutionResult, error) {
	yes, okYes := e.books.GetFreshBook(opp.Pair.YesAssetID, e.cfg.BookTTL)
	no, okNo := e.books.GetFreshBook(opp.Pair.NoAssetID, e.cfg.BookTTL)
	if !okYes || !okNo {
		ExecutionsTotal.WithLabelValues(string(opp.Type), "stale_book").Inc()
		return nil, types.E(types.KindStaleBook, "arbitrage.Execute",
			fmt.Sprintf("book snapshot older than %s for %s", e.cfg.BookTTL, opp.Pair.Slug))
	}

	sig, ok := evaluateBooks(yes, no, e.cfg.Epsilon)
	if !ok || sig.Type != opp.Type {
		ExecutionsTotal.WithLabelValues(string(opp.Type), "gone").Inc()
		return nil, types.E(types.KindValidation, "arbitrage.Execute",
			fmt.Sprintf("opportunity on %s no longer qualifies", opp.Pair.Slug))
	}

	fresh := NewOpportunity(opp.Pair, sig, yes, no)
	fresh.ID = opp.ID
	sizeOpportunity(fresh, e.fetchBalance(ctx), e.cfg.MaxTradeUSD, e.cfg.SizeSafety)

	size := fresh.RecommendedSize
	if size*fresh.costPerShare() < e.cfg.MinTradeUSD {
		ExecutionsTotal.WithLabelValues(string(opp.Type), "below_min").Inc()
		e.logger.Info("opportunity-not-executable",
			zap.String("market-slug", opp.Pair.Slug),
			zap.Float64("size", size),
			zap.Float64("min-trade-usd", e.cfg.MinTradeUSD))
		return nil, types.E(types.KindValidation, "arbitrage.Execute",
			fmt.Sprintf("recommended size %.2f below minimum trade", size))
	}

	result := &types.ExecutionResult{
		OpportunityID: fresh.ID,
		ConditionID:   fresh.Pair.ConditionID,
		MarketSlug:    fresh.Pair.Slug,
		Type:          string(fresh.Type),
		ExecutedAt:    time.Now(),
	}

	start := time.Now()
	if fresh.Type == pricing.ArbLong {
		e.executeLong(ctx, fresh, size, result)
	} else {
		e.executeShort(ctx, fresh, size, result)
	}
	ExecutionDurationSeconds.Observe(time.Since(start).Seconds())

	outcome := "ok"
	if !result.Success {
		outcome = string(result.FailureKind)
	}
	ExecutionsTotal.WithLabelValues(string(fresh.Type), outcome).Inc()
	if result.Success {
		RealizedProfitUSD.Add(result.RealizedProfit)
	}

	e.record(ctx, result)
	return result, nil
}

// executeLong buys both outcomes and merges the pairs back into collateral.
func (e *Executor) executeLong(ctx context.Context, opp *Opportunity, size float64, result *types.ExecutionResult) {
	yesFill, err := e.marketLeg(ctx, opp.Pair.YesAssetID, types.SideBuy, size*opp.Prices.BuyYes, opp.Prices.BuyYes)
	if err != nil {
		result.FailureKind, result.Error = failureKind(err), err.Error()
		return
	}
	result.YesTrade = &types.Trade{
		TokenID: opp.Pair.YesAssetID, Outcome: "Yes", Side: types.SideBuy,
		Price: opp.Prices.BuyYes, Size: yesFill.received, Timestamp: time.Now(),
	}

	noFill, err := e.marketLeg(ctx, opp.Pair.NoAssetID, types.SideBuy, size*opp.Prices.BuyNo, opp.Prices.BuyNo)
	if err != nil {
		// One leg filled, the other did not: the wallet now holds unpaired
		// tokens until the rebalancer runs.
		result.FailureKind = types.KindImbalanced
		result.Error = fmt.Sprintf("NO leg failed after YES fill: %v", err)
		e.logger.Warn("execution-imbalanced",
			zap.String("market-slug", opp.Pair.Slug),
			zap.Float64("yes-filled", yesFill.received),
			zap.Error(err))
		return
	}
	result.NoTrade = &types.Trade{
		TokenID: opp.Pair.NoAssetID, Outcome: "No", Side: types.SideBuy,
		Price: opp.Prices.BuyNo, Size: noFill.received, Timestamp: time.Now(),
	}

	pairs := min(yesFill.received, noFill.received)
	receipt, err := e.settle.MergeByTokenIDs(ctx, common.HexToHash(opp.Pair.ConditionID), pairs, opp.Pair.NegRisk)
	if err != nil {
		result.FailureKind = types.KindImbalanced
		result.Error = fmt.Sprintf("merge failed after both fills: %v", err)
		return
	}
	result.MergedPairs = pairs
	result.GasCostUSD = e.gasCostUSD(receipt)

	// Each merged pair recovers exactly $1 of collateral.
	buyCost := yesFill.spent + noFill.spent
	result.RealizedProfit = pairs - buyCost - result.GasCostUSD
	result.Success = true

	e.logger.Info("long-arb-executed",
		zap.String("market-slug", opp.Pair.Slug),
		zap.Float64("pairs-merged", pairs),
		zap.Float64("buy-cost", buyCost),
		zap.Float64("realized-profit", result.RealizedProfit))
}

// executeShort splits collateral first, then sells both outcome legs. A sell
// failure after the split leaves tokens for a later rebalance; that is
// reported, not retried.
func (e *Executor) executeShort(ctx context.Context, opp *Opportunity, size float64, result *types.ExecutionResult) {
	receipt, err := e.settle.Split(ctx, common.HexToHash(opp.Pair.ConditionID), size, opp.Pair.NegRisk)
	if err != nil {
		result.FailureKind, result.Error = failureKind(err), err.Error()
		return
	}
	result.SplitAmount = size
	result.GasCostUSD = e.gasCostUSD(receipt)

	var proceeds float64
	yesFill, err := e.marketLeg(ctx, opp.Pair.YesAssetID, types.SideSell, size, opp.Prices.SellYes)
	if err != nil {
		result.FailureKind = types.KindImbalanced
		result.Error = fmt.Sprintf("YES sell failed after split: %v", err)
		return
	}
	result.YesTrade = &types.Trade{
		TokenID: opp.Pair.YesAssetID, Outcome: "Yes", Side: types.SideSell,
		Price: opp.Prices.SellYes, Size: yesFill.spent, Timestamp: time.Now(),
	}
	proceeds += yesFill.received

	noFill, err := e.marketLeg(ctx, opp.Pair.NoAssetID, types.SideSell, size, opp.Prices.SellNo)
	if err != nil {
		result.FailureKind = types.KindImbalanced
		result.Error = fmt.Sprintf("NO sell failed after split: %v", err)
		return
	}
	result.NoTrade = &types.Trade{
		TokenID: opp.Pair.NoAssetID, Outcome: "No", Side: types.SideSell,
		Price: opp.Prices.SellNo, Size: noFill.spent, Timestamp: time.Now(),
	}
	proceeds += noFill.received

	result.RealizedProfit = proceeds - size - result.GasCostUSD
	result.Success = true

	e.logger.Info("short-arb-executed",
		zap.String("market-slug", opp.Pair.Slug),
		zap.Float64("split-amount", size),
		zap.Float64("sell-proceeds", proceeds),
		zap.Float64("realized-profit", result.RealizedProfit))
}

// fill is one leg's settlement: spent is what the order gave up (USDC for
// buys, shares for sells), received is what it got back.
type fill struct {
	spent    float64
	received float64
}

// marketLeg places one FOK leg and normalizes the fill amounts.
func (e *Executor) marketLeg(ctx context.Context, tokenID, side string, amount, price float64) (*fill, error) {
	resp, err := e.orders.CreateMarketOrder(ctx, clob.MarketOrderArgs{
		TokenID:   tokenID,
		Side:      side,
		Amount:    amount,
		Price:     price,
		OrderType: types.OrderTypeFOK,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Succeeded() {
		return nil, fmt.Errorf("order rejected: %s", resp.ErrorMsg)
	}

	// The exchange reports amounts as human-unit decimal strings.
	making, _ := strconv.ParseFloat(resp.MakingAmount, 64)
	taking, _ := strconv.ParseFloat(resp.TakingAmount, 64)
	if making == 0 {
		making = amount
	}
	return &fill{spent: making, received: taking}, nil
}

func (e *Executor) fetchBalance(ctx context.Context) float64 {
	if e.balance == nil {
		return 0
	}
	balance, err := e.balance(ctx)
	if err != nil {
		e.logger.Warn("balance-read-failed", zap.Error(err))
		return 0
	}
	return balance
}

func (e *Executor) gasCostUSD(receipt *ethtypes.Receipt) float64 {
	if receipt == nil || receipt.EffectiveGasPrice == nil {
		return 0
	}
	wei := new(big.Float).Mul(
		new(big.Float).SetUint64(receipt.GasUsed),
		new(big.Float).SetInt(receipt.EffectiveGasPrice),
	)
	pol, _ := new(big.Float).Quo(wei, big.NewFloat(1e18)).Float64()
	return pol * e.cfg.GasTokenPriceUSD
}

func (e *Executor) record(ctx context.Context, result *types.ExecutionResult) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.StoreExecution(ctx, result); err != nil {
		e.logger.Error("execution-record-failed",
			zap.String("opportunity-id", result.OpportunityID),
			zap.Error(err))
	}
}

func failureKind(err error) types.ErrorKind {
	var de *types.DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return types.KindTransientNetwork
}
