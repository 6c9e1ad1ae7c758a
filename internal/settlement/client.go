package settlement

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/pkg/ratelimit"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

const (
	collateralDecimals = 6

	approvalGasLimit = 100_000
	gasEstimateBump  = 1.2 // estimated + 20% for splits/merges
	gasRetryBump     = 1.5 // one retry at 1.5x on underestimation
	defaultGasSafety = 1.5
	maxGasSafety     = 2.0
)

// chainReader is the read-only subset of the RPC client. Split out so the
// readiness checks can be exercised against a fake backend.
type chainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client performs conditional-token settlement for one wallet. Writes are
// serialized by a per-wallet mutex to keep nonce discipline; reads run in
// parallel.
type Client struct {
	eth     *ethclient.Client
	reader  chainReader
	logger  *zap.Logger
	limiter *ratelimit.Limiter

	key     *ecdsa.PrivateKey
	address common.Address // EOA derived from the signing key
	funder  common.Address // position-holding address (proxy or the EOA)
	chainID *big.Int

	gasSafety float64
	txMu      sync.Mutex
}

// Config holds settlement client construction parameters.
type Config struct {
	RPCURL         string
	PrivateKey     string // hex, no 0x prefix required
	FunderAddress  string // empty means the EOA holds positions directly
	ChainID        int64
	GasPriceSafety float64
	Limiter        *ratelimit.Limiter
	Logger         *zap.Logger
}

// New dials the RPC endpoint and prepares the signing wallet.
func New(cfg Config) (*Client, error) {
	keyHex := strings.TrimPrefix(cfg.PrivateKey, "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", cfg.RPCURL, err)
	}

	address := crypto.PubkeyToAddress(key.PublicKey)
	funder := address
	if cfg.FunderAddress != "" {
		funder = common.HexToAddress(cfg.FunderAddress)
	}

	safety := cfg.GasPriceSafety
	if safety < 1.0 {
		safety = defaultGasSafety
	}
	if safety > maxGasSafety {
		safety = maxGasSafety
	}

	return &Client{
		eth:       eth,
		reader:    eth,
		logger:    cfg.Logger,
		limiter:   cfg.Limiter,
		key:       key,
		address:   address,
		funder:    funder,
		chainID:   big.NewInt(cfg.ChainID),
		gasSafety: safety,
	}, nil
}

// Address returns the signing EOA.
func (c *Client) Address() common.Address { return c.address }

// Funder returns the position-holding address.
func (c *Client) Funder() common.Address { return c.funder }

// usdcUnits converts a decimal collateral amount to 6-decimal base units.
func usdcUnits(amount float64) *big.Int {
	return decimal.NewFromFloat(amount).Shift(collateralDecimals).BigInt()
}

// unitsToUSDC converts 6-decimal base units back to a decimal amount.
func unitsToUSDC(units *big.Int) float64 {
	f, _ := decimal.NewFromBigInt(units, -collateralDecimals).Float64()
	return f
}

// binaryPartition is the index-set partition of a binary condition.
func binaryPartition() []*big.Int {
	return []*big.Int{big.NewInt(IndexSetYes), big.NewInt(IndexSetNo)}
}

// Split converts collateral into amount YES + amount NO pairs. NegRisk
// markets settle through the adapter; standard markets go straight to the
// conditional tokens contract.
func (c *Client) Split(ctx context.Context, conditionID common.Hash, amount float64, negRisk bool) (*ethtypes.Receipt, error) {
	units := usdcUnits(amount)
	if units.Sign() <= 0 {
		return nil, types.E(types.KindValidation, "settlement.Split", "amount must be positive")
	}

	var (
		to   common.Address
		data []byte
		err  error
	)
	if negRisk {
		to = NegRiskAdapterAddress
		data, err = negRiskAdapterABI.Pack("splitPosition", conditionID, units)
	} else {
		to = ConditionalTokensAddress
		data, err = conditionalTokensABI.Pack("splitPosition", USDCeAddress, common.Hash{}, conditionID, binaryPartition(), units)
	}
	if err != nil {
		return nil, fmt.Errorf("pack splitPosition: %w", err)
	}

	c.logger.Info("ctf-split",
		zap.String("condition-id", conditionID.Hex()),
		zap.Float64("amount", amount),
		zap.Bool("neg-risk", negRisk))

	receipt, err := c.sendTx(ctx, "split", to, data, 0)
	if err != nil {
		return nil, err
	}
	SettlementOpsTotal.WithLabelValues("split").Inc()
	return receipt, nil
}

// Merge burns amount YES + amount NO pairs back into collateral. A preflight
// balance check rejects merges beyond the held pair count.
func (c *Client) Merge(ctx context.Context, conditionID common.Hash, amount float64, negRisk bool) (*ethtypes.Receipt, error) {
	units := usdcUnits(amount)
	if units.Sign() <= 0 {
		return nil, types.E(types.KindValidation, "settlement.Merge", "amount must be positive")
	}

	yesID, noID := PositionIDs(conditionID)
	yesBal, err := c.GetPositionBalance(ctx, c.funder, yesID)
	if err != nil {
		return nil, fmt.Errorf("preflight yes balance: %w", err)
	}
	noBal, err := c.GetPositionBalance(ctx, c.funder, noID)
	if err != nil {
		return nil, fmt.Errorf("preflight no balance: %w", err)
	}
	if yesBal.Cmp(units) < 0 || noBal.Cmp(units) < 0 {
		return nil, types.E(types.KindInsufficientBalance, "settlement.Merge",
			fmt.Sprintf("pair balance %s/%s below merge amount %s", yesBal, noBal, units)).
			WithRemedy("reduce merge amount to the smaller outcome balance")
	}

	return c.mergeUnits(ctx, conditionID, units, negRisk)
}

// MergeByTokenIDs merges without the preflight position read, for callers
// that already hold fresh balances from the fill flow.
func (c *Client) MergeByTokenIDs(ctx context.Context, conditionID common.Hash, amount float64, negRisk bool) (*ethtypes.Receipt, error) {
	units := usdcUnits(amount)
	if units.Sign() <= 0 {
		return nil, types.E(types.KindValidation, "settlement.MergeByTokenIDs", "amount must be positive")
	}
	return c.mergeUnits(ctx, conditionID, units, negRisk)
}

func (c *Client) mergeUnits(ctx context.Context, conditionID common.Hash, units *big.Int, negRisk bool) (*ethtypes.Receipt, error) {
	var (
		to   common.Address
		data []byte
		err  error
	)
	if negRisk {
		to = NegRiskAdapterAddress
		data, err = negRiskAdapterABI.Pack("mergePositions", conditionID, units)
	} else {
		to = ConditionalTokensAddress
		data, err = conditionalTokensABI.Pack("mergePositions", USDCeAddress, common.Hash{}, conditionID, binaryPartition(), units)
	}
	if err != nil {
		return nil, fmt.Errorf("pack mergePositions: %w", err)
	}

	c.logger.Info("ctf-merge",
		zap.String("condition-id", conditionID.Hex()),
		zap.String("units", units.String()),
		zap.Bool("neg-risk", negRisk))

	receipt, err := c.sendTx(ctx, "merge", to, data, 0)
	if err != nil {
		return nil, err
	}
	SettlementOpsTotal.WithLabelValues("merge").Inc()
	return receipt, nil
}

// Redeem claims collateral for winning tokens after resolution.
func (c *Client) Redeem(ctx context.Context, conditionID common.Hash, negRisk bool) (*ethtypes.Receipt, error) {
	var (
		to   common.Address
		data []byte
		err  error
	)
	if negRisk {
		yesID, noID := PositionIDs(conditionID)
		yesBal, berr := c.GetPositionBalance(ctx, c.funder, yesID)
		if berr != nil {
			return nil, fmt.Errorf("redeem yes balance: %w", berr)
		}
		noBal, berr := c.GetPositionBalance(ctx, c.funder, noID)
		if berr != nil {
			return nil, fmt.Errorf("redeem no balance: %w", berr)
		}
		to = NegRiskAdapterAddress
		data, err = negRiskAdapterABI.Pack("redeemPositions", conditionID, []*big.Int{yesBal, noBal})
	} else {
		to = ConditionalTokensAddress
		data, err = conditionalTokensABI.Pack("redeemPositions", USDCeAddress, common.Hash{}, conditionID, binaryPartition())
	}
	if err != nil {
		return nil, fmt.Errorf("pack redeemPositions: %w", err)
	}

	c.logger.Info("ctf-redeem",
		zap.String("condition-id", conditionID.Hex()),
		zap.Bool("neg-risk", negRisk))

	receipt, err := c.sendTx(ctx, "redeem", to, data, 0)
	if err != nil {
		return nil, err
	}
	SettlementOpsTotal.WithLabelValues("redeem").Inc()
	return receipt, nil
}

// PayoutReported reports whether the oracle has resolved the condition.
func (c *Client) PayoutReported(ctx context.Context, conditionID common.Hash) (bool, error) {
	out, err := c.callView(ctx, ConditionalTokensAddress, conditionalTokensABI, "payoutDenominator", conditionID)
	if err != nil {
		return false, err
	}
	denom := out[0].(*big.Int)
	return denom.Sign() > 0, nil
}

// GetPositionBalance reads the ERC1155 balance of a position token.
func (c *Client) GetPositionBalance(ctx context.Context, owner common.Address, positionID *big.Int) (*big.Int, error) {
	out, err := c.callView(ctx, ConditionalTokensAddress, conditionalTokensABI, "balanceOf", owner, positionID)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// PairedBalance returns the matched YES/NO pair size held for a condition,
// in whole tokens. The funder address holds positions when configured.
func (c *Client) PairedBalance(ctx context.Context, conditionID common.Hash) (float64, error) {
	yesID, noID := PositionIDs(conditionID)

	yes, err := c.GetPositionBalance(ctx, c.funder, yesID)
	if err != nil {
		return 0, fmt.Errorf("yes balance: %w", err)
	}
	no, err := c.GetPositionBalance(ctx, c.funder, noID)
	if err != nil {
		return 0, fmt.Errorf("no balance: %w", err)
	}

	paired := yes
	if no.Cmp(yes) < 0 {
		paired = no
	}
	return unitsToUSDC(paired), nil
}

// ApproveErc20 grants an allowance on an ERC20 token.
func (c *Client) ApproveErc20(ctx context.Context, token, spender common.Address, amount *big.Int) (*ethtypes.Receipt, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}

	c.logger.Info("erc20-approve",
		zap.String("token", token.Hex()),
		zap.String("spender", spender.Hex()))

	receipt, err := c.sendTx(ctx, "approve", token, data, approvalGasLimit)
	if err != nil {
		return nil, err
	}
	SettlementOpsTotal.WithLabelValues("approve").Inc()
	return receipt, nil
}

// SetApprovalForAll1155 grants or revokes an operator on the conditional
// tokens contract.
func (c *Client) SetApprovalForAll1155(ctx context.Context, operator common.Address, approved bool) (*ethtypes.Receipt, error) {
	data, err := conditionalTokensABI.Pack("setApprovalForAll", operator, approved)
	if err != nil {
		return nil, fmt.Errorf("pack setApprovalForAll: %w", err)
	}

	c.logger.Info("ctf-set-approval-for-all",
		zap.String("operator", operator.Hex()),
		zap.Bool("approved", approved))

	receipt, err := c.sendTx(ctx, "setApprovalForAll", ConditionalTokensAddress, data, approvalGasLimit)
	if err != nil {
		return nil, err
	}
	SettlementOpsTotal.WithLabelValues("set_approval").Inc()
	return receipt, nil
}

// callView runs a read-only contract call under the on-chain rate class.
func (c *Client) callView(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var raw []byte
	err = c.limiter.Execute(ctx, ratelimit.ClassOnchain, func(ctx context.Context) error {
		var callErr error
		raw, callErr = c.reader.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// sendTx signs and submits one write, then waits for the receipt. The wallet
// mutex serializes the whole nonce window. fixedGasLimit of 0 means estimate
// with a 20% bump; estimation failure carrying a revert reason is surfaced
// verbatim, and a mined-but-reverted receipt comes back as an on-chain
// revert error.
func (c *Client) sendTx(ctx context.Context, op string, to common.Address, data []byte, fixedGasLimit uint64) (*ethtypes.Receipt, error) {
	c.txMu.Lock()
	defer c.txMu.Unlock()

	var receipt *ethtypes.Receipt
	err := c.limiter.Execute(ctx, ratelimit.ClassOnchain, func(ctx context.Context) error {
		nonce, err := c.eth.PendingNonceAt(ctx, c.address)
		if err != nil {
			return fmt.Errorf("pending nonce: %w", err)
		}

		gasPrice, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return fmt.Errorf("suggest gas price: %w", err)
		}
		gasPrice = scaleBig(gasPrice, c.gasSafety)

		gasLimit := fixedGasLimit
		if gasLimit == 0 {
			estimate, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
				From: c.address, To: &to, Data: data,
			})
			if err != nil {
				return types.E(types.KindOnChainRevert, "settlement."+op, err.Error()).WithCause(err)
			}
			gasLimit = uint64(float64(estimate) * gasEstimateBump)
		}

		receipt, err = c.submitAndWait(ctx, nonce, to, data, gasLimit, gasPrice)
		if isGasTooLow(err) {
			c.logger.Warn("gas-underestimated-retrying",
				zap.String("op", op),
				zap.Uint64("gas-limit", gasLimit))
			gasLimit = uint64(float64(gasLimit) * gasRetryBump)
			receipt, err = c.submitAndWait(ctx, nonce, to, data, gasLimit, gasPrice)
		}
		if err != nil {
			return err
		}

		if receipt.Status != ethtypes.ReceiptStatusSuccessful {
			return types.E(types.KindOnChainRevert, "settlement."+op,
				fmt.Sprintf("transaction %s reverted", receipt.TxHash.Hex()))
		}
		return nil
	})
	if err != nil {
		SettlementFailuresTotal.WithLabelValues(op).Inc()
		return nil, err
	}

	GasUsedTotal.Add(float64(receipt.GasUsed))
	return receipt, nil
}

func (c *Client) submitAndWait(ctx context.Context, nonce uint64, to common.Address, data []byte, gasLimit uint64, gasPrice *big.Int) (*ethtypes.Receipt, error) {
	tx := ethtypes.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}

	c.logger.Debug("tx-submitted",
		zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas-limit", gasLimit))

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return nil, fmt.Errorf("wait mined: %w", err)
	}
	return receipt, nil
}

func isGasTooLow(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "out of gas") || strings.Contains(msg, "intrinsic gas too low")
}

func scaleBig(v *big.Int, factor float64) *big.Int {
	scaled := decimal.NewFromBigInt(v, 0).Mul(decimal.NewFromFloat(factor))
	return scaled.BigInt()
}
