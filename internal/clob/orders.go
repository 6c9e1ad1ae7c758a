package clob

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

// minOrderNotional is the smallest order value the exchange accepts.
const minOrderNotional = 1.0

// OrderArgs describes a limit order.
type OrderArgs struct {
	TokenID   string
	Side      string // types.SideBuy or types.SideSell
	Price     float64
	Size      float64 // outcome shares
	OrderType string  // types.OrderTypeGTC or types.OrderTypeGTD
	ExpiresAt time.Time
}

// MarketOrderArgs describes a marketable order. Amount is USDC for buys and
// shares for sells. Price is the worst acceptable fill price, taken from the
// caller's book view.
type MarketOrderArgs struct {
	TokenID   string
	Side      string
	Amount    float64
	Price     float64
	OrderType string // types.OrderTypeFOK or types.OrderTypeFAK
}

// CreateOrder signs and submits a limit order.
func (c *Client) CreateOrder(ctx context.Context, args OrderArgs) (*types.OrderSubmissionResponse, error) {
	if args.OrderType != types.OrderTypeGTC && args.OrderType != types.OrderTypeGTD {
		return nil, types.E(types.KindValidation, "clob.CreateOrder",
			fmt.Sprintf("order type %q is not a limit type", args.OrderType))
	}
	expiration := "0"
	if args.OrderType == types.OrderTypeGTD {
		if !args.ExpiresAt.After(time.Now()) {
			return nil, types.E(types.KindValidation, "clob.CreateOrder", "GTD order requires a future expiration")
		}
		expiration = fmt.Sprintf("%d", args.ExpiresAt.Unix())
	}

	tick, err := c.TickSize(ctx, args.TokenID)
	if err != nil {
		return nil, err
	}
	if err := validatePrice(args.Price, tick); err != nil {
		return nil, err
	}
	if args.Size <= 0 || args.Price*args.Size < minOrderNotional {
		return nil, types.E(types.KindValidation, "clob.CreateOrder",
			fmt.Sprintf("order notional %.4f below minimum %.2f", args.Price*args.Size, minOrderNotional))
	}

	maker, taker := limitAmounts(args.Side, args.Price, args.Size, tick)
	signed, err := c.sign(ctx, args.TokenID, args.Side, maker, taker, expiration)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, signed, args.OrderType, args.Side)
}

// CreateMarketOrder signs and submits a FOK or FAK order.
func (c *Client) CreateMarketOrder(ctx context.Context, args MarketOrderArgs) (*types.OrderSubmissionResponse, error) {
	if args.OrderType != types.OrderTypeFOK && args.OrderType != types.OrderTypeFAK {
		return nil, types.E(types.KindValidation, "clob.CreateMarketOrder",
			fmt.Sprintf("order type %q is not a market type", args.OrderType))
	}
	if args.Price <= 0 || args.Price > 1 {
		return nil, types.E(types.KindValidation, "clob.CreateMarketOrder", "marketable price required")
	}
	if args.Amount < minOrderNotional {
		return nil, types.E(types.KindValidation, "clob.CreateMarketOrder",
			fmt.Sprintf("amount %.4f below minimum %.2f", args.Amount, minOrderNotional))
	}

	tick, err := c.TickSize(ctx, args.TokenID)
	if err != nil {
		return nil, err
	}

	maker, taker := marketAmounts(args.Side, args.Price, args.Amount, tick)
	signed, err := c.sign(ctx, args.TokenID, args.Side, maker, taker, "0")
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, signed, args.OrderType, args.Side)
}

// sign builds the EIP-712 signed order, selecting the verifying contract by
// the market's neg-risk flag.
func (c *Client) sign(ctx context.Context, tokenID, side, makerAmount, takerAmount, expiration string) (*model.SignedOrder, error) {
	negRisk, err := c.IsNegRisk(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	contract := model.CTFExchange
	if negRisk {
		contract = model.NegRiskCTFExchange
	}

	orderSide := model.BUY
	if side == types.SideSell {
		orderSide = model.SELL
	}

	data := &model.OrderData{
		Maker:         c.signer.funder.Hex(),
		Taker:         zeroAddress,
		TokenId:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Side:          orderSide,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        c.signer.address.Hex(),
		Expiration:    expiration,
		SignatureType: model.SignatureType(c.signer.sigType),
	}

	signed, err := c.builder.BuildSignedOrder(c.signer.key, data, contract)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}
	return signed, nil
}

// submit posts one signed order and applies the success-determination
// contract. Exchange-side rejections come back as a 2xx with success=false,
// so the response is returned alongside a nil error for the caller to
// inspect.
func (c *Client) submit(ctx context.Context, order *model.SignedOrder, orderType, side string) (*types.OrderSubmissionResponse, error) {
	creds, err := c.Creds(ctx)
	if err != nil {
		return nil, err
	}

	sideStr := types.SideBuy
	if order.Side.Uint64() == uint64(model.SELL) {
		sideStr = types.SideSell
	}

	req := types.OrderSubmissionRequest{
		Order: types.SignedOrderJSON{
			Salt:          order.Salt.Int64(),
			Maker:         order.Maker.Hex(),
			Signer:        order.Signer.Hex(),
			Taker:         order.Taker.Hex(),
			TokenID:       order.TokenId.String(),
			MakerAmount:   order.MakerAmount.String(),
			TakerAmount:   order.TakerAmount.String(),
			Side:          sideStr,
			Expiration:    order.Expiration.String(),
			Nonce:         order.Nonce.String(),
			FeeRateBps:    order.FeeRateBps.String(),
			SignatureType: int(order.SignatureType.Int64()),
			Signature:     "0x" + common.Bytes2Hex(order.Signature),
		},
		Owner:     creds.Key,
		OrderType: orderType,
	}

	var resp types.OrderSubmissionResponse
	if err := c.doL2(ctx, "POST", "/order", nil, req, &resp); err != nil {
		OrdersTotal.WithLabelValues(orderType, side, "error").Inc()
		return nil, err
	}

	if resp.Succeeded() {
		OrdersTotal.WithLabelValues(orderType, side, "ok").Inc()
		c.logger.Info("order-submitted",
			zap.String("order_id", resp.OrderID),
			zap.String("status", resp.Status),
			zap.String("type", orderType),
			zap.String("side", side))
	} else {
		OrdersTotal.WithLabelValues(orderType, side, "rejected").Inc()
		c.logger.Warn("order-rejected",
			zap.String("error", resp.ErrorMsg),
			zap.String("type", orderType),
			zap.String("side", side))
	}
	return &resp, nil
}

// validatePrice rejects off-tick and out-of-range prices locally; the
// exchange would bounce them anyway.
func validatePrice(price float64, tick decimal.Decimal) error {
	p := decimal.NewFromFloat(price)
	lo := tick
	hi := decimal.NewFromInt(1).Sub(tick)
	if p.LessThan(lo) || p.GreaterThan(hi) {
		return types.E(types.KindValidation, "clob.validatePrice",
			fmt.Sprintf("price %s outside [%s, %s]", p, lo, hi))
	}
	if !p.Mod(tick).IsZero() {
		return types.E(types.KindValidation, "clob.validatePrice",
			fmt.Sprintf("price %s not aligned to tick %s", p, tick))
	}
	return nil
}

// limitAmounts converts price and share size into the raw 6-decimal
// maker/taker amounts. Sizes truncate to 2 decimals, notionals to the tick's
// amount precision, matching what the matching engine accepts.
func limitAmounts(side string, price, size float64, tick decimal.Decimal) (maker, taker string) {
	notionalDP := amountDecimals(tick)
	s := decimal.NewFromFloat(size).RoundDown(2)
	cost := s.Mul(decimal.NewFromFloat(price)).RoundDown(notionalDP)

	if side == types.SideBuy {
		// Pay cost USDC, receive size shares.
		return raw(cost), raw(s)
	}
	// Give size shares, receive cost USDC.
	return raw(s), raw(cost)
}

// marketAmounts converts a marketable order's amount at the limit price.
func marketAmounts(side string, price, amount float64, tick decimal.Decimal) (maker, taker string) {
	notionalDP := amountDecimals(tick)
	p := decimal.NewFromFloat(price)

	if side == types.SideBuy {
		// Spend amount USDC for at least amount/price shares.
		usdc := decimal.NewFromFloat(amount).RoundDown(notionalDP)
		shares := usdc.Div(p).RoundDown(2)
		return raw(usdc), raw(shares)
	}
	// Sell amount shares for at least amount*price USDC.
	shares := decimal.NewFromFloat(amount).RoundDown(2)
	usdc := shares.Mul(p).RoundDown(notionalDP)
	return raw(shares), raw(usdc)
}

// amountDecimals is the notional precision for a tick size: price decimals
// plus the 2 share decimals.
func amountDecimals(tick decimal.Decimal) int32 {
	return -tick.Exponent() + 2
}

// raw scales to the collateral token's 6 decimals.
func raw(d decimal.Decimal) string {
	return d.Shift(6).Truncate(0).String()
}
