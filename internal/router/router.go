package router

import (
	"context"
	"fmt"
	"time"

	"github.com/egemenkeskn/trader-server/internal/models"
	"github.com/egemenkeskn/trader-server/internal/quantizer"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Exchange 是路由下单所需的交易所能力
type Exchange interface {
	ChangeLeverage(ctx context.Context, cred models.Credential, symbol string, leverage int, now time.Time) error
	PlaceOrder(ctx context.Context, cred models.Credential, req models.OrderRequest, now time.Time) (*models.Order, error)
	GetInstrumentRule(ctx context.Context, symbol string) (*models.InstrumentRule, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// Router 把单条交易建议转换为符合精度要求的市价单，并按需挂止损止盈单
type Router struct {
	ex     Exchange
	cfg    models.TradingConfig
	ids    IDGenerator
	clock  func() time.Time
	logger *zap.Logger
}

// New 创建一个新的 Router
func New(ex Exchange, cfg models.TradingConfig, ids IDGenerator, clock func() time.Time, logger *zap.Logger) *Router {
	return &Router{ex: ex, cfg: cfg, ids: ids, clock: clock, logger: logger}
}

// Cycle 是一个账户周期内路由共享的上下文。交易规则只在本周期内缓存。
type Cycle struct {
	AccountID  string
	Credential models.Credential
	Account    *models.AccountContext
	rules      map[string]*models.InstrumentRule
}

// NewCycle 创建一个账户周期
func NewCycle(accountID string, cred models.Credential, account *models.AccountContext) *Cycle {
	if account.Leverage == nil {
		account.Leverage = make(map[string]int)
	}
	return &Cycle{
		AccountID:  accountID,
		Credential: cred,
		Account:    account,
		rules:      make(map[string]*models.InstrumentRule),
	}
}

func (r *Router) rule(ctx context.Context, c *Cycle, symbol string) (*models.InstrumentRule, error) {
	if rule, ok := c.rules[symbol]; ok {
		return rule, nil
	}
	rule, err := r.ex.GetInstrumentRule(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.rules[symbol] = rule
	return rule, nil
}

// Execute 路由并提交一条建议。返回的错误只影响这一笔交易。
func (r *Router) Execute(ctx context.Context, c *Cycle, p models.TradeProposal) (*models.ExecutedTrade, error) {
	logger := r.logger.With(zap.String("account", c.AccountID), zap.String("symbol", p.Symbol), zap.String("action", string(p.Action)))

	intent, err := Decide(p, c.Account.PositionAmount(p.Symbol))
	if err != nil {
		return nil, models.NewTradeError(p.Symbol, "route", err)
	}

	trade := &models.ExecutedTrade{}
	trade.LeverageApplied = r.applyLeverage(ctx, c, p, logger)

	rule, err := r.rule(ctx, c, p.Symbol)
	if err != nil {
		return nil, models.NewTradeError(p.Symbol, "instrument", err)
	}

	qtyStr := quantizer.RoundToStep(intent.Quantity, rule.StepSize)
	qty, err := decimal.NewFromString(qtyStr)
	if err != nil || !qty.IsPositive() {
		return nil, models.NewTradeError(p.Symbol, "validate",
			fmt.Errorf("%w: %v rounds to %s with step %v", models.ErrInvalidQuantity, intent.Quantity, qtyStr, rule.StepSize))
	}

	price, err := r.ex.GetPrice(ctx, p.Symbol)
	if err != nil {
		return nil, models.NewTradeError(p.Symbol, "price", err)
	}
	notional := qty.Mul(decimal.NewFromFloat(price))

	minNotional := decimal.NewFromFloat(r.cfg.MinNotionalFor(p.Symbol))
	if notional.LessThan(minNotional) {
		return nil, models.NewTradeError(p.Symbol, "validate",
			fmt.Errorf("%w: %s < %s", models.ErrBelowMinimumNotional, notional.StringFixed(4), minNotional.String()))
	}
	if !intent.IsClosing {
		limit := decimal.NewFromFloat(c.Account.AvailableQuote).Mul(decimal.NewFromFloat(r.cfg.MaxBalanceFraction))
		if notional.GreaterThan(limit) {
			return nil, models.NewTradeError(p.Symbol, "validate",
				fmt.Errorf("%w: notional %s exceeds %s %s", models.ErrInsufficientBalance, notional.StringFixed(4), limit.StringFixed(4), r.cfg.QuoteAsset))
		}
	}

	now := r.clock()
	tag := TagOpen
	if intent.IsClosing {
		tag = TagClose
	}
	intent.Quantity, _ = qty.Float64()
	intent.ClientOrderID = r.ids.Next(tag, now)

	order, err := r.ex.PlaceOrder(ctx, c.Credential, models.OrderRequest{
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Type:          models.OrderTypeMarket,
		Quantity:      qtyStr,
		ReduceOnly:    intent.ReduceOnly,
		ClientOrderID: intent.ClientOrderID,
	}, now)
	if err != nil {
		return nil, models.NewTradeError(p.Symbol, "order", err)
	}
	if !order.Accepted() {
		return nil, models.NewTradeError(p.Symbol, "order", fmt.Errorf("%w: status=%s", models.ErrOrderRejected, order.Status))
	}

	trade.Intent = intent
	trade.Quantity = qtyStr
	trade.Price = price
	trade.Notional, _ = notional.Float64()
	trade.Order = order

	logger.Info("市价单已提交",
		zap.String("side", string(intent.Side)),
		zap.String("quantity", qtyStr),
		zap.Bool("closing", intent.IsClosing),
		zap.Int64("order_id", order.OrderId),
		zap.String("client_order_id", intent.ClientOrderID))

	if !intent.IsClosing {
		r.placeProtection(ctx, c, p, intent, rule, trade, logger)
	}
	return trade, nil
}

// applyLeverage 在开仓或加减仓前把杠杆调整到建议值，失败只记录警告。返回实际生效的杠杆。
func (r *Router) applyLeverage(ctx context.Context, c *Cycle, p models.TradeProposal, logger *zap.Logger) int {
	current, known := c.Account.Leverage[p.Symbol]
	if p.Action == models.ActionClose {
		return current
	}

	requested := r.cfg.DefaultLeverage
	if p.Leverage != nil && *p.Leverage > 0 {
		requested = *p.Leverage
	}
	if known && current == requested {
		return current
	}

	if err := r.ex.ChangeLeverage(ctx, c.Credential, p.Symbol, requested, r.clock()); err != nil {
		logger.Warn("调整杠杆失败，按当前杠杆继续下单",
			zap.Int("requested", requested),
			zap.Int("current", current),
			zap.Error(fmt.Errorf("%w: %v", models.ErrLeverageChangeFailed, err)))
		return current
	}
	c.Account.Leverage[p.Symbol] = requested
	logger.Info("杠杆已调整", zap.Int("from", current), zap.Int("to", requested))
	return requested
}

// placeProtection 为开仓单挂反方向的全平止损/止盈条件单。失败不影响主单结果。
func (r *Router) placeProtection(ctx context.Context, c *Cycle, p models.TradeProposal, intent models.OrderIntent, rule *models.InstrumentRule, trade *models.ExecutedTrade, logger *zap.Logger) {
	legs := []struct {
		tag     string
		kind    models.OrderType
		trigger *float64
		dest    **models.Order
	}{
		{TagStopLoss, models.OrderTypeStopMarket, p.StopLoss, &trade.StopLossOrder},
		{TagTakeProfit, models.OrderTypeTakeProfitMarket, p.TakeProfit, &trade.TakeProfitOrder},
	}

	for _, leg := range legs {
		if leg.trigger == nil || *leg.trigger <= 0 {
			continue
		}
		now := r.clock()
		stopPrice := quantizer.RoundToStep(*leg.trigger, rule.TickSize)
		order, err := r.ex.PlaceOrder(ctx, c.Credential, models.OrderRequest{
			Symbol:        intent.Symbol,
			Side:          intent.Side.Opposite(),
			Type:          leg.kind,
			StopPrice:     stopPrice,
			ClosePosition: true,
			ClientOrderID: r.ids.Next(leg.tag, now),
		}, now)
		if err != nil {
			logger.Error("挂条件单失败", zap.String("type", string(leg.kind)), zap.String("stop_price", stopPrice), zap.Error(err))
			trade.ProtectionErrors = append(trade.ProtectionErrors, fmt.Sprintf("%s: %v", leg.kind, err))
			continue
		}
		*leg.dest = order
		logger.Info("条件单已提交", zap.String("type", string(leg.kind)), zap.String("stop_price", stopPrice), zap.Int64("order_id", order.OrderId))
	}
}
