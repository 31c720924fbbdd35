package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/egemenkeskn/trader-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		action     models.Action
		qty        float64
		position   float64
		wantSide   models.Side
		wantQty    float64
		closing    bool
		reduceOnly bool
		wantErr    error
	}{
		{"close long", models.ActionClose, 0, 2.5, models.Sell, 2.5, true, true, nil},
		{"close short", models.ActionClose, 0, -0.7, models.Buy, 0.7, true, true, nil},
		{"close flat", models.ActionClose, 1, 0, "", 0, false, false, models.ErrNoPositionToClose},
		{"sell while long reduces", models.ActionSell, 1, 1.0, models.Sell, 1, true, false, nil},
		{"sell while short adds", models.ActionSell, 1, -1.0, models.Sell, 1, false, false, nil},
		{"buy while short reduces", models.ActionBuy, 2, -1.0, models.Buy, 2, true, false, nil},
		{"buy while long adds", models.ActionBuy, 2, 1.0, models.Buy, 2, false, false, nil},
		{"buy flat opens", models.ActionBuy, 0.5, 0, models.Buy, 0.5, false, false, nil},
		{"sell flat opens", models.ActionSell, 0.5, 0, models.Sell, 0.5, false, false, nil},
		{"unknown action", models.Action("HOLD"), 1, 0, "", 0, false, false, models.ErrUnsupportedAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := Decide(models.TradeProposal{Symbol: "BTCUSDT", Action: tt.action, Quantity: tt.qty}, tt.position)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSide, intent.Side)
			assert.Equal(t, tt.wantQty, intent.Quantity)
			assert.Equal(t, tt.closing, intent.IsClosing)
			assert.Equal(t, tt.reduceOnly, intent.ReduceOnly)
		})
	}
}

// mockExchange 记录路由发出的所有调用
type mockExchange struct {
	sync.Mutex
	price         float64
	rule          models.InstrumentRule
	ruleCalls     int
	leverageCalls []int
	leverageErr   error
	orders        []models.OrderRequest
	orderErr      map[models.OrderType]error
	orderStatus   string
	nextOrderID   int64
}

func newMockExchange(price float64) *mockExchange {
	return &mockExchange{
		price:    price,
		rule:     models.InstrumentRule{StepSize: 0.001, TickSize: 0.01},
		orderErr: make(map[models.OrderType]error),
	}
}

func (m *mockExchange) ChangeLeverage(_ context.Context, _ models.Credential, _ string, leverage int, _ time.Time) error {
	m.Lock()
	defer m.Unlock()
	m.leverageCalls = append(m.leverageCalls, leverage)
	return m.leverageErr
}

func (m *mockExchange) PlaceOrder(_ context.Context, _ models.Credential, req models.OrderRequest, _ time.Time) (*models.Order, error) {
	m.Lock()
	defer m.Unlock()
	m.orders = append(m.orders, req)
	if err := m.orderErr[req.Type]; err != nil {
		return nil, err
	}
	m.nextOrderID++
	status := m.orderStatus
	if status == "" {
		status = "NEW"
	}
	return &models.Order{OrderId: m.nextOrderID, Symbol: req.Symbol, Status: status, ClientOrderId: req.ClientOrderID}, nil
}

func (m *mockExchange) GetInstrumentRule(_ context.Context, symbol string) (*models.InstrumentRule, error) {
	m.Lock()
	defer m.Unlock()
	m.ruleCalls++
	r := m.rule
	r.Symbol = symbol
	return &r, nil
}

func (m *mockExchange) GetPrice(context.Context, string) (float64, error) {
	return m.price, nil
}

type seqIDs struct{ n int }

func (s *seqIDs) Next(tag string, now time.Time) string {
	s.n++
	return fmt.Sprintf("%s_%d_%d", tag, now.UnixMilli(), s.n)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfig() models.TradingConfig {
	return models.TradingConfig{
		QuoteAsset:               "USDT",
		DefaultLeverage:          1,
		MinNotional:              20,
		HighLiquidityMinNotional: 5,
		HighLiquiditySymbols:     []string{"BTCUSDT", "ETHUSDT"},
		MaxBalanceFraction:       0.9,
	}
}

func newTestRouter(ex *mockExchange) *Router {
	return New(ex, testConfig(), &seqIDs{}, func() time.Time { return fixedNow }, zap.NewNop())
}

func newTestCycle(available float64, positions ...models.Position) *Cycle {
	return NewCycle("acc", models.Credential{APIKey: "k", APISecret: "s"}, &models.AccountContext{
		Positions:      positions,
		Leverage:       map[string]int{"ADAUSDT": 1, "BTCUSDT": 1},
		AvailableQuote: available,
	})
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestMinimumNotional(t *testing.T) {
	ex := newMockExchange(10) // ADAUSDT 不在白名单, 最小名义价值 20
	r := newTestRouter(ex)

	_, err := r.Execute(context.Background(), newTestCycle(1000), models.TradeProposal{Symbol: "ADAUSDT", Action: models.ActionBuy, Quantity: 1.5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrBelowMinimumNotional))
	assert.Empty(t, ex.orders)

	trade, err := r.Execute(context.Background(), newTestCycle(1000), models.TradeProposal{Symbol: "ADAUSDT", Action: models.ActionBuy, Quantity: 2.5})
	require.NoError(t, err)
	assert.Equal(t, "2.500", trade.Quantity)
	assert.InDelta(t, 25, trade.Notional, 1e-9)
}

func TestHighLiquidityMinimum(t *testing.T) {
	ex := newMockExchange(1000)
	r := newTestRouter(ex)

	// 0.01 * 1000 = 10, 低于20但高于白名单的5
	_, err := r.Execute(context.Background(), newTestCycle(1000), models.TradeProposal{Symbol: "BTCUSDT", Action: models.ActionBuy, Quantity: 0.01})
	assert.NoError(t, err)
}

func TestInsufficientBalance(t *testing.T) {
	ex := newMockExchange(100)
	r := newTestRouter(ex)

	// 名义价值 95 > 100 * 0.9
	_, err := r.Execute(context.Background(), newTestCycle(100), models.TradeProposal{Symbol: "ADAUSDT", Action: models.ActionBuy, Quantity: 0.95})
	assert.True(t, errors.Is(err, models.ErrInsufficientBalance))

	// 平仓单不受余额限制
	cycle := newTestCycle(100, models.Position{Symbol: "ADAUSDT", Amount: 0.95})
	trade, err := r.Execute(context.Background(), cycle, models.TradeProposal{Symbol: "ADAUSDT", Action: models.ActionSell, Quantity: 0.95})
	require.NoError(t, err)
	assert.True(t, trade.Intent.IsClosing)
}

func TestQuantityRoundsToZero(t *testing.T) {
	ex := newMockExchange(100000)
	r := newTestRouter(ex)

	_, err := r.Execute(context.Background(), newTestCycle(1e9), models.TradeProposal{Symbol: "BTCUSDT", Action: models.ActionBuy, Quantity: 0.0004})
	assert.True(t, errors.Is(err, models.ErrInvalidQuantity))
}

func TestCloseUsesFullPositionAndSkipsLeverage(t *testing.T) {
	ex := newMockExchange(10)
	r := newTestRouter(ex)
	cycle := newTestCycle(0, models.Position{Symbol: "ADAUSDT", Amount: -12.3456})

	trade, err := r.Execute(context.Background(), cycle, models.TradeProposal{
		Symbol: "ADAUSDT", Action: models.ActionClose, Leverage: intPtr(5),
		StopLoss: floatPtr(9), TakeProfit: floatPtr(11),
	})
	require.NoError(t, err)

	assert.Empty(t, ex.leverageCalls, "CLOSE never changes leverage")
	require.Len(t, ex.orders, 1, "closing orders get no protection")
	o := ex.orders[0]
	assert.Equal(t, models.Buy, o.Side)
	assert.Equal(t, "12.345", o.Quantity)
	assert.True(t, o.ReduceOnly)
	assert.Equal(t, "CLOSE_1714564800000_1", o.ClientOrderID)
	assert.True(t, trade.Intent.IsClosing)
}

func TestCloseWithoutPosition(t *testing.T) {
	ex := newMockExchange(10)
	r := newTestRouter(ex)

	_, err := r.Execute(context.Background(), newTestCycle(100), models.TradeProposal{Symbol: "ADAUSDT", Action: models.ActionClose})
	assert.True(t, errors.Is(err, models.ErrNoPositionToClose))

	var tradeErr *models.TradeError
	require.True(t, errors.As(err, &tradeErr))
	assert.Equal(t, "ADAUSDT", tradeErr.Symbol)
	assert.Empty(t, ex.orders)
}

func TestOpenWithProtection(t *testing.T) {
	ex := newMockExchange(2000)
	r := newTestRouter(ex)
	cycle := newTestCycle(1000)

	trade, err := r.Execute(context.Background(), cycle, models.TradeProposal{
		Symbol: "ETHUSDT", Action: models.ActionBuy, Quantity: 0.1234, Leverage: intPtr(3),
		StopLoss: floatPtr(1900.129), TakeProfit: floatPtr(2200.555),
	})
	require.NoError(t, err)

	assert.Equal(t, []int{3}, ex.leverageCalls, "unknown leverage triggers a change")
	assert.Equal(t, 3, trade.LeverageApplied)
	assert.Equal(t, 3, cycle.Account.Leverage["ETHUSDT"])

	require.Len(t, ex.orders, 3)
	market, sl, tp := ex.orders[0], ex.orders[1], ex.orders[2]

	assert.Equal(t, models.OrderTypeMarket, market.Type)
	assert.Equal(t, "0.123", market.Quantity)
	assert.False(t, market.ReduceOnly)
	assert.Equal(t, "OPEN_1714564800000_1", market.ClientOrderID)

	assert.Equal(t, models.OrderTypeStopMarket, sl.Type)
	assert.Equal(t, models.Sell, sl.Side)
	assert.Equal(t, "1900.12", sl.StopPrice)
	assert.True(t, sl.ClosePosition)

	assert.Equal(t, models.OrderTypeTakeProfitMarket, tp.Type)
	assert.Equal(t, models.Sell, tp.Side)
	assert.Equal(t, "2200.55", tp.StopPrice)

	ids := map[string]bool{market.ClientOrderID: true, sl.ClientOrderID: true, tp.ClientOrderID: true}
	assert.Len(t, ids, 3, "each order has its own client id")
	assert.NotNil(t, trade.StopLossOrder)
	assert.NotNil(t, trade.TakeProfitOrder)
}

func TestReducingOrderGetsNoProtection(t *testing.T) {
	ex := newMockExchange(2000)
	r := newTestRouter(ex)
	cycle := newTestCycle(1000, models.Position{Symbol: "ETHUSDT", Amount: 0.5})
	cycle.Account.Leverage["ETHUSDT"] = 1

	_, err := r.Execute(context.Background(), cycle, models.TradeProposal{
		Symbol: "ETHUSDT", Action: models.ActionSell, Quantity: 0.2, StopLoss: floatPtr(2100),
	})
	require.NoError(t, err)
	require.Len(t, ex.orders, 1)
	assert.Equal(t, "CLOSE_1714564800000_1", ex.orders[0].ClientOrderID)
	assert.Empty(t, ex.leverageCalls, "leverage already matches default")
}

func TestLeverageFailureIsNonFatal(t *testing.T) {
	ex := newMockExchange(10)
	ex.leverageErr = errors.New("leverage rejected")
	r := newTestRouter(ex)
	cycle := newTestCycle(1000)

	trade, err := r.Execute(context.Background(), cycle, models.TradeProposal{Symbol: "ADAUSDT", Action: models.ActionBuy, Quantity: 3, Leverage: intPtr(4)})
	require.NoError(t, err)
	assert.Equal(t, 1, trade.LeverageApplied)
	assert.Equal(t, 1, cycle.Account.Leverage["ADAUSDT"])
	assert.Len(t, ex.orders, 1)
}

func TestProtectionFailureKeepsTrade(t *testing.T) {
	ex := newMockExchange(10)
	ex.orderErr[models.OrderTypeStopMarket] = errors.New("would immediately trigger")
	r := newTestRouter(ex)

	trade, err := r.Execute(context.Background(), newTestCycle(1000), models.TradeProposal{
		Symbol: "ADAUSDT", Action: models.ActionBuy, Quantity: 3, StopLoss: floatPtr(9.5), TakeProfit: floatPtr(12),
	})
	require.NoError(t, err)
	assert.Nil(t, trade.StopLossOrder)
	assert.NotNil(t, trade.TakeProfitOrder)
	assert.Len(t, trade.ProtectionErrors, 1)
}

func TestRejectedOrder(t *testing.T) {
	ex := newMockExchange(10)
	ex.orderStatus = "REJECTED"
	r := newTestRouter(ex)

	_, err := r.Execute(context.Background(), newTestCycle(1000), models.TradeProposal{
		Symbol: "ADAUSDT", Action: models.ActionBuy, Quantity: 3, StopLoss: floatPtr(9),
	})
	assert.True(t, errors.Is(err, models.ErrOrderRejected))
	assert.Len(t, ex.orders, 1, "no protection after a rejected order")
}

func TestInstrumentRuleCachedPerCycle(t *testing.T) {
	ex := newMockExchange(10)
	r := newTestRouter(ex)
	cycle := newTestCycle(1000)

	for i := 0; i < 3; i++ {
		_, err := r.Execute(context.Background(), cycle, models.TradeProposal{Symbol: "ADAUSDT", Action: models.ActionBuy, Quantity: 3})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, ex.ruleCalls)

	_, err := r.Execute(context.Background(), newTestCycle(1000), models.TradeProposal{Symbol: "ADAUSDT", Action: models.ActionBuy, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, ex.ruleCalls, "a new cycle fetches rules again")
}

func TestClientIDGenerator(t *testing.T) {
	g := ClientIDGenerator{}
	a := g.Next(TagClose, fixedNow)
	b := g.Next(TagClose, fixedNow)

	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^CLOSE_1714564800000_[0-9A-Za-z]+$`, a)
	assert.LessOrEqual(t, len(a), 36)
}
