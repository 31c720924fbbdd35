package models

import "time"

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite 返回相反的交易方向
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Action 是决策服务给出的操作
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionClose Action = "CLOSE"
)

// OrderType 定义了下单类型
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// Credential 是解密后的API密钥对，只在一次调用链内存活，不落盘。
type Credential struct {
	APIKey    string
	APISecret string
}

// Position 定义了一个非空仓位。Amount > 0 为多头，< 0 为空头。
type Position struct {
	Symbol        string  `json:"symbol"`
	Amount        float64 `json:"signedAmount"`
	EntryPrice    float64 `json:"entryPrice"`
	MarkPrice     float64 `json:"markPrice"`
	UnrealizedPnl float64 `json:"unrealizedPnl"`
	Leverage      int     `json:"leverage"`
	PositionSide  string  `json:"positionSide"`
}

// Balance 定义了一个余额非零的资产
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// AccountContext 是一次账户快照：余额、持仓以及每个交易对当前的杠杆
type AccountContext struct {
	AccountID      string         `json:"accountId"`
	Balances       []Balance      `json:"balances"`
	Positions      []Position     `json:"positions"`
	Leverage       map[string]int `json:"-"` // 包括空仓交易对
	AvailableQuote float64        `json:"-"` // 计价货币可用余额
	FetchedAt      time.Time      `json:"-"`
}

// PositionAmount 返回指定交易对的带符号净持仓，空仓为0。
// 双向持仓模式下 LONG 与 SHORT 分开上报（SHORT 为负数），这里合并为净值。
func (c *AccountContext) PositionAmount(symbol string) float64 {
	if c == nil {
		return 0
	}
	var net float64
	for _, p := range c.Positions {
		if p.Symbol == symbol {
			net += p.Amount
		}
	}
	return net
}

// TradeProposal 是决策服务返回的交易建议，路由只读不写
type TradeProposal struct {
	Symbol     string   `json:"symbol"`
	Action     Action   `json:"action"`
	Quantity   float64  `json:"quantity"`
	Leverage   *int     `json:"leverage,omitempty"`
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
	Reason     string   `json:"reason"`
}

// OrderIntent 是路由根据建议和当前持仓推导出的下单意图
type OrderIntent struct {
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Quantity      float64 `json:"quantity"`
	IsClosing     bool    `json:"isClosing"`
	ReduceOnly    bool    `json:"reduceOnly"`
	ClientOrderID string  `json:"clientOrderId"`
}

// OrderRequest 是发往 /fapi/v1/order 的一次下单
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      string // 市价单使用
	StopPrice     string // 条件单使用
	ClosePosition bool
	ReduceOnly    bool
	ClientOrderID string
}

// InstrumentRule 是交易对的精度规则，只在单个周期内缓存
type InstrumentRule struct {
	Symbol   string  `json:"symbol"`
	StepSize float64 `json:"stepSize"`
	TickSize float64 `json:"tickSize"`
}

// ExecutedTrade 是一笔成功提交的交易及其附带的保护单
type ExecutedTrade struct {
	Intent           OrderIntent `json:"intent"`
	Quantity         string      `json:"quantity"`
	Price            float64     `json:"price"`
	Notional         float64     `json:"notional"`
	Order            *Order      `json:"order"`
	StopLossOrder    *Order      `json:"stopLossOrder,omitempty"`
	TakeProfitOrder  *Order      `json:"takeProfitOrder,omitempty"`
	LeverageApplied  int         `json:"leverageApplied"`
	ProtectionErrors []string    `json:"protectionErrors,omitempty"`
}

// DecisionRequest 是发往决策服务的请求体
type DecisionRequest struct {
	UserQuery string     `json:"userQuery"`
	Balances  []Balance  `json:"balances"`
	Positions []Position `json:"positions"`
	AccountID string     `json:"accountId"`
}

// DecisionResponse 是决策服务的响应体
type DecisionResponse struct {
	Text                 string          `json:"text"`
	TradeRecommendations []TradeProposal `json:"tradeRecommendations"`
}

// Notification 是写入通知存储的一条记录
type Notification struct {
	ID        string      `json:"id"`
	AccountID string      `json:"accountId"`
	Type      string      `json:"type"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// PushMessage 是发往推送服务的消息
type PushMessage struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
}
