package models

import (
	"fmt"
	"time"
)

// Config 定义了服务的全部配置参数。启动时构建一次，之后只读。
type Config struct {
	DBPath    string          `json:"db_path"` // BadgerDB 数据目录
	Exchange  ExchangeConfig  `json:"exchange"`
	Trading   TradingConfig   `json:"trading"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Decision  DecisionConfig  `json:"decision"`
	Push      PushConfig      `json:"push"`
	HTTP      HTTPConfig      `json:"http"`
	LogConfig LogConfig       `json:"log"`

	// MasterKey 用于解密存储的API密钥，只从环境变量读取
	MasterKey string `json:"-"`
}

// ExchangeConfig 定义了交易所连接参数
type ExchangeConfig struct {
	BaseURL           string `json:"base_url"`
	TestnetBaseURL    string `json:"testnet_base_url"`
	IsTestnet         bool   `json:"is_testnet"`
	RecvWindowMs      int64  `json:"recv_window_ms"`      // 签名请求的时间容差窗口
	RequestTimeoutSec int    `json:"request_timeout_sec"` // 单次HTTP请求超时
}

// ActiveBaseURL 根据是否使用测试网返回REST基础地址
func (c ExchangeConfig) ActiveBaseURL() string {
	if c.IsTestnet && c.TestnetBaseURL != "" {
		return c.TestnetBaseURL
	}
	return c.BaseURL
}

// RequestTimeout 返回交易所请求超时时间
func (c ExchangeConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// TradingConfig 定义了下单前校验使用的阈值
type TradingConfig struct {
	QuoteAsset                   string   `json:"quote_asset"`                     // 计价货币, e.g. "USDT"
	DefaultLeverage              int      `json:"default_leverage"`                // 建议未给出杠杆时使用
	MinNotional                  float64  `json:"min_notional"`                    // 普通交易对的最小名义价值
	HighLiquidityMinNotional     float64  `json:"high_liquidity_min_notional"`     // 高流动性交易对的最小名义价值
	HighLiquiditySymbols         []string `json:"high_liquidity_symbols"`          // 高流动性白名单
	MaxBalanceFraction           float64  `json:"max_balance_fraction"`            // 开仓名义价值占可用余额的上限
	RefetchPositionBetweenTrades bool     `json:"refetch_position_between_trades"` // 同一周期内每笔成交后重新拉取持仓
}

// IsHighLiquidity 判断交易对是否在高流动性白名单中
func (c TradingConfig) IsHighLiquidity(symbol string) bool {
	for _, s := range c.HighLiquiditySymbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// MinNotionalFor 返回指定交易对适用的最小名义价值
func (c TradingConfig) MinNotionalFor(symbol string) float64 {
	if c.IsHighLiquidity(symbol) {
		return c.HighLiquidityMinNotional
	}
	return c.MinNotional
}

// SchedulerConfig 定义了定时扫描的参数
type SchedulerConfig struct {
	TickIntervalSec       int `json:"tick_interval_sec"`       // 扫描间隔，最小60秒
	UTCOffsetHours        int `json:"utc_offset_hours"`        // 每日调度使用的固定时区偏移
	MaxConcurrentAccounts int `json:"max_concurrent_accounts"` // 单次扫描并发处理的账户数
}

// TickInterval 返回扫描间隔
func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSec) * time.Second
}

// DecisionConfig 定义了外部决策服务的地址
type DecisionConfig struct {
	URL       string `json:"url"`
	Token     string `json:"token,omitempty"`
	UserQuery string `json:"user_query"`
}

// PushConfig 定义了推送通知的投递地址
type PushConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// HTTPConfig 定义了手动触发接口的监听地址
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// AccountInfo 是 /fapi/v2/account 的原始响应
type AccountInfo struct {
	TotalWalletBalance string            `json:"totalWalletBalance"`
	AvailableBalance   string            `json:"availableBalance"`
	Assets             []AccountAsset    `json:"assets"`
	Positions          []AccountPosition `json:"positions"`
}

// AccountAsset 是账户快照中的单个资产
type AccountAsset struct {
	Asset            string `json:"asset"`
	WalletBalance    string `json:"walletBalance"`
	UnrealizedProfit string `json:"unrealizedProfit"`
	MarginBalance    string `json:"marginBalance"`
	AvailableBalance string `json:"availableBalance"`
}

// AccountPosition 是账户快照中的单个持仓条目，包含空仓的交易对
type AccountPosition struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnrealizedProfit string `json:"unrealizedProfit"`
	Leverage         string `json:"leverage"`
	PositionSide     string `json:"positionSide"`
	Notional         string `json:"notional"`
}

// Order 定义了下单接口返回的订单信息
type Order struct {
	Symbol        string `json:"symbol"`
	OrderId       int64  `json:"orderId"`
	ClientOrderId string `json:"clientOrderId"`
	Price         string `json:"price"`
	AvgPrice      string `json:"avgPrice"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	StopPrice     string `json:"stopPrice"`
	ReduceOnly    bool   `json:"reduceOnly"`
	ClosePosition bool   `json:"closePosition"`
	UpdateTime    int64  `json:"updateTime"`
}

// Accepted 判断订单是否被交易所接受。
// 期货市价单返回时常为 NEW，成交稍后结算，因此只排除终止状态。
func (o *Order) Accepted() bool {
	if o == nil || o.OrderId == 0 {
		return false
	}
	switch o.Status {
	case "REJECTED", "EXPIRED", "CANCELED":
		return false
	}
	return true
}

// Error 定义了币安API返回的错误信息结构
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Error 方法使得 BinanceError 实现了 error 接口
func (e *Error) Error() string {
	return fmt.Sprintf("API Error: code=%d, msg=%s", e.Code, e.Msg)
}
