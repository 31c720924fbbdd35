package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/egemenkeskn/trader-server/internal/models"

	"github.com/kelseyhightower/envconfig"
)

// envOverrides 是从环境变量读取的敏感参数和部署相关地址
type envOverrides struct {
	MasterKey       string `envconfig:"MASTER_KEY"`
	DecisionURL     string `envconfig:"DECISION_URL"`
	DecisionToken   string `envconfig:"DECISION_TOKEN"`
	ExchangeBaseURL string `envconfig:"EXCHANGE_BASE_URL"`
	HTTPAddr        string `envconfig:"HTTP_ADDR"`
	DBPath          string `envconfig:"DB_PATH"`
	PushURL         string `envconfig:"PUSH_URL"`
}

// Default 返回带默认值的配置
func Default() models.Config {
	return models.Config{
		DBPath: "data/trader",
		Exchange: models.ExchangeConfig{
			BaseURL:           "https://fapi.binance.com",
			TestnetBaseURL:    "https://testnet.binancefuture.com",
			RecvWindowMs:      5000,
			RequestTimeoutSec: 10,
		},
		Trading: models.TradingConfig{
			QuoteAsset:                   "USDT",
			DefaultLeverage:              1,
			MinNotional:                  20,
			HighLiquidityMinNotional:     5,
			HighLiquiditySymbols:         []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT"},
			MaxBalanceFraction:           0.9,
			RefetchPositionBetweenTrades: true,
		},
		Scheduler: models.SchedulerConfig{
			TickIntervalSec:       60,
			UTCOffsetHours:        3,
			MaxConcurrentAccounts: 8,
		},
		Decision: models.DecisionConfig{
			UserQuery: "Analyze my current portfolio and recommend trades.",
		},
		Push: models.PushConfig{
			URL: "https://exp.host/--/api/v2/push/send",
		},
		HTTP: models.HTTPConfig{Addr: ":8080"},
		LogConfig: models.LogConfig{
			Level:  "info",
			Output: "console",
		},
	}
}

// LoadConfig 从指定路径加载JSON配置文件，再用 TRADER_* 环境变量覆盖。
// path 为空时只使用默认值和环境变量。
func LoadConfig(path string) (*models.Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	var env envOverrides
	if err := envconfig.Process("TRADER", &env); err != nil {
		return nil, fmt.Errorf("读取环境变量失败: %w", err)
	}
	applyOverrides(&cfg, env)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyOverrides(cfg *models.Config, env envOverrides) {
	cfg.MasterKey = env.MasterKey
	if env.DecisionURL != "" {
		cfg.Decision.URL = env.DecisionURL
	}
	if env.DecisionToken != "" {
		cfg.Decision.Token = env.DecisionToken
	}
	if env.ExchangeBaseURL != "" {
		cfg.Exchange.BaseURL = env.ExchangeBaseURL
		cfg.Exchange.IsTestnet = false
	}
	if env.HTTPAddr != "" {
		cfg.HTTP.Addr = env.HTTPAddr
	}
	if env.DBPath != "" {
		cfg.DBPath = env.DBPath
	}
	if env.PushURL != "" {
		cfg.Push.URL = env.PushURL
	}
}

// Validate 检查配置的结构合法性。主密钥缺失不在这里报错，由每次扫描开始时检查。
func Validate(cfg *models.Config) error {
	if cfg.Exchange.ActiveBaseURL() == "" {
		return fmt.Errorf("%w: exchange base_url is empty", models.ErrConfiguration)
	}
	if cfg.Exchange.RecvWindowMs <= 0 || cfg.Exchange.RecvWindowMs > 60000 {
		return fmt.Errorf("%w: recv_window_ms must be in (0, 60000]", models.ErrConfiguration)
	}
	if cfg.Trading.QuoteAsset == "" {
		return fmt.Errorf("%w: trading.quote_asset is empty", models.ErrConfiguration)
	}
	if cfg.Trading.MinNotional < 0 || cfg.Trading.HighLiquidityMinNotional < 0 {
		return fmt.Errorf("%w: min notional must not be negative", models.ErrConfiguration)
	}
	if cfg.Trading.MaxBalanceFraction <= 0 || cfg.Trading.MaxBalanceFraction > 1 {
		return fmt.Errorf("%w: trading.max_balance_fraction must be in (0, 1]", models.ErrConfiguration)
	}
	if cfg.Trading.DefaultLeverage < 1 {
		return fmt.Errorf("%w: trading.default_leverage must be >= 1", models.ErrConfiguration)
	}
	if cfg.Scheduler.TickIntervalSec < 60 {
		return fmt.Errorf("%w: scheduler.tick_interval_sec must be >= 60", models.ErrConfiguration)
	}
	if cfg.Scheduler.MaxConcurrentAccounts < 1 {
		return fmt.Errorf("%w: scheduler.max_concurrent_accounts must be >= 1", models.ErrConfiguration)
	}
	return nil
}
