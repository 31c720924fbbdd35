package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/egemenkeskn/trader-server/internal/api"
	"github.com/egemenkeskn/trader-server/internal/config"
	"github.com/egemenkeskn/trader-server/internal/decision"
	"github.com/egemenkeskn/trader-server/internal/dispatcher"
	"github.com/egemenkeskn/trader-server/internal/exchange"
	"github.com/egemenkeskn/trader-server/internal/logger"
	"github.com/egemenkeskn/trader-server/internal/models"
	"github.com/egemenkeskn/trader-server/internal/notification"
	"github.com/egemenkeskn/trader-server/internal/orchestrator"
	"github.com/egemenkeskn/trader-server/internal/persistence"
	"github.com/egemenkeskn/trader-server/internal/reporter"
	"github.com/egemenkeskn/trader-server/internal/router"
	"github.com/egemenkeskn/trader-server/internal/schedule"
	"github.com/egemenkeskn/trader-server/internal/secrets"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// accountFlags 是 -mode=account 使用的参数
type accountFlags struct {
	id           *string
	apiKey       *string
	apiSecret    *string
	scheduleType *string
	interval     *int
	dailyTime    *string
	automation   *bool
	pushToken    *string
}

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file (empty to use defaults)")
	mode := flag.String("mode", "serve", "running mode: serve, once or account")
	force := flag.Bool("force", false, "once mode: skip the schedule check")
	acc := accountFlags{
		id:           flag.String("account", "", "account id (once: limit the sweep to this account)"),
		apiKey:       flag.String("api-key", "", "account mode: exchange API key"),
		apiSecret:    flag.String("api-secret", "", "account mode: exchange API secret"),
		scheduleType: flag.String("schedule", "interval", "account mode: interval or daily"),
		interval:     flag.Int("interval", 60, "account mode: interval in minutes"),
		dailyTime:    flag.String("daily-time", "09:00", "account mode: daily run time HH:MM (UTC+3)"),
		automation:   flag.Bool("automation", true, "account mode: enable scheduled trading"),
		pushToken:    flag.String("push-token", "", "account mode: push notification token"),
	}
	flag.Parse()

	// --- 初始化日志 (提前) ---
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	// --- 加载 JSON 配置 ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	// --- 使用文件中的配置重新初始化日志 ---
	log := logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	store, err := persistence.NewBadgerStore(cfg.DBPath)
	if err != nil {
		logger.S().Fatalf("无法打开数据库 %s: %v", cfg.DBPath, err)
	}
	defer store.Close()

	switch *mode {
	case "serve":
		runServeMode(cfg, store, log)
	case "once":
		runOnceMode(cfg, store, log, *acc.id, *force)
	case "account":
		if err := runAccountMode(cfg, store, acc); err != nil {
			logger.S().Fatalf("保存账户失败: %v", err)
		}
	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 'serve'、'once' 或 'account'。", *mode)
	}
}

// buildOrchestrator 组装一次扫描所需的全部组件
func buildOrchestrator(ctx context.Context, cfg *models.Config, store *persistence.BadgerStore, log *zap.Logger) *orchestrator.Orchestrator {
	if cfg.Exchange.IsTestnet {
		logger.S().Info("正在使用币安测试网...")
	} else {
		logger.S().Info("正在使用币安生产网...")
	}
	ex := exchange.NewLiveExchange(cfg.Exchange, log)

	// 签名请求依赖时间戳，按服务器时间校准本地时钟
	var offset time.Duration
	syncCtx, cancel := context.WithTimeout(ctx, cfg.Exchange.RequestTimeout())
	defer cancel()
	if o, err := ex.ServerTimeOffset(syncCtx); err != nil {
		logger.S().Warnf("无法同步服务器时间，使用本地时钟: %v", err)
	} else {
		offset = o
	}
	clock := func() time.Time { return time.Now().Add(offset) }

	if cfg.MasterKey == "" {
		logger.S().Warn("TRADER_MASTER_KEY 未设置，所有扫描都会被中止。")
	}

	return orchestrator.New(cfg, orchestrator.Deps{
		Settings:  store,
		Reader:    ex,
		Decider:   decision.NewClient(cfg.Decision, log),
		Executor:  router.New(ex, cfg.Trading, router.ClientIDGenerator{}, clock, log),
		Notifier:  notification.NewNotifier(store, cfg.Push, clock, log),
		Evaluator: schedule.NewEvaluator(cfg.Scheduler.UTCOffsetHours),
		Clock:     clock,
		Logger:    log,
	})
}

// runServeMode 运行定时扫描、手动触发接口，直到收到退出信号
func runServeMode(cfg *models.Config, store *persistence.BadgerStore, log *zap.Logger) {
	logger.S().Info("--- 启动服务模式 ---")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch := buildOrchestrator(ctx, cfg, store, log)
	d := dispatcher.New(orch, store, log)
	// 进行中的扫描不随退出信号取消
	d.Start(context.Background())

	server := api.NewServer(cfg.HTTP.Addr, api.NewMux(d, time.Now(), log), log)
	if err := server.Start(); err != nil {
		logger.S().Fatalf("HTTP服务启动失败: %v", err)
	}

	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		if err := d.RunTicker(ctx, cfg.Scheduler.TickInterval()); err != nil && !errors.Is(err, context.Canceled) {
			logger.S().Errorf("定时器异常退出: %v", err)
		}
	}()

	// 等待中断信号以实现优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.S().Info("收到退出信号，正在停止...")

	cancel()
	<-tickerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.S().Warnf("HTTP服务关闭失败: %v", err)
	}
	d.Stop()
	logger.S().Info("服务已停止。")
}

// runOnceMode 在前台运行一次扫描并打印报告
func runOnceMode(cfg *models.Config, store *persistence.BadgerStore, log *zap.Logger, accountID string, force bool) {
	logger.S().Info("--- 单次扫描模式 ---")
	ctx := context.Background()
	orch := buildOrchestrator(ctx, cfg, store, log)

	summary, err := orch.RunSweep(ctx, models.SweepRequest{AccountID: accountID, Force: force, Source: models.TriggerManual})
	if summary != nil {
		fmt.Print(reporter.Render(summary))
		if saveErr := store.SaveSweep(summary); saveErr != nil {
			logger.S().Errorf("保存扫描记录失败: %v", saveErr)
		}
	}
	if err != nil {
		logger.S().Fatalf("扫描中止: %v", err)
	}
}

// runAccountMode 新增或更新一个账户。API密钥用主密钥加密后保存。
func runAccountMode(cfg *models.Config, store *persistence.BadgerStore, f accountFlags) error {
	if *f.id == "" {
		return errors.New("-account 不能为空")
	}
	enc, err := secrets.NewAESGCM(cfg.MasterKey)
	if err != nil {
		return err
	}

	settings, err := store.GetAccount(*f.id)
	if errors.Is(err, models.ErrAccountNotFound) {
		settings = &models.AccountSettings{AccountID: *f.id}
	} else if err != nil {
		return err
	}

	if *f.apiKey != "" || *f.apiSecret != "" {
		if *f.apiKey == "" || *f.apiSecret == "" {
			return errors.New("-api-key 和 -api-secret 必须同时提供")
		}
		if settings.EncryptedAPIKey, err = enc.Encrypt(*f.apiKey); err != nil {
			return err
		}
		if settings.EncryptedAPISecret, err = enc.Encrypt(*f.apiSecret); err != nil {
			return err
		}
	}

	settings.AutomationEnabled = *f.automation
	settings.Schedule.Type = models.ScheduleType(*f.scheduleType)
	settings.Schedule.IntervalMinutes = *f.interval
	settings.Schedule.DailyTime = *f.dailyTime
	if *f.pushToken != "" {
		settings.PushToken = *f.pushToken
	}

	// 保存前校验调度配置
	if _, err := schedule.NewEvaluator(cfg.Scheduler.UTCOffsetHours).Check(settings.Schedule, time.Now()); err != nil {
		return err
	}
	settings.UpdatedAt = time.Now().UTC()

	if err := store.SaveAccount(settings); err != nil {
		return err
	}
	logger.S().Infof("账户 %s 已保存 (automation=%t, schedule=%s)", settings.AccountID, settings.AutomationEnabled, settings.Schedule.Type)
	return nil
}
