// Package orchestrator runs trade cycles for every eligible account.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/egemenkeskn/trader-server/internal/account"
	"github.com/egemenkeskn/trader-server/internal/decision"
	"github.com/egemenkeskn/trader-server/internal/models"
	"github.com/egemenkeskn/trader-server/internal/notification"
	"github.com/egemenkeskn/trader-server/internal/persistence"
	"github.com/egemenkeskn/trader-server/internal/router"
	"github.com/egemenkeskn/trader-server/internal/schedule"
	"github.com/egemenkeskn/trader-server/internal/secrets"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TradeExecutor 执行单条交易建议
type TradeExecutor interface {
	Execute(ctx context.Context, c *router.Cycle, p models.TradeProposal) (*models.ExecutedTrade, error)
}

// ContextFetcher 读取账户快照
type ContextFetcher interface {
	FetchContext(ctx context.Context, settings *models.AccountSettings) (*models.AccountContext, models.Credential, error)
	Snapshot(ctx context.Context, accountID string, cred models.Credential) (*models.AccountContext, error)
}

// Deps 是 Orchestrator 的外部依赖
type Deps struct {
	Settings  persistence.SettingsRepository
	Reader    account.AccountReader
	Decider   decision.Decider
	Executor  TradeExecutor
	Notifier  notification.Sink
	Evaluator *schedule.Evaluator
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Orchestrator 负责一次扫描：挑选账户、并发运行每个账户的周期、汇总结果
type Orchestrator struct {
	cfg *models.Config
	Deps
}

// New 创建一个新的 Orchestrator
func New(cfg *models.Config, deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Evaluator == nil {
		deps.Evaluator = schedule.NewEvaluator(cfg.Scheduler.UTCOffsetHours)
	}
	return &Orchestrator{cfg: cfg, Deps: deps}
}

// RunSweep 处理一次扫描请求。缺少主密钥时直接返回 ErrConfiguration，不处理任何账户。
// 单个账户的失败只记录在它自己的结果里。
func (o *Orchestrator) RunSweep(ctx context.Context, req models.SweepRequest) (*models.SweepSummary, error) {
	summary := &models.SweepSummary{
		ID:        uuid.NewString(),
		Request:   req,
		StartedAt: o.Clock().UTC(),
	}
	logger := o.Logger.With(zap.String("sweep", summary.ID), zap.String("source", string(req.Source)))

	fail := func(err error) (*models.SweepSummary, error) {
		summary.Error = err.Error()
		summary.FinishedAt = o.Clock().UTC()
		logger.Error("扫描中止", zap.Error(err))
		return summary, err
	}

	decrypter, err := secrets.NewAESGCM(o.cfg.MasterKey)
	if err != nil {
		return fail(err)
	}
	fetcher := account.NewFetcher(o.Reader, decrypter, o.cfg.Trading.QuoteAsset, o.Clock, o.Logger)

	accounts, err := o.selectAccounts(req)
	if err != nil {
		return fail(err)
	}

	results := make([]models.AccountResult, len(accounts))
	var g errgroup.Group
	g.SetLimit(o.concurrency())
	for i := range accounts {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("账户周期发生panic", zap.String("account", accounts[i].AccountID), zap.Any("panic", r), zap.Stack("stack"))
					results[i] = models.AccountResult{
						AccountID: accounts[i].AccountID,
						Status:    models.StatusFailed,
						Error:     fmt.Sprintf("panic: %v", r),
					}
				}
			}()
			results[i] = o.runAccount(ctx, fetcher, &accounts[i], req, logger)
			return nil
		})
	}
	_ = g.Wait()

	summary.Results = results
	summary.FinishedAt = o.Clock().UTC()
	logger.Info("扫描完成",
		zap.Int("accounts", len(results)),
		zap.Int("success", summary.Count(models.StatusSuccess)),
		zap.Int("partial", summary.Count(models.StatusPartial)),
		zap.Int("failed", summary.Count(models.StatusFailed)),
		zap.Int("not_due", summary.Count(models.StatusNotDue)))
	return summary, nil
}

func (o *Orchestrator) concurrency() int {
	if n := o.cfg.Scheduler.MaxConcurrentAccounts; n > 0 {
		return n
	}
	return 1
}

// selectAccounts 指定账户时只处理该账户（无论是否开启自动化），否则只处理开启了自动化的账户
func (o *Orchestrator) selectAccounts(req models.SweepRequest) ([]models.AccountSettings, error) {
	if req.AccountID != "" {
		acc, err := o.Settings.GetAccount(req.AccountID)
		if err != nil {
			return nil, err
		}
		return []models.AccountSettings{*acc}, nil
	}

	all, err := o.Settings.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("读取账户列表失败: %w", err)
	}
	enabled := make([]models.AccountSettings, 0, len(all))
	for _, acc := range all {
		if acc.AutomationEnabled {
			enabled = append(enabled, acc)
		}
	}
	return enabled, nil
}

// runAccount 先原子地判断并写入 lastRunAt，写入成功后才开始外部调用
func (o *Orchestrator) runAccount(ctx context.Context, fetcher ContextFetcher, settings *models.AccountSettings, req models.SweepRequest, sweepLogger *zap.Logger) models.AccountResult {
	start := o.Clock()
	logger := sweepLogger.With(zap.String("account", settings.AccountID))
	result := models.AccountResult{AccountID: settings.AccountID}

	now := o.Clock()
	check := func(state models.ScheduleState) bool {
		if req.Force {
			return true
		}
		due, err := o.Evaluator.Check(state, now)
		if err != nil {
			logger.Warn("调度配置无效，跳过", zap.Error(err))
			return false
		}
		return due
	}

	stamped, err := o.Settings.TryStampRun(settings.AccountID, now, check)
	if err != nil {
		logger.Error("写入运行时间失败", zap.Error(err))
		result.Status = models.StatusFailed
		result.Error = err.Error()
		result.Duration = o.Clock().Sub(start)
		return result
	}
	if !stamped {
		logger.Debug("账户未到执行时间")
		result.Status = models.StatusNotDue
		result.Duration = o.Clock().Sub(start)
		return result
	}

	result = o.RunCycle(ctx, fetcher, settings, logger)
	result.Duration = o.Clock().Sub(start)
	return result
}

// RunCycle 执行单个账户的一个交易周期。获取快照或调用决策服务失败会中止本周期；
// 单笔交易失败只记录下来，后续建议继续执行。
func (o *Orchestrator) RunCycle(ctx context.Context, fetcher ContextFetcher, settings *models.AccountSettings, logger *zap.Logger) models.AccountResult {
	if logger == nil {
		logger = o.Logger.With(zap.String("account", settings.AccountID))
	}
	result := models.AccountResult{AccountID: settings.AccountID, Status: models.StatusFailed}

	actx, cred, err := fetcher.FetchContext(ctx, settings)
	if err != nil {
		logCycleAbort(logger, "获取账户上下文失败", err)
		result.Error = err.Error()
		return result
	}

	resp, err := o.Decider.Decide(ctx, decisionRequest(o.cfg.Decision.UserQuery, actx))
	if err != nil {
		logger.Error("决策服务调用失败", zap.Error(err))
		result.Error = err.Error()
		return result
	}
	result.Proposals = len(resp.TradeRecommendations)
	logger.Info("收到交易建议", zap.Int("proposals", result.Proposals))

	cycle := router.NewCycle(settings.AccountID, cred, actx)
	outcome := &models.CycleOutcome{Narrative: resp.Text}

	for i, p := range resp.TradeRecommendations {
		trade, err := o.Executor.Execute(ctx, cycle, p)
		if err != nil {
			result.Failures++
			logger.Warn("交易失败", zap.String("symbol", p.Symbol), zap.String("action", string(p.Action)), zap.Error(err))
			outcome.ActionLog = append(outcome.ActionLog, fmt.Sprintf("%s %s failed: %s", p.Action, p.Symbol, failureReason(err)))
			continue
		}

		result.Orders++
		outcome.Trades = append(outcome.Trades, tradeRecord(p, trade))
		outcome.ActionLog = append(outcome.ActionLog, actionLine(p, trade))

		if o.cfg.Trading.RefetchPositionBetweenTrades && i < len(resp.TradeRecommendations)-1 {
			fresh, err := fetcher.Snapshot(ctx, settings.AccountID, cred)
			if err != nil {
				logger.Warn("重新获取持仓失败，沿用上一次快照", zap.Error(err))
				continue
			}
			cycle.Account = fresh
		}
	}

	result.Status = classify(result.Orders, result.Failures)
	if len(outcome.Trades) == 0 {
		return result
	}

	note := notification.TradeNotification(settings.AccountID, outcome)
	if err := o.Notifier.Notify(ctx, note, settings.PushToken); err != nil {
		logger.Error("发送通知失败", zap.Error(err))
	}
	return result
}

func logCycleAbort(logger *zap.Logger, msg string, err error) {
	if errors.Is(err, models.ErrCredentialsMissing) {
		logger.Warn(msg, zap.Error(err))
		return
	}
	logger.Error(msg, zap.Error(err))
}

func decisionRequest(query string, actx *models.AccountContext) models.DecisionRequest {
	req := models.DecisionRequest{
		UserQuery: query,
		Balances:  actx.Balances,
		Positions: actx.Positions,
		AccountID: actx.AccountID,
	}
	if req.Balances == nil {
		req.Balances = []models.Balance{}
	}
	if req.Positions == nil {
		req.Positions = []models.Position{}
	}
	return req
}

func classify(orders, failures int) models.AccountStatus {
	switch {
	case orders == 0 && failures == 0:
		return models.StatusNoTrades
	case orders == 0:
		return models.StatusFailed
	case failures == 0:
		return models.StatusSuccess
	default:
		return models.StatusPartial
	}
}

func tradeRecord(p models.TradeProposal, trade *models.ExecutedTrade) models.CycleTradeRecord {
	return models.CycleTradeRecord{
		Symbol:     p.Symbol,
		Action:     p.Action,
		OrderID:    trade.Order.OrderId,
		Leverage:   trade.LeverageApplied,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Quantity:   trade.Quantity,
	}
}

func actionLine(p models.TradeProposal, trade *models.ExecutedTrade) string {
	line := fmt.Sprintf("%s %s %s @ %s", p.Action, p.Symbol, trade.Quantity, strconv.FormatFloat(trade.Price, 'f', -1, 64))
	if trade.LeverageApplied > 0 {
		line += fmt.Sprintf(" %dx", trade.LeverageApplied)
	}
	if p.StopLoss != nil {
		line += " SL " + strconv.FormatFloat(*p.StopLoss, 'f', -1, 64)
	}
	if p.TakeProfit != nil {
		line += " TP " + strconv.FormatFloat(*p.TakeProfit, 'f', -1, 64)
	}
	for _, e := range trade.ProtectionErrors {
		line += " (" + e + ")"
	}
	return line
}

// failureReason 返回用户可读的失败原因
func failureReason(err error) string {
	var te *models.TradeError
	if errors.As(err, &te) {
		return te.Err.Error()
	}
	return err.Error()
}
