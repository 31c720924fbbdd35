package account

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/egemenkeskn/trader-server/internal/models"
	"github.com/egemenkeskn/trader-server/internal/secrets"

	"go.uber.org/zap"
)

// AccountReader 是获取账户快照所需的交易所能力
type AccountReader interface {
	GetAccount(ctx context.Context, cred models.Credential, now time.Time) (*models.AccountInfo, error)
}

// Fetcher 读取账户的余额和持仓。这是读取账户状态的唯一入口。
type Fetcher struct {
	reader     AccountReader
	decrypter  secrets.Decrypter
	quoteAsset string
	clock      func() time.Time
	logger     *zap.Logger
}

// NewFetcher 创建一个新的 Fetcher
func NewFetcher(reader AccountReader, decrypter secrets.Decrypter, quoteAsset string, clock func() time.Time, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		reader:     reader,
		decrypter:  decrypter,
		quoteAsset: quoteAsset,
		clock:      clock,
		logger:     logger,
	}
}

// Credentials 解密账户的API密钥
func (f *Fetcher) Credentials(settings *models.AccountSettings) (models.Credential, error) {
	return secrets.DecryptCredential(f.decrypter, settings)
}

// FetchContext 解密凭证并拉取账户快照
func (f *Fetcher) FetchContext(ctx context.Context, settings *models.AccountSettings) (*models.AccountContext, models.Credential, error) {
	cred, err := f.Credentials(settings)
	if err != nil {
		return nil, models.Credential{}, err
	}
	actx, err := f.Snapshot(ctx, settings.AccountID, cred)
	if err != nil {
		return nil, models.Credential{}, err
	}
	return actx, cred, nil
}

// Snapshot 使用已解密的凭证拉取账户快照，过滤掉零余额资产和空仓
func (f *Fetcher) Snapshot(ctx context.Context, accountID string, cred models.Credential) (*models.AccountContext, error) {
	now := f.clock()
	info, err := f.reader.GetAccount(ctx, cred, now)
	if err != nil {
		return nil, fmt.Errorf("获取账户快照失败: %w", err)
	}

	actx := Map(info, f.quoteAsset)
	actx.AccountID = accountID
	actx.FetchedAt = now

	f.logger.Debug("账户快照已获取",
		zap.String("account", accountID),
		zap.Int("balances", len(actx.Balances)),
		zap.Int("positions", len(actx.Positions)),
		zap.Float64("available_quote", actx.AvailableQuote))
	return actx, nil
}

// Map 把交易所原始快照转换为 AccountContext
func Map(info *models.AccountInfo, quoteAsset string) *models.AccountContext {
	actx := &models.AccountContext{Leverage: make(map[string]int)}

	quoteFound := false
	for _, a := range info.Assets {
		wallet := parseFloat(a.WalletBalance)
		margin := parseFloat(a.MarginBalance)
		free := parseFloat(a.AvailableBalance)

		if a.Asset == quoteAsset {
			actx.AvailableQuote = free
			quoteFound = true
		}
		if wallet == 0 && margin == 0 {
			continue
		}
		actx.Balances = append(actx.Balances, models.Balance{
			Asset:  a.Asset,
			Free:   free,
			Locked: math.Max(0, wallet-free),
		})
	}
	if !quoteFound {
		actx.AvailableQuote = parseFloat(info.AvailableBalance)
	}

	for _, p := range info.Positions {
		if lev, err := strconv.Atoi(p.Leverage); err == nil {
			actx.Leverage[p.Symbol] = lev
		}

		amount := parseFloat(p.PositionAmt)
		if amount == 0 {
			continue
		}
		mark := parseFloat(p.MarkPrice)
		if mark == 0 {
			if notional := parseFloat(p.Notional); notional != 0 {
				mark = math.Abs(notional / amount)
			}
		}
		actx.Positions = append(actx.Positions, models.Position{
			Symbol:        p.Symbol,
			Amount:        amount,
			EntryPrice:    parseFloat(p.EntryPrice),
			MarkPrice:     mark,
			UnrealizedPnl: parseFloat(p.UnrealizedProfit),
			Leverage:      actx.Leverage[p.Symbol],
			PositionSide:  p.PositionSide,
		})
	}
	return actx
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
