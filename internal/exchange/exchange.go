package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/egemenkeskn/trader-server/internal/models"
)

// Exchange 定义了路由和账户快照所需的交易所操作。
// 鉴权调用显式接收凭证和当前时间，不在内部读取时钟。
type Exchange interface {
	GetAccount(ctx context.Context, cred models.Credential, now time.Time) (*models.AccountInfo, error)
	ChangeLeverage(ctx context.Context, cred models.Credential, symbol string, leverage int, now time.Time) error
	PlaceOrder(ctx context.Context, cred models.Credential, req models.OrderRequest, now time.Time) (*models.Order, error)
	GetInstrumentRule(ctx context.Context, symbol string) (*models.InstrumentRule, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// RequestError 表示交易所返回了非2xx响应，保留原始响应体
type RequestError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
	API        *models.Error // 可解析时的 {code,msg}
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("exchange request %s %s failed: status=%d body=%s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

func (e *RequestError) Unwrap() error {
	if e.API == nil {
		return nil
	}
	return e.API
}
