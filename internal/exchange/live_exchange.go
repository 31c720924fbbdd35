package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/egemenkeskn/trader-server/internal/models"

	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"
)

// LiveExchange 实现了 Exchange 接口，用于与币安U本位合约交互。
// 鉴权请求走自己的签名流程，公共行情数据通过 go-binance 客户端获取。
type LiveExchange struct {
	baseURL    string
	recvWindow time.Duration
	httpClient *http.Client
	market     *futures.Client
	logger     *zap.Logger
}

// NewLiveExchange 创建一个新的 LiveExchange 实例。一个实例可被所有账户共享，凭证按调用传入。
func NewLiveExchange(cfg models.ExchangeConfig, logger *zap.Logger) *LiveExchange {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}
	baseURL := strings.TrimRight(cfg.ActiveBaseURL(), "/")

	market := futures.NewClient("", "") // 公共接口不需要API Key
	market.BaseURL = baseURL
	market.HTTPClient = httpClient

	return &LiveExchange{
		baseURL:    baseURL,
		recvWindow: time.Duration(cfg.RecvWindowMs) * time.Millisecond,
		httpClient: httpClient,
		market:     market,
		logger:     logger,
	}
}

// doRequest 发送请求。cred 不为空时对参数签名并附加 X-MBX-APIKEY 头。
func (e *LiveExchange) doRequest(ctx context.Context, method, endpoint string, params Params, cred *models.Credential, now time.Time) ([]byte, error) {
	fullURL := e.baseURL + endpoint

	var encodedParams string
	if cred != nil {
		encodedParams = SignedQuery(params, cred.APISecret, now, e.recvWindow)
	} else {
		encodedParams = params.Encode()
	}

	var req *http.Request
	var err error
	if method == http.MethodGet || method == http.MethodDelete {
		finalURL := fullURL
		if encodedParams != "" {
			finalURL = fullURL + "?" + encodedParams
		}
		req, err = http.NewRequestWithContext(ctx, method, finalURL, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, fullURL, strings.NewReader(encodedParams))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	if cred != nil {
		req.Header.Set("X-MBX-APIKEY", cred.APIKey)
	}
	e.logger.Debug("发送交易所请求", zap.String("method", method), zap.String("endpoint", endpoint))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("执行请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	var apiErr models.Error
	parsed := json.Unmarshal(body, &apiErr) == nil && apiErr.Code != 0

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (parsed && apiErr.Code < 0) {
		reqErr := &RequestError{
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
		if parsed {
			reqErr.API = &apiErr
		}
		return body, reqErr
	}

	return body, nil
}

// --- Exchange 接口实现 ---

// GetAccount 获取账户快照（余额和全部交易对的持仓条目）
func (e *LiveExchange) GetAccount(ctx context.Context, cred models.Credential, now time.Time) (*models.AccountInfo, error) {
	data, err := e.doRequest(ctx, http.MethodGet, "/fapi/v2/account", nil, &cred, now)
	if err != nil {
		return nil, err
	}

	var accInfo models.AccountInfo
	if err := json.Unmarshal(data, &accInfo); err != nil {
		return nil, fmt.Errorf("解析账户信息失败: %w", err)
	}
	return &accInfo, nil
}

// ChangeLeverage 设置交易对杠杆
func (e *LiveExchange) ChangeLeverage(ctx context.Context, cred models.Credential, symbol string, leverage int, now time.Time) error {
	var params Params
	params.Add("symbol", symbol).Add("leverage", strconv.Itoa(leverage))
	_, err := e.doRequest(ctx, http.MethodPost, "/fapi/v1/leverage", params, &cred, now)
	return err
}

// PlaceOrder 下单。参数顺序固定，市价单与条件单共用。
func (e *LiveExchange) PlaceOrder(ctx context.Context, cred models.Credential, req models.OrderRequest, now time.Time) (*models.Order, error) {
	var params Params
	params.Add("symbol", req.Symbol).Add("side", string(req.Side)).Add("type", string(req.Type))
	if req.Quantity != "" {
		params.Add("quantity", req.Quantity)
	}
	if req.StopPrice != "" {
		params.Add("stopPrice", req.StopPrice)
	}
	if req.ClosePosition {
		params.Add("closePosition", "true")
	}
	if req.ReduceOnly {
		params.Add("reduceOnly", "true")
	}
	if req.ClientOrderID != "" {
		params.Add("newClientOrderId", req.ClientOrderID)
	}

	data, err := e.doRequest(ctx, http.MethodPost, "/fapi/v1/order", params, &cred, now)
	if err != nil {
		e.logger.Error("下单请求失败，交易所返回错误",
			zap.String("symbol", req.Symbol),
			zap.String("type", string(req.Type)),
			zap.Error(err),
			zap.String("raw_response", string(data)))
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("解析订单响应失败: %w", err)
	}
	return &order, nil
}

// GetInstrumentRule 获取交易对的数量步长和价格精度
func (e *LiveExchange) GetInstrumentRule(ctx context.Context, symbol string) (*models.InstrumentRule, error) {
	info, err := e.market.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取交易规则失败: %w", err)
	}

	for i := range info.Symbols {
		s := &info.Symbols[i]
		if s.Symbol != symbol {
			continue
		}
		rule := &models.InstrumentRule{Symbol: symbol}
		if lot := s.LotSizeFilter(); lot != nil {
			rule.StepSize, _ = strconv.ParseFloat(lot.StepSize, 64)
		}
		if pf := s.PriceFilter(); pf != nil {
			rule.TickSize, _ = strconv.ParseFloat(pf.TickSize, 64)
		}
		if rule.StepSize <= 0 || rule.TickSize <= 0 {
			return nil, fmt.Errorf("交易对 %s 缺少 LOT_SIZE 或 PRICE_FILTER", symbol)
		}
		return rule, nil
	}

	return nil, fmt.Errorf("未找到交易对 %s 的信息", symbol)
}

// GetPrice 获取指定交易对的当前价格
func (e *LiveExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := e.market.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("获取 %s 价格失败: %w", symbol, err)
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return strconv.ParseFloat(p.Price, 64)
		}
	}
	return 0, fmt.Errorf("未返回 %s 的价格", symbol)
}

// ServerTimeOffset 返回交易所服务器时间与本地时间的偏移
func (e *LiveExchange) ServerTimeOffset(ctx context.Context) (time.Duration, error) {
	serverMs, err := e.market.NewServerTimeService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("获取服务器时间失败: %w", err)
	}
	offset := time.Duration(serverMs-time.Now().UnixMilli()) * time.Millisecond
	e.logger.Info("与币安服务器时间同步完成", zap.Duration("offset", offset))
	return offset, nil
}
