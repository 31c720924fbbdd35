// Package decision is the HTTP client of the external decision service.
package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/egemenkeskn/trader-server/internal/models"

	"go.uber.org/zap"
)

// Decider 根据账户状态给出交易建议
type Decider interface {
	Decide(ctx context.Context, req models.DecisionRequest) (*models.DecisionResponse, error)
}

// Client 调用决策服务。决策调用可能很慢，这里不设置超时，由 ctx 控制。
type Client struct {
	url        string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient 创建一个新的决策服务客户端
func NewClient(cfg models.DecisionConfig, logger *zap.Logger) *Client {
	return &Client{
		url:        cfg.URL,
		token:      cfg.Token,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Decide POST 账户快照并解析建议列表。非2xx状态码返回 ErrDecisionService。
func (c *Client) Decide(ctx context.Context, req models.DecisionRequest) (*models.DecisionResponse, error) {
	if c.url == "" {
		return nil, fmt.Errorf("%w: decision url is not configured", models.ErrConfiguration)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecisionService, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应失败: %v", models.ErrDecisionService, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("决策服务返回错误",
			zap.String("account", req.AccountID),
			zap.Int("status_code", resp.StatusCode),
			zap.String("raw_response", string(respBody)))
		return nil, fmt.Errorf("%w: status %d", models.ErrDecisionService, resp.StatusCode)
	}

	var out models.DecisionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: 解析响应失败: %v", models.ErrDecisionService, err)
	}
	return &out, nil
}
