package decision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/egemenkeskn/trader-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecide(t *testing.T) {
	var got models.DecisionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"text":"market looks bullish","tradeRecommendations":[
			{"symbol":"BTCUSDT","action":"BUY","quantity":0.01,"leverage":5,"stopLoss":58000,"reason":"breakout"}]}`))
	}))
	defer srv.Close()

	c := NewClient(models.DecisionConfig{URL: srv.URL, Token: "tok"}, zap.NewNop())
	resp, err := c.Decide(context.Background(), models.DecisionRequest{
		UserQuery: "analyze",
		AccountID: "acc",
		Balances:  []models.Balance{{Asset: "USDT", Free: 100}},
		Positions: []models.Position{{Symbol: "ETHUSDT", Amount: -1}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "acc", got.AccountID)
	assert.Equal(t, -1.0, got.Positions[0].Amount)

	assert.Equal(t, "market looks bullish", resp.Text)
	require.Len(t, resp.TradeRecommendations, 1)
	p := resp.TradeRecommendations[0]
	assert.Equal(t, models.ActionBuy, p.Action)
	require.NotNil(t, p.Leverage)
	assert.Equal(t, 5, *p.Leverage)
	require.NotNil(t, p.StopLoss)
	assert.Nil(t, p.TakeProfit)
}

func TestDecideNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream down`))
	}))
	defer srv.Close()

	c := NewClient(models.DecisionConfig{URL: srv.URL}, zap.NewNop())
	_, err := c.Decide(context.Background(), models.DecisionRequest{AccountID: "acc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDecisionService))
}

func TestDecideWithoutURL(t *testing.T) {
	c := NewClient(models.DecisionConfig{}, zap.NewNop())
	_, err := c.Decide(context.Background(), models.DecisionRequest{})
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}
