package exchange

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsEncodeKeepsInsertionOrder(t *testing.T) {
	var p Params
	p.Add("symbol", "BTCUSDT").Add("side", "BUY").Add("type", "MARKET").Add("quantity", "0.003")

	assert.Equal(t, "symbol=BTCUSDT&side=BUY&type=MARKET&quantity=0.003", p.Encode())

	var reversed Params
	reversed.Add("quantity", "0.003").Add("type", "MARKET").Add("side", "BUY").Add("symbol", "BTCUSDT")
	assert.Equal(t, "quantity=0.003&type=MARKET&side=BUY&symbol=BTCUSDT", reversed.Encode())
}

func TestSignKnownVector(t *testing.T) {
	// Binance API 文档中的 HMAC SHA256 示例
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"

	assert.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", Sign(secret, payload))
}

func TestSignedQuery(t *testing.T) {
	var p Params
	p.Add("symbol", "ETHUSDT").Add("leverage", "3")
	now := time.UnixMilli(1700000000123)

	q := SignedQuery(p, "secret", now, 5*time.Second)

	idx := strings.LastIndex(q, "&signature=")
	require.Greater(t, idx, 0)
	payload := q[:idx]
	assert.Equal(t, "symbol=ETHUSDT&leverage=3&timestamp=1700000000123&recvWindow=5000", payload)
	assert.Equal(t, Sign("secret", payload), q[idx+len("&signature="):])

	// 原参数切片不被修改
	assert.Len(t, p, 2)
}

func TestSignedQueryDiffersByOrder(t *testing.T) {
	now := time.UnixMilli(1)
	var a, b Params
	a.Add("x", "1").Add("y", "2")
	b.Add("y", "2").Add("x", "1")
	assert.NotEqual(t, SignedQuery(a, "k", now, time.Second), SignedQuery(b, "k", now, time.Second))
}
