package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Param 是一个查询参数键值对
type Param struct {
	Key   string
	Value string
}

// Params 是按插入顺序排列的查询参数。
// 签名覆盖的是序列化后的字符串，所以顺序必须与调用方添加的顺序一致，不能用 url.Values（会按键排序）。
type Params []Param

// Add 追加一个参数并返回自身，便于链式调用
func (p *Params) Add(key, value string) *Params {
	*p = append(*p, Param{Key: key, Value: value})
	return p
}

// Encode 按插入顺序序列化为 k=v&k=v
func (p Params) Encode() string {
	var sb strings.Builder
	for i, kv := range p {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(kv.Key)
		sb.WriteByte('=')
		sb.WriteString(kv.Value)
	}
	return sb.String()
}

// Sign 计算 payload 的 HMAC-SHA256 签名并以十六进制返回
func Sign(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// SignedQuery 在参数末尾追加 timestamp、recvWindow，计算签名并作为最后一个参数 signature 附加。
// 所有需要鉴权的请求都经过这里。
func SignedQuery(params Params, secret string, now time.Time, recvWindow time.Duration) string {
	signed := make(Params, 0, len(params)+3)
	signed = append(signed, params...)
	signed.Add("timestamp", strconv.FormatInt(now.UnixMilli(), 10))
	signed.Add("recvWindow", strconv.FormatInt(recvWindow.Milliseconds(), 10))

	payload := signed.Encode()
	return payload + "&signature=" + Sign(secret, payload)
}
