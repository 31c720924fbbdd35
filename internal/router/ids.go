package router

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
)

const (
	TagOpen       = "OPEN"
	TagClose      = "CLOSE"
	TagStopLoss   = "SL"
	TagTakeProfit = "TP"
)

// IDGenerator 生成 clientOrderId
type IDGenerator interface {
	Next(tag string, now time.Time) string
}

// ClientIDGenerator 生成 TAG_毫秒时间戳_随机后缀 格式的ID，长度不超过币安的36字符限制
type ClientIDGenerator struct{}

func (ClientIDGenerator) Next(tag string, now time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("%s_%d_%s", tag, now.UnixMilli(), base62.EncodeToString(u[:6]))
}
