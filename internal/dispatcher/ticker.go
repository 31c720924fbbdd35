package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// nextBoundary 返回 now 之后的下一个整分钟
func nextBoundary(now time.Time) time.Time {
	return now.Truncate(time.Minute).Add(time.Minute)
}

// RunTicker 从下一个整分钟开始，每隔 interval 触发一次全量扫描，直到 ctx 结束或 Stop。
// interval 小于一分钟时按一分钟处理。
func (d *Dispatcher) RunTicker(ctx context.Context, interval time.Duration) error {
	if interval < time.Minute {
		interval = time.Minute
	}

	first := nextBoundary(d.clock())
	timer := time.NewTimer(first.Sub(d.clock()))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopChan:
		return nil
	case <-timer.C:
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	d.logger.Info("定时扫描已启动", zap.Duration("interval", interval), zap.Time("first_tick", first))

	for {
		d.tick()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopChan:
			return nil
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) tick() {
	if err := d.Tick(); err != nil {
		d.logger.Warn("定时扫描被丢弃", zap.Error(err))
	}
}
