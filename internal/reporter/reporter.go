package reporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/egemenkeskn/trader-server/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/zap"
)

// Render 把一次扫描的结果渲染为表格
func Render(s *models.SweepSummary) string {
	var sb strings.Builder

	target := "all"
	if s.Request.AccountID != "" {
		target = s.Request.AccountID
	}
	fmt.Fprintf(&sb, "========== 扫描报告 %s ==========\n", s.ID)
	fmt.Fprintf(&sb, "来源: %s  目标: %s  强制: %t\n", s.Request.Source, target, s.Request.Force)
	fmt.Fprintf(&sb, "开始: %s  耗时: %s\n", s.StartedAt.Format(time.RFC3339), s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	if s.Error != "" {
		fmt.Fprintf(&sb, "扫描中止: %s\n", s.Error)
		return sb.String()
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Account", "Status", "Proposals", "Orders", "Failures", "Duration", "Error"})
	for _, r := range s.Results {
		t.AppendRow(table.Row{r.AccountID, r.Status, r.Proposals, r.Orders, r.Failures, r.Duration.Round(time.Millisecond), truncate(r.Error, 60)})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d accounts", len(s.Results)), "",
		"", totalOrders(s), "", "",
		fmt.Sprintf("success=%d partial=%d failed=%d not_due=%d",
			s.Count(models.StatusSuccess), s.Count(models.StatusPartial), s.Count(models.StatusFailed), s.Count(models.StatusNotDue)),
	})
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	sb.WriteString(t.Render())
	sb.WriteString("\n")
	return sb.String()
}

// LogSummary 在有账户被执行时把报告写入日志，全部未到期时只记一行
func LogSummary(logger *zap.Logger, s *models.SweepSummary) {
	if s.Error == "" && len(s.Results) == s.Count(models.StatusNotDue) {
		logger.Debug("扫描结束，没有到期的账户", zap.String("sweep", s.ID), zap.Int("accounts", len(s.Results)))
		return
	}
	logger.Info("扫描报告\n"+Render(s), zap.String("sweep", s.ID))
}

func totalOrders(s *models.SweepSummary) int {
	n := 0
	for _, r := range s.Results {
		n += r.Orders
	}
	return n
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
