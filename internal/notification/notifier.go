// Package notification records user-facing notifications and delivers
// optional push messages.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/egemenkeskn/trader-server/internal/models"
	"github.com/egemenkeskn/trader-server/internal/persistence"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TypeAutoTrade is the record type written after an automated cycle placed orders.
const TypeAutoTrade = "auto_trade"

// maxPushBody is the push body limit in characters.
const maxPushBody = 178

// Sink 接收一条通知
type Sink interface {
	Notify(ctx context.Context, n models.Notification, pushToken string) error
}

// Notifier 先写通知记录，再按需投递推送
type Notifier struct {
	repo       persistence.NotificationRepository
	push       models.PushConfig
	httpClient *http.Client
	clock      func() time.Time
	logger     *zap.Logger
}

// NewNotifier 创建一个新的 Notifier
func NewNotifier(repo persistence.NotificationRepository, push models.PushConfig, clock func() time.Time, logger *zap.Logger) *Notifier {
	return &Notifier{
		repo:       repo,
		push:       push,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clock:      clock,
		logger:     logger,
	}
}

// Notify 持久化记录。推送失败只记录日志，记录已经写入。
func (n *Notifier) Notify(ctx context.Context, note models.Notification, pushToken string) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = n.clock().UTC()
	}
	if err := n.repo.AppendNotification(&note); err != nil {
		return fmt.Errorf("写入通知记录失败: %w", err)
	}

	if !n.push.Enabled || pushToken == "" {
		return nil
	}
	msg := models.PushMessage{To: pushToken, Title: note.Title, Body: PushBody(note.Message)}
	if err := n.sendPush(ctx, msg); err != nil {
		n.logger.Warn("推送通知失败",
			zap.String("account", note.AccountID),
			zap.String("notification", note.ID),
			zap.Error(err))
	}
	return nil
}

func (n *Notifier) sendPush(ctx context.Context, msg models.PushMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.push.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("push status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// PushBody returns the first maxPushBody characters of message, trimmed.
func PushBody(message string) string {
	runes := []rune(strings.TrimSpace(message))
	if len(runes) > maxPushBody {
		runes = runes[:maxPushBody]
	}
	return strings.TrimSpace(string(runes))
}

// TradeNotification 把一个周期的结果汇总成一条通知
func TradeNotification(accountID string, outcome *models.CycleOutcome) models.Notification {
	var sb strings.Builder
	for _, line := range outcome.ActionLog {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if outcome.Narrative != "" {
		sb.WriteString("\n")
		sb.WriteString(outcome.Narrative)
	}

	return models.Notification{
		AccountID: accountID,
		Type:      TypeAutoTrade,
		Title:     fmt.Sprintf("Auto trade executed (%d orders)", len(outcome.Trades)),
		Message:   strings.TrimSpace(sb.String()),
		Data:      outcome.Trades,
	}
}
