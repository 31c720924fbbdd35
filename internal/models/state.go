package models

import "time"

// ScheduleType 定义了账户的调度方式
type ScheduleType string

const (
	ScheduleInterval ScheduleType = "interval"
	ScheduleDaily    ScheduleType = "daily"
)

// ScheduleState 是单个账户的调度状态
type ScheduleState struct {
	Type            ScheduleType `json:"scheduleType"`
	IntervalMinutes int          `json:"intervalMinutes"`
	DailyTime       string       `json:"dailyTime"` // HH:MM, 固定 UTC+3 民用时间
	LastRunAt       *time.Time   `json:"lastRunAt,omitempty"`
}

// AccountSettings 是设置存储中的账户记录。API密钥以密文形式保存。
type AccountSettings struct {
	AccountID          string        `json:"accountId"`
	EncryptedAPIKey    string        `json:"encryptedApiKey"`
	EncryptedAPISecret string        `json:"encryptedApiSecret"`
	AutomationEnabled  bool          `json:"automationEnabled"`
	Schedule           ScheduleState `json:"schedule"`
	PushToken          string        `json:"pushToken,omitempty"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// CycleTradeRecord 记录一笔拿到交易所订单ID的交易
type CycleTradeRecord struct {
	Symbol     string   `json:"symbol"`
	Action     Action   `json:"action"`
	OrderID    int64    `json:"orderId"`
	Leverage   int      `json:"leverage"`
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
	Quantity   string   `json:"quantity"`
}

// CycleOutcome 累积一个账户在一个周期内的结果，只用于生成一条通知
type CycleOutcome struct {
	Trades    []CycleTradeRecord `json:"trades"`
	ActionLog []string           `json:"actionLog"`
	Narrative string             `json:"narrative"`
}

// AccountStatus 是一个账户在一次扫描中的结果分类
type AccountStatus string

const (
	StatusNotDue   AccountStatus = "not_due"
	StatusNoTrades AccountStatus = "no_trades"
	StatusSuccess  AccountStatus = "success"
	StatusPartial  AccountStatus = "partial"
	StatusFailed   AccountStatus = "failed"
)

// AccountResult 是单个账户任务的结构化结果
type AccountResult struct {
	AccountID string        `json:"accountId"`
	Status    AccountStatus `json:"status"`
	Proposals int           `json:"proposals"`
	Orders    int           `json:"orders"`
	Failures  int           `json:"failures"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// TriggerSource 标识扫描的来源
type TriggerSource string

const (
	TriggerTimer  TriggerSource = "timer"
	TriggerManual TriggerSource = "manual"
)

// SweepRequest 描述一次扫描：全部账户或指定账户，是否跳过调度判断
type SweepRequest struct {
	AccountID string        `json:"accountId,omitempty"`
	Force     bool          `json:"force"`
	Source    TriggerSource `json:"source"`
}

// SweepSummary 汇总一次扫描中每个账户的结果
type SweepSummary struct {
	ID         string          `json:"id"`
	Request    SweepRequest    `json:"request"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Results    []AccountResult `json:"results"`
	Error      string          `json:"error,omitempty"`
}

// Count 返回处于指定状态的账户数
func (s *SweepSummary) Count(status AccountStatus) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}
