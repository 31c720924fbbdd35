package persistence

import (
	"time"

	"github.com/egemenkeskn/trader-server/internal/models"
)

// SettingsRepository is the account settings store.
type SettingsRepository interface {
	// SaveAccount inserts or replaces an account record.
	SaveAccount(settings *models.AccountSettings) error

	// GetAccount returns models.ErrAccountNotFound for an unknown id.
	GetAccount(accountID string) (*models.AccountSettings, error)

	// ListAccounts returns every stored account.
	ListAccounts() ([]models.AccountSettings, error)

	// TryStampRun re-reads the account's schedule and, if check passes, writes
	// lastRunAt = now in the same transaction. It reports whether this caller
	// won the stamp. A concurrent stamp of the same account makes it return false.
	TryStampRun(accountID string, now time.Time, check func(models.ScheduleState) bool) (bool, error)
}

// NotificationRepository persists user-facing notification records.
type NotificationRepository interface {
	AppendNotification(n *models.Notification) error
	ListNotifications(accountID string, limit int) ([]models.Notification, error)
}

// SweepRepository keeps an audit trail of sweep summaries.
type SweepRepository interface {
	SaveSweep(summary *models.SweepSummary) error
	ListSweeps(limit int) ([]models.SweepSummary, error)
}
