package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/egemenkeskn/trader-server/internal/models"

	"github.com/dgraph-io/badger/v3"
)

const (
	accountPrefix      = "account/"
	notificationPrefix = "notification/"
	sweepPrefix        = "sweep/"
)

// BadgerStore is the BadgerDB implementation of the settings, notification
// and sweep repositories.
type BadgerStore struct {
	db *badger.DB
}

var (
	_ SettingsRepository     = (*BadgerStore)(nil)
	_ NotificationRepository = (*BadgerStore)(nil)
	_ SweepRepository        = (*BadgerStore)(nil)
)

// NewBadgerStore opens (or creates) a BadgerDB database at dbPath.
func NewBadgerStore(dbPath string) (*BadgerStore, error) {
	return open(badger.DefaultOptions(dbPath))
}

// NewInMemoryStore opens a BadgerDB database that lives only in memory.
func NewInMemoryStore() (*BadgerStore, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*BadgerStore, error) {
	// Badger's own logging is disabled to keep our app's logs clean.
	// Errors will still be returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func accountKey(id string) []byte {
	return []byte(accountPrefix + id)
}

// SaveAccount stores the record as JSON under account/<id>.
func (s *BadgerStore) SaveAccount(settings *models.AccountSettings) error {
	if settings.AccountID == "" {
		return errors.New("account id is empty")
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(accountKey(settings.AccountID), data)
	})
}

func readAccount(txn *badger.Txn, id string) (*models.AccountSettings, error) {
	item, err := txn.Get(accountKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var settings models.AccountSettings
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &settings)
	})
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// GetAccount loads a single account.
func (s *BadgerStore) GetAccount(accountID string) (*models.AccountSettings, error) {
	var settings *models.AccountSettings
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		settings, err = readAccount(txn, accountID)
		return err
	})
	return settings, err
}

// ListAccounts iterates over the account/ prefix in key order.
func (s *BadgerStore) ListAccounts() ([]models.AccountSettings, error) {
	var accounts []models.AccountSettings
	err := s.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, accountPrefix, false, func(val []byte) (bool, error) {
			var a models.AccountSettings
			if err := json.Unmarshal(val, &a); err != nil {
				return false, err
			}
			accounts = append(accounts, a)
			return true, nil
		})
	})
	return accounts, err
}

// TryStampRun is a serializable read-modify-write. Badger aborts the losing
// transaction of two concurrent stamps with ErrConflict.
func (s *BadgerStore) TryStampRun(accountID string, now time.Time, check func(models.ScheduleState) bool) (bool, error) {
	stamped := false
	err := s.db.Update(func(txn *badger.Txn) error {
		settings, err := readAccount(txn, accountID)
		if err != nil {
			return err
		}
		if !check(settings.Schedule) {
			return nil
		}

		stampedAt := now.UTC()
		settings.Schedule.LastRunAt = &stampedAt
		settings.UpdatedAt = stampedAt
		data, err := json.Marshal(settings)
		if err != nil {
			return err
		}
		if err := txn.Set(accountKey(accountID), data); err != nil {
			return err
		}
		stamped = true
		return nil
	})

	if errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stamped, nil
}

// AppendNotification stores n under notification/<account>/<created-nanos>/<id>.
func (s *BadgerStore) AppendNotification(n *models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%s/%020d/%s", notificationPrefix, n.AccountID, n.CreatedAt.UnixNano(), n.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// ListNotifications returns up to limit records for the account, newest first.
func (s *BadgerStore) ListNotifications(accountID string, limit int) ([]models.Notification, error) {
	var out []models.Notification
	err := s.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, notificationPrefix+accountID+"/", true, func(val []byte) (bool, error) {
			var n models.Notification
			if err := json.Unmarshal(val, &n); err != nil {
				return false, err
			}
			out = append(out, n)
			return limit <= 0 || len(out) < limit, nil
		})
	})
	return out, err
}

// SaveSweep stores the summary under sweep/<started-nanos>/<id>.
func (s *BadgerStore) SaveSweep(summary *models.SweepSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%020d/%s", sweepPrefix, summary.StartedAt.UnixNano(), summary.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// ListSweeps returns up to limit summaries, newest first.
func (s *BadgerStore) ListSweeps(limit int) ([]models.SweepSummary, error) {
	var out []models.SweepSummary
	err := s.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, sweepPrefix, true, func(val []byte) (bool, error) {
			var summary models.SweepSummary
			if err := json.Unmarshal(val, &summary); err != nil {
				return false, err
			}
			out = append(out, summary)
			return limit <= 0 || len(out) < limit, nil
		})
	})
	return out, err
}

// iteratePrefix calls fn with each value under prefix until fn returns false.
func iteratePrefix(txn *badger.Txn, prefix string, reverse bool, fn func(val []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.Reverse = reverse
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := []byte(prefix)
	if reverse {
		seek = append([]byte(prefix), 0xFF)
	}
	for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
		var more bool
		err := it.Item().Value(func(val []byte) error {
			var err error
			more, err = fn(val)
			return err
		})
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// Close gracefully closes the connection to the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
