package persistence

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/egemenkeskn/trader-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAccountRoundTrip(t *testing.T) {
	store := newTestStore(t)

	acc := &models.AccountSettings{
		AccountID:          "acc-1",
		EncryptedAPIKey:    "ek",
		EncryptedAPISecret: "es",
		AutomationEnabled:  true,
		Schedule:           models.ScheduleState{Type: models.ScheduleInterval, IntervalMinutes: 30},
		PushToken:          "ExponentPushToken[x]",
	}
	require.NoError(t, store.SaveAccount(acc))
	require.NoError(t, store.SaveAccount(&models.AccountSettings{AccountID: "acc-2"}))

	got, err := store.GetAccount("acc-1")
	require.NoError(t, err)
	assert.Equal(t, acc.EncryptedAPIKey, got.EncryptedAPIKey)
	assert.Equal(t, 30, got.Schedule.IntervalMinutes)
	assert.Nil(t, got.Schedule.LastRunAt)

	all, err := store.ListAccounts()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "acc-1", all[0].AccountID)

	_, err = store.GetAccount("missing")
	assert.True(t, errors.Is(err, models.ErrAccountNotFound))
}

func TestTryStampRun(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveAccount(&models.AccountSettings{
		AccountID: "acc",
		Schedule:  models.ScheduleState{Type: models.ScheduleInterval, IntervalMinutes: 60},
	}))

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	neverRan := func(s models.ScheduleState) bool { return s.LastRunAt == nil }

	ok, err := store.TryStampRun("acc", now, neverRan)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetAccount("acc")
	require.NoError(t, err)
	require.NotNil(t, got.Schedule.LastRunAt)
	assert.True(t, now.Equal(*got.Schedule.LastRunAt))

	ok, err = store.TryStampRun("acc", now.Add(time.Minute), neverRan)
	require.NoError(t, err)
	assert.False(t, ok, "second stamp sees the first")

	_, err = store.TryStampRun("missing", now, neverRan)
	assert.True(t, errors.Is(err, models.ErrAccountNotFound))
}

func TestTryStampRunConcurrent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveAccount(&models.AccountSettings{AccountID: "acc"}))

	neverRan := func(s models.ScheduleState) bool { return s.LastRunAt == nil }
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryStampRun("acc", time.Now(), neverRan)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&wins))
}

func TestNotifications(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendNotification(&models.Notification{
			ID:        string(rune('a' + i)),
			AccountID: "acc",
			Type:      "auto_trade",
			Title:     "t",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.AppendNotification(&models.Notification{ID: "z", AccountID: "other", CreatedAt: base}))

	list, err := store.ListNotifications("acc", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID, "newest first")
	assert.Equal(t, "b", list[1].ID)

	all, err := store.ListNotifications("acc", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSweeps(t *testing.T) {
	store, err := NewInMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveSweep(&models.SweepSummary{ID: "s1", StartedAt: start}))
	require.NoError(t, store.SaveSweep(&models.SweepSummary{ID: "s2", StartedAt: start.Add(time.Minute),
		Results: []models.AccountResult{{AccountID: "a", Status: models.StatusSuccess}}}))

	sweeps, err := store.ListSweeps(10)
	require.NoError(t, err)
	require.Len(t, sweeps, 2)
	assert.Equal(t, "s2", sweeps[0].ID)
	assert.Equal(t, 1, sweeps[0].Count(models.StatusSuccess))
}
