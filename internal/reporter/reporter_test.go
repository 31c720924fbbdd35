package reporter

import (
	"strings"
	"testing"
	"time"

	"github.com/egemenkeskn/trader-server/internal/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleSummary() *models.SweepSummary {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.SweepSummary{
		ID:         "sweep-1",
		Request:    models.SweepRequest{Source: models.TriggerTimer},
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Results: []models.AccountResult{
			{AccountID: "alice", Status: models.StatusSuccess, Proposals: 2, Orders: 2},
			{AccountID: "bob", Status: models.StatusFailed, Error: strings.Repeat("boom ", 30)},
			{AccountID: "carol", Status: models.StatusNotDue},
		},
	}
}

func TestRender(t *testing.T) {
	out := Render(sampleSummary())

	assert.Contains(t, out, "sweep-1")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "not_due")
	assert.Contains(t, out, "3 accounts")
	assert.Contains(t, out, "success=1 partial=0 failed=1 not_due=1")
	assert.Contains(t, out, "...", "long errors are truncated")
}

func TestRenderAbortedSweep(t *testing.T) {
	s := sampleSummary()
	s.Results = nil
	s.Error = "configuration error: master key is not set"

	out := Render(s)
	assert.Contains(t, out, "master key is not set")
	assert.NotContains(t, out, "Account")
}

func TestLogSummary(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	LogSummary(logger, sampleSummary())
	assert.Equal(t, 1, logs.FilterMessageSnippet("alice").Len())

	idle := &models.SweepSummary{ID: "idle", Results: []models.AccountResult{{AccountID: "x", Status: models.StatusNotDue}}}
	LogSummary(logger, idle)
	assert.Equal(t, 1, logs.FilterMessageSnippet("没有到期的账户").Len())
}
