// Package schedule decides whether an account's trade cycle is due.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/egemenkeskn/trader-server/internal/models"
)

// DefaultUTCOffsetHours is the civil calendar daily schedules run against.
const DefaultUTCOffsetHours = 3

var ErrInvalidSchedule = errors.New("invalid schedule")

// Evaluator evaluates schedules in a fixed-offset civil zone with no daylight saving.
type Evaluator struct {
	zone *time.Location
}

// NewEvaluator returns an Evaluator for UTC+offsetHours.
func NewEvaluator(offsetHours int) *Evaluator {
	return &Evaluator{zone: CivilZone(offsetHours)}
}

// CivilZone returns a fixed zone named like "UTC+3".
func CivilZone(offsetHours int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600)
}

// ParseDailyTime parses "HH:MM".
func ParseDailyTime(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: daily time %q", ErrInvalidSchedule, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: daily time %q", ErrInvalidSchedule, s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: daily time %q", ErrInvalidSchedule, s)
	}
	return hour, minute, nil
}

// Check reports whether state is due at now. It returns ErrInvalidSchedule
// for an unknown type, a non-positive interval or an unparsable daily time.
func (e *Evaluator) Check(state models.ScheduleState, now time.Time) (bool, error) {
	switch state.Type {
	case models.ScheduleInterval:
		if state.IntervalMinutes <= 0 {
			return false, fmt.Errorf("%w: interval %d", ErrInvalidSchedule, state.IntervalMinutes)
		}
		if state.LastRunAt == nil {
			return true, nil
		}
		elapsed := int64(now.Sub(*state.LastRunAt) / time.Minute)
		return elapsed >= int64(state.IntervalMinutes), nil

	case models.ScheduleDaily:
		hour, minute, err := ParseDailyTime(state.DailyTime)
		if err != nil {
			return false, err
		}
		civil := now.In(e.zone)
		if state.LastRunAt != nil && sameDay(state.LastRunAt.In(e.zone), civil) {
			return false, nil
		}
		if civil.Hour() != hour {
			return civil.Hour() > hour, nil
		}
		return civil.Minute() >= minute, nil

	default:
		return false, fmt.Errorf("%w: type %q", ErrInvalidSchedule, state.Type)
	}
}

// IsDue is Check with invalid schedules treated as not due.
func (e *Evaluator) IsDue(state models.ScheduleState, now time.Time) bool {
	due, err := e.Check(state, now)
	return err == nil && due
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
