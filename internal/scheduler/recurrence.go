package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/watzon/clipcast/internal/schedules"
)

// ErrInvalidRecurrence matches every *RecurrenceError.
var ErrInvalidRecurrence = errors.New("invalid recurrence")

// RecurrenceError explains why a schedule cannot be turned into fire times.
type RecurrenceError struct {
	ScheduleID string
	Reason     string
	Err        error
}

func (e *RecurrenceError) Error() string {
	msg := fmt.Sprintf("schedule %s: %s", e.ScheduleID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RecurrenceError) Unwrap() error { return e.Err }

func (e *RecurrenceError) Is(target error) bool { return target == ErrInvalidRecurrence }

// Custom expressions may carry a leading seconds field.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronSpec converts a recurrence into a five-field cron expression.
// Custom expressions are returned untouched.
func CronSpec(r schedules.Recurrence) (string, error) {
	switch r.Frequency {
	case schedules.FrequencyDaily:
		h, m, err := parseClock(r.Time)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * *", m, h), nil

	case schedules.FrequencyWeekly:
		h, m, err := parseClock(r.Time)
		if err != nil {
			return "", err
		}
		days, err := dayList(r.Days)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * %s", m, h, days), nil

	case schedules.FrequencyCustom:
		if strings.TrimSpace(r.Expression) == "" {
			return "", errors.New("custom expression is empty")
		}
		return strings.TrimSpace(r.Expression), nil

	default:
		return "", fmt.Errorf("unknown frequency %q", r.Frequency)
	}
}

func parseClock(hhmm string) (hour, minute int, err error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("time %q is not HH:MM", hhmm)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time %q has an invalid hour", hhmm)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q has an invalid minute", hhmm)
	}
	return hour, minute, nil
}

func dayList(days []time.Weekday) (string, error) {
	if len(days) == 0 {
		return "", errors.New("weekly recurrence has no days")
	}

	seen := make(map[time.Weekday]bool, len(days))
	nums := make([]int, 0, len(days))
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday {
			return "", fmt.Errorf("day %d is out of range", d)
		}
		if !seen[d] {
			seen[d] = true
			nums = append(nums, int(d))
		}
	}
	sort.Ints(nums)

	strs := make([]string, len(nums))
	for i, n := range nums {
		strs[i] = strconv.Itoa(n)
	}
	return strings.Join(strs, ","), nil
}

// compiled is a schedule ready to hand to cron.
type compiled struct {
	spec     string
	location *time.Location
	schedule cron.Schedule
}

// compile resolves the timezone and parses the cron expression for s.
// An empty schedule timezone falls back to def.
func compile(s *schedules.Schedule, def *time.Location) (*compiled, error) {
	fail := func(reason string, err error) error {
		return &RecurrenceError{ScheduleID: s.ID, Reason: reason, Err: err}
	}

	spec, err := CronSpec(s.Recurrence)
	if err != nil {
		return nil, fail("building cron expression", err)
	}

	loc := def
	if loc == nil {
		loc = time.Local
	}
	if s.Timezone != "" {
		loc, err = time.LoadLocation(s.Timezone)
		if err != nil {
			return nil, fail("unknown timezone", err)
		}
	}

	full := spec
	if !strings.HasPrefix(spec, "TZ=") && !strings.HasPrefix(spec, "CRON_TZ=") {
		full = "CRON_TZ=" + loc.String() + " " + spec
	}

	sched, err := parser.Parse(full)
	if err != nil {
		return nil, fail("parsing cron expression", err)
	}

	return &compiled{spec: spec, location: loc, schedule: sched}, nil
}

// NextFire returns the first fire time of s strictly after after.
// Schedules without a timezone are evaluated in def.
func NextFire(s *schedules.Schedule, after time.Time, def *time.Location) (time.Time, error) {
	c, err := compile(s, def)
	if err != nil {
		return time.Time{}, err
	}
	return c.schedule.Next(after.In(c.location)), nil
}

// UpcomingFires returns the next n fire times of s after after.
func UpcomingFires(s *schedules.Schedule, after time.Time, n int, def *time.Location) ([]time.Time, error) {
	c, err := compile(s, def)
	if err != nil {
		return nil, err
	}

	fires := make([]time.Time, 0, n)
	t := after.In(c.location)
	for i := 0; i < n; i++ {
		t = c.schedule.Next(t)
		if t.IsZero() {
			break
		}
		fires = append(fires, t)
	}
	return fires, nil
}

// missedFires counts fire times in [from, now), capped at limit.
func missedFires(c *compiled, from, now time.Time, limit int) int {
	if !from.Before(now) {
		return 0
	}

	count := 0
	t := from
	for t.Before(now) && count < limit {
		count++
		next := c.schedule.Next(t)
		if next.IsZero() || !next.After(t) {
			break
		}
		t = next
	}
	return count
}
