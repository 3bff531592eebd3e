// Package scheduleexpr parses and resolves the schedule expressions of
// spec §4.7: relative offsets ("10m", "1h", "2d"), next-day-at times
// ("HH:MM"), and offset-days-at times ("+Nd HH:MM"), each resolved
// against a campaign's configured timezone.
package scheduleexpr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/models"
)

var relativePattern = regexp.MustCompile(`^(\d+)([mhd])$`)
var offsetPattern = regexp.MustCompile(`^\+(\d+)d\s+(\d{1,2}):(\d{2})$`)
var timeOfDayPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseRelative parses a relative duration expression like "10m", "1h",
// or "2d" into its equivalent number of seconds.
func ParseRelative(expr string) (int, error) {
	m := relativePattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return 0, &apperr.ValidationError{Field: "schedule", Message: fmt.Sprintf("invalid relative expression %q", expr)}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &apperr.ValidationError{Field: "schedule", Message: fmt.Sprintf("invalid relative expression %q", expr)}
	}
	switch m[2] {
	case "m":
		return n * 60, nil
	case "h":
		return n * 3600, nil
	case "d":
		return n * 86400, nil
	default:
		return 0, &apperr.ValidationError{Field: "schedule", Message: fmt.Sprintf("invalid relative unit in %q", expr)}
	}
}

// ParseTimeOfDay validates an "HH:MM" expression and returns its hour and
// minute components.
func ParseTimeOfDay(expr string) (hour, minute int, err error) {
	m := timeOfDayPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return 0, 0, &apperr.ValidationError{Field: "schedule", Message: fmt.Sprintf("invalid time-of-day expression %q", expr)}
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, &apperr.ValidationError{Field: "schedule", Message: fmt.Sprintf("time-of-day out of range %q", expr)}
	}
	return hour, minute, nil
}

// ParseOffsetDaysAt parses a "+Nd HH:MM" expression into its day offset
// and hour/minute components.
func ParseOffsetDaysAt(expr string) (days, hour, minute int, err error) {
	m := offsetPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return 0, 0, 0, &apperr.ValidationError{Field: "schedule", Message: fmt.Sprintf("invalid offset-days-at expression %q", expr)}
	}
	days, _ = strconv.Atoi(m[1])
	hour, _ = strconv.Atoi(m[2])
	minute, _ = strconv.Atoi(m[3])
	if hour > 23 || minute > 59 {
		return 0, 0, 0, &apperr.ValidationError{Field: "schedule", Message: fmt.Sprintf("time-of-day out of range %q", expr)}
	}
	return days, hour, minute, nil
}

// Resolve computes the absolute wall-clock time a RecoveryStep (or
// equivalently-shaped upsell schedule) should next fire, given now and
// the campaign's timezone.
func Resolve(step *models.RecoveryStep, timezone string, now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	switch step.ScheduleKind {
	case models.ScheduleRelative:
		return now.Add(time.Duration(step.ScheduleSeconds) * time.Second), nil

	case models.ScheduleNextDayAt:
		hour, minute, err := ParseTimeOfDay(step.ScheduleTimeOfDay)
		if err != nil {
			return time.Time{}, err
		}
		candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if !candidate.After(local) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate.UTC(), nil

	case models.ScheduleOffsetDaysAt:
		hour, minute, err := ParseTimeOfDay(step.ScheduleTimeOfDay)
		if err != nil {
			return time.Time{}, err
		}
		candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc).AddDate(0, 0, step.ScheduleDaysOffset)
		if !candidate.After(local) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate.UTC(), nil

	default:
		return time.Time{}, &apperr.ValidationError{Field: "schedule_kind", Message: fmt.Sprintf("unknown schedule kind %q", step.ScheduleKind)}
	}
}

// ResolveUpsellSchedule computes the absolute fire time for an upsell's
// schedule (days/hours/minutes relative to the sale moment), or reports
// immediate=true for preset/immediate upsells.
func ResolveUpsellSchedule(schedule models.UpsellSchedule, saleTime time.Time) (fireAt time.Time, immediate bool) {
	if schedule.Immediate {
		return saleTime, true
	}
	offset := time.Duration(schedule.Days)*24*time.Hour + time.Duration(schedule.Hours)*time.Hour + time.Duration(schedule.Minutes)*time.Minute
	return saleTime.Add(offset), false
}

// Format renders a RecoveryStep's schedule back into its canonical
// expression form, the inverse of the Parse* functions, for admin display.
func Format(step *models.RecoveryStep) string {
	switch step.ScheduleKind {
	case models.ScheduleRelative:
		switch {
		case step.ScheduleSeconds%86400 == 0:
			return fmt.Sprintf("%dd", step.ScheduleSeconds/86400)
		case step.ScheduleSeconds%3600 == 0:
			return fmt.Sprintf("%dh", step.ScheduleSeconds/3600)
		default:
			return fmt.Sprintf("%dm", step.ScheduleSeconds/60)
		}
	case models.ScheduleNextDayAt:
		return step.ScheduleTimeOfDay
	case models.ScheduleOffsetDaysAt:
		return fmt.Sprintf("+%dd %s", step.ScheduleDaysOffset, step.ScheduleTimeOfDay)
	default:
		return ""
	}
}
