package scheduleexpr

import (
	"testing"
	"time"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/models"
)

func TestParseRelative(t *testing.T) {
	cases := []struct {
		expr string
		want int
	}{
		{"10m", 600},
		{"1h", 3600},
		{"2d", 172800},
	}
	for _, c := range cases {
		got, err := ParseRelative(c.expr)
		if err != nil {
			t.Fatalf("ParseRelative(%q): unexpected error %v", c.expr, err)
		}
		if got != c.want {
			t.Fatalf("ParseRelative(%q) = %d, want %d", c.expr, got, c.want)
		}
	}
}

func TestParseRelativeRejectsGarbage(t *testing.T) {
	_, err := ParseRelative("soon")
	if err == nil {
		t.Fatal("expected an error for a non-matching expression")
	}
	if _, ok := err.(*apperr.ValidationError); !ok {
		t.Fatalf("expected *apperr.ValidationError, got %T", err)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	hour, minute, err := ParseTimeOfDay("18:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hour != 18 || minute != 30 {
		t.Fatalf("got %d:%d, want 18:30", hour, minute)
	}
}

func TestParseTimeOfDayRejectsOutOfRange(t *testing.T) {
	if _, _, err := ParseTimeOfDay("24:00"); err == nil {
		t.Fatal("expected error for hour 24")
	}
	if _, _, err := ParseTimeOfDay("10:60"); err == nil {
		t.Fatal("expected error for minute 60")
	}
}

func TestParseOffsetDaysAt(t *testing.T) {
	days, hour, minute, err := ParseOffsetDaysAt("+2d 18:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if days != 2 || hour != 18 || minute != 0 {
		t.Fatalf("got %dd %d:%d, want 2d 18:00", days, hour, minute)
	}
}

func TestResolveRelative(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	step := &models.RecoveryStep{ScheduleKind: models.ScheduleRelative, ScheduleSeconds: 600}
	got, err := Resolve(step, "UTC", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := now.Add(10 * time.Minute)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveNextDayAtRollsForwardWhenPast(t *testing.T) {
	now := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	step := &models.RecoveryStep{ScheduleKind: models.ScheduleNextDayAt, ScheduleTimeOfDay: "09:00"}
	got, err := Resolve(step, "UTC", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveNextDayAtSameDayWhenFuture(t *testing.T) {
	now := time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC)
	step := &models.RecoveryStep{ScheduleKind: models.ScheduleNextDayAt, ScheduleTimeOfDay: "09:00"}
	got, err := Resolve(step, "UTC", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveOffsetDaysAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC)
	step := &models.RecoveryStep{ScheduleKind: models.ScheduleOffsetDaysAt, ScheduleDaysOffset: 2, ScheduleTimeOfDay: "18:00"}
	got, err := Resolve(step, "UTC", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 1, 3, 18, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveFallsBackToUTCForUnknownTimezone(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	step := &models.RecoveryStep{ScheduleKind: models.ScheduleRelative, ScheduleSeconds: 60}
	got, err := Resolve(step, "Not/A_Zone", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("got %v, want %v", got, now.Add(time.Minute))
	}
}

func TestResolveUpsellScheduleImmediate(t *testing.T) {
	saleTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fireAt, immediate := ResolveUpsellSchedule(models.UpsellSchedule{Immediate: true}, saleTime)
	if !immediate {
		t.Fatal("expected immediate=true")
	}
	if !fireAt.Equal(saleTime) {
		t.Fatalf("got %v, want %v", fireAt, saleTime)
	}
}

func TestResolveUpsellScheduleOffset(t *testing.T) {
	saleTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fireAt, immediate := ResolveUpsellSchedule(models.UpsellSchedule{Days: 1, Hours: 2, Minutes: 30}, saleTime)
	if immediate {
		t.Fatal("expected immediate=false")
	}
	want := saleTime.Add(26*time.Hour + 30*time.Minute)
	if !fireAt.Equal(want) {
		t.Fatalf("got %v, want %v", fireAt, want)
	}
}

func TestFormatRelative(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{600, "10m"},
		{3600, "1h"},
		{172800, "2d"},
	}
	for _, c := range cases {
		got := Format(&models.RecoveryStep{ScheduleKind: models.ScheduleRelative, ScheduleSeconds: c.seconds})
		if got != c.want {
			t.Fatalf("Format(%d seconds) = %q, want %q", c.seconds, got, c.want)
		}
	}
}

func TestFormatOffsetDaysAt(t *testing.T) {
	got := Format(&models.RecoveryStep{ScheduleKind: models.ScheduleOffsetDaysAt, ScheduleDaysOffset: 2, ScheduleTimeOfDay: "18:00"})
	if got != "+2d 18:00" {
		t.Fatalf("got %q, want %q", got, "+2d 18:00")
	}
}
