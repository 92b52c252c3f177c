package subscription

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBeforeSeasonCutoffWaitsForSeptember(t *testing.T) {
	for _, day := range []int{1, 10, 28, LastDayOfMonth} {
		plan, err := Compute(date(2025, time.July, 15), day, 27.50)
		if err != nil {
			t.Fatalf("Compute() error = %v", err)
		}
		if plan.CreateInterim {
			t.Fatalf("day %d: no interim before the season cutoff", day)
		}
		if plan.OngoingStart.Year() != 2025 || plan.OngoingStart.Month() != time.September {
			t.Fatalf("day %d: ongoing start %v, want September 2025", day, plan.OngoingStart)
		}
		if !plan.EndDate.Equal(SeasonEnd) {
			t.Fatalf("end date = %v, want %v", plan.EndDate, SeasonEnd)
		}
	}
}

func TestBeforeCutoffLastDayClampsToSeptemberEnd(t *testing.T) {
	plan, err := Compute(date(2025, time.August, 1), LastDayOfMonth, 27.50)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if !plan.OngoingStart.Equal(date(2025, time.September, 30)) {
		t.Fatalf("ongoing start = %v, want 2025-09-30", plan.OngoingStart)
	}
}

func TestComfortableLeadTimeStartsNextOccurrence(t *testing.T) {
	plan, err := Compute(date(2025, time.September, 1), 10, 27.50)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if plan.CreateInterim {
		t.Fatal("no interim when lead time covers the provider buffer")
	}
	if !plan.OngoingStart.Equal(date(2025, time.September, 10)) {
		t.Fatalf("ongoing start = %v, want 2025-09-10", plan.OngoingStart)
	}
}

func TestInterimPath(t *testing.T) {
	plan, err := Compute(date(2025, time.September, 8), 10, 27.50)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if !plan.CreateInterim {
		t.Fatal("expected an interim charge")
	}
	if !plan.InterimStart.Equal(date(2025, time.September, 13)) {
		t.Fatalf("interim start = %v, want 2025-09-13", plan.InterimStart)
	}
	if !plan.InterimEnd.Equal(date(2025, time.September, 30)) {
		t.Fatalf("interim end = %v, want 2025-09-30", plan.InterimEnd)
	}
	if !plan.OngoingStart.Equal(date(2025, time.October, 10)) {
		t.Fatalf("ongoing start = %v, want 2025-10-10", plan.OngoingStart)
	}
	if !plan.EndDate.Equal(date(2026, time.May, 31)) {
		t.Fatalf("end date = %v, want 2026-05-31", plan.EndDate)
	}
	if plan.MonthlyAmount != 27.50 {
		t.Fatalf("interim charges the nominal monthly amount, got %v", plan.MonthlyAmount)
	}
}

func TestLateMonthFairnessSkipsWindow(t *testing.T) {
	plan, err := Compute(date(2025, time.September, 27), 30, 27.50)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if plan.CreateInterim {
		t.Fatal("late-month short window must not create an interim")
	}
	if !plan.OngoingStart.Equal(date(2025, time.October, 30)) {
		t.Fatalf("ongoing start = %v, want 2025-10-30", plan.OngoingStart)
	}
}

func TestPreferredDayAlreadyPastAdvancesMonth(t *testing.T) {
	plan, err := Compute(date(2025, time.September, 20), 5, 27.50)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	// Next 5th is Oct 5, 15 days out: comfortably past the buffer.
	if plan.CreateInterim {
		t.Fatal("unexpected interim")
	}
	if !plan.OngoingStart.Equal(date(2025, time.October, 5)) {
		t.Fatalf("ongoing start = %v, want 2025-10-05", plan.OngoingStart)
	}
}

func TestFebruaryBoundaryClampsDay(t *testing.T) {
	plan, err := Compute(date(2026, time.February, 25), 31, 27.50)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	// Feb 2026 ends on the 28th; day 31 collapses there, already past? No:
	// the 28th is 3 days out, inside the buffer, and the 25th is past the
	// fairness boundary, so the window is skipped to March 31.
	if plan.CreateInterim {
		t.Fatal("unexpected interim")
	}
	if !plan.OngoingStart.Equal(date(2026, time.March, 31)) {
		t.Fatalf("ongoing start = %v, want 2026-03-31", plan.OngoingStart)
	}
}

func TestDecemberToJanuaryRollover(t *testing.T) {
	plan, err := Compute(date(2025, time.December, 29), 1, 27.50)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	// Next 1st is Jan 1, 3 days out (< buffer), and the 29th is past the
	// fairness boundary: skip to February 1.
	if plan.CreateInterim {
		t.Fatal("unexpected interim")
	}
	if !plan.OngoingStart.Equal(date(2026, time.February, 1)) {
		t.Fatalf("ongoing start = %v, want 2026-02-01", plan.OngoingStart)
	}
}

func TestLastDayPreferenceAfterCutoff(t *testing.T) {
	plan, err := Compute(date(2025, time.October, 2), LastDayOfMonth, 27.50)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if plan.CreateInterim {
		t.Fatal("unexpected interim")
	}
	if !plan.OngoingStart.Equal(date(2025, time.October, 31)) {
		t.Fatalf("ongoing start = %v, want 2025-10-31", plan.OngoingStart)
	}
}

func TestRejectsOutOfRangeDay(t *testing.T) {
	if _, err := Compute(date(2025, time.September, 1), 0, 27.50); err == nil {
		t.Fatal("expected error for day 0")
	}
	if _, err := Compute(date(2025, time.September, 1), 32, 27.50); err == nil {
		t.Fatal("expected error for day 32")
	}
}
