// Package subscription decides when direct-debit collections start: whether
// an interim pro-rata charge is needed and when the ongoing monthly schedule
// begins. Pure date arithmetic; no I/O.
package subscription

import (
	"fmt"
	"time"
)

// Policy constants. No collection may start before the season cutoff, the
// payment provider needs a lead time before the first charge, and charging a
// full month for a few days late in the month is unfair.
var (
	SeasonCutoff = time.Date(2025, time.August, 28, 0, 0, 0, 0, time.UTC)
	SeasonEnd    = time.Date(2026, time.May, 31, 0, 0, 0, 0, time.UTC)
)

const (
	ProviderBufferDays  = 5
	FairnessBoundaryDay = 10

	// LastDayOfMonth is the sentinel preferred-payment-day meaning "last day".
	LastDayOfMonth = -1
)

// Plan is the computed subscription timing.
type Plan struct {
	OngoingStart  time.Time
	EndDate       time.Time
	CreateInterim bool
	InterimStart  time.Time
	InterimEnd    time.Time
	// MonthlyAmount is the nominal amount both schedules charge.
	MonthlyAmount float64
}

// Compute derives the subscription plan for today and the parent's preferred
// payment day (1..31, or LastDayOfMonth; days a month does not have collapse
// to its final day). The chat flow only offers 1..28, but records written by
// earlier seasons may carry higher days.
func Compute(today time.Time, preferredDay int, monthlyAmount float64) (*Plan, error) {
	if preferredDay != LastDayOfMonth && (preferredDay < 1 || preferredDay > 31) {
		return nil, fmt.Errorf("subscription: preferred payment day %d out of range", preferredDay)
	}
	today = truncateDay(today)

	plan := &Plan{EndDate: SeasonEnd, MonthlyAmount: monthlyAmount}

	// Season policy: before the cutoff everything waits for September.
	if today.Before(SeasonCutoff) {
		plan.OngoingStart = occurrenceIn(2025, time.September, preferredDay)
		return plan, nil
	}

	next := nextOccurrence(today, preferredDay)
	daysUntil := int(next.Sub(today).Hours() / 24)

	switch {
	case daysUntil >= ProviderBufferDays:
		plan.OngoingStart = next

	case today.Day() > FairnessBoundaryDay:
		// Skip the short window entirely; a full month's charge for a few
		// days is unfair, and we never back-date.
		plan.OngoingStart = occurrenceInMonthAfter(next, preferredDay)

	default:
		plan.CreateInterim = true
		plan.InterimStart = today.AddDate(0, 0, ProviderBufferDays)
		plan.InterimEnd = lastDayOf(today.Year(), today.Month())
		plan.OngoingStart = occurrenceInMonthAfter(next, preferredDay)
	}
	return plan, nil
}

// nextOccurrence finds the preferred day's next occurrence on or after today.
func nextOccurrence(today time.Time, preferredDay int) time.Time {
	candidate := occurrenceIn(today.Year(), today.Month(), preferredDay)
	if candidate.Before(today) {
		return occurrenceInMonthAfter(candidate, preferredDay)
	}
	return candidate
}

// occurrenceIn places the preferred day in a given month, collapsing
// LastDayOfMonth and days the month does not have onto its final day.
func occurrenceIn(year int, month time.Month, preferredDay int) time.Time {
	last := lastDayOf(year, month)
	if preferredDay == LastDayOfMonth || preferredDay > last.Day() {
		return last
	}
	return time.Date(year, month, preferredDay, 0, 0, 0, 0, time.UTC)
}

func occurrenceInMonthAfter(t time.Time, preferredDay int) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return occurrenceIn(firstOfNext.Year(), firstOfNext.Month(), preferredDay)
}

func lastDayOf(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
