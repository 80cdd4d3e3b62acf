// Package derive holds the pure transforms applied to records before they are
// persisted or returned: CAPEX flags, target dates, monitoring deviation,
// timeline progress and workflow progress.
package derive

import (
	"fmt"
	"math"
	"time"

	"opexhub/internal/domain"
)

const (
	// MocCapexThreshold is the CAPEX estimate (in lakhs) above which a
	// management-of-change review is required.
	MocCapexThreshold = 10.0
	// InitiativeDurationDays is the span between an initiative's start and target date.
	InitiativeDurationDays = 365

	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

type CapexFlags struct {
	RequiresMoc   bool `json:"requires_moc"`
	RequiresCapex bool `json:"requires_capex"`
}

// Capex derives the MOC and CAPEX review flags from a CAPEX estimate.
func Capex(estimated float64) CapexFlags {
	return CapexFlags{
		RequiresMoc:   estimated > MocCapexThreshold,
		RequiresCapex: estimated > 0,
	}
}

// EndDate is exactly InitiativeDurationDays calendar days after start.
func EndDate(start time.Time) time.Time {
	y, m, d := start.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, InitiativeDurationDays)
}

// Deviation returns achieved-target and the same value as a percentage of
// target. Both are nil unless target and achieved are present; the
// percentage is also nil for a zero target.
func Deviation(target, achieved *float64) (deviation, percentage *float64) {
	if target == nil || achieved == nil {
		return nil, nil
	}
	d := *achieved - *target
	deviation = &d
	if *target != 0 {
		p := d / *target * 100
		percentage = &p
	}
	return deviation, percentage
}

// TimelineProgress is the share of the planned window that has elapsed at now.
// COMPLETED is always 100 and PENDING always 0; otherwise the value is 0 before
// the planned start, 100 at or after the planned end, and strictly between 0
// and 100 in between.
func TimelineProgress(status string, plannedStart, plannedEnd, now time.Time) int {
	switch status {
	case domain.TimelineCompleted:
		return 100
	case domain.TimelinePending:
		return 0
	}
	if now.Before(plannedStart) {
		return 0
	}
	if !now.Before(plannedEnd) {
		return 100
	}
	total := plannedEnd.Sub(plannedStart)
	elapsed := now.Sub(plannedStart)
	pct := int(math.Round(float64(elapsed) / float64(total) * 100))
	return clamp(pct, 1, 99)
}

// EntryProgress computes TimelineProgress from the entry's stored dates.
// Unparseable dates yield 0.
func EntryProgress(e domain.TimelineEntry, now time.Time) int {
	start, err := ParseDate(e.PlannedStartDate)
	if err != nil {
		return 0
	}
	end, err := ParseDate(e.PlannedEndDate)
	if err != nil {
		return 0
	}
	return TimelineProgress(e.Status, start, end, now)
}

// StageProgress is the rounded share of approved stages.
func StageProgress(approved, total int) int {
	if total <= 0 {
		return 0
	}
	return clamp(int(math.Round(float64(approved)*100/float64(total))), 0, 100)
}

// NextPending returns the first pending transaction in slice order.
func NextPending(txs []domain.WorkflowTransaction) (domain.WorkflowTransaction, bool) {
	for _, tx := range txs {
		if tx.ApproveStatus == domain.StagePending {
			return tx, true
		}
	}
	return domain.WorkflowTransaction{}, false
}

// AnnualizedValue reports actual savings when recorded, else expected savings.
func AnnualizedValue(expected float64, actual *float64) float64 {
	if actual != nil {
		return *actual
	}
	return expected
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// ParseMonth parses a YYYY-MM month.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: want YYYY-MM", s)
	}
	return t, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
