package recurrence

import "time"

// Next returns the earliest occurrence of the rule strictly after the
// reference instant. The wall-clock time-of-day of scheduledFor (in loc) is
// preserved across occurrences, so a DST transition shifts the absolute
// instant but not the local time. The second return value is false only for
// NONE rules whose single occurrence has already passed.
func Next(r Rule, scheduledFor time.Time, loc *time.Location, after time.Time) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	switch r.Kind {
	case None:
		if after.Before(scheduledFor) {
			return scheduledFor, true
		}
		return time.Time{}, false
	case Daily:
		return nextDaily(scheduledFor, loc, after), true
	case Weekly:
		return nextWeekly(r, scheduledFor, loc, after), true
	case Monthly:
		return nextMonthly(r, scheduledFor, loc, after), true
	}
	return time.Time{}, false
}

// nextDaily lands on the first calendar day strictly after the reference
// day, at the original local time-of-day.
func nextDaily(scheduledFor time.Time, loc *time.Location, after time.Time) time.Time {
	h, m, s := scheduledFor.In(loc).Clock()
	y, mo, d := after.In(loc).Date()
	return time.Date(y, mo, d+1, h, m, s, 0, loc)
}

// nextWeekly scans forward day by day for the earliest instant matching one
// of the rule's weekdays. The same day as the reference qualifies when its
// time-of-day is still ahead. An empty weekday set falls back to the weekday
// of the original scheduledFor.
func nextWeekly(r Rule, scheduledFor time.Time, loc *time.Location, after time.Time) time.Time {
	days := r.Weekdays
	if len(days) == 0 {
		days = []time.Weekday{scheduledFor.In(loc).Weekday()}
	}
	match := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		match[d] = true
	}

	h, m, s := scheduledFor.In(loc).Clock()
	y, mo, d := after.In(loc).Date()
	for i := 0; i <= 7; i++ {
		cand := time.Date(y, mo, d+i, h, m, s, 0, loc)
		if match[cand.Weekday()] && cand.After(after) {
			return cand
		}
	}
	// Unreachable: a non-empty weekday set always matches within 8 days.
	return time.Time{}
}

// nextMonthly lands on the rule's day-of-month in the reference month when
// that instant is still ahead, otherwise in the following month. Months
// shorter than the requested day clamp to their last day.
func nextMonthly(r Rule, scheduledFor time.Time, loc *time.Location, after time.Time) time.Time {
	h, m, s := scheduledFor.In(loc).Clock()
	y, mo, _ := after.In(loc).Date()

	if cand := monthlyAt(y, mo, r.DayOfMonth, h, m, s, loc); cand.After(after) {
		return cand
	}
	return monthlyAt(y, mo+1, r.DayOfMonth, h, m, s, loc)
}

func monthlyAt(year int, month time.Month, day, h, m, s int, loc *time.Location) time.Time {
	if last := daysIn(year, month, loc); day > last {
		day = last
	}
	return time.Date(year, month, day, h, m, s, 0, loc)
}

// daysIn returns the number of days in the (possibly unnormalized) month.
func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 12, 0, 0, 0, loc).Day()
}
