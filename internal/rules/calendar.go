package rules

import "time"

// monthDay returns the year-agnostic "MM-DD" of t in its own location.
func monthDay(t time.Time) string {
	return t.Format("01-02")
}

// inMonthDayRange reports whether md falls inside [start, end]. When start > end
// the range wraps over the new year and either bound may match.
func inMonthDayRange(md, start, end string) bool {
	if start <= end {
		return md >= start && md <= end
	}
	return md >= start || md <= end
}

// dayNumber counts calendar days since 1970-01-01 for the date of t.
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return floorDiv(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix(), 86400)
}

// weekNumber is a continuous ISO (Monday-first) week index. 1970-01-01 was a Thursday.
func weekNumber(t time.Time) int64 {
	return floorDiv(dayNumber(t)+3, 7)
}

// periodIndex maps t onto the run index used by consecutive_booking.
// Weekends share the index of their ISO week, so adjacent weekends differ by one.
func periodIndex(t time.Time, unit string) int64 {
	if unit == UnitDays {
		return dayNumber(t)
	}
	return weekNumber(t)
}

// touchesWeekend reports whether [start, end] covers any part of a Saturday or Sunday.
func touchesWeekend(start, end time.Time) bool {
	first, last := dayNumber(start), dayNumber(end)
	if last-first >= 6 {
		return true
	}
	day := start
	for n := first; n <= last; n++ {
		switch day.Weekday() {
		case time.Saturday, time.Sunday:
			return true
		}
		day = day.AddDate(0, 0, 1)
	}
	return false
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
