package agents

import (
	"time"
	_ "time/tzdata"
)

const displayDate = "Mon, Jan 2"

// civilDay maps t to midnight UTC of its calendar day in loc, so that day
// differences are exact multiples of 24h regardless of DST.
func civilDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// nextOccurrence returns the next anniversary of date on or after today.
// Feb 29 falls back to Feb 28 in common years.
func nextOccurrence(date, today time.Time) time.Time {
	candidate := anniversaryIn(date, today.Year())
	if candidate.Before(today) {
		candidate = anniversaryIn(date, today.Year()+1)
	}
	return candidate
}

func anniversaryIn(date time.Time, year int) time.Time {
	month, day := date.Month(), date.Day()
	if month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
