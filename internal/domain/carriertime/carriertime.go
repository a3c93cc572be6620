// Package carriertime parses the date and time-of-day strings printed by
// carrier tracking pages.
//
// Grammar:
//
//	date  = M[M] "/" D[D] "/" YYYY
//	clock = H[H] ":" MM SP period
//	period = "A.M." | "P.M." (case-insensitive, dots optional)
//
// Values are combined into naive wall-clock timestamps in UTC. Only
// differences and weekdays are ever derived from them.
package carriertime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	minutesPerHour = 60
	dateLayout     = "1/2/2006"
)

// Date is a calendar day without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Date) String() string {
	return fmt.Sprintf("%02d/%02d/%04d", int(d.Month), d.Day, d.Year)
}

// Clock is a time of day stored as minutes after midnight.
type Clock int

// NewClock builds a Clock from a 24-hour hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock(hour*minutesPerHour + minute)
}

// Hour returns the hour on a 24-hour basis.
func (c Clock) Hour() int { return int(c) / minutesPerHour }

// Minute returns the minute within the hour.
func (c Clock) Minute() int { return int(c) % minutesPerHour }

// String renders the clock in carrier 12-hour form, e.g. "3:00 P.M.".
func (c Clock) String() string {
	h, period := c.Hour(), "A.M."
	if h >= 12 {
		period = "P.M."
	}
	switch {
	case h == 0:
		h = 12
	case h > 12:
		h -= 12
	}
	return fmt.Sprintf("%d:%02d %s", h, c.Minute(), period)
}

// On anchors the clock to a calendar day.
func (c Clock) On(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour(), c.Minute(), 0, 0, time.UTC)
}

// ParseDate parses an MM/DD/YYYY date.
func ParseDate(s string) (Date, error) {
	v := strings.TrimSpace(s)
	parts := strings.Split(v, "/")
	if len(parts) != 3 || len(parts[2]) != 4 {
		return Date{}, &ParseError{Field: "date", Value: s, Reason: "want MM/DD/YYYY"}
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return Date{}, &ParseError{Field: "date", Value: s, Reason: err.Error()}
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// ParseClock parses an H:MM A.M./P.M. time of day. A 12 A.M. label maps to
// hour 0 and every P.M. label except 12 P.M. adds twelve hours.
func ParseClock(s string) (Clock, error) {
	fail := func(reason string) (Clock, error) {
		return 0, &ParseError{Field: "time", Value: s, Reason: reason}
	}

	hm, period, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return fail("missing A.M./P.M. period")
	}
	hs, ms, ok := strings.Cut(hm, ":")
	if !ok || len(ms) != 2 || len(hs) == 0 || len(hs) > 2 || !digits(hs) || !digits(ms) {
		return fail("want H:MM")
	}
	hour, err := strconv.Atoi(hs)
	if err != nil || hour < 1 || hour > 12 {
		return fail("hour out of range")
	}
	minute, err := strconv.Atoi(ms)
	if err != nil || minute < 0 || minute >= minutesPerHour {
		return fail("minute out of range")
	}

	switch normalizePeriod(period) {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour != 12 {
			hour += 12
		}
	default:
		return fail("unknown period")
	}
	return NewClock(hour, minute), nil
}

// Parse combines a date and a time of day into a timestamp.
func Parse(date, clock string) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	c, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return c.On(d), nil
}

// digits reports whether s is made only of ASCII digits. strconv.Atoi alone
// would also take a sign.
func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func normalizePeriod(p string) string {
	p = strings.ToUpper(strings.TrimSpace(p))
	return strings.ReplaceAll(p, ".", "")
}
