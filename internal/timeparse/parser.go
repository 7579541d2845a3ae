// Package timeparse turns free-form time expressions ("2h", "17:30",
// "06/25/2026 9:00am", "1767225600", "tomorrow 9am", "next friday") into a
// validated future timestamp and delay.
//
// Parsing is pure: "now" is injected by the caller and sampled exactly once,
// so the same input with the same reference time always yields the same
// Result. Malformed input is an expected condition; Parse never returns an
// error out of band, it reports Valid=false with a human-readable reason.
//
// Rollover is a single increment: a clock time already past today moves
// forward exactly one calendar day, a weekday already past moves forward
// exactly seven. Around a DST transition the resulting delay can therefore
// differ from 24h/168h of wall time; this is a known limitation.
package timeparse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of parsing one expression. When Valid is true, At is
// strictly after the reference time and Delay = At − now, computed once at
// parse time.
type Result struct {
	Valid    bool
	Delay    time.Duration
	At       time.Time
	Reason   string
	Original string
}

const (
	reasonNonPositive  = "value must be greater than 0"
	reasonTooLarge     = "value is too large"
	reasonInvalidTime  = "invalid time values"
	reasonInvalidDate  = "invalid date values"
	reasonPastDate     = "date is in the past"
	reasonPastUnix     = "timestamp is in the past"
	reasonUnrecognized = "unrecognized time format (examples: 10m, 2h, 17:30, 7:00pm, 06/25/2026 9:00am, 1767225600, tomorrow 9am, friday, next monday)"
)

var unitDuration = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

var (
	relativeRe = regexp.MustCompile(`^(-?\d+)([smhdw])$`)
	clockRe    = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*(am|pm)?$`)
	dateRe     = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})\s+(\d{1,2}):(\d{2})\s*(am|pm)?$`)
	unixRe     = regexp.MustCompile(`^\d{10}(\d{3})?$`)
	timeOfDay  = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(am|pm)?$`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Parse maps one expression to exactly one Result, trying format families in
// a fixed priority order: relative duration, clock time, explicit date-time,
// unix timestamp, then the small natural-language vocabulary. The first
// family that matches structurally owns the input; its validation errors are
// terminal and later families are never consulted.
func Parse(raw string, now time.Time) Result {
	expr := strings.ToLower(strings.TrimSpace(raw))
	res := Result{Original: raw}

	if expr == "" {
		res.Reason = reasonUnrecognized
		return res
	}

	if r, ok := parseRelative(expr, now); ok {
		r.Original = raw
		return r
	}
	if r, ok := parseClock(expr, now); ok {
		r.Original = raw
		return r
	}
	if r, ok := parseDate(expr, now); ok {
		r.Original = raw
		return r
	}
	if r, ok := parseUnix(expr, now); ok {
		r.Original = raw
		return r
	}
	if r, ok := parseNatural(expr, now); ok {
		r.Original = raw
		return r
	}

	res.Reason = reasonUnrecognized
	return res
}

func valid(now, at time.Time) Result {
	return Result{Valid: true, Delay: at.Sub(now), At: at}
}

func invalid(reason string) Result {
	return Result{Reason: reason}
}

// parseRelative handles <integer><unit> with unit in s/m/h/d/w. A signed
// integer matches structurally, so "0h" and "-1h" are terminal validation
// errors of this family rather than fall-throughs.
func parseRelative(expr string, now time.Time) (Result, bool) {
	m := relativeRe.FindStringSubmatch(expr)
	if m == nil {
		return Result{}, false
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		// More digits than int64 holds; still terminal for this family.
		if strings.HasPrefix(m[1], "-") {
			return invalid(reasonNonPositive), true
		}
		return invalid(reasonTooLarge), true
	}
	if n <= 0 {
		return invalid(reasonNonPositive), true
	}

	unit := unitDuration[m[2]]
	if n > math.MaxInt64/int64(unit) {
		// The multiply would overflow and wrap into the past.
		return invalid(reasonTooLarge), true
	}

	delay := time.Duration(n) * unit
	return Result{Valid: true, Delay: delay, At: now.Add(delay)}, true
}

// parseClock handles H:MM with an optional am/pm suffix. The time is resolved
// against today; if that instant is not in the future it rolls forward
// exactly one calendar day, never more.
func parseClock(expr string, now time.Time) (Result, bool) {
	m := clockRe.FindStringSubmatch(expr)
	if m == nil {
		return Result{}, false
	}

	hour, minute, ok := convertClock(m[1], m[2], m[3])
	if !ok {
		return invalid(reasonInvalidTime), true
	}

	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return valid(now, at), true
}

// convertClock applies 12-hour conversion (12am → 0, 12pm → 12, other pm
// hours add 12) and bounds-checks the post-conversion values.
func convertClock(hourStr, minuteStr, meridiem string) (hour, minute int, ok bool) {
	hour, _ = strconv.Atoi(hourStr)
	minute, _ = strconv.Atoi(minuteStr)

	switch meridiem {
	case "am":
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour != 12 {
			hour += 12
		}
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// parseDate handles MM/DD/YYYY H:MM[am|pm]. There is no rollover here: an
// explicit date in the past is a terminal error.
func parseDate(expr string, now time.Time) (Result, bool) {
	m := dateRe.FindStringSubmatch(expr)
	if m == nil {
		return Result{}, false
	}

	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	hour, minute, ok := convertClock(m[4], m[5], m[6])
	if !ok {
		return invalid(reasonInvalidTime), true
	}

	at := time.Date(year, time.Month(month), day, hour, minute, 0, 0, now.Location())
	// time.Date normalizes out-of-range components (month 13 becomes January
	// of the next year); reject anything that did not survive round-trip.
	if int(at.Month()) != month || at.Day() != day || at.Year() != year {
		return invalid(reasonInvalidDate), true
	}

	if !at.After(now) {
		return invalid(reasonPastDate), true
	}
	return valid(now, at), true
}

// parseUnix handles strings of exactly 10 digits (seconds since epoch) or 13
// digits (milliseconds since epoch).
func parseUnix(expr string, now time.Time) (Result, bool) {
	if !unixRe.MatchString(expr) {
		return Result{}, false
	}

	n, err := strconv.ParseInt(expr, 10, 64)
	if err != nil {
		return Result{}, false
	}

	var at time.Time
	if len(expr) == 13 {
		at = time.UnixMilli(n)
	} else {
		at = time.Unix(n, 0)
	}
	at = at.In(now.Location())

	if !at.After(now) {
		return invalid(reasonPastUnix), true
	}
	return valid(now, at), true
}

// parseNatural recognizes a small fixed vocabulary: "tomorrow H[:MM][am|pm]",
// bare weekday names, and "next <weekday>". Anything else does not match this
// family and falls through to the generic unrecognized-format failure. The
// vocabulary is deliberately closed; it is not a general date grammar.
func parseNatural(expr string, now time.Time) (Result, bool) {
	tokens := strings.Fields(expr)

	switch {
	case len(tokens) == 1:
		if wd, ok := weekdays[tokens[0]]; ok {
			return nextWeekday(now, wd), true
		}

	case tokens[0] == "tomorrow" && (len(tokens) == 2 || len(tokens) == 3):
		tod := tokens[1]
		if len(tokens) == 3 {
			if tokens[2] != "am" && tokens[2] != "pm" {
				return Result{}, false
			}
			tod += tokens[2]
		}
		m := timeOfDay.FindStringSubmatch(tod)
		if m == nil {
			return Result{}, false
		}
		minuteStr := m[2]
		if minuteStr == "" {
			minuteStr = "00"
		}
		hour, minute, ok := convertClock(m[1], minuteStr, m[3])
		if !ok {
			return invalid(reasonInvalidTime), true
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()).AddDate(0, 0, 1)
		return valid(now, at), true

	case len(tokens) == 2 && tokens[0] == "next":
		if wd, ok := weekdays[tokens[1]]; ok {
			return nextWeekday(now, wd), true
		}
	}

	return Result{}, false
}

// nextWeekday resolves to the next future occurrence of wd at the current
// time of day. Landing on "now" itself (same weekday, same instant) is not in
// the future, so it advances exactly seven days.
func nextWeekday(now time.Time, wd time.Weekday) Result {
	days := (int(wd) - int(now.Weekday()) + 7) % 7
	at := now.AddDate(0, 0, days)
	if !at.After(now) {
		at = at.AddDate(0, 0, 7)
	}
	return valid(now, at)
}

// UnitDuration returns the duration of one relative-family unit (s/m/h/d/w).
func UnitDuration(unit string) (time.Duration, bool) {
	d, ok := unitDuration[strings.ToLower(unit)]
	return d, ok
}
