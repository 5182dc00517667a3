package traceparse

import (
	"strconv"
	"strings"
	"time"
)

const (
	dateLen     = 10 // YYYY-MM-DD
	timeStart   = 11
	timeEnd     = 24 // HH:MM:SS.ffff
	clockLen    = 8  // HH:MM:SS
	fractionLen = 4
)

// IsEventHeader reports whether line opens a new trace event. Line sources
// use it to keep each sender's events whole.
func IsEventHeader(line string) bool {
	_, _, ok := parseHeader(strings.TrimRight(line, "\r\n "))
	return ok
}

// parseHeader recognizes "YYYY-MM-DDTHH:MM:SS.ffff <...> EVENT_NAME".
// ok is false when the prefix is not a valid calendar date and clock time.
func parseHeader(line string) (ts time.Time, eventName string, ok bool) {
	if len(line) <= dateLen || line[4] != '-' || line[7] != '-' || line[dateLen] != 'T' {
		return time.Time{}, "", false
	}
	year, month, day, ok := parseDate(line[:dateLen])
	if !ok {
		return time.Time{}, "", false
	}
	timeField := line[timeStart:min(timeEnd, len(line))]
	hour, minute, sec, micro, ok := parseClock(timeField)
	if !ok {
		return time.Time{}, "", false
	}

	eventName = line
	if i := strings.LastIndexByte(line, ' '); i >= 0 {
		eventName = line[i+1:]
	}
	ts = time.Date(year, time.Month(month), day, hour, minute, sec, micro*int(time.Microsecond), time.UTC)
	return ts, eventName, true
}

func parseDate(s string) (year, month, day int, ok bool) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var err error
	if year, err = atoiStrict(parts[0]); err != nil || year < 1 {
		return 0, 0, 0, false
	}
	if month, err = atoiStrict(parts[1]); err != nil || month < 1 || month > 12 {
		return 0, 0, 0, false
	}
	if day, err = atoiStrict(parts[2]); err != nil || day < 1 || day > daysIn(year, month) {
		return 0, 0, 0, false
	}
	return year, month, day, true
}

// parseClock reads HH:MM:SS from the first 8 characters and the sub-second
// digits from the last 4, which are tenths of a millisecond.
func parseClock(s string) (hour, minute, sec, micro int, ok bool) {
	if len(s) < clockLen+fractionLen {
		return 0, 0, 0, 0, false
	}
	parts := strings.SplitN(s[:clockLen], ":", 3)
	if len(parts) != 3 {
		return 0, 0, 0, 0, false
	}
	var err error
	if hour, err = atoiStrict(parts[0]); err != nil || hour > 23 {
		return 0, 0, 0, 0, false
	}
	if minute, err = atoiStrict(parts[1]); err != nil || minute > 59 {
		return 0, 0, 0, 0, false
	}
	if sec, err = atoiStrict(parts[2]); err != nil || sec > 59 {
		return 0, 0, 0, 0, false
	}
	frac, err := atoiStrict(s[len(s)-fractionLen:])
	if err != nil {
		return 0, 0, 0, 0, false
	}
	return hour, minute, sec, frac * 100, true
}

// atoiStrict accepts only ASCII digits, so "+1" or " 1" never parse.
func atoiStrict(s string) (int, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
