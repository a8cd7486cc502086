package archive

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The remote pages carry dates in one of three shapes: spelled-out Italian
// ("23 marzo 2025"), ISO ("2025-03-23"), or slash-delimited ("23/03/2025").
// Extraction tries the patterns in that order and the first match wins; later
// patterns are never consulted once one matched.

var italianMonths = map[string]time.Month{
	"gennaio":   time.January,
	"febbraio":  time.February,
	"marzo":     time.March,
	"aprile":    time.April,
	"maggio":    time.May,
	"giugno":    time.June,
	"luglio":    time.July,
	"agosto":    time.August,
	"settembre": time.September,
	"ottobre":   time.October,
	"novembre":  time.November,
	"dicembre":  time.December,
}

var (
	italianDatePattern = regexp.MustCompile(`(?i)(\d{1,2})\s+(gennaio|febbraio|marzo|aprile|maggio|giugno|luglio|agosto|settembre|ottobre|novembre|dicembre)\s+(\d{4})`)
	isoDatePattern     = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	slashDatePattern   = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
)

// ExtractDate scans text for a session date. It returns the zero time and
// false when no pattern matches or the first matching pattern carries an
// impossible date.
func ExtractDate(text string) (time.Time, bool) {
	if m := italianDatePattern.FindStringSubmatch(text); m != nil {
		day := atoi(m[1])
		month := italianMonths[strings.ToLower(m[2])]
		year := atoi(m[3])
		return makeDay(year, month, day)
	}
	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		return makeDay(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]))
	}
	if m := slashDatePattern.FindStringSubmatch(text); m != nil {
		return makeDay(atoi(m[3]), time.Month(atoi(m[2])), atoi(m[1]))
	}
	return time.Time{}, false
}

// Filenames produced by the rename step embed an ISO date between
// underscores or before the extension.
var filenameDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`_(\d{4}-\d{2}-\d{2})_`),
	regexp.MustCompile(`_(\d{4}-\d{2}-\d{2})\.`),
	regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_`),
	regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\.`),
}

// ExtractFilenameDate pulls a validated ISO date out of a renamed filename.
func ExtractFilenameDate(filename string) (time.Time, bool) {
	for _, re := range filenameDatePatterns {
		m := re.FindStringSubmatch(filename)
		if m == nil {
			continue
		}
		if t, err := time.ParseInLocation("2006-01-02", m[1], time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func makeDay(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 || year < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		// Normalized by time.Date, e.g. 31/02: not a real date.
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
