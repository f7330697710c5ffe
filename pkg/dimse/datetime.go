package dimse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DA and TM layouts (PS3.5 6.2)
const (
	DateLayout = "20060102"
	TimeLayout = "150405"
)

// FormatDate renders t as a DA value
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DateRange renders a DA range matching key ("from-to"), or a single date when both ends are equal
func DateRange(from, to string) string {
	if from == to {
		return from
	}
	return fmt.Sprintf("%s-%s", from, to)
}

// ParseDate parses a DA value. Legacy "YYYY.MM.DD" values are accepted.
func ParseDate(da string, loc *time.Location) (time.Time, error) {
	da = strings.TrimSpace(strings.ReplaceAll(da, ".", ""))
	if len(da) != 8 {
		return time.Time{}, fmt.Errorf("invalid DA value %q", da)
	}
	return time.ParseInLocation(DateLayout, da, loc)
}

// ParseTime parses a TM value into an offset from midnight.
// Accepts HH, HHMM, HHMMSS, HHMMSS.FFFFFF and the legacy colon separated forms.
func ParseTime(tm string) (time.Duration, error) {
	tm = strings.TrimSpace(strings.ReplaceAll(tm, ":", ""))
	if tm == "" {
		return 0, fmt.Errorf("empty TM value")
	}

	var frac string
	if i := strings.IndexByte(tm, '.'); i >= 0 {
		frac = tm[i+1:]
		tm = tm[:i]
	}

	switch len(tm) {
	case 2, 4, 6:
	default:
		return 0, fmt.Errorf("invalid TM value %q", tm)
	}
	tm += strings.Repeat("0", 6-len(tm))

	t, err := time.Parse(TimeLayout, tm)
	if err != nil {
		return 0, fmt.Errorf("invalid TM value %q: %w", tm, err)
	}
	offset := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second

	if frac != "" {
		if len(frac) > 6 {
			return 0, fmt.Errorf("invalid TM fraction %q", frac)
		}
		micros, err := strconv.Atoi(frac + strings.Repeat("0", 6-len(frac)))
		if err != nil || micros < 0 {
			return 0, fmt.Errorf("invalid TM fraction %q", frac)
		}
		offset += time.Duration(micros) * time.Microsecond
	}
	return offset, nil
}

// ParseDateTime combines a DA and a TM value in loc
func ParseDateTime(da, tm string, loc *time.Location) (time.Time, error) {
	day, err := ParseDate(da, loc)
	if err != nil {
		return time.Time{}, err
	}
	offset, err := ParseTime(tm)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(offset), nil
}

// ResolveDay maps "today", "yesterday" or a YYYYMMDD value to a DA value
func ResolveDay(keyword string, now time.Time) (string, error) {
	switch strings.ToLower(strings.TrimSpace(keyword)) {
	case "today":
		return FormatDate(now), nil
	case "yesterday":
		return FormatDate(now.AddDate(0, 0, -1)), nil
	}
	t, err := time.ParseInLocation(DateLayout, keyword, now.Location())
	if err != nil {
		return "", fmt.Errorf("invalid day %q: use today, yesterday or YYYYMMDD", keyword)
	}
	return FormatDate(t), nil
}
