package value

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Millis truncates t to millisecond precision in UTC.
func Millis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// PackDate encodes a calendar day as yyyymmdd.
func PackDate(t time.Time) int64 {
	y, m, d := t.UTC().Date()
	return int64(y)*10000 + int64(m)*100 + int64(d)
}

// UnpackDate reverses PackDate.
func UnpackDate(n int64) (time.Time, error) {
	y, m, d := int(n/10000), time.Month(n/100%100), int(n%100)
	if m < time.January || m > time.December || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("value: invalid packed date %d", n)
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, fmt.Errorf("value: invalid packed date %d", n)
	}
	return t, nil
}
