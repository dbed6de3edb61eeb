package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/now"
)

const DateLayout = "2006-01-02"

var ErrDateNotClosed = errors.New("bills are only available for days that have ended")

// Yesterday returns the start of the day before t in loc.
func Yesterday(t time.Time, loc *time.Location) time.Time {
	return now.With(t.In(loc)).BeginningOfDay().AddDate(0, 0, -1)
}

func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse bill date %q: %w", s, err)
	}
	return d, nil
}

// TargetDate resolves the bill date of a run: the override when given,
// yesterday otherwise. Today and later days are rejected.
func TargetDate(override string, t time.Time, loc *time.Location) (time.Time, error) {
	if override == "" {
		return Yesterday(t, loc), nil
	}
	d, err := ParseDate(override, loc)
	if err != nil {
		return time.Time{}, err
	}
	if !d.Before(now.With(t.In(loc)).BeginningOfDay()) {
		return time.Time{}, fmt.Errorf("%s: %w", override, ErrDateNotClosed)
	}
	return d, nil
}

// LockKey names the run lock of a bill date.
func LockKey(date string) string {
	return "alipay-bill:download:" + date
}
