// Package timebucket maps event timestamps onto the day shards and minute
// tags used by the persisted logs.
package timebucket

import (
	"fmt"
	"time"
)

// Bucket is a minute-resolution breakdown of a timestamp. Month, Day, Hour
// and Minute are zero padded to two digits.
type Bucket struct {
	Year   string
	Month  string
	Day    string
	Hour   string
	Minute string
}

// Of breaks t down in the given location. A nil location means time.Local.
func Of(t time.Time, loc *time.Location) Bucket {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return Bucket{
		Year:   fmt.Sprintf("%d", t.Year()),
		Month:  twoDigits(int(t.Month())),
		Day:    twoDigits(t.Day()),
		Hour:   twoDigits(t.Hour()),
		Minute: twoDigits(t.Minute()),
	}
}

// Tag returns the "YYYY-MM-DD HH:MM" key used inside a shard document.
func (b Bucket) Tag() string {
	return fmt.Sprintf("%s-%s-%s %s:%s", b.Year, b.Month, b.Day, b.Hour, b.Minute)
}

// Date returns the "YYYY-MM-DD" day the bucket belongs to.
func (b Bucket) Date() string {
	return fmt.Sprintf("%s-%s-%s", b.Year, b.Month, b.Day)
}

func twoDigits(v int) string { return fmt.Sprintf("%02d", v) }
