// Package timestamp handles capture timestamps: unsigned microseconds since
// the Unix epoch, UTC. Zero means "not set".
//
//	ts := timestamp.Now()
//	t := timestamp.ToTime(ts)
//	fmt.Println(timestamp.Format(ts))
package timestamp

import (
	"fmt"
	"time"
)

// Micros is a capture timestamp in microseconds since the Unix epoch.
type Micros = uint64

// Now returns the current wall-clock time in microseconds.
func Now() Micros {
	return FromTime(time.Now())
}

// FromTime converts t to microseconds. Times before the epoch map to zero.
func FromTime(t time.Time) Micros {
	if t.IsZero() {
		return 0
	}
	us := t.UnixMicro()
	if us < 0 {
		return 0
	}
	return Micros(us)
}

// ToTime converts us back to a UTC time. Zero yields the zero time.
func ToTime(us Micros) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(int64(us)).UTC()
}

// Format renders us as RFC3339 with microsecond precision, or "" for zero.
func Format(us Micros) string {
	if us == 0 {
		return ""
	}
	return ToTime(us).Format("2006-01-02T15:04:05.000000Z07:00")
}

// Since returns the elapsed time since us. Zero yields zero.
func Since(us Micros) time.Duration {
	if us == 0 {
		return 0
	}
	return time.Since(ToTime(us))
}

// Between returns end - start, negative if end precedes start.
func Between(start, end Micros) time.Duration {
	return time.Duration(int64(end)-int64(start)) * time.Microsecond
}

// Validate rejects timestamps that are unset or implausibly far in the future.
func Validate(us Micros) error {
	if us == 0 {
		return fmt.Errorf("timestamp not set")
	}
	if ToTime(us).After(time.Now().Add(24 * time.Hour)) {
		return fmt.Errorf("timestamp %s is in the future", Format(us))
	}
	return nil
}
