// Package rowkey builds fixed-width decimal row keys whose lexicographic order
// follows creation time.
package rowkey

import (
	"fmt"
	"time"
)

const (
	// ticksPerSecond matches a 100ns tick.
	ticksPerSecond = 10_000_000
	// unixEpochTicks is the tick count of 1970-01-01T00:00:00Z counted from 0001-01-01.
	unixEpochTicks int64 = 621_355_968_000_000_000
	// MaxTicks is the tick count of 9999-12-31T23:59:59.9999999Z.
	MaxTicks int64 = 3_155_378_975_999_999_999

	Width = 19
)

// Ticks returns t as 100ns ticks since 0001-01-01 UTC.
func Ticks(t time.Time) int64 {
	t = t.UTC()
	return unixEpochTicks + t.Unix()*ticksPerSecond + int64(t.Nanosecond())/100
}

// MostRecentToOldest returns a key for t that sorts before keys of earlier instants.
func MostRecentToOldest(t time.Time) string {
	return format(MaxTicks - Ticks(t))
}

// OldestToMostRecent returns a key for t that sorts after keys of earlier instants.
func OldestToMostRecent(t time.Time) string {
	return format(Ticks(t))
}

func CreateNewKeyOrderingMostRecentToOldest() string {
	return MostRecentToOldest(time.Now())
}

func CreateNewKeyOrderingOldestToMostRecent() string {
	return OldestToMostRecent(time.Now())
}

func format(ticks int64) string {
	return fmt.Sprintf("%0*d", Width, ticks)
}
