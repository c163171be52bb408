// Package tier classifies facts into hot, warm, and cold by access recency,
// with frequently accessed facts resisting decay.
package tier

import (
	"math"
	"time"
)

// Tier controls whether and where a fact appears in a rendered summary.
type Tier string

const (
	Hot  Tier = "hot"
	Warm Tier = "warm"
	Cold Tier = "cold"
)

// Config holds the tuning parameters for classification.
type Config struct {
	HotDays           int `mapstructure:"hot_days" toml:"hot_days"`
	WarmDays          int `mapstructure:"warm_days" toml:"warm_days"`
	HighFreqThreshold int `mapstructure:"high_freq_threshold" toml:"high_freq_threshold"`
}

// DefaultConfig returns the stock 7/30/10 tiering.
func DefaultConfig() Config {
	return Config{HotDays: 7, WarmDays: 30, HighFreqThreshold: 10}
}

// unknownAge is substituted for a missing or unparsable lastAccessed date.
const unknownAge = 100

var layouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseDate parses the date formats found in fact documents. Zone-less
// values are interpreted in loc.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DaysSince returns the whole number of days between lastAccessed and now,
// floored. Both are compared as wall-clock times in now's location, so a
// DST shift does not move a date across a day boundary. Missing or
// unparsable dates count as 100 days old.
func DaysSince(lastAccessed string, now time.Time) int {
	loc := now.Location()
	t, ok := ParseDate(lastAccessed, loc)
	if !ok {
		return unknownAge
	}
	return int(math.Floor(wallClock(now).Sub(wallClock(t.In(loc))).Hours() / 24))
}

// wallClock re-reads t's local date and time as UTC.
func wallClock(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Classify maps access statistics to a tier. Frequency overrides recency.
func Classify(lastAccessed string, accessCount int, now time.Time, cfg Config) Tier {
	if accessCount >= cfg.HighFreqThreshold {
		return Hot
	}
	days := DaysSince(lastAccessed, now)
	switch {
	case days <= cfg.HotDays:
		return Hot
	case days <= cfg.WarmDays:
		return Warm
	default:
		return Cold
	}
}
