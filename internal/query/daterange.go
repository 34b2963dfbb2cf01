package query

import (
	"time"
)

const secondsPerDay = 24 * 60 * 60

// ResolveDateRange turns a preset into concrete filters relative to now.
// The result is meant to replace the query's filters, never to be merged:
// all-time yields empty filters so stale bounds do not survive.
func ResolveDateRange(preset DateRangePreset, now time.Time) (Filters, error) {
	var days int64
	switch preset {
	case RangeLast24Hours:
		days = 1
	case RangeLast7Days:
		days = 7
	case RangeLast30Days:
		days = 30
	case RangeAllTime:
		return Filters{}, nil
	default:
		return Filters{}, invalid(ErrInvalidDateRange, "date_range", "unsupported preset %q", preset)
	}

	start := now.Unix() - days*secondsPerDay
	return Filters{CreatedAtStart: &start}, nil
}

// IsValidDateRangePreset reports whether preset is one of DateRangePresets
func IsValidDateRangePreset(preset DateRangePreset) bool {
	for _, p := range DateRangePresets {
		if p == preset {
			return true
		}
	}
	return false
}
