package db

import (
	"time"

	"hermannm.dev/enumnames"
)

// DateInterval is the calendar granularity that time buckets are truncated to.
type DateInterval int8

const (
	DateIntervalYear DateInterval = iota + 1
	DateIntervalQuarter
	DateIntervalMonth
	DateIntervalWeek
	DateIntervalDay
)

var dateIntervalMap = enumnames.NewMap(map[DateInterval]string{
	DateIntervalYear:    "YEAR",
	DateIntervalQuarter: "QUARTER",
	DateIntervalMonth:   "MONTH",
	DateIntervalWeek:    "WEEK",
	DateIntervalDay:     "DAY",
})

func (dateInterval DateInterval) IsValid() bool {
	_, ok := dateIntervalMap.GetName(dateInterval)
	return ok
}

func (dateInterval DateInterval) String() string {
	return dateIntervalMap.GetNameOrFallback(dateInterval, "INVALID_DATE_INTERVAL")
}

func (dateInterval DateInterval) MarshalJSON() ([]byte, error) {
	return dateIntervalMap.MarshalToNameJSON(dateInterval)
}

func (dateInterval *DateInterval) UnmarshalJSON(bytes []byte) error {
	return dateIntervalMap.UnmarshalFromNameJSON(bytes, dateInterval)
}

// Truncate returns the start of the bucket containing the given time, in UTC. Weeks start on
// Sunday, matching both supported warehouses.
func (dateInterval DateInterval) Truncate(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	switch dateInterval {
	case DateIntervalWeek:
		return day.AddDate(0, 0, -int(day.Weekday()))
	case DateIntervalMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case DateIntervalQuarter:
		quarterStart := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), quarterStart, 1, 0, 0, 0, 0, time.UTC)
	case DateIntervalYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}
