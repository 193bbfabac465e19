package repository

import "time"

// Bucket is the aggregation period of a rollup.
type Bucket string

const (
	BucketDaily  Bucket = "daily"
	BucketWeekly Bucket = "weekly"
)

// IsValidBucket returns true if b is a supported bucket.
func IsValidBucket(b Bucket) bool {
	switch b {
	case BucketDaily, BucketWeekly:
		return true
	default:
		return false
	}
}

// BucketRange returns the half-open [start, end) range of the bucket containing t, in UTC.
// Weekly buckets start on Monday.
func BucketRange(b Bucket, t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if b == BucketWeekly {
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	}
	return day, day.AddDate(0, 0, 1)
}
