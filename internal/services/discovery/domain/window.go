package domain

import "time"

// WindowStartDate returns the first day of the rolling window. After 23:00
// local the window starts tomorrow; odds anything opens for today that late
// are negligible and we would rather drop the day early
func WindowStartDate(now time.Time) time.Time {
	d := now
	if now.Hour() >= 23 {
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}

// BucketID builds the stable bucket key, e.g. "2026-02-12_15:00".
// Zero-padded so string comparison orders the same as date comparison
func BucketID(dateStr, timeSlot string) string { return dateStr + "_" + timeSlot }

// WindowBuckets enumerates the expected (windowDays x len(timeSlots)) refs
// starting at start
func WindowBuckets(start time.Time, windowDays int, timeSlots []string) []BucketRef {
	out := make([]BucketRef, 0, windowDays*len(timeSlots))
	for offset := 0; offset < windowDays; offset++ {
		dateStr := start.AddDate(0, 0, offset).Format("2006-01-02")
		for _, ts := range timeSlots {
			out = append(out, BucketRef{BucketID: BucketID(dateStr, ts), DateStr: dateStr, TimeSlot: ts})
		}
	}
	return out
}

// TimeBucketOf maps a bucket time slot to the coarse demand band.
// The late anchor is prime time, everything else is off peak
func TimeBucketOf(timeSlot string) string {
	if timeSlot == "19:00" {
		return TimeBucketPrime
	}
	return TimeBucketOffPeak
}

// DedupeKeyNewDrop builds the idempotency key for a NEW_DROP at openedAt,
// truncated to the minute
func DedupeKeyNewDrop(bucketID, slotID string, openedAt time.Time) string {
	return bucketID + "|" + slotID + "|" + openedAt.UTC().Format("2006-01-02T15:04")
}

// DedupeKeyClosed builds the idempotency key for a CLOSED at closedAt.
// The prefix keeps an open and a close in the same minute from colliding
func DedupeKeyClosed(bucketID, slotID string, closedAt time.Time) string {
	return "closed|" + bucketID + "|" + slotID + "|" + closedAt.UTC().Format("2006-01-02T15:04")
}
