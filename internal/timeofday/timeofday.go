// Package timeofday resolves the time-of-day bucket for a text unit.
// An explicit mention in the text always wins over the post timestamp:
// "this morning was brutal" posted at 9pm describes the morning.
package timeofday

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/transitlab/transitpulse/internal/feedback"
)

// Hour boundaries for timestamp bucketing, local Chicago time.
const (
	morningStart   = 5
	afternoonStart = 12
	eveningStart   = 17
	nightStart     = 21
)

var bucketKeywords = []struct {
	bucket   feedback.TimeBucket
	keywords []string
}{
	{feedback.BucketNight, []string{
		"tonight", "last night", "late night", "at night", "midnight",
		"overnight", "late-night",
	}},
	{feedback.BucketMorning, []string{
		"this morning", "in the morning", "morning commute", "morning rush",
		"early morning", "every morning", "am rush",
	}},
	{feedback.BucketAfternoon, []string{
		"this afternoon", "in the afternoon", "afternoon commute", "midday",
		"at noon", "lunchtime", "lunch hour",
	}},
	{feedback.BucketEvening, []string{
		"this evening", "in the evening", "evening commute", "evening rush",
		"after work", "pm rush",
	}},
}

var (
	clockRe   = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clock24Re = regexp.MustCompile(`\b([01]?\d|2[0-3]):[0-5]\d\b`)
)

// Resolver buckets timestamps in the transit system's local time zone.
type Resolver struct {
	loc *time.Location
}

// NewResolver loads the America/Chicago zone.
func NewResolver() (*Resolver, error) {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		return nil, fmt.Errorf("loading chicago time zone: %w", err)
	}
	return &Resolver{loc: loc}, nil
}

// Resolve returns the bucket for a unit plus whether it came from the text.
// Text evidence is checked first; only silence falls through to the
// timestamp, and a zero timestamp yields BucketUnknown.
func (r *Resolver) Resolve(text string, createdAt time.Time) (feedback.TimeBucket, bool) {
	if b, ok := FromText(text); ok {
		return b, true
	}
	return r.FromTimestamp(createdAt), false
}

// FromText scans canonical text for explicit time evidence: a clock time
// like "7:30 pm" or "17:30" first, then named-period keywords. Clock times
// are the stronger cue since keywords like "morning" can appear in
// "morning person".
func FromText(text string) (feedback.TimeBucket, bool) {
	if m := clockRe.FindStringSubmatch(text); m != nil {
		hour, err := strconv.Atoi(m[1])
		if err == nil && hour >= 1 && hour <= 12 {
			if m[3] == "pm" && hour != 12 {
				hour += 12
			} else if m[3] == "am" && hour == 12 {
				hour = 0
			}
			return BucketForHour(hour), true
		}
	}
	if m := clock24Re.FindStringSubmatch(text); m != nil {
		hour, err := strconv.Atoi(m[1])
		if err == nil {
			return BucketForHour(hour), true
		}
	}
	for _, group := range bucketKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(text, kw) {
				return group.bucket, true
			}
		}
	}
	return feedback.BucketUnknown, false
}

// FromTimestamp buckets a timestamp by its Chicago-local hour. The zero
// time means the source never provided one.
func (r *Resolver) FromTimestamp(t time.Time) feedback.TimeBucket {
	if t.IsZero() {
		return feedback.BucketUnknown
	}
	return BucketForHour(t.In(r.loc).Hour())
}

// BucketForHour maps an hour of day to its bucket.
func BucketForHour(hour int) feedback.TimeBucket {
	switch {
	case hour >= morningStart && hour < afternoonStart:
		return feedback.BucketMorning
	case hour >= afternoonStart && hour < eveningStart:
		return feedback.BucketAfternoon
	case hour >= eveningStart && hour < nightStart:
		return feedback.BucketEvening
	default:
		return feedback.BucketNight
	}
}
