package entitlement

import (
	"time"

	"signalHub/internal/domain"
)

// DayKey formats t as the calendar day used for daily quotas in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}

// QuotaAvailable reports whether sub may receive another signal on day.
// A subscription whose last delivery was on an earlier day always has quota.
func QuotaAvailable(tier *domain.Tier, sub *domain.Subscription, day string) bool {
	if tier.Unlimited() || sub.LastSignalDate != day {
		return true
	}
	return sub.SignalsReceivedDay < *tier.MaxSignalsPerDay
}

// NextCounter returns the counter and date after one more delivery on day.
// The counter resets on the first delivery of a new day.
func NextCounter(sub *domain.Subscription, day string) (int, string) {
	if sub.LastSignalDate != day {
		return 1, day
	}
	return sub.SignalsReceivedDay + 1, day
}

// DueAt returns when a signal created at createdAt becomes deliverable to tier.
func DueAt(createdAt time.Time, tier *domain.Tier) time.Time {
	return createdAt.Add(time.Duration(tier.DelayMinutes) * time.Minute)
}
