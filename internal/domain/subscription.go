package domain

import "time"

// Subscription entitles a subscriber to signals of a tier for a period.
type Subscription struct {
	ID                 int64
	SubscriberID       int64
	Tier               string
	PeriodStart        time.Time
	PeriodEnd          time.Time
	SignalsReceivedDay int
	LastSignalDate     string // YYYY-MM-DD in the quota timezone; empty before the first delivery
	Destination        string // Messaging address, e.g. a chat id
	Active             bool
}

// CoversTime reports whether t falls within the paid period.
func (s *Subscription) CoversTime(t time.Time) bool {
	return s.Active && !t.Before(s.PeriodStart) && t.Before(s.PeriodEnd)
}

// Delivery is the receipt that a subscriber was sent a signal.
type Delivery struct {
	ID           int64
	SignalID     int64
	SubscriberID int64
	Tier         string
	DeliveredAt  time.Time
}
