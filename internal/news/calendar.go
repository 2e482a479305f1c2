package news

import (
	"sort"
	"sync"
	"time"

	"signalHub/internal/domain"
)

// DefaultWindowDays is the length of the rolling calendar.
const DefaultWindowDays = 7

// cacheRetentionDays bounds how far from the latest generated day memoised days are kept.
const cacheRetentionDays = 2 * DefaultWindowDays

const dayKeyLayout = "2006-01-02"

// Rule is a recurrence heuristic for a scheduled release.
type Rule struct {
	Name     string
	Currency string
	Weekday  time.Weekday
	Nth      int          // 1..5 for the nth weekday of the month; 0 for every week
	Hour     int          // UTC
	Minute   int          // UTC
	Months   []time.Month // nil for every month
}

func (r Rule) matches(day time.Time) bool {
	if day.Weekday() != r.Weekday {
		return false
	}
	if r.Nth > 0 && (day.Day()-1)/7+1 != r.Nth {
		return false
	}
	if len(r.Months) == 0 {
		return true
	}
	for _, m := range r.Months {
		if m == day.Month() {
			return true
		}
	}
	return false
}

var (
	fomcMonths = []time.Month{time.January, time.March, time.May, time.June, time.July, time.September, time.November, time.December}
	ecbMonths  = []time.Month{time.January, time.March, time.April, time.June, time.July, time.September, time.October, time.December}
	boeMonths  = []time.Month{time.February, time.March, time.May, time.June, time.August, time.September, time.November, time.December}
	bojMonths  = ecbMonths
	rbaMonths  = []time.Month{time.February, time.March, time.April, time.May, time.June, time.July, time.August, time.September, time.October, time.November, time.December}
)

// DefaultRules approximates the major recurring macro releases.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "Non-Farm Payrolls", Currency: "USD", Weekday: time.Friday, Nth: 1, Hour: 12, Minute: 30},
		{Name: "Unemployment Rate", Currency: "USD", Weekday: time.Friday, Nth: 1, Hour: 12, Minute: 30},
		{Name: "Initial Jobless Claims", Currency: "USD", Weekday: time.Thursday, Hour: 12, Minute: 30},
		{Name: "CPI m/m", Currency: "USD", Weekday: time.Wednesday, Nth: 2, Hour: 12, Minute: 30},
		{Name: "Retail Sales m/m", Currency: "USD", Weekday: time.Tuesday, Nth: 3, Hour: 12, Minute: 30},
		{Name: "FOMC Interest Rate Decision", Currency: "USD", Weekday: time.Wednesday, Nth: 3, Hour: 18, Months: fomcMonths},
		{Name: "ISM Manufacturing PMI", Currency: "USD", Weekday: time.Monday, Nth: 1, Hour: 14},
		{Name: "Crude Oil Inventories", Currency: "USD", Weekday: time.Wednesday, Hour: 14, Minute: 30},
		{Name: "Building Permits", Currency: "USD", Weekday: time.Thursday, Nth: 3, Hour: 12, Minute: 30},
		{Name: "Consumer Sentiment", Currency: "USD", Weekday: time.Friday, Nth: 2, Hour: 14},
		{Name: "ECB Interest Rate Decision", Currency: "EUR", Weekday: time.Thursday, Nth: 2, Hour: 12, Minute: 15, Months: ecbMonths},
		{Name: "German ZEW Economic Sentiment", Currency: "EUR", Weekday: time.Tuesday, Nth: 3, Hour: 9},
		{Name: "Eurozone Manufacturing PMI", Currency: "EUR", Weekday: time.Monday, Nth: 1, Hour: 8},
		{Name: "BoE Interest Rate Decision", Currency: "GBP", Weekday: time.Thursday, Nth: 1, Hour: 11, Months: boeMonths},
		{Name: "UK GDP m/m", Currency: "GBP", Weekday: time.Friday, Nth: 2, Hour: 6},
		{Name: "BoJ Interest Rate Decision", Currency: "JPY", Weekday: time.Friday, Nth: 3, Hour: 3, Months: bojMonths},
		{Name: "RBA Interest Rate Decision", Currency: "AUD", Weekday: time.Tuesday, Nth: 1, Hour: 3, Minute: 30, Months: rbaMonths},
		{Name: "Employment Change", Currency: "CAD", Weekday: time.Friday, Nth: 1, Hour: 12, Minute: 30},
	}
}

// Calendar generates economic events from recurrence rules.
// Generated days are memoised around the most recent query; rules are deterministic,
// so an evicted day regenerates identically.
type Calendar struct {
	rules []Rule

	mu    sync.Mutex
	cache map[string][]domain.EconomicEvent
}

// NewCalendar creates a calendar over rules; nil selects DefaultRules.
func NewCalendar(rules []Rule) *Calendar {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Calendar{rules: rules, cache: make(map[string][]domain.EconomicEvent)}
}

// EventsOn returns the events scheduled on the UTC calendar day containing day, ordered by time.
func (c *Calendar) EventsOn(day time.Time) []domain.EconomicEvent {
	midnight := dayStart(day)
	key := midnight.Format(dayKeyLayout)

	c.mu.Lock()
	defer c.mu.Unlock()
	if events, ok := c.cache[key]; ok {
		return append([]domain.EconomicEvent(nil), events...)
	}

	var events []domain.EconomicEvent
	for _, r := range c.rules {
		if !r.matches(midnight) {
			continue
		}
		impact := Classify(r.Name)
		events = append(events, domain.EconomicEvent{
			ScheduledAt:  midnight.Add(time.Duration(r.Hour)*time.Hour + time.Duration(r.Minute)*time.Minute),
			Currency:     r.Currency,
			Name:         r.Name,
			Impact:       impact,
			ExpectedPips: ProfileFor(impact).AvgPips,
		})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].ScheduledAt.Before(events[j].ScheduledAt) })
	c.cache[key] = events
	c.prune(midnight)
	return append([]domain.EconomicEvent(nil), events...)
}

// prune drops memoised days further than cacheRetentionDays from day. Callers hold c.mu.
func (c *Calendar) prune(day time.Time) {
	oldest := day.AddDate(0, 0, -cacheRetentionDays).Format(dayKeyLayout)
	newest := day.AddDate(0, 0, cacheRetentionDays).Format(dayKeyLayout)
	for k := range c.cache {
		if k < oldest || k > newest {
			delete(c.cache, k)
		}
	}
}

// Upcoming returns the events of the days days starting with the day containing from.
func (c *Calendar) Upcoming(from time.Time, days int) []domain.EconomicEvent {
	if days <= 0 {
		days = DefaultWindowDays
	}
	var out []domain.EconomicEvent
	for i := 0; i < days; i++ {
		out = append(out, c.EventsOn(from.AddDate(0, 0, i))...)
	}
	return out
}

// Between returns events affecting symbol scheduled in [from, to].
func (c *Calendar) Between(symbol string, from, to time.Time) []domain.EconomicEvent {
	var out []domain.EconomicEvent
	end := dayStart(to)
	for day := dayStart(from); !day.After(end); day = day.AddDate(0, 0, 1) {
		for _, ev := range c.EventsOn(day) {
			if ev.ScheduledAt.Before(from) || ev.ScheduledAt.After(to) {
				continue
			}
			if Affects(symbol, ev.Currency) {
				out = append(out, ev)
			}
		}
	}
	return out
}

func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
