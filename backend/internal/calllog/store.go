// Package calllog records per-call usage and answers the dashboard's
// minutes and call-count questions.
package calllog

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// Call is one logged phone call.
type Call struct {
	CallSID     string  `json:"call_sid"`
	ClientSlug  string  `json:"client_slug"`
	CallDate    string  `json:"call_date"`
	DurationSec int     `json:"duration_sec"`
	MinutesUsed float64 `json:"minutes_used"`
	Answered    bool    `json:"answered"`
	AIHandled   bool    `json:"ai_handled"`
	OrderID     string  `json:"order_id,omitempty"`
	OrderLogged bool    `json:"order_logged"`
	OrderTotal  float64 `json:"order_total,omitempty"`
}

// DayTotal aggregates one client's calls for a single date.
type DayTotal struct {
	Date    string
	Minutes float64
	Calls   int
}

// Store persists calls. LogCall reports false when the call id was
// already recorded.
type Store interface {
	LogCall(ctx context.Context, c Call) (bool, error)
	DailyTotals(ctx context.Context, client, since string) ([]DayTotal, error)
}

// MinutesFor converts a duration in seconds to billable minutes rounded
// to two decimals.
func MinutesFor(durationSec int) float64 {
	return math.Round(float64(durationSec)/60*100) / 100
}

// MemoryStore keeps calls in process. Used when no database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	calls map[string]Call
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: make(map[string]Call)}
}

func (m *MemoryStore) LogCall(_ context.Context, c Call) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[c.CallSID]; ok {
		return false, nil
	}
	m.calls[c.CallSID] = c
	return true, nil
}

func (m *MemoryStore) DailyTotals(_ context.Context, client, since string) ([]DayTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byDate := make(map[string]*DayTotal)
	for _, c := range m.calls {
		if c.ClientSlug != client || c.CallDate < since {
			continue
		}
		d, ok := byDate[c.CallDate]
		if !ok {
			d = &DayTotal{Date: c.CallDate}
			byDate[c.CallDate] = d
		}
		d.Minutes += c.MinutesUsed
		d.Calls++
	}

	out := make([]DayTotal, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Len reports how many calls are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// DayMinutes is one point of the seven-day minutes series.
type DayMinutes struct {
	Date    string  `json:"date"`
	Minutes float64 `json:"minutes"`
}

// DayCalls is one point of the seven-day call-count series.
type DayCalls struct {
	Date  string `json:"date"`
	Calls int    `json:"calls"`
}

// Stats is the usage summary served to the dashboard.
type Stats struct {
	TotalMinutesToday float64      `json:"total_minutes_today"`
	TotalMinutesWeek  float64      `json:"total_minutes_week"`
	TotalMinutesMonth float64      `json:"total_minutes_month"`
	TotalCallsToday   int          `json:"total_calls_today"`
	TotalCallsWeek    int          `json:"total_calls_week"`
	TotalCallsMonth   int          `json:"total_calls_month"`
	DailyMinutes      []DayMinutes `json:"daily_minutes"`
	DailyCalls        []DayCalls   `json:"daily_calls"`
}

// ComputeStats builds the summary for client as of now (UTC dates). The
// week covers the last seven days, the month the last thirty, and the
// daily series always holds seven zero-filled points ending today.
func ComputeStats(ctx context.Context, store Store, client string, now time.Time) (*Stats, error) {
	now = now.UTC()
	today := now.Format(dateLayout)
	weekAgo := now.AddDate(0, 0, -7).Format(dateLayout)
	monthAgo := now.AddDate(0, 0, -30).Format(dateLayout)

	totals, err := store.DailyTotals(ctx, client, monthAgo)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]DayTotal, len(totals))
	stats := &Stats{}
	for _, d := range totals {
		byDate[d.Date] = d
		stats.TotalMinutesMonth += d.Minutes
		stats.TotalCallsMonth += d.Calls
		if d.Date >= weekAgo {
			stats.TotalMinutesWeek += d.Minutes
			stats.TotalCallsWeek += d.Calls
		}
		if d.Date == today {
			stats.TotalMinutesToday += d.Minutes
			stats.TotalCallsToday += d.Calls
		}
	}
	stats.TotalMinutesToday = round2(stats.TotalMinutesToday)
	stats.TotalMinutesWeek = round2(stats.TotalMinutesWeek)
	stats.TotalMinutesMonth = round2(stats.TotalMinutesMonth)

	for i := 6; i >= 0; i-- {
		date := now.AddDate(0, 0, -i).Format(dateLayout)
		d := byDate[date]
		stats.DailyMinutes = append(stats.DailyMinutes, DayMinutes{Date: date, Minutes: round2(d.Minutes)})
		stats.DailyCalls = append(stats.DailyCalls, DayCalls{Date: date, Calls: d.Calls})
	}
	return stats, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
