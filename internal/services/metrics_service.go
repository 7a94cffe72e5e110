// Package services – Metrics
//
// This file implements the dashboard metrics engine. Every aggregate is a
// pure function of the conversation/error corpus and the requested window:
// repeated calls with identical inputs produce identical output, and no
// state is cached or mutated. Reads may run with arbitrary parallelism.
package services

import (
	"context"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/sporttia/onboarding-backend/internal/domain"
	"github.com/sporttia/onboarding-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Totals carries conversation counts over the standard windows.
type Totals struct {
	Today    int64 `json:"today"`
	ThisWeek int64 `json:"this_week"`
	AllTime  int64 `json:"all_time"`
	Period   int64 `json:"period"`
}

// StatusBreakdown counts conversations per current status, over all time and
// restricted to the period.
type StatusBreakdown struct {
	AllTime map[string]int64 `json:"all_time"`
	Period  map[string]int64 `json:"period"`
}

// Rates are terminal-outcome percentages over the period total, each rounded
// to one decimal. All zero when the period holds no conversations.
type Rates struct {
	Completion  float64 `json:"completion"`
	Abandonment float64 `json:"abandonment"`
	Error       float64 `json:"error"`
}

// FunnelStage is one conversion step. Conversion is the percentage relative
// to the previous stage and is omitted when that stage counted zero.
type FunnelStage struct {
	Stage      string   `json:"stage"`
	Count      int64    `json:"count"`
	Conversion *float64 `json:"conversion,omitempty"`
}

// DailyTrend holds the per-day counts for conversations created that day.
type DailyTrend struct {
	Date      string `json:"date"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Errors    int64  `json:"errors"`
}

// DashboardMetrics is the full metrics payload served to the dashboard.
type DashboardMetrics struct {
	StartDate          string          `json:"start_date"`
	EndDate            string          `json:"end_date"`
	Totals             Totals          `json:"totals"`
	ByStatus           StatusBreakdown `json:"by_status"`
	Rates              Rates           `json:"rates"`
	AvgDurationSeconds float64         `json:"avg_duration_seconds"`
	Funnel             []FunnelStage   `json:"funnel"`
	DailyTrends        []DailyTrend    `json:"daily_trends"`
}

// Metrics computes dashboard aggregates over a date window.
type Metrics struct {
	DB *gorm.DB

	// Now is a seam for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

// NewMetrics constructs a Metrics engine.
func NewMetrics(db *gorm.DB) *Metrics {
	return &Metrics{DB: db, Now: time.Now}
}

const dateLayout = "2006-01-02"

// Dashboard computes the full metrics payload for the inclusive calendar
// window [startDate, endDate]. Dates are interpreted in the engine's local
// time; "today" and "this week" windows are anchored at Now.
func (m *Metrics) Dashboard(ctx context.Context, startDate, endDate time.Time) (*DashboardMetrics, error) {
	tr := otel.Tracer("services/Metrics")
	ctx, span := tr.Start(ctx, "Dashboard",
		trace.WithAttributes(
			attribute.String("window.start", startDate.Format(dateLayout)),
			attribute.String("window.end", endDate.Format(dateLayout)),
		),
	)
	defer span.End()

	start := startOfDay(startDate)
	end := endOfDay(endDate)
	if end.Before(start) {
		return nil, ErrInvalidWindow
	}

	now := m.now()
	today := startOfDay(now)
	weekAgo := now.AddDate(0, 0, -7)

	allTime, err := repo.CountConversationsBetween(ctx, m.DB, nil, nil)
	if err != nil {
		return nil, err
	}
	todayCount, err := repo.CountConversationsBetween(ctx, m.DB, &today, nil)
	if err != nil {
		return nil, err
	}
	weekCount, err := repo.CountConversationsBetween(ctx, m.DB, &weekAgo, nil)
	if err != nil {
		return nil, err
	}

	byStatusAll, err := repo.CountByStatus(ctx, m.DB, nil, nil)
	if err != nil {
		return nil, err
	}

	periodRows, err := repo.ListConversationsBetween(ctx, m.DB, start, end)
	if err != nil {
		return nil, err
	}

	byStatusPeriod := make(map[string]int64, len(domain.Statuses))
	for _, s := range domain.Statuses {
		byStatusPeriod[s] = 0
		if _, ok := byStatusAll[s]; !ok {
			byStatusAll[s] = 0
		}
	}

	var (
		periodTotal   = int64(len(periodRows))
		durationSum   float64
		completedN    int64
		periodIDs     = make([]string, 0, len(periodRows))
		trendsByDay   = make(map[string]*DailyTrend)
	)
	for i := range periodRows {
		c := &periodRows[i]
		byStatusPeriod[c.Status]++
		periodIDs = append(periodIDs, c.ID)

		if c.Status == domain.StatusCompleted {
			completedN++
			durationSum += c.UpdatedAt.Sub(c.CreatedAt).Seconds()
		}

		day := c.CreatedAt.In(start.Location()).Format(dateLayout)
		t, ok := trendsByDay[day]
		if !ok {
			t = &DailyTrend{Date: day}
			trendsByDay[day] = t
		}
		t.Total++
		switch c.Status {
		case domain.StatusCompleted:
			t.Completed++
		case domain.StatusError:
			t.Errors++
		}
	}

	emailCaptured, err := repo.CountEmailCaptured(ctx, m.DB, periodIDs)
	if err != nil {
		return nil, err
	}

	out := &DashboardMetrics{
		StartDate: start.Format(dateLayout),
		EndDate:   endDate.Format(dateLayout),
		Totals: Totals{
			Today:    todayCount,
			ThisWeek: weekCount,
			AllTime:  allTime,
			Period:   periodTotal,
		},
		ByStatus: StatusBreakdown{
			AllTime: byStatusAll,
			Period:  byStatusPeriod,
		},
		Rates:              computeRates(byStatusPeriod, periodTotal),
		AvgDurationSeconds: safeMean(durationSum, completedN),
		Funnel:             buildFunnel(periodTotal, emailCaptured, byStatusPeriod[domain.StatusCompleted]),
		DailyTrends:        fillDailyTrends(start, endOfDay(endDate), trendsByDay),
	}
	return out, nil
}

func (m *Metrics) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// computeRates derives the terminal-outcome percentages. Division by zero is
// impossible: with an empty period every rate is zero.
func computeRates(byStatus map[string]int64, periodTotal int64) Rates {
	if periodTotal == 0 {
		return Rates{}
	}
	pct := func(n int64) float64 {
		return round1(float64(n) / float64(periodTotal) * 100)
	}
	return Rates{
		Completion:  pct(byStatus[domain.StatusCompleted]),
		Abandonment: pct(byStatus[domain.StatusAbandoned]),
		Error:       pct(byStatus[domain.StatusError]),
	}
}

// buildFunnel assembles the ordered conversion stages. Stage-over-stage
// conversion is omitted when the previous stage counted zero.
func buildFunnel(started, emailCaptured, completed int64) []FunnelStage {
	stages := []FunnelStage{
		{Stage: "started", Count: started},
		{Stage: "email_captured", Count: emailCaptured},
		{Stage: "completed", Count: completed},
	}
	for i := 1; i < len(stages); i++ {
		prev := stages[i-1].Count
		if prev == 0 {
			continue
		}
		conv := round1(float64(stages[i].Count) / float64(prev) * 100)
		stages[i].Conversion = &conv
	}
	return stages
}

// fillDailyTrends emits one entry per calendar day in [start, end], in
// ascending order, with zero counts for days without conversations.
func fillDailyTrends(start, end time.Time, byDay map[string]*DailyTrend) []DailyTrend {
	out := make([]DailyTrend, 0, 32)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(dateLayout)
		if t, ok := byDay[key]; ok {
			out = append(out, *t)
			continue
		}
		out = append(out, DailyTrend{Date: key})
	}
	return out
}

func safeMean(sum float64, n int64) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func startOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
