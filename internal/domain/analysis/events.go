// Package analysis implements the four stage handlers behind a run:
// calendar/threshold event detection, weighted scoring, strategy
// recommendation and snapshot comparison. Each handler is pure over its
// StateView plus the resolved parameter set, which keeps every stage
// replayable for backtests.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/foreverwb/swing-workflow/internal/domain/market"
	"github.com/foreverwb/swing-workflow/internal/domain/params"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
)

// Impact and risk grades shared by events and scoring.
const (
	RiskHigh   = "high"
	RiskMedium = "medium"
	RiskLow    = "low"
)

// Event tags.
const (
	EventQuarterlyOpex  = "quarterly_opex"
	EventMonthlyOpex    = "monthly_opex"
	EventFOMC           = "fomc"
	EventEarningsSeason = "earnings_season"
	EventVixPanic       = "vix_panic"
	EventVixCalm        = "vix_calm"
	EventIVRankHigh     = "iv_rank_high"
	EventIVRankLow      = "iv_rank_low"
	EventVolPremiumRich = "vol_premium_rich"
	EventVolPremiumThin = "vol_premium_thin"
)

// Adjustment tags attached to events.
const (
	AdjustDTE        = "adjust_dte"
	AdjustReduceSize = "reduce_position"
	AdjustNoCross    = "no_cross_earnings"
)

// Event is one detected calendar or threshold condition.
type Event struct {
	Tag        string `json:"tag"`
	Date       string `json:"date,omitempty"` // YYYY-MM-DD for calendar events
	DaysUntil  int    `json:"days_until"`
	Impact     string `json:"impact"`
	Adjustment string `json:"adjustment,omitempty"`
}

// EventReport is the event detection stage payload.
type EventReport struct {
	Symbol          string  `json:"symbol"`
	DetectionDate   string  `json:"detection_date"`
	Events          []Event `json:"events"`
	EventCount      int     `json:"event_count"`
	RiskLevel       string  `json:"risk_level"`
	MaxDTE          int     `json:"max_dte"`
	NoCrossEarnings bool    `json:"no_cross_earnings"`
	ReducePosition  bool    `json:"reduce_position"`
	AdjustDTE       bool    `json:"adjust_dte"`
}

// fomcDates are published FOMC meeting days. Both days of each two-day
// meeting are listed; detection reports the first one inside the window.
var fomcDates = []string{
	"2025-01-28", "2025-01-29",
	"2025-03-18", "2025-03-19",
	"2025-05-06", "2025-05-07",
	"2025-06-17", "2025-06-18",
	"2025-07-29", "2025-07-30",
	"2025-09-16", "2025-09-17",
	"2025-10-28", "2025-10-29",
	"2025-12-09", "2025-12-10",
	"2026-01-27", "2026-01-28",
	"2026-03-17", "2026-03-18",
	"2026-04-28", "2026-04-29",
	"2026-06-16", "2026-06-17",
	"2026-07-28", "2026-07-29",
	"2026-09-15", "2026-09-16",
	"2026-10-27", "2026-10-28",
	"2026-12-08", "2026-12-09",
}

// earningsSeasons are the index-level reporting windows, month/day pairs
// applied to any year.
var earningsSeasons = []struct {
	quarter                            string
	fromMonth, fromDay, toMonth, toDay int
}{
	{"Q4", 1, 15, 2, 28},
	{"Q1", 4, 15, 5, 31},
	{"Q2", 7, 15, 8, 31},
	{"Q3", 10, 15, 11, 30},
}

// EventDetector scans the calendar around the as-of date and the current
// market readings for conditions that constrain trade structure.
type EventDetector struct{}

// NewEventDetector returns the event detection stage handler.
func NewEventDetector() *EventDetector { return &EventDetector{} }

// Name implements workflow.Handler.
func (d *EventDetector) Name() string { return workflow.StageEventDetection }

// Execute implements workflow.Handler.
func (d *EventDetector) Execute(_ context.Context, view *workflow.StateView, ps params.Set) (any, error) {
	mp := view.MarketParams()
	if len(mp) == 0 {
		return nil, workflow.NewStageError(d.Name(),
			fmt.Errorf("no market parameters to scan"))
	}
	if bad := market.MalformedNumeric(mp, "vix", "ivr", "iv30", "hv20"); len(bad) > 0 {
		return nil, workflow.NewStageError(d.Name(),
			fmt.Errorf("non-numeric market parameters: %s", strings.Join(bad, ", ")))
	}

	asOf := dateOnly(view.AsOf())
	report := &EventReport{
		Symbol:        view.Symbol(),
		DetectionDate: asOf.Format("2006-01-02"),
		MaxDTE:        ps.IntOr("events.max_dte.default", 14),
	}
	minDTE := ps.IntOr("events.max_dte.min", 3)

	d.detectOpex(report, asOf, ps, minDTE)
	d.detectFOMC(report, asOf, ps)
	d.detectEarnings(report, asOf, ps)
	d.detectThresholds(report, view, ps)

	report.EventCount = len(report.Events)
	switch {
	case report.ReducePosition || report.NoCrossEarnings:
		report.RiskLevel = RiskHigh
	case report.AdjustDTE:
		report.RiskLevel = RiskMedium
	default:
		report.RiskLevel = RiskLow
	}
	return report, nil
}

// detectOpex checks the third Friday of the as-of month and the next
// month. Quarterly expirations carry more open interest, so they grade
// higher. Inside the near window the expiration caps usable DTE.
func (d *EventDetector) detectOpex(report *EventReport, asOf time.Time, ps params.Set, minDTE int) {
	lookback := ps.IntOr("events.opex.lookback_days", 5)
	lookahead := ps.IntOr("events.opex.lookahead_days", 14)
	nearDays := ps.IntOr("events.opex.near_days", 7)

	for monthOffset := 0; monthOffset <= 1; monthOffset++ {
		anchor := asOf.AddDate(0, monthOffset, 0)
		opex := thirdFriday(anchor.Year(), anchor.Month())
		days := daysBetween(asOf, opex)
		if days < -lookback || days > lookahead {
			continue
		}

		tag, impact := EventMonthlyOpex, RiskMedium
		switch opex.Month() {
		case time.March, time.June, time.September, time.December:
			tag, impact = EventQuarterlyOpex, RiskHigh
		}

		ev := Event{
			Tag:       tag,
			Date:      opex.Format("2006-01-02"),
			DaysUntil: days,
			Impact:    impact,
		}
		if days >= 0 && days <= nearDays {
			ev.Adjustment = AdjustDTE
			report.AdjustDTE = true
			if capped := days - 2; capped < report.MaxDTE {
				report.MaxDTE = maxInt(capped, minDTE)
			}
		}
		report.Events = append(report.Events, ev)
	}
}

func (d *EventDetector) detectFOMC(report *EventReport, asOf time.Time, ps params.Set) {
	lookahead := ps.IntOr("events.fomc.lookahead_days", 30)
	nearDays := ps.IntOr("events.fomc.near_days", 7)

	for _, raw := range fomcDates {
		meeting, err := time.Parse("2006-01-02", raw)
		if err != nil {
			continue
		}
		days := daysBetween(asOf, meeting)
		if days < 0 || days > lookahead {
			continue
		}

		ev := Event{
			Tag:       EventFOMC,
			Date:      raw,
			DaysUntil: days,
			Impact:    RiskMedium,
		}
		if days <= nearDays {
			ev.Impact = RiskHigh
			ev.Adjustment = AdjustReduceSize
			report.ReducePosition = true
		}
		report.Events = append(report.Events, ev)
		return // nearest meeting only
	}
}

func (d *EventDetector) detectEarnings(report *EventReport, asOf time.Time, ps params.Set) {
	for _, season := range earningsSeasons {
		from := time.Date(asOf.Year(), time.Month(season.fromMonth), season.fromDay, 0, 0, 0, 0, time.UTC)
		to := time.Date(asOf.Year(), time.Month(season.toMonth), season.toDay, 0, 0, 0, 0, time.UTC)
		if asOf.Before(from) || asOf.After(to) {
			continue
		}

		report.Events = append(report.Events, Event{
			Tag:        EventEarningsSeason,
			Date:       to.Format("2006-01-02"),
			DaysUntil:  daysBetween(asOf, to),
			Impact:     RiskMedium,
			Adjustment: AdjustNoCross,
		})
		report.NoCrossEarnings = true
		if capped := ps.IntOr("events.max_dte.earnings", 7); capped < report.MaxDTE {
			report.MaxDTE = capped
		}
		return
	}
}

// detectThresholds flags regime conditions in the current readings.
// Missing readings are skipped; only the required four were checked for
// malformation above.
func (d *EventDetector) detectThresholds(report *EventReport, view *workflow.StateView, ps params.Set) {
	mp := view.MarketParams()

	if vix, ok := market.Num(mp, "vix"); ok {
		if panicLevel := ps.FloatOr("events.vix.panic", 25); vix > panicLevel {
			report.Events = append(report.Events, Event{
				Tag: EventVixPanic, Impact: RiskHigh, Adjustment: AdjustReduceSize,
			})
			report.ReducePosition = true
		} else if calm := ps.FloatOr("events.vix.calm", 15); vix < calm {
			report.Events = append(report.Events, Event{Tag: EventVixCalm, Impact: RiskLow})
		}
	}

	if ivr, ok := market.Num(mp, "ivr"); ok {
		if ivr > ps.FloatOr("events.ivr.high", 80) {
			report.Events = append(report.Events, Event{Tag: EventIVRankHigh, Impact: RiskMedium})
		} else if ivr < ps.FloatOr("events.ivr.low", 30) {
			report.Events = append(report.Events, Event{Tag: EventIVRankLow, Impact: RiskLow})
		}
	}

	if vrp, ok := vrpOf(mp, view.DynParams()); ok {
		if vrp > ps.FloatOr("events.vrp.squeeze", 1.15) {
			report.Events = append(report.Events, Event{Tag: EventVolPremiumRich, Impact: RiskMedium})
		} else if vrp < ps.FloatOr("events.vrp.grind", 0.90) {
			report.Events = append(report.Events, Event{Tag: EventVolPremiumThin, Impact: RiskLow})
		}
	}
}

// vrpOf prefers the precomputed overlay value and falls back to deriving
// from the core readings.
func vrpOf(marketParams, dynParams map[string]any) (float64, bool) {
	if v, ok := market.Num(dynParams, "vrp"); ok {
		return v, true
	}
	iv30, okIV := market.Num(marketParams, "iv30")
	hv20, okHV := market.Num(marketParams, "hv20")
	if !okIV || !okHV || hv20 == 0 {
		return 0, false
	}
	return iv30 / hv20, true
}

// thirdFriday returns the monthly option expiration date.
func thirdFriday(year int, month time.Month) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(time.Friday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+14)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole calendar days from a to b, negative when b is
// in the past.
func daysBetween(a, b time.Time) int {
	return int(dateOnly(b).Sub(dateOnly(a)).Hours() / 24)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
