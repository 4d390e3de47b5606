// Package analytics computes time-windowed sale aggregates, per-product
// velocity and trends, and the weekly debt-cleared estimate. All windows are
// running windows anchored to the caller-supplied clock, recomputed on every
// call; nothing here caches.
package analytics

import (
	"fmt"
	"math"
	"time"

	"ledgerdesk/backend/internal/domain"
)

// Policy holds the business thresholds behind product status labels, trend
// classification, and the debt-cleared estimate. These are policy constants,
// not invariants, so they stay configurable.
type Policy struct {
	FastMoverQty        int
	StableQty           int
	RunningLowQty       int
	SlowMoverQty        int
	SteadyBandPercent   float64
	TrendLimit          int
	DebtAttributionRate float64
}

func DefaultPolicy() Policy {
	return Policy{
		FastMoverQty:        20,
		StableQty:           10,
		RunningLowQty:       5,
		SlowMoverQty:        2,
		SteadyBandPercent:   5,
		TrendLimit:          5,
		DebtAttributionRate: 0.3,
	}
}

const (
	StatusFastMover  = "Fast Mover"
	StatusStable     = "Stable"
	StatusRunningLow = "Running Low"
	StatusSlowMover  = "Slow Mover"
	StatusVerySlow   = "Very Slow"
)

const (
	TrendPositive = "positive"
	TrendNegative = "negative"
)

type Aggregator struct {
	policy Policy
}

func New(policy Policy) *Aggregator {
	if policy.TrendLimit < 1 {
		policy.TrendLimit = DefaultPolicy().TrendLimit
	}
	if policy.SteadyBandPercent <= 0 {
		policy.SteadyBandPercent = DefaultPolicy().SteadyBandPercent
	}
	if policy.DebtAttributionRate <= 0 || policy.DebtAttributionRate > 1 {
		policy.DebtAttributionRate = DefaultPolicy().DebtAttributionRate
	}
	return &Aggregator{policy: policy}
}

// DayStart returns midnight of now's calendar day.
func DayStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// WeekStart returns midnight of the most recent Sunday (day-of-week 0).
func WeekStart(now time.Time) time.Time {
	return DayStart(now).AddDate(0, 0, -int(now.Weekday()))
}

// MonthStart returns midnight of the first day of now's month.
func MonthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// PrevWeekBounds returns the contiguous 7-day window immediately before the
// current week: [start, end) with end == WeekStart(now), so the comparison
// window never overlaps the current one.
func PrevWeekBounds(now time.Time) (time.Time, time.Time) {
	end := WeekStart(now)
	return end.AddDate(0, 0, -7), end
}

// StatusFor classifies a weekly sold quantity.
func (a *Aggregator) StatusFor(weeklyQty int) string {
	switch {
	case weeklyQty >= a.policy.FastMoverQty:
		return StatusFastMover
	case weeklyQty >= a.policy.StableQty:
		return StatusStable
	case weeklyQty >= a.policy.RunningLowQty:
		return StatusRunningLow
	case weeklyQty >= a.policy.SlowMoverQty:
		return StatusSlowMover
	default:
		return StatusVerySlow
	}
}

// ComputeMetrics aggregates effective sales into the dashboard figures.
// Reversed rows contribute nothing. Grouping is by product key; ties for
// best and slowest seller go to the first key encountered in input order.
func (a *Aggregator) ComputeMetrics(sales []domain.EffectiveSale, now time.Time) domain.SalesMetrics {
	dayStart := DayStart(now)
	weekStart := WeekStart(now)
	monthStart := MonthStart(now)
	lastWeekStart, lastWeekEnd := PrevWeekBounds(now)

	metrics := domain.SalesMetrics{
		Breakdown: make([]domain.ProductStat, 0, 16),
		Trends:    make([]domain.ProductTrend, 0, a.policy.TrendLimit),
	}

	weekIdx := make(map[string]int)
	lastWeekQty := make(map[string]int)

	for _, sale := range sales {
		if sale.IsReversed {
			continue
		}
		at := sale.PurchaseDate

		if !at.Before(lastWeekStart) && at.Before(lastWeekEnd) {
			lastWeekQty[sale.ProductKey] += sale.EffectiveQuantity
		}

		if at.Before(weekStart) || at.After(now) {
			if !at.Before(monthStart) && !at.After(now) {
				metrics.MonthSalesCents += sale.EffectiveAmountCents
			}
			continue
		}

		metrics.WeekSalesCents += sale.EffectiveAmountCents
		if !at.Before(monthStart) {
			metrics.MonthSalesCents += sale.EffectiveAmountCents
		}
		if !at.Before(dayStart) {
			metrics.TodaySalesCents += sale.EffectiveAmountCents
			metrics.ItemsSoldToday += sale.EffectiveQuantity
		}

		idx, seen := weekIdx[sale.ProductKey]
		if !seen {
			idx = len(metrics.Breakdown)
			weekIdx[sale.ProductKey] = idx
			metrics.Breakdown = append(metrics.Breakdown, domain.ProductStat{
				ProductKey:  sale.ProductKey,
				ProductName: sale.ProductName,
			})
		}
		metrics.Breakdown[idx].QuantityWeek += sale.EffectiveQuantity
		metrics.Breakdown[idx].AmountCentsWeek += sale.EffectiveAmountCents
	}

	for i := range metrics.Breakdown {
		metrics.Breakdown[i].Status = a.StatusFor(metrics.Breakdown[i].QuantityWeek)

		if metrics.BestSellerWeek == nil || metrics.Breakdown[i].QuantityWeek > metrics.BestSellerWeek.QuantityWeek {
			best := metrics.Breakdown[i]
			metrics.BestSellerWeek = &best
		}
		if metrics.SlowSellerWeek == nil || metrics.Breakdown[i].QuantityWeek < metrics.SlowSellerWeek.QuantityWeek {
			slow := metrics.Breakdown[i]
			metrics.SlowSellerWeek = &slow
		}
	}

	// Trends are reported for the first TrendLimit breakdown entries in
	// grouping order, not the largest movers.
	for _, stat := range metrics.Breakdown {
		if len(metrics.Trends) >= a.policy.TrendLimit {
			break
		}
		metrics.Trends = append(metrics.Trends, a.trendFor(stat, lastWeekQty[stat.ProductKey]))
	}

	return metrics
}

func (a *Aggregator) trendFor(stat domain.ProductStat, lastWeek int) domain.ProductTrend {
	trend := domain.ProductTrend{
		ProductKey:       stat.ProductKey,
		ProductName:      stat.ProductName,
		QuantityThisWeek: stat.QuantityWeek,
		QuantityLastWeek: lastWeek,
	}

	if lastWeek == 0 {
		if stat.QuantityWeek > 0 {
			trend.Label = "new product this week"
			trend.Direction = TrendPositive
		} else {
			trend.Label = "no comparison data"
		}
		return trend
	}

	change := float64(stat.QuantityWeek-lastWeek) / float64(lastWeek) * 100
	trend.ChangePercent = change

	switch {
	case math.Abs(change) < a.policy.SteadyBandPercent:
		trend.Label = "steady"
	case change > 0:
		trend.Label = fmt.Sprintf("increased %d%%", int(math.Round(change)))
		trend.Direction = TrendPositive
	default:
		trend.Label = fmt.Sprintf("dropped %d%%", int(math.Round(-change)))
		trend.Direction = TrendNegative
	}
	return trend
}

// EstimateDebtCleared approximates how much historical credit was repaid in
// the current week. There is no explicit payment-against-credit record in
// the raw ledger, so for every customer with at least one live credit sale,
// a fixed share (DebtAttributionRate) of their this-week non-credit spend is
// attributed to debt repayment, capped by their total outstanding credit.
// The join key is the customer phone number; walk-in rows carry no identity
// and contribute nothing. This is a heuristic with a known accuracy ceiling,
// not a ledger reconciliation; explicit CreditSettlement records are the
// exact figure.
func (a *Aggregator) EstimateDebtCleared(sales []domain.EffectiveSale, weekStart time.Time, now time.Time) int64 {
	outstanding := make(map[string]int64)
	weeklyNonCredit := make(map[string]int64)

	for _, sale := range sales {
		if sale.IsReversed {
			continue
		}
		phone := sale.CustomerPhone
		if phone == "" || phone == domain.WalkInCustomer {
			continue
		}
		if sale.PaymentMethod == domain.PaymentCredit {
			outstanding[phone] += sale.OutstandingCreditCents
			continue
		}
		if !sale.PurchaseDate.Before(weekStart) && !sale.PurchaseDate.After(now) {
			weeklyNonCredit[phone] += sale.EffectiveAmountCents
		}
	}

	var cleared int64
	for phone, owed := range outstanding {
		if owed <= 0 {
			continue
		}
		attributed := int64(math.Round(float64(weeklyNonCredit[phone]) * a.policy.DebtAttributionRate))
		if attributed > owed {
			attributed = owed
		}
		cleared += attributed
	}
	return cleared
}
