package finance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"opsdash/internal/model"
	"opsdash/internal/repository"
	"opsdash/pkg/logger"
)

// Totals are the aggregates of one period.
type Totals struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Profit   float64 `json:"profit"`
}

type CategoryTotal struct {
	Category string  `json:"category"`
	Value    float64 `json:"value"`
}

// Summary is the finance dashboard. CashFlow is the running balance of all
// entries up to today.
type Summary struct {
	Month            string          `json:"month"`
	Current          Totals          `json:"current"`
	Previous         Totals          `json:"previous"`
	CashFlow         float64         `json:"cash_flow"`
	PctVsPrevious    Totals          `json:"pct_vs_previous"`
	IncomeByCategory []CategoryTotal `json:"income_by_category"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// Dashboard compares the current calendar month with the previous one.
// The result is cached until an entry changes.
func (s *Service) Dashboard(ctx context.Context) (*Summary, error) {
	var cached Summary
	if s.cache.GetDashboard(ctx, &cached) {
		return &cached, nil
	}

	now := s.now()
	today := model.DateOnly(now)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	prevStart := monthStart.AddDate(0, -1, 0)
	monthEnd := monthStart.AddDate(0, 1, -1)

	entries, err := s.store.ListEntries(ctx, repository.EntryFilter{To: &today})
	if err != nil {
		logger.WithTrace(ctx, s.logger).Error("Failed to load entries for dashboard", zap.Error(err))
		return nil, err
	}

	sum := &Summary{Month: monthStart.Format("2006-01"), GeneratedAt: now}
	byCategory := map[string]float64{}
	for _, e := range entries {
		sum.CashFlow += e.Signed()
		switch {
		case !e.Date.Before(monthStart) && !e.Date.After(monthEnd):
			add(&sum.Current, e)
			if e.Type == model.EntryIncome {
				byCategory[e.Category] += e.Amount
			}
		case !e.Date.Before(prevStart) && e.Date.Before(monthStart):
			add(&sum.Previous, e)
		}
	}

	sum.Current = roundTotals(sum.Current)
	sum.Previous = roundTotals(sum.Previous)
	sum.CashFlow = round2(sum.CashFlow)
	sum.PctVsPrevious = Totals{
		Income:   pctChange(sum.Current.Income, sum.Previous.Income),
		Expenses: pctChange(sum.Current.Expenses, sum.Previous.Expenses),
		Profit:   pctChange(sum.Current.Profit, sum.Previous.Profit),
	}

	sum.IncomeByCategory = make([]CategoryTotal, 0, len(byCategory))
	for c, v := range byCategory {
		sum.IncomeByCategory = append(sum.IncomeByCategory, CategoryTotal{Category: c, Value: round2(v)})
	}
	sortTotals(sum.IncomeByCategory)

	s.cache.SetDashboard(ctx, sum)
	return sum, nil
}

// MonthFlow is one row of the cash-flow report. Projection is set for
// months after the current one.
type MonthFlow struct {
	Month      string   `json:"month"`
	Income     float64  `json:"income"`
	Expenses   float64  `json:"expenses"`
	Net        float64  `json:"net"`
	Projection *float64 `json:"projection,omitempty"`
}

type CashflowReport struct {
	Year    int         `json:"year"`
	Months  []MonthFlow `json:"data"`
	Summary struct {
		TotalIncome        float64 `json:"total_income"`
		TotalExpenses      float64 `json:"total_expenses"`
		AccumulatedNet     float64 `json:"accumulated_net"`
		RemainingProjected float64 `json:"remaining_projected"`
	} `json:"summary"`
}

// Cashflow builds the monthly report for a year. Future months of the
// current year are projected with the average net of the months so far.
func (s *Service) Cashflow(ctx context.Context, year int) (*CashflowReport, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	entries, err := s.store.ListEntries(ctx, repository.EntryFilter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}

	var months [12]Totals
	for _, e := range entries {
		add(&months[e.Date.Month()-1], e)
	}

	now := s.now()
	lastActual := 11
	switch {
	case year > now.Year():
		lastActual = -1
	case year == now.Year():
		lastActual = int(now.Month()) - 1
	}

	report := &CashflowReport{Year: year, Months: make([]MonthFlow, 12)}
	var actualNet float64
	for m := 0; m < 12; m++ {
		t := roundTotals(months[m])
		report.Months[m] = MonthFlow{
			Month:    time.Month(m + 1).String()[:3],
			Income:   t.Income,
			Expenses: t.Expenses,
			Net:      t.Profit,
		}
		report.Summary.TotalIncome += t.Income
		report.Summary.TotalExpenses += t.Expenses
		report.Summary.AccumulatedNet += t.Profit
		if m <= lastActual {
			actualNet += t.Profit
		}
	}

	if lastActual >= 0 && lastActual < 11 {
		avg := round2(actualNet / float64(lastActual+1))
		for m := lastActual + 1; m < 12; m++ {
			p := avg
			report.Months[m].Projection = &p
			report.Summary.RemainingProjected += avg
		}
	}
	report.Summary.TotalIncome = round2(report.Summary.TotalIncome)
	report.Summary.TotalExpenses = round2(report.Summary.TotalExpenses)
	report.Summary.AccumulatedNet = round2(report.Summary.AccumulatedNet)
	report.Summary.RemainingProjected = round2(report.Summary.RemainingProjected)
	return report, nil
}

// InvalidMonthError reports a month that is not in YYYY-MM form.
type InvalidMonthError struct {
	Input string
}

func (e *InvalidMonthError) Error() string {
	return fmt.Sprintf("invalid month %q: expected YYYY-MM", e.Input)
}

type StatementSection struct {
	Items []CategoryTotal `json:"items"`
	Total float64         `json:"total"`
}

// IncomeStatement is the monthly result report (DRE). Margins are percent
// of operating revenue, 0 when there was no revenue.
type IncomeStatement struct {
	Month            string           `json:"month"`
	Period           string           `json:"period"`
	OperatingRevenue StatementSection `json:"operating_revenue"`
	VariableCosts    StatementSection `json:"variable_costs"`
	FixedExpenses    StatementSection `json:"fixed_expenses"`
	Result           struct {
		NetRevenue      float64 `json:"net_revenue"`
		GrossMargin     float64 `json:"gross_margin"`
		OperatingProfit float64 `json:"operating_profit"`
		NetMargin       float64 `json:"net_margin"`
	} `json:"result"`
}

// IncomeStatement builds the DRE for one month, the current one when month
// is empty. Expense categories marked variable are costs; every other
// expense, including categories without a cost kind, is a fixed expense.
func (s *Service) IncomeStatement(ctx context.Context, month string) (*IncomeStatement, error) {
	var start time.Time
	if month == "" {
		today := model.DateOnly(s.now())
		start = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	} else {
		t, err := time.Parse("2006-01", month)
		if err != nil {
			return nil, &InvalidMonthError{Input: month}
		}
		start = t
	}
	end := start.AddDate(0, 1, -1)

	categories, err := s.store.ListCategories(ctx, model.EntryExpense)
	if err != nil {
		return nil, err
	}
	variable := map[string]bool{}
	for _, c := range categories {
		if c.CostKind == model.CostVariable {
			variable[c.Name] = true
		}
	}

	entries, err := s.store.ListEntries(ctx, repository.EntryFilter{From: &start, To: &end})
	if err != nil {
		logger.WithTrace(ctx, s.logger).Error("Failed to load entries for income statement", zap.Error(err))
		return nil, err
	}

	revenue, costs, fixed := map[string]float64{}, map[string]float64{}, map[string]float64{}
	for _, e := range entries {
		switch {
		case e.Type == model.EntryIncome:
			revenue[e.Category] += e.Amount
		case variable[e.Category]:
			costs[e.Category] += e.Amount
		default:
			fixed[e.Category] += e.Amount
		}
	}

	st := &IncomeStatement{
		Month:            start.Format("2006-01"),
		Period:           start.Format("January 2006"),
		OperatingRevenue: section(revenue),
		VariableCosts:    section(costs),
		FixedExpenses:    section(fixed),
	}
	rev := st.OperatingRevenue.Total
	st.Result.NetRevenue = round2(rev - st.VariableCosts.Total)
	st.Result.OperatingProfit = round2(st.Result.NetRevenue - st.FixedExpenses.Total)
	if rev != 0 {
		st.Result.GrossMargin = round2(st.Result.NetRevenue / rev * 100)
		st.Result.NetMargin = round2(st.Result.OperatingProfit / rev * 100)
	}
	return st, nil
}

// section sorts the per-category sums by value, largest first.
func section(byCategory map[string]float64) StatementSection {
	sec := StatementSection{Items: make([]CategoryTotal, 0, len(byCategory))}
	var total float64
	for c, v := range byCategory {
		sec.Items = append(sec.Items, CategoryTotal{Category: c, Value: round2(v)})
		total += v
	}
	sortTotals(sec.Items)
	sec.Total = round2(total)
	return sec
}

func sortTotals(items []CategoryTotal) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Value != items[j].Value {
			return items[i].Value > items[j].Value
		}
		return items[i].Category < items[j].Category
	})
}

func add(t *Totals, e model.FinancialEntry) {
	if e.Type == model.EntryIncome {
		t.Income += e.Amount
	} else {
		t.Expenses += e.Amount
	}
	t.Profit = t.Income - t.Expenses
}

func roundTotals(t Totals) Totals {
	return Totals{Income: round2(t.Income), Expenses: round2(t.Expenses), Profit: round2(t.Profit)}
}

// pctChange is the change from prev to cur in percent, one decimal. From
// zero it is 0 when nothing changed and ±100 otherwise.
func pctChange(cur, prev float64) float64 {
	if prev == 0 {
		switch {
		case cur > 0:
			return 100
		case cur < 0:
			return -100
		}
		return 0
	}
	return math.Round((cur-prev)/math.Abs(prev)*1000) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
