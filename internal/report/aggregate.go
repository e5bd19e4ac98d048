// Package report reduces persisted sales into day-of-week charts, top-N
// rankings and month-to-date rollups. Every function allocates its own
// accumulators, so concurrent reports never share state.
package report

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/domain"
)

const DefaultTopN = 10

var ErrInvalidWindow = errors.New("invalid report window")

var Weekdays = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// LastCompletedWeek is the most recent Sunday to Saturday week that ended
// before now, in UTC.
func LastCompletedWeek(now time.Time) Window {
	today := startOfDay(now)
	sunday := today.AddDate(0, 0, -int(today.Weekday())-7)
	return Window{From: sunday, To: sunday.AddDate(0, 0, 7)}
}

// WeekWindow covers sunday 00:00 UTC through the end of saturday.
func WeekWindow(sunday time.Time, saturday time.Time) (Window, error) {
	from := startOfDay(sunday)
	to := startOfDay(saturday).AddDate(0, 0, 1)
	if !to.After(from) {
		return Window{}, ErrInvalidWindow
	}
	return Window{From: from, To: to}, nil
}

func MonthToDate(now time.Time) Window {
	now = now.UTC()
	return Window{From: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), To: now}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func weekdayChart(sales []domain.Sale, value func(domain.Sale) decimal.Decimal) domain.ChartReport {
	var buckets [7]decimal.Decimal
	total := decimal.Zero
	for _, sale := range sales {
		v := value(sale)
		day := sale.DateSale.UTC().Weekday()
		buckets[day] = buckets[day].Add(v)
		total = total.Add(v)
	}

	chart := make([]domain.DayValue, 0, len(buckets))
	for i, v := range buckets {
		chart = append(chart, domain.DayValue{Day: Weekdays[i], Value: v})
	}
	return domain.ChartReport{Total: total, ChartData: chart}
}

func WeekdayRevenue(sales []domain.Sale) domain.ChartReport {
	return weekdayChart(sales, func(s domain.Sale) decimal.Decimal { return s.PriceSale })
}

func WeekdayCount(sales []domain.Sale) domain.ChartReport {
	one := decimal.NewFromInt(1)
	return weekdayChart(sales, func(domain.Sale) decimal.Decimal { return one })
}

func WeekdayLineItems(sales []domain.Sale) domain.ChartReport {
	return weekdayChart(sales, func(s domain.Sale) decimal.Decimal { return decimal.NewFromInt(int64(len(s.Orders))) })
}

type ClientTotal struct {
	ClientID string
	Total    decimal.Decimal
}

// TopClients sums price_sale per client. Equal totals are ordered by client id.
func TopClients(sales []domain.Sale, n int) []ClientTotal {
	totals := make(map[string]decimal.Decimal)
	for _, sale := range sales {
		totals[sale.ClientID] = totals[sale.ClientID].Add(sale.PriceSale)
	}

	ranked := make([]ClientTotal, 0, len(totals))
	for id, total := range totals {
		ranked = append(ranked, ClientTotal{ClientID: id, Total: total})
	}
	slices.SortFunc(ranked, func(a, b ClientTotal) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.ClientID, b.ClientID)
	})
	return limit(ranked, n)
}

type categoryTotal struct {
	key    string
	name   string
	amount int
}

// categoryKey prefers the category id and falls back to its name for lines
// loaded without one.
func categoryKey(c domain.Category) string {
	if c.ID != "" {
		return c.ID
	}
	return c.Name
}

func rankCategories(sales []domain.Sale) []categoryTotal {
	index := make(map[string]int)
	ranked := make([]categoryTotal, 0)
	for _, sale := range sales {
		for _, line := range sale.Orders {
			if line.Product == nil {
				continue
			}
			key := categoryKey(line.Product.Category)
			pos, ok := index[key]
			if !ok {
				pos = len(ranked)
				index[key] = pos
				ranked = append(ranked, categoryTotal{key: key, name: line.Product.Category.Name})
			}
			ranked[pos].amount += line.AmountProduct
		}
	}
	slices.SortFunc(ranked, func(a, b categoryTotal) int {
		if c := cmp.Compare(b.amount, a.amount); c != 0 {
			return c
		}
		if c := cmp.Compare(a.name, b.name); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	return ranked
}

// TopCategories sums amount_product per category. Equal amounts are ordered
// by category name.
func TopCategories(sales []domain.Sale, n int) []domain.CategoryAmount {
	ranked := limit(rankCategories(sales), n)
	out := make([]domain.CategoryAmount, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, domain.CategoryAmount{Category: c.name, Amount: c.amount})
	}
	return out
}

// CategoriesByWeekday builds a dense day by category grid for the top n
// categories of the sales. Days without a category get a zero cell, and every
// day lists the categories in rank order.
func CategoriesByWeekday(sales []domain.Sale, n int) []domain.CategoriesOfDay {
	ranked := limit(rankCategories(sales), n)
	column := make(map[string]int, len(ranked))
	for i, c := range ranked {
		column[c.key] = i
	}

	var grid [7][]int
	for day := range grid {
		grid[day] = make([]int, len(ranked))
	}
	for _, sale := range sales {
		day := sale.DateSale.UTC().Weekday()
		for _, line := range sale.Orders {
			if line.Product == nil {
				continue
			}
			col, ok := column[categoryKey(line.Product.Category)]
			if !ok {
				continue
			}
			grid[day][col] += line.AmountProduct
		}
	}

	out := make([]domain.CategoriesOfDay, 0, len(grid))
	for day, cells := range grid {
		values := make([]domain.CategoryAmount, 0, len(cells))
		for col, amount := range cells {
			values = append(values, domain.CategoryAmount{Category: ranked[col].name, Amount: amount})
		}
		out = append(out, domain.CategoriesOfDay{Day: Weekdays[day], Values: values})
	}
	return out
}

// BestClient returns the client with the most sales. On a tie the client met
// first in the given order wins. It returns an empty id for no sales.
func BestClient(sales []domain.Sale) (string, int) {
	counts := make(map[string]int)
	bestID, bestCount := "", 0
	for _, sale := range sales {
		counts[sale.ClientID]++
	}
	for _, sale := range sales {
		if c := counts[sale.ClientID]; c > bestCount {
			bestID, bestCount = sale.ClientID, c
		}
	}
	return bestID, bestCount
}

func limit[T any](items []T, n int) []T {
	if n < 1 {
		n = DefaultTopN
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}
