package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/report"
)

// WeeklyRevenue charts revenue per weekday. Both dates empty selects the last
// completed Sunday to Saturday week; otherwise both must be dates or RFC3339
// timestamps.
func (s *Service) WeeklyRevenue(ctx context.Context, sundayDate string, saturdayDate string) (domain.ChartReport, error) {
	window, err := s.weekWindow(sundayDate, saturdayDate)
	if err != nil {
		return domain.ChartReport{}, err
	}

	return report.Load(ctx, s.reports, window.Key("weeklyRevenue"), func(ctx context.Context) (domain.ChartReport, error) {
		sales, err := s.repo.ListSalesBetween(ctx, window.From, window.To)
		if err != nil {
			return domain.ChartReport{}, err
		}
		return report.WeekdayRevenue(sales), nil
	})
}

func (s *Service) weekWindow(sundayDate string, saturdayDate string) (report.Window, error) {
	sundayDate, saturdayDate = strings.TrimSpace(sundayDate), strings.TrimSpace(saturdayDate)
	if sundayDate == "" && saturdayDate == "" {
		return report.LastCompletedWeek(s.now()), nil
	}

	sunday, err := parseReportDate(sundayDate)
	if err != nil {
		return report.Window{}, err
	}
	saturday, err := parseReportDate(saturdayDate)
	if err != nil {
		return report.Window{}, err
	}
	return report.WeekWindow(sunday, saturday)
}

// parseReportDate accepts a calendar date or an RFC3339 timestamp. Timestamps
// are moved to UTC; the window later truncates them to the day.
func parseReportDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, report.ErrInvalidWindow
	}
	return t.UTC(), nil
}

// TopClients ranks clients by the sum of their sales over the whole history.
func (s *Service) TopClients(ctx context.Context, n int) ([]domain.ClientRanking, error) {
	n = topN(n)
	return report.Load(ctx, s.reports, report.CacheKey("topClients", strconv.Itoa(n)), func(ctx context.Context) ([]domain.ClientRanking, error) {
		sales, err := s.repo.ListSales(ctx)
		if err != nil {
			return nil, err
		}
		ranked := report.TopClients(sales, n)

		ids := make([]string, 0, len(ranked))
		for _, c := range ranked {
			ids = append(ids, c.ClientID)
		}
		persons, err := s.repo.GetPersonsByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}

		out := make([]domain.ClientRanking, 0, len(ranked))
		for _, c := range ranked {
			person, ok := persons[c.ClientID]
			if !ok {
				person = domain.Person{ID: c.ClientID}
			}
			out = append(out, domain.ClientRanking{Person: person, PriceSale: c.Total})
		}
		return out, nil
	})
}

func (s *Service) TopCategories(ctx context.Context, n int) ([]domain.CategoryAmount, error) {
	n = topN(n)
	return report.Load(ctx, s.reports, report.CacheKey("topCategories", strconv.Itoa(n)), func(ctx context.Context) ([]domain.CategoryAmount, error) {
		sales, err := s.repo.ListSales(ctx)
		if err != nil {
			return nil, err
		}
		return report.TopCategories(sales, n), nil
	})
}

// TopCategoriesByWeek returns a dense weekday by category grid for the top n
// categories of the last completed week.
func (s *Service) TopCategoriesByWeek(ctx context.Context, n int) ([]domain.CategoriesOfDay, error) {
	n = topN(n)
	window := report.LastCompletedWeek(s.now())
	return report.Load(ctx, s.reports, window.Key("topCategoriesByWeek", strconv.Itoa(n)), func(ctx context.Context) ([]domain.CategoriesOfDay, error) {
		sales, err := s.repo.ListSalesBetween(ctx, window.From, window.To)
		if err != nil {
			return nil, err
		}
		return report.CategoriesByWeekday(sales, n), nil
	})
}

func (s *Service) TotalSales(ctx context.Context) (domain.ChartReport, error) {
	return s.monthChart(ctx, "totalSales", report.WeekdayCount)
}

func (s *Service) TotalRevenue(ctx context.Context) (domain.ChartReport, error) {
	return s.monthChart(ctx, "totalRevenue", report.WeekdayRevenue)
}

// TotalProducts counts order lines, not units, per weekday of the month.
func (s *Service) TotalProducts(ctx context.Context) (domain.ChartReport, error) {
	return s.monthChart(ctx, "totalProducts", report.WeekdayLineItems)
}

// monthChart keys the cache by month so the rolling upper bound does not
// defeat caching.
func (s *Service) monthChart(ctx context.Context, name string, chart func([]domain.Sale) domain.ChartReport) (domain.ChartReport, error) {
	window := report.MonthToDate(s.now())
	return report.Load(ctx, s.reports, report.CacheKey(name, window.From.Format("2006-01")), func(ctx context.Context) (domain.ChartReport, error) {
		sales, err := s.repo.ListSalesBetween(ctx, window.From, window.To)
		if err != nil {
			return domain.ChartReport{}, err
		}
		return chart(sales), nil
	})
}

// TotalClients reports the registered client count and the client with the
// most visits this month.
func (s *Service) TotalClients(ctx context.Context) (domain.TotalClients, error) {
	window := report.MonthToDate(s.now())
	return report.Load(ctx, s.reports, report.CacheKey("totalClients", window.From.Format("2006-01")), func(ctx context.Context) (domain.TotalClients, error) {
		count, err := s.repo.CountPersons(ctx)
		if err != nil {
			return domain.TotalClients{}, err
		}
		sales, err := s.repo.ListSalesBetween(ctx, window.From, window.To)
		if err != nil {
			return domain.TotalClients{}, err
		}

		result := domain.TotalClients{TotalRegisteredClients: count}
		bestID, visits := report.BestClient(sales)
		if bestID == "" {
			return result, nil
		}
		persons, err := s.repo.GetPersonsByIDs(ctx, []string{bestID})
		if err != nil {
			return domain.TotalClients{}, err
		}
		person, ok := persons[bestID]
		if !ok {
			person = domain.Person{ID: bestID}
		}
		result.Client = &person
		result.Visits = visits
		return result, nil
	})
}

func topN(n int) int {
	if n < 1 {
		return report.DefaultTopN
	}
	return n
}
