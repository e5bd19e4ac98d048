package service

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiendapos/backend/internal/cache"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/metrics"
	"tiendapos/backend/internal/pricing"
	"tiendapos/backend/internal/report"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/store/memory"
)

const (
	seedMilkID  = "d3e4f5a6-b7c8-4d9e-8f0a-1b2c3d4e5f60"
	adminUserID = "7a8b9c0d-1e2f-4a3b-8c4d-5e6f7a8b9c0d"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.Store, *testClock) {
	t.Helper()
	repo := memory.NewSeeded()
	clock := &testClock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.now)}, opts...)
	return New(repo, report.NewEngine(nil, time.Second), opts...), repo, clock
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: adminUserID, Username: "admin", Role: domain.RoleAdmin})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID:   "8b9c0d1e-2f3a-4b4c-9d5e-6f7a8b9c0d1e",
		Username: "cashier",
		Role:     domain.RoleCashier,
	})
}

func money(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func assertMoney(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, got.Equal(money(want)), "expected %d, got %s", want, got.String())
}

func openTestTurn(t *testing.T, svc *Service, registerID string) domain.Turn {
	t.Helper()
	turn, err := svc.OpenTurn(cashierCtx(), registerID, domain.TurnOpenRequest{
		DateTimeStart: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		BaseCash:      money(50000),
	})
	require.NoError(t, err)
	return turn
}

func saleRequest(turnID string, clientID string, total int64, lines ...domain.SaleLineRequest) domain.SaleCreateRequest {
	return domain.SaleCreateRequest{
		PriceSale: money(total),
		ClientID:  clientID,
		TurnID:    turnID,
		Products:  lines,
	}
}

func line(productID string, amount int) domain.SaleLineRequest {
	return domain.SaleLineRequest{ProductID: productID, AmountProduct: amount}
}

// sellAt registers a sale dated at the given instant.
func sellAt(t *testing.T, svc *Service, clock *testClock, at time.Time, req domain.SaleCreateRequest) domain.Sale {
	t.Helper()
	clock.set(at)
	sale, err := svc.RegisterSale(cashierCtx(), req)
	require.NoError(t, err)
	return sale
}

func stockOf(t *testing.T, repo *memory.Store, productID string) int {
	t.Helper()
	product, err := repo.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return product.Stock
}

func TestRegisterSaleDecrementsStockAndFreezesPrices(t *testing.T) {
	svc, repo, _ := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	sale, err := svc.RegisterSale(cashierCtx(), saleRequest(turn.ID, memory.SeedClientAnaID, 3*1800+5200,
		line(memory.SeedProductWaterID, 3),
		line(memory.SeedProductBreadID, 1),
	))
	require.NoError(t, err)

	assertMoney(t, 10600, sale.PriceSale)
	assert.Equal(t, turn.ID, sale.TurnID)
	assert.Equal(t, "8b9c0d1e-2f3a-4b4c-9d5e-6f7a8b9c0d1e", sale.UserID)
	require.Len(t, sale.Orders, 2)
	assertMoney(t, 5400, sale.Orders[0].Price)
	assertMoney(t, 5200, sale.Orders[1].Price)
	assert.Equal(t, 117, stockOf(t, repo, memory.SeedProductWaterID))
	assert.Equal(t, 39, stockOf(t, repo, memory.SeedProductBreadID))

	stored, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Client)
	assert.Equal(t, "Ana", stored.Client.Name)
	require.NotNil(t, stored.Orders[0].Product)
	assert.Equal(t, "bebidas", stored.Orders[0].Product.Category.Name)
}

func TestRegisterSalePriceMismatchLeavesStockUntouched(t *testing.T) {
	m := metrics.New()
	svc, repo, _ := newTestService(t, WithMetrics(m))
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	_, err := svc.RegisterSale(cashierCtx(), saleRequest(turn.ID, memory.SeedClientAnaID, 1,
		line(memory.SeedProductWaterID, 2),
		line(memory.SeedProductCoffeeID, 1),
	))
	require.ErrorIs(t, err, store.ErrPriceMismatch)

	assert.Equal(t, 120, stockOf(t, repo, memory.SeedProductWaterID))
	assert.Equal(t, 60, stockOf(t, repo, memory.SeedProductCoffeeID))

	sales, err := svc.ListSales(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sales)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tiendapos_sales_rejected_total{reason="price_mismatch"} 1`)
}

func TestRegisterSaleInsufficientStockNamesProduct(t *testing.T) {
	svc, repo, _ := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	_, err := svc.RegisterSale(cashierCtx(), saleRequest(turn.ID, memory.SeedClientAnaID, 1800+41*5200,
		line(memory.SeedProductWaterID, 1),
		line(memory.SeedProductBreadID, 41),
	))
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	var lineErr *pricing.LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, memory.SeedProductBreadID, lineErr.ProductID)
	assert.Contains(t, err.Error(), memory.SeedProductBreadID)
	assert.Equal(t, 120, stockOf(t, repo, memory.SeedProductWaterID))
	assert.Equal(t, 40, stockOf(t, repo, memory.SeedProductBreadID))
}

func TestRegisterSaleChecksRepeatedProductCumulatively(t *testing.T) {
	svc, repo, _ := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	_, err := svc.RegisterSale(cashierCtx(), saleRequest(turn.ID, memory.SeedClientAnaID, 41*5200,
		line(memory.SeedProductBreadID, 30),
		line(memory.SeedProductBreadID, 11),
	))
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 40, stockOf(t, repo, memory.SeedProductBreadID))
}

func TestRegisterSaleRejectsUnknownReferences(t *testing.T) {
	svc, _, _ := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)
	missing := "00000000-0000-4000-8000-000000000000"

	tests := []struct {
		name string
		req  domain.SaleCreateRequest
		want error
	}{
		{"unknown product", saleRequest(turn.ID, memory.SeedClientAnaID, 1800, line(missing, 1)), store.ErrProductNotFound},
		{"unknown client", saleRequest(turn.ID, missing, 1800, line(memory.SeedProductWaterID, 1)), store.ErrPersonNotFound},
		{"unknown turn", saleRequest(missing, memory.SeedClientAnaID, 1800, line(memory.SeedProductWaterID, 1)), store.ErrTurnNotFound},
		{"no lines", saleRequest(turn.ID, memory.SeedClientAnaID, 0), store.ErrInvalidSale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterSale(cashierCtx(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegisterSaleRejectsClosedTurn(t *testing.T) {
	svc, repo, _ := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)
	_, err := svc.CloseTurn(cashierCtx(), memory.SeedRegisterMainID, domain.TurnCloseRequest{TurnID: turn.ID, FinalCash: money(50000)})
	require.NoError(t, err)

	_, err = svc.RegisterSale(cashierCtx(), saleRequest(turn.ID, memory.SeedClientAnaID, 1800, line(memory.SeedProductWaterID, 1)))
	require.ErrorIs(t, err, store.ErrTurnClosed)
	assert.Equal(t, 120, stockOf(t, repo, memory.SeedProductWaterID))
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc, repo, _ := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RegisterSale(cashierCtx(), saleRequest(turn.ID, memory.SeedClientLuisID, 2*5200, line(memory.SeedProductBreadID, 2)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, store.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, succeeded)
	assert.Equal(t, 10, rejected)
	assert.Equal(t, 0, stockOf(t, repo, memory.SeedProductBreadID))

	sales, err := svc.ListSalesByTurn(context.Background(), turn.ID)
	require.NoError(t, err)
	assert.Len(t, sales, 20)
}

func TestOpenTurnAllowsOneActiveTurnPerRegister(t *testing.T) {
	svc, _, _ := newTestService(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		opened  int
		refused int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.OpenTurn(cashierCtx(), memory.SeedRegisterExpressID, domain.TurnOpenRequest{BaseCash: money(20000)})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				opened++
			} else if errors.Is(err, store.ErrActiveTurnExists) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.Equal(t, 9, refused)

	active, err := svc.GetActiveTurn(context.Background(), memory.SeedRegisterExpressID)
	require.NoError(t, err)
	assert.True(t, active.IsActive)
	assert.Equal(t, "8b9c0d1e-2f3a-4b4c-9d5e-6f7a8b9c0d1e", active.UserID)

	// Another register is unaffected.
	_, err = svc.OpenTurn(cashierCtx(), memory.SeedRegisterMainID, domain.TurnOpenRequest{BaseCash: money(20000)})
	assert.NoError(t, err)
}

func TestOpenTurnUnknownRegister(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.OpenTurn(cashierCtx(), "00000000-0000-4000-8000-000000000000", domain.TurnOpenRequest{BaseCash: money(20000)})
	assert.ErrorIs(t, err, store.ErrRegisterNotFound)
}

func TestCloseTurnExactlyOnce(t *testing.T) {
	svc, _, clock := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		closed int
		again  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CloseTurn(cashierCtx(), memory.SeedRegisterMainID, domain.TurnCloseRequest{TurnID: turn.ID, FinalCash: money(61000)})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				closed++
			} else if errors.Is(err, store.ErrTurnAlreadyClosed) {
				again++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, closed)
	assert.Equal(t, 7, again)

	_, err := svc.GetActiveTurn(context.Background(), memory.SeedRegisterMainID)
	assert.ErrorIs(t, err, store.ErrTurnNotFound)

	registers, err := svc.GetCashRegister(context.Background(), memory.SeedRegisterMainID)
	require.NoError(t, err)
	require.Len(t, registers.Turns, 1)
	got := registers.Turns[0]
	assert.False(t, got.IsActive)
	require.NotNil(t, got.DateTimeEnd)
	assert.True(t, got.DateTimeEnd.Equal(clock.now()))
	require.NotNil(t, got.FinalCash)
	assertMoney(t, 61000, *got.FinalCash)

	// A closed register can open a new turn.
	_, err = svc.OpenTurn(cashierCtx(), memory.SeedRegisterMainID, domain.TurnOpenRequest{BaseCash: money(20000)})
	assert.NoError(t, err)
}

func TestCloseTurnValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	_, err := svc.CloseTurn(cashierCtx(), memory.SeedRegisterExpressID, domain.TurnCloseRequest{TurnID: turn.ID, FinalCash: money(100)})
	assert.ErrorIs(t, err, store.ErrTurnNotFound)

	_, err = svc.CloseTurn(cashierCtx(), memory.SeedRegisterMainID, domain.TurnCloseRequest{
		TurnID:      turn.ID,
		DateTimeEnd: turn.DateTimeStart.Add(-time.Hour),
		FinalCash:   money(100),
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	active, err := svc.GetActiveTurn(context.Background(), memory.SeedRegisterMainID)
	require.NoError(t, err)
	assert.Equal(t, turn.ID, active.ID)
}

func TestWithdrawalsAndImbalancesRequireOpenTurn(t *testing.T) {
	svc, _, _ := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	w, err := svc.RecordWithdrawal(cashierCtx(), turn.ID, domain.WithdrawalCreateRequest{Value: money(15000)})
	require.NoError(t, err)
	assertMoney(t, 15000, w.Value)

	_, err = svc.RecordWithdrawal(cashierCtx(), turn.ID, domain.WithdrawalCreateRequest{Value: money(0)})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	shortage, err := svc.RecordImbalance(cashierCtx(), turn.ID, domain.ImbalanceCreateRequest{Value: money(-2500), Description: "  faltante en arqueo  "})
	require.NoError(t, err)
	assert.Equal(t, "faltante en arqueo", shortage.Description)
	assertMoney(t, -2500, shortage.Value)

	_, err = svc.RecordImbalance(cashierCtx(), turn.ID, domain.ImbalanceCreateRequest{Value: money(0), Description: "nada"})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.CloseTurn(cashierCtx(), "", domain.TurnCloseRequest{TurnID: turn.ID, FinalCash: money(40000)})
	require.NoError(t, err)

	_, err = svc.RecordWithdrawal(cashierCtx(), turn.ID, domain.WithdrawalCreateRequest{Value: money(1000)})
	assert.ErrorIs(t, err, store.ErrTurnClosed)
	_, err = svc.RecordImbalance(cashierCtx(), turn.ID, domain.ImbalanceCreateRequest{Value: money(300), Description: "sobrante"})
	assert.ErrorIs(t, err, store.ErrTurnClosed)
	_, err = svc.RecordWithdrawal(cashierCtx(), "00000000-0000-4000-8000-000000000000", domain.WithdrawalCreateRequest{Value: money(1000)})
	assert.ErrorIs(t, err, store.ErrTurnNotFound)

	byTurn, err := svc.ListWithdrawalsByTurn(context.Background(), turn.ID)
	require.NoError(t, err)
	assert.Len(t, byTurn, 1)
	byRegister, err := svc.ListWithdrawalsByRegister(context.Background(), memory.SeedRegisterMainID)
	require.NoError(t, err)
	assert.Len(t, byRegister, 1)
	imbalances, err := svc.ListImbalancesByTurn(context.Background(), turn.ID)
	require.NoError(t, err)
	assert.Len(t, imbalances, 1)

	_, err = svc.ListWithdrawals(cashierCtx())
	assert.ErrorIs(t, err, ErrForbidden)
	all, err := svc.ListWithdrawals(adminCtx())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeleteSaleDoesNotRestock(t *testing.T) {
	m := metrics.New()
	svc, repo, _ := newTestService(t, WithMetrics(m))
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	sale, err := svc.RegisterSale(cashierCtx(), saleRequest(turn.ID, memory.SeedClientAnaID, 2*9500, line(memory.SeedProductCoffeeID, 2)))
	require.NoError(t, err)
	require.Equal(t, 58, stockOf(t, repo, memory.SeedProductCoffeeID))

	err = svc.DeleteSale(cashierCtx(), sale.ID)
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.DeleteSale(WithManagerOverride(cashierCtx()), sale.ID))
	assert.Equal(t, 58, stockOf(t, repo, memory.SeedProductCoffeeID))

	_, err = svc.GetSale(context.Background(), sale.ID)
	assert.ErrorIs(t, err, store.ErrSaleNotFound)
	assert.ErrorIs(t, svc.DeleteSale(adminCtx(), sale.ID), store.ErrSaleNotFound)
}

func TestDeleteCashRegisterCascades(t *testing.T) {
	svc, _, _ := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterExpressID)
	_, err := svc.RecordWithdrawal(cashierCtx(), turn.ID, domain.WithdrawalCreateRequest{Value: money(1000)})
	require.NoError(t, err)
	_, err = svc.RecordImbalance(cashierCtx(), turn.ID, domain.ImbalanceCreateRequest{Value: money(200), Description: "sobrante"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteCashRegister(cashierCtx(), memory.SeedRegisterExpressID), ErrForbidden)
	require.NoError(t, svc.DeleteCashRegister(adminCtx(), memory.SeedRegisterExpressID))

	_, err = svc.GetCashRegister(context.Background(), memory.SeedRegisterExpressID)
	assert.ErrorIs(t, err, store.ErrRegisterNotFound)
	_, err = svc.ListWithdrawalsByTurn(context.Background(), turn.ID)
	assert.ErrorIs(t, err, store.ErrTurnNotFound)
	all, err := svc.ListWithdrawals(adminCtx())
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.ErrorIs(t, svc.DeleteCashRegister(adminCtx(), memory.SeedRegisterExpressID), store.ErrRegisterNotFound)
}

func TestDeleteCashRegisterKeepsRegistersWithSales(t *testing.T) {
	svc, _, _ := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)
	_, err := svc.RecordWithdrawal(cashierCtx(), turn.ID, domain.WithdrawalCreateRequest{Value: money(1000)})
	require.NoError(t, err)
	_, err = svc.RegisterSale(cashierCtx(), saleRequest(turn.ID, memory.SeedClientAnaID, 1800, line(memory.SeedProductWaterID, 1)))
	require.NoError(t, err)

	err = svc.DeleteCashRegister(adminCtx(), memory.SeedRegisterMainID)
	require.ErrorIs(t, err, store.ErrRegisterHasSales)

	register, err := svc.GetCashRegister(context.Background(), memory.SeedRegisterMainID)
	require.NoError(t, err)
	require.Len(t, register.Turns, 1)
	assert.Len(t, register.Turns[0].Withdrawals, 1)
}

func TestCashRegisterAdministration(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateCashRegister(cashierCtx(), domain.CashRegisterCreateRequest{Name: "Caja tres", Location: "Bodega"})
	assert.ErrorIs(t, err, ErrForbidden)

	created, err := svc.CreateCashRegister(adminCtx(), domain.CashRegisterCreateRequest{Name: " Caja tres ", Location: "Bodega"})
	require.NoError(t, err)
	assert.Equal(t, "Caja tres", created.Name)

	_, err = svc.CreateCashRegister(adminCtx(), domain.CashRegisterCreateRequest{Name: "ab", Location: "Bodega"})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	updated, err := svc.UpdateCashRegister(adminCtx(), domain.CashRegisterUpdateRequest{ID: created.ID, Name: "Caja tres", Location: "Segundo piso"})
	require.NoError(t, err)
	assert.Equal(t, "Segundo piso", updated.Location)

	registers, err := svc.ListCashRegisters(context.Background())
	require.NoError(t, err)
	assert.Len(t, registers, 3)
}

// weekDay counts days from Sunday 2026-10-04.
func weekDay(offset int, hour int) time.Time {
	return time.Date(2026, 10, 4+offset, hour, 0, 0, 0, time.UTC)
}

func TestWeeklyRevenueScenario(t *testing.T) {
	svc, _, clock := newTestService(t)
	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:         "Chicle",
		CategoryName: "dulces",
		SalePrice:    money(50),
		InitialStock: 100,
	})
	require.NoError(t, err)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	for _, s := range []struct {
		at     time.Time
		amount int
	}{
		{weekDay(0, 9), 1},
		{weekDay(0, 18), 1},
		{weekDay(2, 10), 2},
		{weekDay(2, 23), 2},
		{weekDay(5, 7), 1},
	} {
		sellAt(t, svc, clock, s.at, saleRequest(turn.ID, memory.SeedClientAnaID, int64(50*s.amount), line(product.ID, s.amount)))
	}
	// Outside the window on both sides.
	sellAt(t, svc, clock, weekDay(-1, 23), saleRequest(turn.ID, memory.SeedClientAnaID, 50, line(product.ID, 1)))
	sellAt(t, svc, clock, weekDay(7, 0), saleRequest(turn.ID, memory.SeedClientAnaID, 50, line(product.ID, 1)))

	clock.set(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))
	explicit, err := svc.WeeklyRevenue(context.Background(), "2026-10-04", "2026-10-10")
	require.NoError(t, err)

	want := []int64{100, 0, 200, 0, 0, 50, 0}
	require.Len(t, explicit.ChartData, 7)
	for i, day := range explicit.ChartData {
		assert.Equal(t, report.Weekdays[i], day.Day)
		assertMoney(t, want[i], day.Value)
	}
	assertMoney(t, 350, explicit.Total)

	// The default window is the last completed week.
	defaulted, err := svc.WeeklyRevenue(context.Background(), "", "")
	require.NoError(t, err)
	assertMoney(t, 350, defaulted.Total)
}

func TestWeeklyRevenueEmptyAndInvalidWindows(t *testing.T) {
	svc, _, _ := newTestService(t)

	empty, err := svc.WeeklyRevenue(context.Background(), "2026-10-04", "2026-10-10")
	require.NoError(t, err)
	require.Len(t, empty.ChartData, 7)
	for i, day := range empty.ChartData {
		assert.Equal(t, report.Weekdays[i], day.Day)
		assert.True(t, day.Value.IsZero())
	}

	for _, bounds := range [][2]string{{"2026-10-04", ""}, {"04/10/2026", "2026-10-10"}, {"2026-10-10", "2026-10-04"}} {
		_, err := svc.WeeklyRevenue(context.Background(), bounds[0], bounds[1])
		assert.ErrorIs(t, err, report.ErrInvalidWindow, "bounds %v", bounds)
	}
}

func TestTopClientsBreaksTiesByClientID(t *testing.T) {
	svc, _, clock := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	sellAt(t, svc, clock, weekDay(0, 9), saleRequest(turn.ID, memory.SeedClientLuisID, 1800, line(memory.SeedProductWaterID, 1)))
	sellAt(t, svc, clock, weekDay(0, 10), saleRequest(turn.ID, memory.SeedClientAnaID, 1800, line(memory.SeedProductWaterID, 1)))
	sellAt(t, svc, clock, weekDay(0, 11), saleRequest(turn.ID, memory.SeedClientMariaID, 9500, line(memory.SeedProductCoffeeID, 1)))

	top, err := svc.TopClients(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Maria", top[0].Person.Name)
	assertMoney(t, 9500, top[0].PriceSale)
	assert.Equal(t, memory.SeedClientAnaID, top[1].Person.ID)

	all, err := svc.TopClients(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCategoryReports(t *testing.T) {
	svc, _, clock := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	sellAt(t, svc, clock, weekDay(0, 9), saleRequest(turn.ID, memory.SeedClientAnaID, 3*1800, line(memory.SeedProductWaterID, 3)))
	sellAt(t, svc, clock, weekDay(1, 9), saleRequest(turn.ID, memory.SeedClientLuisID, 2*5200+9500,
		line(memory.SeedProductBreadID, 2),
		line(memory.SeedProductCoffeeID, 1),
	))
	sellAt(t, svc, clock, weekDay(3, 9), saleRequest(turn.ID, memory.SeedClientMariaID, 5*4300, line(seedMilkID, 5)))
	clock.set(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))

	top, err := svc.TopCategories(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.CategoryAmount{
		{Category: "lacteos", Amount: 5},
		{Category: "bebidas", Amount: 4},
		{Category: "panaderia", Amount: 2},
	}, top)

	grid, err := svc.TopCategoriesByWeek(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, grid, 7)
	cells := func(day int) []int {
		require.Len(t, grid[day].Values, 2)
		assert.Equal(t, "lacteos", grid[day].Values[0].Category)
		assert.Equal(t, "bebidas", grid[day].Values[1].Category)
		return []int{grid[day].Values[0].Amount, grid[day].Values[1].Amount}
	}
	assert.Equal(t, []int{0, 3}, cells(0))
	assert.Equal(t, []int{0, 1}, cells(1))
	assert.Equal(t, []int{0, 0}, cells(2))
	assert.Equal(t, []int{5, 0}, cells(3))
	assert.Equal(t, "Saturday", grid[6].Day)
}

func TestMonthToDateRollups(t *testing.T) {
	svc, _, clock := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	sellAt(t, svc, clock, time.Date(2026, 9, 30, 20, 0, 0, 0, time.UTC), saleRequest(turn.ID, memory.SeedClientMariaID, 9500, line(memory.SeedProductCoffeeID, 1)))
	sellAt(t, svc, clock, weekDay(0, 9), saleRequest(turn.ID, memory.SeedClientAnaID, 1800, line(memory.SeedProductWaterID, 1)))
	sellAt(t, svc, clock, weekDay(1, 9), saleRequest(turn.ID, memory.SeedClientLuisID, 5200+1800,
		line(memory.SeedProductBreadID, 1),
		line(memory.SeedProductWaterID, 1),
	))
	sellAt(t, svc, clock, weekDay(8, 9), saleRequest(turn.ID, memory.SeedClientAnaID, 3600, line(memory.SeedProductWaterID, 2)))
	clock.set(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	sales, err := svc.TotalSales(ctx)
	require.NoError(t, err)
	assertMoney(t, 3, sales.Total)
	assertMoney(t, 1, sales.ChartData[0].Value)
	assertMoney(t, 2, sales.ChartData[1].Value)

	revenue, err := svc.TotalRevenue(ctx)
	require.NoError(t, err)
	assertMoney(t, 12400, revenue.Total)
	assertMoney(t, 1800, revenue.ChartData[0].Value)
	assertMoney(t, 10600, revenue.ChartData[1].Value)

	products, err := svc.TotalProducts(ctx)
	require.NoError(t, err)
	assertMoney(t, 4, products.Total)
	assertMoney(t, 3, products.ChartData[1].Value)

	clients, err := svc.TotalClients(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, clients.TotalRegisteredClients)
	require.NotNil(t, clients.Client)
	assert.Equal(t, memory.SeedClientAnaID, clients.Client.ID)
	assert.Equal(t, 2, clients.Visits)
}

func TestTotalClientsWithoutSales(t *testing.T) {
	svc, _, _ := newTestService(t)

	clients, err := svc.TotalClients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, clients.TotalRegisteredClients)
	assert.Nil(t, clients.Client)
	assert.Zero(t, clients.Visits)
}

func TestCatalogAdministration(t *testing.T) {
	svc, _, _ := newTestService(t)
	req := domain.ProductCreateRequest{Name: "Galletas", CategoryName: "Panaderia", SalePrice: money(2500), InitialStock: 12}

	_, err := svc.CreateProduct(cashierCtx(), req)
	assert.ErrorIs(t, err, ErrForbidden)

	product, err := svc.CreateProduct(adminCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, "panaderia", product.Category.Name)

	restocked, err := svc.RestockProduct(adminCtx(), product.ID, domain.RestockRequest{Amount: 8})
	require.NoError(t, err)
	assert.Equal(t, 20, restocked.Stock)

	_, err = svc.RestockProduct(adminCtx(), "00000000-0000-4000-8000-000000000000", domain.RestockRequest{Amount: 8})
	assert.ErrorIs(t, err, store.ErrProductNotFound)

	person, err := svc.CreatePerson(cashierCtx(), domain.PersonCreateRequest{Name: "Sofia", LastName: "Vargas", Email: "Sofia@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "sofia@example.com", person.Email)
	persons, err := svc.ListPersons(context.Background())
	require.NoError(t, err)
	assert.Len(t, persons, 4)
}

func TestAuditTrail(t *testing.T) {
	svc, _, clock := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)
	sellAt(t, svc, clock, weekDay(0, 9), saleRequest(turn.ID, memory.SeedClientAnaID, 1800, line(memory.SeedProductWaterID, 1)))

	_, err := svc.ListAuditLogs(cashierCtx(), "2026-10-04", 10)
	assert.ErrorIs(t, err, ErrForbidden)

	logs, err := svc.ListAuditLogs(adminCtx(), "2026-10-04", 10)
	require.NoError(t, err)
	var actions []string
	for _, entry := range logs {
		actions = append(actions, entry.Action)
		assert.Equal(t, "cashier", entry.ActorUsername)
	}
	assert.Contains(t, strings.Join(actions, ","), "sale_register")

	_, err = svc.ListAuditLogs(adminCtx(), "yesterday", 10)
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestRegisterSaleKeepsRequestLineOrder(t *testing.T) {
	svc, repo, _ := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)

	sale, err := svc.RegisterSale(cashierCtx(), saleRequest(turn.ID, memory.SeedClientAnaID, 5200+2*1800,
		line(memory.SeedProductBreadID, 1),
		line(memory.SeedProductWaterID, 2),
	))
	require.NoError(t, err)

	require.Len(t, sale.Orders, 2)
	assert.Equal(t, memory.SeedProductBreadID, sale.Orders[0].ProductID)
	assert.Equal(t, memory.SeedProductWaterID, sale.Orders[1].ProductID)
	assert.Equal(t, 39, stockOf(t, repo, memory.SeedProductBreadID))
}

func TestStockLockOrderSortsByProductID(t *testing.T) {
	lines := []pricing.PricedLine{
		{ProductID: memory.SeedProductBreadID, Amount: 1},
		{ProductID: memory.SeedProductWaterID, Amount: 2},
		{ProductID: memory.SeedProductBreadID, Amount: 3},
	}

	ordered := stockLockOrder(lines)

	require.Len(t, ordered, 3)
	assert.Equal(t, memory.SeedProductWaterID, ordered[0].ProductID)
	assert.Equal(t, 1, ordered[1].Amount)
	assert.Equal(t, 3, ordered[2].Amount)
	assert.Equal(t, memory.SeedProductBreadID, lines[0].ProductID, "input left untouched")
}

func TestCashierCannotAttributeWorkToAnotherUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	otherUser := "9c0d1e2f-3a4b-4c5d-8e6f-7a8b9c0d1e2f"

	_, err := svc.OpenTurn(cashierCtx(), memory.SeedRegisterMainID, domain.TurnOpenRequest{
		UserID:   adminUserID,
		BaseCash: money(50000),
	})
	require.ErrorIs(t, err, ErrForbidden)

	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)
	req := saleRequest(turn.ID, memory.SeedClientAnaID, 1800, line(memory.SeedProductWaterID, 1))
	req.UserID = otherUser
	_, err = svc.RegisterSale(cashierCtx(), req)
	require.ErrorIs(t, err, ErrForbidden)

	req.UserID = "8b9c0d1e-2f3a-4b4c-9d5e-6f7a8b9c0d1e"
	own, err := svc.RegisterSale(cashierCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, req.UserID, own.UserID)

	req.UserID = otherUser
	onBehalf, err := svc.RegisterSale(adminCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, otherUser, onBehalf.UserID)
}

func TestWeeklyRevenueAcceptsTimestamps(t *testing.T) {
	svc, _, clock := newTestService(t)
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)
	sellAt(t, svc, clock, weekDay(2, 10), saleRequest(turn.ID, memory.SeedClientAnaID, 1800, line(memory.SeedProductWaterID, 1)))
	clock.set(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))

	chart, err := svc.WeeklyRevenue(context.Background(), "2026-10-04T00:00:00Z", "2026-10-10T23:59:59.000Z")
	require.NoError(t, err)
	assertMoney(t, 1800, chart.Total)
	assertMoney(t, 1800, chart.ChartData[2].Value)

	// 21:00 on Saturday in UTC-3 is already Sunday in UTC.
	shifted, err := svc.WeeklyRevenue(context.Background(), "2026-10-03T21:00:00-03:00", "2026-10-10")
	require.NoError(t, err)
	assertMoney(t, 1800, shifted.Total)

	_, err = svc.WeeklyRevenue(context.Background(), "2026-10-04T00:00", "2026-10-10")
	assert.ErrorIs(t, err, report.ErrInvalidWindow)
}

func TestCachedReportsFollowSaleWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	redisCache := cache.NewRedisReportCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = redisCache.Close() })

	repo := memory.NewSeeded()
	clock := &testClock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	svc := New(repo, report.NewEngine(redisCache, 30*time.Second), WithClock(clock.now))
	turn := openTestTurn(t, svc, memory.SeedRegisterMainID)
	ctx := context.Background()

	first := sellAt(t, svc, clock, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
		saleRequest(turn.ID, memory.SeedClientAnaID, 1800, line(memory.SeedProductWaterID, 1)))
	clock.set(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))

	totals, err := svc.TotalSales(ctx)
	require.NoError(t, err)
	assertMoney(t, 1, totals.Total)
	top, err := svc.TopClients(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 1)

	sellAt(t, svc, clock, time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC),
		saleRequest(turn.ID, memory.SeedClientLuisID, 5200, line(memory.SeedProductBreadID, 1)))
	clock.set(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))

	totals, err = svc.TotalSales(ctx)
	require.NoError(t, err)
	assertMoney(t, 2, totals.Total)

	require.NoError(t, svc.DeleteSale(adminCtx(), first.ID))

	totals, err = svc.TotalSales(ctx)
	require.NoError(t, err)
	assertMoney(t, 1, totals.Total)
	top, err = svc.TopClients(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, memory.SeedClientLuisID, top[0].Person.ID)
}
