package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/report"
	"tiendapos/backend/internal/service"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context())})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	cashier, err := a.auth.CreateCashier(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleRestockProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.RestockRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	product, err := a.service.RestockProduct(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleListPersons(w http.ResponseWriter, r *http.Request) {
	persons, err := a.service.ListPersons(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"persons": persons})
}

func (a *API) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var req domain.PersonCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	person, err := a.service.CreatePerson(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"person": person})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListSales(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleRegisterSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	sale, err := a.service.RegisterSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sale, err := a.service.GetSale(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

// handleDeleteSale lets a cashier delete a sale when a valid manager PIN is
// sent in X-Manager-PIN.
func (a *API) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if actor, _ := service.ActorFromContext(ctx); actor.Role != domain.RoleAdmin {
		pin := strings.TrimSpace(r.Header.Get("X-Manager-PIN"))
		if pin == "" {
			writeError(w, http.StatusForbidden, service.ErrForbidden)
			return
		}
		if !a.auth.ValidateManagerPIN(pin) {
			writeError(w, http.StatusForbidden, errInvalidManagerPIN)
			return
		}
		ctx = service.WithManagerOverride(ctx)
	}

	if err := a.service.DeleteSale(ctx, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWeeklyRevenue(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	chart, err := a.service.WeeklyRevenue(r.Context(), query.Get("sundayDate"), query.Get("saturdayDate"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

func topParam(r *http.Request) int {
	return parsePositiveLimit(r.URL.Query().Get("top"), report.DefaultTopN, 100)
}

func (a *API) handleTopClients(w http.ResponseWriter, r *http.Request) {
	top, err := a.service.TopClients(r.Context(), topParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topSales": top})
}

func (a *API) handleTopCategories(w http.ResponseWriter, r *http.Request) {
	top, err := a.service.TopCategories(r.Context(), topParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topCategories": top})
}

func (a *API) handleTopCategoriesByWeek(w http.ResponseWriter, r *http.Request) {
	grid, err := a.service.TopCategoriesByWeek(r.Context(), topParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categoriesPerDay": grid})
}

func (a *API) handleTotalSales(w http.ResponseWriter, r *http.Request) {
	a.writeChart(w, r, a.service.TotalSales)
}

func (a *API) handleTotalRevenue(w http.ResponseWriter, r *http.Request) {
	a.writeChart(w, r, a.service.TotalRevenue)
}

func (a *API) handleTotalProducts(w http.ResponseWriter, r *http.Request) {
	a.writeChart(w, r, a.service.TotalProducts)
}

func (a *API) writeChart(w http.ResponseWriter, r *http.Request, load func(context.Context) (domain.ChartReport, error)) {
	chart, err := load(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

func (a *API) handleTotalClients(w http.ResponseWriter, r *http.Request) {
	totals, err := a.service.TotalClients(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (a *API) handleListCashRegisters(w http.ResponseWriter, r *http.Request) {
	registers, err := a.service.ListCashRegisters(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cashRegisters": registers})
}

func (a *API) handleCreateCashRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.CashRegisterCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	register, err := a.service.CreateCashRegister(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashRegister": register})
}

func (a *API) handleUpdateCashRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.CashRegisterUpdateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	register, err := a.service.UpdateCashRegister(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cashRegister": register})
}

func (a *API) handleGetCashRegister(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	register, err := a.service.GetCashRegister(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cashRegister": register})
}

func (a *API) handleDeleteCashRegister(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := a.service.DeleteCashRegister(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (a *API) handleOpenTurn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.TurnOpenRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	turn, err := a.service.OpenTurn(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"turn": turn})
}

func (a *API) handleCloseTurn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.TurnCloseRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	turn, err := a.service.CloseTurn(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turn": turn})
}

func (a *API) handleActiveTurn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	turn, err := a.service.GetActiveTurn(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turn": turn})
}

func (a *API) handleRegisterWithdrawals(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	withdrawals, err := a.service.ListWithdrawalsByRegister(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": withdrawals})
}

func (a *API) handleRecordWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.WithdrawalCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	withdrawal, err := a.service.RecordWithdrawal(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"withdrawal": withdrawal})
}

func (a *API) handleRecordImbalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.ImbalanceCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	entry, err := a.service.RecordImbalance(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"imbalance": entry})
}

func (a *API) handleTurnWithdrawals(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	withdrawals, err := a.service.ListWithdrawalsByTurn(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": withdrawals})
}

func (a *API) handleTurnSales(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sales, err := a.service.ListSalesByTurn(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleTurnImbalances(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	entries, err := a.service.ListImbalancesByTurn(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imbalances": entries})
}

func (a *API) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := a.service.ListWithdrawals(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": withdrawals})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), r.URL.Query().Get("date"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}
