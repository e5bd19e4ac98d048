package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

type dataset struct {
	categories  map[string]domain.Category // keyed by lower-cased name
	products    map[string]domain.Product
	persons     map[string]domain.Person
	sales       map[string]domain.Sale
	orderLines  map[string][]domain.OrderLine // keyed by sale id
	registers   map[string]domain.CashRegister
	turns       map[string]domain.Turn
	withdrawals map[string]domain.Withdrawal
	imbalances  map[string]domain.ImbalanceLog
	auditLogs   []domain.AuditLog
	users       map[string]domain.UserAccount // keyed by username
}

func newDataset() *dataset {
	return &dataset{
		categories:  make(map[string]domain.Category),
		products:    make(map[string]domain.Product),
		persons:     make(map[string]domain.Person),
		sales:       make(map[string]domain.Sale),
		orderLines:  make(map[string][]domain.OrderLine),
		registers:   make(map[string]domain.CashRegister),
		turns:       make(map[string]domain.Turn),
		withdrawals: make(map[string]domain.Withdrawal),
		imbalances:  make(map[string]domain.ImbalanceLog),
		auditLogs:   make([]domain.AuditLog, 0, 128),
		users:       make(map[string]domain.UserAccount),
	}
}

// clone copies every table. Stored values hold no shared mutable state apart
// from order line slices, which are copied explicitly.
func (d *dataset) clone() *dataset {
	lines := make(map[string][]domain.OrderLine, len(d.orderLines))
	for saleID, saleLines := range d.orderLines {
		lines[saleID] = slices.Clone(saleLines)
	}
	return &dataset{
		categories:  maps.Clone(d.categories),
		products:    maps.Clone(d.products),
		persons:     maps.Clone(d.persons),
		sales:       maps.Clone(d.sales),
		orderLines:  lines,
		registers:   maps.Clone(d.registers),
		turns:       maps.Clone(d.turns),
		withdrawals: maps.Clone(d.withdrawals),
		imbalances:  maps.Clone(d.imbalances),
		auditLogs:   slices.Clone(d.auditLogs),
		users:       maps.Clone(d.users),
	}
}

// Store is an in-memory store.Repository. Transactions run one at a time
// against a private copy of the data that replaces the shared copy only when
// the callback succeeds.
type Store struct {
	mu   sync.RWMutex
	data *dataset
	inTx bool
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{data: newDataset()}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, repo store.Repository) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{data: s.data.clone(), inTx: true}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.data.products))
	for _, p := range s.data.products {
		if !p.IsActive {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := cmp.Compare(a.Category.Name, b.Category.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.data.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.Name = strings.TrimSpace(product.Name)
	categoryName := strings.TrimSpace(product.Category.Name)
	if product.Name == "" || categoryName == "" || product.Stock < 0 || product.SalePrice.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.data.products {
		if strings.EqualFold(existing.Name, product.Name) {
			return nil, store.ErrInvalidTransaction
		}
	}

	key := strings.ToLower(categoryName)
	category, ok := s.data.categories[key]
	if !ok {
		category = domain.Category{ID: xid.New(), Name: categoryName}
		s.data.categories[key] = category
	}

	if product.ID == "" {
		product.ID = xid.New()
	}
	product.Category = category
	product.IsActive = true
	s.data.products[product.ID] = product
	return &product, nil
}

func (s *Store) DecrementStock(_ context.Context, productID string, amount int) (int, error) {
	if amount < 1 {
		return 0, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.data.products[productID]
	if !ok {
		return 0, store.ErrProductNotFound
	}
	if product.Stock < amount {
		return product.Stock, store.ErrInsufficientStock
	}
	product.Stock -= amount
	s.data.products[productID] = product
	return product.Stock, nil
}

func (s *Store) IncreaseStock(_ context.Context, productID string, amount int) (int, error) {
	if amount < 1 {
		return 0, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.data.products[productID]
	if !ok {
		return 0, store.ErrProductNotFound
	}
	product.Stock += amount
	s.data.products[productID] = product
	return product.Stock, nil
}

func (s *Store) CreatePerson(_ context.Context, person domain.Person) (*domain.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(person.Name) == "" || strings.TrimSpace(person.LastName) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if person.ID == "" {
		person.ID = xid.New()
	}
	if _, exists := s.data.persons[person.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.data.persons[person.ID] = person
	return &person, nil
}

func (s *Store) ListPersons(_ context.Context) ([]domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	persons := slices.Collect(maps.Values(s.data.persons))
	slices.SortFunc(persons, func(a, b domain.Person) int {
		if c := cmp.Compare(a.LastName, b.LastName); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return persons, nil
}

func (s *Store) GetPersonsByIDs(_ context.Context, ids []string) (map[string]domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Person, len(ids))
	for _, id := range ids {
		if p, ok := s.data.persons[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CountPersons(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.persons), nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Orders) == 0 {
		return nil, store.ErrInvalidSale
	}
	if _, ok := s.data.persons[sale.ClientID]; !ok {
		return nil, store.ErrPersonNotFound
	}
	if _, ok := s.data.turns[sale.TurnID]; !ok {
		return nil, store.ErrTurnNotFound
	}
	if sale.ID == "" {
		sale.ID = xid.New()
	}
	if sale.DateSale.IsZero() {
		sale.DateSale = time.Now().UTC()
	}

	lines := make([]domain.OrderLine, 0, len(sale.Orders))
	for _, line := range sale.Orders {
		if _, ok := s.data.products[line.ProductID]; !ok {
			return nil, store.ErrProductNotFound
		}
		if line.AmountProduct < 1 {
			return nil, store.ErrInvalidSale
		}
		if line.ID == "" {
			line.ID = xid.New()
		}
		line.SaleID = sale.ID
		line.Product = nil
		lines = append(lines, line)
	}

	sale.Orders = nil
	sale.Client = nil
	s.data.sales[sale.ID] = sale
	s.data.orderLines[sale.ID] = lines

	created := s.hydrate(sale)
	return &created, nil
}

// hydrate attaches the client and the order lines with their products.
// Callers hold s.mu.
func (s *Store) hydrate(sale domain.Sale) domain.Sale {
	if person, ok := s.data.persons[sale.ClientID]; ok {
		sale.Client = &person
	}
	lines := s.data.orderLines[sale.ID]
	sale.Orders = make([]domain.OrderLine, 0, len(lines))
	for _, line := range lines {
		if product, ok := s.data.products[line.ProductID]; ok {
			line.Product = &product
		}
		sale.Orders = append(sale.Orders, line)
	}
	return sale
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.data.sales[id]
	if !ok {
		return nil, store.ErrSaleNotFound
	}
	hydrated := s.hydrate(sale)
	return &hydrated, nil
}

func (s *Store) listSales(keep func(domain.Sale) bool) []domain.Sale {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.data.sales))
	for _, sale := range s.data.sales {
		if !keep(sale) {
			continue
		}
		result = append(result, s.hydrate(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if c := a.DateSale.Compare(b.DateSale); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	return s.listSales(func(domain.Sale) bool { return true }), nil
}

func (s *Store) ListSalesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	return s.listSales(func(sale domain.Sale) bool {
		return !sale.DateSale.Before(from) && sale.DateSale.Before(to)
	}), nil
}

func (s *Store) ListSalesByTurn(_ context.Context, turnID string) ([]domain.Sale, error) {
	return s.listSales(func(sale domain.Sale) bool { return sale.TurnID == turnID }), nil
}

func (s *Store) DeleteOrderLinesBySale(_ context.Context, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data.orderLines, saleID)
	return nil
}

// DeleteSale refuses to orphan order lines, mirroring the foreign key of the
// SQL schema.
func (s *Store) DeleteSale(_ context.Context, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.sales[saleID]; !ok {
		return store.ErrSaleNotFound
	}
	if len(s.data.orderLines[saleID]) > 0 {
		return store.ErrInvalidTransaction
	}
	delete(s.data.sales, saleID)
	delete(s.data.orderLines, saleID)
	return nil
}

func (s *Store) CreateCashRegister(_ context.Context, register domain.CashRegister) (*domain.CashRegister, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(register.Name) == "" || strings.TrimSpace(register.Location) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if register.ID == "" {
		register.ID = xid.New()
	}
	register.Turns = nil
	s.data.registers[register.ID] = register
	return &register, nil
}

func (s *Store) UpdateCashRegister(_ context.Context, register domain.CashRegister) (*domain.CashRegister, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.registers[register.ID]; !ok {
		return nil, store.ErrRegisterNotFound
	}
	register.Turns = nil
	s.data.registers[register.ID] = register
	return &register, nil
}

func (s *Store) GetCashRegister(_ context.Context, id string) (*domain.CashRegister, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	register, ok := s.data.registers[id]
	if !ok {
		return nil, store.ErrRegisterNotFound
	}
	return &register, nil
}

// LockCashRegister is a plain read: a transaction already owns the store
// exclusively.
func (s *Store) LockCashRegister(ctx context.Context, id string) (*domain.CashRegister, error) {
	return s.GetCashRegister(ctx, id)
}

func (s *Store) ListCashRegisters(_ context.Context) ([]domain.CashRegister, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	registers := slices.Collect(maps.Values(s.data.registers))
	slices.SortFunc(registers, func(a, b domain.CashRegister) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return registers, nil
}

func (s *Store) DeleteCashRegister(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.registers[id]; !ok {
		return store.ErrRegisterNotFound
	}
	for _, turn := range s.data.turns {
		if turn.CashRegisterID == id {
			return store.ErrInvalidTransaction
		}
	}
	delete(s.data.registers, id)
	return nil
}

func (s *Store) CreateTurn(_ context.Context, turn domain.Turn) (*domain.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.registers[turn.CashRegisterID]; !ok {
		return nil, store.ErrRegisterNotFound
	}
	if turn.IsActive {
		for _, existing := range s.data.turns {
			if existing.CashRegisterID == turn.CashRegisterID && existing.IsActive {
				return nil, store.ErrActiveTurnExists
			}
		}
	}
	if turn.ID == "" {
		turn.ID = xid.New()
	}
	turn.Withdrawals = nil
	s.data.turns[turn.ID] = turn
	return &turn, nil
}

func (s *Store) GetTurn(_ context.Context, id string) (*domain.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turn, ok := s.data.turns[id]
	if !ok {
		return nil, store.ErrTurnNotFound
	}
	return &turn, nil
}

func (s *Store) LockTurn(ctx context.Context, id string) (*domain.Turn, error) {
	return s.GetTurn(ctx, id)
}

func (s *Store) GetActiveTurn(_ context.Context, cashRegisterID string) (*domain.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, turn := range s.data.turns {
		if turn.CashRegisterID == cashRegisterID && turn.IsActive {
			return &turn, nil
		}
	}
	return nil, store.ErrTurnNotFound
}

func (s *Store) ListTurnsByRegister(_ context.Context, cashRegisterID string) ([]domain.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := make([]domain.Turn, 0)
	for _, turn := range s.data.turns {
		if turn.CashRegisterID == cashRegisterID {
			turns = append(turns, turn)
		}
	}
	slices.SortFunc(turns, func(a, b domain.Turn) int {
		if c := a.DateTimeStart.Compare(b.DateTimeStart); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return turns, nil
}

func (s *Store) CloseTurn(_ context.Context, id string, end time.Time, finalCash decimal.Decimal) (*domain.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn, ok := s.data.turns[id]
	if !ok {
		return nil, store.ErrTurnNotFound
	}
	if !turn.IsActive {
		return nil, store.ErrTurnAlreadyClosed
	}
	turn.IsActive = false
	turn.DateTimeEnd = &end
	turn.FinalCash = &finalCash
	s.data.turns[id] = turn
	return &turn, nil
}

func (s *Store) DeleteTurnsByRegister(_ context.Context, cashRegisterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, turn := range s.data.turns {
		if turn.CashRegisterID != cashRegisterID {
			continue
		}
		for _, w := range s.data.withdrawals {
			if w.TurnID == id {
				return store.ErrInvalidTransaction
			}
		}
		for _, entry := range s.data.imbalances {
			if entry.TurnID == id {
				return store.ErrInvalidTransaction
			}
		}
		for _, sale := range s.data.sales {
			if sale.TurnID == id {
				return store.ErrInvalidTransaction
			}
		}
	}
	for id, turn := range s.data.turns {
		if turn.CashRegisterID == cashRegisterID {
			delete(s.data.turns, id)
		}
	}
	return nil
}

func (s *Store) CreateWithdrawal(_ context.Context, withdrawal domain.Withdrawal) (*domain.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !withdrawal.Value.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if _, ok := s.data.turns[withdrawal.TurnID]; !ok {
		return nil, store.ErrTurnNotFound
	}
	if withdrawal.ID == "" {
		withdrawal.ID = xid.New()
	}
	s.data.withdrawals[withdrawal.ID] = withdrawal
	return &withdrawal, nil
}

func (s *Store) listWithdrawals(keep func(domain.Withdrawal) bool) []domain.Withdrawal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Withdrawal, 0)
	for _, w := range s.data.withdrawals {
		if keep(w) {
			result = append(result, w)
		}
	}
	slices.SortFunc(result, func(a, b domain.Withdrawal) int {
		if c := a.WithdrawalDate.Compare(b.WithdrawalDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

func (s *Store) ListWithdrawals(_ context.Context) ([]domain.Withdrawal, error) {
	return s.listWithdrawals(func(domain.Withdrawal) bool { return true }), nil
}

func (s *Store) ListWithdrawalsByTurn(_ context.Context, turnID string) ([]domain.Withdrawal, error) {
	return s.listWithdrawals(func(w domain.Withdrawal) bool { return w.TurnID == turnID }), nil
}

func (s *Store) ListWithdrawalsByRegister(_ context.Context, cashRegisterID string) ([]domain.Withdrawal, error) {
	s.mu.RLock()
	turnIDs := make(map[string]struct{})
	for id, turn := range s.data.turns {
		if turn.CashRegisterID == cashRegisterID {
			turnIDs[id] = struct{}{}
		}
	}
	s.mu.RUnlock()

	return s.listWithdrawals(func(w domain.Withdrawal) bool {
		_, ok := turnIDs[w.TurnID]
		return ok
	}), nil
}

func (s *Store) DeleteWithdrawalsByTurn(_ context.Context, turnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range s.data.withdrawals {
		if w.TurnID == turnID {
			delete(s.data.withdrawals, id)
		}
	}
	return nil
}

func (s *Store) CreateImbalanceLog(_ context.Context, entry domain.ImbalanceLog) (*domain.ImbalanceLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Value.IsZero() || strings.TrimSpace(entry.Description) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, ok := s.data.turns[entry.TurnID]; !ok {
		return nil, store.ErrTurnNotFound
	}
	if entry.ID == "" {
		entry.ID = xid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.data.imbalances[entry.ID] = entry
	return &entry, nil
}

func (s *Store) ListImbalanceLogsByTurn(_ context.Context, turnID string) ([]domain.ImbalanceLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ImbalanceLog, 0)
	for _, entry := range s.data.imbalances {
		if entry.TurnID == turnID {
			result = append(result, entry)
		}
	}
	slices.SortFunc(result, func(a, b domain.ImbalanceLog) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) DeleteImbalanceLogsByTurn(_ context.Context, turnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.data.imbalances {
		if entry.TurnID == turnID {
			delete(s.data.imbalances, id)
		}
	}
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.data.auditLogs = append(s.data.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.data.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.data.users[username]; exists {
		return store.ErrInvalidTransaction
	}
	if user.ID == "" {
		user.ID = xid.New()
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.data.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := slices.Collect(maps.Values(s.data.users))
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.data.users[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.data.users[username] = user
	return nil
}
