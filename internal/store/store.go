package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")

	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPriceMismatch     = errors.New("invalid price_sale")
	ErrInvalidSale       = errors.New("invalid sale")
	ErrSaleNotFound      = errors.New("sale not found")
	ErrPersonNotFound    = errors.New("client not found")

	ErrRegisterNotFound  = errors.New("cash register not found")
	ErrTurnNotFound      = errors.New("turn not found")
	ErrTurnClosed        = errors.New("turn is closed")
	ErrTurnAlreadyClosed = errors.New("turn already closed")
	ErrActiveTurnExists  = errors.New("cash register already has an active turn")
	ErrRegisterHasSales  = errors.New("cash register has recorded sales")
)

// Repository is the persistence collaborator of the back office. WithTx runs
// fn against a repository bound to a single transaction; the transaction
// commits only when fn returns nil. Calling WithTx on a transactional
// repository reuses the outer transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// DecrementStock subtracts amount from the product stock and returns the
	// new stock. It fails with ErrInsufficientStock when amount exceeds the
	// stock at write time.
	DecrementStock(ctx context.Context, productID string, amount int) (int, error)
	IncreaseStock(ctx context.Context, productID string, amount int) (int, error)

	CreatePerson(ctx context.Context, person domain.Person) (*domain.Person, error)
	ListPersons(ctx context.Context) ([]domain.Person, error)
	GetPersonsByIDs(ctx context.Context, ids []string) (map[string]domain.Person, error)
	CountPersons(ctx context.Context) (int, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	// ListSalesBetween returns sales with from <= date_sale < to, ordered by
	// date_sale then id, with order lines, products and categories loaded.
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	ListSalesByTurn(ctx context.Context, turnID string) ([]domain.Sale, error)
	DeleteOrderLinesBySale(ctx context.Context, saleID string) error
	DeleteSale(ctx context.Context, saleID string) error

	CreateCashRegister(ctx context.Context, register domain.CashRegister) (*domain.CashRegister, error)
	UpdateCashRegister(ctx context.Context, register domain.CashRegister) (*domain.CashRegister, error)
	GetCashRegister(ctx context.Context, id string) (*domain.CashRegister, error)
	// LockCashRegister reads the register and holds a row lock until the
	// surrounding transaction ends.
	LockCashRegister(ctx context.Context, id string) (*domain.CashRegister, error)
	ListCashRegisters(ctx context.Context) ([]domain.CashRegister, error)
	DeleteCashRegister(ctx context.Context, id string) error

	CreateTurn(ctx context.Context, turn domain.Turn) (*domain.Turn, error)
	GetTurn(ctx context.Context, id string) (*domain.Turn, error)
	LockTurn(ctx context.Context, id string) (*domain.Turn, error)
	GetActiveTurn(ctx context.Context, cashRegisterID string) (*domain.Turn, error)
	ListTurnsByRegister(ctx context.Context, cashRegisterID string) ([]domain.Turn, error)
	// CloseTurn closes the turn only while it is active. It returns
	// ErrTurnAlreadyClosed when the turn exists but is no longer active.
	CloseTurn(ctx context.Context, id string, end time.Time, finalCash decimal.Decimal) (*domain.Turn, error)
	DeleteTurnsByRegister(ctx context.Context, cashRegisterID string) error

	CreateWithdrawal(ctx context.Context, withdrawal domain.Withdrawal) (*domain.Withdrawal, error)
	ListWithdrawals(ctx context.Context) ([]domain.Withdrawal, error)
	ListWithdrawalsByTurn(ctx context.Context, turnID string) ([]domain.Withdrawal, error)
	ListWithdrawalsByRegister(ctx context.Context, cashRegisterID string) ([]domain.Withdrawal, error)
	DeleteWithdrawalsByTurn(ctx context.Context, turnID string) error

	CreateImbalanceLog(ctx context.Context, entry domain.ImbalanceLog) (*domain.ImbalanceLog, error)
	ListImbalanceLogsByTurn(ctx context.Context, turnID string) ([]domain.ImbalanceLog, error)
	DeleteImbalanceLogsByTurn(ctx context.Context, turnID string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
