package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name_product"`
	Category  Category        `json:"category"`
	Stock     int             `json:"stock"`
	SalePrice decimal.Decimal `json:"sale_price"`
	IsActive  bool            `json:"is_active"`
}

type ProductCreateRequest struct {
	Name         string          `json:"name_product" validate:"required,min=3,max=100"`
	CategoryName string          `json:"category" validate:"required,min=2,max=50"`
	SalePrice    decimal.Decimal `json:"sale_price" validate:"gte=0"`
	InitialStock int             `json:"stock" validate:"gte=0"`
}

type RestockRequest struct {
	Amount int `json:"amount" validate:"gt=0"`
}

// Person is a registered client. Only the fields the reports expose are kept.
type Person struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LastName string `json:"last_name"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

type PersonCreateRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	LastName string `json:"last_name" validate:"required,min=2,max=50"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
	Email    string `json:"email" validate:"omitempty,email"`
}

type Sale struct {
	ID        string          `json:"id"`
	DateSale  time.Time       `json:"date_sale"`
	PriceSale decimal.Decimal `json:"price_sale"`
	ClientID  string          `json:"id_client"`
	TurnID    string          `json:"id_turn"`
	UserID    string          `json:"id_user,omitempty"`
	Client    *Person         `json:"person,omitempty"`
	Orders    []OrderLine     `json:"orders"`
}

// OrderLine is one product-quantity entry of a sale. Price is the unit price
// at sale time multiplied by the amount and is never recomputed.
type OrderLine struct {
	ID            string          `json:"id"`
	SaleID        string          `json:"id_sale"`
	ProductID     string          `json:"id_product"`
	AmountProduct int             `json:"amount_product"`
	Price         decimal.Decimal `json:"price"`
	Product       *Product        `json:"product,omitempty"`
}

type SaleLineRequest struct {
	ProductID     string `json:"id" validate:"required,uuid"`
	AmountProduct int    `json:"amount_product" validate:"gt=0"`
}

type SaleCreateRequest struct {
	PriceSale decimal.Decimal   `json:"price_sale" validate:"gte=0"`
	ClientID  string            `json:"id_client" validate:"required,uuid"`
	UserID    string            `json:"id_user" validate:"omitempty,uuid"`
	TurnID    string            `json:"id_turn" validate:"required,uuid"`
	Products  []SaleLineRequest `json:"products" validate:"required,min=1,dive"`
}

type CashRegister struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Turns    []Turn `json:"turns,omitempty"`
}

type CashRegisterCreateRequest struct {
	Name     string `json:"name" validate:"required,min=3,max=50"`
	Location string `json:"location" validate:"required,min=3,max=50"`
}

type CashRegisterUpdateRequest struct {
	ID       string `json:"id" validate:"required,uuid"`
	Name     string `json:"name" validate:"required,min=3,max=50"`
	Location string `json:"location" validate:"required,min=3,max=50"`
}

type Turn struct {
	ID             string           `json:"id"`
	CashRegisterID string           `json:"id_cash_register"`
	UserID         string           `json:"id_user"`
	DateTimeStart  time.Time        `json:"date_time_start"`
	BaseCash       decimal.Decimal  `json:"base_cash"`
	DateTimeEnd    *time.Time       `json:"date_time_end"`
	FinalCash      *decimal.Decimal `json:"final_cash"`
	IsActive       bool             `json:"is_active"`
	Withdrawals    []Withdrawal     `json:"withdrawals,omitempty"`
}

type TurnOpenRequest struct {
	DateTimeStart time.Time       `json:"date_time_start" validate:"required"`
	BaseCash      decimal.Decimal `json:"base_cash" validate:"gte=100"`
	UserID        string          `json:"id_user" validate:"omitempty,uuid"`
}

type TurnCloseRequest struct {
	TurnID      string          `json:"id_turn" validate:"required,uuid"`
	DateTimeEnd time.Time       `json:"date_time_end" validate:"required"`
	FinalCash   decimal.Decimal `json:"final_cash" validate:"gte=100"`
}

type Withdrawal struct {
	ID             string          `json:"id"`
	TurnID         string          `json:"id_turn"`
	WithdrawalDate time.Time       `json:"withdrawal_date"`
	Value          decimal.Decimal `json:"value"`
}

type WithdrawalCreateRequest struct {
	WithdrawalDate time.Time       `json:"withdrawal_date" validate:"required"`
	Value          decimal.Decimal `json:"value" validate:"gte=100"`
}

// ImbalanceLog records a cash discrepancy: positive values are a surplus,
// negative values a shortage.
type ImbalanceLog struct {
	ID          string          `json:"id"`
	TurnID      string          `json:"id_turn"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ImbalanceCreateRequest struct {
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description" validate:"required,min=3,max=255"`
}

type DayValue struct {
	Day   string          `json:"day"`
	Value decimal.Decimal `json:"value"`
}

type ChartReport struct {
	Total     decimal.Decimal `json:"total"`
	ChartData []DayValue      `json:"chartData"`
}

type ClientRanking struct {
	Person    Person          `json:"person"`
	PriceSale decimal.Decimal `json:"price_sale"`
}

type CategoryAmount struct {
	Category string `json:"category"`
	Amount   int    `json:"amount"`
}

type CategoriesOfDay struct {
	Day    string           `json:"day"`
	Values []CategoryAmount `json:"value"`
}

type TotalClients struct {
	TotalRegisteredClients int     `json:"totalRegisteredClients"`
	Client                 *Person `json:"client"`
	Visits                 int     `json:"visits"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID   string
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
