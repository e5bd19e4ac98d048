package memory

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"tiendapos/backend/internal/domain"
)

// Fixed ids keep the demo data addressable across restarts.
const (
	SeedRegisterMainID    = "6f1c2b8e-3d4a-4c5b-9e6f-7a8b9c0d1e2f"
	SeedRegisterExpressID = "0a9b8c7d-6e5f-4a3b-8c2d-1e0f9a8b7c6d"
	SeedClientAnaID       = "1b2c3d4e-5f60-4718-8293-a4b5c6d7e8f9"
	SeedClientLuisID      = "2c3d4e5f-6071-4829-93a4-b5c6d7e8f90a"
	SeedClientMariaID     = "3d4e5f60-7182-493a-a4b5-c6d7e8f90a1b"
	SeedProductWaterID    = "4e5f6071-8293-4a4b-b5c6-d7e8f90a1b2c"
	SeedProductCoffeeID   = "5f607182-93a4-4b5c-86d7-e8f90a1b2c3d"
	SeedProductBreadID    = "60718293-a4b5-4c6d-97e8-f90a1b2c3d4e"
)

// seedUsers builds the initial in-memory user accounts for demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD and fall
// back to dev defaults with a warning. PostgreSQL deployments never use them.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		id       string
		username string
		password string
		role     string
	}{
		{"7a8b9c0d-1e2f-4a3b-8c4d-5e6f7a8b9c0d", "admin", adminPwd, domain.RoleAdmin},
		{"8b9c0d1e-2f3a-4b4c-9d5e-6f7a8b9c0d1e", "cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			ID:        u.id,
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store preloaded with a small shop: a few categories and
// products with stock, three clients, two cash registers and the demo users.
func NewSeeded() *Store {
	s := New()
	s.data.users = seedUsers()

	categories := []domain.Category{
		{ID: "9c0d1e2f-3a4b-4c5d-8e6f-7a8b9c0d1e2f", Name: "bebidas"},
		{ID: "a0b1c2d3-e4f5-4a6b-9c7d-8e9f0a1b2c3d", Name: "panaderia"},
		{ID: "b1c2d3e4-f5a6-4b7c-8d8e-9f0a1b2c3d4e", Name: "lacteos"},
		{ID: "c2d3e4f5-a6b7-4c8d-9e9f-0a1b2c3d4e5f", Name: "aseo"},
	}
	for _, c := range categories {
		s.data.categories[strings.ToLower(c.Name)] = c
	}

	products := []domain.Product{
		{ID: SeedProductWaterID, Name: "Agua 600ml", Category: categories[0], Stock: 120, SalePrice: decimal.NewFromInt(1800)},
		{ID: SeedProductCoffeeID, Name: "Cafe molido 250g", Category: categories[0], Stock: 60, SalePrice: decimal.NewFromInt(9500)},
		{ID: SeedProductBreadID, Name: "Pan tajado", Category: categories[1], Stock: 40, SalePrice: decimal.NewFromInt(5200)},
		{ID: "d3e4f5a6-b7c8-4d9e-8f0a-1b2c3d4e5f60", Name: "Leche entera 1L", Category: categories[2], Stock: 80, SalePrice: decimal.NewFromInt(4300)},
		{ID: "e4f5a6b7-c8d9-4e0f-9a1b-2c3d4e5f6071", Name: "Queso campesino", Category: categories[2], Stock: 25, SalePrice: decimal.NewFromInt(12800)},
		{ID: "f5a6b7c8-d9e0-4f1a-8b2c-3d4e5f607182", Name: "Jabon de barra", Category: categories[3], Stock: 90, SalePrice: decimal.NewFromInt(3100)},
	}
	for _, p := range products {
		p.IsActive = true
		s.data.products[p.ID] = p
	}

	for _, p := range []domain.Person{
		{ID: SeedClientAnaID, Name: "Ana", LastName: "Restrepo", Phone: "3001234567"},
		{ID: SeedClientLuisID, Name: "Luis", LastName: "Gomez"},
		{ID: SeedClientMariaID, Name: "Maria", LastName: "Ortiz", Email: "maria@example.com"},
	} {
		s.data.persons[p.ID] = p
	}

	for _, r := range []domain.CashRegister{
		{ID: SeedRegisterMainID, Name: "Caja principal", Location: "Entrada"},
		{ID: SeedRegisterExpressID, Name: "Caja rapida", Location: "Pasillo 3"},
	} {
		s.data.registers[r.ID] = r
	}

	return s
}
