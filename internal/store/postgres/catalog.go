package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

const productColumns = `p.id, p.name, p.stock, p.sale_price, p.is_active, c.id, c.name`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Stock, &p.SalePrice, &p.IsActive, &p.Category.ID, &p.Category.Name)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+productColumns+`
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.is_active
		ORDER BY c.name, p.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateProduct resolves the category by case-insensitive name and creates
// it on first use.
func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	categoryName := strings.TrimSpace(product.Category.Name)
	if product.Name == "" || categoryName == "" || product.Stock < 0 || product.SalePrice.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New()
	}

	var category domain.Category
	err := s.db.QueryRow(ctx, `
		INSERT INTO categories (id, name)
		VALUES ($1, $2)
		ON CONFLICT ((lower(name))) DO UPDATE SET name = categories.name
		RETURNING id, name
	`, xid.New(), categoryName).Scan(&category.ID, &category.Name)
	if err != nil {
		return nil, err
	}

	product.Category = category
	product.IsActive = true
	_, err = s.db.Exec(ctx, `
		INSERT INTO products (id, name, category_id, stock, sale_price, is_active)
		VALUES ($1,$2,$3,$4,$5,true)
	`, product.ID, product.Name, category.ID, product.Stock, product.SalePrice)
	if err != nil {
		if isUniqueViolation(err) || isCheckViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	return &product, nil
}

// DecrementStock is a single conditional update, so concurrent sales of the
// same product can never drive stock below zero.
func (s *Store) DecrementStock(ctx context.Context, productID string, amount int) (int, error) {
	if amount < 1 {
		return 0, store.ErrInvalidTransaction
	}

	var stock int
	err := s.db.QueryRow(ctx, `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
		RETURNING stock
	`, productID, amount).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	err = s.db.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrProductNotFound
	}
	if err != nil {
		return 0, err
	}
	return stock, store.ErrInsufficientStock
}

func (s *Store) IncreaseStock(ctx context.Context, productID string, amount int) (int, error) {
	if amount < 1 {
		return 0, store.ErrInvalidTransaction
	}

	var stock int
	err := s.db.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2 WHERE id = $1 RETURNING stock
	`, productID, amount).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrProductNotFound
	}
	return stock, err
}

func (s *Store) CreatePerson(ctx context.Context, person domain.Person) (*domain.Person, error) {
	if strings.TrimSpace(person.Name) == "" || strings.TrimSpace(person.LastName) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if person.ID == "" {
		person.ID = xid.New()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO persons (id, name, last_name, phone, email)
		VALUES ($1,$2,$3,$4,$5)
	`, person.ID, person.Name, person.LastName, person.Phone, person.Email)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	return &person, nil
}

func (s *Store) ListPersons(ctx context.Context) ([]domain.Person, error) {
	return s.queryPersons(ctx, `SELECT id, name, last_name, phone, email FROM persons ORDER BY last_name, name, id`)
}

func (s *Store) GetPersonsByIDs(ctx context.Context, ids []string) (map[string]domain.Person, error) {
	result := make(map[string]domain.Person, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	persons, err := s.queryPersons(ctx, `SELECT id, name, last_name, phone, email FROM persons WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range persons {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) queryPersons(ctx context.Context, query string, args ...any) ([]domain.Person, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	persons := make([]domain.Person, 0, 32)
	for rows.Next() {
		var p domain.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.LastName, &p.Phone, &p.Email); err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

func (s *Store) CountPersons(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM persons`).Scan(&count)
	return count, err
}
