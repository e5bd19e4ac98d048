package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Orders) == 0 {
		return nil, store.ErrInvalidSale
	}
	if sale.ID == "" {
		sale.ID = xid.New()
	}
	if sale.DateSale.IsZero() {
		sale.DateSale = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO sales (id, date_sale, price_sale, client_id, turn_id, user_id)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, sale.ID, sale.DateSale, sale.PriceSale, sale.ClientID, sale.TurnID, sale.UserID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: unknown client or turn", store.ErrInvalidSale)
		}
		return nil, err
	}

	batch := &pgx.Batch{}
	for i := range sale.Orders {
		line := &sale.Orders[i]
		if line.ID == "" {
			line.ID = xid.New()
		}
		line.SaleID = sale.ID
		batch.Queue(`
			INSERT INTO order_lines (id, sale_id, product_id, amount_product, price)
			VALUES ($1,$2,$3,$4,$5)
		`, line.ID, line.SaleID, line.ProductID, line.AmountProduct, line.Price)
	}
	results := s.db.SendBatch(ctx, batch)
	for range sale.Orders {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			if isForeignKeyViolation(err) {
				return nil, store.ErrProductNotFound
			}
			if isCheckViolation(err) {
				return nil, store.ErrInvalidSale
			}
			return nil, err
		}
	}
	if err := results.Close(); err != nil {
		return nil, err
	}

	return s.GetSale(ctx, sale.ID)
}

const saleQuery = `
	SELECT s.id, s.date_sale, s.price_sale, s.client_id, s.turn_id, s.user_id,
		p.name, p.last_name, p.phone, p.email
	FROM sales s
	JOIN persons p ON p.id = s.client_id
`

// querySales loads sales ordered by date then id, with their clients and
// order lines attached.
func (s *Store) querySales(ctx context.Context, where string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.Query(ctx, saleQuery+where+` ORDER BY s.date_sale, s.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		client := &domain.Person{}
		if err := rows.Scan(&sale.ID, &sale.DateSale, &sale.PriceSale, &sale.ClientID, &sale.TurnID, &sale.UserID,
			&client.Name, &client.LastName, &client.Phone, &client.Email); err != nil {
			return nil, err
		}
		client.ID = sale.ClientID
		sale.DateSale = sale.DateSale.UTC()
		sale.Client = client
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachOrderLines(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) attachOrderLines(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids = append(ids, sale.ID)
		index[sale.ID] = i
		sales[i].Orders = make([]domain.OrderLine, 0, 4)
	}

	rows, err := s.db.Query(ctx, `
		SELECT ol.id, ol.sale_id, ol.product_id, ol.amount_product, ol.price, `+productColumns+`
		FROM order_lines ol
		JOIN products p ON p.id = ol.product_id
		JOIN categories c ON c.id = p.category_id
		WHERE ol.sale_id = ANY($1)
		ORDER BY ol.sale_id, ol.id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		product := &domain.Product{}
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.AmountProduct, &line.Price,
			&product.ID, &product.Name, &product.Stock, &product.SalePrice, &product.IsActive, &product.Category.ID, &product.Category.Name); err != nil {
			return err
		}
		line.Product = product
		pos := index[line.SaleID]
		sales[pos].Orders = append(sales[pos].Orders, line)
	}
	return rows.Err()
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sales, err := s.querySales(ctx, `WHERE s.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, store.ErrSaleNotFound
	}
	return &sales[0], nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.querySales(ctx, ``)
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	return s.querySales(ctx, `WHERE s.date_sale >= $1 AND s.date_sale < $2`, from, to)
}

func (s *Store) ListSalesByTurn(ctx context.Context, turnID string) ([]domain.Sale, error) {
	return s.querySales(ctx, `WHERE s.turn_id = $1`, turnID)
}

func (s *Store) DeleteOrderLinesBySale(ctx context.Context, saleID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM order_lines WHERE sale_id = $1`, saleID)
	return err
}

func (s *Store) DeleteSale(ctx context.Context, saleID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrSaleNotFound
	}
	return nil
}
