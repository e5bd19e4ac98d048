// Package pricing recomputes a client-supplied sale total from authoritative
// product prices and confirms that every line can be served from stock.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

// ProductReader is the part of the stock ledger pricing needs.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type Line struct {
	ProductID string
	Amount    int
}

// PricedLine is a validated line with its unit price frozen at quote time.
type PricedLine struct {
	ProductID string
	Amount    int
	UnitPrice decimal.Decimal
	Price     decimal.Decimal
}

type Quote struct {
	Lines []PricedLine
	Total decimal.Decimal
}

// LineError names the product that failed validation. It unwraps to one of
// the store sentinels so callers can match it with errors.Is.
type LineError struct {
	ProductID string
	Err       error
}

func (e *LineError) Error() string {
	switch {
	case errors.Is(e.Err, store.ErrProductNotFound):
		return fmt.Sprintf("Product with id: %s not found", e.ProductID)
	case errors.Is(e.Err, store.ErrInsufficientStock):
		return fmt.Sprintf("Insufficient stock for product with id: %s", e.ProductID)
	default:
		return fmt.Sprintf("%v: product %s", e.Err, e.ProductID)
	}
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// QuoteSale validates lines in order and stops at the first failure. Repeated
// products are checked against their cumulative amount. The claimed total must
// equal the recomputed total exactly.
func QuoteSale(ctx context.Context, reader ProductReader, lines []Line, claimed decimal.Decimal) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, fmt.Errorf("%w: sale has no products", store.ErrInvalidSale)
	}

	total := decimal.Zero
	requested := make(map[string]int, len(lines))
	priced := make([]PricedLine, 0, len(lines))
	for _, line := range lines {
		if line.Amount < 1 {
			return Quote{}, &LineError{ProductID: line.ProductID, Err: store.ErrInvalidSale}
		}

		product, err := reader.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrProductNotFound) {
				return Quote{}, &LineError{ProductID: line.ProductID, Err: store.ErrProductNotFound}
			}
			return Quote{}, err
		}
		if !product.IsActive {
			return Quote{}, &LineError{ProductID: line.ProductID, Err: store.ErrProductNotFound}
		}
		requested[line.ProductID] += line.Amount
		if requested[line.ProductID] > product.Stock {
			return Quote{}, &LineError{ProductID: line.ProductID, Err: store.ErrInsufficientStock}
		}

		price := product.SalePrice.Mul(decimal.NewFromInt(int64(line.Amount)))
		total = total.Add(price)
		priced = append(priced, PricedLine{
			ProductID: line.ProductID,
			Amount:    line.Amount,
			UnitPrice: product.SalePrice,
			Price:     price,
		})
	}

	if !total.Equal(claimed) {
		return Quote{}, fmt.Errorf("%w: expected %s, got %s", store.ErrPriceMismatch, total.String(), claimed.String())
	}

	return Quote{Lines: priced, Total: total}, nil
}
