package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/pricing"
	"tiendapos/backend/internal/store"
)

// RegisterSale validates and prices the request, decrements stock and
// persists the sale in one transaction. Any failure leaves stock untouched.
func (s *Service) RegisterSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	userID, err := attributedUser(ctx, req.UserID)
	if err != nil {
		return domain.Sale{}, err
	}
	lines := make([]pricing.Line, 0, len(req.Products))
	for _, p := range req.Products {
		lines = append(lines, pricing.Line{ProductID: p.ProductID, Amount: p.AmountProduct})
	}

	var created *domain.Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		turn, err := repo.LockTurn(ctx, req.TurnID)
		if err != nil {
			return err
		}
		if !turn.IsActive {
			return store.ErrTurnClosed
		}

		clients, err := repo.GetPersonsByIDs(ctx, []string{req.ClientID})
		if err != nil {
			return err
		}
		if _, ok := clients[req.ClientID]; !ok {
			return store.ErrPersonNotFound
		}

		quote, err := pricing.QuoteSale(ctx, repo, lines, req.PriceSale)
		if err != nil {
			return err
		}

		for _, line := range stockLockOrder(quote.Lines) {
			if _, err := repo.DecrementStock(ctx, line.ProductID, line.Amount); err != nil {
				if errors.Is(err, store.ErrInsufficientStock) || errors.Is(err, store.ErrProductNotFound) {
					return &pricing.LineError{ProductID: line.ProductID, Err: err}
				}
				return err
			}
		}

		orders := make([]domain.OrderLine, 0, len(quote.Lines))
		for _, line := range quote.Lines {
			orders = append(orders, domain.OrderLine{
				ProductID:     line.ProductID,
				AmountProduct: line.Amount,
				Price:         line.Price,
			})
		}

		created, err = repo.CreateSale(ctx, domain.Sale{
			DateSale:  s.now(),
			PriceSale: quote.Total,
			ClientID:  req.ClientID,
			TurnID:    req.TurnID,
			UserID:    userID,
			Orders:    orders,
		})
		return err
	})
	if err != nil {
		s.metrics.SaleRejected(rejectionReason(err))
		return domain.Sale{}, err
	}

	s.metrics.SaleRegistered()
	s.reports.Invalidate(ctx)
	s.logAudit(ctx, "sale_register", "sale", created.ID, fmt.Sprintf("turn=%s,total=%s,lines=%d", created.TurnID, created.PriceSale.String(), len(created.Orders)))
	return *created, nil
}

// stockLockOrder returns the lines sorted by product id. Every sale takes
// product row locks in this order, so two sales over the same products can
// not wait on each other.
func stockLockOrder(lines []pricing.PricedLine) []pricing.PricedLine {
	ordered := slices.Clone(lines)
	slices.SortStableFunc(ordered, func(a, b pricing.PricedLine) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return ordered
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, store.ErrPriceMismatch):
		return "price_mismatch"
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, store.ErrTurnNotFound), errors.Is(err, store.ErrTurnClosed):
		return "turn"
	case errors.Is(err, store.ErrPersonNotFound):
		return "client_not_found"
	case errors.Is(err, store.ErrInvalidSale):
		return "invalid"
	default:
		return "error"
	}
}

// DeleteSale removes a sale and its order lines. Stock is not restored.
// Admins may delete directly; cashiers need a manager override.
func (s *Service) DeleteSale(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil && !hasManagerOverride(ctx) {
		return err
	}

	var deleted *domain.Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		sale, err := repo.GetSale(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.DeleteOrderLinesBySale(ctx, id); err != nil {
			return err
		}
		if err := repo.DeleteSale(ctx, id); err != nil {
			return err
		}
		deleted = sale
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.SaleDeleted()
	s.reports.Invalidate(ctx)
	detail := fmt.Sprintf("total=%s", deleted.PriceSale.String())
	if hasManagerOverride(ctx) {
		detail += ",manager_override=true"
	}
	s.logAudit(ctx, "sale_delete", "sale", id, detail)
	return nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) ListSalesByTurn(ctx context.Context, turnID string) ([]domain.Sale, error) {
	if _, err := s.repo.GetTurn(ctx, turnID); err != nil {
		return nil, err
	}
	return s.repo.ListSalesByTurn(ctx, turnID)
}
