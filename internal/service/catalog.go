package service

import (
	"context"
	"fmt"
	"strings"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// CreateProduct adds a product, creating its category on first use.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if req.SalePrice.IsNegative() || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidTransaction
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:      strings.TrimSpace(req.Name),
		Category:  domain.Category{Name: strings.TrimSpace(req.CategoryName)},
		Stock:     req.InitialStock,
		SalePrice: req.SalePrice,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,category=%s,price=%s", created.Name, created.Category.Name, created.SalePrice.String()))
	return *created, nil
}

// RestockProduct adds received units to a product and returns it.
func (s *Service) RestockProduct(ctx context.Context, productID string, req domain.RestockRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if req.Amount < 1 {
		return domain.Product{}, store.ErrInvalidTransaction
	}

	stock, err := s.repo.IncreaseStock(ctx, productID, req.Amount)
	if err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_restock", "product", productID, fmt.Sprintf("amount=%d,stock=%d", req.Amount, stock))
	return *product, nil
}

func (s *Service) ListPersons(ctx context.Context) ([]domain.Person, error) {
	return s.repo.ListPersons(ctx)
}

func (s *Service) CreatePerson(ctx context.Context, req domain.PersonCreateRequest) (domain.Person, error) {
	created, err := s.repo.CreatePerson(ctx, domain.Person{
		Name:     strings.TrimSpace(req.Name),
		LastName: strings.TrimSpace(req.LastName),
		Phone:    strings.TrimSpace(req.Phone),
		Email:    strings.TrimSpace(strings.ToLower(req.Email)),
	})
	if err != nil {
		return domain.Person{}, err
	}

	s.reports.Invalidate(ctx)
	s.logAudit(ctx, "person_create", "person", created.ID, created.Name+" "+created.LastName)
	return *created, nil
}
