package service

import (
	"context"
	"fmt"
	"strings"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

func (s *Service) CreateCashRegister(ctx context.Context, req domain.CashRegisterCreateRequest) (domain.CashRegister, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.CashRegister{}, err
	}
	name, location, err := normalizeRegister(req.Name, req.Location)
	if err != nil {
		return domain.CashRegister{}, err
	}

	created, err := s.repo.CreateCashRegister(ctx, domain.CashRegister{Name: name, Location: location})
	if err != nil {
		return domain.CashRegister{}, err
	}
	s.logAudit(ctx, "register_create", "cash_register", created.ID, name)
	return *created, nil
}

func (s *Service) UpdateCashRegister(ctx context.Context, req domain.CashRegisterUpdateRequest) (domain.CashRegister, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.CashRegister{}, err
	}
	name, location, err := normalizeRegister(req.Name, req.Location)
	if err != nil {
		return domain.CashRegister{}, err
	}

	updated, err := s.repo.UpdateCashRegister(ctx, domain.CashRegister{ID: req.ID, Name: name, Location: location})
	if err != nil {
		return domain.CashRegister{}, err
	}
	s.logAudit(ctx, "register_update", "cash_register", updated.ID, fmt.Sprintf("name=%s,location=%s", name, location))
	return *updated, nil
}

func normalizeRegister(name string, location string) (string, string, error) {
	name = strings.TrimSpace(name)
	location = strings.TrimSpace(location)
	if len(name) < 3 || len(name) > 50 || len(location) < 3 || len(location) > 50 {
		return "", "", fmt.Errorf("%w: name and location must have 3 to 50 characters", store.ErrInvalidTransaction)
	}
	return name, location, nil
}

// ListCashRegisters returns every register with its turns and their
// withdrawals.
func (s *Service) ListCashRegisters(ctx context.Context) ([]domain.CashRegister, error) {
	registers, err := s.repo.ListCashRegisters(ctx)
	if err != nil {
		return nil, err
	}
	for i := range registers {
		if err := s.attachTurns(ctx, &registers[i]); err != nil {
			return nil, err
		}
	}
	return registers, nil
}

func (s *Service) GetCashRegister(ctx context.Context, id string) (domain.CashRegister, error) {
	register, err := s.repo.GetCashRegister(ctx, id)
	if err != nil {
		return domain.CashRegister{}, err
	}
	if err := s.attachTurns(ctx, register); err != nil {
		return domain.CashRegister{}, err
	}
	return *register, nil
}

func (s *Service) attachTurns(ctx context.Context, register *domain.CashRegister) error {
	turns, err := s.repo.ListTurnsByRegister(ctx, register.ID)
	if err != nil {
		return err
	}
	withdrawals, err := s.repo.ListWithdrawalsByRegister(ctx, register.ID)
	if err != nil {
		return err
	}

	byTurn := make(map[string][]domain.Withdrawal, len(turns))
	for _, w := range withdrawals {
		byTurn[w.TurnID] = append(byTurn[w.TurnID], w)
	}
	for i := range turns {
		turns[i].Withdrawals = byTurn[turns[i].ID]
	}
	register.Turns = turns
	return nil
}

// DeleteCashRegister removes a register with its turns, withdrawals and
// imbalance logs in one transaction. Registers whose turns recorded sales are
// kept so the sales history stays intact.
func (s *Service) DeleteCashRegister(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	removedTurns := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		if _, err := repo.LockCashRegister(ctx, id); err != nil {
			return err
		}
		turns, err := repo.ListTurnsByRegister(ctx, id)
		if err != nil {
			return err
		}
		for _, turn := range turns {
			sales, err := repo.ListSalesByTurn(ctx, turn.ID)
			if err != nil {
				return err
			}
			if len(sales) > 0 {
				return store.ErrRegisterHasSales
			}
			if err := repo.DeleteWithdrawalsByTurn(ctx, turn.ID); err != nil {
				return err
			}
			if err := repo.DeleteImbalanceLogsByTurn(ctx, turn.ID); err != nil {
				return err
			}
		}
		if err := repo.DeleteTurnsByRegister(ctx, id); err != nil {
			return err
		}
		removedTurns = len(turns)
		return repo.DeleteCashRegister(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "register_delete", "cash_register", id, fmt.Sprintf("turns=%d", removedTurns))
	return nil
}
