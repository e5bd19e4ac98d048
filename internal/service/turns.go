package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

// OpenTurn starts a turn on a register. The register row stays locked while
// the active-turn check and the insert run, so only one turn per register
// can be active.
func (s *Service) OpenTurn(ctx context.Context, registerID string, req domain.TurnOpenRequest) (domain.Turn, error) {
	if req.BaseCash.IsNegative() {
		return domain.Turn{}, store.ErrInvalidTransaction
	}
	userID, err := attributedUser(ctx, req.UserID)
	if err != nil {
		return domain.Turn{}, err
	}
	start := req.DateTimeStart.UTC()
	if req.DateTimeStart.IsZero() {
		start = s.now()
	}

	var opened *domain.Turn
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		if _, err := repo.LockCashRegister(ctx, registerID); err != nil {
			return err
		}
		if _, err := repo.GetActiveTurn(ctx, registerID); err == nil {
			return store.ErrActiveTurnExists
		} else if !errors.Is(err, store.ErrTurnNotFound) {
			return err
		}

		var err error
		opened, err = repo.CreateTurn(ctx, domain.Turn{
			CashRegisterID: registerID,
			UserID:         userID,
			DateTimeStart:  start,
			BaseCash:       req.BaseCash,
			IsActive:       true,
		})
		return err
	})
	if err != nil {
		return domain.Turn{}, err
	}

	s.metrics.TurnOpened()
	s.logAudit(ctx, "turn_open", "turn", opened.ID, fmt.Sprintf("register=%s,base_cash=%s", registerID, opened.BaseCash.String()))
	return *opened, nil
}

// CloseTurn closes an active turn exactly once. When registerID is set the
// turn must belong to that register.
func (s *Service) CloseTurn(ctx context.Context, registerID string, req domain.TurnCloseRequest) (domain.Turn, error) {
	if req.FinalCash.IsNegative() {
		return domain.Turn{}, store.ErrInvalidTransaction
	}
	end := req.DateTimeEnd.UTC()
	if req.DateTimeEnd.IsZero() {
		end = s.now()
	}

	var closed *domain.Turn
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		turn, err := repo.LockTurn(ctx, req.TurnID)
		if err != nil {
			return err
		}
		if registerID != "" && turn.CashRegisterID != registerID {
			return store.ErrTurnNotFound
		}
		if !turn.IsActive {
			return store.ErrTurnAlreadyClosed
		}
		if end.Before(turn.DateTimeStart) {
			return fmt.Errorf("%w: turn cannot end before it starts", store.ErrInvalidTransaction)
		}

		closed, err = repo.CloseTurn(ctx, turn.ID, end, req.FinalCash)
		return err
	})
	if err != nil {
		return domain.Turn{}, err
	}

	s.metrics.TurnClosed()
	s.logAudit(ctx, "turn_close", "turn", closed.ID, fmt.Sprintf("final_cash=%s", req.FinalCash.String()))
	return *closed, nil
}

// GetActiveTurn returns the open turn of a register or ErrTurnNotFound.
func (s *Service) GetActiveTurn(ctx context.Context, registerID string) (domain.Turn, error) {
	if _, err := s.repo.GetCashRegister(ctx, registerID); err != nil {
		return domain.Turn{}, err
	}
	turn, err := s.repo.GetActiveTurn(ctx, registerID)
	if err != nil {
		return domain.Turn{}, err
	}
	return *turn, nil
}

// lockOpenTurn loads the turn under a row lock and rejects closed turns.
func lockOpenTurn(ctx context.Context, repo store.Repository, turnID string) (*domain.Turn, error) {
	turn, err := repo.LockTurn(ctx, turnID)
	if err != nil {
		return nil, err
	}
	if !turn.IsActive {
		return nil, store.ErrTurnClosed
	}
	return turn, nil
}

func (s *Service) RecordWithdrawal(ctx context.Context, turnID string, req domain.WithdrawalCreateRequest) (domain.Withdrawal, error) {
	if !req.Value.IsPositive() {
		return domain.Withdrawal{}, fmt.Errorf("%w: withdrawal value must be positive", store.ErrInvalidTransaction)
	}
	date := req.WithdrawalDate.UTC()
	if req.WithdrawalDate.IsZero() {
		date = s.now()
	}

	var created *domain.Withdrawal
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		if _, err := lockOpenTurn(ctx, repo, turnID); err != nil {
			return err
		}
		var err error
		created, err = repo.CreateWithdrawal(ctx, domain.Withdrawal{
			TurnID:         turnID,
			WithdrawalDate: date,
			Value:          req.Value,
		})
		return err
	})
	if err != nil {
		return domain.Withdrawal{}, err
	}

	s.metrics.WithdrawalRecorded()
	s.logAudit(ctx, "withdrawal_record", "turn", turnID, fmt.Sprintf("value=%s", created.Value.String()))
	return *created, nil
}

// RecordImbalance logs a signed cash discrepancy against an open turn.
func (s *Service) RecordImbalance(ctx context.Context, turnID string, req domain.ImbalanceCreateRequest) (domain.ImbalanceLog, error) {
	description := strings.TrimSpace(req.Description)
	if req.Value.IsZero() || description == "" {
		return domain.ImbalanceLog{}, fmt.Errorf("%w: imbalance needs a non-zero value and a description", store.ErrInvalidTransaction)
	}

	var created *domain.ImbalanceLog
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		if _, err := lockOpenTurn(ctx, repo, turnID); err != nil {
			return err
		}
		var err error
		created, err = repo.CreateImbalanceLog(ctx, domain.ImbalanceLog{
			TurnID:      turnID,
			Value:       req.Value,
			Description: description,
			CreatedAt:   s.now(),
		})
		return err
	})
	if err != nil {
		return domain.ImbalanceLog{}, err
	}

	s.metrics.ImbalanceRecorded()
	s.logAudit(ctx, "imbalance_record", "turn", turnID, fmt.Sprintf("value=%s", created.Value.String()))
	return *created, nil
}

func (s *Service) ListWithdrawalsByTurn(ctx context.Context, turnID string) ([]domain.Withdrawal, error) {
	if _, err := s.repo.GetTurn(ctx, turnID); err != nil {
		return nil, err
	}
	return s.repo.ListWithdrawalsByTurn(ctx, turnID)
}

func (s *Service) ListWithdrawalsByRegister(ctx context.Context, registerID string) ([]domain.Withdrawal, error) {
	if _, err := s.repo.GetCashRegister(ctx, registerID); err != nil {
		return nil, err
	}
	return s.repo.ListWithdrawalsByRegister(ctx, registerID)
}

func (s *Service) ListWithdrawals(ctx context.Context) ([]domain.Withdrawal, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListWithdrawals(ctx)
}

func (s *Service) ListImbalancesByTurn(ctx context.Context, turnID string) ([]domain.ImbalanceLog, error) {
	if _, err := s.repo.GetTurn(ctx, turnID); err != nil {
		return nil, err
	}
	return s.repo.ListImbalanceLogsByTurn(ctx, turnID)
}
