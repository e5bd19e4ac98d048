package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

func (s *Store) CreateCashRegister(ctx context.Context, register domain.CashRegister) (*domain.CashRegister, error) {
	if strings.TrimSpace(register.Name) == "" || strings.TrimSpace(register.Location) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if register.ID == "" {
		register.ID = xid.New()
	}
	register.Turns = nil

	_, err := s.db.Exec(ctx, `
		INSERT INTO cash_registers (id, name, location) VALUES ($1,$2,$3)
	`, register.ID, register.Name, register.Location)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	return &register, nil
}

func (s *Store) UpdateCashRegister(ctx context.Context, register domain.CashRegister) (*domain.CashRegister, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE cash_registers SET name = $2, location = $3 WHERE id = $1
	`, register.ID, register.Name, register.Location)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrRegisterNotFound
	}
	register.Turns = nil
	return &register, nil
}

func (s *Store) getCashRegister(ctx context.Context, query string, id string) (*domain.CashRegister, error) {
	var register domain.CashRegister
	err := s.db.QueryRow(ctx, query, id).Scan(&register.ID, &register.Name, &register.Location)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRegisterNotFound
		}
		return nil, err
	}
	return &register, nil
}

func (s *Store) GetCashRegister(ctx context.Context, id string) (*domain.CashRegister, error) {
	return s.getCashRegister(ctx, `SELECT id, name, location FROM cash_registers WHERE id = $1`, id)
}

func (s *Store) LockCashRegister(ctx context.Context, id string) (*domain.CashRegister, error) {
	return s.getCashRegister(ctx, `SELECT id, name, location FROM cash_registers WHERE id = $1 FOR UPDATE`, id)
}

func (s *Store) ListCashRegisters(ctx context.Context) ([]domain.CashRegister, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, location FROM cash_registers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	registers := make([]domain.CashRegister, 0, 8)
	for rows.Next() {
		var register domain.CashRegister
		if err := rows.Scan(&register.ID, &register.Name, &register.Location); err != nil {
			return nil, err
		}
		registers = append(registers, register)
	}
	return registers, rows.Err()
}

func (s *Store) DeleteCashRegister(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM cash_registers WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrRegisterNotFound
	}
	return nil
}

const turnColumns = `id, cash_register_id, user_id, date_time_start, base_cash, date_time_end, final_cash, is_active`

func scanTurn(row pgx.Row) (domain.Turn, error) {
	var (
		turn      domain.Turn
		end       *time.Time
		finalCash decimal.NullDecimal
	)
	if err := row.Scan(&turn.ID, &turn.CashRegisterID, &turn.UserID, &turn.DateTimeStart, &turn.BaseCash, &end, &finalCash, &turn.IsActive); err != nil {
		return domain.Turn{}, err
	}
	turn.DateTimeStart = turn.DateTimeStart.UTC()
	if end != nil {
		utc := end.UTC()
		turn.DateTimeEnd = &utc
	}
	if finalCash.Valid {
		turn.FinalCash = &finalCash.Decimal
	}
	return turn, nil
}

// CreateTurn relies on the partial unique index over active turns, so two
// racing opens on one register cannot both succeed.
func (s *Store) CreateTurn(ctx context.Context, turn domain.Turn) (*domain.Turn, error) {
	if turn.ID == "" {
		turn.ID = xid.New()
	}
	turn.Withdrawals = nil

	created, err := scanTurn(s.db.QueryRow(ctx, `
		INSERT INTO turns (id, cash_register_id, user_id, date_time_start, base_cash, date_time_end, final_cash, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING `+turnColumns,
		turn.ID, turn.CashRegisterID, turn.UserID, turn.DateTimeStart, turn.BaseCash, turn.DateTimeEnd, nullDecimal(turn.FinalCash), turn.IsActive))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrActiveTurnExists
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrRegisterNotFound
		}
		return nil, err
	}
	return &created, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func (s *Store) getTurn(ctx context.Context, query string, args ...any) (*domain.Turn, error) {
	turn, err := scanTurn(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTurnNotFound
		}
		return nil, err
	}
	return &turn, nil
}

func (s *Store) GetTurn(ctx context.Context, id string) (*domain.Turn, error) {
	return s.getTurn(ctx, `SELECT `+turnColumns+` FROM turns WHERE id = $1`, id)
}

func (s *Store) LockTurn(ctx context.Context, id string) (*domain.Turn, error) {
	return s.getTurn(ctx, `SELECT `+turnColumns+` FROM turns WHERE id = $1 FOR UPDATE`, id)
}

func (s *Store) GetActiveTurn(ctx context.Context, cashRegisterID string) (*domain.Turn, error) {
	return s.getTurn(ctx, `SELECT `+turnColumns+` FROM turns WHERE cash_register_id = $1 AND is_active`, cashRegisterID)
}

func (s *Store) ListTurnsByRegister(ctx context.Context, cashRegisterID string) ([]domain.Turn, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+turnColumns+`
		FROM turns
		WHERE cash_register_id = $1
		ORDER BY date_time_start, id
	`, cashRegisterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := make([]domain.Turn, 0, 16)
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// CloseTurn only updates an active turn. A second close, racing or not,
// matches no row and reports ErrTurnAlreadyClosed.
func (s *Store) CloseTurn(ctx context.Context, id string, end time.Time, finalCash decimal.Decimal) (*domain.Turn, error) {
	turn, err := s.getTurn(ctx, `
		UPDATE turns
		SET is_active = false, date_time_end = $2, final_cash = $3
		WHERE id = $1 AND is_active
		RETURNING `+turnColumns, id, end, finalCash)
	if err == nil {
		return turn, nil
	}
	if !errors.Is(err, store.ErrTurnNotFound) {
		return nil, err
	}

	if _, err := s.GetTurn(ctx, id); err != nil {
		return nil, err
	}
	return nil, store.ErrTurnAlreadyClosed
}

func (s *Store) DeleteTurnsByRegister(ctx context.Context, cashRegisterID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM turns WHERE cash_register_id = $1`, cashRegisterID)
	if isForeignKeyViolation(err) {
		return store.ErrInvalidTransaction
	}
	return err
}

func (s *Store) CreateWithdrawal(ctx context.Context, withdrawal domain.Withdrawal) (*domain.Withdrawal, error) {
	if !withdrawal.Value.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if withdrawal.ID == "" {
		withdrawal.ID = xid.New()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO withdrawals (id, turn_id, withdrawal_date, value) VALUES ($1,$2,$3,$4)
	`, withdrawal.ID, withdrawal.TurnID, withdrawal.WithdrawalDate, withdrawal.Value)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrTurnNotFound
		}
		return nil, err
	}
	return &withdrawal, nil
}

func (s *Store) queryWithdrawals(ctx context.Context, where string, args ...any) ([]domain.Withdrawal, error) {
	rows, err := s.db.Query(ctx, `
		SELECT w.id, w.turn_id, w.withdrawal_date, w.value
		FROM withdrawals w
		`+where+`
		ORDER BY w.withdrawal_date, w.id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	withdrawals := make([]domain.Withdrawal, 0, 16)
	for rows.Next() {
		var w domain.Withdrawal
		if err := rows.Scan(&w.ID, &w.TurnID, &w.WithdrawalDate, &w.Value); err != nil {
			return nil, err
		}
		w.WithdrawalDate = w.WithdrawalDate.UTC()
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

func (s *Store) ListWithdrawals(ctx context.Context) ([]domain.Withdrawal, error) {
	return s.queryWithdrawals(ctx, ``)
}

func (s *Store) ListWithdrawalsByTurn(ctx context.Context, turnID string) ([]domain.Withdrawal, error) {
	return s.queryWithdrawals(ctx, `WHERE w.turn_id = $1`, turnID)
}

func (s *Store) ListWithdrawalsByRegister(ctx context.Context, cashRegisterID string) ([]domain.Withdrawal, error) {
	return s.queryWithdrawals(ctx, `JOIN turns t ON t.id = w.turn_id WHERE t.cash_register_id = $1`, cashRegisterID)
}

func (s *Store) DeleteWithdrawalsByTurn(ctx context.Context, turnID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM withdrawals WHERE turn_id = $1`, turnID)
	return err
}

func (s *Store) CreateImbalanceLog(ctx context.Context, entry domain.ImbalanceLog) (*domain.ImbalanceLog, error) {
	if entry.Value.IsZero() || strings.TrimSpace(entry.Description) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if entry.ID == "" {
		entry.ID = xid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO imbalance_logs (id, turn_id, value, description, created_at) VALUES ($1,$2,$3,$4,$5)
	`, entry.ID, entry.TurnID, entry.Value, entry.Description, entry.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrTurnNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListImbalanceLogsByTurn(ctx context.Context, turnID string) ([]domain.ImbalanceLog, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, turn_id, value, description, created_at
		FROM imbalance_logs
		WHERE turn_id = $1
		ORDER BY created_at, id
	`, turnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ImbalanceLog, 0, 8)
	for rows.Next() {
		var entry domain.ImbalanceLog
		if err := rows.Scan(&entry.ID, &entry.TurnID, &entry.Value, &entry.Description, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) DeleteImbalanceLogsByTurn(ctx context.Context, turnID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM imbalance_logs WHERE turn_id = $1`, turnID)
	return err
}
