package credits

import (
	"context"
	"fmt"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

// PGService keeps balances in credit_accounts and relies on a conditional
// UPDATE for atomicity.
type PGService struct {
	sql infra.SQLExecutor
}

func NewPGService(sql infra.SQLExecutor) *PGService {
	return &PGService{sql: sql}
}

func (s *PGService) AuthorizeAndDebit(ctx context.Context, userID string, amount int) (bool, error) {
	var balance int
	err := s.sql.QueryRow(ctx, sqlinline.QDebitCredits, userID, amount, "generation").Scan(&balance)
	if err != nil {
		if infra.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("debit credits: %w", err)
	}
	return true, nil
}

func (s *PGService) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectCreditBalance, userID).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return balance, nil
}

// Grant adds credits and returns the new balance.
func (s *PGService) Grant(ctx context.Context, userID string, amount int, reason string) (int, error) {
	var balance int
	if err := s.sql.QueryRow(ctx, sqlinline.QGrantCredits, userID, amount, reason).Scan(&balance); err != nil {
		return 0, fmt.Errorf("grant credits: %w", err)
	}
	return balance, nil
}

// Set overwrites the balance and returns it.
func (s *PGService) Set(ctx context.Context, userID string, balance int) (int, error) {
	var out int
	if err := s.sql.QueryRow(ctx, sqlinline.QSetCredits, userID, balance).Scan(&out); err != nil {
		return 0, fmt.Errorf("set credits: %w", err)
	}
	return out, nil
}

var _ domain.CreditService = (*PGService)(nil)
