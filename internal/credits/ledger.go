package credits

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
)

// Ledger is the coordinator-facing credit authority. It performs exactly one
// remote round trip per call and translates transport failures into
// CreditServiceFault so callers never see raw errors.
//
// Concurrent submissions from several devices are not locked here; the
// backing service's atomic check-and-debit is what prevents overspend.
type Ledger struct {
	service domain.CreditService
	logger  zerolog.Logger
}

func NewLedger(service domain.CreditService, logger zerolog.Logger) *Ledger {
	return &Ledger{service: service, logger: logger}
}

// AuthorizeAndDebit returns true when amount was debited. A false result
// with nil error is the insufficient-credits outcome.
func (l *Ledger) AuthorizeAndDebit(ctx context.Context, userID string, amount int) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, domain.NewValidationError("user is required")
	}
	if amount < 0 {
		return false, domain.NewValidationError("credit amount must not be negative")
	}
	if amount == 0 {
		return true, nil
	}
	ok, err := l.service.AuthorizeAndDebit(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false, err
		}
		l.logger.Error().Err(err).Str("user_id", userID).Int("amount", amount).Msg("credits: debit failed")
		return false, domain.NewCreditServiceFault(err)
	}
	if !ok {
		l.logger.Info().Str("user_id", userID).Int("amount", amount).Msg("credits: insufficient balance")
		return false, nil
	}
	l.logger.Debug().Str("user_id", userID).Int("amount", amount).Msg("credits: debited")
	return true, nil
}

// Balance reads the current balance. The value is informational only.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	bal, err := l.service.Balance(ctx, userID)
	if err != nil {
		return 0, domain.NewCreditServiceFault(err)
	}
	return bal, nil
}
