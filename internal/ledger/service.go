package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/pixelmint/backend/internal/models"
)

// ErrUnknownUser is returned when a ledger operation references a user
// that has no balance row.
var ErrUnknownUser = errors.New("unknown user")

// DeductResult reports the outcome of a conditional deduction. On
// success Balance is the remaining balance; on rejection it is the
// current balance, for display.
type DeductResult struct {
	Deducted bool
	Balance  int
}

// Service is the credit ledger: a per-user integer balance plus an
// append-only transaction log. Deduct is evaluated as one atomic
// conditional write so concurrent deductions against a balance
// sufficient for only one of them cannot both succeed.
type Service interface {
	// Deduct subtracts amount only if the balance covers it, appending a
	// usage transaction on success and nothing on rejection.
	Deduct(ctx context.Context, userID uuid.UUID, amount int, description string) (DeductResult, error)

	// Refund unconditionally adds amount back and appends a refund
	// transaction. Returns the new balance.
	Refund(ctx context.Context, userID uuid.UUID, amount int, description string) (int, error)

	// Grant adds credits from an external billing event (purchase or
	// bonus) and appends the matching transaction. Returns the new balance.
	Grant(ctx context.Context, userID uuid.UUID, amount int, kind, description string) (int, error)

	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	Transactions(ctx context.Context, userID uuid.UUID) ([]*models.CreditTransaction, error)
}

type service struct {
	repo *Repository
}

// NewService returns the Postgres-backed ledger.
func NewService(repo *Repository) Service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

func (s *service) Deduct(ctx context.Context, userID uuid.UUID, amount int, description string) (DeductResult, error) {
	return s.repo.Deduct(ctx, userID, amount, description)
}

func (s *service) Refund(ctx context.Context, userID uuid.UUID, amount int, description string) (int, error) {
	return s.repo.Credit(ctx, userID, amount, models.CreditKindRefund, description)
}

func (s *service) Grant(ctx context.Context, userID uuid.UUID, amount int, kind, description string) (int, error) {
	if kind != models.CreditKindPurchase && kind != models.CreditKindBonus {
		return 0, errors.New("ledger: grant kind must be purchase or bonus")
	}
	return s.repo.Credit(ctx, userID, amount, kind, description)
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.Balance(ctx, userID)
}

func (s *service) Transactions(ctx context.Context, userID uuid.UUID) ([]*models.CreditTransaction, error) {
	return s.repo.ListByUserID(ctx, userID)
}
