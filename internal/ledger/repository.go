package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelmint/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Deduct runs in its own transaction. The balance check and subtraction
// are one conditional UPDATE, not a read-then-write pair: zero rows
// affected means the balance did not cover the amount.
func (r *Repository) Deduct(ctx context.Context, userID uuid.UUID, amount int, description string) (DeductResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return DeductResult{}, err
	}
	defer tx.Rollback(ctx)

	var after int
	err = tx.QueryRow(ctx, `
		UPDATE users SET credits = credits - $1, updated_at = now()
		WHERE id = $2 AND credits >= $1
		RETURNING credits
	`, amount, userID).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		// Rejected. Report the current balance for display; no
		// transaction row is appended.
		var current int
		if err := r.pool.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return DeductResult{}, ErrUnknownUser
			}
			return DeductResult{}, err
		}
		return DeductResult{Deducted: false, Balance: current}, nil
	}
	if err != nil {
		return DeductResult{}, err
	}

	if err := r.appendTx(ctx, tx, &models.CreditTransaction{
		ID:            uuid.New(),
		UserID:        userID,
		Kind:          models.CreditKindUsage,
		Amount:        -amount,
		BalanceBefore: after + amount,
		BalanceAfter:  after,
		Description:   description,
	}); err != nil {
		return DeductResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return DeductResult{}, err
	}
	return DeductResult{Deducted: true, Balance: after}, nil
}

// Credit unconditionally adds amount and appends a transaction of the
// given kind, in one transaction.
func (r *Repository) Credit(ctx context.Context, userID uuid.UUID, amount int, kind, description string) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var after int
	err = tx.QueryRow(ctx, `
		UPDATE users SET credits = credits + $1, updated_at = now()
		WHERE id = $2
		RETURNING credits
	`, amount, userID).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUnknownUser
	}
	if err != nil {
		return 0, err
	}

	if err := r.appendTx(ctx, tx, &models.CreditTransaction{
		ID:            uuid.New(),
		UserID:        userID,
		Kind:          kind,
		Amount:        amount,
		BalanceBefore: after - amount,
		BalanceAfter:  after,
		Description:   description,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return after, nil
}

func (r *Repository) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	var credits int
	err := r.pool.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUnknownUser
	}
	return credits, err
}

func (r *Repository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.CreditTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, kind, amount, balance_before, balance_after, description, created_at
		FROM credit_transactions WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditTransaction
	for rows.Next() {
		var t models.CreditTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

func (r *Repository) appendTx(ctx context.Context, tx pgx.Tx, t *models.CreditTransaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO credit_transactions (id, user_id, kind, amount, balance_before, balance_after, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.UserID, t.Kind, t.Amount, t.BalanceBefore, t.BalanceAfter, t.Description)
	return err
}
