package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelmint/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, credits, subscribed, daily_credit_cap)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.DisplayName, u.PasswordHash, u.Credits, u.Subscribed, u.DailyCreditCap).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, credits, subscribed, daily_credit_cap, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Credits, &u.Subscribed, &u.DailyCreditCap, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, credits, subscribed, daily_credit_cap, created_at, updated_at
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Credits, &u.Subscribed, &u.DailyCreditCap, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetSubscribed flips the subscription flag. Watermarking keys off it.
func (r *UserRepo) SetSubscribed(ctx context.Context, id uuid.UUID, subscribed bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET subscribed = $2, updated_at = now() WHERE id = $1
	`, id, subscribed)
	return err
}

func (r *UserRepo) SetDailyCreditCap(ctx context.Context, id uuid.UUID, cap *int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET daily_credit_cap = $2, updated_at = now() WHERE id = $1
	`, id, cap)
	return err
}
