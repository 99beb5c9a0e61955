package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelmint/backend/internal/models"
)

type AssetRepo struct {
	pool *pgxpool.Pool
}

func NewAssetRepo(pool *pgxpool.Pool) *AssetRepo {
	return &AssetRepo{pool: pool}
}

func (r *AssetRepo) Create(ctx context.Context, a *models.Asset) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO assets (id, storage_key, filename, content_type, size_bytes, owner_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, a.ID, a.StorageKey, a.Filename, a.ContentType, a.SizeBytes, a.OwnerID, a.Metadata).Scan(&a.CreatedAt)
}

func (r *AssetRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	var a models.Asset
	err := r.pool.QueryRow(ctx, `
		SELECT id, storage_key, filename, content_type, size_bytes, owner_id, metadata, created_at
		FROM assets WHERE id = $1
	`, id).Scan(&a.ID, &a.StorageKey, &a.Filename, &a.ContentType, &a.SizeBytes, &a.OwnerID, &a.Metadata, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssetRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.Asset, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, storage_key, filename, content_type, size_bytes, owner_id, metadata, created_at
		FROM assets WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.ID, &a.StorageKey, &a.Filename, &a.ContentType, &a.SizeBytes, &a.OwnerID, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}

func (r *AssetRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM assets WHERE id = $1", id)
	return err
}
