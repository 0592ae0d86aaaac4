package valuation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

// Repository defines persistent storage for asset valuations.
// Each method is a single-record write or read.
type Repository interface {
	Create(ctx context.Context, asset domain.Asset) (domain.Asset, error)
	Get(ctx context.Context, tokenID int64) (domain.Asset, error)
	UpdateValuation(ctx context.Context, tokenID int64, v domain.Valuation) (domain.Asset, error)
	ListTokenIDs(ctx context.Context) ([]int64, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL valuation repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const assetColumns = `token_id, value, value_usd, price_updated_at, confidence_score, is_listed, created_at`

func (r *PgRepository) Create(ctx context.Context, asset domain.Asset) (domain.Asset, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO assets (token_id, value, value_usd, price_updated_at, confidence_score, is_listed)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+assetColumns,
		asset.TokenID, asset.CurrentPrice.Value, asset.CurrentPrice.ValueUSD,
		asset.CurrentPrice.UpdatedAt, asset.CurrentPrice.ConfidenceScore, asset.IsListed)
	created, err := scanAsset(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Asset{}, fmt.Errorf("asset %d already exists: %w", asset.TokenID, domain.ErrConflict)
		}
		return domain.Asset{}, fmt.Errorf("creating asset %d: %w", asset.TokenID, err)
	}
	return created, nil
}

func (r *PgRepository) Get(ctx context.Context, tokenID int64) (domain.Asset, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE token_id = $1`, tokenID)
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Asset{}, fmt.Errorf("asset %d: %w", tokenID, domain.ErrNotFound)
		}
		return domain.Asset{}, fmt.Errorf("getting asset %d: %w", tokenID, err)
	}
	return a, nil
}

func (r *PgRepository) UpdateValuation(ctx context.Context, tokenID int64, v domain.Valuation) (domain.Asset, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE assets
		 SET value = $2, value_usd = $3, price_updated_at = $4, confidence_score = $5
		 WHERE token_id = $1
		 RETURNING `+assetColumns,
		tokenID, v.Value, v.ValueUSD, v.UpdatedAt, v.ConfidenceScore)
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Asset{}, fmt.Errorf("asset %d: %w", tokenID, domain.ErrNotFound)
		}
		return domain.Asset{}, fmt.Errorf("updating valuation for asset %d: %w", tokenID, err)
	}
	return a, nil
}

func (r *PgRepository) ListTokenIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT token_id FROM assets ORDER BY token_id`)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scanning asset ids: %w", err)
	}
	return ids, nil
}

func scanAsset(row pgx.Row) (domain.Asset, error) {
	var a domain.Asset
	err := row.Scan(&a.TokenID, &a.CurrentPrice.Value, &a.CurrentPrice.ValueUSD,
		&a.CurrentPrice.UpdatedAt, &a.CurrentPrice.ConfidenceScore, &a.IsListed, &a.CreatedAt)
	return a, err
}
