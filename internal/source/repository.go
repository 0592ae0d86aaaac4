package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

// Repository defines persistent storage for data sources.
type Repository interface {
	Create(ctx context.Context, ds domain.DataSource) (domain.DataSource, error)
	Get(ctx context.Context, id string) (domain.DataSource, error)
	List(ctx context.Context) ([]domain.DataSource, error)
	// Mutate applies fn to the stored source and persists the result
	// atomically. A name collision yields ErrConflict.
	Mutate(ctx context.Context, id string, fn func(*domain.DataSource) error) (domain.DataSource, error)
	Delete(ctx context.Context, id string) error
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL data source repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const sourceColumns = `id, name, kind, config, enabled, last_fetch_at, next_fetch_at, error_count,
	last_error, reliability, latency_ms, price_accuracy, weighting, created_at, updated_at`

func (r *PgRepository) Create(ctx context.Context, ds domain.DataSource) (domain.DataSource, error) {
	config, err := json.Marshal(ds.Config)
	if err != nil {
		return domain.DataSource{}, fmt.Errorf("marshaling source config: %w", err)
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO data_sources (id, name, kind, config, enabled, error_count, last_error,
		     reliability, latency_ms, price_accuracy, weighting, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+sourceColumns,
		ds.ID, ds.Name, string(ds.Kind), json.RawMessage(config), ds.Enabled, ds.ErrorCount, ds.LastError,
		ds.Reliability, ds.LatencyMs, ds.PriceAccuracy, ds.Weighting, ds.CreatedAt, ds.UpdatedAt)
	created, err := scanSource(row)
	if err != nil {
		return domain.DataSource{}, translateWriteError(ds.Name, err)
	}
	return created, nil
}

func (r *PgRepository) Get(ctx context.Context, id string) (domain.DataSource, error) {
	return getSource(ctx, r.pool, id, "")
}

func (r *PgRepository) List(ctx context.Context) ([]domain.DataSource, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sourceColumns+` FROM data_sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing data sources: %w", err)
	}
	defer rows.Close()

	var out []domain.DataSource
	for rows.Next() {
		ds, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning data source: %w", err)
		}
		out = append(out, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating data sources: %w", err)
	}
	return out, nil
}

func (r *PgRepository) Mutate(ctx context.Context, id string, fn func(*domain.DataSource) error) (domain.DataSource, error) {
	var updated domain.DataSource
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		ds, err := getSource(ctx, tx, id, " FOR UPDATE")
		if err != nil {
			return err
		}
		if err := fn(&ds); err != nil {
			return err
		}
		config, err := json.Marshal(ds.Config)
		if err != nil {
			return fmt.Errorf("marshaling source config: %w", err)
		}
		row := tx.QueryRow(ctx,
			`UPDATE data_sources
			 SET name = $2, kind = $3, config = $4::jsonb, enabled = $5, last_fetch_at = $6,
			     next_fetch_at = $7, error_count = $8, last_error = $9, reliability = $10,
			     latency_ms = $11, price_accuracy = $12, weighting = $13, updated_at = $14
			 WHERE id = $1
			 RETURNING `+sourceColumns,
			id, ds.Name, string(ds.Kind), json.RawMessage(config), ds.Enabled, ds.LastFetchAt,
			ds.NextFetchAt, ds.ErrorCount, ds.LastError, ds.Reliability,
			ds.LatencyMs, ds.PriceAccuracy, ds.Weighting, ds.UpdatedAt)
		updated, err = scanSource(row)
		if err != nil {
			return translateWriteError(ds.Name, err)
		}
		return nil
	})
	if err != nil {
		return domain.DataSource{}, err
	}
	return updated, nil
}

func (r *PgRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM data_sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting data source %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("data source %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getSource(ctx context.Context, q querier, id, suffix string) (domain.DataSource, error) {
	row := q.QueryRow(ctx, `SELECT `+sourceColumns+` FROM data_sources WHERE id = $1`+suffix, id)
	ds, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DataSource{}, fmt.Errorf("data source %s: %w", id, domain.ErrNotFound)
		}
		return domain.DataSource{}, fmt.Errorf("getting data source %s: %w", id, err)
	}
	return ds, nil
}

func translateWriteError(name string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("data source name %q is taken: %w", name, domain.ErrConflict)
	}
	return fmt.Errorf("writing data source %q: %w", name, err)
}

func scanSource(row pgx.Row) (domain.DataSource, error) {
	var (
		ds     domain.DataSource
		kind   string
		config []byte
	)
	err := row.Scan(&ds.ID, &ds.Name, &kind, &config, &ds.Enabled, &ds.LastFetchAt, &ds.NextFetchAt,
		&ds.ErrorCount, &ds.LastError, &ds.Reliability, &ds.LatencyMs, &ds.PriceAccuracy, &ds.Weighting,
		&ds.CreatedAt, &ds.UpdatedAt)
	if err != nil {
		return domain.DataSource{}, err
	}
	ds.Kind = domain.DataSourceKind(kind)
	if len(config) > 0 {
		if err := json.Unmarshal(config, &ds.Config); err != nil {
			return domain.DataSource{}, fmt.Errorf("decoding source config: %w", err)
		}
	}
	return ds, nil
}
