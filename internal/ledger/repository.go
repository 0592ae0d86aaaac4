package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

// Repository defines append-only storage for price history entries.
type Repository interface {
	Insert(ctx context.Context, entry domain.PriceHistoryEntry) (domain.PriceHistoryEntry, error)
	FindByPrediction(ctx context.Context, predictionID string) (domain.PriceHistoryEntry, error)
	// List returns entries newest first. A limit of zero means no limit.
	List(ctx context.Context, tokenID int64, limit int, rng domain.TimeRange) ([]domain.PriceHistoryEntry, error)
	// Scan returns every entry in range oldest first.
	Scan(ctx context.Context, tokenID int64, rng domain.TimeRange) ([]domain.PriceHistoryEntry, error)
	CountByKind(ctx context.Context, tokenID int64) (map[domain.SourceKind]int, error)
	DeleteRange(ctx context.Context, tokenID int64, rng domain.TimeRange) (int64, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL ledger repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const entryColumns = `id, token_id, price, price_usd, recorded_at, source_kind, source_name,
	model_version, prediction_id, confidence_score, factors, chain_ref, created_at`

func (r *PgRepository) Insert(ctx context.Context, e domain.PriceHistoryEntry) (domain.PriceHistoryEntry, error) {
	factors, err := json.Marshal(e.Factors)
	if err != nil {
		return domain.PriceHistoryEntry{}, fmt.Errorf("marshaling factors: %w", err)
	}
	chainRef, err := json.Marshal(e.ChainRef)
	if err != nil {
		return domain.PriceHistoryEntry{}, fmt.Errorf("marshaling chain reference: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO price_history (id, token_id, price, price_usd, recorded_at, source_kind, source_name,
		     model_version, prediction_id, confidence_score, factors, chain_ref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12::jsonb, $13)
		 RETURNING `+entryColumns,
		e.ID, e.TokenID, e.Price, e.PriceUSD, e.Timestamp, string(e.Source.Kind), e.Source.SourceName,
		e.Source.ModelVersion, nullable(e.Source.PredictionID), e.ConfidenceScore,
		json.RawMessage(factors), json.RawMessage(chainRef), e.CreatedAt)
	created, err := scanEntry(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return domain.PriceHistoryEntry{}, fmt.Errorf("ledger entry for prediction %s exists: %w", e.Source.PredictionID, domain.ErrConflict)
			case "23503":
				return domain.PriceHistoryEntry{}, fmt.Errorf("asset %d: %w", e.TokenID, domain.ErrNotFound)
			}
		}
		return domain.PriceHistoryEntry{}, fmt.Errorf("inserting ledger entry: %w", err)
	}
	return created, nil
}

func (r *PgRepository) FindByPrediction(ctx context.Context, predictionID string) (domain.PriceHistoryEntry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM price_history WHERE prediction_id = $1`, predictionID)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PriceHistoryEntry{}, fmt.Errorf("ledger entry for prediction %s: %w", predictionID, domain.ErrNotFound)
		}
		return domain.PriceHistoryEntry{}, fmt.Errorf("finding ledger entry by prediction: %w", err)
	}
	return e, nil
}

func (r *PgRepository) List(ctx context.Context, tokenID int64, limit int, rng domain.TimeRange) ([]domain.PriceHistoryEntry, error) {
	where, args := rangeFilter(tokenID, rng)
	query := `SELECT ` + entryColumns + ` FROM price_history WHERE ` + where + ` ORDER BY recorded_at DESC, created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	return r.query(ctx, query, args...)
}

func (r *PgRepository) Scan(ctx context.Context, tokenID int64, rng domain.TimeRange) ([]domain.PriceHistoryEntry, error) {
	where, args := rangeFilter(tokenID, rng)
	return r.query(ctx,
		`SELECT `+entryColumns+` FROM price_history WHERE `+where+` ORDER BY recorded_at ASC, created_at ASC`,
		args...)
}

func (r *PgRepository) CountByKind(ctx context.Context, tokenID int64) (map[domain.SourceKind]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT source_kind, COUNT(*) FROM price_history WHERE token_id = $1 GROUP BY source_kind`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("counting ledger entries by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.SourceKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scanning kind count: %w", err)
		}
		counts[domain.SourceKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating kind counts: %w", err)
	}
	return counts, nil
}

func (r *PgRepository) DeleteRange(ctx context.Context, tokenID int64, rng domain.TimeRange) (int64, error) {
	where, args := rangeFilter(tokenID, rng)
	tag, err := r.pool.Exec(ctx, `DELETE FROM price_history WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting ledger range: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) query(ctx context.Context, query string, args ...any) ([]domain.PriceHistoryEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []domain.PriceHistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger entries: %w", err)
	}
	return entries, nil
}

// rangeFilter builds the WHERE clause for a token and an optional inclusive range.
func rangeFilter(tokenID int64, rng domain.TimeRange) (string, []any) {
	conds := []string{"token_id = $1"}
	args := []any{tokenID}
	if rng.From != nil {
		args = append(args, *rng.From)
		conds = append(conds, "recorded_at >= $"+strconv.Itoa(len(args)))
	}
	if rng.To != nil {
		args = append(args, *rng.To)
		conds = append(conds, "recorded_at <= $"+strconv.Itoa(len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func scanEntry(row pgx.Row) (domain.PriceHistoryEntry, error) {
	var (
		e            domain.PriceHistoryEntry
		kind         string
		predictionID *string
		factors      []byte
		chainRef     []byte
		recordedAt   time.Time
	)
	err := row.Scan(&e.ID, &e.TokenID, &e.Price, &e.PriceUSD, &recordedAt, &kind, &e.Source.SourceName,
		&e.Source.ModelVersion, &predictionID, &e.ConfidenceScore, &factors, &chainRef, &e.CreatedAt)
	if err != nil {
		return domain.PriceHistoryEntry{}, err
	}
	e.Timestamp = recordedAt.UTC()
	e.Source.Kind = domain.SourceKind(kind)
	if predictionID != nil {
		e.Source.PredictionID = *predictionID
	}
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &e.Factors); err != nil {
			return domain.PriceHistoryEntry{}, fmt.Errorf("decoding factors: %w", err)
		}
	}
	if len(chainRef) > 0 {
		if err := json.Unmarshal(chainRef, &e.ChainRef); err != nil {
			return domain.PriceHistoryEntry{}, fmt.Errorf("decoding chain reference: %w", err)
		}
	}
	return e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
