package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

// Resolution is the terminal outcome written to a pending prediction.
type Resolution struct {
	Status          domain.PredictionStatus
	RejectionReason string
	ChainRef        *domain.ChainRef
	ResolvedAt      time.Time
}

// Repository defines persistent storage for predictions.
type Repository interface {
	Create(ctx context.Context, p domain.Prediction) (domain.Prediction, error)
	Get(ctx context.Context, id string) (domain.Prediction, error)
	// ListByToken returns predictions newest first. A nil status matches all.
	ListByToken(ctx context.Context, tokenID int64, limit int, status *domain.PredictionStatus) ([]domain.Prediction, error)
	ListRange(ctx context.Context, rng domain.TimeRange) ([]domain.Prediction, error)
	// Resolve moves a pending prediction to a terminal status. It fails with
	// ErrInvalidState when the prediction is no longer pending.
	Resolve(ctx context.Context, id string, res Resolution) (domain.Prediction, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL prediction repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const predictionColumns = `id, token_id, submitted_at, predicted_price, confidence_score, sources_used,
	model_version, inputs, feature_importance, performance_metrics, status, rejection_reason,
	chain_ref, resolved_at`

func (r *PgRepository) Create(ctx context.Context, p domain.Prediction) (domain.Prediction, error) {
	features, err := json.Marshal(p.FeatureImportance)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("marshaling feature importance: %w", err)
	}
	perf, err := json.Marshal(p.PerformanceMetrics)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("marshaling performance metrics: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO predictions (id, token_id, submitted_at, predicted_price, confidence_score, sources_used,
		     model_version, inputs, feature_importance, performance_metrics, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10::jsonb, $11)
		 RETURNING `+predictionColumns,
		p.ID, p.TokenID, p.Timestamp, p.PredictedPrice, p.ConfidenceScore, p.SourcesUsed,
		p.ModelVersion, nullableJSON(p.Inputs), json.RawMessage(features), json.RawMessage(perf), string(p.Status))
	created, err := scanPrediction(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.Prediction{}, fmt.Errorf("asset %d: %w", p.TokenID, domain.ErrNotFound)
		}
		return domain.Prediction{}, fmt.Errorf("creating prediction: %w", err)
	}
	return created, nil
}

func (r *PgRepository) Get(ctx context.Context, id string) (domain.Prediction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = $1`, id)
	p, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Prediction{}, fmt.Errorf("prediction %s: %w", id, domain.ErrNotFound)
		}
		return domain.Prediction{}, fmt.Errorf("getting prediction %s: %w", id, err)
	}
	return p, nil
}

func (r *PgRepository) ListByToken(ctx context.Context, tokenID int64, limit int, status *domain.PredictionStatus) ([]domain.Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE token_id = $1`
	args := []any{tokenID}
	if status != nil {
		args = append(args, string(*status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	query += ` ORDER BY submitted_at DESC LIMIT $` + strconv.Itoa(len(args))
	return r.query(ctx, query, args...)
}

func (r *PgRepository) ListRange(ctx context.Context, rng domain.TimeRange) ([]domain.Prediction, error) {
	return r.query(ctx,
		`SELECT `+predictionColumns+` FROM predictions
		 WHERE ($1::timestamptz IS NULL OR submitted_at >= $1)
		   AND ($2::timestamptz IS NULL OR submitted_at <= $2)
		 ORDER BY submitted_at`,
		rng.From, rng.To)
}

func (r *PgRepository) Resolve(ctx context.Context, id string, res Resolution) (domain.Prediction, error) {
	chainRef, err := json.Marshal(res.ChainRef)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("marshaling chain reference: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE predictions
		 SET status = $2, rejection_reason = $3, chain_ref = $4::jsonb, resolved_at = $5
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+predictionColumns,
		id, string(res.Status), res.RejectionReason, json.RawMessage(chainRef), res.ResolvedAt)
	p, err := scanPrediction(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Prediction{}, fmt.Errorf("resolving prediction %s: %w", id, err)
	}

	// No pending row matched: either the id is unknown or it is already terminal.
	current, err := r.Get(ctx, id)
	if err != nil {
		return domain.Prediction{}, err
	}
	return domain.Prediction{}, fmt.Errorf("prediction %s is %s: %w", id, current.Status, domain.ErrInvalidState)
}

func (r *PgRepository) query(ctx context.Context, query string, args ...any) ([]domain.Prediction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying predictions: %w", err)
	}
	defer rows.Close()

	var out []domain.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating predictions: %w", err)
	}
	return out, nil
}

func scanPrediction(row pgx.Row) (domain.Prediction, error) {
	var (
		p        domain.Prediction
		status   string
		inputs   []byte
		features []byte
		perf     []byte
		chainRef []byte
	)
	err := row.Scan(&p.ID, &p.TokenID, &p.Timestamp, &p.PredictedPrice, &p.ConfidenceScore, &p.SourcesUsed,
		&p.ModelVersion, &inputs, &features, &perf, &status, &p.RejectionReason, &chainRef, &p.ResolvedAt)
	if err != nil {
		return domain.Prediction{}, err
	}
	p.Timestamp = p.Timestamp.UTC()
	p.Status = domain.PredictionStatus(status)
	if len(inputs) > 0 {
		p.Inputs = json.RawMessage(inputs)
	}
	if err := unmarshalOptional(features, &p.FeatureImportance); err != nil {
		return domain.Prediction{}, fmt.Errorf("decoding feature importance: %w", err)
	}
	if err := unmarshalOptional(perf, &p.PerformanceMetrics); err != nil {
		return domain.Prediction{}, fmt.Errorf("decoding performance metrics: %w", err)
	}
	if err := unmarshalOptional(chainRef, &p.ChainRef); err != nil {
		return domain.Prediction{}, fmt.Errorf("decoding chain reference: %w", err)
	}
	return p, nil
}

func unmarshalOptional(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
