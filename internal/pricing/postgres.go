package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cencori/internal/core"
)

// PostgresResolver reads prices from the model_pricing table.
type PostgresResolver struct {
	pool          *pgxpool.Pool
	defaultMarkup float64
}

// NewPostgresResolver wraps pool. Rows with a NULL markup use defaultMarkup.
func NewPostgresResolver(pool *pgxpool.Pool, defaultMarkup float64) *PostgresResolver {
	return &PostgresResolver{pool: pool, defaultMarkup: defaultMarkup}
}

// EnsureSchema creates model_pricing when it does not exist.
func (r *PostgresResolver) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS model_pricing (
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			input_per_1k DOUBLE PRECISION NOT NULL DEFAULT 0,
			output_per_1k DOUBLE PRECISION NOT NULL DEFAULT 0,
			markup_percentage DOUBLE PRECISION,
			PRIMARY KEY (provider, model)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create model_pricing table: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a price.
func (r *PostgresResolver) Upsert(ctx context.Context, e Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO model_pricing (provider, model, input_per_1k, output_per_1k, markup_percentage)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, model) DO UPDATE SET
			input_per_1k = EXCLUDED.input_per_1k,
			output_per_1k = EXCLUDED.output_per_1k,
			markup_percentage = EXCLUDED.markup_percentage
	`, e.Provider, e.Model, e.InputPer1K, e.OutputPer1K, e.MarkupPercentage)
	if err != nil {
		return fmt.Errorf("failed to upsert pricing for %s/%s: %w", e.Provider, e.Model, err)
	}
	return nil
}

func (r *PostgresResolver) Resolve(ctx context.Context, provider, model string) (core.ModelPricing, error) {
	var (
		input, output float64
		markup        *float64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT input_per_1k, output_per_1k, markup_percentage
		FROM model_pricing
		WHERE provider = $1 AND model = $2
	`, provider, model).Scan(&input, &output, &markup)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.ZeroPricing, ErrPricingNotFound
		}
		return core.ZeroPricing, fmt.Errorf("failed to query pricing for %s/%s: %w", provider, model, err)
	}

	p := core.ModelPricing{
		InputPer1KTokens:        input,
		OutputPer1KTokens:       output,
		CencoriMarkupPercentage: r.defaultMarkup,
	}
	if markup != nil {
		p.CencoriMarkupPercentage = *markup
	}
	return p, nil
}
