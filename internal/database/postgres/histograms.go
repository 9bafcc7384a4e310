package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/image-query/internal/database"
)

// HistogramRepository stores dataset histograms as pgvector vectors.
type HistogramRepository struct {
	pool *Pool
}

// NewHistogramRepository creates a new PostgreSQL histogram repository
func NewHistogramRepository(pool *Pool) *HistogramRepository {
	return &HistogramRepository{pool: pool}
}

// GetHistogram retrieves a histogram by image ID, returns nil if not found
func (r *HistogramRepository) GetHistogram(ctx context.Context, imageID string) (*database.HistogramRecord, error) {
	query := `
		SELECT image_id, histogram, bins, created_at
		FROM histograms
		WHERE image_id = $1
	`

	var rec database.HistogramRecord
	var vec pgvector.Vector

	err := r.pool.DB().QueryRowContext(ctx, query, imageID).Scan(
		&rec.ImageID,
		&vec,
		&rec.Bins,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query histogram: %w", err)
	}

	rec.Histogram = vec.Slice()
	return &rec, nil
}

// CountHistograms returns the total number of histograms stored
func (r *HistogramRepository) CountHistograms(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM histograms").Scan(&count); err != nil {
		return 0, fmt.Errorf("count histograms: %w", err)
	}
	return count, nil
}

// FindSimilar returns stored images ordered by cosine distance to the query
func (r *HistogramRepository) FindSimilar(ctx context.Context, histogram []float32, limit int) ([]database.SimilarImage, error) {
	query := `
		SELECT image_id, histogram <=> $1::vector AS distance
		FROM histograms
		ORDER BY distance, image_id
		LIMIT $2
	`

	rows, err := r.pool.DB().QueryContext(ctx, query, pgvector.NewVector(histogram), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar histograms: %w", err)
	}
	defer rows.Close()

	var results []database.SimilarImage
	for rows.Next() {
		var id string
		var dist float64
		if err := rows.Scan(&id, &dist); err != nil {
			return nil, fmt.Errorf("scan similar histogram: %w", err)
		}
		// Zero-norm histograms have no defined distance.
		if math.IsNaN(dist) {
			continue
		}
		results = append(results, database.SimilarImage{ImageID: id, Similarity: 1 - dist})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar histograms: %w", err)
	}
	return results, nil
}

// SaveHistogram inserts or replaces the histogram of an image
func (r *HistogramRepository) SaveHistogram(ctx context.Context, rec database.HistogramRecord) error {
	if rec.Bins <= 0 || len(rec.Histogram) != 3*rec.Bins {
		return fmt.Errorf("histogram of %s has %d values for %d bins", rec.ImageID, len(rec.Histogram), rec.Bins)
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO images (image_id) VALUES ($1) ON CONFLICT (image_id) DO NOTHING", rec.ImageID); err != nil {
		return fmt.Errorf("insert image: %w", err)
	}

	query := `
		INSERT INTO histograms (image_id, bins, histogram)
		VALUES ($1, $2, $3)
		ON CONFLICT (image_id) DO UPDATE SET
			bins = EXCLUDED.bins,
			histogram = EXCLUDED.histogram,
			created_at = NOW()
	`
	if _, err := tx.ExecContext(ctx, query, rec.ImageID, rec.Bins, pgvector.NewVector(rec.Histogram)); err != nil {
		return fmt.Errorf("insert histogram: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit histogram: %w", err)
	}
	return nil
}
