package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/kozaktomas/image-query/internal/database"
)

// ClassGraphRepository stores the image/class relationship in PostgreSQL.
type ClassGraphRepository struct {
	pool *Pool
}

// NewClassGraphRepository creates a new PostgreSQL class graph repository
func NewClassGraphRepository(pool *Pool) *ClassGraphRepository {
	return &ClassGraphRepository{pool: pool}
}

// ResolveCandidates returns the images linked to every one of classes.
// A dedicated connection is held for the duration of the query.
func (r *ClassGraphRepository) ResolveCandidates(ctx context.Context, classes []string) ([]string, error) {
	classes = database.UniqueClasses(classes)
	if len(classes) == 0 {
		return nil, nil
	}

	conn, err := r.pool.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := `
		SELECT image_id
		FROM image_classes
		WHERE class_name = ANY($1)
		GROUP BY image_id
		HAVING COUNT(DISTINCT class_name) = $2
		ORDER BY image_id
	`
	rows, err := conn.QueryContext(ctx, query, pq.Array(classes), len(classes))
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return ids, nil
}

// ClassesOf returns the classes linked to an image
func (r *ClassGraphRepository) ClassesOf(ctx context.Context, imageID string) ([]string, error) {
	rows, err := r.pool.DB().QueryContext(ctx,
		"SELECT class_name FROM image_classes WHERE image_id = $1 ORDER BY class_name", imageID)
	if err != nil {
		return nil, fmt.Errorf("query image classes: %w", err)
	}
	defer rows.Close()

	var classes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classes: %w", err)
	}
	return classes, nil
}

// Stats returns image, class and link counts
func (r *ClassGraphRepository) Stats(ctx context.Context) (database.GraphStats, error) {
	var s database.GraphStats
	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM images),
			(SELECT COUNT(*) FROM classes),
			(SELECT COUNT(*) FROM image_classes)
	`).Scan(&s.Images, &s.Classes, &s.Links)
	if err != nil {
		return s, fmt.Errorf("query graph stats: %w", err)
	}
	return s, nil
}

// SaveImageClasses replaces the classes linked to an image
func (r *ClassGraphRepository) SaveImageClasses(ctx context.Context, imageID string, classes []string) error {
	classes = database.UniqueClasses(classes)

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO images (image_id) VALUES ($1) ON CONFLICT (image_id) DO NOTHING", imageID); err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM image_classes WHERE image_id = $1", imageID); err != nil {
		return fmt.Errorf("delete image classes: %w", err)
	}
	if len(classes) > 0 {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO classes (class_name) SELECT unnest($1::text[]) ON CONFLICT (class_name) DO NOTHING",
			pq.Array(classes)); err != nil {
			return fmt.Errorf("insert classes: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO image_classes (image_id, class_name) SELECT $1, unnest($2::text[])",
			imageID, pq.Array(classes)); err != nil {
			return fmt.Errorf("insert image classes: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit image classes: %w", err)
	}
	return nil
}
