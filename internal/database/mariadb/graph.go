package mariadb

import (
	"context"
	"fmt"
	"strings"

	"github.com/kozaktomas/image-query/internal/database"
)

// ResolveCandidates returns the images linked to every one of classes.
// A dedicated connection is held for the duration of the query.
func (p *Pool) ResolveCandidates(ctx context.Context, classes []string) ([]string, error) {
	classes = database.UniqueClasses(classes)
	if len(classes) == 0 {
		return nil, nil
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(classes)), ",")
	query := `SELECT image_id FROM image_classes
		WHERE class_name IN (` + placeholders + `)
		GROUP BY image_id
		HAVING COUNT(DISTINCT class_name) = ?
		ORDER BY image_id`

	args := make([]any, 0, len(classes)+1)
	for _, c := range classes {
		args = append(args, c)
	}
	args = append(args, len(classes))

	rows, err := conn.QueryContext(ctx, query, args...)
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
func (p *Pool) ClassesOf(ctx context.Context, imageID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT class_name FROM image_classes WHERE image_id = ? ORDER BY class_name`, imageID)
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
func (p *Pool) Stats(ctx context.Context) (database.GraphStats, error) {
	var s database.GraphStats
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT image_id), COUNT(DISTINCT class_name), COUNT(*)
		FROM image_classes
	`).Scan(&s.Images, &s.Classes, &s.Links)
	if err != nil {
		return s, fmt.Errorf("query graph stats: %w", err)
	}
	return s, nil
}

// SaveImageClasses replaces the classes linked to an image
func (p *Pool) SaveImageClasses(ctx context.Context, imageID string, classes []string) error {
	classes = database.UniqueClasses(classes)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM image_classes WHERE image_id = ?`, imageID); err != nil {
		return fmt.Errorf("delete image classes: %w", err)
	}
	for _, c := range classes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO image_classes (image_id, class_name) VALUES (?, ?)`, imageID, c); err != nil {
			return fmt.Errorf("insert image class: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit image classes: %w", err)
	}
	return nil
}
