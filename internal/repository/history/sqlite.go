package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/007jayesh/parsesaas-go/internal/apperror"
	domain "github.com/007jayesh/parsesaas-go/internal/history"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, c *domain.Conversion) error {
	const query = `INSERT INTO conversions (file_name, formats, mode, transport, status)
		VALUES (?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		c.FileName, c.Formats, c.Mode, c.Transport, string(c.Status),
	)
	if err != nil {
		return fmt.Errorf("create conversion: %w", err)
	}

	c.ID, _ = res.LastInsertId()
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	return nil
}

func (r *Repository) Update(ctx context.Context, c *domain.Conversion) error {
	const query = `UPDATE conversions SET status = ?, conversion_id = ?, pages = ?,
		credits_used = ?, duration = ?, error = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query,
		string(c.Status), c.ConversionID, c.Pages, c.CreditsUsed, c.Duration, c.Error, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update conversion: %w", err)
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Conversion, error) {
	const query = `SELECT id, file_name, formats, mode, transport, status,
		conversion_id, pages, credits_used, duration, error, created_at, updated_at
		FROM conversions WHERE id = ?`

	c, err := scanConversion(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.NotFound, "conversion not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get conversion: %w", err)
	}
	return c, nil
}

func (r *Repository) List(ctx context.Context, status string, limit int) ([]domain.Conversion, error) {
	query := `SELECT id, file_name, formats, mode, transport, status,
		conversion_id, pages, credits_used, duration, error, created_at, updated_at
		FROM conversions WHERE 1=1`

	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conversions []domain.Conversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		conversions = append(conversions, *c)
	}

	return conversions, rows.Err()
}

func (r *Repository) RecoverInterrupted(ctx context.Context) (int64, error) {
	const query = `UPDATE conversions SET status = 'failed', error = 'interrupted',
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE status = 'running'`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted conversions: %w", err)
	}

	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversion(row rowScanner) (*domain.Conversion, error) {
	c := &domain.Conversion{}
	var status, createdStr, updatedStr string
	var conversionID, dbErr sql.NullString

	err := row.Scan(
		&c.ID, &c.FileName, &c.Formats, &c.Mode, &c.Transport,
		&status, &conversionID, &c.Pages, &c.CreditsUsed, &c.Duration,
		&dbErr, &createdStr, &updatedStr,
	)
	if err != nil {
		return nil, err
	}

	c.Status = domain.Status(status)
	if conversionID.Valid {
		c.ConversionID = conversionID.String
	}
	if dbErr.Valid {
		c.Error = dbErr.String
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return c, nil
}
