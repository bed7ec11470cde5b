package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

const queryTimeout = 5 * time.Second

// PostgresCatalog stores catalog entries one row per slug. It is the
// multi-instance alternative to the JSON file.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

func NewPostgresCatalog(ctx context.Context, dsn string) (*PostgresCatalog, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &PostgresCatalog{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return s, nil
}

func (s *PostgresCatalog) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func buildPostgresDSNFromEnv() string {
	env := func(name, def string) string {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
		return def
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(env("POSTGRES_USER", "pdf_bot"), os.Getenv("POSTGRES_PASSWORD")),
		Host:     env("POSTGRES_HOST", "localhost") + ":" + env("POSTGRES_PORT", "5432"),
		Path:     "/" + env("POSTGRES_DB", "pdf_bot"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (s *PostgresCatalog) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

const entryColumns = `slug, file_id, title, uploader_id, entry_type, created_at`

func scanEntry(row pgx.Row) (types.CatalogEntry, error) {
	var e types.CatalogEntry
	err := row.Scan(&e.Slug, &e.FileID, &e.Title, &e.UploaderID, &e.Type, &e.CreatedAt)
	return e, err
}

func collectEntries(rows pgx.Rows) ([]types.CatalogEntry, error) {
	defer rows.Close()
	out := make([]types.CatalogEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresCatalog) Insert(ctx context.Context, e types.CatalogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
INSERT INTO catalog_entries (`+entryColumns+`)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (slug) DO NOTHING
`, e.Slug, e.FileID, e.Title, e.UploaderID, e.Type, e.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.ErrSlugTaken
	}
	return nil
}

func (s *PostgresCatalog) Get(ctx context.Context, slug string) (types.CatalogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	e, err := scanEntry(s.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM catalog_entries WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.CatalogEntry{}, types.ErrNotFound
	}
	return e, err
}

func (s *PostgresCatalog) Find(ctx context.Context, query string, limit int) ([]types.CatalogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT `+entryColumns+`
FROM catalog_entries
WHERE strpos(lower(slug), lower($1)) > 0 OR strpos(lower(title), lower($1)) > 0
ORDER BY created_at DESC, slug
LIMIT $2
`, query, limit)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (s *PostgresCatalog) Recent(ctx context.Context, uploaderID int64, limit int) ([]types.CatalogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT `+entryColumns+`
FROM catalog_entries
WHERE $1::bigint = 0 OR uploader_id = $1
ORDER BY created_at DESC, slug
LIMIT $2
`, uploaderID, limit)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (s *PostgresCatalog) UpdateTitle(ctx context.Context, slug, title string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `UPDATE catalog_entries SET title = $2 WHERE slug = $1`, slug, title)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *PostgresCatalog) Delete(ctx context.Context, slug string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `DELETE FROM catalog_entries WHERE slug = $1`, slug)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *PostgresCatalog) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
