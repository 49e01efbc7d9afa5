// Package postgres records archived chapters in a Postgres catalog table so
// external tooling can query what has been downloaded without walking the cache.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "archived_chapters"

// CatalogConfig controls the Postgres connection pool used for catalog rows.
type CatalogConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// ChapterRecord is one archived chapter.
type ChapterRecord struct {
	Book       string
	Chapter    uint16
	PageURL    string
	Contents   int
	ArchivedAt time.Time
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Catalog upserts and lists archived chapters.
type Catalog struct {
	pool  pool
	table string
}

// NewCatalog connects to Postgres using cfg.
func NewCatalog(ctx context.Context, cfg CatalogConfig) (*Catalog, error) {
	if cfg.DSN == "" {
		return nil, errors.New("catalog.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Catalog{pool: p, table: table}, nil
}

// NewCatalogWithPool constructs a catalog from an existing pool (primarily for testing).
func NewCatalogWithPool(p pool, table string) (*Catalog, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Catalog{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (c *Catalog) Close() {
	if c == nil || c.pool == nil {
		return
	}
	c.pool.Close()
}

// EnsureSchema creates the catalog table when it does not exist.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	book          TEXT        NOT NULL,
	chapter       INTEGER     NOT NULL,
	page_url      TEXT        NOT NULL,
	content_count INTEGER     NOT NULL,
	archived_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (book, chapter)
)`, c.table)
	if _, err := c.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create catalog table: %w", err)
	}
	return nil
}

// RecordChapters upserts each record keyed by (book, chapter). A re-archived
// chapter replaces its previous row, mirroring how the library overwrites
// chapters by number.
func (c *Catalog) RecordChapters(ctx context.Context, records []ChapterRecord) error {
	if c == nil || c.pool == nil {
		return errors.New("catalog is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (book, chapter, page_url, content_count, archived_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (book, chapter) DO UPDATE
SET page_url = EXCLUDED.page_url,
	content_count = EXCLUDED.content_count,
	archived_at = EXCLUDED.archived_at`, c.table)

	for _, rec := range records {
		if rec.Book == "" {
			return errors.New("record book is required")
		}
		if _, err := c.pool.Exec(ctx, query,
			rec.Book,
			int32(rec.Chapter),
			rec.PageURL,
			int32(rec.Contents),
			rec.ArchivedAt,
		); err != nil {
			return fmt.Errorf("upsert chapter %s/%d: %w", rec.Book, rec.Chapter, err)
		}
	}
	return nil
}

// ListChapters returns the catalog rows for book ordered by chapter number.
func (c *Catalog) ListChapters(ctx context.Context, book string) ([]ChapterRecord, error) {
	query := fmt.Sprintf(`
SELECT book, chapter, page_url, content_count, archived_at
FROM %s
WHERE book = $1
ORDER BY chapter`, c.table)
	rows, err := c.pool.Query(ctx, query, book)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var out []ChapterRecord
	for rows.Next() {
		var (
			rec      ChapterRecord
			chapter  int32
			contents int32
		)
		if err := rows.Scan(&rec.Book, &chapter, &rec.PageURL, &contents, &rec.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan chapter row: %w", err)
		}
		rec.Chapter = uint16(chapter)
		rec.Contents = int(contents)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chapter rows: %w", err)
	}
	return out, nil
}
