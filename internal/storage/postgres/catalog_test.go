package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestRecordChaptersUpsertsRows(t *testing.T) {
	t.Parallel()

	// Arrange
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	catalog, err := NewCatalogWithPool(mock, "chapters")
	require.NoError(t, err)
	now := time.Unix(1700000000, 0).UTC()
	records := []ChapterRecord{
		{Book: "Solo Leveling", Chapter: 45, PageURL: "https://readmanganato.com/manga-abc123/chapter-45", Contents: 18, ArchivedAt: now},
		{Book: "Solo Leveling", Chapter: 46, PageURL: "https://readmanganato.com/manga-abc123/chapter-46", Contents: 20, ArchivedAt: now},
	}
	for _, rec := range records {
		mock.ExpectExec("INSERT INTO chapters").
			WithArgs(rec.Book, int32(rec.Chapter), rec.PageURL, int32(rec.Contents), rec.ArchivedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	// Act
	err = catalog.RecordChapters(context.Background(), records)

	// Assert
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordChaptersWrapsExecErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	catalog, err := NewCatalogWithPool(mock, "")
	require.NoError(t, err)
	archived := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO archived_chapters").
		WithArgs("b", int32(1), "u", int32(0), archived).
		WillReturnError(errors.New("boom"))

	err = catalog.RecordChapters(context.Background(), []ChapterRecord{{Book: "b", Chapter: 1, PageURL: "u", ArchivedAt: archived}})

	require.ErrorContains(t, err, "upsert chapter b/1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordChaptersRequiresBook(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	catalog, err := NewCatalogWithPool(mock, "")
	require.NoError(t, err)

	err = catalog.RecordChapters(context.Background(), []ChapterRecord{{Chapter: 1}})

	require.ErrorContains(t, err, "book is required")
}

func TestListChaptersScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	catalog, err := NewCatalogWithPool(mock, "")
	require.NoError(t, err)
	now := time.Unix(1700000000, 0).UTC()
	rows := mock.NewRows([]string{"book", "chapter", "page_url", "content_count", "archived_at"}).
		AddRow("b", int32(1), "https://a.com/1", int32(3), now).
		AddRow("b", int32(2), "https://a.com/2", int32(4), now)
	mock.ExpectQuery("SELECT book, chapter").WithArgs("b").WillReturnRows(rows)

	got, err := catalog.ListChapters(context.Background(), "b")

	require.NoError(t, err)
	require.Equal(t, []ChapterRecord{
		{Book: "b", Chapter: 1, PageURL: "https://a.com/1", Contents: 3, ArchivedAt: now},
		{Book: "b", Chapter: 2, PageURL: "https://a.com/2", Contents: 4, ArchivedAt: now},
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	catalog, err := NewCatalogWithPool(mock, "")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS archived_chapters").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, catalog.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewCatalogValidation(t *testing.T) {
	t.Parallel()

	_, err := NewCatalog(context.Background(), CatalogConfig{})
	require.ErrorContains(t, err, "dsn is required")

	_, err = NewCatalog(context.Background(), CatalogConfig{DSN: "postgres://x", Table: "bad;drop"})
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewCatalogWithPool(nil, "")
	require.ErrorContains(t, err, "pool is required")
}
