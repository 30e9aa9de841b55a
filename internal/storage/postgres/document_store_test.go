package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/story-crawler/internal/store"
)

func newMockStore(t *testing.T) (*DocumentStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewDocumentStoreWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

func TestFindBuildsFilteredQuery(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM chapters WHERE story_id = $1 ORDER BY number DESC LIMIT 1")).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "number"}).AddRow(int64(3), int64(12)))

	rows, err := s.Find(context.Background(), "chapters",
		store.Where(store.Eq("story_id", int64(7))),
		store.FindOptions{OrderBy: "number", Desc: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(12), rows[0]["number"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReturnsStoredRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO categories (name, slug) VALUES ($1, $2) RETURNING *")).
		WithArgs("Tiên Hiệp", "tien-hiep").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "slug"}).AddRow(int64(5), "Tiên Hiệp", "tien-hiep"))

	row, err := s.Insert(context.Background(), "categories", store.Row{"slug": "tien-hiep", "name": "Tiên Hiệp"})
	require.NoError(t, err)
	require.Equal(t, int64(5), row["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateNumbersWherePlaceholdersAfterSet(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"UPDATE stories SET chapters_count = $1, latest_chapter = $2 WHERE id = $3 RETURNING *")).
		WithArgs(int64(4), "Chương 4", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "chapters_count"}).AddRow(int64(1), int64(4)))

	set := store.Row{"chapters_count": int64(4), "latest_chapter": "Chương 4", "id": int64(99)}
	rows, err := s.Update(context.Background(), "stories", store.Where(store.Eq("id", int64(1))), set)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Contains(t, set, "id", "caller's row must not be mutated")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAndCount(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	filter := store.Where(store.Eq("story_id", int64(1)), store.Eq("number", int64(5)), store.Neq("id", int64(9)))

	mock.ExpectExec(regexp.QuoteMeta(
		"DELETE FROM chapters WHERE story_id = $1 AND number = $2 AND id <> $3")).
		WithArgs(int64(1), int64(5), int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM chapters WHERE story_id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))

	require.NoError(t, s.Delete(context.Background(), "chapters", filter))
	n, err := s.Count(context.Background(), "chapters", store.Where(store.Eq("story_id", int64(1))))
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildWhereOrGroupAndFolds(t *testing.T) {
	t.Parallel()

	filter := store.Where(store.ContainsFold("slug", "tien_")).
		Or(store.Eq("slug", "tien-hiep"), store.EqualFold("name", "Tiên Hiệp"))
	where, args, err := buildWhere(filter, 1)
	require.NoError(t, err)
	require.Equal(t, " WHERE slug ILIKE $1 AND (slug = $2 OR lower(name) = lower($3))", where)
	require.Equal(t, []any{`%tien\_%`, "tien-hiep", "Tiên Hiệp"}, args)
}

func TestRejectsUnsafeIdentifiers(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	_, err := s.Find(context.Background(), "stories; drop table stories", store.Filter{}, store.FindOptions{})
	require.Error(t, err)
	_, err = s.Insert(context.Background(), "stories", store.Row{"name)": "x"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgx5DSN(t *testing.T) {
	t.Parallel()

	require.Equal(t, "pgx5://u:p@h/db", pgx5DSN("postgres://u:p@h/db"))
	require.Equal(t, "pgx5://u:p@h/db", pgx5DSN("postgresql://u:p@h/db"))
	require.Equal(t, "pgx5://u:p@h/db", pgx5DSN("pgx5://u:p@h/db"))
}
