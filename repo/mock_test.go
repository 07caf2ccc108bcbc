package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/blogstore/db"
	"github.com/Skryldev/blogstore/models"
	"github.com/Skryldev/blogstore/repo"
)

func setupMockDB(t *testing.T, driver string) (*db.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	return db.New(sqldb, db.Config{DriverName: driver}), mock
}

func TestMock_FindByID_TwoStatementsInOrder(t *testing.T) {
	d, mock := setupMockDB(t, "postgres")
	users := repo.NewUserRepo(d)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM   users`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "Alice"))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM   comments`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "user_id", "post_id"}).
			AddRow(1, "first", 7, 3).
			AddRow(2, "second", 7, 4))

	u, ok, err := users.FindByID(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, []models.Comment{
		{ID: 1, Text: "first", UserID: 7, PostID: 3},
		{ID: 2, Text: "second", UserID: 7, PostID: 4},
	}, u.Comments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_FindByID_MissingSkipsCommentQuery(t *testing.T) {
	d, mock := setupMockDB(t, "postgres")
	users := repo.NewUserRepo(d)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM   users`)).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	_, ok, err := users.FindByID(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_FindByID_ConsistentReadsUseTransaction(t *testing.T) {
	d, mock := setupMockDB(t, "postgres")
	users := repo.NewUserRepo(d, repo.Options{ConsistentReads: true})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM   users`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "Alice"))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM   comments`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "user_id", "post_id"}))
	mock.ExpectCommit()

	u, ok, err := users.FindByID(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, u.Comments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_Save_ConnectionFailure(t *testing.T) {
	d, mock := setupMockDB(t, "postgres")
	users := repo.NewUserRepo(d)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs("Alice").
		WillReturnError(sql.ErrConnDone)

	u := &models.User{Name: "Alice"}
	_, err := users.Save(context.Background(), u)
	require.Error(t, err)
	assert.True(t, repo.IsPersistenceError(err))
	assert.True(t, db.IsConnectionFailed(err))
	assert.Zero(t, u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_Save_MySQLUsesLastInsertID(t *testing.T) {
	d, mock := setupMockDB(t, "mysql")
	users := repo.NewUserRepo(d)

	mock.ExpectExec(regexp.QuoteMeta(`VALUES (?)`)).
		WithArgs("Alice").
		WillReturnResult(sqlmock.NewResult(42, 1))

	u, err := users.Save(context.Background(), &models.User{Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_Update_MySQLUnchangedRowIsNotMissing(t *testing.T) {
	d, mock := setupMockDB(t, "mysql")
	users := repo.NewUserRepo(d)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users`)).
		WithArgs("Alice", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, users.Update(context.Background(), &models.User{ID: 3, Name: "Alice"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_SaveAll_RollsBackOnFailure(t *testing.T) {
	d, mock := setupMockDB(t, "postgres")
	users := repo.NewUserRepo(d)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO users`))
	prep.ExpectQuery().WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	prep.ExpectQuery().WithArgs("b").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_name_key"})
	mock.ExpectRollback()

	batch := []*models.User{{Name: "a"}, {Name: "b"}}
	_, err := users.SaveAll(context.Background(), batch)
	require.Error(t, err)
	assert.True(t, repo.IsPersistenceError(err))
	assert.True(t, db.IsDuplicateKey(err))
	for _, u := range batch {
		assert.Zero(t, u.ID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_PostSave_ForeignKeyRaceIsOwnerNotFound(t *testing.T) {
	d, mock := setupMockDB(t, "postgres")
	posts := repo.NewPostRepo(d, stubResolver{7: {ID: 7, Name: "Alice"}})

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO posts`)).
		WithArgs("t", "c", int64(7)).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := posts.Save(context.Background(), &models.Post{Title: "t", Content: "c", User: &models.User{ID: 7}})
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.ErrOwnerNotFound)
	assert.True(t, db.IsForeignKeyViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_PostSave_ResolverErrorIsPersistenceError(t *testing.T) {
	d, mock := setupMockDB(t, "postgres")
	boom := errors.New("resolver down")
	posts := repo.NewPostRepo(d, failingResolver{err: boom})

	_, err := posts.Save(context.Background(), &models.Post{Title: "t", Content: "c", User: &models.User{ID: 7}})
	assert.True(t, repo.IsPersistenceError(err))
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type stubResolver map[int64]*models.User

func (s stubResolver) FindByID(_ context.Context, id int64) (*models.User, bool, error) {
	u, ok := s[id]
	return u, ok, nil
}

type failingResolver struct{ err error }

func (f failingResolver) FindByID(context.Context, int64) (*models.User, bool, error) {
	return nil, false, f.err
}
