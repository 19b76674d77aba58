package replicate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dueskeeper/dueskeeper/internal/state"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestPostgres_Write_Upserts(t *testing.T) {
	db, mock := newSQLMockDB(t)
	p := NewPostgres(db, "club-main")

	doc := state.New()
	doc.Users = append(doc.Users, state.User{ID: "u1"})
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO app_state")).
		WithArgs("club-main", data).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.Write(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Write_WrapsDBError(t *testing.T) {
	db, mock := newSQLMockDB(t)
	p := NewPostgres(db, "club-main")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO app_state")).
		WillReturnError(errors.New("connection refused"))

	err := p.Write(context.Background(), state.New())
	require.Error(t, err)
	require.Contains(t, err.Error(), "db error")
}

func TestPostgres_Load_Found(t *testing.T) {
	db, mock := newSQLMockDB(t)
	p := NewPostgres(db, "club-main")

	stored := state.New()
	stored.Users = append(stored.Users, state.User{ID: "u1", Login: "79001234567"})
	data, err := json.Marshal(stored)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM app_state")).
		WithArgs("club-main").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))

	doc, found, err := p.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "u1", doc.Users[0].ID)
}

func TestPostgres_Load_NoRow(t *testing.T) {
	db, mock := newSQLMockDB(t)
	p := NewPostgres(db, "club-main")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM app_state")).
		WithArgs("club-main").
		WillReturnError(sql.ErrNoRows)

	doc, found, err := p.Load(context.Background())
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, doc)
}

func TestPostgres_Bootstrap_ExistingRowWins(t *testing.T) {
	db, mock := newSQLMockDB(t)
	p := NewPostgres(db, "club-main")

	stored := state.New()
	stored.Users = append(stored.Users, state.User{ID: "db-user"})
	data, err := json.Marshal(stored)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM app_state WHERE id = $1 FOR UPDATE")).
		WithArgs("club-main").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))
	mock.ExpectCommit()

	seed := state.New()
	seed.Users = append(seed.Users, state.User{ID: "local-user"})

	doc, found, err := p.Bootstrap(context.Background(), seed)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "db-user", doc.Users[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Bootstrap_SeedsWhenAbsent(t *testing.T) {
	db, mock := newSQLMockDB(t)
	p := NewPostgres(db, "club-main")

	seed := state.New()
	seed.Users = append(seed.Users, state.User{ID: "local-user"})
	data, err := json.Marshal(seed)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM app_state WHERE id = $1 FOR UPDATE")).
		WithArgs("club-main").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO app_state")).
		WithArgs("club-main", data).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc, found, err := p.Bootstrap(context.Background(), seed)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, "local-user", doc.Users[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
