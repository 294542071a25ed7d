package postgres

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/akulinin/pomosync/internal/errs"
	"github.com/akulinin/pomosync/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func testAccount() *model.Account {
	return &model.Account{
		ID:          uuid.Must(uuid.NewV4()),
		Username:    "maria",
		DisplayName: "Maria",
		Email:       "maria@example.com",
		PwdHash:     []byte("h"),
		Salt:        []byte("s"),
		QuickAccess: []string{"classic-pomodoro"},
	}
}

func TestUserRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	a := testAccount()

	insert := `INSERT INTO users \(id, username, display_name, email, pwd_hash, salt, quick_access\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)`

	mock.ExpectExec(insert).
		WithArgs(a.ID, a.Username, a.DisplayName, a.Email, a.PwdHash, a.Salt, a.QuickAccess).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, a))

	mock.ExpectExec(insert).
		WithArgs(a.ID, a.Username, a.DisplayName, a.Email, a.PwdHash, a.Salt, a.QuickAccess).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, a), errs.ErrAlreadyExists)
}

func TestUserRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	sel := `SELECT id, username, display_name, email, pwd_hash, salt, quick_access, created_at FROM users WHERE id=\$1`

	mock.ExpectQuery(sel).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "display_name", "email", "pwd_hash", "salt", "quick_access", "created_at"}).
			AddRow(id, "maria", "Maria", "maria@example.com", []byte("h"), []byte("s"), []string{"classic-pomodoro"}, pgxmock.AnyArg()))
	a, err := r.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, a.ID)
	require.Equal(t, []string{"classic-pomodoro"}, a.QuickAccess)

	mock.ExpectQuery(sel).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByID(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_GetByUsername(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	sel := `SELECT id, username, display_name, email, pwd_hash, salt, quick_access, created_at FROM users WHERE username=\$1`

	mock.ExpectQuery(sel).
		WithArgs("maria").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "display_name", "email", "pwd_hash", "salt", "quick_access", "created_at"}).
			AddRow(id, "maria", "Maria", "maria@example.com", []byte("h"), []byte("s"), []string{}, pgxmock.AnyArg()))
	a, err := r.GetByUsername(ctx, "maria")
	require.NoError(t, err)
	require.Equal(t, "maria", a.Username)

	mock.ExpectQuery(sel).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByUsername(ctx, "nobody")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_SetQuickAccess(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	ids := []string{"classic-pomodoro", "52-17-focus"}

	upd := `UPDATE users SET quick_access=\$2 WHERE id=\$1`

	mock.ExpectExec(upd).
		WithArgs(id, ids).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetQuickAccess(ctx, id, ids))

	mock.ExpectExec(upd).
		WithArgs(id, ids).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SetQuickAccess(ctx, id, ids), errs.ErrNotFound)
}
