package account

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	usersdb "github.com/nao1215/ordermesh/internal/users/db"
	"github.com/nao1215/ordermesh/pkg/apperror"
	"github.com/nao1215/ordermesh/pkg/database"
	"github.com/nao1215/ordermesh/pkg/event"
	"github.com/nao1215/ordermesh/pkg/identity"
	"github.com/nao1215/ordermesh/pkg/middleware"
	"github.com/nao1215/ordermesh/pkg/migration"
	"github.com/nao1215/ordermesh/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

const testSecret = "account-test-secret"

// newTestService はインメモリSQLiteを使うServiceを生成する。時刻は呼び出しごとに1秒進む。
func newTestService(t *testing.T) (*Service, *event.Recorder) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db := database.New(sqlDB, database.DialectSQLite)
	require.NoError(t, migration.Run(context.Background(), db, os.DirFS(".."), "migrations/sqlite"))

	rec := &event.Recorder{}
	svc := NewService(usersdb.New(db), middleware.NewIssuer(testSecret, time.Hour, "ordermesh"), rec, bcrypt.MinCost)
	clock := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, rec
}

func register(t *testing.T, svc *Service, email string) *Session {
	t.Helper()
	s, err := svc.Register(context.Background(), Registration{Email: email, Password: "password123", Name: "Taro"})
	require.NoError(t, err)
	return s
}

func TestRegister(t *testing.T) {
	t.Parallel()

	t.Run("userロールで登録されトークンが発行されること", func(t *testing.T) {
		t.Parallel()
		svc, rec := newTestService(t)

		s, err := svc.Register(context.Background(), Registration{Email: " Taro@Example.com ", Password: "password123", Name: "Taro"})
		require.NoError(t, err)
		assert.Equal(t, "taro@example.com", s.User.Email)
		assert.Equal(t, identity.DefaultRoles(), s.User.Roles)
		assert.NotEqual(t, "password123", s.User.PasswordHash)

		id, err := middleware.NewVerifier(testSecret).Verify(s.Token)
		require.NoError(t, err)
		assert.Equal(t, s.User.ID, id.Subject)
		assert.Equal(t, "taro@example.com", id.Email)
		assert.False(t, id.IsAdmin())

		events := rec.Events()
		require.Len(t, events, 1)
		assert.Equal(t, event.TypeUserRegistered, events[0].EventType)
		assert.Equal(t, s.User.ID, events[0].AggregateID)
	})

	t.Run("重複したメールアドレスはUSER_EXISTSになること", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		register(t, svc, "dup@example.com")

		_, err := svc.Register(context.Background(), Registration{Email: "DUP@example.com", Password: "password123", Name: "Other"})
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, apperror.KindConflict, appErr.Kind)
		assert.Equal(t, apperror.CodeUserExists, appErr.Code)
	})

	t.Run("72バイトを超えるパスワードはVALIDATION_ERRORになること", func(t *testing.T) {
		t.Parallel()
		svc, rec := newTestService(t)

		_, err := svc.Register(context.Background(), Registration{Email: "long@example.com", Password: strings.Repeat("x", 73), Name: "Taro"})
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, apperror.KindValidation, appErr.Kind)
		assert.Equal(t, apperror.CodeValidation, appErr.Code)
		assert.Empty(t, rec.Events())
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	registered := register(t, svc, "login@example.com")

	t.Run("正しいパスワードでログインできること", func(t *testing.T) {
		t.Parallel()

		s, err := svc.Login(context.Background(), "login@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, registered.User.ID, s.User.ID)
		assert.NotEmpty(t, s.Token)
	})

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "パスワードが違う場合は拒否されること", email: "login@example.com", password: "wrong"},
		{name: "存在しないユーザーは同じエラーで拒否されること", email: "nobody@example.com", password: "password123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.Login(context.Background(), tt.email, tt.password)
			appErr, ok := apperror.As(err)
			require.True(t, ok)
			assert.Equal(t, apperror.KindUnauthorized, appErr.Kind)
			assert.Equal(t, apperror.CodeInvalidCredentials, appErr.Code)
			assert.Equal(t, "Invalid email or password", appErr.Message)
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()

	ptr := func(s string) *string { return &s }

	t.Run("名前とメールアドレスを更新できること", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		s := register(t, svc, "before@example.com")

		u, err := svc.UpdateProfile(context.Background(), s.User.ID, usersdb.ProfileUpdate{Name: ptr("Hanako"), Email: ptr("After@Example.com")})
		require.NoError(t, err)
		assert.Equal(t, "Hanako", u.Name)
		assert.Equal(t, "after@example.com", u.Email)
		assert.True(t, u.UpdatedAt.After(s.User.UpdatedAt))
		assert.Equal(t, s.User.CreatedAt, u.CreatedAt)
	})

	t.Run("更新内容が無い場合はINVALID_INPUTになること", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		s := register(t, svc, "empty@example.com")

		_, err := svc.UpdateProfile(context.Background(), s.User.ID, usersdb.ProfileUpdate{})
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, apperror.KindValidation, appErr.Kind)
		assert.Equal(t, apperror.CodeInvalidInput, appErr.Code)
	})

	t.Run("他人のメールアドレスはEMAIL_TAKENになること", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		register(t, svc, "taken@example.com")
		s := register(t, svc, "mine@example.com")

		_, err := svc.UpdateProfile(context.Background(), s.User.ID, usersdb.ProfileUpdate{Email: ptr("taken@example.com")})
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeEmailTaken, appErr.Code)
	})

	t.Run("自分の現在のメールアドレスは再設定できること", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		s := register(t, svc, "same@example.com")

		u, err := svc.UpdateProfile(context.Background(), s.User.ID, usersdb.ProfileUpdate{Email: ptr("same@example.com")})
		require.NoError(t, err)
		assert.Equal(t, "same@example.com", u.Email)
	})

	t.Run("存在しないユーザーはUSER_NOT_FOUNDになること", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		_, err := svc.UpdateProfile(context.Background(), "missing", usersdb.ProfileUpdate{Name: ptr("x")})
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeUserNotFound, appErr.Code)
	})
}

func TestProfile(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	s := register(t, svc, "profile@example.com")

	u, err := svc.Profile(context.Background(), s.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "profile@example.com", u.Email)

	_, err = svc.Profile(context.Background(), "missing")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestList(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	first := register(t, svc, "a@example.com")
	register(t, svc, "b@example.com")
	last := register(t, svc, "c@example.com")

	page, err := svc.List(context.Background(), pagination.Params{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Users, 2)
	assert.Equal(t, last.User.ID, page.Users[0].ID)
	assert.Equal(t, pagination.Response{Page: 1, Limit: 2, Total: 3, TotalPages: 2}, page.Pagination)

	page, err = svc.List(context.Background(), pagination.Params{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, first.User.ID, page.Users[0].ID)
}

func TestSeed(t *testing.T) {
	t.Parallel()

	svc, rec := newTestService(t)

	n, err := svc.Seed(context.Background(), DevAccounts)
	require.NoError(t, err)
	assert.Equal(t, len(DevAccounts), n)

	n, err = svc.Seed(context.Background(), DevAccounts)
	require.NoError(t, err)
	assert.Zero(t, n, "2回目は投入されないこと")

	s, err := svc.Login(context.Background(), "admin@example.com", "admin123")
	require.NoError(t, err)
	assert.True(t, s.User.Roles.IsAdmin())
	assert.Empty(t, rec.Events(), "投入ではUserRegisteredを配信しないこと")
}
