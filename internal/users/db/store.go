// Package db はユーザーアカウントをリレーショナルストアに保存する。
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/nao1215/ordermesh/pkg/database"
	"github.com/nao1215/ordermesh/pkg/identity"
)

var (
	// ErrNotFound はユーザーが存在しないことを表す。
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken はメールアドレスが既に使われていることを表す。
	ErrEmailTaken = errors.New("email already taken")
)

// tableName はユーザーテーブル名。
const tableName = "users"

// columns はSELECTで取得するカラム。scanUserの順序と一致させること。
var columns = []string{"id", "email", "password_hash", "name", "roles", "created_at", "updated_at"}

// User はユーザーアカウント。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Roles        identity.Roles
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity はユーザーをトークン発行用のIdentityに変換する。
func (u *User) Identity() identity.Identity {
	return identity.Identity{Subject: u.ID, Email: u.Email, Roles: u.Roles}
}

// ProfileUpdate はプロフィール更新の内容。nilのフィールドは変更しない。
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// Empty は変更するフィールドが無いかを返す。
func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.Email == nil
}

// Store はユーザーの永続化を行う。
type Store struct {
	db *database.DB
}

// New は新しいStoreを生成する。
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Create はユーザーを保存する。メールアドレスが重複していればErrEmailTakenを返す。
func (s *Store) Create(ctx context.Context, u *User) error {
	query, args, err := s.db.Builder.Insert(tableName).
		Columns(columns...).
		Values(u.ID, u.Email, u.PasswordHash, u.Name, identity.EncodeRoles(u.Roles), u.CreatedAt.UTC(), u.UpdatedAt.UTC()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.SQL.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("ユーザーの挿入に失敗: %w", err)
	}
	return nil
}

// GetByID はIDでユーザーを取得する。
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	return s.getBy(ctx, squirrel.Eq{"id": id})
}

// GetByEmail はメールアドレスでユーザーを取得する。
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.getBy(ctx, squirrel.Eq{"email": email})
}

// getBy は条件に一致するユーザーを1件取得する。
func (s *Store) getBy(ctx context.Context, pred squirrel.Eq) (*User, error) {
	query, args, err := s.db.Builder.Select(columns...).From(tableName).Where(pred).ToSql()
	if err != nil {
		return nil, err
	}
	u, err := scanUser(s.db.SQL.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return u, nil
}

// EmailTaken はexcludeID以外のユーザーがemailを使っているかを返す。
func (s *Store) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	builder := s.db.Builder.Select("COUNT(*)").From(tableName).Where(squirrel.Eq{"email": email})
	if excludeID != "" {
		builder = builder.Where(squirrel.NotEq{"id": excludeID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return false, err
	}
	var n int
	if err := s.db.SQL.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("メールアドレスの確認に失敗: %w", err)
	}
	return n > 0, nil
}

// UpdateProfile はプロフィールを更新して更新後のユーザーを返す。
func (s *Store) UpdateProfile(ctx context.Context, id string, p ProfileUpdate, updatedAt time.Time) (*User, error) {
	builder := s.db.Builder.Update(tableName).
		Set("updated_at", updatedAt.UTC()).
		Where(squirrel.Eq{"id": id})
	if p.Name != nil {
		builder = builder.Set("name", *p.Name)
	}
	if p.Email != nil {
		builder = builder.Set("email", *p.Email)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	res, err := s.db.SQL.ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// List は作成日時の降順でユーザーを返す。
func (s *Store) List(ctx context.Context, limit, offset int) ([]*User, error) {
	query, args, err := s.db.Builder.Select(columns...).
		From(tableName).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧のクエリ実行に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := make([]*User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの読み込みに失敗: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Count はユーザーの総数を返す。
func (s *Store) Count(ctx context.Context) (int, error) {
	query, args, err := s.db.Builder.Select("COUNT(*)").From(tableName).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.SQL.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("ユーザー数の取得に失敗: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser は1行をユーザーに変換する。
func scanUser(row rowScanner) (*User, error) {
	var (
		u     User
		roles string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &roles, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	rs, err := identity.DecodeRoles(roles)
	if err != nil {
		return nil, fmt.Errorf("ロールのデコードに失敗: %w", err)
	}
	u.Roles = rs
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
