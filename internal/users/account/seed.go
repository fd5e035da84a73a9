package account

import (
	"context"
	"errors"
	"fmt"

	usersdb "github.com/nao1215/ordermesh/internal/users/db"
	"github.com/nao1215/ordermesh/pkg/identity"
)

// SeedAccount は起動時に投入する開発用アカウント。
type SeedAccount struct {
	Email    string
	Password string
	Name     string
	Roles    identity.Roles
}

// DevAccounts は開発・動作確認用のアカウント。
var DevAccounts = []SeedAccount{
	{Email: "user1@example.com", Password: "password123", Name: "Test User 1", Roles: identity.NewRoles(identity.RoleUser)},
	{Email: "admin@example.com", Password: "admin123", Name: "Admin User", Roles: identity.NewRoles(identity.RoleUser, identity.RoleAdmin)},
	{Email: "test@example.com", Password: "password123", Name: "Test User", Roles: identity.NewRoles(identity.RoleUser)},
}

// Seed はアカウントを投入する。既に同じメールアドレスのユーザーがいれば何もしない。
// 投入したアカウント数を返す。
func (s *Service) Seed(ctx context.Context, accounts []SeedAccount) (int, error) {
	created := 0
	for _, a := range accounts {
		_, err := s.store.GetByEmail(ctx, normalizeEmail(a.Email))
		if err == nil {
			continue
		}
		if !errors.Is(err, usersdb.ErrNotFound) {
			return created, err
		}

		if _, err := s.create(ctx, Registration{Email: a.Email, Password: a.Password, Name: a.Name}, a.Roles); err != nil {
			return created, fmt.Errorf("アカウント%sの投入に失敗: %w", a.Email, err)
		}
		created++
	}
	return created, nil
}
