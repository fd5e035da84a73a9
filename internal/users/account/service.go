// Package account はユーザー登録・ログイン・プロフィール管理を行う。
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	usersdb "github.com/nao1215/ordermesh/internal/users/db"
	"github.com/nao1215/ordermesh/pkg/apperror"
	"github.com/nao1215/ordermesh/pkg/event"
	"github.com/nao1215/ordermesh/pkg/identity"
	"github.com/nao1215/ordermesh/pkg/pagination"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

// maxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
const maxPasswordBytes = 72

// TokenIssuer はIdentityから資格情報を発行する。
type TokenIssuer interface {
	Issue(id identity.Identity) (string, error)
}

// Session は登録・ログインの結果。
type Session struct {
	User  *usersdb.User
	Token string
}

// Registration は新規登録の入力。
type Registration struct {
	Email    string
	Password string
	Name     string
}

// Page はユーザー一覧の1ページ分の結果。
type Page struct {
	Users      []*usersdb.User
	Pagination pagination.Response
}

// Service はユーザーアカウントの操作を提供する。
type Service struct {
	store      *usersdb.Store
	issuer     TokenIssuer
	publisher  event.Publisher
	bcryptCost int
	now        func() time.Time
}

// NewService は新しいServiceを生成する。bcryptCostが範囲外なら既定値を使う。
func NewService(store *usersdb.Store, issuer TokenIssuer, publisher event.Publisher, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store:      store,
		issuer:     issuer,
		publisher:  publisher,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// Register はuserロールのユーザーを作成し、資格情報を発行する。
func (s *Service) Register(ctx context.Context, r Registration) (*Session, error) {
	u, err := s.create(ctx, r, identity.DefaultRoles())
	if err != nil {
		return nil, err
	}

	event.Emit(ctx, s.publisher, u.ID, u.ID,
		event.UserRegisteredData{Email: u.Email, Name: u.Name})
	return s.session(u)
}

// Login はメールアドレスとパスワードを検証し、資格情報を発行する。
// ユーザーが存在しない場合とパスワードが違う場合は区別しない。
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, usersdb.ErrNotFound) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, invalidCredentials()
	}
	return s.session(u)
}

// Profile は自分のプロフィールを返す。
func (s *Service) Profile(ctx context.Context, userID string) (*usersdb.User, error) {
	u, err := s.store.GetByID(ctx, userID)
	if errors.Is(err, usersdb.ErrNotFound) {
		return nil, userNotFound()
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateProfile は名前とメールアドレスを更新する。
func (s *Service) UpdateProfile(ctx context.Context, userID string, p usersdb.ProfileUpdate) (*usersdb.User, error) {
	if p.Email != nil {
		email := normalizeEmail(*p.Email)
		p.Email = &email
	}
	if p.Empty() {
		return nil, apperror.BadRequest(apperror.CodeInvalidInput, "No fields to update")
	}

	if p.Email != nil {
		taken, err := s.store.EmailTaken(ctx, *p.Email, userID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, emailTaken()
		}
	}

	u, err := s.store.UpdateProfile(ctx, userID, p, s.now().UTC())
	switch {
	case errors.Is(err, usersdb.ErrNotFound):
		return nil, userNotFound()
	case errors.Is(err, usersdb.ErrEmailTaken):
		// 確認後に他のリクエストが同じメールアドレスを登録した場合
		return nil, emailTaken()
	case err != nil:
		return nil, err
	}
	return u, nil
}

// List はユーザー一覧を作成日時の降順で返す。ページの取得と総件数の取得は並行に行う。
func (s *Service) List(ctx context.Context, p pagination.Params) (*Page, error) {
	var (
		users []*usersdb.User
		total int
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		users, err = s.store.List(egCtx, p.Limit, p.Offset())
		return err
	})
	eg.Go(func() error {
		var err error
		total, err = s.store.Count(egCtx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	return &Page{Users: users, Pagination: pagination.NewResponse(p, total)}, nil
}

// create はパスワードをハッシュ化してユーザーを保存する。
func (s *Service) create(ctx context.Context, r Registration, roles identity.Roles) (*usersdb.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		// 文字数ではなくバイト数の上限。マルチバイト文字はバインディングの検証を通り抜ける
		return nil, apperror.Wrap(apperror.KindValidation, apperror.CodeValidation,
			fmt.Sprintf("password: must be at most %d bytes", maxPasswordBytes), err)
	}
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}

	now := s.now().UTC()
	u := &usersdb.User{
		ID:           uuid.New().String(),
		Email:        normalizeEmail(r.Email),
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(r.Name),
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, usersdb.ErrEmailTaken) {
			return nil, apperror.Conflict(apperror.CodeUserExists, "User with this email already exists")
		}
		return nil, err
	}
	return u, nil
}

// session は資格情報を発行してSessionを組み立てる。
func (s *Service) session(u *usersdb.User) (*Session, error) {
	token, err := s.issuer.Issue(u.Identity())
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token}, nil
}

// normalizeEmail はメールアドレスを比較用に正規化する。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func invalidCredentials() error {
	return apperror.New(apperror.KindUnauthorized, apperror.CodeInvalidCredentials, "Invalid email or password")
}

func userNotFound() error {
	return apperror.NotFound(apperror.CodeUserNotFound, "User not found")
}

func emailTaken() error {
	return apperror.Conflict(apperror.CodeEmailTaken, "Email is already taken")
}
