// Package auth_repo provides PostgreSQL storage for operator accounts.
package auth_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"marmora/internal/core/apperror"
	"marmora/internal/core/id"
	"marmora/internal/domain/auth"
	"marmora/internal/infrastructure/storage/postgres"
)

const usersTable = "users"

var userColumns = []string{
	"user_id",
	"email",
	"password_hash",
	"full_name",
	"is_admin",
	"is_active",
	"created_at",
	"updated_at",
}

// UserRepo implements auth.UserStore.
type UserRepo struct {
	txManager *postgres.TxManager
	builder   sq.StatementBuilderType
}

// NewUserRepo creates a new user repository.
func NewUserRepo(txManager *postgres.TxManager) *UserRepo {
	return &UserRepo{
		txManager: txManager,
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// GetByEmail returns an active user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	query, args, err := r.builder.
		Select(userColumns...).
		From(usersTable).
		Where(sq.Eq{"email": email}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	q := r.txManager.GetQuerier(ctx)
	var user auth.User
	if err := pgxscan.Get(ctx, q, &user, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("user", email)
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if user.IsAdmin {
		user.Roles = []string{"admin"}
	}
	return &user, nil
}

// Create inserts a new user.
func (r *UserRepo) Create(ctx context.Context, user *auth.User) error {
	if id.IsNil(user.ID) {
		user.ID = id.New()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query, args, err := r.builder.
		Insert(usersTable).
		Columns(userColumns...).
		Values(
			user.ID,
			user.Email,
			user.PasswordHash,
			user.FullName,
			user.IsAdmin,
			user.IsActive,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	q := r.txManager.GetQuerier(ctx)
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Exists reports whether a user with the email exists.
func (r *UserRepo) Exists(ctx context.Context, email string) (bool, error) {
	query, args, err := r.builder.
		Select("1").
		From(usersTable).
		Where(sq.Eq{"email": email}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	q := r.txManager.GetQuerier(ctx)
	var one int
	if err := pgxscan.Get(ctx, q, &one, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return true, nil
}

var _ auth.UserStore = (*UserRepo)(nil)
