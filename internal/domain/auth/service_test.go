package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"marmora/internal/core/apperror"
	"marmora/internal/domain/auth"
)

type memUserStore struct {
	users map[string]*auth.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*auth.User)}
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	u, ok := s.users[email]
	if !ok {
		return nil, apperror.NewNotFound("user", email)
	}
	return u, nil
}

func (s *memUserStore) Create(_ context.Context, user *auth.User) error {
	s.users[user.Email] = user
	return nil
}

func (s *memUserStore) Exists(_ context.Context, email string) (bool, error) {
	_, ok := s.users[email]
	return ok, nil
}

func newService(store auth.UserStore) *auth.Service {
	jwtCfg := auth.DefaultJWTConfig("test-secret")
	return auth.NewService(store, auth.NewJWTService(jwtCfg), auth.DefaultServiceConfig())
}

func seedUser(t *testing.T, store *memUserStore, email, password string, admin bool) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := auth.NewUser(email, string(hash))
	u.IsAdmin = admin
	if admin {
		u.Roles = []string{"admin"}
	}
	require.NoError(t, store.Create(context.Background(), u))
	return u
}

func TestLogin(t *testing.T) {
	store := newMemUserStore()
	seedUser(t, store, "ops@example.com", "correct-horse", false)
	svc := newService(store)

	t.Run("valid credentials", func(t *testing.T) {
		token, user, err := svc.Login(context.Background(), auth.Credentials{
			Email:    "ops@example.com",
			Password: "correct-horse",
		})
		require.NoError(t, err)
		require.NotNil(t, token)
		assert.Equal(t, "Bearer", token.TokenType)
		assert.NotEmpty(t, token.AccessToken)
		assert.True(t, token.ExpiresAt.After(time.Now()))
		assert.Equal(t, "ops@example.com", user.Email)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.Login(context.Background(), auth.Credentials{
			Email:    "ops@example.com",
			Password: "wrong",
		})
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeUnauthorized, appErr.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, _, err := svc.Login(context.Background(), auth.Credentials{
			Email:    "nobody@example.com",
			Password: "whatever",
		})
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeUnauthorized, appErr.Code)
	})

	t.Run("disabled account", func(t *testing.T) {
		u := seedUser(t, store, "gone@example.com", "pw-long-enough", false)
		u.IsActive = false
		_, _, err := svc.Login(context.Background(), auth.Credentials{
			Email:    "gone@example.com",
			Password: "pw-long-enough",
		})
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeForbidden, appErr.Code)
	})
}

func TestTokenRoundTrip(t *testing.T) {
	store := newMemUserStore()
	admin := seedUser(t, store, "admin@example.com", "super-secret", true)
	svc := newService(store)

	token, _, err := svc.Login(context.Background(), auth.Credentials{
		Email:    "admin@example.com",
		Password: "super-secret",
	})
	require.NoError(t, err)

	jwtSvc := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))
	userCtx, err := jwtSvc.ValidateToken(token.AccessToken)
	require.NoError(t, err)

	assert.Equal(t, admin.ID.String(), userCtx.UserID)
	assert.Equal(t, "admin@example.com", userCtx.Email)
	assert.True(t, userCtx.IsAdmin)
	assert.Contains(t, userCtx.Roles, "admin")
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := auth.NewJWTService(auth.DefaultJWTConfig("secret-a"))
	tokenString, _, err := issuer.GenerateAccessToken("u1", "a@b.c", nil, false)
	require.NoError(t, err)

	verifier := auth.NewJWTService(auth.DefaultJWTConfig("secret-b"))
	_, err = verifier.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	store := newMemUserStore()
	svc := newService(store)

	t.Run("creates user", func(t *testing.T) {
		user, err := svc.Register(context.Background(), "new@example.com", "long-enough-pw", "New Operator")
		require.NoError(t, err)
		assert.Equal(t, "New Operator", user.FullName)
		assert.False(t, user.IsAdmin)

		_, _, err = svc.Login(context.Background(), auth.Credentials{
			Email:    "new@example.com",
			Password: "long-enough-pw",
		})
		assert.NoError(t, err)
	})

	t.Run("rejects short password", func(t *testing.T) {
		_, err := svc.Register(context.Background(), "short@example.com", "tiny", "")
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeValidation, appErr.Code)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		_, err := svc.Register(context.Background(), "new@example.com", "long-enough-pw", "")
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeConflict, appErr.Code)
	})
}

func TestEnsureBootstrapAdmin(t *testing.T) {
	store := newMemUserStore()
	cfg := auth.DefaultServiceConfig()
	cfg.BootstrapAdminEmail = "root@example.com"
	cfg.BootstrapAdminPassword = "first-password"
	svc := auth.NewService(store, auth.NewJWTService(auth.DefaultJWTConfig("s")), cfg)

	require.NoError(t, svc.EnsureBootstrapAdmin(context.Background()))
	admin, err := store.GetByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)

	// Idempotent: a second run does not replace the account.
	require.NoError(t, svc.EnsureBootstrapAdmin(context.Background()))
	again, err := store.GetByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)
}
