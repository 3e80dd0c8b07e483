package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaravsagar/agriatoo-core/internal/docstore"
)

func newTestUserService() *UserService {
	jwt := NewJWTService("test-secret", 15*time.Minute, 7*24*time.Hour)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUserService(docstore.NewMemory(), jwt, log)
}

func TestUserService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestUserService()

	user, pair, err := svc.Register(ctx, "asha@example.com", "Asha Patel", "strongpassword", RoleBuyer)

	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, RoleBuyer, user.Role)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, "strongpassword", user.PasswordHash)

	loggedIn, pair2, err := svc.Login(ctx, "asha@example.com", "strongpassword")

	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.NotEmpty(t, pair2.AccessToken)
}

func TestUserService_RegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newTestUserService()

	_, _, err := svc.Register(ctx, "asha@example.com", "Asha Patel", "strongpassword", RoleBuyer)
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "asha@example.com", "Other Asha", "differentpass", RoleSeller)

	assert.ErrorIs(t, err, ErrUserExists)
}

func TestUserService_RegisterRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc := newTestUserService()

	_, _, err := svc.Register(ctx, "a@example.com", "A", "short", RoleBuyer)
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, _, err = svc.Register(ctx, "a@example.com", "A", "strongpassword", Role("customer"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestUserService_LoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	svc := newTestUserService()

	_, _, err := svc.Register(ctx, "asha@example.com", "Asha Patel", "strongpassword", RoleBuyer)
	require.NoError(t, err)

	_, _, wrongPass := svc.Login(ctx, "asha@example.com", "wrongpassword")
	_, _, noUser := svc.Login(ctx, "nobody@example.com", "strongpassword")

	assert.ErrorIs(t, wrongPass, ErrInvalidCredentials)
	assert.ErrorIs(t, noUser, ErrInvalidCredentials)
}

func TestUserService_Refresh(t *testing.T) {
	ctx := context.Background()
	svc := newTestUserService()

	user, pair, err := svc.Register(ctx, "seller@example.com", "Green Farms", "strongpassword", RoleSeller)
	require.NoError(t, err)

	fresh, err := svc.Refresh(ctx, pair.RefreshToken)

	require.NoError(t, err)
	claims, err := svc.jwt.ValidateAccessToken(fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, RoleSeller, claims.Role)
}

func TestUserService_RefreshRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	svc := newTestUserService()

	_, err := svc.Refresh(ctx, "not-a-token")

	assert.ErrorIs(t, err, ErrInvalidToken)
}
