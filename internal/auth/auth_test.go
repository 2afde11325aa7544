package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arontabacinik/itirp/pkg/types"
)

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	store := NewCredentialStore()
	require.NoError(t, store.AddUser("alice", "s3cret", types.RoleTrader))

	principal, err := store.Authenticate("alice", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, principal.UserID)
	assert.Equal(t, types.RoleTrader, principal.Role)

	_, err = store.Authenticate("alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = store.Authenticate("mallory", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAddUserRejectsDuplicates(t *testing.T) {
	t.Parallel()

	store := NewCredentialStore()
	require.NoError(t, store.AddUser("alice", "pw", types.RoleTrader))
	assert.Error(t, store.AddUser("alice", "pw2", types.RoleAdmin))
	assert.Error(t, store.AddUser("", "pw", types.RoleTrader))
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("test-secret", "itirp", time.Hour)
	principal := types.Principal{UserID: "u-1", Role: types.RoleRiskManager}

	token, err := svc.Issue(principal)
	require.NoError(t, err)

	got, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, principal, got)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	issuer := NewTokenService("secret-a", "itirp", time.Hour)
	verifier := NewTokenService("secret-b", "itirp", time.Hour)

	token, err := issuer.Issue(types.Principal{UserID: "u-1", Role: types.RoleTrader})
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewTokenService("test-secret", "itirp", time.Minute,
		WithTokenClock(func() time.Time { return current }))

	token, err := svc.Issue(types.Principal{UserID: "u-1", Role: types.RoleTrader})
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("test-secret", "itirp", time.Hour)
	_, err := svc.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
