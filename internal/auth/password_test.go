package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amsportal/internal/apperr"
	"amsportal/internal/auth"
	"amsportal/internal/testutil"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, auth.CheckPassword(hash, "correct horse"))
	assert.False(t, auth.CheckPassword(hash, "wrong horse"))
	assert.False(t, auth.CheckPassword("not-a-hash", "correct horse"))
}

func TestValidatePasswordStrength(t *testing.T) {
	assert.NoError(t, auth.ValidatePasswordStrength("12345678"))
	err := auth.ValidatePasswordStrength("1234567")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAuthenticate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	assert.NoError(t, auth.Authenticate(ctx, db, testutil.AdminUsername, testutil.AdminPassword))

	for _, tc := range []struct{ user, pass string }{
		{testutil.AdminUsername, "wrong"},
		{"ghost", testutil.AdminPassword},
		{"", ""},
	} {
		err := auth.Authenticate(ctx, db, tc.user, tc.pass)
		assert.ErrorIs(t, err, apperr.Authentication(auth.MsgInvalidCredentials), "user=%q", tc.user)
	}
}

func TestTokens(t *testing.T) {
	a, err := auth.GenerateToken()
	require.NoError(t, err)
	b, err := auth.GenerateToken()
	require.NoError(t, err)

	assert.Len(t, a, auth.TokenBytes*2)
	assert.NotEqual(t, a, b)
	assert.True(t, auth.TokensEqual(a, a))
	assert.False(t, auth.TokensEqual(a, b))
	assert.False(t, auth.TokensEqual("", ""))
	assert.False(t, auth.TokensEqual(a, ""))
}
