package auth

import (
	"errors"
	"testing"
	"time"

	"sinilikhain/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordIsSaltedAndVerifiable(t *testing.T) {
	h1, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	h2, err := HashPassword("s3cret-pass")
	require.NoError(t, err)

	assert.NotEqual(t, "s3cret-pass", h1)
	assert.NotEqual(t, h1, h2)
	assert.True(t, CheckPassword(h1, "s3cret-pass"))
	assert.False(t, CheckPassword(h1, "wrong"))
}

func TestTokenRoundTrip(t *testing.T) {
	ti := NewTokenIssuer("test-secret", time.Hour)
	token, err := ti.Issue(&models.User{ID: 7, Username: "maria", Role: models.RoleArtisan})
	require.NoError(t, err)

	claims, err := ti.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, models.RoleArtisan, claims.Role)
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	ti := NewTokenIssuer("test-secret", time.Hour)
	token, err := ti.Issue(&models.User{ID: 7, Username: "maria", Role: models.RoleArtisan})
	require.NoError(t, err)

	ti.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = ti.Parse(token)
	assert.True(t, errors.Is(err, models.ErrUnauthorized))

	other := NewTokenIssuer("other-secret", time.Hour)
	_, err = other.Parse(token)
	assert.True(t, errors.Is(err, models.ErrUnauthorized))
}
