package jwt

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/domain/models"
)

const secret = "test-secret"

func TestGenerateParse_RoundTrip(t *testing.T) {
	user := &models.User{ID: 42, Username: gofakeit.Username()}

	issued := time.Now()
	token, err := GenerateToken(user, secret, time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)

	uid, err := UserID(claims)
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)
	assert.Equal(t, user.Username, claims["username"])

	const deltaSeconds = 1
	assert.InDelta(t, issued.Add(time.Minute).Unix(), claims["exp"].(float64), deltaSeconds)
}

func TestParseToken_FailCases(t *testing.T) {
	user := &models.User{ID: 1, Username: "alex"}

	expired, err := GenerateToken(user, secret, -time.Minute)
	require.NoError(t, err)

	otherSecret, err := GenerateToken(user, "another-secret", time.Minute)
	require.NoError(t, err)

	refreshTyped, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":        1,
		"token_type": "refresh",
		"exp":        time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"uid":        1,
		"token_type": "access",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "Expired", token: expired},
		{name: "Wrong secret", token: otherSecret},
		{name: "Refresh token type", token: refreshTyped},
		{name: "None algorithm", token: unsigned},
		{name: "Garbage", token: "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, secret)
			require.Error(t, err)
		})
	}
}
