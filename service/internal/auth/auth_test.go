package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	id, tok, err := iss.Issue("  alice ")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	claims, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Name)
	got, err := claims.PlayerID()
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestVerifyRejects(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	_, tok, err := iss.Issue("bob")
	require.NoError(t, err)

	other := NewIssuer("other", time.Hour)
	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong secret")

	_, err = iss.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Expired.
	past := NewIssuer("secret", time.Minute)
	past.now = func() time.Time { return time.Now().Add(-time.Hour) }
	_, old, err := past.Issue("carol")
	require.NoError(t, err)
	_, err = iss.Verify(old)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired token")

	// Wrong algorithm.
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString(), Issuer: issuer}}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")

	// Bad subject.
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "nobody", Issuer: issuer},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = iss.Verify(bad)
	assert.ErrorIs(t, err, ErrInvalidToken, "non-uuid subject")
}

func TestNoExpiry(t *testing.T) {
	iss := NewIssuer("secret", 0)
	_, tok, err := iss.Issue("dave")
	require.NoError(t, err)
	claims, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer   xyz ", "xyz", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestPasswords(t *testing.T) {
	h, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", h)
	assert.NoError(t, CheckPassword(h, "hunter2"))
	assert.ErrorIs(t, CheckPassword(h, "hunter3"), ErrWrongPassword)
	assert.NoError(t, CheckPassword("", "anything"), "open game")
}
