package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	require.Len(t, salt, saltSize*2) // hex doubles the length

	hash, err := HashPassword("s3cret", salt)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	require.True(t, VerifyPassword("s3cret", salt, hash))
	require.False(t, VerifyPassword("wrong", salt, hash))
}

func TestHashPassword_DifferentSaltsDiffer(t *testing.T) {
	s1, err := NewSalt()
	require.NoError(t, err)
	s2, err := NewSalt()
	require.NoError(t, err)
	require.NotEqual(t, s1, s2)

	h1, err := HashPassword("s3cret", s1)
	require.NoError(t, err)
	h2, err := HashPassword("s3cret", s2)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestVerifyPassword_MalformedInputs(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	hash, err := HashPassword("s3cret", salt)
	require.NoError(t, err)

	require.False(t, VerifyPassword("s3cret", "not-hex!", hash))
	require.False(t, VerifyPassword("s3cret", salt, "not-hex!"))
}

func TestHashPassword_BadSalt(t *testing.T) {
	_, err := HashPassword("s3cret", "zzzz")
	require.Error(t, err)
}
