package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	s := NewTokenService("secret")

	token, err := s.GenerateJWT(123456789)
	require.NoError(t, err)

	id, err := s.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), id)
}

func TestTokenRejected(t *testing.T) {
	s := NewTokenService("secret")
	token, err := s.GenerateJWT(1)
	require.NoError(t, err)

	_, err = NewTokenService("other").ValidateJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.ValidateJWT("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	s.now = func() time.Time { return time.Now().AddDate(2, 0, 0) }
	_, err = s.ValidateJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")
}
