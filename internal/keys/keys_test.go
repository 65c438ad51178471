package keys

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken(t *testing.T) {
	token, err := NewToken()
	require.NoError(t, err)
	assert.Len(t, token, 64)

	other, err := NewToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestNewUniqueTokenRegeneratesOnCollision(t *testing.T) {
	calls := 0
	token, err := NewUniqueToken(func(string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.Equal(t, 3, calls)
}

func TestNewUniqueTokenPropagatesLookupError(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewUniqueToken(func(string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}
