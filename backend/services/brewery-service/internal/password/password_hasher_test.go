package password

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCompare(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("hops-and-malt")
	require.NoError(t, err)
	require.NotEqual(t, "hops-and-malt", hash)

	require.NoError(t, h.Compare(hash, "hops-and-malt"))
	require.ErrorIs(t, h.Compare(hash, "wrong"), ErrMismatch)
}

func TestHashRejectsEmpty(t *testing.T) {
	_, err := NewBcryptHasher(bcrypt.MinCost).Hash("")
	require.Error(t, err)
}

func TestNewBcryptHasherDefaultsCost(t *testing.T) {
	require.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	require.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).cost)
	require.Equal(t, bcrypt.MinCost, NewBcryptHasher(bcrypt.MinCost).cost)
}
