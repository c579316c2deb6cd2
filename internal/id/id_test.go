package id

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUUID(t *testing.T) {
	a, b := UUID.New(), UUID.New()
	require.NotEqual(t, a, b)

	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestNUID(t *testing.T) {
	a, b := NUID.New(), NUID.New()
	require.NotEqual(t, a, b)
	require.Len(t, a, 22)
}

func TestFunc(t *testing.T) {
	g := Func(func() string { return "fixed" })
	require.Equal(t, "fixed", g.New())
}
