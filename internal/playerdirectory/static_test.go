package playerdirectory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticResolvesSeededNames(t *testing.T) {
	dir := NewStatic(map[string]string{"dev-123": "Alice"})

	name, err := dir.ResolveName(context.Background(), "dev-123")
	require.NoError(t, err)
	require.Equal(t, "Alice", name)
}

func TestStaticFallsBackToDerivedName(t *testing.T) {
	dir := NewStatic(nil)

	name, err := dir.ResolveName(context.Background(), "device-98765")
	require.NoError(t, err)
	require.Equal(t, "Player-8765", name)
}

func TestRegisterOverridesFallback(t *testing.T) {
	dir := NewStatic(nil)
	dir.Register("d1", "Bob")

	name, err := dir.ResolveName(context.Background(), "d1")
	require.NoError(t, err)
	require.Equal(t, "Bob", name)
}
