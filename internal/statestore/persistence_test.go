package statestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPersistenceRoundTripsAcrossRestart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "statestore")

	cfg := DefaultNamespaceConfig()
	cfg.Persistence = true

	s1 := NewStore(nil, dir)
	require.NoError(t, s1.Start(context.Background()))
	require.NoError(t, s1.CreateNamespace("profiles", cfg))
	_, err := s1.Set("profiles", "u1", map[string]any{"name": "avery"}, SetOptions{})
	require.NoError(t, err)
	require.NoError(t, s1.Stop(context.Background()))

	s2 := NewStore(nil, dir)
	require.NoError(t, s2.Start(context.Background()))
	defer s2.Stop(context.Background())
	require.NoError(t, s2.CreateNamespace("profiles", cfg))

	got, err := s2.Get("profiles", "u1", GetOptions{})
	require.NoError(t, err)
	require.Equal(t, "avery", got.Value.(map[string]any)["name"])
}

func TestCompressedEntrySurvivesRestore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "statestore")
	cfg := DefaultNamespaceConfig()
	cfg.Persistence = true
	cfg.CompressionThreshold = 16

	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i % 7)
	}

	s1 := NewStore(nil, dir)
	require.NoError(t, s1.Start(context.Background()))
	require.NoError(t, s1.CreateNamespace("blobs", cfg))
	_, err := s1.Set("blobs", "k", big, SetOptions{})
	require.NoError(t, err)
	require.NoError(t, s1.Stop(context.Background()))

	s2 := NewStore(nil, dir)
	require.NoError(t, s2.Start(context.Background()))
	defer s2.Stop(context.Background())
	require.NoError(t, s2.CreateNamespace("blobs", cfg))

	got, err := s2.Get("blobs", "k", GetOptions{})
	require.NoError(t, err)
	require.Equal(t, big, got.Value, "a restored entry above the compression threshold must decompress back to the original bytes")
}
