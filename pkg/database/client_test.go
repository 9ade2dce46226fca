package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_AppliesMigrations(t *testing.T) {
	client, err := NewClient(context.Background(), ":memory:")
	require.NoError(t, err)
	defer client.Close()

	var tables []string
	err = client.DB().Select(&tables,
		`SELECT name FROM sqlite_master WHERE type='table' ORDER BY name`)
	require.NoError(t, err)

	for _, want := range []string{
		"tasks", "sessions", "agent_memory", "approval_requests",
		"agent_profiles", "performance_history", "cost_history",
	} {
		assert.Contains(t, tables, want)
	}
}

func TestNewClient_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "overseer.db")

	client, err := NewClient(context.Background(), path)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, path, client.Path())

	// Second open reuses the already-migrated schema (ErrNoChange path).
	client2, err := NewClient(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, client2.Close())
}

func TestHealth(t *testing.T) {
	client, err := NewClient(context.Background(), ":memory:")
	require.NoError(t, err)
	defer client.Close()

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.MaxOpenConns)
}
