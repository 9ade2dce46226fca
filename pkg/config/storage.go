package config

import "os"

// StorageConfig holds filesystem paths for persistent state.
type StorageConfig struct {
	// DatabasePath is the SQLite database file backing the queue, session,
	// approval, and profile stores.
	DatabasePath string `yaml:"database_path"`

	// ProgressLogPath is the append-only progress journal file.
	ProgressLogPath string `yaml:"progress_log_path"`

	// QdrantPath is accepted for compatibility with older deployments that
	// ran a local vector store. Nothing reads it.
	QdrantPath string `yaml:"qdrant_path"`
}

// DefaultStorageConfig returns storage defaults, honoring the environment
// variables older deployments used for the per-component database files.
// DATABASE_PATH wins; SESSION_DB_PATH and HITL_DB_PATH are accepted as
// fallbacks since all stores now share one database.
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		DatabasePath:    firstEnv("./data/overseer.db", "DATABASE_PATH", "SESSION_DB_PATH", "HITL_DB_PATH"),
		ProgressLogPath: firstEnv("./data/progress.log", "PROGRESS_LOG_PATH"),
		QdrantPath:      firstEnv("./data/qdrant", "QDRANT_PATH"),
	}
}

// firstEnv returns the first non-empty environment variable value, or the
// fallback when none are set.
func firstEnv(fallback string, keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return fallback
}
