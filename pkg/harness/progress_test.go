package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressLog_AppendAndDedupe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.log")
	log, err := NewProgressLog(path, nil)
	require.NoError(t, err)

	assert.True(t, log.Append("KM_AGENT", "TASK-1", "COMPLETED", 0.82, "LOW", "整理完成\n細節省略"))
	assert.False(t, log.Append("KM_AGENT", "TASK-1", "COMPLETED", 0.90, "LOW", "重複寫入"))
	assert.True(t, log.Append("PROCESS_AGENT", "TASK-1", "FAILED", 0.20, "MEDIUM", "失敗"))

	lines, err := log.Tail(0)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[KM_AGENT] TASK-1: COMPLETED | Score: 0.82 | Risk: LOW")
	// Multi-line output is flattened onto one journal line.
	assert.Contains(t, lines[0], "整理完成 細節省略")
	assert.Contains(t, lines[1], "[PROCESS_AGENT] TASK-1: FAILED")
}

func TestProgressLog_DedupeSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.log")
	log, err := NewProgressLog(path, nil)
	require.NoError(t, err)
	require.True(t, log.Append("KM_AGENT", "TASK-9", "COMPLETED", 0.75, "LOW", "ok"))

	reopened, err := NewProgressLog(path, nil)
	require.NoError(t, err)
	assert.False(t, reopened.Append("KM_AGENT", "TASK-9", "COMPLETED", 0.75, "LOW", "ok"))
	assert.True(t, reopened.Append("KM_AGENT", "TASK-10", "COMPLETED", 0.75, "LOW", "ok"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestProgressLog_TailReturnsLastN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.log")
	log, err := NewProgressLog(path, nil)
	require.NoError(t, err)

	log.Append("A", "TASK-1", "COMPLETED", 0.5, "LOW", "one")
	log.Append("A", "TASK-2", "COMPLETED", 0.5, "LOW", "two")
	log.Append("A", "TASK-3", "COMPLETED", 0.5, "LOW", "three")

	lines, err := log.Tail(2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "TASK-2")
	assert.Contains(t, lines[1], "TASK-3")
}

func TestProgressLog_MissingFileTail(t *testing.T) {
	log, err := NewProgressLog(filepath.Join(t.TempDir(), "never-written.log"), nil)
	require.NoError(t, err)

	lines, err := log.Tail(5)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestProgressLog_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "progress.log")
	log, err := NewProgressLog(path, nil)
	require.NoError(t, err)
	require.True(t, log.Append("A", "TASK-1", "COMPLETED", 0.5, "LOW", "ok"))

	_, err = os.Stat(path)
	require.NoError(t, err)
}
