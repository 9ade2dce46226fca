package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overseer-ai/overseer/pkg/config"
	"github.com/overseer-ai/overseer/pkg/models"
	"github.com/overseer-ai/overseer/pkg/services"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	// No provider keys in the test environment, so executors run the
	// offline template path deterministically.
	return NewRegistry(config.BuiltinAgents(), nil, nil)
}

func TestRegistryResolvesBuiltinAgents(t *testing.T) {
	registry := newTestRegistry(t)

	for _, name := range []string{"KM_AGENT", "PROCESS_AGENT", "TALENT_AGENT", "DECISION_AGENT"} {
		executor, ok := registry.Executor(name)
		require.True(t, ok, "expected executor for %s", name)
		require.NotNil(t, executor)
	}

	_, ok := registry.Executor("GHOST_AGENT")
	assert.False(t, ok)
}

func TestRegistryGetUnknownAgent(t *testing.T) {
	registry := newTestRegistry(t)

	_, err := registry.Get("GHOST_AGENT")
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestRegistryListOrdering(t *testing.T) {
	registry := newTestRegistry(t)

	agents := registry.List()
	require.Len(t, agents, 4)
	for i := 1; i < len(agents); i++ {
		assert.Less(t, agents[i-1].Name(), agents[i].Name())
	}
}

func TestOfflineExecutorProducesStructuredReport(t *testing.T) {
	registry := newTestRegistry(t)
	executor, ok := registry.Executor("KM_AGENT")
	require.True(t, ok)

	output, err := executor(context.Background(), "請幫我萃取報關作業 SOP", nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(output, "#"), "report must open with a heading")
	assert.Contains(t, output, "報關作業 SOP", "instruction prefix should be stripped from the topic")
	assert.Contains(t, output, "KM_AGENT")
	assert.Contains(t, output, "## 知識摘要")
}

func TestOfflineExecutorThreadsSessionContext(t *testing.T) {
	registry := newTestRegistry(t)
	executor, ok := registry.Executor("DECISION_AGENT")
	require.True(t, ok)

	sessionCtx := &models.SessionContext{
		AgentName:    "DECISION_AGENT",
		LastProgress: []string{"[COMPLETED] TASK-1 (0.82): 比較供應商方案"},
	}
	output, err := executor(context.Background(), "分析海外設廠方案", sessionCtx)
	require.NoError(t, err)

	assert.Contains(t, output, "延續上次進度")
	assert.Contains(t, output, "TASK-1")
	assert.Contains(t, output, "風險評估矩陣")
}

func TestAgentStatusCounters(t *testing.T) {
	registry := newTestRegistry(t)
	executor, ok := registry.Executor("TALENT_AGENT")
	require.True(t, ok)

	a, err := registry.Get("TALENT_AGENT")
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.Status().TasksCompleted)
	assert.Equal(t, "IDLE", a.Status().Status)

	_, err = executor(context.Background(), "評估新人職能差距", nil)
	require.NoError(t, err)

	status := a.Status()
	assert.Equal(t, int64(1), status.TasksCompleted)
	assert.Equal(t, "IDLE", status.Status)
	assert.LessOrEqual(t, len(status.TriggerKeywords), 5)
}

func TestExtractTopic(t *testing.T) {
	tests := []struct {
		instruction string
		want        string
	}{
		{"請幫我萃取報關流程", "報關流程"},
		{"分析 Q3 營收數據", "Q3 營收數據"},
		{"評估團隊能力", "團隊能力"},
		{"盤點現有知識資產", "盤點現有知識資產"},
		{"萃取", "萃取"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractTopic(tt.instruction), "instruction %q", tt.instruction)
	}
}
